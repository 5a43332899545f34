package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nextlevelbuilder/attache/internal/bus"
	"github.com/nextlevelbuilder/attache/internal/store"
)

const (
	composeMaxTokens = 1024

	// Caps keep the overview prompts bounded no matter how loud the day was.
	overviewChatMax   = 5
	overviewChatMsgs  = 50
	overviewLineRunes = 150
	dmSenderMax       = 8
	dmPreviewsPer     = 5
	dmPreviewRunes    = 100
	crossRefTaskMax   = 15
)

// sendOverviews pushes the group overview, the DM overview and the
// DM-task cross-reference as separate messages. Failures are logged and
// skipped; an empty window sends nothing.
func (s *Scheduler) sendOverviews(ctx context.Context, active []store.Task, groupHeader, dmHeader string) {
	since := s.now().Add(-overviewWindow)

	if text, err := s.groupOverview(ctx, since); err != nil {
		slog.Error("group overview", "error", err)
	} else if text != "" {
		s.notify(ctx, bus.Notification{Text: groupHeader + "\n\n" + text, Plain: true})
	}

	dmLines, err := s.dmLines(ctx, since)
	if err != nil {
		slog.Error("dm overview data", "error", err)
		return
	}
	if len(dmLines) == 0 {
		return
	}
	if text, err := s.dmOverview(ctx, dmLines); err != nil {
		slog.Error("dm overview", "error", err)
	} else if text != "" {
		s.notify(ctx, bus.Notification{Text: dmHeader + "\n\n" + text, Plain: true})
	}

	withWho := active[:0:0]
	for _, t := range active {
		if t.Who != "" {
			withWho = append(withWho, t)
		}
	}
	if len(withWho) == 0 {
		return
	}
	if text, err := s.crossReference(ctx, dmLines, withWho); err != nil {
		slog.Error("cross reference", "error", err)
	} else if text != "" {
		s.notify(ctx, bus.Notification{Text: "🔗 <b>СВЯЗИ ЛС ↔ ЗАДАЧИ:</b>\n" + text})
	}
}

// Summary composes the on-demand overview behind /summary: the same
// group and DM blocks the briefing sends, over the last 12 hours.
func (s *Scheduler) Summary(ctx context.Context) (string, error) {
	since := s.now().Add(-overviewWindow)

	var parts []string
	group, err := s.groupOverview(ctx, since)
	if err != nil {
		return "", fmt.Errorf("group overview: %w", err)
	}
	if group != "" {
		parts = append(parts, "📋 ОБЗОР ГРУПП:\n\n"+group)
	}

	dmLines, err := s.dmLines(ctx, since)
	if err != nil {
		return "", fmt.Errorf("dm data: %w", err)
	}
	if len(dmLines) > 0 {
		dm, err := s.dmOverview(ctx, dmLines)
		if err != nil {
			return "", fmt.Errorf("dm overview: %w", err)
		}
		if dm != "" {
			parts = append(parts, "💬 ЛИЧНЫЕ СООБЩЕНИЯ:\n\n"+dm)
		}
	}

	if len(parts) == 0 {
		return "За последние 12 часов тихо. Ни в группах, ни в личке ничего нового.", nil
	}
	return strings.Join(parts, "\n\n"), nil
}

// groupOverview summarizes whitelist-group traffic since the given time.
// Returns "" when the whitelist is empty or the groups were silent.
func (s *Scheduler) groupOverview(ctx context.Context, since time.Time) (string, error) {
	wl, err := s.store.GetIDSet(ctx, store.SettingWhitelist)
	if err != nil {
		return "", fmt.Errorf("whitelist: %w", err)
	}
	if len(wl) == 0 {
		return "", nil
	}
	acts, err := s.store.GroupActivity(ctx, wl, since.UTC())
	if err != nil {
		return "", fmt.Errorf("group activity: %w", err)
	}
	if len(acts) == 0 {
		return "", nil
	}
	if len(acts) > overviewChatMax {
		acts = acts[:overviewChatMax]
	}

	var b strings.Builder
	for _, a := range acts {
		msgs, err := s.store.ChatMessagesSince(ctx, a.ChatID, since.UTC(), overviewChatMsgs)
		if err != nil {
			return "", fmt.Errorf("chat %d messages: %w", a.ChatID, err)
		}
		if len(msgs) == 0 {
			continue
		}
		title := a.Title
		if title == "" {
			title = fmt.Sprintf("чат %d", a.ChatID)
		}
		fmt.Fprintf(&b, "[%s]:\n", title)
		for i := range msgs {
			m := &msgs[i]
			text := m.Text
			if text == "" && m.Media != "" {
				text = "[" + m.Media + "]"
			}
			fmt.Fprintf(&b, "%s: %s\n", m.SenderName, clip(text, overviewLineRunes))
		}
		b.WriteString("\n")
	}
	if b.Len() == 0 {
		return "", nil
	}

	prompt := fmt.Sprintf(`Проанализируй сообщения из рабочих групп и сделай краткое summary по каждой. Стиль — дружелюбный напарник, на ты. Выдели решения, открытые вопросы и просьбы; болтовню пропускай.

Сообщения по группам:
%s
Формат:
• [группа]: суть в 1-2 предложениях.`, b.String())
	return s.brain.Generate(ctx, "", prompt, composeMaxTokens)
}

// dmLines builds one line per DM correspondent: "Имя (N): preview | preview".
// The owner's own messages and blacklisted senders are excluded.
func (s *Scheduler) dmLines(ctx context.Context, since time.Time) ([]string, error) {
	acts, err := s.store.DMActivity(ctx, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("dm activity: %w", err)
	}
	if len(acts) == 0 {
		return nil, nil
	}
	bl, err := s.store.GetIDSet(ctx, store.SettingBlacklist)
	if err != nil {
		return nil, fmt.Errorf("blacklist: %w", err)
	}
	blocked := make(map[int64]struct{}, len(bl))
	for _, id := range bl {
		blocked[id] = struct{}{}
	}

	var lines []string
	for _, a := range acts {
		if a.ChatID == s.ownerID {
			continue
		}
		if _, skip := blocked[a.ChatID]; skip {
			continue
		}
		msgs, err := s.store.ChatMessagesSince(ctx, a.ChatID, since.UTC(), dmPreviewsPer)
		if err != nil {
			return nil, fmt.Errorf("dm %d messages: %w", a.ChatID, err)
		}
		previews := make([]string, 0, len(msgs))
		for i := range msgs {
			m := &msgs[i]
			text := m.Text
			if text == "" && m.Media != "" {
				text = "[" + m.Media + "]"
			}
			previews = append(previews, clip(text, dmPreviewRunes))
		}
		name := a.Title
		if name == "" {
			name = fmt.Sprintf("id %d", a.ChatID)
		}
		lines = append(lines, fmt.Sprintf("%s (%d): %s", name, a.Count, strings.Join(previews, " | ")))
		if len(lines) >= dmSenderMax {
			break
		}
	}
	return lines, nil
}

// dmOverview summarizes the DM lines into one short block.
func (s *Scheduler) dmOverview(ctx context.Context, dmLines []string) (string, error) {
	prompt := fmt.Sprintf(`Сделай краткий обзор личных сообщений. Стиль — дружелюбный напарник, на ты. По каждому человеку одна строка: о чём пишет и ждёт ли ответа.

Данные (имя, число сообщений, отрывки):
%s

Формат:
• Имя: суть, нужна ли реакция.`, strings.Join(dmLines, "\n"))
	return s.brain.Generate(ctx, "", prompt, composeMaxTokens)
}

// crossReference connects fresh DM activity with active tasks that have
// an assignee. An empty answer means no meaningful links.
func (s *Scheduler) crossReference(ctx context.Context, dmLines []string, withWho []store.Task) (string, error) {
	taskLines := make([]string, 0, len(withWho))
	for i := range withWho {
		if i >= crossRefTaskMax {
			break
		}
		t := &withWho[i]
		line := fmt.Sprintf("#%d %s [%s]", t.ID, t.Description, t.Who)
		if t.Deadline != nil {
			line += " до " + t.Deadline.Format("02.01")
		}
		taskLines = append(taskLines, line)
	}

	prompt := fmt.Sprintf(`Сопоставь свежие личные сообщения с активными задачами и укажи связи: кто из писавших фигурирует в задачах и что это значит. Стиль — дружелюбный напарник, на ты. Если связей нет, ответь ровно: нет.

ЛС:
%s

Задачи:
%s

Формат:
• Имя → #id: что делать.`, strings.Join(dmLines, "\n"), strings.Join(taskLines, "\n"))

	text, err := s.brain.Generate(ctx, "", prompt, composeMaxTokens)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" || strings.EqualFold(text, "нет") || strings.EqualFold(text, "нет.") {
		return "", nil
	}
	return text, nil
}

// clip truncates to n runes with an ellipsis.
func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
