package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/nextlevelbuilder/attache/internal/bus"
	"github.com/nextlevelbuilder/attache/internal/store"
	"github.com/nextlevelbuilder/attache/internal/tasks"
)

const (
	briefingTaskMax = 10
	reviewLineMax   = 15
	weeklyTopMax    = 5
)

// --- Thin jobs ---

func (s *Scheduler) remindersJob(ctx context.Context) error {
	_, err := s.tasks.SendDueReminders(ctx)
	return err
}

func (s *Scheduler) deadlineJob(ctx context.Context) error {
	return s.tasks.DeadlineReview(ctx)
}

func (s *Scheduler) batchJob(ctx context.Context) error {
	return s.batch.SendBatchReview(ctx)
}

func (s *Scheduler) trackerJob(ctx context.Context) error {
	_, err := s.tracker.CheckAll(ctx)
	return err
}

func (s *Scheduler) compactJob(ctx context.Context) error {
	removed, err := s.store.CompactTurns(ctx, s.now().UTC().Add(-turnMaxAge))
	if err != nil {
		return fmt.Errorf("compact turns: %w", err)
	}
	if removed > 0 {
		slog.Info("conversation turns compacted", "removed", removed)
	}
	return nil
}

func (s *Scheduler) heartbeatJob(ctx context.Context) error {
	return s.store.UpsertHeartbeat(ctx, heartbeatModule, "ok", "", s.now().UTC())
}

// --- Morning briefing ---

type taskBrief struct {
	ID          int64  `json:"id"`
	Description string `json:"description"`
	Who         string `json:"who,omitempty"`
	Deadline    string `json:"deadline,omitempty"`
}

type briefingPayload struct {
	Tasks     []taskBrief `json:"tasks"`
	Deadlines []taskBrief `json:"deadlines"`
}

// briefingJob sends the morning block: the generated briefing, then the
// group overview, the DM overview and the DM-task cross-reference, each
// as its own message so a failed overview never eats the briefing.
func (s *Scheduler) briefingJob(ctx context.Context) error {
	active, err := s.tasks.Active(ctx, "")
	if err != nil {
		return fmt.Errorf("active tasks: %w", err)
	}

	today := s.localDay(s.now())
	payload := briefingPayload{}
	for i := range active {
		t := &active[i]
		b := taskBrief{ID: t.ID, Description: t.Description, Who: t.Who}
		if t.Deadline != nil {
			b.Deadline = t.Deadline.Format("02.01.2006")
		}
		if len(payload.Tasks) < briefingTaskMax {
			payload.Tasks = append(payload.Tasks, b)
		}
		if t.Deadline != nil && t.Deadline.Equal(today) {
			payload.Deadlines = append(payload.Deadlines, b)
		}
	}

	text, err := s.composeBriefing(ctx, payload)
	if err != nil {
		return fmt.Errorf("compose briefing: %w", err)
	}
	s.notify(ctx, bus.Notification{Text: text})
	s.archive(ctx, "briefing", payload)

	s.sendOverviews(ctx, active, "📋 ОБЗОР ГРУПП:", "💬 ЛИЧНЫЕ СООБЩЕНИЯ:")
	slog.Info("morning briefing sent", "tasks", len(payload.Tasks), "due_today", len(payload.Deadlines))
	return nil
}

func (s *Scheduler) composeBriefing(ctx context.Context, p briefingPayload) (string, error) {
	tasksJSON, _ := json.Marshal(p.Tasks)
	deadlinesJSON, _ := json.Marshal(p.Deadlines)
	prompt := fmt.Sprintf(`Сгенерируй утренний брифинг. Стиль — дружелюбный напарник, на ты. Можешь добавить лёгкую шутку или мотивацию.

Данные:
- Задачи: %s
- Дедлайны сегодня: %s

Формат:
Привет! Вот что на сегодня:

ЗАДАЧИ: X активных (Y срочных)
...

Кратко, по делу, но с настроением.`, tasksJSON, deadlinesJSON)
	return s.brain.Generate(ctx, "", prompt, composeMaxTokens)
}

// --- Evening digest ---

type digestPayload struct {
	Date       string `json:"date"`
	Completed  int64  `json:"completed"`
	InProgress int    `json:"in_progress"`
	NewTasks   int64  `json:"new_tasks"`
	Messages   int64  `json:"messages"`
}

// digestJob closes the day: generated digest with real 12-hour counts,
// the full active-task review grid with overdue/today markers, then the
// day's group and DM overviews.
func (s *Scheduler) digestJob(ctx context.Context) error {
	now := s.now()
	since := now.Add(-overviewWindow)

	active, err := s.tasks.Active(ctx, "")
	if err != nil {
		return fmt.Errorf("active tasks: %w", err)
	}
	completed, err := s.store.CountTasksCompletedSince(ctx, since.UTC())
	if err != nil {
		return fmt.Errorf("completed count: %w", err)
	}
	created, err := s.store.CountTasksCreatedSince(ctx, since.UTC())
	if err != nil {
		return fmt.Errorf("created count: %w", err)
	}
	stats, err := s.store.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}

	payload := digestPayload{
		Date:       now.In(s.location).Format("02.01.2006"),
		Completed:  completed,
		InProgress: len(active),
		NewTasks:   created,
		Messages:   stats.Messages,
	}
	text, err := s.composeDigest(ctx, payload)
	if err != nil {
		return fmt.Errorf("compose digest: %w", err)
	}
	s.notify(ctx, bus.Notification{Text: text})
	s.archive(ctx, "digest", payload)

	if len(active) > 0 {
		s.notify(ctx, s.reviewBlock(active))
	}

	s.sendOverviews(ctx, active, "📋 ОБЗОР ГРУПП ЗА ДЕНЬ:", "💬 ЛС ЗА ДЕНЬ:")
	slog.Info("evening digest sent", "completed", completed, "new", created, "active", len(active))
	return nil
}

func (s *Scheduler) composeDigest(ctx context.Context, p digestPayload) (string, error) {
	prompt := fmt.Sprintf(`Сгенерируй вечерний дайджест дня. Стиль — дружелюбный напарник, на ты. Подведи итог с лёгким позитивом.

Данные:
- Сегодня: %s
- Выполнено задач: %d
- В работе: %d
- Новых задач: %d
- Сообщений за день: %d

Формат:
ИТОГ ДНЯ — %s

ВЫПОЛНЕНО: X | В РАБОТЕ: Y | НОВЫХ: Z
...

Хорошего вечера!`, p.Date, p.Completed, p.InProgress, p.NewTasks, p.Messages, p.Date)
	return s.brain.Generate(ctx, "", prompt, composeMaxTokens)
}

// reviewBlock renders the evening active-task list with deadline markers
// and the shared review grid for the first ten.
func (s *Scheduler) reviewBlock(active []store.Task) bus.Notification {
	today := s.localDay(s.now())
	lines := []string{"📋 <b>АКТИВНЫЕ ЗАДАЧИ — REVIEW:</b>"}
	ids := make([]int64, 0, len(active))
	for i := range active {
		if i >= reviewLineMax {
			break
		}
		t := &active[i]
		line := fmt.Sprintf("  • #%d %s", t.ID, html.EscapeString(t.Description))
		if t.Who != "" {
			line += fmt.Sprintf(" [%s]", html.EscapeString(t.Who))
		}
		line += deadlineMarker(t.Deadline, today)
		lines = append(lines, line)
		ids = append(ids, t.ID)
	}
	return bus.Notification{
		Text:     strings.Join(lines, "\n"),
		Keyboard: tasks.ReviewGrid(ids),
	}
}

// deadlineMarker annotates a deadline relative to today. Both sides are
// UTC midnights of owner-local dates.
func deadlineMarker(deadline *time.Time, today time.Time) string {
	if deadline == nil {
		return ""
	}
	switch {
	case deadline.Before(today):
		return fmt.Sprintf(" ⚠️ просрочена (%s)", deadline.Format("02.01"))
	case deadline.Equal(today):
		return " 📅 сегодня"
	default:
		return " 📅 " + deadline.Format("02.01")
	}
}

// --- Weekly analysis ---

type senderCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type weeklyPayload struct {
	ActiveTasks int64         `json:"active_tasks"`
	Created     int64         `json:"created"`
	Completed   int64         `json:"completed"`
	Messages    int64         `json:"messages"`
	TopSenders  []senderCount `json:"top_senders"`
}

// weeklyJob is the Sunday wrap-up: week-over-week task totals and the
// five loudest senders. Plain numbers, no model call.
func (s *Scheduler) weeklyJob(ctx context.Context) error {
	weekAgo := s.now().UTC().Add(-7 * 24 * time.Hour)

	stats, err := s.store.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}
	created, err := s.store.CountTasksCreatedSince(ctx, weekAgo)
	if err != nil {
		return fmt.Errorf("created count: %w", err)
	}
	completed, err := s.store.CountTasksCompletedSince(ctx, weekAgo)
	if err != nil {
		return fmt.Errorf("completed count: %w", err)
	}
	top, err := s.store.TopSenders(ctx, weekAgo, weeklyTopMax)
	if err != nil {
		return fmt.Errorf("top senders: %w", err)
	}

	payload := weeklyPayload{
		ActiveTasks: stats.ActiveTasks,
		Created:     created,
		Completed:   completed,
		Messages:    stats.Messages,
	}
	topLines := make([]string, 0, len(top))
	for _, a := range top {
		name := a.Title
		if name == "" {
			name = fmt.Sprintf("id %d", a.ChatID)
		}
		payload.TopSenders = append(payload.TopSenders, senderCount{Name: name, Count: a.Count})
		topLines = append(topLines, fmt.Sprintf("  %s: %d сообщ.", name, a.Count))
	}
	if len(topLines) == 0 {
		topLines = append(topLines, "  тишина")
	}

	text := fmt.Sprintf(
		"ЕЖЕНЕДЕЛЬНЫЙ АНАЛИЗ\n\nАктивных задач: %d\nСоздано за неделю: %d\nЗакрыто за неделю: %d\nСообщений в БД: %d\n\nТоп отправителей за неделю:\n%s",
		stats.ActiveTasks, created, completed, stats.Messages, strings.Join(topLines, "\n"))

	s.notify(ctx, bus.Notification{Text: text, Plain: true})
	s.archive(ctx, "weekly", payload)
	slog.Info("weekly analysis sent", "created", created, "completed", completed)
	return nil
}

// archive stores a job's payload under the owner-local date so reruns of
// the same day overwrite instead of duplicating.
func (s *Scheduler) archive(ctx context.Context, kind string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		slog.Error("summary payload", "kind", kind, "error", err)
		return
	}
	d := &store.DailySummary{Date: s.localDay(s.now()), Kind: kind, Payload: raw}
	if err := s.store.SaveDailySummary(ctx, d); err != nil {
		slog.Error("archive summary", "kind", kind, "error", err)
	}
}
