package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nextlevelbuilder/attache/internal/providers"
	"github.com/nextlevelbuilder/attache/internal/store"
)

var weekdayRu = map[time.Weekday]string{
	time.Monday:    "понедельник",
	time.Tuesday:   "вторник",
	time.Wednesday: "среда",
	time.Thursday:  "четверг",
	time.Friday:    "пятница",
	time.Saturday:  "суббота",
	time.Sunday:    "воскресенье",
}

// systemBlocks builds the two-block prompt: the stable persona first (so
// the provider can cache it), then the volatile state block.
func (c *Conversation) systemBlocks(ctx context.Context) []providers.SystemBlock {
	return []providers.SystemBlock{
		{Text: c.persona.Text(), Cache: true},
		{Text: c.stateBlock(ctx)},
	}
}

// stateBlock renders the current world state: clock, schedule, accounts,
// monitored chats, store stats, recent DM senders and owner preferences.
// Every lookup is best-effort; a failed one just drops its line.
func (c *Conversation) stateBlock(ctx context.Context) string {
	now := c.now().In(c.loc)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Сейчас: %s, %s (%s)\n",
		now.Format("2006-01-02 15:04"), weekdayRu[now.Weekday()], c.loc.String())
	if c.scheduleNote != "" {
		sb.WriteString("Расписание: ")
		sb.WriteString(c.scheduleNote)
		sb.WriteString("\n")
	}
	if len(c.accounts) > 0 {
		sb.WriteString("Аккаунты: ")
		sb.WriteString(strings.Join(c.accounts, ", "))
		sb.WriteString("\n")
	}

	if line := c.whitelistLine(ctx); line != "" {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	if stats, err := c.store.GetStats(ctx); err == nil {
		fmt.Fprintf(&sb, "В памяти %d сообщений, активных задач: %d\n", stats.Messages, stats.ActiveTasks)
	}
	if names := c.recentDMNames(ctx, now); len(names) > 0 {
		sb.WriteString("Личные переписки за сутки: ")
		sb.WriteString(strings.Join(names, ", "))
		sb.WriteString("\n")
	}
	if prefs := store.LoadPreferences(ctx, c.store).Describe(); prefs != "" {
		sb.WriteString("Предпочтения владельца:\n")
		sb.WriteString(prefs)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// whitelistLine resolves whitelisted chat ids to known titles.
func (c *Conversation) whitelistLine(ctx context.Context) string {
	ids, err := c.store.GetIDSet(ctx, store.SettingWhitelist)
	if err != nil || len(ids) == 0 {
		return ""
	}
	titles := make(map[int64]string)
	if known, err := c.store.KnownChats(ctx, 200); err == nil {
		for _, ch := range known {
			titles[ch.ChatID] = ch.Title
		}
	}
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		if title := titles[id]; title != "" {
			parts = append(parts, fmt.Sprintf("%s (%d)", title, id))
		} else {
			parts = append(parts, fmt.Sprintf("%d", id))
		}
	}
	return "Отслеживаемые группы: " + strings.Join(parts, ", ")
}

// recentDMNames lists senders of private chats active over the last day.
func (c *Conversation) recentDMNames(ctx context.Context, now time.Time) []string {
	acts, err := c.store.DMActivity(ctx, now.Add(-24*time.Hour))
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(acts))
	for _, a := range acts {
		if a.Title != "" {
			names = append(names, a.Title)
		}
	}
	if len(names) > 10 {
		names = names[:10]
	}
	return names
}
