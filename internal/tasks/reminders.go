package tasks

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/nextlevelbuilder/attache/internal/bus"
	"github.com/nextlevelbuilder/attache/internal/store"
)

// reviewGridMax caps how many tasks get buttons in one review block.
const reviewGridMax = 10

// SendDueReminders delivers every pending timed reminder. The sent stamp is
// written before the notification goes out, so a crash mid-send drops a
// reminder rather than repeating it. Returns how many were delivered.
func (e *Engine) SendDueReminders(ctx context.Context) (int, error) {
	due, err := e.store.DueReminders(ctx, e.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("due reminders: %w", err)
	}
	sent := 0
	for i := range due {
		t := &due[i]
		if err := e.store.MarkReminderSent(ctx, t.ID, e.now().UTC()); err != nil {
			slog.Error("mark reminder sent", "id", t.ID, "error", err)
			continue
		}
		n := bus.Notification{
			Text: e.reminderText(t),
			Keyboard: [][]bus.Button{{
				{Label: fmt.Sprintf("✅ Выполнено #%d", t.ID), Intent: bus.ReviewDone{TaskID: t.ID}},
			}},
		}
		if err := e.notifier.Notify(ctx, n); err != nil {
			slog.Error("reminder notify", "id", t.ID, "error", err)
			continue
		}
		slog.Info("reminder sent", "id", t.ID, "description", preview(t.Description, 40))
		sent++
	}
	return sent, nil
}

func (e *Engine) reminderText(t *store.Task) string {
	lines := []string{fmt.Sprintf("⏰ <b>Напоминание:</b> #%d %s", t.ID, html.EscapeString(t.Description))}
	if t.Who != "" {
		lines = append(lines, "👤 "+html.EscapeString(t.Who))
	}
	if t.Deadline != nil {
		lines = append(lines, "📅 Дедлайн: "+t.Deadline.Format("02.01.2006"))
	}
	if link := MessageLink(t.ChatID, t.SourceMsgID); link != "" {
		lines = append(lines, fmt.Sprintf(`<a href="%s">📎</a>`, link))
	}
	return strings.Join(lines, "\n")
}

// DeadlineReview pushes the daily list of tasks due today with a review
// grid. The per-day notification ledger keeps a scheduler restart from
// repeating the same block.
func (e *Engine) DeadlineReview(ctx context.Context) error {
	today := e.dayStart(e.now())
	due, err := e.store.TasksWithDeadlineOn(ctx, today)
	if err != nil {
		return fmt.Errorf("deadline scan: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	fresh := due[:0]
	for _, t := range due {
		count, err := e.store.BumpDeadlineNotif(ctx, t.ID, today)
		if err != nil {
			return fmt.Errorf("deadline notif ledger: %w", err)
		}
		if count == 1 {
			fresh = append(fresh, t)
		}
	}
	if len(fresh) == 0 {
		return nil
	}

	lines := []string{"⏰ <b>Дедлайны СЕГОДНЯ:</b>"}
	ids := make([]int64, 0, len(fresh))
	for i := range fresh {
		t := &fresh[i]
		lines = append(lines, "  • "+taskLine(t))
		ids = append(ids, t.ID)
	}
	err = e.notifier.Notify(ctx, bus.Notification{
		Text:     strings.Join(lines, "\n"),
		Keyboard: ReviewGrid(ids),
	})
	if err != nil {
		return err
	}
	slog.Info("deadline review sent", "tasks", len(fresh))
	return nil
}

// taskLine renders one task as "#id description [who] 📎".
func taskLine(t *store.Task) string {
	line := fmt.Sprintf("#%d %s", t.ID, html.EscapeString(t.Description))
	if t.Who != "" {
		line += fmt.Sprintf(" [%s]", html.EscapeString(t.Who))
	}
	if link := MessageLink(t.ChatID, t.SourceMsgID); link != "" {
		line += fmt.Sprintf(` <a href="%s">📎</a>`, link)
	}
	return line
}

// ReviewGrid builds the compact per-task button grid used by the deadline
// scan, the evening digest and /tasks follow-ups: two tasks per row, four
// buttons each, capped at ten tasks.
func ReviewGrid(taskIDs []int64) [][]bus.Button {
	if len(taskIDs) > reviewGridMax {
		taskIDs = taskIDs[:reviewGridMax]
	}
	var grid [][]bus.Button
	var row []bus.Button
	for _, id := range taskIDs {
		row = append(row,
			bus.Button{Label: fmt.Sprintf("✅ #%d", id), Intent: bus.ReviewDone{TaskID: id}},
			bus.Button{Label: fmt.Sprintf("➡️ #%d", id), Intent: bus.ReviewPostpone{TaskID: id}},
		)
		if len(row) >= 4 {
			grid = append(grid, row)
			row = nil
		}
	}
	if len(row) > 0 {
		grid = append(grid, row)
	}
	return grid
}

// MessageLink builds a t.me deep link to the source message. Only
// supergroups and channels (ids prefixed -100) have public message URLs;
// for anything else it returns "".
func MessageLink(chatID, msgID *int64) string {
	if chatID == nil || msgID == nil || *msgID == 0 {
		return ""
	}
	// Supergroup ids look like -100XXXXXXXXXX; the link wants the bare XXXXXXXXXX.
	const supergroupBase = int64(-1000000000000)
	if *chatID >= supergroupBase {
		return ""
	}
	return fmt.Sprintf("https://t.me/c/%d/%d", supergroupBase-*chatID, *msgID)
}
