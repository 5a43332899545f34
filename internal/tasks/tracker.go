package tasks

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/attache/internal/bus"
	"github.com/nextlevelbuilder/attache/internal/store"
)

// Verdict statuses returned by the completion judge.
const (
	VerdictCompleted    = "completed"
	VerdictNotCompleted = "not_completed"
	VerdictUnclear      = "unclear"
)

const (
	// trackedWindowLimit caps how many chat messages feed one verdict.
	trackedWindowLimit = 30
	// chatDebounce spaces event-driven checks per chat.
	chatDebounce = 60 * time.Second

	defaultCheckIntervalDays = 3
)

// CompletionJudge produces a ternary verdict on whether the assignee's chat
// shows the task was done, with a one-sentence evidence string.
type CompletionJudge interface {
	CheckTaskCompletion(ctx context.Context, t *store.Task, history []store.Message, chatTitle string) (status, evidence string, err error)
}

// TrackerConfig wires a Tracker.
type TrackerConfig struct {
	Tasks    store.TaskStore
	Messages store.MessageStore
	Judge    CompletionJudge
	Notifier bus.Notifier
	Now      func() time.Time
}

// Tracker watches outgoing tasks (track_completion=true) for evidence of
// completion: on a fixed schedule via CheckAll and event-driven via
// OnChatActivity when fresh traffic lands in a tracked task's chat.
type Tracker struct {
	tasks    store.TaskStore
	messages store.MessageStore
	judge    CompletionJudge
	notifier bus.Notifier
	now      func() time.Time

	mu       sync.Mutex
	lastPoke map[int64]time.Time
}

func NewTracker(cfg TrackerConfig) *Tracker {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Tracker{
		tasks:    cfg.Tasks,
		messages: cfg.Messages,
		judge:    cfg.Judge,
		notifier: cfg.Notifier,
		now:      cfg.Now,
		lastPoke: make(map[int64]time.Time),
	}
}

// CheckAll runs one verdict pass over every tracked task. Failures on one
// task do not stop the others. Returns how many tasks were checked.
func (tr *Tracker) CheckAll(ctx context.Context) (int, error) {
	tracked, err := tr.tasks.TrackedTasks(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("tracked tasks: %w", err)
	}
	if len(tracked) == 0 {
		slog.Info("tracked check: nothing to check")
		return 0, nil
	}
	checked := 0
	for i := range tracked {
		if err := tr.CheckTask(ctx, &tracked[i]); err != nil {
			slog.Error("tracked check failed", "id", tracked[i].ID, "error", err)
			continue
		}
		checked++
	}
	slog.Info("tracked check done", "checked", checked, "total", len(tracked))
	return checked, nil
}

// OnChatActivity is the event-driven entry: fresh inbound traffic in chatID
// triggers a verdict pass over that chat's tracked tasks, at most once per
// debounce window.
func (tr *Tracker) OnChatActivity(ctx context.Context, chatID int64) {
	tr.mu.Lock()
	last, seen := tr.lastPoke[chatID]
	now := tr.now()
	if seen && now.Sub(last) < chatDebounce {
		tr.mu.Unlock()
		return
	}
	tr.lastPoke[chatID] = now
	tr.mu.Unlock()

	tracked, err := tr.tasks.TrackedTasks(ctx, chatID)
	if err != nil {
		slog.Error("tracked tasks for chat", "chat_id", chatID, "error", err)
		return
	}
	for i := range tracked {
		if err := tr.CheckTask(ctx, &tracked[i]); err != nil {
			slog.Error("tracked check failed", "id", tracked[i].ID, "error", err)
		}
	}
}

// CheckTask asks the judge for a verdict on one task and notifies the owner.
// last_checked_at is stamped whatever the outcome.
func (tr *Tracker) CheckTask(ctx context.Context, t *store.Task) error {
	if t.ChatID == nil {
		return tr.tasks.StampLastChecked(ctx, t.ID, tr.now().UTC())
	}

	interval := t.CheckIntervalDays
	if interval <= 0 {
		interval = defaultCheckIntervalDays
	}
	since := tr.now().UTC().AddDate(0, 0, -interval)
	history, err := tr.messages.ChatMessagesSince(ctx, *t.ChatID, since, trackedWindowLimit)
	if err != nil {
		return fmt.Errorf("chat history: %w", err)
	}

	chatTitle := strings.TrimPrefix(t.Source, "telegram:")
	if chatTitle == "" {
		chatTitle = fmt.Sprintf("чат %d", *t.ChatID)
	}

	status, evidence, err := tr.judge.CheckTaskCompletion(ctx, t, history, chatTitle)
	if err != nil {
		return fmt.Errorf("completion judge: %w", err)
	}

	if err := tr.notifier.Notify(ctx, tr.verdictNotification(t, status, evidence)); err != nil {
		return err
	}
	slog.Info("tracked verdict", "id", t.ID, "status", status)
	return tr.tasks.StampLastChecked(ctx, t.ID, tr.now().UTC())
}

func (tr *Tracker) verdictNotification(t *store.Task, status, evidence string) bus.Notification {
	assignee := t.SenderName
	if assignee == "" {
		assignee = t.Who
	}
	if assignee == "" {
		assignee = "?"
	}

	head := fmt.Sprintf("Задача #%d для %s: %s", t.ID, html.EscapeString(assignee), html.EscapeString(t.Description))
	if link := MessageLink(t.ChatID, t.SourceMsgID); link != "" {
		head += fmt.Sprintf(` <a href="%s">📎</a>`, link)
	}

	var text, waitLabel string
	switch status {
	case VerdictCompleted:
		text = fmt.Sprintf("✅ %s\nПохоже, выполнена: %s", head, html.EscapeString(evidence))
		waitLabel = "⏰ Ещё ждём"
	case VerdictNotCompleted:
		text = fmt.Sprintf("⏳ %s\nОтвета нет.", head)
		waitLabel = "⏰ Ждём"
	default:
		text = fmt.Sprintf("❓ %s\nЕсть активность, но непонятно: %s", head, html.EscapeString(evidence))
		waitLabel = "⏰ Ждём"
	}

	return bus.Notification{
		Text: text,
		Keyboard: [][]bus.Button{{
			{Label: "✅ Закрыть", Intent: bus.TrackClose{TaskID: t.ID}},
			{Label: waitLabel, Intent: bus.TrackWait{TaskID: t.ID}},
		}},
	}
}

// Snooze pushes a task's next check out by stamping last_checked_at now.
// Backs the "still waiting" button.
func (tr *Tracker) Snooze(ctx context.Context, id int64) error {
	return tr.tasks.StampLastChecked(ctx, id, tr.now().UTC())
}
