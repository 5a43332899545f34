// Package tasks owns the task lifecycle: creation with similarity dedup,
// completion with recurrence respawn, cancellation, postponing, timed
// reminders, the daily deadline scan and outgoing-task monitoring.
package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nextlevelbuilder/attache/internal/bus"
	"github.com/nextlevelbuilder/attache/internal/store"
)

// dedupPrefixLen is how many leading runes of a description take part in
// the similarity check. Containment on this prefix is a policy choice:
// "созвон с Иваном" and "созвон с Иваном в 15:00" count as one task.
const dedupPrefixLen = 50

// Store is the persistence surface the engine needs.
type Store interface {
	store.TaskStore
	store.NotifLedger
}

// Config wires an Engine.
type Config struct {
	Store    Store
	Notifier bus.Notifier
	// Location is the owner's timezone; day boundaries and all rendered
	// dates use it.
	Location *time.Location
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Engine is the single writer for task state transitions.
type Engine struct {
	store    Store
	notifier bus.Notifier
	loc      *time.Location
	now      func() time.Time
}

func NewEngine(cfg Config) *Engine {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		store:    cfg.Store,
		notifier: cfg.Notifier,
		loc:      cfg.Location,
		now:      cfg.Now,
	}
}

// Create inserts t unless an active task with a similar description already
// exists. It returns the stored task and whether it was newly created; on a
// duplicate the existing task comes back with created=false and no error.
func (e *Engine) Create(ctx context.Context, t *store.Task) (*store.Task, bool, error) {
	existing, err := e.findSimilar(ctx, t.Description)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		slog.Info("task dedup hit", "existing_id", existing.ID, "description", preview(t.Description, 40))
		return existing, false, nil
	}

	id, err := e.store.CreateTask(ctx, t)
	if err != nil {
		return nil, false, fmt.Errorf("create task: %w", err)
	}
	t.ID = id
	slog.Info("task created", "id", id, "type", t.Type, "description", preview(t.Description, 40))
	return t, true, nil
}

// findSimilar scans active tasks for a bidirectional prefix containment
// match: either description's normalized 50-rune prefix contained in the
// other's counts as the same task.
func (e *Engine) findSimilar(ctx context.Context, description string) (*store.Task, error) {
	candidate := dedupKey(description)
	if candidate == "" {
		return nil, nil
	}
	active, err := e.store.ActiveTasks(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list active tasks: %w", err)
	}
	for i := range active {
		key := dedupKey(active[i].Description)
		if key == "" {
			continue
		}
		if strings.Contains(key, candidate) || strings.Contains(candidate, key) {
			return &active[i], nil
		}
	}
	return nil, nil
}

// dedupKey normalizes a description for the similarity check: lowercase,
// whitespace collapsed, truncated to the dedup prefix.
func dedupKey(description string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(description)), " ")
	runes := []rune(normalized)
	if len(runes) > dedupPrefixLen {
		runes = runes[:dedupPrefixLen]
	}
	return string(runes)
}

// Complete closes the task. A recurring task is closed and respawned: the
// original row becomes done and a fresh clone is inserted with the next
// occurrence's deadline and reminder.
func (e *Engine) Complete(ctx context.Context, id int64) (*store.Task, *store.Task, error) {
	t, err := e.store.GetTask(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if err := e.store.CompleteTask(ctx, id, e.now().UTC()); err != nil {
		return nil, nil, err
	}
	slog.Info("task completed", "id", id)

	if t.Recurrence == store.RecurNone {
		return t, nil, nil
	}
	clone := e.respawn(t)
	cloneID, err := e.store.CreateTask(ctx, clone)
	if err != nil {
		return t, nil, fmt.Errorf("respawn recurring task #%d: %w", id, err)
	}
	clone.ID = cloneID
	slog.Info("recurring task respawned", "closed_id", id, "new_id", cloneID, "recurrence", t.Recurrence)
	return t, clone, nil
}

// respawn builds the next occurrence of a recurring task. Dates advance by
// one period from their own previous value; a date the old task never had
// stays unset. The clone starts with a clean reminder and check history.
func (e *Engine) respawn(t *store.Task) *store.Task {
	clone := &store.Task{
		Type:              t.Type,
		Description:       t.Description,
		Who:               t.Who,
		Recurrence:        t.Recurrence,
		Confidence:        t.Confidence,
		Source:            t.Source,
		SourceMsgID:       t.SourceMsgID,
		ChatID:            t.ChatID,
		SenderID:          t.SenderID,
		SenderName:        t.SenderName,
		Account:           t.Account,
		TrackCompletion:   t.TrackCompletion,
		CheckIntervalDays: t.CheckIntervalDays,
	}
	if t.Deadline != nil {
		next := nextOccurrence(t.Recurrence, *t.Deadline)
		clone.Deadline = &next
	}
	if t.RemindAt != nil {
		next := nextOccurrence(t.Recurrence, *t.RemindAt)
		clone.RemindAt = &next
	}
	return clone
}

func nextOccurrence(r store.Recurrence, from time.Time) time.Time {
	switch r {
	case store.RecurDaily:
		return from.AddDate(0, 0, 1)
	case store.RecurWeekly:
		return from.AddDate(0, 0, 7)
	case store.RecurMonthly:
		return from.AddDate(0, 1, 0)
	default:
		return from
	}
}

// Cancel moves the task to the cancelled terminal state.
func (e *Engine) Cancel(ctx context.Context, id int64) error {
	if err := e.store.CancelTask(ctx, id); err != nil {
		return err
	}
	slog.Info("task cancelled", "id", id)
	return nil
}

// Postpone moves the task's deadline, and its reminder when set, forward by
// whole days. A task without a deadline gets one counted from today. The sent
// stamp is cleared so the moved reminder fires again.
func (e *Engine) Postpone(ctx context.Context, id int64, days int) (*store.Task, error) {
	t, err := e.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}

	var deadline time.Time
	if t.Deadline != nil {
		deadline = t.Deadline.AddDate(0, 0, days)
	} else {
		deadline = e.dayStart(e.now()).AddDate(0, 0, days)
	}
	fields := map[string]any{"deadline": &deadline}

	if t.RemindAt != nil {
		remind := t.RemindAt.AddDate(0, 0, days)
		fields["remind_at"] = &remind
		fields["remind_at_sent"] = (*time.Time)(nil)
		t.RemindAt = &remind
		t.RemindAtSent = nil
	}
	if err := e.store.UpdateTask(ctx, id, fields); err != nil {
		return nil, err
	}
	t.Deadline = &deadline
	slog.Info("task postponed", "id", id, "days", days, "deadline", deadline.Format("2006-01-02"))
	return t, nil
}

// Update applies a sparse owner-driven field update.
func (e *Engine) Update(ctx context.Context, id int64, fields map[string]any) error {
	return e.store.UpdateTask(ctx, id, fields)
}

// Get returns one task.
func (e *Engine) Get(ctx context.Context, id int64) (*store.Task, error) {
	return e.store.GetTask(ctx, id)
}

// Active lists active tasks, optionally filtered by type.
func (e *Engine) Active(ctx context.Context, typeFilter store.TaskType) ([]store.Task, error) {
	return e.store.ActiveTasks(ctx, typeFilter)
}

// dayStart returns UTC midnight of the owner-local date containing ts,
// matching how deadlines are stored.
func (e *Engine) dayStart(ts time.Time) time.Time {
	local := ts.In(e.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

func preview(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
