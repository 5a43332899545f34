package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a referenced row does not exist.
var ErrNotFound = errors.New("not found")

// MessageStore is Ingest's and the search tools' view of messages.
type MessageStore interface {
	// SaveMessage persists m and returns its id. inserted is false when the
	// (upstream_msg_id, chat_id) unique constraint swallowed the insert.
	SaveMessage(ctx context.Context, m *Message) (id int64, inserted bool, err error)
	MarkProcessed(ctx context.Context, id int64) error
	// RecentChatMessages returns the last limit messages of a chat, oldest first.
	RecentChatMessages(ctx context.Context, chatID int64, limit int) ([]Message, error)
	// ChatMessagesSince returns up to limit messages of a chat newer than since, oldest first.
	ChatMessagesSince(ctx context.Context, chatID int64, since time.Time, limit int) ([]Message, error)
	// SearchMessages runs full-text search with a substring fallback.
	SearchMessages(ctx context.Context, query string, limit int) ([]Message, error)
	// GroupActivity summarizes traffic per chat id since the given time.
	GroupActivity(ctx context.Context, chatIDs []int64, since time.Time) ([]ChatActivity, error)
	// DMActivity summarizes private-chat traffic (chat_id = sender_id) since the given time.
	DMActivity(ctx context.Context, since time.Time) ([]ChatActivity, error)
}

// TaskStore is the TaskEngine's persistence surface.
type TaskStore interface {
	CreateTask(ctx context.Context, t *Task) (int64, error)
	GetTask(ctx context.Context, id int64) (*Task, error)
	// ActiveTasks lists active tasks, optionally filtered by type, oldest first.
	ActiveTasks(ctx context.Context, typeFilter TaskType) ([]Task, error)
	CompleteTask(ctx context.Context, id int64, at time.Time) error
	CancelTask(ctx context.Context, id int64) error
	// UpdateTask applies a sparse field update. Allowed keys: description,
	// who, deadline, remind_at, recurrence, check_interval_days.
	UpdateTask(ctx context.Context, id int64, fields map[string]any) error
	// DueReminders returns active tasks with remind_at <= now and no sent stamp.
	DueReminders(ctx context.Context, now time.Time) ([]Task, error)
	MarkReminderSent(ctx context.Context, id int64, at time.Time) error
	// TasksWithDeadlineOn lists active tasks whose deadline falls on the given date.
	TasksWithDeadlineOn(ctx context.Context, day time.Time) ([]Task, error)
	// TrackedTasks lists active tasks with track_completion set; chatID 0 = all chats.
	TrackedTasks(ctx context.Context, chatID int64) ([]Task, error)
	StampLastChecked(ctx context.Context, id int64, at time.Time) error
	CountTasksCreatedSince(ctx context.Context, since time.Time) (int64, error)
	CountTasksCompletedSince(ctx context.Context, since time.Time) (int64, error)
}

// ConfidenceStore holds the MEDIUM-band review queue.
type ConfidenceStore interface {
	AddConfidenceItem(ctx context.Context, it *ConfidenceItem) (int64, error)
	GetConfidenceItem(ctx context.Context, id int64) (*ConfidenceItem, error)
	UnresolvedConfidenceItems(ctx context.Context, limit int) ([]ConfidenceItem, error)
	// ResolveConfidenceItem flips resolved once; returns false when the item
	// was already resolved (the call had no effect).
	ResolveConfidenceItem(ctx context.Context, id int64) (bool, error)
	// ResolveConfidenceItems batch-resolves ids and returns those actually flipped.
	ResolveConfidenceItems(ctx context.Context, ids []int64) ([]int64, error)
}

// FeedbackStore records owner verdicts on classifications.
type FeedbackStore interface {
	AddFeedback(ctx context.Context, f *Feedback) (int64, error)
	SetFeedbackReason(ctx context.Context, id int64, reason string) error
}

// TurnStore holds the rolling owner dialogue.
type TurnStore interface {
	AddTurn(ctx context.Context, t *Turn) error
	// RecentTurns returns the last limit turns, oldest first.
	RecentTurns(ctx context.Context, limit int) ([]Turn, error)
	// CompactTurns deletes turns older than before; returns the count removed.
	CompactTurns(ctx context.Context, before time.Time) (int64, error)
}

// SettingStore is the generic key/value surface plus id-set helpers for
// the whitelist and blacklist.
type SettingStore interface {
	GetSetting(ctx context.Context, key string) (string, error) // ErrNotFound when absent
	SetSetting(ctx context.Context, key, value string) error
	GetIDSet(ctx context.Context, key string) ([]int64, error)
	SetIDSet(ctx context.Context, key string, ids []int64) error
}

// HealthStore records component heartbeats.
type HealthStore interface {
	UpsertHeartbeat(ctx context.Context, module, status, errText string, at time.Time) error
	AllHealth(ctx context.Context) ([]HealthCheck, error)
}

// ContactStore backs the new-contact notice.
type ContactStore interface {
	// EnsureContact inserts the contact if unknown; created reports whether
	// this was the first sighting.
	EnsureContact(ctx context.Context, c *Contact) (created bool, err error)
}

// NotifLedger deduplicates deadline reminders per task per day.
type NotifLedger interface {
	// BumpDeadlineNotif increments and returns the counter for (taskID, day).
	BumpDeadlineNotif(ctx context.Context, taskID int64, day time.Time) (int, error)
}

// SummaryStore archives generated summaries.
type SummaryStore interface {
	SaveDailySummary(ctx context.Context, s *DailySummary) error
}

// StatsStore feeds the admin surface.
type StatsStore interface {
	GetStats(ctx context.Context) (*Stats, error)
	KnownChats(ctx context.Context, limit int) ([]ChatActivity, error)
	TopSenders(ctx context.Context, since time.Time, limit int) ([]ChatActivity, error)
}

// Store aggregates every persistence surface the daemon uses.
type Store interface {
	MessageStore
	TaskStore
	ConfidenceStore
	FeedbackStore
	TurnStore
	SettingStore
	HealthStore
	ContactStore
	NotifLedger
	SummaryStore
	StatsStore
}

// Setting keys shared across components.
const (
	SettingWhitelist   = "whitelist"
	SettingBlacklist   = "blacklist"
	SettingAIMode      = "ai_mode"
	SettingPreferences = "user_preferences"
)
