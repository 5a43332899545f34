// Package store defines the persistent entities and the narrow store
// interfaces each component consumes. The sqldb subpackage implements
// them over Postgres or SQLite.
package store

import (
	"encoding/json"
	"time"
)

// Message is one captured upstream chat message. (UpstreamMsgID, ChatID)
// is unique; replaying a stream is a no-op.
type Message struct {
	ID            int64
	UpstreamMsgID int64
	ChatID        int64
	ChatTitle     string
	SenderID      int64
	SenderName    string
	Text          string
	Media         string // media kind, empty for text-only
	Timestamp     time.Time
	Account       string
	Processed     bool
}

// TaskType is the stored (normalized) task category.
type TaskType string

const (
	TaskKindTask            TaskType = "task"
	TaskKindPromiseMine     TaskType = "promise_mine"
	TaskKindPromiseIncoming TaskType = "promise_incoming"
)

// TaskStatus is the task lifecycle state.
type TaskStatus string

const (
	TaskActive    TaskStatus = "active"
	TaskDone      TaskStatus = "done"
	TaskCancelled TaskStatus = "cancelled"
)

// Recurrence names the respawn period of a recurring task.
type Recurrence string

const (
	RecurNone    Recurrence = ""
	RecurDaily   Recurrence = "daily"
	RecurWeekly  Recurrence = "weekly"
	RecurMonthly Recurrence = "monthly"
)

// Task is a unit of obligation derived from a message or created by the owner.
type Task struct {
	ID                int64
	Type              TaskType
	Description       string
	Who               string
	Deadline          *time.Time // date semantics; stored as UTC midnight of the owner-local date
	RemindAt          *time.Time
	RemindAtSent      *time.Time
	Recurrence        Recurrence
	Confidence        int
	Source            string
	SourceMsgID       *int64
	ChatID            *int64
	SenderID          *int64
	SenderName        string
	Account           string
	Status            TaskStatus
	CreatedAt         time.Time
	CompletedAt       *time.Time
	TrackCompletion   bool
	LastCheckedAt     *time.Time
	CheckIntervalDays int
}

// ConfidenceItem is a MEDIUM-band classification awaiting the owner's verdict.
type ConfidenceItem struct {
	ID            int64
	MessageID     int64
	ChatID        int64
	SenderName    string
	TextPreview   string
	PredictedType string // original judge type, not normalized
	Confidence    int
	IsUrgent      bool
	Resolved      bool
	CreatedAt     time.Time
}

// Feedback is one owner verdict on a classification. Append-only.
type Feedback struct {
	ID                  int64
	MessageID           int64
	PredictedType       string
	ActualType          string
	PredictedConfidence int
	UserReason          string
	CreatedAt           time.Time
}

// Turn is one owner↔assistant conversation turn.
type Turn struct {
	ID        int64
	Role      string // "user" or "assistant"
	Content   string
	ToolCalls string // JSON array of executed tool names, empty if none
	CreatedAt time.Time
}

// HealthCheck is one module's latest heartbeat.
type HealthCheck struct {
	Module    string
	Status    string // "ok" or "error"
	Error     string
	Timestamp time.Time
}

// Contact is a known upstream sender; drives the new-contact notice.
type Contact struct {
	ID         int64
	Account    string
	SenderID   int64
	SenderName string
	ChatID     int64
	FirstSeen  time.Time
}

// DailySummary archives one generated briefing/digest/weekly payload.
type DailySummary struct {
	Date    time.Time // date in the owner zone, stored as date
	Kind    string    // "briefing", "digest", "weekly"
	Payload json.RawMessage
}

// SchemaVersion is one row of the migration journal.
type SchemaVersion struct {
	Version   int64
	Filename  string
	AppliedAt time.Time
}

// ChatActivity summarizes one chat's traffic over a window.
type ChatActivity struct {
	ChatID  int64
	Title   string
	Count   int
	Senders []string
}

// Stats is the aggregate store snapshot for the admin surface.
type Stats struct {
	Messages             int64
	ActiveTasks          int64
	DoneTasks            int64
	CancelledTasks       int64
	UnresolvedConfidence int64
	Contacts             int64
	Turns                int64
}
