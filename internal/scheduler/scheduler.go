// Package scheduler drives the daemon's periodic jobs. A single driver
// goroutine wakes once per wall-clock minute, matches every job's cron
// expression against the owner zone with gronx and runs due jobs in
// their own goroutines. A job still running from an earlier minute is
// skipped, not queued.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/adhocore/gronx"

	"github.com/nextlevelbuilder/attache/internal/bus"
	"github.com/nextlevelbuilder/attache/internal/store"
)

const (
	// jobTimeout bounds one job run. The briefing makes several model
	// calls in sequence and still fits with room to spare.
	jobTimeout = 5 * time.Minute

	// overviewWindow is how far back the group/DM overviews look.
	overviewWindow = 12 * time.Hour

	// turnMaxAge is the retention of raw conversation turns.
	turnMaxAge = 24 * time.Hour

	heartbeatModule = "scheduler"
)

// Store is the persistence slice the jobs read and write.
type Store interface {
	GetStats(ctx context.Context) (*store.Stats, error)
	GetIDSet(ctx context.Context, key string) ([]int64, error)
	GroupActivity(ctx context.Context, chatIDs []int64, since time.Time) ([]store.ChatActivity, error)
	DMActivity(ctx context.Context, since time.Time) ([]store.ChatActivity, error)
	ChatMessagesSince(ctx context.Context, chatID int64, since time.Time, limit int) ([]store.Message, error)
	TopSenders(ctx context.Context, since time.Time, limit int) ([]store.ChatActivity, error)
	CountTasksCreatedSince(ctx context.Context, since time.Time) (int64, error)
	CountTasksCompletedSince(ctx context.Context, since time.Time) (int64, error)
	CompactTurns(ctx context.Context, before time.Time) (int64, error)
	SaveDailySummary(ctx context.Context, d *store.DailySummary) error
	UpsertHeartbeat(ctx context.Context, module, status, errText string, at time.Time) error
}

// Brain composes the briefing, digest and overview texts.
type Brain interface {
	Generate(ctx context.Context, system, user string, maxTokens int) (string, error)
}

// TaskOps is the task-engine slice the daily jobs drive.
type TaskOps interface {
	Active(ctx context.Context, typeFilter store.TaskType) ([]store.Task, error)
	SendDueReminders(ctx context.Context) (int, error)
	DeadlineReview(ctx context.Context) error
}

// TrackOps re-checks outgoing tracked tasks.
type TrackOps interface {
	CheckAll(ctx context.Context) (int, error)
}

// BatchOps sends the evening review of unresolved classifications.
type BatchOps interface {
	SendBatchReview(ctx context.Context) error
}

// Config wires the scheduler.
type Config struct {
	Store    Store
	Brain    Brain
	Tasks    TaskOps
	Tracker  TrackOps
	Batch    BatchOps
	Notifier bus.Notifier

	OwnerID int64

	// Wall-clock hours in the owner zone for the daily jobs.
	BriefingHour int
	DeadlineHour int
	BatchHour    int
	DigestHour   int
	WeeklyHour   int // Sunday

	Heartbeat time.Duration
	Location  *time.Location
	Now       func() time.Time
}

type job struct {
	name    string
	expr    string
	fn      func(ctx context.Context) error
	running atomic.Bool
}

// Scheduler owns the job table and the minute driver.
type Scheduler struct {
	store    Store
	brain    Brain
	tasks    TaskOps
	tracker  TrackOps
	batch    BatchOps
	notifier bus.Notifier

	ownerID  int64
	location *time.Location
	now      func() time.Time

	cron gronx.Gronx
	jobs []*job
}

// New builds the scheduler and its job table.
func New(cfg Config) *Scheduler {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 5 * time.Minute
	}
	s := &Scheduler{
		store:    cfg.Store,
		brain:    cfg.Brain,
		tasks:    cfg.Tasks,
		tracker:  cfg.Tracker,
		batch:    cfg.Batch,
		notifier: cfg.Notifier,
		ownerID:  cfg.OwnerID,
		location: cfg.Location,
		now:      cfg.Now,
		cron:     gronx.New(),
	}

	hbMinutes := int(cfg.Heartbeat.Minutes())
	if hbMinutes < 1 {
		hbMinutes = 1
	}
	if hbMinutes > 30 {
		hbMinutes = 30
	}

	s.jobs = []*job{
		{name: "reminders", expr: "* * * * *", fn: s.remindersJob},
		{name: "briefing", expr: atHour(cfg.BriefingHour), fn: s.briefingJob},
		{name: "deadline-review", expr: atHour(cfg.DeadlineHour), fn: s.deadlineJob},
		{name: "batch-review", expr: atHour(cfg.BatchHour), fn: s.batchJob},
		{name: "digest", expr: atHour(cfg.DigestHour), fn: s.digestJob},
		// Four checkpoints across the day; minute 5 keeps clear of the
		// on-the-hour jobs.
		{name: "tracked-tasks", expr: "5 9,13,17,21 * * *", fn: s.trackerJob},
		{name: "compact-turns", expr: "15 * * * *", fn: s.compactJob},
		{name: "weekly", expr: fmt.Sprintf("0 %d * * 0", cfg.WeeklyHour), fn: s.weeklyJob},
		{name: "heartbeat", expr: fmt.Sprintf("*/%d * * * *", hbMinutes), fn: s.heartbeatJob},
	}
	return s
}

// Run drives the job table until ctx is cancelled. The first heartbeat
// goes out immediately so the watchdog sees the module without waiting
// a full interval.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("scheduler started", "jobs", len(s.jobs), "zone", s.location.String())
	if err := s.heartbeatJob(ctx); err != nil {
		slog.Warn("scheduler heartbeat", "error", err)
	}
	for {
		next := nextMinute(s.now())
		timer := time.NewTimer(next.Sub(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			slog.Info("scheduler stopped")
			return nil
		case <-timer.C:
		}
		s.tick(ctx, next.In(s.location))
	}
}

// tick evaluates every job against one wall-clock minute.
func (s *Scheduler) tick(ctx context.Context, minute time.Time) {
	for _, j := range s.jobs {
		due, err := s.cron.IsDue(j.expr, minute)
		if err != nil {
			slog.Error("cron match", "job", j.name, "expr", j.expr, "error", err)
			continue
		}
		if !due {
			continue
		}
		if !j.running.CompareAndSwap(false, true) {
			slog.Warn("job still running, skipped", "job", j.name)
			continue
		}
		go func(j *job) {
			defer j.running.Store(false)
			jctx, cancel := context.WithTimeout(ctx, jobTimeout)
			defer cancel()
			start := s.now()
			if err := j.fn(jctx); err != nil {
				slog.Error("job failed", "job", j.name, "error", err)
				return
			}
			slog.Debug("job done", "job", j.name, "took", s.now().Sub(start).Round(time.Millisecond))
		}(j)
	}
}

// atHour builds a daily on-the-hour cron expression.
func atHour(hour int) string {
	return fmt.Sprintf("0 %d * * *", hour)
}

// nextMinute returns the next wall-clock minute boundary strictly after now.
func nextMinute(now time.Time) time.Time {
	return now.Truncate(time.Minute).Add(time.Minute)
}

// localDay returns UTC midnight of the owner-local date containing ts,
// matching how task deadlines are stored.
func (s *Scheduler) localDay(ts time.Time) time.Time {
	local := ts.In(s.location)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// notify delivers a scheduler-originated message, logging failures. The
// periodic jobs keep going when one notification cannot be delivered.
func (s *Scheduler) notify(ctx context.Context, n bus.Notification) {
	if err := s.notifier.Notify(ctx, n); err != nil {
		slog.Error("scheduler notify", "error", err)
	}
}
