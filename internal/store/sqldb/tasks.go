package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/attache/internal/store"
)

const taskCols = `id, type, description, who, deadline, remind_at, remind_at_sent,
	recurrence, confidence, source, source_msg_id, chat_id, sender_id, sender_name,
	account, status, created_at, completed_at, track_completion, last_checked_at,
	check_interval_days`

func (s *Store) CreateTask(ctx context.Context, t *store.Task) (int64, error) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if t.Status == "" {
		t.Status = store.TaskActive
	}
	if t.CheckIntervalDays <= 0 {
		t.CheckIntervalDays = 3
	}
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO tasks (type, description, who, deadline, remind_at, remind_at_sent,
		 recurrence, confidence, source, source_msg_id, chat_id, sender_id, sender_name,
		 account, status, created_at, completed_at, track_completion, last_checked_at,
		 check_interval_days)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		 RETURNING id`,
		t.Type, t.Description, t.Who, nullTime(t.Deadline), nullTime(t.RemindAt),
		nullTime(t.RemindAtSent), t.Recurrence, t.Confidence, t.Source,
		nullInt64(t.SourceMsgID), nullInt64(t.ChatID), nullInt64(t.SenderID),
		t.SenderName, t.Account, t.Status, t.CreatedAt.UTC(),
		nullTime(t.CompletedAt), t.TrackCompletion, nullTime(t.LastCheckedAt),
		t.CheckIntervalDays,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create task: %w", err)
	}
	t.ID = id
	return id, nil
}

func (s *Store) GetTask(ctx context.Context, id int64) (*store.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id = $1`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Store) ActiveTasks(ctx context.Context, typeFilter store.TaskType) ([]store.Task, error) {
	q := `SELECT ` + taskCols + ` FROM tasks WHERE status = 'active'`
	args := []any{}
	if typeFilter != "" {
		q += ` AND type = $1`
		args = append(args, typeFilter)
	}
	q += ` ORDER BY created_at ASC`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

func (s *Store) CompleteTask(ctx context.Context, id int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = 'done', completed_at = $1 WHERE id = $2 AND status = 'active'`,
		at.UTC(), id)
	if err != nil {
		return err
	}
	return oneRow(res)
}

func (s *Store) CancelTask(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = 'cancelled' WHERE id = $1 AND status = 'active'`, id)
	if err != nil {
		return err
	}
	return oneRow(res)
}

// updatableTaskCols guards UpdateTask against arbitrary column injection.
var updatableTaskCols = map[string]bool{
	"description":         true,
	"who":                 true,
	"deadline":            true,
	"remind_at":           true,
	"remind_at_sent":      true,
	"recurrence":          true,
	"check_interval_days": true,
	"track_completion":    true,
}

func (s *Store) UpdateTask(ctx context.Context, id int64, fields map[string]any) error {
	clean := make(map[string]any, len(fields))
	for k, v := range fields {
		if !updatableTaskCols[k] {
			return fmt.Errorf("update task: column %q not updatable", k)
		}
		if t, ok := v.(*time.Time); ok {
			v = nullTime(t)
		}
		if t, ok := v.(time.Time); ok {
			v = t.UTC()
		}
		clean[k] = v
	}
	err := s.execUpdate(ctx, "tasks", id, clean)
	if err == sql.ErrNoRows {
		return store.ErrNotFound
	}
	return err
}

func (s *Store) DueReminders(ctx context.Context, now time.Time) ([]store.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskCols+` FROM tasks
		 WHERE status = 'active' AND remind_at IS NOT NULL
		   AND remind_at <= $1 AND remind_at_sent IS NULL
		 ORDER BY remind_at ASC`, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

func (s *Store) MarkReminderSent(ctx context.Context, id int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET remind_at_sent = $1 WHERE id = $2`, at.UTC(), id)
	if err != nil {
		return err
	}
	return oneRow(res)
}

// TasksWithDeadlineOn matches deadlines falling anywhere inside the given
// UTC day. Deadlines are stored at UTC midnight so the half-open range is
// an equality in practice, but stays correct if that ever loosens.
func (s *Store) TasksWithDeadlineOn(ctx context.Context, day time.Time) ([]store.Task, error) {
	from := day.UTC().Truncate(24 * time.Hour)
	to := from.Add(24 * time.Hour)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskCols+` FROM tasks
		 WHERE status = 'active' AND deadline IS NOT NULL
		   AND deadline >= $1 AND deadline < $2
		 ORDER BY deadline ASC, created_at ASC`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

func (s *Store) TrackedTasks(ctx context.Context, chatID int64) ([]store.Task, error) {
	q := `SELECT ` + taskCols + ` FROM tasks
	 WHERE status = 'active' AND track_completion = TRUE`
	args := []any{}
	if chatID != 0 {
		q += ` AND chat_id = $1`
		args = append(args, chatID)
	}
	q += ` ORDER BY created_at ASC`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

func (s *Store) StampLastChecked(ctx context.Context, id int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET last_checked_at = $1 WHERE id = $2`, at.UTC(), id)
	if err != nil {
		return err
	}
	return oneRow(res)
}

func (s *Store) CountTasksCreatedSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks WHERE created_at >= $1`,
		since.UTC()).Scan(&n)
	return n, err
}

func (s *Store) CountTasksCompletedSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks WHERE status = 'done' AND completed_at >= $1`,
		since.UTC()).Scan(&n)
	return n, err
}

func oneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*store.Task, error) {
	var t store.Task
	var deadline, remindAt, remindSent, completedAt, lastChecked sql.NullTime
	var srcMsgID, chatID, senderID sql.NullInt64
	err := row.Scan(&t.ID, &t.Type, &t.Description, &t.Who, &deadline, &remindAt,
		&remindSent, &t.Recurrence, &t.Confidence, &t.Source, &srcMsgID, &chatID,
		&senderID, &t.SenderName, &t.Account, &t.Status, &t.CreatedAt, &completedAt,
		&t.TrackCompletion, &lastChecked, &t.CheckIntervalDays)
	if err != nil {
		return nil, err
	}
	t.Deadline = timePtr(deadline)
	t.RemindAt = timePtr(remindAt)
	t.RemindAtSent = timePtr(remindSent)
	t.CompletedAt = timePtr(completedAt)
	t.LastCheckedAt = timePtr(lastChecked)
	t.SourceMsgID = int64Ptr(srcMsgID)
	t.ChatID = int64Ptr(chatID)
	t.SenderID = int64Ptr(senderID)
	t.CreatedAt = t.CreatedAt.UTC()
	return &t, nil
}

func scanTasks(rows *sql.Rows) ([]store.Task, error) {
	var out []store.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}
