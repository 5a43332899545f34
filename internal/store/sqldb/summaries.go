package sqldb

import (
	"context"
	"time"

	"github.com/nextlevelbuilder/attache/internal/store"
)

func (s *Store) SaveDailySummary(ctx context.Context, d *store.DailySummary) error {
	payload := d.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO daily_summaries (date, kind, payload) VALUES ($1, $2, $3)
		 ON CONFLICT (date, kind) DO UPDATE SET payload = EXCLUDED.payload`,
		d.Date.UTC().Truncate(24*time.Hour), d.Kind, string(payload))
	return err
}

// BumpDeadlineNotif increments the per-task per-day reminder counter and
// returns the new value.
func (s *Store) BumpDeadlineNotif(ctx context.Context, taskID int64, day time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO deadline_notifications (task_id, date, count) VALUES ($1, $2, 1)
		 ON CONFLICT (task_id, date) DO UPDATE SET count = deadline_notifications.count + 1
		 RETURNING count`,
		taskID, day.UTC().Truncate(24*time.Hour)).Scan(&count)
	return count, err
}
