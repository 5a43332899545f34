package sqldb

import (
	"context"
	"time"

	"github.com/nextlevelbuilder/attache/internal/store"
)

func (s *Store) UpsertHeartbeat(ctx context.Context, module, status, errText string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO health_checks (module, status, error, timestamp)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (module) DO UPDATE SET
		   status = EXCLUDED.status, error = EXCLUDED.error, timestamp = EXCLUDED.timestamp`,
		module, status, errText, at.UTC())
	return err
}

func (s *Store) AllHealth(ctx context.Context) ([]store.HealthCheck, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT module, status, error, timestamp FROM health_checks ORDER BY module`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.HealthCheck
	for rows.Next() {
		var h store.HealthCheck
		if err := rows.Scan(&h.Module, &h.Status, &h.Error, &h.Timestamp); err != nil {
			return nil, err
		}
		h.Timestamp = h.Timestamp.UTC()
		out = append(out, h)
	}
	return out, rows.Err()
}
