package sqldb

import (
	"context"
	"time"

	"github.com/nextlevelbuilder/attache/internal/store"
)

func (s *Store) AddTurn(ctx context.Context, t *store.Turn) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	return s.db.QueryRowContext(ctx,
		`INSERT INTO conversation_history (role, content, tool_calls, created_at)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		t.Role, t.Content, t.ToolCalls, t.CreatedAt.UTC(),
	).Scan(&t.ID)
}

func (s *Store) RecentTurns(ctx context.Context, limit int) ([]store.Turn, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, content, tool_calls, created_at
		 FROM conversation_history ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.Turn
	for rows.Next() {
		var t store.Turn
		if err := rows.Scan(&t.ID, &t.Role, &t.Content, &t.ToolCalls, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.CreatedAt = t.CreatedAt.UTC()
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *Store) CompactTurns(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM conversation_history WHERE created_at < $1`, before.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
