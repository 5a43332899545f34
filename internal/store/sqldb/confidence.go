package sqldb

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/nextlevelbuilder/attache/internal/store"
)

const confidenceCols = `id, message_id, chat_id, sender_name, text_preview,
	predicted_type, confidence, is_urgent, resolved, created_at`

func (s *Store) AddConfidenceItem(ctx context.Context, it *store.ConfidenceItem) (int64, error) {
	if it.CreatedAt.IsZero() {
		it.CreatedAt = time.Now().UTC()
	}
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO confidence_queue (message_id, chat_id, sender_name, text_preview,
		 predicted_type, confidence, is_urgent, resolved, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, $8)
		 RETURNING id`,
		it.MessageID, it.ChatID, it.SenderName, it.TextPreview,
		it.PredictedType, it.Confidence, it.IsUrgent, it.CreatedAt.UTC(),
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	it.ID = id
	return id, nil
}

func (s *Store) GetConfidenceItem(ctx context.Context, id int64) (*store.ConfidenceItem, error) {
	var it store.ConfidenceItem
	err := s.db.QueryRowContext(ctx,
		`SELECT `+confidenceCols+` FROM confidence_queue WHERE id = $1`, id,
	).Scan(&it.ID, &it.MessageID, &it.ChatID, &it.SenderName, &it.TextPreview,
		&it.PredictedType, &it.Confidence, &it.IsUrgent, &it.Resolved, &it.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	it.CreatedAt = it.CreatedAt.UTC()
	return &it, nil
}

func (s *Store) UnresolvedConfidenceItems(ctx context.Context, limit int) ([]store.ConfidenceItem, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+confidenceCols+` FROM confidence_queue
		 WHERE resolved = FALSE ORDER BY created_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.ConfidenceItem
	for rows.Next() {
		var it store.ConfidenceItem
		if err := rows.Scan(&it.ID, &it.MessageID, &it.ChatID, &it.SenderName,
			&it.TextPreview, &it.PredictedType, &it.Confidence, &it.IsUrgent,
			&it.Resolved, &it.CreatedAt); err != nil {
			return nil, err
		}
		it.CreatedAt = it.CreatedAt.UTC()
		out = append(out, it)
	}
	return out, rows.Err()
}

// ResolveConfidenceItem flips resolved once. The status guard in the WHERE
// clause is what makes concurrent resolutions (timer vs. button press)
// race-safe: exactly one caller sees true.
func (s *Store) ResolveConfidenceItem(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE confidence_queue SET resolved = TRUE WHERE id = $1 AND resolved = FALSE`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) ResolveConfidenceItems(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows *sql.Rows
	var err error
	if s.dialect == dialectPostgres {
		rows, err = s.db.QueryContext(ctx,
			`UPDATE confidence_queue SET resolved = TRUE
			 WHERE id = ANY($1) AND resolved = FALSE
			 RETURNING id`, pq.Array(ids))
	} else {
		placeholders := make([]string, len(ids))
		args := make([]any, len(ids))
		for i, id := range ids {
			placeholders[i] = "?"
			args[i] = id
		}
		rows, err = s.db.QueryContext(ctx,
			`UPDATE confidence_queue SET resolved = TRUE
			 WHERE id IN (`+strings.Join(placeholders, ",")+`) AND resolved = FALSE
			 RETURNING id`, args...)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var flipped []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		flipped = append(flipped, id)
	}
	return flipped, rows.Err()
}
