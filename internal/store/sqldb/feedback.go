package sqldb

import (
	"context"
	"time"

	"github.com/nextlevelbuilder/attache/internal/store"
)

func (s *Store) AddFeedback(ctx context.Context, f *store.Feedback) (int64, error) {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO classification_feedback (message_id, predicted_type, actual_type,
		 predicted_confidence, user_reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		f.MessageID, f.PredictedType, f.ActualType, f.PredictedConfidence,
		f.UserReason, f.CreatedAt.UTC(),
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	f.ID = id
	return id, nil
}

func (s *Store) SetFeedbackReason(ctx context.Context, id int64, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE classification_feedback SET user_reason = $1 WHERE id = $2`, reason, id)
	if err != nil {
		return err
	}
	return oneRow(res)
}
