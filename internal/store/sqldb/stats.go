package sqldb

import (
	"context"
	"time"

	"github.com/nextlevelbuilder/attache/internal/store"
)

func (s *Store) GetStats(ctx context.Context) (*store.Stats, error) {
	var st store.Stats
	err := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM messages),
		(SELECT COUNT(*) FROM tasks WHERE status = 'active'),
		(SELECT COUNT(*) FROM tasks WHERE status = 'done'),
		(SELECT COUNT(*) FROM tasks WHERE status = 'cancelled'),
		(SELECT COUNT(*) FROM confidence_queue WHERE resolved = FALSE),
		(SELECT COUNT(*) FROM contacts),
		(SELECT COUNT(*) FROM conversation_history)`).
		Scan(&st.Messages, &st.ActiveTasks, &st.DoneTasks, &st.CancelledTasks,
			&st.UnresolvedConfidence, &st.Contacts, &st.Turns)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Store) KnownChats(ctx context.Context, limit int) ([]store.ChatActivity, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id, MAX(chat_title), COUNT(*)
		 FROM messages GROUP BY chat_id ORDER BY COUNT(*) DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.ChatActivity
	for rows.Next() {
		var a store.ChatActivity
		if err := rows.Scan(&a.ChatID, &a.Title, &a.Count); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) TopSenders(ctx context.Context, since time.Time, limit int) ([]store.ChatActivity, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT sender_id, MAX(sender_name), COUNT(*)
		 FROM messages WHERE timestamp >= $1
		 GROUP BY sender_id ORDER BY COUNT(*) DESC LIMIT $2`, since.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.ChatActivity
	for rows.Next() {
		var a store.ChatActivity
		if err := rows.Scan(&a.ChatID, &a.Title, &a.Count); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
