package sqldb

import (
	"context"
	"database/sql"
	"time"

	"github.com/nextlevelbuilder/attache/internal/store"
)

func (s *Store) EnsureContact(ctx context.Context, c *store.Contact) (bool, error) {
	if c.FirstSeen.IsZero() {
		c.FirstSeen = time.Now().UTC()
	}
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO contacts (account, sender_id, sender_name, chat_id, first_seen)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (account, sender_id) DO NOTHING
		 RETURNING id`,
		c.Account, c.SenderID, c.SenderName, c.ChatID, c.FirstSeen.UTC(),
	).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	c.ID = id
	return true, nil
}
