package sqldb

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/nextlevelbuilder/attache/internal/store"
)

const messageCols = `id, upstream_msg_id, chat_id, chat_title, sender_id, sender_name,
	text, media, timestamp, account, processed`

func (s *Store) SaveMessage(ctx context.Context, m *store.Message) (int64, bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO messages (upstream_msg_id, chat_id, chat_title, sender_id, sender_name,
		 text, media, timestamp, account, processed)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE)
		 ON CONFLICT (upstream_msg_id, chat_id) DO NOTHING
		 RETURNING id`,
		m.UpstreamMsgID, m.ChatID, m.ChatTitle, m.SenderID, m.SenderName,
		m.Text, m.Media, m.Timestamp.UTC(), m.Account,
	).Scan(&id)
	if err == sql.ErrNoRows {
		// Conflict: the row already exists. Idempotence, not an error.
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	m.ID = id
	return id, true, nil
}

func (s *Store) MarkProcessed(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE messages SET processed = TRUE WHERE id = $1`, id)
	return err
}

func (s *Store) RecentChatMessages(ctx context.Context, chatID int64, limit int) ([]store.Message, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageCols+` FROM messages
		 WHERE chat_id = $1 ORDER BY timestamp DESC LIMIT $2`, chatID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	reverseMessages(msgs)
	return msgs, nil
}

func (s *Store) ChatMessagesSince(ctx context.Context, chatID int64, since time.Time, limit int) ([]store.Message, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageCols+` FROM messages
		 WHERE chat_id = $1 AND timestamp >= $2
		 ORDER BY timestamp DESC LIMIT $3`, chatID, since.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	reverseMessages(msgs)
	return msgs, nil
}

// SearchMessages prefers the full-text index and degrades to a substring
// scan when the index is unavailable (sqlite, or a broken tsv column).
func (s *Store) SearchMessages(ctx context.Context, query string, limit int) ([]store.Message, error) {
	if limit <= 0 {
		limit = 20
	}
	if s.dialect == dialectPostgres {
		rows, err := s.db.QueryContext(ctx,
			`SELECT `+messageCols+` FROM messages
			 WHERE tsv @@ plainto_tsquery('russian', $1)
			 ORDER BY ts_rank(tsv, plainto_tsquery('russian', $1)) DESC, timestamp DESC
			 LIMIT $2`, query, limit)
		if err == nil {
			defer rows.Close()
			return scanMessages(rows)
		}
		slog.Warn("full-text search failed, using substring fallback", "error", err)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageCols+` FROM messages
		 WHERE LOWER(text) LIKE '%' || LOWER($1) || '%'
		 ORDER BY timestamp DESC LIMIT $2`, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *Store) GroupActivity(ctx context.Context, chatIDs []int64, since time.Time) ([]store.ChatActivity, error) {
	if len(chatIDs) == 0 {
		return nil, nil
	}
	if s.dialect == dialectPostgres {
		rows, err := s.db.QueryContext(ctx,
			`SELECT chat_id, MAX(chat_title), COUNT(*), array_agg(DISTINCT sender_name)
			 FROM messages
			 WHERE chat_id = ANY($1) AND timestamp >= $2
			 GROUP BY chat_id ORDER BY COUNT(*) DESC`,
			pq.Array(chatIDs), since.UTC())
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		var out []store.ChatActivity
		for rows.Next() {
			var a store.ChatActivity
			if err := rows.Scan(&a.ChatID, &a.Title, &a.Count, pq.Array(&a.Senders)); err != nil {
				return nil, err
			}
			out = append(out, a)
		}
		return out, rows.Err()
	}

	placeholders := make([]string, len(chatIDs))
	args := make([]any, 0, len(chatIDs)+1)
	for i, id := range chatIDs {
		placeholders[i] = "?"
		args = append(args, id)
	}
	args = append(args, since.UTC())
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id, MAX(chat_title), COUNT(*), group_concat(DISTINCT sender_name)
		 FROM messages
		 WHERE chat_id IN (`+strings.Join(placeholders, ",")+`) AND timestamp >= ?
		 GROUP BY chat_id ORDER BY COUNT(*) DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.ChatActivity
	for rows.Next() {
		var a store.ChatActivity
		var senders sql.NullString
		if err := rows.Scan(&a.ChatID, &a.Title, &a.Count, &senders); err != nil {
			return nil, err
		}
		if senders.Valid && senders.String != "" {
			a.Senders = strings.Split(senders.String, ",")
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// DMActivity lists private-chat traffic. In private chats the chat id equals
// the peer's user id, which is the grouping key.
func (s *Store) DMActivity(ctx context.Context, since time.Time) ([]store.ChatActivity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id, MAX(sender_name), COUNT(*)
		 FROM messages
		 WHERE chat_id = sender_id AND timestamp >= $1
		 GROUP BY chat_id ORDER BY COUNT(*) DESC`, since.UTC())
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

func scanMessages(rows *sql.Rows) ([]store.Message, error) {
	var msgs []store.Message
	for rows.Next() {
		var m store.Message
		if err := rows.Scan(&m.ID, &m.UpstreamMsgID, &m.ChatID, &m.ChatTitle,
			&m.SenderID, &m.SenderName, &m.Text, &m.Media,
			&m.Timestamp, &m.Account, &m.Processed); err != nil {
			return nil, err
		}
		m.Timestamp = m.Timestamp.UTC()
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func reverseMessages(msgs []store.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
