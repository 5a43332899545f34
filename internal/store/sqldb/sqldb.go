// Package sqldb implements the store interfaces over database/sql.
// Two dialects are supported: Postgres (pgx driver) for production and
// SQLite (modernc driver) for development. Time arithmetic happens in Go
// so the SQL stays portable; the few divergent spots (full-text search,
// array aggregation) branch on the dialect.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type dialect int

const (
	dialectPostgres dialect = iota
	dialectSQLite
)

// Store is the sql-backed implementation of store.Store.
type Store struct {
	db      *sql.DB
	dialect dialect
}

// Open connects to the database named by dsn. postgres:// and postgresql://
// DSNs select the pgx driver; sqlite: and file: DSNs select the embedded
// sqlite driver.
func Open(dsn string, minConns, maxConns int) (*Store, error) {
	driver, connStr, d, err := resolveDriver(dsn)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if maxConns <= 0 {
		maxConns = 10
	}
	if minConns <= 0 {
		minConns = 2
	}
	if d == dialectSQLite {
		// The sqlite driver serializes writes; a single connection avoids
		// SQLITE_BUSY under concurrent writers.
		maxConns, minConns = 1, 1
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(minConns)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &Store{db: db, dialect: d}, nil
}

func resolveDriver(dsn string) (driver, connStr string, d dialect, err error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "pgx", dsn, dialectPostgres, nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return "sqlite", strings.TrimPrefix(dsn, "sqlite://"), dialectSQLite, nil
	case strings.HasPrefix(dsn, "sqlite:"):
		return "sqlite", strings.TrimPrefix(dsn, "sqlite:"), dialectSQLite, nil
	case strings.HasPrefix(dsn, "file:"):
		return "sqlite", dsn, dialectSQLite, nil
	default:
		return "", "", 0, fmt.Errorf("unrecognized DSN scheme in %q", redactDSN(dsn))
	}
}

// redactDSN strips credentials for error messages.
func redactDSN(dsn string) string {
	if i := strings.Index(dsn, "@"); i >= 0 {
		if j := strings.Index(dsn, "://"); j >= 0 && j < i {
			return dsn[:j+3] + "…" + dsn[i:]
		}
	}
	return dsn
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// execUpdate applies a sparse column update built from a validated field map.
func (s *Store) execUpdate(ctx context.Context, table string, id int64, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	sets := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields)+1)
	i := 1
	for col, v := range fields {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, i))
		args = append(args, v)
		i++
	}
	args = append(args, id)
	q := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d", table, strings.Join(sets, ", "), i)
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// nullTime converts *time.Time to a driver-friendly value.
func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// nullInt64 converts *int64 to a driver-friendly value.
func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func int64Ptr(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	v := ni.Int64
	return &v
}
