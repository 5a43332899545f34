package sqldb

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// Migrate applies all pending migrations in numeric order and journals the
// applied files into schema_version.
func (s *Store) Migrate(ctx context.Context) error {
	m, err := s.newMigrator()
	if err != nil {
		return err
	}
	// The migrator shares s.db; closing it would close the pool.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}

	v, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("migration state is dirty at version %d", v)
	}
	slog.Info("migrations applied", "version", v)

	return s.journalMigrations(ctx, int64(v))
}

// Migrator exposes the underlying migrate handle for the CLI subcommands.
func (s *Store) Migrator() (*migrate.Migrate, error) { return s.newMigrator() }

func (s *Store) newMigrator() (*migrate.Migrate, error) {
	var (
		drv  database.Driver
		name string
		err  error
	)
	switch s.dialect {
	case dialectPostgres:
		name = "postgres"
		drv, err = migratepg.WithInstance(s.db, &migratepg.Config{})
	default:
		name = "sqlite"
		drv, err = migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	}
	if err != nil {
		return nil, fmt.Errorf("migration driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, s.migrationsDir())
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, name, drv)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}

func (s *Store) migrationsDir() string {
	if s.dialect == dialectPostgres {
		return "migrations/postgres"
	}
	return "migrations/sqlite"
}

// journalMigrations records every applied up-migration file into
// schema_version. Rows are keyed by version, so re-runs are no-ops.
func (s *Store) journalMigrations(ctx context.Context, upto int64) error {
	entries, err := fs.ReadDir(migrationsFS, s.migrationsDir())
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	type mig struct {
		version int64
		file    string
	}
	var migs []mig
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		prefix, _, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		v, err := strconv.ParseInt(prefix, 10, 64)
		if err != nil || v > upto {
			continue
		}
		migs = append(migs, mig{version: v, file: name})
	}
	sort.Slice(migs, func(i, j int) bool { return migs[i].version < migs[j].version })

	now := time.Now().UTC()
	for _, mg := range migs {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO schema_version (version, filename, applied_at)
			 VALUES ($1, $2, $3) ON CONFLICT (version) DO NOTHING`,
			mg.version, mg.file, now)
		if err != nil {
			return fmt.Errorf("journal migration %d: %w", mg.version, err)
		}
	}
	return nil
}
