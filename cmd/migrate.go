package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/attache/internal/config"
	"github.com/nextlevelbuilder/attache/internal/store/sqldb"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database schema management",
	}
	cmd.AddCommand(migrateUpCmd())
	cmd.AddCommand(migrateDownCmd())
	cmd.AddCommand(migrateVersionCmd())
	cmd.AddCommand(migrateForceCmd())
	cmd.AddCommand(migrateGotoCmd())
	cmd.AddCommand(migrateDropCmd())
	return cmd
}

// openStore resolves the DSN the same way the daemon does. Migrations are
// embedded in the binary, so there is no directory flag.
func openStore() (*sqldb.Store, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("ATTACHE_DB_DSN environment variable is not set")
	}
	return sqldb.Open(cfg.Database.DSN, cfg.Database.MinConns, cfg.Database.MaxConns)
}

func migrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.Migrate(context.Background()); err != nil {
				return err
			}
			fmt.Println("migrations applied")
			return nil
		},
	}
}

func migrateDownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			m, err := st.Migrator()
			if err != nil {
				return err
			}
			if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return fmt.Errorf("migrate down: %w", err)
			}
			v, dirty, _ := m.Version()
			fmt.Printf("schema at v%d (dirty=%v)\n", v, dirty)
			return nil
		},
	}
}

func migrateVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			m, err := st.Migrator()
			if err != nil {
				return err
			}
			v, dirty, err := m.Version()
			if errors.Is(err, migrate.ErrNilVersion) {
				fmt.Println("schema is empty")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Printf("schema at v%d (dirty=%v)\n", v, dirty)
			return nil
		},
	}
}

func migrateForceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "force <version>",
		Short: "Force the schema version without running migrations (recover a dirty state)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version %q", args[0])
			}
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			m, err := st.Migrator()
			if err != nil {
				return err
			}
			if err := m.Force(v); err != nil {
				return fmt.Errorf("migrate force: %w", err)
			}
			fmt.Printf("schema forced to v%d\n", v)
			return nil
		},
	}
}

func migrateGotoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "goto <version>",
		Short: "Migrate up or down to a specific version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid version %q", args[0])
			}
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			m, err := st.Migrator()
			if err != nil {
				return err
			}
			if err := m.Migrate(uint(v)); err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return fmt.Errorf("migrate goto: %w", err)
			}
			fmt.Printf("schema at v%d\n", v)
			return nil
		},
	}
}

func migrateDropCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drop",
		Short: "Drop every table in the database (DANGEROUS)",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			m, err := st.Migrator()
			if err != nil {
				return err
			}
			if err := m.Drop(); err != nil {
				return fmt.Errorf("migrate drop: %w", err)
			}
			fmt.Println("all tables dropped")
			return nil
		},
	}
}
