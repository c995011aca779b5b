package cmd

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/wabot/internal/config"
	"github.com/nextlevelbuilder/wabot/internal/store/migrations"
	"github.com/nextlevelbuilder/wabot/internal/store/pg"
	"github.com/nextlevelbuilder/wabot/internal/store/sqlite"
)

// openSchemaDB opens the SQL database of the configured backend and returns
// it with its migration driver name.
func openSchemaDB() (*sql.DB, string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, "", err
	}
	switch cfg.Store.Backend {
	case config.BackendSQLite:
		db, err := sqlite.OpenDB(filepath.Join(cfg.DataPath(), sqlite.DBFile))
		return db, migrations.SQLite, err
	case config.BackendPostgres:
		db, err := pg.OpenDB(cfg.Store.PostgresDSN)
		return db, migrations.Postgres, err
	default:
		return nil, "", fmt.Errorf("store backend %q has no schema to migrate", cfg.Store.Backend)
	}
}

// withMigrator runs fn against a migrator on the configured database.
func withMigrator(fn func(m *migrate.Migrate) error) error {
	db, driver, err := openSchemaDB()
	if err != nil {
		return err
	}
	defer db.Close()

	m, err := migrations.New(db, driver)
	if err != nil {
		return err
	}
	return fn(m)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration management (sqlite and postgres backends)",
	}

	cmd.AddCommand(migrateUpCmd())
	cmd.AddCommand(migrateDownCmd())
	cmd.AddCommand(migrateVersionCmd())
	cmd.AddCommand(migrateForceCmd())

	return cmd
}

func migrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, driver, err := openSchemaDB()
			if err != nil {
				return err
			}
			defer db.Close()

			v, err := migrations.Up(db, driver)
			if err != nil {
				return err
			}
			slog.Info("migration complete", "driver", driver, "version", v)
			return nil
		},
	}
}

func migrateDownCmd() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations (default: 1 step)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps <= 0 {
				steps = 1
			}
			return withMigrator(func(m *migrate.Migrate) error {
				if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
					return fmt.Errorf("migrate down: %w", err)
				}
				v, dirty, _ := m.Version()
				slog.Info("rollback complete", "version", v, "dirty", dirty)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&steps, "steps", "n", 1, "number of steps to roll back")
	return cmd
}

func migrateVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show current migration version",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, driver, err := openSchemaDB()
			if err != nil {
				return err
			}
			defer db.Close()

			v, dirty, err := migrations.Version(db, driver)
			if err != nil {
				return err
			}
			fmt.Printf("version: %d, dirty: %v\n", v, dirty)
			return nil
		},
	}
}

func migrateForceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "force <version>",
		Short: "Force set migration version (no migration applied)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version: %w", err)
			}
			return withMigrator(func(m *migrate.Migrate) error {
				if err := m.Force(version); err != nil {
					return fmt.Errorf("force version: %w", err)
				}
				slog.Info("forced version", "version", version)
				return nil
			})
		},
	}
}
