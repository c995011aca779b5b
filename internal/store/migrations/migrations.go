// Package migrations embeds the SQL schema shared by the sqlite and postgres
// backends and applies it with golang-migrate.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed sql/*.sql
var files embed.FS

// Driver names accepted by New.
const (
	SQLite   = "sqlite"
	Postgres = "postgres"
)

// New builds a migrator on an open database. The migrator shares db, so
// callers must not Close it while db is in use.
func New(db *sql.DB, driver string) (*migrate.Migrate, error) {
	src, err := iofs.New(files, "sql")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}

	var target database.Driver
	switch driver {
	case SQLite:
		target, err = sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
	case Postgres:
		target, err = pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
	default:
		return nil, fmt.Errorf("unsupported migration driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s migration driver: %w", driver, err)
	}

	m, err := migrate.NewWithInstance("iofs", src, driver, target)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}

// Up applies every pending migration and returns the resulting version.
func Up(db *sql.DB, driver string) (uint, error) {
	m, err := New(db, driver)
	if err != nil {
		return 0, err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("migrate up: %w", err)
	}
	v, dirty, err := version(m)
	if err != nil {
		return 0, err
	}
	if dirty {
		return v, fmt.Errorf("schema version %d is dirty", v)
	}
	if v > RequiredVersion {
		return v, fmt.Errorf("%w: v%d, requires v%d", ErrSchemaAhead, v, RequiredVersion)
	}
	return v, nil
}

// Version reports the applied schema version. An empty database is version 0.
func Version(db *sql.DB, driver string) (uint, bool, error) {
	m, err := New(db, driver)
	if err != nil {
		return 0, false, err
	}
	return version(m)
}

func version(m *migrate.Migrate) (uint, bool, error) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read schema version: %w", err)
	}
	return v, dirty, nil
}
