// Package pg opens the postgres backend.
package pg

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/nextlevelbuilder/wabot/internal/store"
	"github.com/nextlevelbuilder/wabot/internal/store/migrations"
	"github.com/nextlevelbuilder/wabot/internal/store/sqlstore"
)

// OpenDB connects to postgres through the pgx database/sql driver.
func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// NewPGStores creates all stores backed by postgres and applies migrations.
func NewPGStores(cfg store.StoreConfig) (*store.Stores, error) {
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("postgres backend needs WABOT_POSTGRES_DSN")
	}
	db, err := OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	v, err := migrations.Up(db, migrations.Postgres)
	if err != nil {
		db.Close()
		return nil, err
	}
	slog.Debug("postgres schema ready", "version", v)

	return sqlstore.NewStores(db, sqlstore.Dollar), nil
}
