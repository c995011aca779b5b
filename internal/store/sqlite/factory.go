// Package sqlite opens the embedded sqlite backend.
package sqlite

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/wabot/internal/store"
	"github.com/nextlevelbuilder/wabot/internal/store/migrations"
	"github.com/nextlevelbuilder/wabot/internal/store/sqlstore"
)

// DBFile is the database file name inside the data directory.
const DBFile = "wabot.db"

// OpenDB opens (creating if needed) the database at path.
func OpenDB(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, err
	}
	// One writer keeps sqlite free of SQLITE_BUSY between our own goroutines.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return db, nil
}

// NewSQLiteStores creates all stores backed by <data_dir>/wabot.db.
func NewSQLiteStores(cfg store.StoreConfig) (*store.Stores, error) {
	path := filepath.Join(cfg.DataDir, DBFile)
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}

	v, err := migrations.Up(db, migrations.SQLite)
	if err != nil {
		db.Close()
		return nil, err
	}
	slog.Debug("sqlite schema ready", "path", path, "version", v)

	return sqlstore.NewStores(db, sqlstore.QuestionMark), nil
}
