package cmd

import (
	"fmt"
	"os"

	"github.com/nextlevelbuilder/wabot/internal/config"
	"github.com/nextlevelbuilder/wabot/internal/store"
	"github.com/nextlevelbuilder/wabot/internal/store/file"
	"github.com/nextlevelbuilder/wabot/internal/store/pg"
	"github.com/nextlevelbuilder/wabot/internal/store/sqlite"
)

// openStores opens the backend selected by store.backend.
func openStores(cfg *config.Config) (*store.Stores, error) {
	sc := store.StoreConfig{
		Backend:     cfg.Store.Backend,
		DataDir:     cfg.DataPath(),
		PostgresDSN: cfg.Store.PostgresDSN,
	}

	switch sc.Backend {
	case "", config.BackendFile:
		if err := os.MkdirAll(sc.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		return file.NewFileStores(sc.DataDir), nil
	case config.BackendSQLite:
		return sqlite.NewSQLiteStores(sc)
	case config.BackendPostgres:
		return pg.NewPGStores(sc)
	default:
		return nil, fmt.Errorf("unknown store backend %q", sc.Backend)
	}
}

// loadConfig loads and validates the config file.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
