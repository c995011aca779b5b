package store

import "errors"

// Backend names accepted in store.backend.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// ErrDecodeFailed wraps a snapshot that exists but cannot be parsed.
var ErrDecodeFailed = errors.New("decode stored state")

// StoreConfig selects and configures a storage backend.
type StoreConfig struct {
	Backend     string // "file" (default), "sqlite" or "postgres"
	DataDir     string // directory for JSON snapshots and the sqlite database
	PostgresDSN string // postgres only, from env
}

// Stores is the top-level container for all storage backends.
type Stores struct {
	Contacts     ContactStore
	Availability AvailabilityStore
	Settings     SettingsStore

	// SettingsPath is the watched file for the file backend; empty otherwise.
	SettingsPath string

	closer func() error
}

// NewStores bundles the three stores. closer may be nil.
func NewStores(c ContactStore, a AvailabilityStore, s SettingsStore, closer func() error) *Stores {
	return &Stores{Contacts: c, Availability: a, Settings: s, closer: closer}
}

// Close releases the backend (database handle), if any.
func (s *Stores) Close() error {
	if s == nil || s.closer == nil {
		return nil
	}
	return s.closer()
}
