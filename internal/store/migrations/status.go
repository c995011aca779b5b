package migrations

import (
	"database/sql"
	"errors"
	"fmt"
)

// RequiredVersion is the schema version this binary reads and writes.
const RequiredVersion uint = 1

// ErrSchemaAhead means the database was migrated by a newer binary.
var ErrSchemaAhead = errors.New("database schema is newer than this binary")

// Status compares the applied schema with RequiredVersion.
type Status struct {
	Current        uint
	Required       uint
	Dirty          bool
	Compatible     bool
	NeedsMigration bool
}

// Check reports the schema status of db without changing it.
func Check(db *sql.DB, driver string) (Status, error) {
	v, dirty, err := Version(db, driver)
	if err != nil {
		return Status{}, err
	}
	s := Status{Current: v, Required: RequiredVersion, Dirty: dirty}
	if dirty {
		return s, nil
	}
	switch {
	case v == RequiredVersion:
		s.Compatible = true
	case v < RequiredVersion:
		s.NeedsMigration = true
	}
	return s, nil
}

// Describe renders s as a one-line status with the fix, if any.
func (s Status) Describe() string {
	switch {
	case s.Dirty:
		return fmt.Sprintf("v%d (DIRTY, a migration failed partway; run: wabot migrate force %d)", s.Current, max(int(s.Current)-1, 0))
	case s.Compatible:
		return fmt.Sprintf("v%d (up to date)", s.Current)
	case s.Current > s.Required:
		return fmt.Sprintf("v%d (binary too old, requires v%d)", s.Current, s.Required)
	case s.Current == 0:
		return "empty (applied on first start, or run: wabot migrate up)"
	default:
		return fmt.Sprintf("v%d (upgrade needed, run: wabot migrate up)", s.Current)
	}
}
