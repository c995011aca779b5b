// Package sqlstore implements the stores on database/sql. The sqlite and pg
// packages open the database and pick the placeholder dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nextlevelbuilder/wabot/internal/store"
)

// Dialect rewrites "?" placeholders for the target database.
type Dialect int

const (
	QuestionMark Dialect = iota // sqlite
	Dollar                      // postgres
)

func (d Dialect) rebind(query string) string {
	if d != Dollar {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// kv keys.
const (
	keyAvailability = "availability"
	keySettings     = "settings"
)

// NewStores wraps db. Close on the result closes db.
func NewStores(db *sql.DB, d Dialect) *store.Stores {
	kv := &KV{db: db, d: d}
	return store.NewStores(
		&ContactStore{db: db, d: d},
		&AvailabilityStore{kv: kv},
		&SettingsStore{kv: kv},
		db.Close,
	)
}

// ContactStore implements store.ContactStore on the contacts table.
type ContactStore struct {
	db *sql.DB
	d  Dialect
}

func (s *ContactStore) LoadContacts(ctx context.Context) (map[string]store.Contact, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, display_name FROM contacts")
	if err != nil {
		return map[string]store.Contact{}, fmt.Errorf("query contacts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]store.Contact)
	for rows.Next() {
		var c store.Contact
		if err := rows.Scan(&c.ID, &c.DisplayName); err != nil {
			return map[string]store.Contact{}, fmt.Errorf("scan contact: %w", err)
		}
		out[c.ID] = c
	}
	return out, rows.Err()
}

// SaveContacts upserts every contact in one transaction. Rows are never
// deleted; unchanged names are left untouched.
func (s *ContactStore) SaveContacts(ctx context.Context, contacts map[string]store.Contact) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.d.rebind(
		`INSERT INTO contacts (id, display_name, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (id) DO UPDATE SET display_name = excluded.display_name, updated_at = excluded.updated_at
		 WHERE contacts.display_name <> excluded.display_name`))
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for id, c := range contacts {
		if _, err := stmt.ExecContext(ctx, id, c.DisplayName); err != nil {
			return fmt.Errorf("upsert contact %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// KV stores JSON documents by key.
type KV struct {
	db *sql.DB
	d  Dialect
}

// Get decodes the value for key into v. found is false when the key is absent.
func (k *KV) Get(ctx context.Context, key string, v any) (bool, error) {
	var raw string
	err := k.db.QueryRowContext(ctx, k.d.rebind("SELECT value FROM kv WHERE key = ?"), key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("%w: %s: %v", store.ErrDecodeFailed, key, err)
	}
	return true, nil
}

// Put replaces the value for key.
func (k *KV) Put(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	_, err = k.db.ExecContext(ctx, k.d.rebind(
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`),
		key, string(data))
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// AvailabilityStore keeps the AFK state under one kv key.
type AvailabilityStore struct {
	kv *KV
}

func (s *AvailabilityStore) LoadAvailability(ctx context.Context) (store.Availability, error) {
	var a store.Availability
	if _, err := s.kv.Get(ctx, keyAvailability, &a); err != nil {
		return store.Availability{}, err
	}
	return a, nil
}

func (s *AvailabilityStore) SaveAvailability(ctx context.Context, a store.Availability) error {
	return s.kv.Put(ctx, keyAvailability, a)
}

// SettingsStore keeps Settings under one kv key.
type SettingsStore struct {
	kv *KV
}

func (s *SettingsStore) LoadSettings(ctx context.Context) (store.Settings, bool, error) {
	var st store.Settings
	found, err := s.kv.Get(ctx, keySettings, &st)
	if err != nil {
		return store.Settings{}, false, err
	}
	return st, found, nil
}

func (s *SettingsStore) SaveSettings(ctx context.Context, st store.Settings) error {
	return s.kv.Put(ctx, keySettings, st)
}
