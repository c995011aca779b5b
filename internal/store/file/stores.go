package file

import (
	"context"
	"path/filepath"

	"github.com/nextlevelbuilder/wabot/internal/store"
)

// Snapshot file names inside the data directory.
const (
	ContactsFile = "contacts.json"
	AfkFile      = "afk.json"
	SettingsFile = "settings.json"
)

// NewFileStores creates all stores backed by JSON files in dir.
func NewFileStores(dir string) *store.Stores {
	s := store.NewStores(
		NewContactStore(filepath.Join(dir, ContactsFile)),
		NewAvailabilityStore(filepath.Join(dir, AfkFile)),
		NewSettingsStore(filepath.Join(dir, SettingsFile)),
		nil,
	)
	s.SettingsPath = filepath.Join(dir, SettingsFile)
	return s
}

// ContactStore implements store.ContactStore with one snapshot file.
type ContactStore struct {
	path string
}

func NewContactStore(path string) *ContactStore {
	return &ContactStore{path: path}
}

func (s *ContactStore) LoadContacts(_ context.Context) (map[string]store.Contact, error) {
	var snap store.ContactSnapshot
	if _, err := readJSON(s.path, &snap); err != nil {
		return map[string]store.Contact{}, err
	}
	out := make(map[string]store.Contact, len(snap.Contacts))
	for id, c := range snap.Contacts {
		if c.ID == "" {
			c.ID = id
		}
		out[id] = c
	}
	return out, nil
}

func (s *ContactStore) SaveContacts(_ context.Context, contacts map[string]store.Contact) error {
	if contacts == nil {
		contacts = map[string]store.Contact{}
	}
	return writeJSON(s.path, store.ContactSnapshot{Contacts: contacts})
}

// AvailabilityStore implements store.AvailabilityStore with one file.
type AvailabilityStore struct {
	path string
}

func NewAvailabilityStore(path string) *AvailabilityStore {
	return &AvailabilityStore{path: path}
}

func (s *AvailabilityStore) LoadAvailability(_ context.Context) (store.Availability, error) {
	var a store.Availability
	if _, err := readJSON(s.path, &a); err != nil {
		return store.Availability{}, err
	}
	return a, nil
}

func (s *AvailabilityStore) SaveAvailability(_ context.Context, a store.Availability) error {
	return writeJSON(s.path, a)
}

// SettingsStore implements store.SettingsStore with one file.
type SettingsStore struct {
	path string
}

func NewSettingsStore(path string) *SettingsStore {
	return &SettingsStore{path: path}
}

func (s *SettingsStore) LoadSettings(_ context.Context) (store.Settings, bool, error) {
	var st store.Settings
	found, err := readJSON(s.path, &st)
	if err != nil {
		return store.Settings{}, false, err
	}
	return st, found, nil
}

func (s *SettingsStore) SaveSettings(_ context.Context, st store.Settings) error {
	return writeJSON(s.path, st)
}
