package store

import (
	"context"
	"encoding/json"
)

// Contact maps one identity handle to a display name.
type Contact struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// UnmarshalJSON also accepts older snapshots that stored the name as "name".
func (c *Contact) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID          string `json:"id"`
		DisplayName string `json:"displayName"`
		Name        string `json:"name"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.ID = raw.ID
	c.DisplayName = raw.DisplayName
	if c.DisplayName == "" {
		c.DisplayName = raw.Name
	}
	return nil
}

// ContactSnapshot is the persisted layout of the identity store.
type ContactSnapshot struct {
	Contacts map[string]Contact `json:"contacts"`
}

// ContactStore persists the identity store as a whole.
type ContactStore interface {
	// LoadContacts returns every stored contact keyed by handle. A missing
	// snapshot yields an empty map and no error.
	LoadContacts(ctx context.Context) (map[string]Contact, error)

	// SaveContacts replaces the stored snapshot.
	SaveContacts(ctx context.Context, contacts map[string]Contact) error
}
