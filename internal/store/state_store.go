package store

import (
	"context"
	"time"
)

// Availability is the persisted AFK state.
type Availability struct {
	Active bool       `json:"isActive"`
	Reason *string    `json:"reason"`
	Since  *time.Time `json:"since"`
}

// AvailabilityStore persists the AFK singleton.
type AvailabilityStore interface {
	// LoadAvailability returns the zero state when nothing is stored.
	LoadAvailability(ctx context.Context) (Availability, error)
	SaveAvailability(ctx context.Context, a Availability) error
}

// Settings is the runtime-mutable bot configuration.
type Settings struct {
	Mode string `json:"mode"`
}

// SettingsStore persists Settings.
type SettingsStore interface {
	// LoadSettings reports found=false when nothing is stored.
	LoadSettings(ctx context.Context) (s Settings, found bool, err error)
	SaveSettings(ctx context.Context, s Settings) error
}
