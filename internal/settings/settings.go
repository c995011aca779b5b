// Package settings holds the runtime-mutable bot settings (public/private mode).
package settings

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/nextlevelbuilder/wabot/internal/store"
)

// Mode restricts who may run general commands.
type Mode string

const (
	ModePublic  Mode = "public"  // everyone
	ModePrivate Mode = "private" // owner only
)

// ParseMode accepts "public"/"private" (and "self" as a private alias).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "public":
		return ModePublic, nil
	case "private", "self":
		return ModePrivate, nil
	}
	return "", fmt.Errorf("unknown mode %q (want public or private)", s)
}

// Manager serves the current settings and persists changes.
type Manager struct {
	backend store.SettingsStore

	saveMu sync.Mutex // held across the swap and the write in SetMode

	mu   sync.RWMutex
	mode Mode
}

// NewManager creates a manager starting in the given default mode.
func NewManager(backend store.SettingsStore, defaultMode Mode) *Manager {
	if defaultMode == "" {
		defaultMode = ModePublic
	}
	return &Manager{backend: backend, mode: defaultMode}
}

// Load reads persisted settings. Missing settings keep the default mode and
// an unknown stored mode is ignored with a warning.
func (m *Manager) Load(ctx context.Context) error {
	st, found, err := m.backend.LoadSettings(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if !found {
		return nil
	}
	mode, err := ParseMode(st.Mode)
	if err != nil {
		slog.Warn("ignoring stored settings", "error", err)
		return nil
	}

	m.mu.Lock()
	changed := m.mode != mode
	m.mode = mode
	m.mu.Unlock()

	if changed {
		slog.Info("bot mode loaded", "mode", mode)
	}
	return nil
}

// Mode returns the current mode.
func (m *Manager) Mode() Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode
}

// IsPrivate reports whether general commands are limited to the owner.
func (m *Manager) IsPrivate() bool { return m.Mode() == ModePrivate }

// SetMode switches the mode and persists it. On a write failure the previous
// mode is restored. Concurrent calls persist in the order they change memory.
func (m *Manager) SetMode(ctx context.Context, mode Mode) error {
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	m.mu.Lock()
	prev := m.mode
	m.mode = mode
	m.mu.Unlock()

	if err := m.backend.SaveSettings(ctx, store.Settings{Mode: string(mode)}); err != nil {
		m.mu.Lock()
		if m.mode == mode {
			m.mode = prev
		}
		m.mu.Unlock()
		return fmt.Errorf("save settings: %w", err)
	}

	slog.Info("bot mode changed", "from", prev, "to", mode)
	return nil
}
