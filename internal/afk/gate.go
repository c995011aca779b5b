// Package afk implements the bot-wide "away" state and its auto-reply text.
package afk

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/wabot/internal/store"
)

// DefaultReason is used when the away command carries no reason.
const DefaultReason = "Away"

// Info describes an active away period.
type Info struct {
	Reason   string
	Since    time.Time
	Duration time.Duration
}

// Gate holds the away state. Every change is written through to the backend;
// a failed write keeps the new state in memory and is retried by Flush.
// The gate does no authorization.
type Gate struct {
	backend store.AvailabilityStore
	now     func() time.Time

	flushMu sync.Mutex // orders backend writes

	mu     sync.RWMutex
	active bool
	reason string
	since  time.Time
	dirty  bool
}

// New creates an inactive gate. Call Load to restore the persisted state.
func New(backend store.AvailabilityStore) *Gate {
	return &Gate{backend: backend, now: time.Now}
}

// Load restores the persisted state. On error the gate stays inactive.
func (g *Gate) Load(ctx context.Context) error {
	a, err := g.backend.LoadAvailability(ctx)
	if err != nil {
		return fmt.Errorf("load availability: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.active = a.Active
	g.reason, g.since = "", time.Time{}
	if a.Active {
		g.reason = DefaultReason
		if a.Reason != nil && *a.Reason != "" {
			g.reason = *a.Reason
		}
		g.since = g.now()
		if a.Since != nil {
			g.since = *a.Since
		}
	}
	return nil
}

// IsActive reports whether the bot is away.
func (g *Gate) IsActive() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.active
}

// SetActive marks the bot away with reason (DefaultReason when blank).
// The returned error is the persistence failure; the state is set regardless.
func (g *Gate) SetActive(ctx context.Context, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultReason
	}

	g.mu.Lock()
	g.active = true
	g.reason = reason
	g.since = g.now()
	g.dirty = true
	g.mu.Unlock()

	slog.Info("afk enabled", "reason", reason)
	return g.Flush(ctx)
}

// Clear ends the away period. It returns the period that ended and whether
// the gate was active at all.
func (g *Gate) Clear(ctx context.Context) (Info, bool, error) {
	g.mu.Lock()
	if !g.active {
		g.mu.Unlock()
		return Info{}, false, nil
	}
	info := g.infoLocked()
	g.active = false
	g.reason = ""
	g.since = time.Time{}
	g.dirty = true
	g.mu.Unlock()

	slog.Info("afk cleared", "reason", info.Reason, "duration", info.Duration.Round(time.Second))
	return info, true, g.Flush(ctx)
}

// Info returns the current away period, if any.
func (g *Gate) Info() (Info, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.active {
		return Info{}, false
	}
	return g.infoLocked(), true
}

func (g *Gate) infoLocked() Info {
	d := g.now().Sub(g.since)
	if d < 0 {
		d = 0
	}
	return Info{Reason: g.reason, Since: g.since, Duration: d}
}

// Dirty reports whether the last change has not reached the backend.
func (g *Gate) Dirty() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.dirty
}

// Flush writes the current state if it has not been persisted yet. Flushes
// are serialized so an older snapshot never lands after a newer one.
func (g *Gate) Flush(ctx context.Context) error {
	g.flushMu.Lock()
	defer g.flushMu.Unlock()

	g.mu.RLock()
	if !g.dirty {
		g.mu.RUnlock()
		return nil
	}
	snap := g.snapshotLocked()
	g.mu.RUnlock()

	if err := g.backend.SaveAvailability(ctx, snap); err != nil {
		return fmt.Errorf("save availability: %w", err)
	}

	g.mu.Lock()
	// Only clear dirty if nothing changed while writing.
	if g.snapshotMatchesLocked(snap) {
		g.dirty = false
	}
	g.mu.Unlock()
	return nil
}

// Run retries unpersisted changes every interval until ctx is done.
func (g *Gate) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := g.Flush(flushCtx); err != nil {
				slog.Error("final availability flush failed", "error", err)
			}
			return nil
		case <-ticker.C:
			if err := g.Flush(ctx); err != nil {
				slog.Warn("availability flush failed, will retry", "error", err)
			}
		}
	}
}

func (g *Gate) snapshotLocked() store.Availability {
	if !g.active {
		return store.Availability{}
	}
	reason, since := g.reason, g.since
	return store.Availability{Active: true, Reason: &reason, Since: &since}
}

func (g *Gate) snapshotMatchesLocked(a store.Availability) bool {
	if a.Active != g.active {
		return false
	}
	if !a.Active {
		return true
	}
	return *a.Reason == g.reason && a.Since.Equal(g.since)
}
