// Package ratelimit implements a fixed-window request counter per key.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Defaults.
const (
	DefaultWindow        = 60 * time.Second
	DefaultMaxRequests   = 10
	DefaultSweepInterval = 10 * time.Minute
)

type window struct {
	count   int
	resetAt time.Time
}

// Limiter counts requests per key in fixed windows. Safe for concurrent use.
type Limiter struct {
	window time.Duration
	max    int
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*window
}

// New creates a limiter allowing maxRequests per key per window.
// Non-positive values fall back to the defaults.
func New(win time.Duration, maxRequests int) *Limiter {
	if win <= 0 {
		win = DefaultWindow
	}
	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}
	return &Limiter{
		window:  win,
		max:     maxRequests,
		now:     time.Now,
		entries: make(map[string]*window),
	}
}

// Check counts a request for key and reports whether it is allowed.
// A rejected request is not counted.
func (l *Limiter) Check(key string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok || !now.Before(e.resetAt) {
		l.entries[key] = &window{count: 1, resetAt: now.Add(l.window)}
		return true
	}
	if e.count >= l.max {
		return false
	}
	e.count++
	return true
}

// Remaining returns how many more requests key may make in its window.
func (l *Limiter) Remaining(key string) int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok || !now.Before(e.resetAt) {
		return l.max
	}
	return l.max - e.count
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Sweep drops windows that have expired and returns how many were removed.
func (l *Limiter) Sweep() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for k, e := range l.entries {
		if !now.Before(e.resetAt) {
			delete(l.entries, k)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := l.Sweep(); n > 0 {
				slog.Debug("rate limiter swept expired windows", "removed", n, "tracked", l.Len())
			}
		}
	}
}
