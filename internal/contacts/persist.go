package contacts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/wabot/internal/store"
)

// Dirty reports whether there are changes not yet written to the backend.
func (s *Store) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version != s.saved
}

// Flush writes a snapshot when the store changed since the last successful
// write. The backend call runs without the store lock; mutations made while
// it runs stay dirty for the next flush.
func (s *Store) Flush(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.RLock()
	if s.version == s.saved {
		s.mu.RUnlock()
		return nil
	}
	snapshot := make(map[string]store.Contact, len(s.contacts))
	for id, c := range s.contacts {
		snapshot[id] = c
	}
	v := s.version
	s.mu.RUnlock()

	if err := s.backend.SaveContacts(ctx, snapshot); err != nil {
		return fmt.Errorf("save contacts: %w", err)
	}

	s.mu.Lock()
	if v > s.saved {
		s.saved = v
	}
	s.mu.Unlock()

	slog.Debug("contacts flushed", "count", len(snapshot))
	return nil
}

// Run flushes every interval until ctx is done, then flushes once more.
// Failures are logged and retried on the next tick.
func (s *Store) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.Flush(flushCtx); err != nil {
				slog.Error("final contacts flush failed", "error", err)
			}
			return nil
		case <-ticker.C:
			if err := s.Flush(ctx); err != nil {
				slog.Warn("contacts flush failed, will retry", "error", err)
			}
		}
	}
}
