// Package janitor deletes stale files from the temp media directory on a
// cron schedule.
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/adhocore/gronx"
)

const (
	DefaultSchedule = "* * * * *"
	DefaultMaxAge   = 5 * time.Minute
)

// Janitor removes regular files older than maxAge from dir whenever the
// schedule is due. The schedule is checked once per minute.
type Janitor struct {
	dir      string
	schedule string
	maxAge   time.Duration
	cron     *gronx.Gronx
	tick     time.Duration
	now      func() time.Time
}

// New validates schedule and returns a Janitor for dir.
func New(dir, schedule string, maxAge time.Duration) (*Janitor, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	g := gronx.New()
	if !g.IsValid(schedule) {
		return nil, fmt.Errorf("janitor: invalid schedule %q", schedule)
	}
	return &Janitor{
		dir:      dir,
		schedule: schedule,
		maxAge:   maxAge,
		cron:     g,
		tick:     time.Minute,
		now:      time.Now,
	}, nil
}

// Dir returns the directory being cleaned.
func (j *Janitor) Dir() string { return j.dir }

// Sweep deletes expired files now and returns how many were removed.
// A missing directory is not an error.
func (j *Janitor) Sweep() (int, error) {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	cutoff := j.now().Add(-j.maxAge)
	removed := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(j.dir, e.Name())); err != nil && !os.IsNotExist(err) {
			slog.Warn("janitor: remove failed", "file", e.Name(), "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

// Due reports whether the schedule fires at t.
func (j *Janitor) Due(t time.Time) bool {
	due, err := j.cron.IsDue(j.schedule, t.Truncate(time.Minute))
	return err == nil && due
}

// Run sweeps whenever the schedule is due until ctx is done.
func (j *Janitor) Run(ctx context.Context) error {
	slog.Info("janitor started", "dir", j.dir, "schedule", j.schedule, "max_age", j.maxAge)

	ticker := time.NewTicker(j.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !j.Due(j.now()) {
				continue
			}
			n, err := j.Sweep()
			if err != nil {
				slog.Warn("janitor: sweep failed", "dir", j.dir, "error", err)
				continue
			}
			if n > 0 {
				slog.Debug("janitor: removed stale files", "count", n)
			}
		}
	}
}
