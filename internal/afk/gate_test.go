package afk

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nextlevelbuilder/wabot/internal/store"
	"github.com/nextlevelbuilder/wabot/internal/store/file"
)

type flakyBackend struct {
	mu    sync.Mutex
	state store.Availability
	err   error
}

func (f *flakyBackend) LoadAvailability(context.Context) (store.Availability, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, f.err
}

func (f *flakyBackend) SaveAvailability(_ context.Context, a store.Availability) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.state = a
	return nil
}

// blockingBackend holds its first save until release is closed.
type blockingBackend struct {
	flakyBackend
	entered chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func newBlockingBackend() *blockingBackend {
	return &blockingBackend{entered: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingBackend) SaveAvailability(ctx context.Context, a store.Availability) error {
	if b.calls.Add(1) == 1 {
		close(b.entered)
		<-b.release
	}
	return b.flakyBackend.SaveAvailability(ctx, a)
}

func TestGateSlowWriteDoesNotOverwriteNewerState(t *testing.T) {
	ctx := context.Background()
	backend := newBlockingBackend()
	g := New(backend)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := g.SetActive(ctx, "lunch"); err != nil {
			t.Errorf("SetActive: %v", err)
		}
	}()
	<-backend.entered

	go func() {
		defer wg.Done()
		if _, _, err := g.Clear(ctx); err != nil {
			t.Errorf("Clear: %v", err)
		}
	}()
	deadline := time.Now().Add(2 * time.Second)
	for g.IsActive() {
		if time.Now().After(deadline) {
			t.Fatal("Clear never ran")
		}
		time.Sleep(time.Millisecond)
	}

	close(backend.release)
	wg.Wait()

	if err := g.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if g.Dirty() {
		t.Error("gate still dirty after flush")
	}

	restarted := New(backend)
	if err := restarted.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if restarted.IsActive() {
		t.Error("stored state is away although the away period was cleared")
	}
}

func TestGateSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	backend := file.NewAvailabilityStore(filepath.Join(t.TempDir(), file.AfkFile))

	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	g := New(backend)
	g.now = func() time.Time { return start }
	if err := g.SetActive(ctx, "  sleeping "); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	restarted := New(backend)
	restarted.now = func() time.Time { return start.Add(3 * time.Hour) }
	if err := restarted.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !restarted.IsActive() {
		t.Fatal("away state lost across restart")
	}
	info, ok := restarted.Info()
	if !ok || info.Reason != "sleeping" || info.Duration != 3*time.Hour || !info.Since.Equal(start) {
		t.Errorf("Info = %+v, %v", info, ok)
	}

	ended, was, err := restarted.Clear(ctx)
	if err != nil || !was || ended.Reason != "sleeping" {
		t.Fatalf("Clear = %+v, %v, %v", ended, was, err)
	}

	again := New(backend)
	if err := again.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if again.IsActive() {
		t.Error("cleared state should persist")
	}
}

func TestGateDefaultsAndClearWhenInactive(t *testing.T) {
	ctx := context.Background()
	g := New(&flakyBackend{})

	if _, was, err := g.Clear(ctx); was || err != nil {
		t.Errorf("Clear on inactive gate = %v, %v", was, err)
	}
	if _, ok := g.Info(); ok {
		t.Error("Info should report inactive")
	}

	if err := g.SetActive(ctx, ""); err != nil {
		t.Fatal(err)
	}
	info, _ := g.Info()
	if info.Reason != DefaultReason {
		t.Errorf("Reason = %q, want default", info.Reason)
	}
}

func TestGatePersistFailureIsRetried(t *testing.T) {
	ctx := context.Background()
	backend := &flakyBackend{err: errors.New("read-only fs")}
	g := New(backend)

	if err := g.SetActive(ctx, "trip"); err == nil {
		t.Fatal("expected persistence error")
	}
	if !g.IsActive() || !g.Dirty() {
		t.Fatal("state must be kept in memory and marked dirty")
	}

	backend.mu.Lock()
	backend.err = nil
	backend.mu.Unlock()

	if err := g.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if g.Dirty() {
		t.Error("gate should be clean after a successful flush")
	}
	if !backend.state.Active || *backend.state.Reason != "trip" {
		t.Errorf("persisted = %+v", backend.state)
	}
}

func TestGateLoadError(t *testing.T) {
	g := New(&flakyBackend{err: store.ErrDecodeFailed})
	if err := g.Load(context.Background()); !errors.Is(err, store.ErrDecodeFailed) {
		t.Errorf("err = %v", err)
	}
	if g.IsActive() {
		t.Error("gate should stay inactive")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{-time.Second, "0 seconds"},
		{0, "0 seconds"},
		{time.Second, "1 second"},
		{59 * time.Second, "59 seconds"},
		{90 * time.Second, "1 minute"},
		{45 * time.Minute, "45 minutes"},
		{2*time.Hour + 59*time.Minute, "2 hours"},
		{49 * time.Hour, "2 days"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestAutoReply(t *testing.T) {
	msg := AutoReply("Fahmy", Info{Reason: "exam", Duration: 2 * time.Hour})
	for _, want := range []string{"Fahmy", "exam", "2 hours"} {
		if !strings.Contains(msg, want) {
			t.Errorf("auto reply %q missing %q", msg, want)
		}
	}
}
