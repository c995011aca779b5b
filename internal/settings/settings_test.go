package settings

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/wabot/internal/store"
	"github.com/nextlevelbuilder/wabot/internal/store/file"
)

type failingStore struct{ store.SettingsStore }

func (failingStore) SaveSettings(context.Context, store.Settings) error {
	return errors.New("disk full")
}

// slowStore holds its first save until release is closed.
type slowStore struct {
	mu      sync.Mutex
	saved   store.Settings
	entered chan struct{}
	release chan struct{}
	calls   int
}

func (s *slowStore) LoadSettings(context.Context) (store.Settings, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved, s.saved.Mode != "", nil
}

func (s *slowStore) SaveSettings(_ context.Context, st store.Settings) error {
	s.mu.Lock()
	s.calls++
	first := s.calls == 1
	s.mu.Unlock()
	if first {
		close(s.entered)
		<-s.release
	}

	s.mu.Lock()
	s.saved = st
	s.mu.Unlock()
	return nil
}

func TestSetModeConcurrentWritesKeepLatest(t *testing.T) {
	ctx := context.Background()
	backend := &slowStore{entered: make(chan struct{}), release: make(chan struct{})}
	m := NewManager(backend, ModePublic)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := m.SetMode(ctx, ModePrivate); err != nil {
			t.Errorf("SetMode(private): %v", err)
		}
	}()
	<-backend.entered

	go func() {
		defer wg.Done()
		if err := m.SetMode(ctx, ModePublic); err != nil {
			t.Errorf("SetMode(public): %v", err)
		}
	}()
	time.Sleep(20 * time.Millisecond)
	close(backend.release)
	wg.Wait()

	st, _, _ := backend.LoadSettings(ctx)
	if Mode(st.Mode) != m.Mode() {
		t.Errorf("stored mode %q, memory mode %q", st.Mode, m.Mode())
	}
	if m.Mode() != ModePublic {
		t.Errorf("mode = %q, want public", m.Mode())
	}
}

func TestParseMode(t *testing.T) {
	tests := map[string]Mode{"public": ModePublic, " PRIVATE ": ModePrivate, "self": ModePrivate}
	for in, want := range tests {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseMode("secret"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestManagerPersistsMode(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), file.SettingsFile)
	backend := file.NewSettingsStore(path)

	m := NewManager(backend, "")
	if err := m.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if m.Mode() != ModePublic || m.IsPrivate() {
		t.Fatalf("default mode = %q", m.Mode())
	}

	if err := m.SetMode(ctx, ModePrivate); err != nil {
		t.Fatalf("SetMode: %v", err)
	}

	reloaded := NewManager(backend, ModePublic)
	if err := reloaded.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if !reloaded.IsPrivate() {
		t.Error("private mode not persisted")
	}
}

func TestManagerIgnoresUnknownStoredMode(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), file.SettingsFile)
	os.WriteFile(path, []byte(`{"mode":"weird"}`), 0o600)

	m := NewManager(file.NewSettingsStore(path), ModePrivate)
	if err := m.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if m.Mode() != ModePrivate {
		t.Errorf("mode = %q, want default kept", m.Mode())
	}
}

func TestSetModeRollsBackOnFailure(t *testing.T) {
	m := NewManager(failingStore{}, ModePublic)
	if err := m.SetMode(context.Background(), ModePrivate); err == nil {
		t.Fatal("expected error")
	}
	if m.Mode() != ModePublic {
		t.Errorf("mode = %q, want rollback to public", m.Mode())
	}
}

func TestWatchReloadsOnExternalEdit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := filepath.Join(t.TempDir(), file.SettingsFile)
	backend := file.NewSettingsStore(path)
	if err := backend.SaveSettings(ctx, store.Settings{Mode: "public"}); err != nil {
		t.Fatal(err)
	}

	m := NewManager(backend, ModePublic)
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx, path) }()

	// Give the watcher time to register before editing.
	time.Sleep(100 * time.Millisecond)
	if err := backend.SaveSettings(ctx, store.Settings{Mode: "private"}); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for !m.IsPrivate() && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if !m.IsPrivate() {
		t.Fatal("watcher did not pick up the new mode")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch returned %v", err)
	}
}

func TestWatchCreatesMissingDataDir(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := filepath.Join(t.TempDir(), "fresh", "data", file.SettingsFile)
	backend := file.NewSettingsStore(path)
	m := NewManager(backend, ModePublic)

	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx, path) }()

	time.Sleep(100 * time.Millisecond)
	select {
	case err := <-done:
		t.Fatalf("Watch exited early: %v", err)
	default:
	}
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Fatalf("data dir not created: %v", err)
	}

	if err := backend.SaveSettings(ctx, store.Settings{Mode: "private"}); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for !m.IsPrivate() && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if !m.IsPrivate() {
		t.Fatal("watcher did not pick up the first settings write")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch returned %v", err)
	}
}
