package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(win time.Duration, max int) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := New(win, max)
	l.now = clock.now
	return l, clock
}

func TestCheckRejectsAfterMaxWithoutCounting(t *testing.T) {
	l, _ := newTestLimiter(time.Minute, 3)

	for i := 1; i <= 3; i++ {
		if !l.Check("a") {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	for i := 0; i < 5; i++ {
		if l.Check("a") {
			t.Fatal("request over the limit should be rejected")
		}
	}

	l.mu.Lock()
	count := l.entries["a"].count
	l.mu.Unlock()
	if count != 3 {
		t.Errorf("count = %d, want 3 (rejections must not count)", count)
	}
	if l.Remaining("a") != 0 {
		t.Errorf("Remaining = %d", l.Remaining("a"))
	}

	// Keys are independent.
	if !l.Check("b") {
		t.Error("other key should be allowed")
	}
}

func TestWindowResets(t *testing.T) {
	l, clock := newTestLimiter(time.Minute, 2)

	l.Check("a")
	l.Check("a")
	if l.Check("a") {
		t.Fatal("third request should be rejected")
	}

	clock.advance(59 * time.Second)
	if l.Check("a") {
		t.Fatal("window still active")
	}

	clock.advance(time.Second) // exactly at resetAt
	if !l.Check("a") {
		t.Fatal("request at reset time should start a new window")
	}
	if l.Remaining("a") != 1 {
		t.Errorf("Remaining = %d, want 1", l.Remaining("a"))
	}
}

func TestSweep(t *testing.T) {
	l, clock := newTestLimiter(time.Minute, 5)

	l.Check("old")
	clock.advance(30 * time.Second)
	l.Check("new")
	clock.advance(31 * time.Second)

	if n := l.Sweep(); n != 1 {
		t.Errorf("Sweep removed %d, want 1", n)
	}
	if l.Len() != 1 {
		t.Errorf("Len = %d, want 1", l.Len())
	}
	if l.Remaining("new") != 4 {
		t.Error("active window must survive the sweep")
	}
}

func TestDefaults(t *testing.T) {
	l := New(0, 0)
	if l.window != DefaultWindow || l.max != DefaultMaxRequests {
		t.Errorf("defaults = %v/%d", l.window, l.max)
	}
}

func TestConcurrentCheck(t *testing.T) {
	l, _ := newTestLimiter(time.Minute, 50)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Check("k") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if allowed != 50 {
		t.Errorf("allowed = %d, want 50", allowed)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	l := New(time.Millisecond, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx, time.Millisecond) }()

	l.Check("x")
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
	if l.Len() != 0 {
		t.Errorf("expired entry not swept, Len = %d", l.Len())
	}
}
