// Package channels provides the connection abstraction the daemon runs:
// a long-lived link to a messaging network that delivers inbound events to
// a handler and implements transport.Transport for replies.
package channels

import (
	"context"
	"sync/atomic"

	"github.com/nextlevelbuilder/wabot/internal/transport"
)

// Channel is a running connection to a messaging network.
type Channel interface {
	transport.Transport

	// Name returns the channel identifier (e.g. "whatsapp").
	Name() string

	// Start connects and begins delivering events. Non-blocking after setup;
	// a failed first connection is retried in the background.
	Start(ctx context.Context) error

	// Stop closes the connection and fails pending requests.
	Stop(ctx context.Context) error

	// IsRunning reports whether Start has been called and Stop has not.
	IsRunning() bool

	// IsConnected reports whether the link is currently up.
	IsConnected() bool
}

// BaseChannel provides the shared bookkeeping for channel implementations.
// Implementations should embed it.
type BaseChannel struct {
	name    string
	handler transport.EventHandler
	running atomic.Bool
}

// NewBaseChannel creates a BaseChannel delivering events to handler.
func NewBaseChannel(name string, handler transport.EventHandler) *BaseChannel {
	return &BaseChannel{name: name, handler: handler}
}

// Name returns the channel name.
func (c *BaseChannel) Name() string { return c.name }

// IsRunning returns whether the channel is running.
func (c *BaseChannel) IsRunning() bool { return c.running.Load() }

// SetRunning updates the running state.
func (c *BaseChannel) SetRunning(running bool) { c.running.Store(running) }

// HandleEvent forwards ev to the handler in its own goroutine so the reader
// is never blocked by a slow command.
func (c *BaseChannel) HandleEvent(ctx context.Context, ev *transport.Event) {
	if c.handler == nil || ev == nil {
		return
	}
	go c.handler(ctx, ev)
}

// Truncate shortens a string to maxLen runes, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	n := 0
	for i := range s {
		if n == maxLen {
			return s[:i] + "..."
		}
		n++
	}
	return s
}
