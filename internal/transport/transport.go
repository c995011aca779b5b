// Package transport defines the contract between the dispatch core and the
// messaging connection. The connection itself (session auth, encryption,
// reconnection to WhatsApp) lives behind these interfaces.
package transport

import (
	"context"
	"errors"
)

// ErrNotConnected is returned when the underlying connection is down.
var ErrNotConnected = errors.New("transport not connected")

// SendOptions controls how a reply is sent.
type SendOptions struct {
	Quoted   *Event   // message to reply to, nil for a plain send
	Mentions []string // handles to mention
}

// Transport is what the core and command handlers call back into.
type Transport interface {
	// SendText sends a text message to a chat.
	SendText(ctx context.Context, chatID, text string, opts SendOptions) error

	// GroupMetadata returns the subject and participant list of a group.
	GroupMetadata(ctx context.Context, chatID string) (*GroupMetadata, error)

	// Lookup resolves a raw handle to its canonical handles and public names.
	Lookup(ctx context.Context, id string) ([]LookupResult, error)

	// Self returns the bot's own identity. Zero until the connection is ready.
	Self() Identity
}

// MediaTransport extends Transport with media download and upload.
type MediaTransport interface {
	Transport
	DownloadMedia(ctx context.Context, msg *Message) ([]byte, error)
	SendMedia(ctx context.Context, chatID string, media OutboundMedia, opts SendOptions) error
}

// EventHandler consumes inbound events.
type EventHandler func(ctx context.Context, ev *Event)

// Reply sends text to the event's chat, quoting the event.
func Reply(ctx context.Context, t Transport, ev *Event, text string) error {
	return t.SendText(ctx, ev.ChatID, text, SendOptions{Quoted: ev})
}
