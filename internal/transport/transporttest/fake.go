// Package transporttest provides an in-memory Transport for tests.
package transporttest

import (
	"context"
	"fmt"
	"sync"

	"github.com/nextlevelbuilder/wabot/internal/transport"
)

// Sent is one recorded outbound text message.
type Sent struct {
	ChatID string
	Text   string
	Opts   transport.SendOptions
}

// SentMedia is one recorded outbound media message.
type SentMedia struct {
	ChatID string
	Media  transport.OutboundMedia
	Opts   transport.SendOptions
}

// Fake records sends and serves canned group metadata, lookups and media.
// It implements transport.MediaTransport.
type Fake struct {
	mu        sync.Mutex
	self      transport.Identity
	groups    map[string]*transport.GroupMetadata
	lookups   map[string][]transport.LookupResult
	media     []byte
	sent      []Sent
	sentMedia []SentMedia

	LookupCalls int
	GroupCalls  int
	SendErr     error
}

// New creates a Fake whose own identity is self.
func New(self transport.Identity) *Fake {
	return &Fake{
		self:    self,
		groups:  make(map[string]*transport.GroupMetadata),
		lookups: make(map[string][]transport.LookupResult),
	}
}

// SetGroup registers metadata returned for meta.ID.
func (f *Fake) SetGroup(meta *transport.GroupMetadata) {
	f.mu.Lock()
	f.groups[meta.ID] = meta
	f.mu.Unlock()
}

// SetLookup registers the results returned for id.
func (f *Fake) SetLookup(id string, res ...transport.LookupResult) {
	f.mu.Lock()
	f.lookups[id] = res
	f.mu.Unlock()
}

// SetMedia sets the bytes DownloadMedia returns.
func (f *Fake) SetMedia(data []byte) {
	f.mu.Lock()
	f.media = data
	f.mu.Unlock()
}

func (f *Fake) SendText(_ context.Context, chatID, text string, opts transport.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return f.SendErr
	}
	f.sent = append(f.sent, Sent{ChatID: chatID, Text: text, Opts: opts})
	return nil
}

func (f *Fake) GroupMetadata(_ context.Context, chatID string) (*transport.GroupMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.GroupCalls++
	meta, ok := f.groups[chatID]
	if !ok {
		return nil, fmt.Errorf("group %s not found", chatID)
	}
	return meta, nil
}

func (f *Fake) Lookup(_ context.Context, id string) ([]transport.LookupResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.LookupCalls++
	return f.lookups[id], nil
}

func (f *Fake) Self() transport.Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.self
}

func (f *Fake) DownloadMedia(_ context.Context, _ *transport.Message) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.media == nil {
		return nil, fmt.Errorf("no media")
	}
	return f.media, nil
}

func (f *Fake) SendMedia(_ context.Context, chatID string, media transport.OutboundMedia, opts transport.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return f.SendErr
	}
	f.sentMedia = append(f.sentMedia, SentMedia{ChatID: chatID, Media: media, Opts: opts})
	return nil
}

// Sent returns a copy of the recorded text sends.
func (f *Fake) Sent() []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Sent(nil), f.sent...)
}

// SentMedia returns a copy of the recorded media sends.
func (f *Fake) SentMedia() []SentMedia {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SentMedia(nil), f.sentMedia...)
}

// Reset forgets recorded sends.
func (f *Fake) Reset() {
	f.mu.Lock()
	f.sent, f.sentMedia = nil, nil
	f.mu.Unlock()
}
