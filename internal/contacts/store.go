// Package contacts keeps the identity store: which display name belongs to
// which WhatsApp handle, with LID / phone-number aliases kept in step.
package contacts

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nextlevelbuilder/wabot/internal/jid"
	"github.com/nextlevelbuilder/wabot/internal/store"
	"github.com/nextlevelbuilder/wabot/internal/transport"
)

const (
	// DefaultFlushInterval is how often a dirty store is written out.
	DefaultFlushInterval = 10 * time.Second

	// lookupTTL suppresses repeated transport lookups for the same handle.
	lookupTTL = 10 * time.Minute
)

// Resolver is the part of the transport the store calls back into.
type Resolver interface {
	Lookup(ctx context.Context, id string) ([]transport.LookupResult, error)
	GroupMetadata(ctx context.Context, chatID string) (*transport.GroupMetadata, error)
}

// CaptureOptions tunes CaptureContact.
type CaptureOptions struct {
	// AdditionalIDs are other handles of the same person; they get the same
	// name and are linked to the primary handle.
	AdditionalIDs []string

	// SkipLookup disables transport lookups for this capture.
	SkipLookup bool
}

// ResolveHints are caller-supplied fallbacks for ResolveName.
type ResolveHints struct {
	PushName string // name carried by the message itself
	GroupID  string // group chat the handle was seen in
}

// Store is the in-memory identity store with periodic persistence.
// Safe for concurrent use; transport calls never run under the lock.
type Store struct {
	backend store.ContactStore

	mu       sync.RWMutex
	contacts map[string]store.Contact
	byNumber map[string]map[string]struct{} // digits -> person handles
	links    map[string]map[string]struct{} // handle -> aliased handles
	lookedUp map[string]time.Time
	resolver Resolver
	self     transport.Identity
	version  uint64 // bumped on every mutation
	saved    uint64 // version covered by the last successful flush

	flushMu sync.Mutex
	lookups singleflight.Group
	now     func() time.Time
}

// New creates an empty store persisted through backend.
func New(backend store.ContactStore) *Store {
	return &Store{
		backend:  backend,
		contacts: make(map[string]store.Contact),
		byNumber: make(map[string]map[string]struct{}),
		links:    make(map[string]map[string]struct{}),
		lookedUp: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Load replaces the in-memory state with the persisted snapshot. On error the
// store is left empty and usable; the error is returned for logging.
func (s *Store) Load(ctx context.Context) error {
	loaded, err := s.backend.LoadContacts(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.contacts = make(map[string]store.Contact, len(loaded))
	s.byNumber = make(map[string]map[string]struct{})
	if err != nil {
		return fmt.Errorf("load contacts: %w", err)
	}
	for id, c := range loaded {
		if id == "" || strings.TrimSpace(c.DisplayName) == "" {
			continue
		}
		c.ID = id
		s.contacts[id] = c
		s.indexLocked(id)
	}
	return nil
}

// SetResolver attaches the transport used for lookups. nil disables lookups.
func (s *Store) SetResolver(r Resolver) {
	s.mu.Lock()
	s.resolver = r
	s.mu.Unlock()
}

// CaptureContact records name for id and every handle known to alias it.
// An empty name may still be filled from a transport lookup or from a name
// already stored for a linked handle. Persistence happens later, in Flush.
func (s *Store) CaptureContact(ctx context.Context, id, name string, opts CaptureOptions) {
	id = strings.TrimSpace(id)
	if id == "" {
		return
	}
	name = strings.TrimSpace(name)

	var results []transport.LookupResult
	if r := s.lookupTarget(id, name, opts); r != nil {
		results = s.lookup(ctx, r, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, extra := range opts.AdditionalIDs {
		if extra = strings.TrimSpace(extra); extra != "" && extra != id {
			s.linkLocked(id, extra)
		}
	}
	for _, res := range results {
		if res.JID != "" && res.JID != id && !jid.IsGroup(res.JID) {
			s.linkLocked(id, res.JID)
		}
	}

	if name == "" {
		for _, res := range results {
			if n := strings.TrimSpace(res.PublicName()); n != "" {
				name = n
				break
			}
		}
	}
	if name == "" {
		name = s.knownNameLocked(id)
	}
	if name == "" {
		return
	}
	s.applyLocked(id, name)
}

// CaptureGroup stores a group's subject under the group handle.
func (s *Store) CaptureGroup(chatID, subject string) {
	chatID = strings.TrimSpace(chatID)
	subject = strings.TrimSpace(subject)
	if !jid.IsGroup(chatID) || subject == "" {
		return
	}
	s.mu.Lock()
	s.upsertLocked(chatID, subject)
	s.mu.Unlock()
}

// RegisterSelf records the bot's own identity. Its handles are linked and
// named after the account.
func (s *Store) RegisterSelf(self transport.Identity) {
	s.mu.Lock()
	s.self = self
	if self.ID != "" && self.LID != "" {
		s.linkLocked(jid.Normalize(self.ID), self.LID)
	}
	if name := strings.TrimSpace(self.Name); name != "" && self.ID != "" {
		s.applyLocked(jid.Normalize(self.ID), name)
	}
	s.mu.Unlock()

	slog.Info("bot identity registered", "id", self.ID, "lid", self.LID, "name", self.Name)
}

// Self returns the identity passed to RegisterSelf.
func (s *Store) Self() transport.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.self
}

// IsSelf reports whether id is one of the bot's own handles.
func (s *Store) IsSelf(id string) bool {
	self := s.Self()
	return (self.ID != "" && s.SameIdentity(id, self.ID)) ||
		(self.LID != "" && s.SameIdentity(id, self.LID))
}

// SameIdentity reports whether a and b address the same person: equal after
// normalization, linked as aliases, or person handles with the same number.
func (s *Store) SameIdentity(a, b string) bool {
	na, nb := jid.Normalize(a), jid.Normalize(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}
	if !jid.IsLID(na) && !jid.IsLID(nb) && jid.IsUser(na) && jid.IsUser(nb) && jid.SameNumber(na, nb) {
		return true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, h := range s.closureLocked(na) {
		if h == nb {
			return true
		}
	}
	return false
}

// ResolveName returns the best display name for id. Order: stored name,
// stored name of any handle with the same number, push-name hint, transport
// lookup (group subject for group handles), group participant list, then
// "+<number>" or the raw handle.
func (s *Store) ResolveName(ctx context.Context, id string, hints ResolveHints) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}

	s.mu.RLock()
	name := s.storedNameLocked(id)
	if name == "" && jid.IsUser(id) && !jid.IsLID(id) {
		if c, ok := s.findByNumberLocked(jid.ExtractNumber(id)); ok {
			name = c.DisplayName
		}
	}
	r := s.resolver
	fresh := s.lookedUpRecentlyLocked(id)
	s.mu.RUnlock()
	if name != "" {
		return name
	}

	if hint := strings.TrimSpace(hints.PushName); hint != "" {
		return hint
	}

	if r != nil {
		if jid.IsGroup(id) {
			if meta := s.groupMetadata(ctx, r, id); meta != nil && meta.Subject != "" {
				s.CaptureGroup(id, meta.Subject)
				return meta.Subject
			}
		} else if !fresh {
			for _, res := range s.lookup(ctx, r, id) {
				if n := strings.TrimSpace(res.PublicName()); n != "" {
					return n
				}
			}
		}

		if jid.IsGroup(hints.GroupID) && !jid.IsGroup(id) {
			if meta := s.groupMetadata(ctx, r, hints.GroupID); meta != nil {
				for _, p := range meta.Participants {
					if !participantMatches(p, id) {
						continue
					}
					if n := strings.TrimSpace(p.DisplayName()); n != "" {
						extra := []string{}
						if p.ID != "" {
							extra = append(extra, p.ID)
						}
						if p.LID != "" {
							extra = append(extra, p.LID)
						}
						s.CaptureContact(ctx, id, n, CaptureOptions{AdditionalIDs: extra, SkipLookup: true})
						return n
					}
				}
			}
		}
	}

	if num := jid.ExtractNumber(id); num != "" && !jid.IsGroup(id) {
		return "+" + num
	}
	return id
}

// FindByNumber returns a named contact whose handle carries the digits of
// fragment. Handles are scanned in sorted order so the result is stable.
func (s *Store) FindByNumber(fragment string) (store.Contact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findByNumberLocked(jid.ExtractNumber(fragment))
}

// Contact returns the record stored under id.
func (s *Store) Contact(id string) (store.Contact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contacts[id]
	return c, ok
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.contacts)
}

// All returns every record sorted by handle.
func (s *Store) All() []store.Contact {
	s.mu.RLock()
	out := make([]store.Contact, 0, len(s.contacts))
	for _, c := range s.contacts {
		out = append(out, c)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// lookupTarget returns the resolver when a lookup for id could teach the
// store something: an unnamed person handle, or a LID not yet linked.
func (s *Store) lookupTarget(id, name string, opts CaptureOptions) Resolver {
	if opts.SkipLookup || jid.IsGroup(id) {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.resolver == nil {
		return nil
	}
	if s.lookedUpRecentlyLocked(id) {
		return nil
	}
	if jid.IsLID(id) {
		if len(s.links[id]) == 0 {
			return s.resolver
		}
		return nil
	}
	if name == "" && s.contacts[id].DisplayName == "" {
		return s.resolver
	}
	return nil
}

func (s *Store) lookedUpRecentlyLocked(id string) bool {
	at, ok := s.lookedUp[id]
	return ok && s.now().Sub(at) < lookupTTL
}

func (s *Store) lookup(ctx context.Context, r Resolver, id string) []transport.LookupResult {
	v, err, _ := s.lookups.Do("lookup:"+id, func() (any, error) {
		return r.Lookup(ctx, id)
	})

	s.mu.Lock()
	s.lookedUp[id] = s.now()
	s.mu.Unlock()

	if err != nil {
		slog.Debug("contact lookup failed", "id", id, "error", err)
		return nil
	}
	res, _ := v.([]transport.LookupResult)
	return res
}

func (s *Store) groupMetadata(ctx context.Context, r Resolver, chatID string) *transport.GroupMetadata {
	v, err, _ := s.lookups.Do("group:"+chatID, func() (any, error) {
		return r.GroupMetadata(ctx, chatID)
	})
	if err != nil {
		slog.Debug("group metadata lookup failed", "chat_id", chatID, "error", err)
		return nil
	}
	meta, _ := v.(*transport.GroupMetadata)
	return meta
}

func participantMatches(p transport.Participant, id string) bool {
	n := jid.Normalize(id)
	return jid.Normalize(p.ID) == n || (p.LID != "" && jid.Normalize(p.LID) == n)
}

// applyLocked writes name to id, its linked handles and the phone-number
// handles sharing id's number. LIDs only take part through links.
func (s *Store) applyLocked(id, name string) {
	targets := s.closureLocked(id)
	if jid.IsUser(id) && !jid.IsLID(id) {
		if num := jid.ExtractNumber(id); num != "" {
			for h := range s.byNumber[num] {
				targets = append(targets, h)
			}
		}
	}
	for _, h := range targets {
		s.upsertLocked(h, name)
	}
}

// upsertLocked stores name for id when it is new or changed.
func (s *Store) upsertLocked(id, name string) bool {
	if id == "" || name == "" {
		return false
	}
	if c, ok := s.contacts[id]; ok && c.DisplayName == name {
		return false
	}
	s.contacts[id] = store.Contact{ID: id, DisplayName: name}
	s.indexLocked(id)
	s.version++
	return true
}

// indexLocked adds id to the number index. LID digits are not a phone
// number and are never indexed.
func (s *Store) indexLocked(id string) {
	if !jid.IsUser(id) || jid.IsLID(id) {
		return
	}
	num := jid.ExtractNumber(id)
	if num == "" {
		return
	}
	set, ok := s.byNumber[num]
	if !ok {
		set = make(map[string]struct{})
		s.byNumber[num] = set
	}
	set[id] = struct{}{}
}

func (s *Store) linkLocked(a, b string) {
	add := func(from, to string) {
		set, ok := s.links[from]
		if !ok {
			set = make(map[string]struct{})
			s.links[from] = set
		}
		set[to] = struct{}{}
	}
	add(a, b)
	add(b, a)
}

// closureLocked returns id and every handle reachable through links.
func (s *Store) closureLocked(id string) []string {
	seen := map[string]struct{}{id: {}}
	out := []string{id}
	for i := 0; i < len(out); i++ {
		for next := range s.links[out[i]] {
			if _, ok := seen[next]; ok {
				continue
			}
			seen[next] = struct{}{}
			out = append(out, next)
		}
	}
	return out
}

// knownNameLocked returns a name already stored for id, one of its aliases,
// or a person handle with the same number.
func (s *Store) knownNameLocked(id string) string {
	if n := s.storedNameLocked(id); n != "" {
		return n
	}
	aliases := s.closureLocked(id)[1:]
	sort.Strings(aliases)
	for _, h := range aliases {
		if n := s.contacts[h].DisplayName; n != "" {
			return n
		}
	}
	if jid.IsUser(id) && !jid.IsLID(id) {
		if c, ok := s.findByNumberLocked(jid.ExtractNumber(id)); ok {
			return c.DisplayName
		}
	}
	return ""
}

func (s *Store) storedNameLocked(id string) string {
	if c, ok := s.contacts[id]; ok && c.DisplayName != "" {
		return c.DisplayName
	}
	if n := jid.Normalize(id); n != id {
		return s.contacts[n].DisplayName
	}
	return ""
}

func (s *Store) findByNumberLocked(num string) (store.Contact, bool) {
	if num == "" {
		return store.Contact{}, false
	}
	handles := make([]string, 0, len(s.byNumber[num]))
	for h := range s.byNumber[num] {
		handles = append(handles, h)
	}
	sort.Strings(handles)
	for _, h := range handles {
		if c := s.contacts[h]; c.DisplayName != "" {
			return c, true
		}
	}
	return store.Contact{}, false
}
