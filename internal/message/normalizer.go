// Package message turns raw transport events into canonical requests.
package message

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/nextlevelbuilder/wabot/internal/jid"
	"github.com/nextlevelbuilder/wabot/internal/transport"
)

// Normalizer parses inbound events. It is immutable after construction and
// safe for concurrent use.
type Normalizer struct {
	ownerPrefix string
	userPrefix  string
	matcher     *regexp.Regexp
}

// NewNormalizer compiles a matcher for the two command prefixes.
func NewNormalizer(ownerPrefix, userPrefix string) (*Normalizer, error) {
	if ownerPrefix == "" || userPrefix == "" {
		return nil, errors.New("command prefixes must not be empty")
	}
	if ownerPrefix == userPrefix {
		return nil, fmt.Errorf("owner and user prefix are both %q", ownerPrefix)
	}

	// Longer prefix first: RE2 alternation is leftmost-first, so "!!" must
	// be tried before "!".
	first, second := ownerPrefix, userPrefix
	if len(second) > len(first) {
		first, second = second, first
	}
	re, err := regexp.Compile(`^(?:` + regexp.QuoteMeta(first) + `|` + regexp.QuoteMeta(second) + `)`)
	if err != nil {
		return nil, fmt.Errorf("compile prefix matcher: %w", err)
	}

	return &Normalizer{
		ownerPrefix: ownerPrefix,
		userPrefix:  userPrefix,
		matcher:     re,
	}, nil
}

// OwnerPrefix returns the prefix for owner commands.
func (n *Normalizer) OwnerPrefix() string { return n.ownerPrefix }

// UserPrefix returns the prefix for general commands.
func (n *Normalizer) UserPrefix() string { return n.userPrefix }

// Normalize builds the canonical request for ev. It never fails: an event
// without interpretable content yields a request with empty text and command.
func (n *Normalizer) Normalize(ev *transport.Event) Request {
	if ev == nil {
		return Request{}
	}

	content := Decode(ev.Message)
	req := Request{
		RawText:     content.Text,
		SenderID:    ev.Sender(),
		DisplayName: strings.TrimSpace(ev.PushName),
		ChatID:      ev.ChatID,
		IsGroup:     jid.IsGroup(ev.ChatID),
		FromMe:      ev.FromMe,
		Content:     content,
		Event:       ev,
	}

	if ci := content.Context; ci != nil {
		req.Mentioned = dedupe(ci.MentionedJIDs)
		if ci.QuotedMessage != nil || ci.StanzaID != "" {
			qm, _ := Unwrap(ci.QuotedMessage)
			req.Quoted = &Quoted{
				ID:       ci.StanzaID,
				SenderID: ci.Participant,
				Content:  Decode(ci.QuotedMessage),
				Message:  qm,
			}
		}
	}

	n.parseCommand(&req)
	return req
}

func (n *Normalizer) parseCommand(req *Request) {
	text := strings.TrimSpace(req.RawText)
	loc := n.matcher.FindStringIndex(text)
	if loc == nil {
		return
	}

	prefix := text[:loc[1]]
	body := strings.TrimSpace(text[loc[1]:])
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return
	}

	req.Command = strings.ToLower(fields[0])
	req.Args = fields[1:]
	req.ArgText = strings.TrimSpace(body[len(fields[0]):])
	if prefix == n.ownerPrefix {
		req.Prefix = PrefixOwner
	} else {
		req.Prefix = PrefixUser
	}
}

func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
