package message

import (
	"github.com/nextlevelbuilder/wabot/internal/jid"
	"github.com/nextlevelbuilder/wabot/internal/transport"
)

// PrefixClass tells which configured prefix started a command.
type PrefixClass int

const (
	PrefixNone PrefixClass = iota
	PrefixOwner
	PrefixUser
)

func (p PrefixClass) String() string {
	switch p {
	case PrefixOwner:
		return "owner"
	case PrefixUser:
		return "user"
	}
	return "none"
}

// Quoted is the message a request replies to.
type Quoted struct {
	ID       string
	SenderID string
	Content  Content
	Message  *transport.Message // unwrapped quoted message, for media download
}

// Request is the canonical form of one inbound event. It is built once by
// the Normalizer and not modified afterwards.
type Request struct {
	RawText string
	Prefix  PrefixClass
	Command string // lower-cased, prefix stripped; empty when not a command
	Args    []string
	ArgText string

	SenderID    string
	DisplayName string
	ChatID      string
	IsGroup     bool
	FromMe      bool

	Content   Content
	Quoted    *Quoted
	Mentioned []string // deduplicated

	Event *transport.Event
}

// IsCmd reports whether the text started with a configured prefix and a
// command token.
func (r *Request) IsCmd() bool { return r.Command != "" }

// Mentions reports whether id (in any handle form) is mentioned.
func (r *Request) Mentions(id string) bool {
	if id == "" {
		return false
	}
	want := jid.Normalize(id)
	for _, m := range r.Mentioned {
		if m == id || jid.Normalize(m) == want {
			return true
		}
	}
	return false
}

// QuotedSender returns the sender of the quoted message, or "".
func (r *Request) QuotedSender() string {
	if r.Quoted == nil {
		return ""
	}
	return r.Quoted.SenderID
}
