// Package jid handles the identity handle formats WhatsApp uses to address
// users and chats ("628123@s.whatsapp.net", "1203...@g.us", "9876@lid", ...).
package jid

import (
	"strings"
)

// Known server suffixes.
const (
	ServerUser       = "s.whatsapp.net"
	ServerLegacy     = "c.us"
	ServerGroup      = "g.us"
	ServerLID        = "lid"
	ServerBroadcast  = "broadcast"
	ServerNewsletter = "newsletter"
)

// Split returns the user part and the server part of a handle.
// The device part ("628123:12@s.whatsapp.net") is dropped from the user.
func Split(id string) (user, server string) {
	id = strings.TrimSpace(id)
	user, server, _ = strings.Cut(id, "@")
	if i := strings.IndexByte(user, ':'); i >= 0 {
		user = user[:i]
	}
	return user, server
}

// ExtractNumber returns the digits of the user part of a handle.
// "628123:4@s.whatsapp.net" and "+62 812-3" both reduce to their digits;
// the device suffix is not part of the number.
func ExtractNumber(id string) string {
	user, _ := Split(id)
	var b strings.Builder
	b.Grow(len(user))
	for _, r := range user {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsGroup reports whether the handle addresses a group chat.
func IsGroup(id string) bool {
	return strings.HasSuffix(id, "@"+ServerGroup)
}

// IsLID reports whether the handle uses the linked-identity namespace.
func IsLID(id string) bool {
	return strings.HasSuffix(id, "@"+ServerLID)
}

// IsUser reports whether the handle addresses a single person.
func IsUser(id string) bool {
	_, server := Split(id)
	switch server {
	case ServerUser, ServerLegacy, ServerLID:
		return true
	}
	return false
}

// Normalize strips the device part and rewrites the legacy "c.us" server to
// "s.whatsapp.net". A bare number becomes a user handle.
func Normalize(id string) string {
	user, server := Split(id)
	if user == "" {
		return ""
	}
	switch server {
	case "", ServerLegacy:
		server = ServerUser
	}
	return user + "@" + server
}

// UserJID builds the canonical handle for a phone number.
func UserJID(number string) string {
	n := ExtractNumber(number)
	if n == "" {
		return ""
	}
	return n + "@" + ServerUser
}

// SameNumber reports whether two handles carry the same non-empty number.
func SameNumber(a, b string) bool {
	na := ExtractNumber(a)
	return na != "" && na == ExtractNumber(b)
}
