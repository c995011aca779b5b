package transport

import "time"

// Event is one inbound chat message as delivered by the bridge.
type Event struct {
	ID        string   `json:"id"`
	ChatID    string   `json:"chat"`
	SenderID  string   `json:"sender,omitempty"` // participant in groups; empty in direct chats
	FromMe    bool     `json:"from_me,omitempty"`
	PushName  string   `json:"push_name,omitempty"`
	Timestamp int64    `json:"timestamp,omitempty"` // unix seconds
	Message   *Message `json:"message,omitempty"`
}

// Sender returns the participant for group messages and the chat otherwise.
func (e *Event) Sender() string {
	if e.SenderID != "" {
		return e.SenderID
	}
	return e.ChatID
}

// Time returns the event timestamp, or the zero time when unset.
func (e *Event) Time() time.Time {
	if e.Timestamp == 0 {
		return time.Time{}
	}
	return time.Unix(e.Timestamp, 0)
}

// Message mirrors the content shapes a WhatsApp message can take. At most one
// content field is set; wrapper fields carry another Message inside.
type Message struct {
	Conversation string        `json:"conversation,omitempty"`
	ExtendedText *ExtendedText `json:"extendedTextMessage,omitempty"`
	Image        *Media        `json:"imageMessage,omitempty"`
	Video        *Media        `json:"videoMessage,omitempty"`
	Document     *Media        `json:"documentMessage,omitempty"`
	Audio        *Media        `json:"audioMessage,omitempty"`
	Sticker      *Media        `json:"stickerMessage,omitempty"`

	Ephemeral           *Wrapper `json:"ephemeralMessage,omitempty"`
	ViewOnce            *Wrapper `json:"viewOnceMessage,omitempty"`
	ViewOnceV2          *Wrapper `json:"viewOnceMessageV2,omitempty"`
	ViewOnceV2Extension *Wrapper `json:"viewOnceMessageV2Extension,omitempty"`
	DocumentWithCaption *Wrapper `json:"documentWithCaptionMessage,omitempty"`
}

// Wrapper is a disappearing / view-once envelope around another message.
type Wrapper struct {
	Message *Message `json:"message,omitempty"`
}

// ExtendedText is a text message with reply or mention context.
type ExtendedText struct {
	Text        string       `json:"text"`
	ContextInfo *ContextInfo `json:"contextInfo,omitempty"`
}

// Media is any attachment; Caption is empty for audio and stickers.
type Media struct {
	Caption     string       `json:"caption,omitempty"`
	Mimetype    string       `json:"mimetype,omitempty"`
	FileName    string       `json:"fileName,omitempty"`
	URL         string       `json:"url,omitempty"`
	DirectPath  string       `json:"directPath,omitempty"`
	MediaKey    string       `json:"mediaKey,omitempty"`
	FileLength  int64        `json:"fileLength,omitempty"`
	ViewOnce    bool         `json:"viewOnce,omitempty"`
	ContextInfo *ContextInfo `json:"contextInfo,omitempty"`
}

// ContextInfo links a message to the one it replies to and lists mentions.
type ContextInfo struct {
	StanzaID      string   `json:"stanzaId,omitempty"`
	Participant   string   `json:"participant,omitempty"`
	RemoteJID     string   `json:"remoteJid,omitempty"`
	QuotedMessage *Message `json:"quotedMessage,omitempty"`
	MentionedJIDs []string `json:"mentionedJid,omitempty"`
}

// Identity describes the bot's own account.
type Identity struct {
	ID   string `json:"id"`
	LID  string `json:"lid,omitempty"`
	Name string `json:"name,omitempty"`
}

// Participant is one member of a group.
type Participant struct {
	ID           string `json:"id"`
	LID          string `json:"lid,omitempty"`
	Name         string `json:"name,omitempty"`
	Notify       string `json:"notify,omitempty"`
	VerifiedName string `json:"verifiedName,omitempty"`
	Admin        string `json:"admin,omitempty"` // "admin", "superadmin" or empty
}

// DisplayName returns the best name the platform exposes for the participant.
func (p Participant) DisplayName() string {
	switch {
	case p.Name != "":
		return p.Name
	case p.Notify != "":
		return p.Notify
	default:
		return p.VerifiedName
	}
}

// GroupMetadata describes a group chat.
type GroupMetadata struct {
	ID           string        `json:"id"`
	Subject      string        `json:"subject"`
	Participants []Participant `json:"participants"`
}

// LookupResult is one canonical handle returned for a lookup.
type LookupResult struct {
	JID          string `json:"jid"`
	Exists       bool   `json:"exists"`
	Notify       string `json:"notify,omitempty"`
	VerifiedName string `json:"verifiedName,omitempty"`
}

// PublicName returns the notify name, falling back to the verified business name.
func (r LookupResult) PublicName() string {
	if r.Notify != "" {
		return r.Notify
	}
	return r.VerifiedName
}

// OutboundMedia is a media file to send.
type OutboundMedia struct {
	Path     string `json:"path"`               // local file path readable by the bridge
	MimeType string `json:"mimetype,omitempty"` // e.g. "image/jpeg"
	Caption  string `json:"caption,omitempty"`
}
