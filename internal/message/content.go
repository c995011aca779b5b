package message

import "github.com/nextlevelbuilder/wabot/internal/transport"

// maxWrapDepth bounds how many ephemeral / view-once envelopes are peeled.
const maxWrapDepth = 8

// Kind tags the authoritative content shape of a message.
type Kind int

const (
	KindNone Kind = iota
	KindText
	KindExtendedText
	KindImage
	KindVideo
	KindDocument
	KindAudio
	KindSticker
)

var kindNames = [...]string{"none", "text", "extended_text", "image", "video", "document", "audio", "sticker"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// IsMedia reports whether the kind carries an attachment.
func (k Kind) IsMedia() bool { return k >= KindImage }

// Content is the decoded form of a message: exactly one shape, chosen once.
type Content struct {
	Kind     Kind
	Text     string                 // body or caption
	Media    *transport.Media       // set for media kinds
	Context  *transport.ContextInfo // reply / mention context, if any
	ViewOnce bool
}

// Unwrap peels ephemeral, view-once and document-with-caption envelopes.
// It stops after maxWrapDepth levels and reports whether any view-once
// envelope was seen.
func Unwrap(m *transport.Message) (*transport.Message, bool) {
	viewOnce := false
	for i := 0; m != nil && i < maxWrapDepth; i++ {
		var w *transport.Wrapper
		switch {
		case m.Ephemeral != nil:
			w = m.Ephemeral
		case m.ViewOnceV2Extension != nil:
			w, viewOnce = m.ViewOnceV2Extension, true
		case m.ViewOnceV2 != nil:
			w, viewOnce = m.ViewOnceV2, true
		case m.ViewOnce != nil:
			w, viewOnce = m.ViewOnce, true
		case m.DocumentWithCaption != nil:
			w = m.DocumentWithCaption
		default:
			return m, viewOnce
		}
		m = w.Message
	}
	return m, viewOnce
}

// Decode unwraps m and selects its content shape. Plain text wins over
// extended text, which wins over captioned media (image, video, document),
// which wins over caption-less media.
func Decode(m *transport.Message) Content {
	m, viewOnce := Unwrap(m)
	if m == nil {
		return Content{}
	}

	c := decodeShape(m)
	c.ViewOnce = viewOnce || (c.Media != nil && c.Media.ViewOnce)
	return c
}

func decodeShape(m *transport.Message) Content {
	switch {
	case m.Conversation != "":
		return Content{Kind: KindText, Text: m.Conversation}
	case m.ExtendedText != nil:
		return Content{Kind: KindExtendedText, Text: m.ExtendedText.Text, Context: m.ExtendedText.ContextInfo}
	case m.Image != nil:
		return media(KindImage, m.Image)
	case m.Video != nil:
		return media(KindVideo, m.Video)
	case m.Document != nil:
		return media(KindDocument, m.Document)
	case m.Audio != nil:
		return media(KindAudio, m.Audio)
	case m.Sticker != nil:
		return media(KindSticker, m.Sticker)
	}
	return Content{}
}

func media(k Kind, md *transport.Media) Content {
	c := Content{Kind: k, Media: md, Context: md.ContextInfo}
	switch k {
	case KindImage, KindVideo, KindDocument:
		c.Text = md.Caption
	}
	return c
}
