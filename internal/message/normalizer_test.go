package message

import (
	"reflect"
	"testing"

	"github.com/nextlevelbuilder/wabot/internal/transport"
)

func newTestNormalizer(t *testing.T, owner, user string) *Normalizer {
	t.Helper()
	n, err := NewNormalizer(owner, user)
	if err != nil {
		t.Fatalf("NewNormalizer: %v", err)
	}
	return n
}

func textEvent(chat, sender, text string) *transport.Event {
	return &transport.Event{
		ID:       "MSG1",
		ChatID:   chat,
		SenderID: sender,
		PushName: "Budi",
		Message:  &transport.Message{Conversation: text},
	}
}

func TestNormalizeCommands(t *testing.T) {
	n := newTestNormalizer(t, "&", "!")

	tests := []struct {
		name    string
		text    string
		command string
		prefix  PrefixClass
		args    []string
		argText string
	}{
		{"user prefix", "!ping", "ping", PrefixUser, []string{}, ""},
		{"owner prefix", "&restart now", "restart", PrefixOwner, []string{"now"}, "now"},
		{"upper case command", "!PiNg", "ping", PrefixUser, []string{}, ""},
		{"leading whitespace", "   !help me  ", "help", PrefixUser, []string{"me"}, "me"},
		{"space after prefix", "! ai hello", "ai", PrefixUser, []string{"hello"}, "hello"},
		{"multi line arg text", "!ai line one\nline two", "ai", PrefixUser, []string{"line", "one", "line", "two"}, "line one\nline two"},
		{"no prefix", "hello there", "", PrefixNone, nil, ""},
		{"prefix in the middle", "say !ping", "", PrefixNone, nil, ""},
		{"bare prefix", "!", "", PrefixNone, nil, ""},
		{"empty", "", "", PrefixNone, nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := n.Normalize(textEvent("628@s.whatsapp.net", "", tt.text))
			if req.Command != tt.command {
				t.Errorf("Command = %q, want %q", req.Command, tt.command)
			}
			if req.IsCmd() != (tt.command != "") {
				t.Errorf("IsCmd = %v", req.IsCmd())
			}
			if req.Prefix != tt.prefix {
				t.Errorf("Prefix = %v, want %v", req.Prefix, tt.prefix)
			}
			if tt.command != "" && !reflect.DeepEqual(req.Args, tt.args) {
				t.Errorf("Args = %#v, want %#v", req.Args, tt.args)
			}
			if req.ArgText != tt.argText {
				t.Errorf("ArgText = %q, want %q", req.ArgText, tt.argText)
			}
		})
	}
}

func TestNormalizeEscapesPrefixes(t *testing.T) {
	n := newTestNormalizer(t, ".*", "+")

	if req := n.Normalize(textEvent("1@s.whatsapp.net", "", ".*stats")); req.Command != "stats" || req.Prefix != PrefixOwner {
		t.Errorf("got %q/%v, want stats/owner", req.Command, req.Prefix)
	}
	// ".*" must not behave as a wildcard.
	if req := n.Normalize(textEvent("1@s.whatsapp.net", "", "xxstats")); req.IsCmd() {
		t.Errorf("unexpected command %q", req.Command)
	}
	if req := n.Normalize(textEvent("1@s.whatsapp.net", "", "+ping")); req.Command != "ping" {
		t.Errorf("Command = %q", req.Command)
	}
}

func TestNormalizeOverlappingPrefixes(t *testing.T) {
	n := newTestNormalizer(t, "!!", "!")

	req := n.Normalize(textEvent("1@s.whatsapp.net", "", "!!restart"))
	if req.Command != "restart" || req.Prefix != PrefixOwner {
		t.Errorf("got %q/%v, want restart/owner", req.Command, req.Prefix)
	}
	req = n.Normalize(textEvent("1@s.whatsapp.net", "", "!ping"))
	if req.Command != "ping" || req.Prefix != PrefixUser {
		t.Errorf("got %q/%v, want ping/user", req.Command, req.Prefix)
	}
}

func TestNewNormalizerRejectsBadPrefixes(t *testing.T) {
	if _, err := NewNormalizer("", "!"); err == nil {
		t.Error("expected error for empty prefix")
	}
	if _, err := NewNormalizer("!", "!"); err == nil {
		t.Error("expected error for identical prefixes")
	}
}

func TestNormalizeChatMetadata(t *testing.T) {
	n := newTestNormalizer(t, "&", "!")

	group := n.Normalize(textEvent("1203@g.us", "628@s.whatsapp.net", "hi"))
	if !group.IsGroup || group.SenderID != "628@s.whatsapp.net" || group.ChatID != "1203@g.us" {
		t.Errorf("group request = %+v", group)
	}
	if group.DisplayName != "Budi" {
		t.Errorf("DisplayName = %q", group.DisplayName)
	}

	direct := n.Normalize(textEvent("628@s.whatsapp.net", "", "hi"))
	if direct.IsGroup || direct.SenderID != "628@s.whatsapp.net" {
		t.Errorf("direct request = %+v", direct)
	}
}

func TestNormalizeContentSelection(t *testing.T) {
	n := newTestNormalizer(t, "&", "!")

	tests := []struct {
		name string
		msg  *transport.Message
		kind Kind
		text string
	}{
		{"conversation wins", &transport.Message{
			Conversation: "!ping",
			Image:        &transport.Media{Caption: "!hd"},
		}, KindText, "!ping"},
		{"extended text", &transport.Message{
			ExtendedText: &transport.ExtendedText{Text: "!help"},
		}, KindExtendedText, "!help"},
		{"image caption", &transport.Message{
			Image: &transport.Media{Caption: "!hd", Mimetype: "image/jpeg"},
		}, KindImage, "!hd"},
		{"video caption", &transport.Message{Video: &transport.Media{Caption: "clip"}}, KindVideo, "clip"},
		{"document caption via wrapper", &transport.Message{
			DocumentWithCaption: &transport.Wrapper{Message: &transport.Message{
				Document: &transport.Media{Caption: "report"},
			}},
		}, KindDocument, "report"},
		{"sticker has no text", &transport.Message{Sticker: &transport.Media{}}, KindSticker, ""},
		{"nothing", &transport.Message{}, KindNone, ""},
		{"nil message", nil, KindNone, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := n.Normalize(&transport.Event{ChatID: "1@s.whatsapp.net", Message: tt.msg})
			if req.Content.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", req.Content.Kind, tt.kind)
			}
			if req.RawText != tt.text {
				t.Errorf("RawText = %q, want %q", req.RawText, tt.text)
			}
		})
	}
}

func TestNormalizeNilEvent(t *testing.T) {
	n := newTestNormalizer(t, "&", "!")
	req := n.Normalize(nil)
	if req.IsCmd() || req.RawText != "" {
		t.Errorf("unexpected request %+v", req)
	}
}

func TestNormalizeQuotedUnwrapsNestedWrappers(t *testing.T) {
	n := newTestNormalizer(t, "&", "!")

	inner := &transport.Message{Image: &transport.Media{Caption: "secret", Mimetype: "image/jpeg"}}
	quoted := &transport.Message{
		Ephemeral: &transport.Wrapper{Message: &transport.Message{
			ViewOnceV2: &transport.Wrapper{Message: &transport.Message{
				ViewOnceV2Extension: &transport.Wrapper{Message: inner},
			}},
		}},
	}
	ev := &transport.Event{
		ID:       "M2",
		ChatID:   "1203@g.us",
		SenderID: "628@s.whatsapp.net",
		Message: &transport.Message{ExtendedText: &transport.ExtendedText{
			Text: "!hd",
			ContextInfo: &transport.ContextInfo{
				StanzaID:      "Q1",
				Participant:   "999@s.whatsapp.net",
				QuotedMessage: quoted,
				MentionedJIDs: []string{"1@s.whatsapp.net", "1@s.whatsapp.net", "2@lid"},
			},
		}},
	}

	req := n.Normalize(ev)
	if req.Quoted == nil {
		t.Fatal("expected quoted context")
	}
	if req.Quoted.ID != "Q1" || req.Quoted.SenderID != "999@s.whatsapp.net" || req.QuotedSender() != "999@s.whatsapp.net" {
		t.Errorf("quoted = %+v", req.Quoted)
	}
	if req.Quoted.Content.Kind != KindImage || req.Quoted.Content.Text != "secret" {
		t.Errorf("quoted content = %+v", req.Quoted.Content)
	}
	if !req.Quoted.Content.ViewOnce {
		t.Error("quoted content should be flagged view-once")
	}
	if req.Quoted.Message != inner {
		t.Error("quoted message should be the unwrapped inner message")
	}
	if len(req.Mentioned) != 2 {
		t.Errorf("Mentioned = %v, want 2 unique", req.Mentioned)
	}
	if !req.Mentions("1:5@s.whatsapp.net") || !req.Mentions("2@lid") || req.Mentions("3@lid") {
		t.Error("Mentions lookup mismatch")
	}
}

func TestUnwrapIsBounded(t *testing.T) {
	leaf := &transport.Message{Conversation: "deep"}
	m := leaf
	for i := 0; i < maxWrapDepth+2; i++ {
		m = &transport.Message{Ephemeral: &transport.Wrapper{Message: m}}
	}
	if c := Decode(m); c.Kind != KindNone {
		t.Errorf("Kind = %v, want none past the depth bound", c.Kind)
	}

	m = leaf
	for i := 0; i < maxWrapDepth-1; i++ {
		m = &transport.Message{ViewOnce: &transport.Wrapper{Message: m}}
	}
	if c := Decode(m); c.Text != "deep" || !c.ViewOnce {
		t.Errorf("Decode = %+v", c)
	}
}
