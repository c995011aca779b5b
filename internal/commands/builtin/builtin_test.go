package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	"github.com/nextlevelbuilder/wabot/internal/afk"
	"github.com/nextlevelbuilder/wabot/internal/commands"
	"github.com/nextlevelbuilder/wabot/internal/config"
	"github.com/nextlevelbuilder/wabot/internal/contacts"
	"github.com/nextlevelbuilder/wabot/internal/message"
	"github.com/nextlevelbuilder/wabot/internal/ratelimit"
	"github.com/nextlevelbuilder/wabot/internal/settings"
	"github.com/nextlevelbuilder/wabot/internal/store/file"
	"github.com/nextlevelbuilder/wabot/internal/transport"
	"github.com/nextlevelbuilder/wabot/internal/transport/transporttest"
)

const (
	ownerChat = "628111@s.whatsapp.net"
	groupChat = "1203630@g.us"
	botID     = "628999@s.whatsapp.net"
)

type fixture struct {
	deps *Deps
	tr   *transporttest.Fake
	norm *message.Normalizer
	now  time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	stores := file.NewFileStores(dir)

	contactStore := contacts.New(stores.Contacts)
	contactStore.RegisterSelf(transport.Identity{ID: botID, Name: "Bot"})

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d := &Deps{
		Registry:      commands.NewRegistry(),
		Gate:          afk.New(stores.Availability),
		Settings:      settings.NewManager(stores.Settings, settings.ModePublic),
		Contacts:      contactStore,
		Limiter:       ratelimit.New(time.Minute, 10),
		OwnerPrefix:   "&",
		UserPrefix:    "!",
		DefaultReason: afk.DefaultReason,
		TempDir:       filepath.Join(dir, "tmp"),
		Started:       now.Add(-3 * time.Hour),
		now:           func() time.Time { return now },
	}
	if err := Register(d); err != nil {
		t.Fatal(err)
	}
	norm, err := message.NewNormalizer("&", "!")
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{deps: d, tr: transporttest.New(transport.Identity{ID: botID}), norm: norm, now: now}
}

// run normalizes ev and invokes the command it names.
func (f *fixture) run(t *testing.T, ctx context.Context, ev *transport.Event) error {
	t.Helper()
	req := f.norm.Normalize(ev)
	cmd, ok := f.deps.Registry.Lookup(req.Command)
	if !ok {
		t.Fatalf("command %q not registered", req.Command)
	}
	return cmd.Handler(ctx, &req, f.tr)
}

func textEvent(chat, text string) *transport.Event {
	return &transport.Event{ID: "M1", ChatID: chat, Message: &transport.Message{Conversation: text}}
}

func lastText(t *testing.T, tr *transporttest.Fake) string {
	t.Helper()
	sent := tr.Sent()
	if len(sent) == 0 {
		t.Fatal("nothing sent")
	}
	return sent[len(sent)-1].Text
}

func wantOperational(t *testing.T, err error, contains string) {
	t.Helper()
	op, ok := commands.AsOperational(err)
	if !ok {
		t.Fatalf("err = %v, want operational", err)
	}
	if !strings.Contains(op.Message, contains) {
		t.Errorf("message = %q, want it to contain %q", op.Message, contains)
	}
}

func TestPing(t *testing.T) {
	f := newFixture(t)
	ev := textEvent(ownerChat, "!ping")
	ev.Timestamp = f.now.Add(-2 * time.Second).Unix()

	if err := f.run(t, context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	if got := lastText(t, f.tr); got != "Pong! 🏓 2000ms" {
		t.Errorf("reply = %q", got)
	}
	if f.tr.Sent()[0].Opts.Quoted != ev {
		t.Error("reply should quote the command")
	}
}

func TestHelpHidesOwnerCommands(t *testing.T) {
	f := newFixture(t)

	if err := f.run(t, context.Background(), textEvent(ownerChat, "!help")); err != nil {
		t.Fatal(err)
	}
	public := lastText(t, f.tr)
	if strings.Contains(public, "&afk") || !strings.Contains(public, "!ping") {
		t.Errorf("public help:\n%s", public)
	}

	ctx := commands.WithCaller(context.Background(), commands.Caller{Privileged: true})
	if err := f.run(t, ctx, textEvent(ownerChat, "!menu")); err != nil {
		t.Fatal(err)
	}
	owner := lastText(t, f.tr)
	if !strings.Contains(owner, "&afk [reason]") || !strings.Contains(owner, "&setbot public|private") {
		t.Errorf("owner help:\n%s", owner)
	}
}

func TestAfkAndStop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.run(t, ctx, textEvent(ownerChat, "&afk lunch break")); err != nil {
		t.Fatal(err)
	}
	info, ok := f.deps.Gate.Info()
	if !ok || info.Reason != "lunch break" {
		t.Fatalf("gate = %+v, %v", info, ok)
	}

	if err := f.run(t, ctx, textEvent(ownerChat, "&stop")); err != nil {
		t.Fatal(err)
	}
	if f.deps.Gate.IsActive() {
		t.Error("gate still active")
	}
	if got := lastText(t, f.tr); !strings.Contains(got, "Welcome back") || !strings.Contains(got, "lunch break") {
		t.Errorf("reply = %q", got)
	}

	wantOperational(t, f.run(t, ctx, textEvent(ownerChat, "&stop")), "not active")

	if err := f.run(t, ctx, textEvent(ownerChat, "&afk")); err != nil {
		t.Fatal(err)
	}
	if info, _ := f.deps.Gate.Info(); info.Reason != afk.DefaultReason {
		t.Errorf("reason = %q, want default", info.Reason)
	}
}

func TestSetbot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	wantOperational(t, f.run(t, ctx, textEvent(ownerChat, "&setbot")), "Usage")
	wantOperational(t, f.run(t, ctx, textEvent(ownerChat, "&setbot hidden")), "Unknown mode")

	if err := f.run(t, ctx, textEvent(ownerChat, "&setbot PRIVATE")); err != nil {
		t.Fatal(err)
	}
	if !f.deps.Settings.IsPrivate() {
		t.Error("mode not switched")
	}
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	f.deps.Limiter.Check("a")
	f.deps.Limiter.Check("b")

	if err := f.run(t, context.Background(), textEvent(ownerChat, "&stats")); err != nil {
		t.Fatal(err)
	}
	got := lastText(t, f.tr)
	for _, want := range []string{"Uptime: 3 hours", "Mode: public", "Tracked senders: 2", "AFK: no"} {
		if !strings.Contains(got, want) {
			t.Errorf("stats missing %q:\n%s", want, got)
		}
	}
}

func TestLogs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	wantOperational(t, f.run(t, ctx, textEvent(ownerChat, "&logs")), "No log file")

	f.deps.LogFile = filepath.Join(t.TempDir(), "wabot.log")
	wantOperational(t, f.run(t, ctx, textEvent(ownerChat, "&logs")), "does not exist")

	var b strings.Builder
	for i := 1; i <= 30; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}
	os.WriteFile(f.deps.LogFile, []byte(b.String()), 0o600)

	wantOperational(t, f.run(t, ctx, textEvent(ownerChat, "&logs zero")), "positive")

	if err := f.run(t, ctx, textEvent(ownerChat, "&logs 3")); err != nil {
		t.Fatal(err)
	}
	if got := lastText(t, f.tr); got != "```\nline 28\nline 29\nline 30\n```" {
		t.Errorf("logs = %q", got)
	}
}

func TestTagall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	wantOperational(t, f.run(t, ctx, textEvent(ownerChat, "!tagall")), "only works in groups")

	f.tr.SetGroup(&transport.GroupMetadata{
		ID:      groupChat,
		Subject: "Family",
		Participants: []transport.Participant{
			{ID: "62811@s.whatsapp.net"},
			{ID: botID},
			{LID: "555@lid"},
		},
	})
	ev := textEvent(groupChat, "!tagall dinner is ready")
	ev.SenderID = "62811@s.whatsapp.net"
	if err := f.run(t, ctx, ev); err != nil {
		t.Fatal(err)
	}

	sent := f.tr.Sent()
	last := sent[len(sent)-1]
	if len(last.Opts.Mentions) != 2 || last.Opts.Mentions[0] != "62811@s.whatsapp.net" || last.Opts.Mentions[1] != "555@lid" {
		t.Errorf("mentions = %v", last.Opts.Mentions)
	}
	if !strings.HasPrefix(last.Text, "dinner is ready") || !strings.Contains(last.Text, "@62811") || strings.Contains(last.Text, "@628999") {
		t.Errorf("text = %q", last.Text)
	}
}

func TestHDEnhancesAttachedImage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	wantOperational(t, f.run(t, ctx, textEvent(ownerChat, "!hd")), "reply to an image")

	src := image.NewRGBA(image.Rect(0, 0, 64, 32))
	for x := 0; x < 64; x++ {
		src.Set(x, x%32, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatal(err)
	}
	f.tr.SetMedia(buf.Bytes())

	ev := &transport.Event{ID: "M2", ChatID: ownerChat, Message: &transport.Message{
		Image: &transport.Media{Caption: "!hd", Mimetype: "image/png"},
	}}
	if err := f.run(t, ctx, ev); err != nil {
		t.Fatal(err)
	}

	media := f.tr.SentMedia()
	if len(media) != 1 {
		t.Fatalf("media sent = %d", len(media))
	}
	out := media[0].Media
	if filepath.Dir(out.Path) != f.deps.TempDir || out.MimeType != "image/jpeg" {
		t.Errorf("media = %+v", out)
	}
	img, err := imaging.Open(out.Path)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 256 || b.Dy() != 128 {
		t.Errorf("enhanced size = %dx%d, want 4x upscale", b.Dx(), b.Dy())
	}
}

func TestHDQuotedImageUndecodable(t *testing.T) {
	f := newFixture(t)
	f.tr.SetMedia([]byte("not an image"))

	ev := &transport.Event{ID: "M3", ChatID: ownerChat, Message: &transport.Message{
		ExtendedText: &transport.ExtendedText{
			Text: "!hd",
			ContextInfo: &transport.ContextInfo{
				StanzaID:      "Q1",
				Participant:   "62811@s.whatsapp.net",
				QuotedMessage: &transport.Message{Image: &transport.Media{Mimetype: "image/jpeg"}},
			},
		},
	}}
	wantOperational(t, f.run(t, context.Background(), ev), "could not be read")
}

func quoteEvent(id, text string, quoted *transport.Message) *transport.Event {
	return &transport.Event{ID: id, ChatID: ownerChat, Message: &transport.Message{
		ExtendedText: &transport.ExtendedText{
			Text: text,
			ContextInfo: &transport.ContextInfo{
				StanzaID:      "Q" + id,
				Participant:   "62811@s.whatsapp.net",
				QuotedMessage: quoted,
			},
		},
	}}
}

func TestRvoResendsViewOnceMedia(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	wantOperational(t, f.run(t, ctx, textEvent(ownerChat, "!rvo")), "Reply to a view-once")
	wantOperational(t, f.run(t, ctx, quoteEvent("M4", "!rvo", &transport.Message{Conversation: "hi"})), "images and videos")

	payload := []byte("secret video bytes")
	f.tr.SetMedia(payload)
	ev := quoteEvent("M5", "!readviewonce", &transport.Message{
		ViewOnceV2: &transport.Wrapper{Message: &transport.Message{
			Video: &transport.Media{Caption: "look", Mimetype: "video/mp4", ViewOnce: true},
		}},
	})
	if err := f.run(t, ctx, ev); err != nil {
		t.Fatal(err)
	}

	media := f.tr.SentMedia()
	if len(media) != 1 {
		t.Fatalf("media sent = %d", len(media))
	}
	out := media[0]
	if out.ChatID != ownerChat || out.Media.MimeType != "video/mp4" || out.Media.Caption != "look" {
		t.Errorf("sent = %+v", out)
	}
	if filepath.Dir(out.Media.Path) != f.deps.TempDir || filepath.Ext(out.Media.Path) != ".mp4" {
		t.Errorf("path = %q", out.Media.Path)
	}
	got, err := os.ReadFile(out.Media.Path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("file content = %q", got)
	}
	if out.Opts.Quoted != ev {
		t.Error("re-sent media should quote the command message")
	}
}

func TestRvoDownloadFailure(t *testing.T) {
	f := newFixture(t)
	ev := quoteEvent("M6", "!rvo", &transport.Message{Image: &transport.Media{Mimetype: "image/jpeg"}})
	err := f.run(t, context.Background(), ev)
	if err == nil {
		t.Fatal("expected an error when the media cannot be fetched")
	}
	if _, ok := commands.AsOperational(err); ok {
		t.Errorf("download failure should be internal, got operational %v", err)
	}
	if len(f.tr.SentMedia()) != 0 {
		t.Error("nothing should be sent")
	}
}

func TestAI(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	wantOperational(t, f.run(t, ctx, textEvent(ownerChat, "!ai hello")), "not configured")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" || r.Header.Get("Authorization") != "Bearer key" {
			http.Error(w, "bad", http.StatusUnauthorized)
			return
		}
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		answer := "echo: " + req.Messages[len(req.Messages)-1].Content
		fmt.Fprintf(w, `{"choices":[{"message":{"role":"assistant","content":%q}}]}`, answer)
	}))
	defer srv.Close()

	f.deps.AI = config.AIConfig{Endpoint: srv.URL + "/v1/", APIKey: "key", Model: "m"}
	wantOperational(t, f.run(t, ctx, textEvent(ownerChat, "!ai")), "Ask a question")

	if err := f.run(t, ctx, textEvent(ownerChat, "!ask what is go")); err != nil {
		t.Fatal(err)
	}
	if got := lastText(t, f.tr); got != "echo: what is go" {
		t.Errorf("reply = %q", got)
	}

	f.deps.AI.APIKey = "wrong"
	wantOperational(t, f.run(t, ctx, textEvent(ownerChat, "!ai hi")), "credentials")
}
