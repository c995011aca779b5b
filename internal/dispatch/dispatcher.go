// Package dispatch runs the per-event pipeline: normalize, capture contacts,
// decide privilege, apply the away gate, resolve the command, enforce rate
// and access policy, invoke the handler and report its failure.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/wabot/internal/afk"
	"github.com/nextlevelbuilder/wabot/internal/commands"
	"github.com/nextlevelbuilder/wabot/internal/contacts"
	"github.com/nextlevelbuilder/wabot/internal/jid"
	"github.com/nextlevelbuilder/wabot/internal/message"
	"github.com/nextlevelbuilder/wabot/internal/ratelimit"
	"github.com/nextlevelbuilder/wabot/internal/settings"
	"github.com/nextlevelbuilder/wabot/internal/tracing"
	"github.com/nextlevelbuilder/wabot/internal/transport"
)

// internalErrorNotice is sent for internal errors when notification is enabled.
const internalErrorNotice = "⚠️ Something went wrong while running that command."

// Services are the collaborators the dispatcher consults. All are required
// except Tracer.
type Services struct {
	Normalizer *message.Normalizer
	Registry   *commands.Registry
	Contacts   *contacts.Store
	Gate       *afk.Gate
	Limiter    *ratelimit.Limiter
	Settings   *settings.Manager
	Tracer     trace.Tracer
}

// Options are the dispatcher's own settings.
type Options struct {
	OwnerNumber          string // digits only
	OwnerName            string // used in the away auto-reply
	NotifyInternalErrors bool
}

// Dispatcher handles inbound events. Safe for concurrent use; it holds no
// lock of its own.
type Dispatcher struct {
	svc       Services
	opts      Options
	ownerJID  string
	transport transport.Transport
}

// New creates a dispatcher that replies through t.
func New(t transport.Transport, svc Services, opts Options) *Dispatcher {
	if svc.Tracer == nil {
		svc.Tracer = tracing.Tracer()
	}
	opts.OwnerNumber = jid.ExtractNumber(opts.OwnerNumber)
	d := &Dispatcher{svc: svc, opts: opts, transport: t}
	if opts.OwnerNumber != "" {
		d.ownerJID = jid.UserJID(opts.OwnerNumber)
	}
	return d
}

// Handle runs the pipeline for ev and reports where it stopped.
func (d *Dispatcher) Handle(ctx context.Context, ev *transport.Event) Outcome {
	if ev == nil || ev.ChatID == "" || isBroadcast(ev.ChatID) {
		return OutcomeIgnored
	}

	ctx, span := d.svc.Tracer.Start(ctx, "dispatch", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	// 1. normalize
	req := d.svc.Normalizer.Normalize(ev)
	span.SetAttributes(
		attribute.String("wabot.chat", req.ChatID),
		attribute.Bool("wabot.group", req.IsGroup),
	)

	outcome, cmd := d.run(ctx, &req)

	span.SetAttributes(
		attribute.String("wabot.outcome", outcome.String()),
		attribute.String("wabot.command", cmd),
	)
	if outcome == OutcomeInternalError {
		span.SetStatus(codes.Error, "handler failed")
	}
	return outcome
}

func (d *Dispatcher) run(ctx context.Context, req *message.Request) (Outcome, string) {
	span := trace.SpanFromContext(ctx)

	// 2. contact capture
	d.capture(ctx, req)

	// 3. privilege
	privileged := d.isPrivileged(req)
	span.SetAttributes(attribute.Bool("wabot.privileged", privileged))

	// 4. away gate
	if !privileged && d.svc.Gate.IsActive() && d.botDirected(req) {
		d.autoReply(ctx, req)
		return OutcomeAutoReplied, ""
	}

	// 5. command present
	if !req.IsCmd() {
		return OutcomeNotCommand, ""
	}

	// 6. command registered
	cmd, ok := d.svc.Registry.Lookup(req.Command)
	if !ok {
		slog.Debug("unknown command", "command", req.Command, "sender", req.SenderID)
		return OutcomeUnknownCommand, req.Command
	}

	// 7. rate limit
	if !privileged && !d.svc.Limiter.Check(rateKey(req.SenderID)) {
		slog.Debug("rate limited", "command", cmd.Name, "sender", req.SenderID)
		return OutcomeRateLimited, cmd.Name
	}

	// 8. access policy
	switch {
	case cmd.OwnerOnly && !privileged:
		slog.Debug("owner-only command refused", "command", cmd.Name, "sender", req.SenderID)
		return OutcomeUnauthorized, cmd.Name
	case !privileged && d.svc.Settings.IsPrivate():
		slog.Debug("private mode, command refused", "command", cmd.Name, "sender", req.SenderID)
		return OutcomeRestricted, cmd.Name
	case cmd.OwnerOnly && req.Prefix != message.PrefixOwner,
		!cmd.OwnerOnly && req.Prefix != message.PrefixUser:
		slog.Debug("prefix does not match command class", "command", cmd.Name, "prefix", req.Prefix)
		return OutcomePrefixMismatch, cmd.Name
	}

	// 9. invoke
	caller := commands.Caller{
		Privileged: privileged,
		Name: d.svc.Contacts.ResolveName(ctx, req.SenderID, contacts.ResolveHints{
			PushName: req.DisplayName,
			GroupID:  groupOf(req),
		}),
	}
	start := time.Now()
	err := d.invoke(commands.WithCaller(ctx, caller), cmd, req)

	// 10. error translation
	if err == nil {
		slog.Info("command executed", "command", cmd.Name, "sender", req.SenderID,
			"name", caller.Name, "duration_ms", time.Since(start).Milliseconds())
		return OutcomeExecuted, cmd.Name
	}

	span.RecordError(err)
	if op, ok := commands.AsOperational(err); ok {
		slog.Debug("command failed", "command", cmd.Name, "sender", req.SenderID, "error", err)
		d.reply(ctx, req, commands.FormatError(op))
		return OutcomeFailed, cmd.Name
	}

	slog.Error("command error", "command", cmd.Name, "sender", req.SenderID, "error", err)
	if d.opts.NotifyInternalErrors {
		d.reply(ctx, req, internalErrorNotice)
	}
	return OutcomeInternalError, cmd.Name
}

// invoke calls the handler, turning a panic into an error.
func (d *Dispatcher) invoke(ctx context.Context, cmd commands.Command, req *message.Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("command panicked", "command", cmd.Name, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic in %s: %v", cmd.Name, r)
		}
	}()
	return cmd.Handler(ctx, req, d.transport)
}

// capture records the sender's push name and learns the quoted sender.
// Outgoing messages carry the bot's own push name, so they are skipped.
func (d *Dispatcher) capture(ctx context.Context, req *message.Request) {
	if !req.FromMe && req.SenderID != "" && !jid.IsGroup(req.SenderID) {
		d.svc.Contacts.CaptureContact(ctx, req.SenderID, req.DisplayName, contacts.CaptureOptions{})
	}
	if qs := req.QuotedSender(); qs != "" && qs != req.SenderID && !d.isSelf(qs) {
		d.svc.Contacts.CaptureContact(ctx, qs, "", contacts.CaptureOptions{})
	}
}

// isPrivileged reports whether the sender is the bot account itself or the
// configured owner (by number, or by a linked alias of the owner handle).
func (d *Dispatcher) isPrivileged(req *message.Request) bool {
	if req.FromMe {
		return true
	}
	if d.opts.OwnerNumber == "" || req.SenderID == "" || jid.IsGroup(req.SenderID) {
		return false
	}
	if jid.ExtractNumber(req.SenderID) == d.opts.OwnerNumber {
		return true
	}
	return d.svc.Contacts.SameIdentity(req.SenderID, d.ownerJID)
}

// botDirected reports whether req addresses the bot: any direct chat, a
// mention of the bot, or a reply to one of its messages.
func (d *Dispatcher) botDirected(req *message.Request) bool {
	if !req.IsGroup {
		return true
	}
	for _, m := range req.Mentioned {
		if d.isSelf(m) {
			return true
		}
	}
	qs := req.QuotedSender()
	return qs != "" && d.isSelf(qs)
}

func (d *Dispatcher) isSelf(id string) bool {
	if d.svc.Contacts.IsSelf(id) {
		return true
	}
	self := d.transport.Self()
	return (self.ID != "" && jid.Normalize(self.ID) == jid.Normalize(id)) ||
		(self.LID != "" && jid.Normalize(self.LID) == jid.Normalize(id))
}

func (d *Dispatcher) autoReply(ctx context.Context, req *message.Request) {
	info, ok := d.svc.Gate.Info()
	if !ok {
		return
	}
	slog.Debug("away auto-reply", "chat", req.ChatID, "sender", req.SenderID)
	d.reply(ctx, req, afk.AutoReply(d.ownerName(), info))
}

func (d *Dispatcher) ownerName() string {
	if d.opts.OwnerName != "" {
		return d.opts.OwnerName
	}
	if d.ownerJID == "" {
		return ""
	}
	if c, ok := d.svc.Contacts.Contact(d.ownerJID); ok {
		return c.DisplayName
	}
	return ""
}

func (d *Dispatcher) reply(ctx context.Context, req *message.Request, text string) {
	if err := d.transport.SendText(ctx, req.ChatID, text, transport.SendOptions{Quoted: req.Event}); err != nil {
		slog.Warn("reply failed", "chat", req.ChatID, "error", err)
	}
}

func rateKey(sender string) string {
	if n := jid.Normalize(sender); n != "" {
		return n
	}
	return sender
}

func groupOf(req *message.Request) string {
	if req.IsGroup {
		return req.ChatID
	}
	return ""
}

func isBroadcast(chatID string) bool {
	_, server := jid.Split(chatID)
	return server == jid.ServerBroadcast || server == jid.ServerNewsletter ||
		strings.HasPrefix(chatID, "status@")
}
