package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/wabot/internal/commands"
	"github.com/nextlevelbuilder/wabot/internal/jid"
	"github.com/nextlevelbuilder/wabot/internal/message"
	"github.com/nextlevelbuilder/wabot/internal/transport"
)

func (d *Deps) ping(ctx context.Context, req *message.Request, t transport.Transport) error {
	text := "Pong! 🏓"
	if req.Event != nil && req.Event.Timestamp > 0 {
		latency := d.now().Sub(req.Event.Time())
		if latency < 0 {
			latency = 0
		}
		text = fmt.Sprintf("Pong! 🏓 %dms", latency.Milliseconds())
	}
	return reply(ctx, t, req, text)
}

func (d *Deps) help(ctx context.Context, req *message.Request, t transport.Transport) error {
	caller := commands.CallerFrom(ctx)

	var b strings.Builder
	b.WriteString("*Commands*\n")
	for _, c := range d.Registry.List() {
		if c.OwnerOnly && !caller.Privileged {
			continue
		}
		prefix := d.UserPrefix
		if c.OwnerOnly {
			prefix = d.OwnerPrefix
		}
		b.WriteString("\n" + prefix + c.Name)
		if c.Usage != "" {
			b.WriteString(" " + c.Usage)
		}
		if c.Description != "" {
			b.WriteString(" - " + c.Description)
		}
	}
	return reply(ctx, t, req, b.String())
}

func (d *Deps) tagall(ctx context.Context, req *message.Request, t transport.Transport) error {
	if !req.IsGroup {
		return commands.Operational("This command only works in groups")
	}
	meta, err := t.GroupMetadata(ctx, req.ChatID)
	if err != nil {
		return fmt.Errorf("group metadata: %w", err)
	}
	if meta == nil || len(meta.Participants) == 0 {
		return commands.Operational("Could not read the group members")
	}

	var b strings.Builder
	if req.ArgText != "" {
		b.WriteString(req.ArgText)
	} else {
		b.WriteString("📢 Attention everyone")
	}
	b.WriteString("\n")

	mentions := make([]string, 0, len(meta.Participants))
	for _, p := range meta.Participants {
		id := p.ID
		if id == "" {
			id = p.LID
		}
		if id == "" || (d.Contacts != nil && d.Contacts.IsSelf(id)) {
			continue
		}
		mentions = append(mentions, id)
		fmt.Fprintf(&b, "\n@%s", jid.ExtractNumber(id))
	}

	return t.SendText(ctx, req.ChatID, b.String(), transport.SendOptions{Quoted: req.Event, Mentions: mentions})
}
