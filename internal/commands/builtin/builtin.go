// Package builtin holds the commands that ship with the bot.
package builtin

import (
	"context"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/wabot/internal/afk"
	"github.com/nextlevelbuilder/wabot/internal/commands"
	"github.com/nextlevelbuilder/wabot/internal/config"
	"github.com/nextlevelbuilder/wabot/internal/contacts"
	"github.com/nextlevelbuilder/wabot/internal/extcall"
	"github.com/nextlevelbuilder/wabot/internal/message"
	"github.com/nextlevelbuilder/wabot/internal/ratelimit"
	"github.com/nextlevelbuilder/wabot/internal/settings"
	"github.com/nextlevelbuilder/wabot/internal/transport"
)

// Deps are the services the built-in commands read and mutate.
type Deps struct {
	Registry *commands.Registry
	Gate     *afk.Gate
	Settings *settings.Manager
	Contacts *contacts.Store
	Limiter  *ratelimit.Limiter
	HTTP     *extcall.Client

	OwnerPrefix   string
	UserPrefix    string
	DefaultReason string
	LogFile       string
	TempDir       string
	AI            config.AIConfig
	Started       time.Time

	now func() time.Time
}

// Register adds every built-in command to d.Registry.
func Register(d *Deps) error {
	if d.now == nil {
		d.now = time.Now
	}
	if d.Started.IsZero() {
		d.Started = d.now()
	}
	if d.HTTP == nil {
		d.HTTP = extcall.New(d.AI.TimeoutDuration())
	}

	cmds := []commands.Command{
		{Name: "ping", Description: "Check that the bot is alive", Handler: d.ping},
		{Name: "help", Aliases: []string{"menu"}, Description: "List the commands you can use", Handler: d.help},
		{Name: "afk", Usage: "[reason]", Description: "Mark the owner as away", OwnerOnly: true, Handler: d.afk},
		{Name: "stop", Description: "End the away period", OwnerOnly: true, Handler: d.stop},
		{Name: "setbot", Usage: "public|private", Description: "Choose who may use the bot", OwnerOnly: true, Handler: d.setbot},
		{Name: "stats", Description: "Show bot statistics", OwnerOnly: true, Handler: d.stats},
		{Name: "logs", Usage: "[lines]", Description: "Show the latest log lines", OwnerOnly: true, Handler: d.logs},
		{Name: "tagall", Usage: "[message]", Description: "Mention every member of the group", Handler: d.tagall},
		{Name: "hd", Aliases: []string{"enhance", "remini"}, Description: "Enhance an image (send or reply to one)", Handler: d.hd},
		{Name: "rvo", Aliases: []string{"readviewonce"}, Description: "Re-send a view-once image or video (reply to it)", Handler: d.rvo},
		{Name: "ai", Aliases: []string{"ask"}, Usage: "<question>", Description: "Ask the AI assistant", Handler: d.ai},
	}
	for _, c := range cmds {
		if err := d.Registry.Register(c); err != nil {
			return fmt.Errorf("register %s: %w", c.Name, err)
		}
	}
	return nil
}

func reply(ctx context.Context, t transport.Transport, req *message.Request, text string) error {
	if req.Event == nil {
		return t.SendText(ctx, req.ChatID, text, transport.SendOptions{})
	}
	return transport.Reply(ctx, t, req.Event, text)
}
