package builtin

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/nextlevelbuilder/wabot/internal/afk"
	"github.com/nextlevelbuilder/wabot/internal/commands"
	"github.com/nextlevelbuilder/wabot/internal/message"
	"github.com/nextlevelbuilder/wabot/internal/settings"
	"github.com/nextlevelbuilder/wabot/internal/transport"
)

const (
	defaultLogLines = 20
	maxLogLines     = 200
)

func (d *Deps) afk(ctx context.Context, req *message.Request, t transport.Transport) error {
	reason := req.ArgText
	if reason == "" {
		reason = d.DefaultReason
	}
	if err := d.Gate.SetActive(ctx, reason); err != nil {
		// In-memory state is already active; the persistence loop retries.
		slog.Warn("afk state not persisted", "error", err)
	}
	info, _ := d.Gate.Info()
	return reply(ctx, t, req, fmt.Sprintf("💤 AFK mode on\nReason: %s", info.Reason))
}

func (d *Deps) stop(ctx context.Context, req *message.Request, t transport.Transport) error {
	info, wasActive, err := d.Gate.Clear(ctx)
	if err != nil {
		slog.Warn("afk state not persisted", "error", err)
	}
	if !wasActive {
		return commands.Operational("AFK mode is not active")
	}
	return reply(ctx, t, req, fmt.Sprintf("👋 Welcome back!\nYou were away for %s\nReason: %s",
		afk.FormatDuration(info.Duration), info.Reason))
}

func (d *Deps) setbot(ctx context.Context, req *message.Request, t transport.Transport) error {
	if len(req.Args) == 0 {
		return commands.Operational("Usage: setbot public|private (now %s)", d.Settings.Mode())
	}
	mode, err := settings.ParseMode(req.Args[0])
	if err != nil {
		return commands.Operational("Unknown mode %q, use public or private", req.Args[0])
	}
	if err := d.Settings.SetMode(ctx, mode); err != nil {
		return fmt.Errorf("set mode: %w", err)
	}
	return reply(ctx, t, req, fmt.Sprintf("✅ Bot mode set to *%s*", mode))
}

func (d *Deps) stats(ctx context.Context, req *message.Request, t transport.Transport) error {
	var b strings.Builder
	b.WriteString("*Bot statistics*\n")
	fmt.Fprintf(&b, "\nUptime: %s", afk.FormatDuration(d.now().Sub(d.Started)))
	fmt.Fprintf(&b, "\nMode: %s", d.Settings.Mode())
	fmt.Fprintf(&b, "\nCommands: %d", d.Registry.Len())
	if d.Contacts != nil {
		fmt.Fprintf(&b, "\nContacts: %d", d.Contacts.Len())
	}
	if d.Limiter != nil {
		fmt.Fprintf(&b, "\nTracked senders: %d", d.Limiter.Len())
	}
	if info, ok := d.Gate.Info(); ok {
		fmt.Fprintf(&b, "\nAFK: yes, %s (%s)", afk.FormatDuration(info.Duration), info.Reason)
	} else {
		b.WriteString("\nAFK: no")
	}
	return reply(ctx, t, req, b.String())
}

func (d *Deps) logs(ctx context.Context, req *message.Request, t transport.Transport) error {
	if d.LogFile == "" {
		return commands.Operational("No log file is configured (log.file)")
	}
	n := defaultLogLines
	if len(req.Args) > 0 {
		v, err := strconv.Atoi(req.Args[0])
		if err != nil || v <= 0 {
			return commands.Operational("Line count must be a positive number")
		}
		n = min(v, maxLogLines)
	}

	lines, err := tailFile(d.LogFile, n)
	if err != nil {
		if os.IsNotExist(err) {
			return commands.Operational("Log file does not exist yet")
		}
		return fmt.Errorf("read log: %w", err)
	}
	if len(lines) == 0 {
		return reply(ctx, t, req, "Log file is empty")
	}
	return reply(ctx, t, req, "```\n"+strings.Join(lines, "\n")+"\n```")
}

// tailFile returns the last n lines of path.
func tailFile(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ring := make([]string, 0, n)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64<<10), 1<<20)
	for sc.Scan() {
		if len(ring) == n {
			ring = ring[1:]
		}
		ring = append(ring, sc.Text())
	}
	return ring, sc.Err()
}
