package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/wabot/internal/afk"
	"github.com/nextlevelbuilder/wabot/internal/channels/whatsapp"
	"github.com/nextlevelbuilder/wabot/internal/commands"
	"github.com/nextlevelbuilder/wabot/internal/commands/builtin"
	"github.com/nextlevelbuilder/wabot/internal/config"
	"github.com/nextlevelbuilder/wabot/internal/contacts"
	"github.com/nextlevelbuilder/wabot/internal/dispatch"
	"github.com/nextlevelbuilder/wabot/internal/janitor"
	"github.com/nextlevelbuilder/wabot/internal/message"
	"github.com/nextlevelbuilder/wabot/internal/ratelimit"
	"github.com/nextlevelbuilder/wabot/internal/settings"
	"github.com/nextlevelbuilder/wabot/internal/tracing"
	"github.com/nextlevelbuilder/wabot/internal/transport"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Connect to the bridge and run the bot (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

// setupLogging installs the default slog logger. With log.file set, output
// goes to stdout and the file; the returned func closes the file.
func setupLogging(cfg *config.Config) (func(), error) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}

	var w io.Writer = os.Stdout
	closer := func() {}
	if path := cfg.LogPath(); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(os.Stdout, f)
		closer = func() { f.Close() }
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	})))
	return closer, nil
}

func runServe(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return err
	}
	if cfg.OwnerNumber() == "" {
		fmt.Println("No owner number configured. Run the setup wizard first:  wabot onboard")
		return fmt.Errorf("owner.number is not set")
	}

	closeLog, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("telemetry disabled", "error", err)
		shutdownTracing = func(context.Context) error { return nil }
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			slog.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	stores, err := openStores(cfg)
	if err != nil {
		slog.Error("failed to open stores", "backend", cfg.Store.Backend, "error", err)
		return err
	}
	defer stores.Close()

	book := contacts.New(stores.Contacts)
	if err := book.Load(ctx); err != nil {
		slog.Warn("starting with an empty contact book", "error", err)
	}
	gate := afk.New(stores.Availability)
	if err := gate.Load(ctx); err != nil {
		slog.Warn("starting with the away state cleared", "error", err)
	}
	mode, err := settings.ParseMode(cfg.Mode)
	if err != nil {
		return err
	}
	mgr := settings.NewManager(stores.Settings, mode)
	if err := mgr.Load(ctx); err != nil {
		slog.Warn("using default settings", "mode", mode, "error", err)
	}

	limiter := ratelimit.New(cfg.RateLimit.WindowDuration(), cfg.RateLimit.MaxRequests)

	norm, err := message.NewNormalizer(cfg.Prefixes.Owner, cfg.Prefixes.User)
	if err != nil {
		return err
	}

	registry := commands.NewRegistry()
	if err := builtin.Register(&builtin.Deps{
		Registry:      registry,
		Gate:          gate,
		Settings:      mgr,
		Contacts:      book,
		Limiter:       limiter,
		OwnerPrefix:   cfg.Prefixes.Owner,
		UserPrefix:    cfg.Prefixes.User,
		DefaultReason: cfg.Afk.DefaultReason,
		LogFile:       cfg.LogPath(),
		TempDir:       cfg.TempPath(),
		AI:            cfg.AI,
		Started:       time.Now(),
	}); err != nil {
		return fmt.Errorf("register commands: %w", err)
	}

	jan, err := janitor.New(cfg.TempPath(), cfg.Janitor.Schedule, cfg.Janitor.MaxAgeDuration())
	if err != nil {
		return err
	}

	// The bridge delivers each event on its own goroutine; sem bounds how
	// many run at once.
	var d *dispatch.Dispatcher
	sem := make(chan struct{}, max(cfg.Dispatch.MaxConcurrent, 1))
	handle := func(ctx context.Context, ev *transport.Event) {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		defer func() { <-sem }()
		d.Handle(ctx, ev)
	}

	bridge, err := whatsapp.New(whatsapp.Config{
		URL:            cfg.Bridge.URL,
		Token:          cfg.Bridge.Token,
		RequestTimeout: cfg.Bridge.RequestTimeoutDuration(),
		SendRPS:        cfg.Bridge.SendRPS,
		SendBurst:      cfg.Bridge.SendBurst,
	}, handle, whatsapp.Hooks{
		OnReady: book.RegisterSelf,
		OnGroup: book.CaptureGroup,
	})
	if err != nil {
		return err
	}
	book.SetResolver(bridge)

	d = dispatch.New(bridge, dispatch.Services{
		Normalizer: norm,
		Registry:   registry,
		Contacts:   book,
		Gate:       gate,
		Limiter:    limiter,
		Settings:   mgr,
		Tracer:     tracing.Tracer(),
	}, dispatch.Options{
		OwnerNumber:          cfg.OwnerNumber(),
		OwnerName:            cfg.Owner.Name,
		NotifyInternalErrors: cfg.Dispatch.NotifyInternalErrors,
	})

	slog.Info("wabot starting",
		"version", Version,
		"owner", cfg.OwnerNumber(),
		"mode", mgr.Mode(),
		"store", cfg.Store.Backend,
		"commands", registry.Len(),
		"contacts", book.Len(),
	)

	flush := cfg.Store.FlushIntervalDuration()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return book.Run(gctx, flush) })
	g.Go(func() error { return gate.Run(gctx, flush) })
	g.Go(func() error { return limiter.Run(gctx, cfg.RateLimit.SweepIntervalDuration()) })
	g.Go(func() error { return jan.Run(gctx) })
	if stores.SettingsPath != "" {
		g.Go(func() error {
			if err := mgr.Watch(gctx, stores.SettingsPath); err != nil {
				slog.Warn("settings file watch disabled", "error", err)
			}
			return nil
		})
	}
	g.Go(func() error { return bridge.Run(gctx) })

	err = g.Wait()
	slog.Info("wabot stopped")
	return err
}
