package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/wabot/internal/config"
	"github.com/nextlevelbuilder/wabot/internal/store/migrations"
	"github.com/nextlevelbuilder/wabot/internal/store/pg"
	"github.com/nextlevelbuilder/wabot/internal/store/sqlite"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor(cmd.Context())
		},
	}
}

func runDoctor(ctx context.Context) {
	fmt.Println("wabot doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	// Config
	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("  Config invalid: %s\n", err)
	}

	fmt.Println()
	fmt.Println("  Bot:")
	owner := cfg.OwnerNumber()
	if owner == "" {
		owner = "(not configured, run: wabot onboard)"
	}
	fmt.Printf("    %-12s %s\n", "Owner:", owner)
	fmt.Printf("    %-12s owner %q, user %q\n", "Prefixes:", cfg.Prefixes.Owner, cfg.Prefixes.User)
	fmt.Printf("    %-12s %s\n", "Mode:", nonEmpty(cfg.Mode, "public"))
	fmt.Printf("    %-12s %d per %s\n", "Rate limit:", cfg.RateLimit.MaxRequests, cfg.RateLimit.WindowDuration())

	// Storage
	fmt.Println()
	fmt.Println("  Storage:")
	fmt.Printf("    %-12s %s\n", "Backend:", cfg.Store.Backend)
	checkStorage(cfg)

	// Bridge
	fmt.Println()
	fmt.Println("  Bridge:")
	fmt.Printf("    %-12s %s\n", "URL:", cfg.Bridge.URL)
	checkSecret("Token", cfg.Bridge.Token)
	checkBridge(ctx, cfg.Bridge)

	// Integrations
	fmt.Println()
	fmt.Println("  Integrations:")
	if cfg.AI.Endpoint != "" {
		fmt.Printf("    %-12s %s (%s)\n", "AI:", cfg.AI.Endpoint, nonEmpty(cfg.AI.Model, "default model"))
		checkSecret("AI key", cfg.AI.APIKey)
	} else {
		fmt.Printf("    %-12s (not configured)\n", "AI:")
	}
	if cfg.Telemetry.Enabled {
		fmt.Printf("    %-12s %s via %s\n", "Telemetry:", cfg.Telemetry.Endpoint, nonEmpty(cfg.Telemetry.Protocol, "grpc"))
	} else {
		fmt.Printf("    %-12s disabled\n", "Telemetry:")
	}

	// Directories
	fmt.Println()
	checkDir("Temp dir", cfg.TempPath())
	if p := cfg.LogPath(); p != "" {
		checkDir("Log dir", filepath.Dir(p))
	}

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkStorage(cfg *config.Config) {
	var (
		db     *sql.DB
		driver string
		err    error
	)
	switch cfg.Store.Backend {
	case config.BackendSQLite:
		driver = migrations.SQLite
		db, err = sqlite.OpenDB(filepath.Join(cfg.DataPath(), sqlite.DBFile))
	case config.BackendPostgres:
		if cfg.Store.PostgresDSN == "" {
			fmt.Printf("    %-12s WABOT_POSTGRES_DSN not set\n", "Status:")
			return
		}
		driver = migrations.Postgres
		db, err = pg.OpenDB(cfg.Store.PostgresDSN)
	default:
		checkDir("Data dir", cfg.DataPath())
		return
	}
	if err != nil {
		fmt.Printf("    %-12s CONNECT FAILED (%s)\n", "Status:", err)
		return
	}
	defer db.Close()

	s, err := migrations.Check(db, driver)
	if err != nil {
		fmt.Printf("    %-12s CHECK FAILED (%s)\n", "Schema:", err)
		return
	}
	fmt.Printf("    %-12s %s\n", "Schema:", s.Describe())
}

func checkBridge(ctx context.Context, bc config.BridgeConfig) {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 5 * time.Second

	header := http.Header{}
	if bc.Token != "" {
		header.Set("Authorization", "Bearer "+bc.Token)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	conn, resp, err := dialer.DialContext(ctx, bc.URL, header)
	if err != nil {
		status := err.Error()
		if resp != nil {
			status = fmt.Sprintf("%s (HTTP %d)", status, resp.StatusCode)
		}
		fmt.Printf("    %-12s UNREACHABLE (%s)\n", "Status:", status)
		return
	}
	conn.Close()
	fmt.Printf("    %-12s reachable\n", "Status:")
}

func checkSecret(name, value string) {
	if value == "" {
		fmt.Printf("    %-12s (not set)\n", name+":")
		return
	}
	fmt.Printf("    %-12s %s\n", name+":", maskSecret(value))
}

func maskSecret(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}

func checkDir(name, path string) {
	fmt.Printf("  %s: %s", name, path)
	if _, err := os.Stat(path); err != nil {
		fmt.Println(" (NOT FOUND, created on start)")
	} else {
		fmt.Println(" (OK)")
	}
}

func nonEmpty(val, fallback string) string {
	if val == "" {
		return fallback
	}
	return val
}
