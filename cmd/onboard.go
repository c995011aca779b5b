package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/wabot/internal/config"
)

func onboardCmd() *cobra.Command {
	var nonInteractive bool
	cmd := &cobra.Command{
		Use:   "onboard",
		Short: "Create or update config.json interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if nonInteractive || canAutoOnboard() {
				return runAutoOnboard(cfgPath)
			}
			return runOnboard(cfgPath)
		},
	}
	cmd.Flags().BoolVar(&nonInteractive, "non-interactive", false, "build the config from WABOT_* environment variables only")
	return cmd
}

// canAutoOnboard reports whether the environment already names the owner,
// which means a non-interactive setup (Docker, CI).
func canAutoOnboard() bool {
	return os.Getenv("WABOT_OWNER_NUMBER") != "" || os.Getenv("OWNER_NUMBER") != ""
}

// runAutoOnboard writes a config built from defaults and WABOT_* variables.
func runAutoOnboard(cfgPath string) error {
	fmt.Println("Auto-onboard: environment variables detected, running non-interactive setup...")

	cfg := config.Default()
	cfg.ApplyEnvOverrides()
	if cfg.OwnerNumber() == "" {
		return fmt.Errorf("auto-onboard: WABOT_OWNER_NUMBER is not set")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("auto-onboard: %w", err)
	}
	if err := config.Save(cfgPath, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Printf("  Owner:    %s\n", cfg.OwnerNumber())
	fmt.Printf("  Prefixes: owner %q, user %q\n", cfg.Prefixes.Owner, cfg.Prefixes.User)
	fmt.Printf("  Store:    %s\n", cfg.Store.Backend)
	fmt.Printf("  Config:   %s\n", cfgPath)
	return nil
}

// runOnboard asks for the settings that have no sensible default and writes
// the result. An existing config is used as the starting point.
func runOnboard(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	number := cfg.Owner.Number
	name := cfg.Owner.Name
	ownerPrefix := cfg.Prefixes.Owner
	userPrefix := cfg.Prefixes.User
	mode := cfg.Mode
	if mode == "" {
		mode = "public"
	}
	backend := cfg.Store.Backend
	bridgeURL := cfg.Bridge.URL
	writeConfig := true

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Owner phone number").
				Description("International format, digits only (e.g. 628123456789)").
				Value(&number).
				Validate(validateNumber),
			huh.NewInput().
				Title("Owner display name").
				Description("Shown in the away auto-reply").
				Value(&name),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Owner command prefix").
				Value(&ownerPrefix).
				Validate(nonBlank("owner prefix")),
			huh.NewInput().
				Title("User command prefix").
				Value(&userPrefix).
				Validate(nonBlank("user prefix")),
			huh.NewSelect[string]().
				Title("Who may use general commands?").
				Options(
					huh.NewOption("Everyone (public)", "public"),
					huh.NewOption("Only the owner (private)", "private"),
				).
				Value(&mode),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Bridge WebSocket URL").
				Value(&bridgeURL).
				Validate(validateBridgeURL),
			huh.NewSelect[string]().
				Title("Storage backend").
				Options(
					huh.NewOption("JSON files", config.BackendFile),
					huh.NewOption("SQLite", config.BackendSQLite),
					huh.NewOption("PostgreSQL (needs WABOT_POSTGRES_DSN)", config.BackendPostgres),
				).
				Value(&backend),
			huh.NewConfirm().
				Title("Write " + cfgPath + "?").
				Value(&writeConfig),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Println("Setup cancelled.")
			return nil
		}
		return err
	}
	if !writeConfig {
		fmt.Println("Nothing written.")
		return nil
	}

	cfg.Owner.Number = strings.TrimSpace(number)
	cfg.Owner.Name = strings.TrimSpace(name)
	cfg.Prefixes.Owner = strings.TrimSpace(ownerPrefix)
	cfg.Prefixes.User = strings.TrimSpace(userPrefix)
	cfg.Mode = mode
	cfg.Store.Backend = backend
	cfg.Bridge.URL = strings.TrimSpace(bridgeURL)

	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.Save(cfgPath, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Println()
	fmt.Printf("Config written to %s\n", cfgPath)
	fmt.Println("Secrets stay in the environment (or .env):")
	fmt.Println("  WABOT_BRIDGE_TOKEN   bridge bearer token")
	fmt.Println("  WABOT_POSTGRES_DSN   postgres backend")
	fmt.Println("  WABOT_AI_API_KEY     ai command")
	fmt.Println()
	fmt.Println("Start the bot with:  wabot")
	return nil
}

func validateNumber(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("owner number is required")
	}
	if strings.Trim(s, "0123456789+ -") != "" {
		return fmt.Errorf("use digits only")
	}
	return nil
}

func validateBridgeURL(s string) error {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "ws://") && !strings.HasPrefix(s, "wss://") {
		return fmt.Errorf("must start with ws:// or wss://")
	}
	return nil
}

func nonBlank(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s must not be empty", field)
		}
		return nil
	}
}
