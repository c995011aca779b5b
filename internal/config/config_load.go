package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/adhocore/gronx"
	"github.com/titanous/json5"
)

// Store backends accepted by store.backend.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Prefixes: PrefixConfig{
			Owner: "&",
			User:  "!",
		},
		Mode: "public",
		Bridge: BridgeConfig{
			URL:            "ws://127.0.0.1:3001/ws",
			RequestTimeout: "30s",
			SendRPS:        2,
			SendBurst:      5,
		},
		Store: StoreConfig{
			Backend:       BackendFile,
			DataDir:       "~/.wabot/data",
			FlushInterval: "10s",
		},
		RateLimit: RateLimitConfig{
			Window:        "60s",
			MaxRequests:   10,
			SweepInterval: "10m",
		},
		Dispatch: DispatchConfig{
			MaxConcurrent: 32,
		},
		Afk: AfkConfig{
			DefaultReason: "Away",
		},
		Janitor: JanitorConfig{
			TempDir:  "~/.wabot/tmp",
			Schedule: "* * * * *",
			MaxAge:   "5m",
		},
		AI: AIConfig{
			Timeout: "30s",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file yields the defaults (still overlaid with env).
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = v == "true" || v == "1"
		}
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				*dst = n
			}
		}
	}

	// Legacy names from the .env files of earlier deployments.
	envStr("OWNER_NUMBER", &c.Owner.Number)
	envStr("OWNER_PREFIX", &c.Prefixes.Owner)
	envStr("USER_PREFIX", &c.Prefixes.User)

	envStr("WABOT_OWNER_NUMBER", &c.Owner.Number)
	envStr("WABOT_OWNER_NAME", &c.Owner.Name)
	envStr("WABOT_OWNER_PREFIX", &c.Prefixes.Owner)
	envStr("WABOT_USER_PREFIX", &c.Prefixes.User)
	envStr("WABOT_MODE", &c.Mode)

	// Bridge
	envStr("WABOT_BRIDGE_URL", &c.Bridge.URL)
	envStr("WABOT_BRIDGE_TOKEN", &c.Bridge.Token)

	// Store
	envStr("WABOT_STORE_BACKEND", &c.Store.Backend)
	envStr("WABOT_DATA_DIR", &c.Store.DataDir)
	envStr("WABOT_POSTGRES_DSN", &c.Store.PostgresDSN)

	// Limits
	envStr("WABOT_RATE_WINDOW", &c.RateLimit.Window)
	envInt("WABOT_RATE_MAX", &c.RateLimit.MaxRequests)
	envInt("WABOT_MAX_CONCURRENT", &c.Dispatch.MaxConcurrent)

	// Janitor & logs
	envStr("WABOT_TEMP_DIR", &c.Janitor.TempDir)
	envStr("WABOT_LOG_FILE", &c.Log.File)

	// AI
	envStr("WABOT_AI_ENDPOINT", &c.AI.Endpoint)
	envStr("WABOT_AI_MODEL", &c.AI.Model)
	envStr("WABOT_AI_API_KEY", &c.AI.APIKey)

	// Telemetry
	envStr("WABOT_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("WABOT_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("WABOT_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	envBool("WABOT_TELEMETRY_ENABLED", &c.Telemetry.Enabled)
	envBool("WABOT_TELEMETRY_INSECURE", &c.Telemetry.Insecure)

	// Infer postgres when only a DSN is given.
	if c.Store.PostgresDSN != "" && os.Getenv("WABOT_STORE_BACKEND") == "" && c.Store.Backend == BackendFile {
		c.Store.Backend = BackendPostgres
	}
}

// ApplyEnvOverrides re-applies env overrides, e.g. after Save/Load round trips
// that dropped env-only secrets.
func (c *Config) ApplyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyEnvOverrides()
}

// Validate reports the first configuration error that would make the
// daemon misbehave.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	owner, user := strings.TrimSpace(c.Prefixes.Owner), strings.TrimSpace(c.Prefixes.User)
	switch {
	case owner == "" || user == "":
		return fmt.Errorf("prefixes: owner and user prefix must be non-empty")
	case owner == user:
		return fmt.Errorf("prefixes: owner and user prefix must differ (both %q)", owner)
	}
	if c.Owner.Number != "" && strings.Trim(c.Owner.Number, "0123456789+ -") != "" {
		return fmt.Errorf("owner.number: %q is not a phone number", c.Owner.Number)
	}
	switch c.Mode {
	case "", "public", "private", "self":
	default:
		return fmt.Errorf("mode: unknown value %q", c.Mode)
	}
	switch c.Store.Backend {
	case "", BackendFile, BackendSQLite:
	case BackendPostgres:
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("store: postgres backend requires WABOT_POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("store.backend: unknown value %q", c.Store.Backend)
	}
	if c.RateLimit.MaxRequests < 0 {
		return fmt.Errorf("rate_limit.max_requests: must be positive")
	}
	for name, v := range map[string]string{
		"rate_limit.window":      c.RateLimit.Window,
		"store.flush_interval":   c.Store.FlushInterval,
		"bridge.request_timeout": c.Bridge.RequestTimeout,
		"janitor.max_age":        c.Janitor.MaxAge,
	} {
		if v == "" {
			continue
		}
		if d := parseDuration(v, 0); d == 0 {
			return fmt.Errorf("%s: %q is not a positive duration", name, v)
		}
	}
	if c.Janitor.Schedule != "" && !gronx.New().IsValid(c.Janitor.Schedule) {
		return fmt.Errorf("janitor.schedule: invalid cron expression %q", c.Janitor.Schedule)
	}
	switch c.Telemetry.Protocol {
	case "", "grpc", "http":
	default:
		return fmt.Errorf("telemetry.protocol: unknown value %q", c.Telemetry.Protocol)
	}
	return nil
}

// Save writes the config to a JSON file. Env-only secrets are never written.
func Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// DataPath returns the expanded store data directory.
func (c *Config) DataPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ExpandHome(c.Store.DataDir)
}

// TempPath returns the expanded janitor temp directory.
func (c *Config) TempPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ExpandHome(c.Janitor.TempDir)
}

// LogPath returns the expanded log file path, or "".
func (c *Config) LogPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ExpandHome(c.Log.File)
}

// OwnerNumber returns the owner number reduced to digits.
func (c *Config) OwnerNumber() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var b strings.Builder
	for _, r := range c.Owner.Number {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ExpandHome replaces leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
