package config

import (
	"sync"
	"time"
)

// Config is the root configuration for the wabot daemon.
type Config struct {
	Owner     OwnerConfig     `json:"owner"`
	Prefixes  PrefixConfig    `json:"prefixes"`
	Mode      string          `json:"mode,omitempty"` // "public" (default) or "private"; initial value only, runtime changes live in settings
	Bridge    BridgeConfig    `json:"bridge"`
	Store     StoreConfig     `json:"store"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Dispatch  DispatchConfig  `json:"dispatch"`
	Afk       AfkConfig       `json:"afk,omitempty"`
	Janitor   JanitorConfig   `json:"janitor"`
	Log       LogConfig       `json:"log,omitempty"`
	AI        AIConfig        `json:"ai,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
	mu        sync.RWMutex
}

// OwnerConfig identifies the privileged sender.
type OwnerConfig struct {
	Number string `json:"number"`         // digits only, e.g. "628123456789"
	Name   string `json:"name,omitempty"` // shown in the away auto-reply
}

// PrefixConfig holds the two command prefixes. They must be non-empty and distinct.
type PrefixConfig struct {
	Owner string `json:"owner"` // default "&"
	User  string `json:"user"`  // default "!"
}

// BridgeConfig configures the WebSocket connection to the WhatsApp bridge.
type BridgeConfig struct {
	URL            string  `json:"url"`                       // e.g. "ws://127.0.0.1:3001/ws"
	Token          string  `json:"-"`                         // from env WABOT_BRIDGE_TOKEN only
	RequestTimeout string  `json:"request_timeout,omitempty"` // RPC timeout (default "30s", Go duration)
	SendRPS        float64 `json:"send_rps,omitempty"`        // outbound messages per second (default 2)
	SendBurst      int     `json:"send_burst,omitempty"`      // outbound burst (default 5)
}

// StoreConfig selects and configures the persistence backend.
// PostgresDSN is never read from the config file, only from env WABOT_POSTGRES_DSN.
type StoreConfig struct {
	Backend       string `json:"backend,omitempty"`        // "file" (default), "sqlite" or "postgres"
	DataDir       string `json:"data_dir,omitempty"`       // default "~/.wabot/data"
	PostgresDSN   string `json:"-"`                        // from env WABOT_POSTGRES_DSN only
	FlushInterval string `json:"flush_interval,omitempty"` // contacts/afk flush cadence (default "10s")
}

// RateLimitConfig configures the per-sender fixed window.
type RateLimitConfig struct {
	Window        string `json:"window,omitempty"`         // default "60s"
	MaxRequests   int    `json:"max_requests,omitempty"`   // default 10
	SweepInterval string `json:"sweep_interval,omitempty"` // default "10m"
}

// DispatchConfig tunes the dispatcher.
type DispatchConfig struct {
	MaxConcurrent        int  `json:"max_concurrent,omitempty"`         // in-flight events (default 32)
	NotifyInternalErrors bool `json:"notify_internal_errors,omitempty"` // send a generic notice on internal errors
}

// AfkConfig tunes the away gate.
type AfkConfig struct {
	DefaultReason string `json:"default_reason,omitempty"` // default "Away"
}

// JanitorConfig configures temp media cleanup.
type JanitorConfig struct {
	TempDir  string `json:"temp_dir,omitempty"` // default "~/.wabot/tmp"
	Schedule string `json:"schedule,omitempty"` // cron expression (default "* * * * *")
	MaxAge   string `json:"max_age,omitempty"`  // default "5m"
}

// LogConfig configures the optional log file read by the logs command.
type LogConfig struct {
	File string `json:"file,omitempty"`
}

// AIConfig configures the external chat-completion API used by the ai command.
type AIConfig struct {
	Endpoint string `json:"endpoint,omitempty"` // OpenAI-compatible base URL
	Model    string `json:"model,omitempty"`
	APIKey   string `json:"-"`                 // from env WABOT_AI_API_KEY only
	Timeout  string `json:"timeout,omitempty"` // default "30s"
}

// TelemetryConfig configures OpenTelemetry OTLP trace export.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`      // enable OTLP export (default false)
	Endpoint    string            `json:"endpoint,omitempty"`     // OTLP endpoint (e.g. "localhost:4317")
	Protocol    string            `json:"protocol,omitempty"`     // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`     // plaintext transport, for local collectors
	ServiceName string            `json:"service_name,omitempty"` // default "wabot"
	Headers     map[string]string `json:"headers,omitempty"`
}

// RequestTimeoutDuration returns the parsed bridge RPC timeout.
func (b BridgeConfig) RequestTimeoutDuration() time.Duration {
	return parseDuration(b.RequestTimeout, 30*time.Second)
}

// FlushIntervalDuration returns the parsed persistence cadence.
func (s StoreConfig) FlushIntervalDuration() time.Duration {
	return parseDuration(s.FlushInterval, 10*time.Second)
}

func (r RateLimitConfig) WindowDuration() time.Duration {
	return parseDuration(r.Window, 60*time.Second)
}

func (r RateLimitConfig) SweepIntervalDuration() time.Duration {
	return parseDuration(r.SweepInterval, 10*time.Minute)
}

func (j JanitorConfig) MaxAgeDuration() time.Duration {
	return parseDuration(j.MaxAge, 5*time.Minute)
}

func (a AIConfig) TimeoutDuration() time.Duration {
	return parseDuration(a.Timeout, 30*time.Second)
}

// parseDuration returns def for empty, invalid or non-positive values.
func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
