package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Scheduler kinds.
const (
	SchedulerMemory  = "memory"
	SchedulerDurable = "durable"
)

// Duration is a time.Duration that reads "90s"/"1h" strings from JSON and env.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(b), err)
	}
	*d = Duration(v)
	return nil
}

// Config holds application configuration.
type Config struct {
	// CheckInDelay is how long after creation the check-in notification fires
	CheckInDelay Duration `json:"check_in_delay,omitempty" env:"AURA_CHECK_IN_DELAY"`

	// Scheduler selects the delayed-action backend: "memory" or "durable".
	// Durable jobs are persisted and survive restarts.
	Scheduler string `json:"scheduler,omitempty" env:"AURA_SCHEDULER"`

	// PollInterval is how often the durable scheduler looks for due jobs
	PollInterval Duration `json:"poll_interval,omitempty" env:"AURA_POLL_INTERVAL"`

	// ClaimTimeout is how long a claimed durable job may run before another
	// worker is allowed to claim it again
	ClaimTimeout Duration `json:"claim_timeout,omitempty" env:"AURA_CLAIM_TIMEOUT"`

	// ActionTimeout bounds a single scheduled action run
	ActionTimeout Duration `json:"action_timeout,omitempty" env:"AURA_ACTION_TIMEOUT"`

	// MaxParallelSends caps concurrent endpoint sends per check-in
	MaxParallelSends int `json:"max_parallel_sends,omitempty" env:"AURA_MAX_PARALLEL_SENDS"`

	// DatabaseURL selects PostgreSQL when set. Empty means SQLite under the base dir.
	DatabaseURL string `json:"database_url,omitempty" env:"AURA_DATABASE_URL"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use the driver default.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty" env:"AURA_DB_MAX_OPEN_CONNS"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty" env:"AURA_DB_MAX_IDLE_CONNS"`

	// HTTPAddr is the listen address for `aura serve`
	HTTPAddr string `json:"http_addr,omitempty" env:"AURA_HTTP_ADDR"`

	// JWTSecret verifies bearer tokens (HS256). Required for serve.
	JWTSecret string `json:"jwt_secret,omitempty" env:"AURA_JWT_SECRET"`

	// DiscordToken is the bot token used for discord endpoints
	DiscordToken string `json:"discord_token,omitempty" env:"AURA_DISCORD_TOKEN"`

	// DefaultOwner is the owner used by the CLI and MCP server
	DefaultOwner string `json:"default_owner,omitempty" env:"AURA_DEFAULT_OWNER"`

	// LogFile receives JSON logs in addition to stderr. Empty means stderr only.
	LogFile string `json:"log_file,omitempty" env:"AURA_LOG_FILE"`

	// LogLevel is one of DEBUG, INFO, WARN, ERROR
	LogLevel string `json:"log_level,omitempty" env:"AURA_LOG_LEVEL"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty" env:"AURA_DISABLED_TOOLS" envSeparator:","`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		CheckInDelay:     Duration(time.Hour),
		Scheduler:        SchedulerDurable,
		PollInterval:     Duration(5 * time.Second),
		ClaimTimeout:     Duration(5 * time.Minute),
		ActionTimeout:    Duration(30 * time.Second),
		MaxParallelSends: 8,
		HTTPAddr:         "127.0.0.1:8787",
		DefaultOwner:     "local",
		LogLevel:         "INFO",
	}
}

// DefaultBaseDir returns ~/.aura.
func DefaultBaseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".aura"), nil
}

// Load loads configuration from baseDir/config.json, then applies AURA_*
// environment overrides. Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.aura.
func Load(baseDir string) (*Config, error) {
	fileCfg, err := loadFileRaw(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}

	envCfg := &Config{}
	if err := env.Parse(envCfg); err != nil {
		return nil, fmt.Errorf("environment variables are invalid: %w", err)
	}

	// Apply defaults, then file, then environment
	return Merge(Merge(DefaultConfig(), fileCfg), envCfg), nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configPath, err)
	}

	return cfg, nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	return &Config{
		CheckInDelay:     pick(overlay.CheckInDelay, base.CheckInDelay),
		Scheduler:        pick(overlay.Scheduler, base.Scheduler),
		PollInterval:     pick(overlay.PollInterval, base.PollInterval),
		ClaimTimeout:     pick(overlay.ClaimTimeout, base.ClaimTimeout),
		ActionTimeout:    pick(overlay.ActionTimeout, base.ActionTimeout),
		MaxParallelSends: pick(overlay.MaxParallelSends, base.MaxParallelSends),
		DatabaseURL:      pick(overlay.DatabaseURL, base.DatabaseURL),
		DBMaxOpenConns:   pick(overlay.DBMaxOpenConns, base.DBMaxOpenConns),
		DBMaxIdleConns:   pick(overlay.DBMaxIdleConns, base.DBMaxIdleConns),
		HTTPAddr:         pick(overlay.HTTPAddr, base.HTTPAddr),
		JWTSecret:        pick(overlay.JWTSecret, base.JWTSecret),
		DiscordToken:     pick(overlay.DiscordToken, base.DiscordToken),
		DefaultOwner:     pick(overlay.DefaultOwner, base.DefaultOwner),
		LogFile:          pick(overlay.LogFile, base.LogFile),
		LogLevel:         pick(overlay.LogLevel, base.LogLevel),
		DisabledTools:    mergeStringSlice(base.DisabledTools, overlay.DisabledTools),
	}
}

// pick returns overlay if non-zero, else base.
func pick[T comparable](overlay, base T) T {
	var zero T
	if overlay != zero {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string(nil), a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}

// Validate checks values that every command depends on.
func (c *Config) Validate() error {
	durations := []struct {
		name string
		d    Duration
	}{
		{"check_in_delay", c.CheckInDelay},
		{"poll_interval", c.PollInterval},
		{"claim_timeout", c.ClaimTimeout},
		{"action_timeout", c.ActionTimeout},
	}
	for _, d := range durations {
		if d.d <= 0 {
			return fmt.Errorf("%s must be positive", d.name)
		}
	}
	switch c.Scheduler {
	case SchedulerMemory, SchedulerDurable:
	default:
		return fmt.Errorf("scheduler must be %q or %q, got %q", SchedulerMemory, SchedulerDurable, c.Scheduler)
	}
	if c.MaxParallelSends <= 0 {
		return fmt.Errorf("max_parallel_sends must be positive")
	}
	if strings.TrimSpace(c.DefaultOwner) == "" {
		return fmt.Errorf("default_owner must not be empty")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ValidateServe additionally requires the settings the HTTP server needs.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required to serve the HTTP API")
	}
	if c.HTTPAddr == "" {
		return fmt.Errorf("http_addr must not be empty")
	}
	return nil
}
