// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultUserAgent identifies clue fetches as a regular desktop browser.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Game     GameConfig     `mapstructure:"game"`
	Scraper  ScraperConfig  `mapstructure:"scraper"`
	Database DatabaseConfig `mapstructure:"database"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// GameConfig controls how the daily puzzle is resolved.
type GameConfig struct {
	// Timezone names the IANA location whose calendar defines "today".
	Timezone string `mapstructure:"timezone"`
}

// ScraperConfig configures clue fetching.
type ScraperConfig struct {
	UserAgent           string          `mapstructure:"user_agent"`
	FetchTimeoutSeconds int             `mapstructure:"fetch_timeout_seconds"`
	// ClueTimeoutSeconds bounds one clue across every attempt, render and
	// backoff. Zero derives it from the other scraper settings.
	ClueTimeoutSeconds  int             `mapstructure:"clue_timeout_seconds"`
	Headless            HeadlessConfig  `mapstructure:"headless"`
	RateLimit           RateLimitConfig `mapstructure:"rate_limit"`
	Retry               RetryConfig     `mapstructure:"retry"`
}

// HeadlessConfig configures the optional browser-rendered fallback fetcher.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
}

// RateLimitConfig configures per-host fetch throttling.
type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

// RetryConfig controls re-attempts of transient fetch failures. One
// attempt disables retries.
type RetryConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
	BaseDelayMS int `mapstructure:"base_delay_ms"`
	MaxDelayMS  int `mapstructure:"max_delay_ms"`
}

// DatabaseConfig controls access to the Postgres catalog.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	EntriesTable    string        `mapstructure:"entries_table"`
	SourcesTable    string        `mapstructure:"sources_table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// CatalogConfig configures the in-memory catalog used when no DSN is set.
type CatalogConfig struct {
	FixtureFile string `mapstructure:"fixture_file"`
}

// ArchiveConfig selects where built daily payloads are archived.
type ArchiveConfig struct {
	Backend string `mapstructure:"backend"`
	Bucket  string `mapstructure:"bucket"`
	BaseDir string `mapstructure:"base_dir"`
	Prefix  string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for puzzle notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// TracingConfig controls OpenTelemetry trace export.
type TracingConfig struct {
	Enabled     bool              `mapstructure:"enabled"`
	Endpoint    string            `mapstructure:"endpoint"`
	Headers     map[string]string `mapstructure:"headers"`
	SampleRatio float64           `mapstructure:"sample_ratio"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("REVIEWDLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("server.port", "REVIEWDLE_SERVER_PORT", "PORT"); err != nil {
		return Config{}, fmt.Errorf("bind port env: %w", err)
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("game.timezone", "UTC")
	v.SetDefault("scraper.user_agent", DefaultUserAgent)
	v.SetDefault("scraper.fetch_timeout_seconds", 10)
	v.SetDefault("scraper.headless.enabled", false)
	v.SetDefault("scraper.headless.max_parallel", 1)
	v.SetDefault("scraper.headless.nav_timeout_seconds", 25)
	v.SetDefault("scraper.rate_limit.enabled", true)
	v.SetDefault("scraper.rate_limit.rps", 2.0)
	v.SetDefault("scraper.rate_limit.burst", 6)
	v.SetDefault("scraper.retry.max_attempts", 2)
	v.SetDefault("scraper.retry.base_delay_ms", 250)
	v.SetDefault("scraper.retry.max_delay_ms", 2000)
	v.SetDefault("database.entries_table", "games")
	v.SetDefault("database.sources_table", "game_reviews")
	v.SetDefault("archive.backend", "none")
	v.SetDefault("archive.prefix", "daily")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Scraper.FetchTimeoutSeconds <= 0 {
		return fmt.Errorf("scraper.fetch_timeout_seconds must be > 0")
	}
	if c.Scraper.Headless.Enabled && c.Scraper.Headless.MaxParallel <= 0 {
		return fmt.Errorf("scraper.headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Scraper.Retry.MaxAttempts < 0 {
		return fmt.Errorf("scraper.retry.max_attempts must be >= 0")
	}
	if c.Scraper.ClueTimeoutSeconds < 0 {
		return fmt.Errorf("scraper.clue_timeout_seconds must be >= 0")
	}
	if c.ClueTimeout() <= c.FetchTimeout() {
		return fmt.Errorf("scraper.clue_timeout_seconds must exceed scraper.fetch_timeout_seconds")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("game.timezone: %w", err)
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing.endpoint must be set when tracing is enabled")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be within [0, 1]")
	}
	switch c.Archive.Backend {
	case "", "none", "memory":
	case "local":
		if c.Archive.BaseDir == "" {
			return fmt.Errorf("archive.base_dir must be set for the local backend")
		}
	case "gcs":
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("archive.backend %q is not supported", c.Archive.Backend)
	}
	return nil
}

// Location resolves the configured game timezone.
func (c Config) Location() (*time.Location, error) {
	name := c.Game.Timezone
	if name == "" {
		name = "UTC"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load location %q: %w", name, err)
	}
	return loc, nil
}

// FetchTimeout is the timeout of a single static fetch attempt.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Scraper.FetchTimeoutSeconds) * time.Second
}

// NavTimeout is the timeout of a single headless render.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Scraper.Headless.NavTimeoutSec) * time.Second
}

// ClueTimeout bounds the whole acquisition of one clue. Unless set
// explicitly it covers every attempt (static fetch plus headless render when
// enabled), the backoff between attempts and one second of slack.
func (c Config) ClueTimeout() time.Duration {
	if c.Scraper.ClueTimeoutSeconds > 0 {
		return time.Duration(c.Scraper.ClueTimeoutSeconds) * time.Second
	}
	attempts := c.Scraper.Retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	perAttempt := c.FetchTimeout()
	if c.Scraper.Headless.Enabled {
		perAttempt += c.NavTimeout()
	}
	backoff := time.Duration(c.Scraper.Retry.MaxDelayMS) * time.Millisecond
	return time.Duration(attempts)*perAttempt + time.Duration(attempts-1)*backoff + time.Second
}

// RequestTimeout bounds each inbound HTTP request.
func (c Config) RequestTimeout() time.Duration {
	if c.Server.RequestTimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}
