package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Security  SecurityConfig  `yaml:"security"`
	Ghost     GhostConfig     `yaml:"ghost"`
	Buffer    BufferConfig    `yaml:"buffer"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	History   HistoryConfig   `yaml:"history"`
	Limits    LimitsConfig    `yaml:"limits"`
	Retention RetentionConfig `yaml:"retention"`
	Logging   LoggingConfig   `yaml:"logging"`
	Feed      FeedConfig      `yaml:"feed"`
}

// ServerConfig holds the query API listen settings.
type ServerConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// StorageConfig holds datastore path and write retry tunables.
type StorageConfig struct {
	DBPath        string   `yaml:"db_path"`
	OpTimeout     Duration `yaml:"op_timeout"`
	RetryAttempts int      `yaml:"retry_attempts"`
	RetryBackoff  Duration `yaml:"retry_backoff"`
}

// SecurityConfig holds encryption-at-rest settings. The passphrase itself
// is supplied through the named environment variable at startup and never
// stored alongside the data.
type SecurityConfig struct {
	PassphraseEnv string `yaml:"passphrase_env"`
	// AllowPlaintext permits running without encryption; local debugging
	// only.
	AllowPlaintext bool `yaml:"allow_plaintext"`
	// APIKeys gate the query API when set; without keys the API is open
	// and meant to stay on a loopback address.
	APIKeys   []string        `yaml:"api_keys"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig bounds query API request rates per caller.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// GhostConfig holds the initial presence suppression toggles.
type GhostConfig struct {
	Enabled    bool `yaml:"enabled"`
	HideOnline bool `yaml:"hide_online"`
	HideTyping bool `yaml:"hide_typing"`
	HideRead   bool `yaml:"hide_read"`
}

// BufferConfig bounds the capture buffer.
type BufferConfig struct {
	MaxEntries int       `yaml:"max_entries"`
	MaxBytes   SizeBytes `yaml:"max_bytes"`
}

// DispatchConfig controls lane concurrency.
type DispatchConfig struct {
	Lanes     int `yaml:"lanes"`
	LaneDepth int `yaml:"lane_depth"`
}

// HistoryConfig controls edit-history backfill behavior.
type HistoryConfig struct {
	FetchRPS float64 `yaml:"fetch_rps"`
}

// LimitsConfig bounds inbound event payloads.
type LimitsConfig struct {
	MaxTextBytes     SizeBytes `yaml:"max_text_bytes"`
	MaxEnvelopeBytes SizeBytes `yaml:"max_envelope_bytes"`
	MaxBatchSize     int       `yaml:"max_batch_size"`
}

// RetentionConfig holds configuration for the automatic purge runner.
type RetentionConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Cron      string   `yaml:"cron"`
	Period    Duration `yaml:"period"`
	BatchSize int      `yaml:"batch_size"`
	DryRun    bool     `yaml:"dry_run"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// FeedConfig names the update feed source. "stdin" (default) consumes
// newline-delimited updates from standard input; anything else is a path.
type FeedConfig struct {
	Source         string    `yaml:"source"`
	MaxUpdateBytes SizeBytes `yaml:"max_update_bytes"`
}

// Addr returns host:port for the query API server.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = "127.0.0.1"
	}
	p := c.Server.Port
	if p == 0 {
		p = 8090
	}
	return fmt.Sprintf("%s:%d", addr, p)
}

// SizeBytes represents a number of bytes, unmarshaled from human-friendly
// strings like "64MB" or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = 0
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*s = 0
		return nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		*s = SizeBytes(v)
		return nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*s = SizeBytes(i)
		return nil
	}
	return fmt.Errorf("invalid size value: %q", node.Value)
}

func (s SizeBytes) Int64() int64 { return int64(s) }
func (s SizeBytes) Int() int     { return int(s) }

// Duration is a wrapper around time.Duration that supports YAML parsing
// from strings like "100ms" or plain numbers (interpreted as seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = Duration(0)
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = Duration(0)
		return nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		*d = Duration(td)
		return nil
	}
	// allow numeric seconds
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(f * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration value: %q", node.Value)
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }
