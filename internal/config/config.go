// Package config provides configuration management for readwise-mcp.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	// DefaultPort is the default HTTP port for the MCP server.
	DefaultPort = 3000

	// DefaultBaseURL is the default Readwise API base URL.
	DefaultBaseURL = "https://readwise.io"

	// DefaultRequestTimeout is the per-call timeout for remote Readwise requests.
	DefaultRequestTimeout = 10 * time.Second

	// DefaultMaxRetries is the number of automatic retries after a failed
	// remote request (4 total attempts including the first).
	DefaultMaxRetries = 3

	// DefaultRetryDelay is the fixed delay between remote request retries.
	DefaultRetryDelay = 5 * time.Second

	// DefaultStreamDelay is the pacing delay between streamed result messages.
	DefaultStreamDelay = 100 * time.Millisecond
)

// Config holds the application configuration.
// It is constructed once at startup and read-only thereafter, so a single
// instance is safe to share across concurrent requests.
type Config struct {
	// AccessToken is the Readwise API credential. Required.
	AccessToken string `toml:"access_token"`

	// Port is the HTTP listen port.
	Port int `toml:"port"`

	// BaseURL is the Readwise API base URL.
	BaseURL string `toml:"base_url"`

	// Debug enables debug-level logging. No effect on protocol behavior.
	Debug bool `toml:"debug"`

	// MaxRetries is the number of automatic retries for remote calls.
	MaxRetries int `toml:"max_retries"`

	// RequestTimeout bounds each remote HTTP call.
	RequestTimeout time.Duration `toml:"-"`

	// RetryDelay is the fixed delay between retries.
	RetryDelay time.Duration `toml:"-"`

	// StreamDelay paces streamed result messages. Tests set it to zero.
	StreamDelay time.Duration `toml:"-"`

	// Duration tunables as they appear in the settings file, in milliseconds.
	RequestTimeoutMS int64 `toml:"request_timeout_ms"`
	RetryDelayMS     int64 `toml:"retry_delay_ms"`
	StreamDelayMS    int64 `toml:"stream_delay_ms"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Port:           DefaultPort,
		BaseURL:        DefaultBaseURL,
		RequestTimeout: DefaultRequestTimeout,
		MaxRetries:     DefaultMaxRetries,
		RetryDelay:     DefaultRetryDelay,
		StreamDelay:    DefaultStreamDelay,
	}
}

// Load builds the configuration: defaults, then the optional TOML settings
// file at path (skipped when path is empty or the file does not exist), then
// environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("decode settings file %s: %w", path, err)
			}
		}
		if cfg.RequestTimeoutMS > 0 {
			cfg.RequestTimeout = time.Duration(cfg.RequestTimeoutMS) * time.Millisecond
		}
		if cfg.RetryDelayMS > 0 {
			cfg.RetryDelay = time.Duration(cfg.RetryDelayMS) * time.Millisecond
		}
		if cfg.StreamDelayMS > 0 {
			cfg.StreamDelay = time.Duration(cfg.StreamDelayMS) * time.Millisecond
		}
	}

	cfg.applyEnv()

	return cfg, nil
}

// applyEnv overlays environment variables onto the config.
func (c *Config) applyEnv() {
	if v := os.Getenv("ACCESS_TOKEN"); v != "" {
		c.AccessToken = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			c.Port = p
		}
	}
	if v := os.Getenv("BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("DEBUG"); v == "1" || v == "true" {
		c.Debug = true
	}
	if v := os.Getenv("NODE_ENV"); v == "development" {
		c.Debug = true
	}
}

// Validate checks that required settings are present.
func (c *Config) Validate() error {
	if c.AccessToken == "" {
		return fmt.Errorf("ACCESS_TOKEN is required")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("BASE_URL must not be empty")
	}
	return nil
}
