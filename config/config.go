// Package config loads chatrelay configuration.
// Source priority (highest to lowest):
// 1. Environment variables (GEMINI_API_KEY, CHATRELAY_LISTEN, etc.)
// 2. Config file path passed to Load
// 3. Built-in defaults
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/chatrelay/core"
)

// ProviderConfig holds credentials for a single upstream provider.
type ProviderConfig struct {
	APIKey string `yaml:"api_key"`
}

// DefaultsConfig holds the generation parameters applied when a request
// leaves them unset.
type DefaultsConfig struct {
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// Config is the complete configuration structure for chatrelay.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`

	// LogLevel: "debug" | "info" | "warn" | "error".
	LogLevel string `yaml:"log_level"`

	// Providers holds per-provider credentials keyed by provider name
	// ("gemini", "openai", "anthropic").
	Providers map[string]*ProviderConfig `yaml:"providers"`

	// Defaults are the baseline generation parameters.
	Defaults DefaultsConfig `yaml:"defaults"`

	// SessionTTL is the local session expiry horizon.
	SessionTTL time.Duration `yaml:"session_ttl"`

	// SweepInterval controls how often expired sessions are collected.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	defaults := core.DefaultSettings()
	return &Config{
		Listen:   ":8080",
		LogLevel: "info",
		Providers: map[string]*ProviderConfig{
			"gemini": {},
		},
		Defaults: DefaultsConfig{
			Model:       defaults.Model,
			Temperature: defaults.Temperature,
			MaxTokens:   defaults.MaxTokens,
		},
		SessionTTL:    core.DefaultSessionTTL,
		SweepInterval: 10 * time.Minute,
	}
}

// Load reads the config file at path (optional) and merges environment
// variable overrides. A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if cfg.Providers == nil {
		cfg.Providers = make(map[string]*ProviderConfig)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ProviderAPIKey returns the configured key for the named provider, or "".
func (c *Config) ProviderAPIKey(name string) string {
	if pc, ok := c.Providers[name]; ok {
		return pc.APIKey
	}
	return ""
}

// Settings returns the configured defaults as generation settings.
func (c *Config) Settings() core.Settings {
	return core.Settings{
		Model:       c.Defaults.Model,
		Temperature: c.Defaults.Temperature,
		MaxTokens:   c.Defaults.MaxTokens,
	}
}

func (c *Config) validate() error {
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session_ttl must be positive, got %s", c.SessionTTL)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep_interval must be positive, got %s", c.SweepInterval)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	setKey := func(provider, key string) {
		if cfg.Providers[provider] == nil {
			cfg.Providers[provider] = &ProviderConfig{}
		}
		cfg.Providers[provider].APIKey = key
	}

	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		setKey("gemini", v)
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		setKey("openai", v)
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		setKey("anthropic", v)
	}

	if v := os.Getenv("CHATRELAY_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("CHATRELAY_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CHATRELAY_MODEL"); v != "" {
		cfg.Defaults.Model = v
	}
	if v := os.Getenv("CHATRELAY_SESSION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.SessionTTL = d
		}
	}
	if v := os.Getenv("CHATRELAY_SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.SweepInterval = d
		}
	}
}
