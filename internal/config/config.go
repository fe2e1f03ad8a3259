package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultRelayURL  = "http://127.0.0.1:8088"
	DefaultTypingTTL = 2000
	DefaultPageSize  = 20
)

// Config represents the global ~/.nhchat/config.toml.
type Config struct {
	DefaultProfile string `toml:"default_profile"`
	RelayURL       string `toml:"relay_url"`
	Username       string `toml:"username"`
	MarkReadRemote bool   `toml:"mark_read_remote"`
	TypingTTLMs    int    `toml:"typing_ttl_ms"`
	PageSize       int    `toml:"page_size"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		RelayURL:    DefaultRelayURL,
		TypingTTLMs: DefaultTypingTTL,
		PageSize:    DefaultPageSize,
	}
}

// TypingTTL returns the peer typing-indicator expiry.
func (c *Config) TypingTTL() time.Duration {
	if c.TypingTTLMs <= 0 {
		return DefaultTypingTTL * time.Millisecond
	}
	return time.Duration(c.TypingTTLMs) * time.Millisecond
}

// Load reads config from the given path. Returns nil config and error if file missing.
// Unset fields are filled from Default.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if cfg.RelayURL == "" {
		cfg.RelayURL = DefaultRelayURL
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	return cfg, nil
}

// LoadOrDefault is Load with a fallback to Default when the file cannot be read.
func LoadOrDefault(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		return Default()
	}
	return cfg
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
