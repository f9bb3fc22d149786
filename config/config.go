// Package config loads runtime configuration for the dispatcher daemon.
// Values come from an optional YAML file, overridden by environment
// variables, and are validated eagerly so a bad deployment fails at
// startup instead of on the first notification.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/prilive-com/despacho/tg"
)

// Config holds the full daemon configuration. Duration fields are
// strings in Go duration syntax ("5s", "1m30s") so they round-trip
// cleanly through YAML and the environment.
type Config struct {
	// Bot tokens in rotation order.
	Tokens []string `yaml:"tokens"`

	// Destination chat identifier.
	ChatID int64 `yaml:"chat_id"`

	// Bot API base URL; empty means the public API.
	APIBaseURL string `yaml:"api_base_url"`

	// Quiet period after a session opens, before the first send.
	ConnectDelay string `yaml:"connect_delay"`

	// Rendering limits.
	MaxBodyLength int    `yaml:"max_body_length"`
	PromoLine     string `yaml:"promo_line"`

	// Video fetching.
	YtDlpBinary string `yaml:"ytdlp_binary"`

	// AMQP consumer settings; URL empty means one-shot mode only.
	Queue QueueConfig `yaml:"queue"`

	LogLevel string `yaml:"log_level"`
}

// QueueConfig holds the AMQP consumer settings.
type QueueConfig struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name"`
}

// Default returns a Config with sensible defaults. Tokens and ChatID
// have no default; they must come from the file or the environment.
func Default() Config {
	return Config{
		ConnectDelay:  "5s",
		MaxBodyLength: 500,
		YtDlpBinary:   "yt-dlp",
		Queue:         QueueConfig{Name: "notifications"},
		LogLevel:      "info",
	}
}

// Load reads the YAML file at path (skipped when path is empty), applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := getEnv("DESPACHO_BOT_TOKENS", ""); v != "" {
		c.Tokens = splitTokens(v)
	}
	if v := getEnv("DESPACHO_CHAT_ID", ""); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.ChatID = id
		}
	}
	if v := getEnv("DESPACHO_API_BASE_URL", ""); v != "" {
		c.APIBaseURL = v
	}
	if v := getEnv("DESPACHO_CONNECT_DELAY", ""); v != "" {
		c.ConnectDelay = v
	}
	if v := getEnv("DESPACHO_MAX_BODY_LENGTH", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxBodyLength = n
		}
	}
	if v := getEnv("DESPACHO_PROMO_LINE", ""); v != "" {
		c.PromoLine = v
	}
	if v := getEnv("DESPACHO_YTDLP_BINARY", ""); v != "" {
		c.YtDlpBinary = v
	}
	if v := getEnv("DESPACHO_QUEUE_URL", ""); v != "" {
		c.Queue.URL = v
	}
	if v := getEnv("DESPACHO_QUEUE_NAME", ""); v != "" {
		c.Queue.Name = v
	}
	if v := getEnv("DESPACHO_LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
}

// Validate checks that the configuration can actually drive a dispatch.
func (c *Config) Validate() error {
	if len(c.Tokens) == 0 {
		return tg.NewConfigError("tokens", "at least one bot token is required")
	}
	for i, t := range c.Tokens {
		if strings.TrimSpace(t) == "" {
			return tg.NewConfigError("tokens", fmt.Sprintf("token %d is empty", i))
		}
	}
	if c.ChatID == 0 {
		return tg.NewConfigError("chat_id", "destination chat is required")
	}
	if _, err := c.ParseConnectDelay(); err != nil {
		return err
	}
	if c.MaxBodyLength <= 0 {
		return tg.NewConfigError("max_body_length", "must be positive")
	}
	if c.Queue.URL != "" && c.Queue.Name == "" {
		return tg.NewConfigError("queue.name", "required when queue.url is set")
	}
	return nil
}

// ParseConnectDelay parses the connect delay field. Empty means zero.
func (c *Config) ParseConnectDelay() (time.Duration, error) {
	s := strings.TrimSpace(c.ConnectDelay)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, tg.NewConfigError("connect_delay", fmt.Sprintf("invalid duration %q", c.ConnectDelay))
	}
	if d < 0 {
		return 0, tg.NewConfigError("connect_delay", "must be >= 0")
	}
	return d, nil
}

// SecretTokens converts the raw token strings into redacting secrets.
func (c *Config) SecretTokens() []tg.SecretToken {
	out := make([]tg.SecretToken, 0, len(c.Tokens))
	for _, t := range c.Tokens {
		out = append(out, tg.SecretToken(strings.TrimSpace(t)))
	}
	return out
}

func splitTokens(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
