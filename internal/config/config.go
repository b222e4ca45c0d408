package config

import (
	"encoding/json"
	"errors"
	"os"
	"strconv"

	"github.com/gsd-build/gsd-relay/internal/paths"
)

// Config is the top-level config.json in the relay home.
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Daemon   DaemonConfig   `json:"daemon"`
}

// TelegramConfig holds the bot credentials and target group.
type TelegramConfig struct {
	// BotToken authenticates the bot. The TELEGRAM_BOT_TOKEN environment
	// variable takes precedence so tokens can stay out of config files.
	BotToken string `json:"bot_token,omitempty"`
	// ChatID is the group (or forum supergroup) questions are posted to.
	ChatID int64 `json:"chat_id,omitempty"`
}

// DaemonConfig holds daemon-specific settings.
type DaemonConfig struct {
	// LocalOnly disables the WebSocket observer listener.
	LocalOnly bool `json:"local_only,omitempty"`
	// AskTimeoutMinutes overrides the default question timeout.
	AskTimeoutMinutes int `json:"ask_timeout_minutes,omitempty"`
}

// Load reads config.json from the relay home. A missing file yields a
// zero-value Config (all defaults); environment overrides are applied in
// both cases.
func Load(home string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(paths.ConfigPath(home))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		cfg.Telegram.BotToken = token
	}
	if chat := os.Getenv("GSD_RELAY_CHAT_ID"); chat != "" {
		if id, err := strconv.ParseInt(chat, 10, 64); err == nil {
			cfg.Telegram.ChatID = id
		}
	}

	return cfg, nil
}

// TelegramConfigured reports whether enough Telegram settings are present to
// post questions. The daemon starts without them; asks then fail with a
// handler error until the channel is configured.
func (c *Config) TelegramConfigured() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != 0
}
