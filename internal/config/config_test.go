package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	home := t.TempDir()

	cfg, err := Load(home)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TelegramConfigured() {
		t.Error("empty config reports Telegram as configured")
	}
}

func TestLoadReadsConfigFile(t *testing.T) {
	home := t.TempDir()
	content := `{"telegram":{"bot_token":"123:abc","chat_id":-100500},"daemon":{"local_only":true,"ask_timeout_minutes":10}}`
	if err := os.WriteFile(filepath.Join(home, "config.json"), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(home)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.TelegramConfigured() {
		t.Error("Telegram not reported as configured")
	}
	if cfg.Telegram.ChatID != -100500 {
		t.Errorf("ChatID = %d", cfg.Telegram.ChatID)
	}
	if !cfg.Daemon.LocalOnly || cfg.Daemon.AskTimeoutMinutes != 10 {
		t.Errorf("daemon config = %+v", cfg.Daemon)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	home := t.TempDir()
	content := `{"telegram":{"bot_token":"file-token","chat_id":1}}`
	if err := os.WriteFile(filepath.Join(home, "config.json"), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TELEGRAM_BOT_TOKEN", "env-token")
	t.Setenv("GSD_RELAY_CHAT_ID", "42")

	cfg, err := Load(home)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.BotToken != "env-token" {
		t.Errorf("BotToken = %q, env should win", cfg.Telegram.BotToken)
	}
	if cfg.Telegram.ChatID != 42 {
		t.Errorf("ChatID = %d, env should win", cfg.Telegram.ChatID)
	}
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	home := t.TempDir()
	if err := os.WriteFile(filepath.Join(home, "config.json"), []byte("{nope"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(home); err == nil {
		t.Error("malformed config.json did not error")
	}
}

func TestTailscaleValidate(t *testing.T) {
	cfg := TailscaleConfig{Enabled: false}
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled config should validate: %v", err)
	}

	cfg = TailscaleConfig{Enabled: true, Port: DefaultTailscalePort}
	if err := cfg.Validate(); err == nil {
		t.Error("enabled config without hostname should fail validation")
	}

	cfg = TailscaleConfig{Enabled: true, Hostname: "relay", Port: DefaultTailscalePort, AuthKey: "tskey-x"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func TestLoadTailscaleConfigFromEnv(t *testing.T) {
	t.Setenv("GSD_RELAY_TS_ENABLED", "1")
	t.Setenv("GSD_RELAY_TS_HOSTNAME", "relay-box")
	t.Setenv("GSD_RELAY_TS_PORT", "9777")
	t.Setenv("GSD_RELAY_TS_AUTHKEY", "tskey-y")

	cfg := LoadTailscaleConfig("/h/.gsd-relay")
	if !cfg.Enabled || cfg.Hostname != "relay-box" || cfg.Port != 9777 || cfg.AuthKey != "tskey-y" {
		t.Errorf("cfg = %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}
