package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/gsd-build/gsd-relay/internal/paths"
)

// DefaultTailscalePort is the default port for the tsnet observer listener.
const DefaultTailscalePort = 9700

// TailscaleConfig holds configuration for serving the WebSocket observer
// over a tailnet, so phones and remote laptops can watch question traffic.
type TailscaleConfig struct {
	Enabled    bool   // Whether the tsnet listener is enabled
	Hostname   string // tsnet hostname (e.g., "gsd-relay-alice")
	Port       int    // Listener port (default 9700)
	StateDir   string // Directory for tsnet state persistence
	AuthKey    string // Tailscale auth key (loaded from env)
	ControlURL string // Control plane URL (empty = Tailscale SaaS; set for Headscale)
}

// LoadTailscaleConfig loads Tailscale configuration from environment
// variables.
//
// Environment variables:
//   - GSD_RELAY_TS_ENABLED: "true"/"1" to enable (default: false)
//   - GSD_RELAY_TS_HOSTNAME: tsnet hostname (required when enabled)
//   - GSD_RELAY_TS_PORT: listener port (default: 9700)
//   - GSD_RELAY_TS_AUTHKEY: Tailscale auth key (required when enabled)
//   - GSD_RELAY_TS_STATE_DIR: state directory (default: <home>/var/tsnet)
//   - GSD_RELAY_TS_CONTROL_URL: control plane URL (optional, for Headscale)
func LoadTailscaleConfig(home string) TailscaleConfig {
	cfg := TailscaleConfig{
		Port:     DefaultTailscalePort,
		StateDir: paths.TsnetStateDir(home),
	}

	if envBool("GSD_RELAY_TS_ENABLED") {
		cfg.Enabled = true
	}
	if h := os.Getenv("GSD_RELAY_TS_HOSTNAME"); h != "" {
		cfg.Hostname = h
	}
	if p := os.Getenv("GSD_RELAY_TS_PORT"); p != "" {
		if port, err := strconv.Atoi(p); err == nil {
			cfg.Port = port
		}
	}
	cfg.AuthKey = os.Getenv("GSD_RELAY_TS_AUTHKEY")
	if d := os.Getenv("GSD_RELAY_TS_STATE_DIR"); d != "" {
		cfg.StateDir = d
	}
	cfg.ControlURL = os.Getenv("GSD_RELAY_TS_CONTROL_URL")

	return cfg
}

// Validate checks that the configuration is usable when enabled. Returns
// nil if disabled or valid.
func (c *TailscaleConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Hostname == "" {
		return fmt.Errorf("GSD_RELAY_TS_HOSTNAME is required when the tsnet listener is enabled")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("GSD_RELAY_TS_PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.AuthKey == "" {
		return fmt.Errorf("GSD_RELAY_TS_AUTHKEY is required when the tsnet listener is enabled")
	}
	return nil
}

// envBool returns true if the env var is set to a truthy value.
func envBool(key string) bool {
	v := os.Getenv(key)
	return v == "true" || v == "1" || v == "yes"
}
