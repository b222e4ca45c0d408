package daemon

import (
	"fmt"
	"net"
	"os"

	"tailscale.com/tsnet"

	"github.com/gsd-build/gsd-relay/internal/config"
)

// TsnetListener exposes a listener on the tailnet so remote observers can
// reach the WebSocket endpoint without the daemon binding a public port.
type TsnetListener struct {
	server   *tsnet.Server
	listener net.Listener
}

// NewTsnetListener brings up a tsnet node per cfg and listens on its port.
// The caller owns the returned listener and must Close it.
func NewTsnetListener(cfg config.TailscaleConfig) (*TsnetListener, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("tailnet listener is not enabled")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.StateDir != "" {
		if err := os.MkdirAll(cfg.StateDir, 0700); err != nil {
			return nil, fmt.Errorf("create tsnet state directory %s: %w", cfg.StateDir, err)
		}
	}

	srv := &tsnet.Server{
		Hostname: cfg.Hostname,
		AuthKey:  cfg.AuthKey,
		Dir:      cfg.StateDir,
	}
	if cfg.ControlURL != "" {
		srv.ControlURL = cfg.ControlURL
	}

	ln, err := srv.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		_ = srv.Close()
		return nil, fmt.Errorf("tsnet listen on :%d: %w", cfg.Port, err)
	}

	return &TsnetListener{server: srv, listener: ln}, nil
}

// Accept waits for and returns the next connection.
func (t *TsnetListener) Accept() (net.Conn, error) {
	return t.listener.Accept()
}

// Addr returns the listener's network address.
func (t *TsnetListener) Addr() net.Addr {
	return t.listener.Addr()
}

// Close stops the listener and the tsnet node.
func (t *TsnetListener) Close() error {
	lnErr := t.listener.Close()
	srvErr := t.server.Close()
	if lnErr != nil {
		return fmt.Errorf("close tsnet listener: %w", lnErr)
	}
	if srvErr != nil {
		return fmt.Errorf("close tsnet server: %w", srvErr)
	}
	return nil
}
