// Package relay assembles the daemon: config, event sinks, the session
// registry and question manager, the Telegram channel, the IPC server, the
// observer endpoint, and the lifecycle that ties them together.
package relay

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gsd-build/gsd-relay/internal/config"
	"github.com/gsd-build/gsd-relay/internal/daemon"
	"github.com/gsd-build/gsd-relay/internal/daemon/eventlog"
	"github.com/gsd-build/gsd-relay/internal/daemon/rpc"
	"github.com/gsd-build/gsd-relay/internal/paths"
	"github.com/gsd-build/gsd-relay/internal/question"
	"github.com/gsd-build/gsd-relay/internal/session"
	"github.com/gsd-build/gsd-relay/internal/telegram"
	"github.com/gsd-build/gsd-relay/internal/types"
	"github.com/gsd-build/gsd-relay/internal/websocket"
)

// Run builds the daemon for the given home directory and blocks until
// shutdown. This is the body of `gsd-relay daemon run`. localOnly forces
// the observer endpoint off regardless of config.
func Run(ctx context.Context, home, version string, localOnly bool) error {
	cfg, err := config.Load(home)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := os.MkdirAll(paths.VarDir(home), 0700); err != nil {
		return fmt.Errorf("create var directory: %w", err)
	}

	log, err := eventlog.Open(paths.EventLogPath(home))
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer log.Close()

	server := daemon.NewServer(paths.SocketPath(home))

	// Sinks: the sqlite audit log always; the observer push sink joins the
	// fan-out below once the endpoint exists. State is never rebuilt from
	// these events.
	sinks := types.MultiSink{log}

	registry := session.NewRegistry(&sinks)

	var bot *telegram.Bot
	var messenger question.Messenger
	if cfg.TelegramConfigured() {
		bot, err = telegram.New(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			return fmt.Errorf("telegram setup: %w", err)
		}
		messenger = bot
		fmt.Fprintf(os.Stderr, "telegram: connected as @%s\n", bot.Username())
	} else {
		fmt.Fprintln(os.Stderr, "telegram: not configured, ask will be rejected")
	}

	var opts []question.Option
	if cfg.Daemon.AskTimeoutMinutes > 0 {
		opts = append(opts, question.WithDefaultTimeout(time.Duration(cfg.Daemon.AskTimeoutMinutes)*time.Minute))
	}
	manager := question.NewManager(messenger, registry, &sinks, opts...)

	handlers := &rpc.Handlers{
		Sessions:  registry,
		Questions: manager,
		Events:    log,
		Version:   version,
		StartedAt: time.Now(),
	}
	handlers.RegisterAll(server)

	server.SetDisconnectHook(func(clientID string) {
		registry.UnregisterClient(clientID)
	})

	var observer daemon.ObserverServer
	if !localOnly && !cfg.Daemon.LocalOnly {
		ws, err := buildObserver(home, server)
		if err != nil {
			return err
		}
		observer = ws
		sinks = append(sinks, ws)
	}

	lc := daemon.NewLifecycle(server, observer,
		paths.PIDPath(home),
		paths.LockPath(home),
		paths.PortFilePath(home),
		paths.SocketPath(home),
		version)

	if bot != nil {
		listener := telegram.NewListener(bot, manager)
		lc.AddTask(listener.Run)
	}

	return lc.Run(ctx)
}

// buildObserver creates the WebSocket endpoint, on the tailnet when tsnet
// is configured and on localhost otherwise.
func buildObserver(home string, server *daemon.Server) (*websocket.Server, error) {
	tsCfg := config.LoadTailscaleConfig(home)
	if tsCfg.Enabled {
		ln, err := daemon.NewTsnetListener(tsCfg)
		if err != nil {
			return nil, fmt.Errorf("tailnet observer: %w", err)
		}
		return websocket.NewServerWithListener(ln, tsCfg.Port, server), nil
	}

	port, err := daemon.FindAvailablePort(daemon.DefaultPortRangeMin, daemon.DefaultPortRangeMax)
	if err != nil {
		return nil, fmt.Errorf("observer port: %w", err)
	}
	return websocket.NewServer(port, server), nil
}
