package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// ObserverServer is the optional WebSocket observer endpoint. Declared as
// an interface to avoid an import cycle with the websocket package.
type ObserverServer interface {
	Start(ctx context.Context) error
	Stop() error
	Port() int
}

// BackgroundTask is a long-running goroutine tied to the daemon's lifetime,
// such as the Telegram update listener. It must return when ctx is canceled.
type BackgroundTask func(ctx context.Context) error

// Lifecycle owns daemon startup and shutdown: the flock, the PID file, the
// IPC server, the optional observer server, and signal handling.
type Lifecycle struct {
	server   *Server
	observer ObserverServer
	tasks    []BackgroundTask

	pidFile    string
	lockFile   string
	portFile   string
	socketPath string
	version    string

	lock         *FileLock
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
}

// NewLifecycle creates a lifecycle manager. Observer is optional; pass nil
// when the WebSocket endpoint is disabled.
func NewLifecycle(server *Server, observer ObserverServer, pidFile, lockFile, portFile, socketPath, version string) *Lifecycle {
	return &Lifecycle{
		server:     server,
		observer:   observer,
		pidFile:    pidFile,
		lockFile:   lockFile,
		portFile:   portFile,
		socketPath: socketPath,
		version:    version,
		shutdownCh: make(chan struct{}),
	}
}

// AddTask registers a background task started after the servers are up.
// Must be called before Run.
func (l *Lifecycle) AddTask(task BackgroundTask) {
	l.tasks = append(l.tasks, task)
}

// Run starts everything and blocks until a shutdown signal or ctx
// cancellation, then tears down in reverse order.
func (l *Lifecycle) Run(ctx context.Context) error {
	// The flock is released by the OS when the process dies, even on
	// SIGKILL, so it is the authoritative liveness check.
	lock, err := AcquireLock(l.lockFile)
	if err != nil {
		return fmt.Errorf("acquire daemon lock: %w", err)
	}
	l.lock = lock
	defer func() {
		if l.lock != nil {
			if err := l.lock.Release(); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to release lock: %v\n", err)
			}
		}
	}()

	running, existing, err := CheckPIDFile(l.pidFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: unreadable PID file, overwriting: %v\n", err)
	} else if running {
		return fmt.Errorf("daemon already running (PID %d)", existing.PID)
	}

	info := PIDInfo{
		PID:        os.Getpid(),
		StartedAt:  time.Now().UTC(),
		SocketPath: l.socketPath,
		Version:    l.version,
	}
	if err := WritePIDFile(l.pidFile, info); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}

	// Safety net for panics and early returns; the graceful path marks
	// completion and handles its own cleanup.
	var shutdownComplete atomic.Bool
	defer func() {
		if !shutdownComplete.Load() {
			_ = l.server.Stop()
			if l.observer != nil {
				_ = l.observer.Stop()
				_ = RemovePortFile(l.portFile)
			}
			_ = RemovePIDFile(l.pidFile)
		}
	}()

	taskCtx, cancelTasks := context.WithCancel(ctx)
	defer cancelTasks()

	if err := l.server.Start(taskCtx); err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}

	if l.observer != nil {
		if err := l.observer.Start(taskCtx); err != nil {
			return fmt.Errorf("start observer server: %w", err)
		}
		if err := WritePortFile(l.portFile, l.observer.Port()); err != nil {
			return fmt.Errorf("write observer port file: %w", err)
		}
	}

	for _, task := range l.tasks {
		task := task
		go func() {
			if err := task(taskCtx); err != nil && taskCtx.Err() == nil {
				fmt.Fprintf(os.Stderr, "background task exited: %v\n", err)
			}
		}()
	}

	go l.handleSignals()
	go func() {
		select {
		case <-ctx.Done():
			l.requestShutdown()
		case <-l.shutdownCh:
		}
	}()

	<-l.shutdownCh

	shutdownComplete.Store(true)
	cancelTasks()
	return l.shutdown()
}

// requestShutdown triggers a graceful shutdown. Safe to call repeatedly.
func (l *Lifecycle) requestShutdown() {
	l.shutdownOnce.Do(func() {
		close(l.shutdownCh)
	})
}

func (l *Lifecycle) handleSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigCh
	fmt.Fprintf(os.Stderr, "received %v, shutting down\n", sig)
	l.requestShutdown()
}

// shutdown tears down servers and removes state files. Errors are logged
// and teardown continues; a half-stopped daemon must still clean up.
func (l *Lifecycle) shutdown() error {
	if l.observer != nil {
		if err := l.observer.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "error stopping observer server: %v\n", err)
		}
		if err := RemovePortFile(l.portFile); err != nil {
			fmt.Fprintf(os.Stderr, "error removing port file: %v\n", err)
		}
	}

	if err := l.server.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "error stopping IPC server: %v\n", err)
	}

	if err := RemovePIDFile(l.pidFile); err != nil {
		fmt.Fprintf(os.Stderr, "error removing PID file: %v\n", err)
		return err
	}

	if l.lock != nil {
		if err := l.lock.Release(); err != nil {
			fmt.Fprintf(os.Stderr, "error releasing lock: %v\n", err)
		}
		l.lock = nil
	}

	return nil
}
