package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/gsd-build/gsd-relay/internal/daemon"
	"github.com/gsd-build/gsd-relay/internal/paths"
)

// DaemonStatusResult is the status report for `daemon status`.
type DaemonStatusResult struct {
	Running          bool   `json:"running"`
	Status           string `json:"status"`
	PID              int    `json:"pid,omitempty"`
	Uptime           string `json:"uptime,omitempty"`
	Version          string `json:"version,omitempty"`
	SocketPath       string `json:"socket_path,omitempty"`
	ObserverPort     int    `json:"observer_port,omitempty"`
	Sessions         int    `json:"sessions,omitempty"`
	PendingQuestions int    `json:"pending_questions,omitempty"`
}

// DaemonStart launches the daemon as a detached background process and
// waits until its socket is up.
func DaemonStart(home string, localOnly bool) error {
	running, info, err := daemon.CheckPIDFile(paths.PIDPath(home))
	if err != nil {
		return fmt.Errorf("check daemon status: %w", err)
	}
	if running {
		return fmt.Errorf("daemon is already running (PID %d)", info.PID)
	}

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}

	args := []string{"daemon", "run", "--home", home}
	if localOnly {
		args = append(args, "--local")
	}
	cmd := exec.Command(executable, args...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true, // detach from the terminal
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon process: %w", err)
	}
	// Release instead of Wait: the parent exits immediately and the child
	// is adopted by init.
	if err := cmd.Process.Release(); err != nil {
		return fmt.Errorf("release daemon process: %w", err)
	}

	client, err := waitForSocket(paths.SocketPath(home), 10*time.Second)
	if err != nil {
		return fmt.Errorf("daemon did not come up: %w", err)
	}
	return client.Close()
}

// DaemonStop signals the running daemon and waits for its PID file to
// disappear.
func DaemonStop(home string) error {
	pidPath := paths.PIDPath(home)
	running, info, err := daemon.CheckPIDFile(pidPath)
	if err != nil {
		return fmt.Errorf("check daemon status: %w", err)
	}
	if !running {
		return fmt.Errorf("daemon is not running")
	}

	proc, err := os.FindProcess(info.PID)
	if err != nil {
		return fmt.Errorf("find daemon process: %w", err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal daemon: %w", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(pidPath); os.IsNotExist(err) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon (PID %d) did not stop within 10s", info.PID)
}

// DaemonStatus reports whether the daemon is up, enriched over the socket
// when it is.
func DaemonStatus(home string) DaemonStatusResult {
	running, info, err := daemon.CheckPIDFile(paths.PIDPath(home))
	if err != nil || !running {
		return DaemonStatusResult{Running: false, Status: "stopped"}
	}

	result := DaemonStatusResult{
		Running:    true,
		Status:     "running",
		PID:        info.PID,
		Version:    info.Version,
		SocketPath: info.SocketPath,
		Uptime:     time.Since(info.StartedAt).Round(time.Second).String(),
	}

	if port, err := daemon.ReadPortFile(paths.PortFilePath(home)); err == nil {
		result.ObserverPort = port
	}

	// The health RPC refines the picture; a PID without a reachable socket
	// is reported as unresponsive.
	client, err := NewClient(paths.SocketPath(home))
	if err != nil {
		result.Status = "unresponsive"
		return result
	}
	defer client.Close()

	raw, err := client.Call("health", map[string]any{})
	if err != nil {
		result.Status = "unresponsive"
		return result
	}
	var health struct {
		Sessions         int `json:"sessions"`
		PendingQuestions int `json:"pending_questions"`
	}
	if err := json.Unmarshal(raw, &health); err == nil {
		result.Sessions = health.Sessions
		result.PendingQuestions = health.PendingQuestions
	}
	return result
}
