package daemon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// PIDInfo contains daemon process metadata stored in the PID file.
type PIDInfo struct {
	PID        int       `json:"pid"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	SocketPath string    `json:"socket_path,omitempty"`
	Version    string    `json:"version,omitempty"`
}

// WritePIDFile writes process information to the PID file as JSON.
func WritePIDFile(path string, info PIDInfo) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create PID file directory: %w", err)
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal PID info: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}
	return nil
}

// ReadPIDFile reads process information from the PID file.
func ReadPIDFile(path string) (PIDInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		// Unwrapped so os.IsNotExist keeps working for callers
		return PIDInfo{}, err
	}

	var info PIDInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return PIDInfo{}, fmt.Errorf("invalid PID file format: %w", err)
	}
	return info, nil
}

// CheckPIDFile checks whether the PID file exists and its process is
// running. A missing file is the normal "daemon not running" case, not an
// error. A stale file (dead process) reports running=false so callers can
// overwrite it.
func CheckPIDFile(path string) (bool, PIDInfo, error) {
	info, err := ReadPIDFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, PIDInfo{}, nil
		}
		return false, PIDInfo{}, err
	}
	return isProcessRunning(info.PID), info, nil
}

// RemovePIDFile removes the PID file. Missing files are fine.
func RemovePIDFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove PID file: %w", err)
	}
	return nil
}

// isProcessRunning checks for a live process via signal 0.
func isProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	if err == syscall.EPERM {
		// Exists but owned by someone else
		return true
	}
	return false
}
