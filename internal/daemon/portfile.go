package daemon

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Port range scanned for the WebSocket observer listener.
const (
	DefaultPortRangeMin = 9600
	DefaultPortRangeMax = 9699
)

// FindAvailablePort returns the first free TCP port in [minPort, maxPort].
func FindAvailablePort(minPort, maxPort int) (int, error) {
	if minPort > maxPort {
		return 0, fmt.Errorf("invalid port range: min (%d) > max (%d)", minPort, maxPort)
	}
	if minPort < 1 || maxPort > 65535 {
		return 0, fmt.Errorf("port range must be between 1 and 65535")
	}

	for port := minPort; port <= maxPort; port++ {
		listener, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", port))
		if err != nil {
			continue
		}
		_ = listener.Close()
		return port, nil
	}
	return 0, fmt.Errorf("no available port in range %d-%d", minPort, maxPort)
}

// WritePortFile writes the port number atomically (temp file + rename).
func WritePortFile(path string, port int) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create port file directory: %w", err)
	}

	tempPath := path + ".tmp"
	content := fmt.Sprintf("%d\n", port)
	if err := os.WriteFile(tempPath, []byte(content), 0600); err != nil {
		return fmt.Errorf("write port file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("finalize port file: %w", err)
	}
	return nil
}

// ReadPortFile reads the port number from the given file.
func ReadPortFile(path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		// Unwrapped so os.IsNotExist keeps working for callers
		return 0, err
	}

	portStr := strings.TrimSpace(string(content))
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, fmt.Errorf("invalid port in file: %s", portStr)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port out of valid range: %d", port)
	}
	return port, nil
}

// RemovePortFile removes the port file. Missing files are fine.
func RemovePortFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove port file: %w", err)
	}
	return nil
}
