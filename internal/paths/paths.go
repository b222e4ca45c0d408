package paths

import (
	"os"
	"path/filepath"
)

// HomeEnv overrides the relay home directory. One daemon per home serves
// front-ends from any number of project roots.
const HomeEnv = "GSD_RELAY_HOME"

// Home returns the relay home directory: $GSD_RELAY_HOME if set, otherwise
// ~/.gsd-relay.
func Home() string {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		// Last resort for environments without a home directory
		return filepath.Join(os.TempDir(), "gsd-relay")
	}
	return filepath.Join(home, ".gsd-relay")
}

// VarDir returns the runtime directory. Contains relay.sock, relay.pid,
// relay.lock, ws.port, events.db, tsnet/.
func VarDir(home string) string {
	return filepath.Join(home, "var")
}

// SocketPath returns the Unix socket path for the daemon.
func SocketPath(home string) string {
	return filepath.Join(VarDir(home), "relay.sock")
}

// PIDPath returns the daemon PID file path.
func PIDPath(home string) string {
	return filepath.Join(VarDir(home), "relay.pid")
}

// LockPath returns the daemon singleton lock file path.
func LockPath(home string) string {
	return filepath.Join(VarDir(home), "relay.lock")
}

// PortFilePath returns the WebSocket port file path.
func PortFilePath(home string) string {
	return filepath.Join(VarDir(home), "ws.port")
}

// EventLogPath returns the SQLite event log path.
func EventLogPath(home string) string {
	return filepath.Join(VarDir(home), "events.db")
}

// TsnetStateDir returns the tsnet state directory.
func TsnetStateDir(home string) string {
	return filepath.Join(VarDir(home), "tsnet")
}

// ConfigPath returns the config file path.
func ConfigPath(home string) string {
	return filepath.Join(home, "config.json")
}
