package daemon

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// FileLock is the daemon singleton guard. The OS releases the underlying
// flock when the process dies, even on SIGKILL, so a crashed daemon never
// blocks the next start.
type FileLock struct {
	lock *flock.Flock
}

// AcquireLock takes the daemon lock without blocking. A held lock means
// another daemon is alive.
func AcquireLock(path string) (*FileLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("lock %s is held by another daemon", path)
	}
	return &FileLock{lock: fl}, nil
}

// Release unlocks and is safe to call on a nil lock or more than once.
func (l *FileLock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	if err := l.lock.Unlock(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}
