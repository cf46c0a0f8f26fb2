// Package lock serializes setup and clean of one side across processes.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// ErrLocked is returned when another invocation holds the lock.
var ErrLocked = errors.New("another setup or clean is running for this side")

// FileLock is an exclusive advisory lock on a file.
type FileLock struct {
	path string
	f    *os.File
}

// Path returns the lock file used for side under dir. Host-global sysctls
// are not covered by it; a host runs only one side.
func Path(dir, side string) string {
	return filepath.Join(dir, "side-"+side+".lock")
}

// Acquire takes the lock without blocking. The lock is released by Release
// or when the process exits.
func Acquire(path string) (*FileLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %v", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %v", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%s: %w", path, ErrLocked)
		}
		return nil, fmt.Errorf("failed to lock %s: %v", path, err)
	}
	if err := f.Truncate(0); err == nil {
		fmt.Fprintf(f, "%d\n", os.Getpid())
	}
	return &FileLock{path: path, f: f}, nil
}

// Release drops the lock. The file is left in place.
func (l *FileLock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	defer func() { l.f = nil }()
	if err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN); err != nil {
		l.f.Close()
		return fmt.Errorf("failed to unlock %s: %v", l.path, err)
	}
	return l.f.Close()
}
