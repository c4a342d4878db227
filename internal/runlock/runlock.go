// Package runlock keeps a single processing worker per state directory.
package runlock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
)

// ErrHeld reports that another wmclean process owns the lock.
var ErrHeld = errors.New("another wmclean process is already processing videos")

// Lock is an acquired run lock.
type Lock struct {
	path string
	lock *flock.Flock
}

// Acquire takes the lock at path without waiting. The holder's PID is written
// into the file for diagnostics.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		if pid := HolderPID(path); pid > 0 {
			return nil, fmt.Errorf("%w (pid %d, lock %s)", ErrHeld, pid, path)
		}
		return nil, fmt.Errorf("%w (lock %s)", ErrHeld, path)
	}
	_ = os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
	return &Lock{path: path, lock: fl}, nil
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.path
}

// Release unlocks. It is safe to call on a nil lock.
func (l *Lock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	if err := l.lock.Unlock(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// HolderPID reads the PID recorded by the current holder, or 0.
func HolderPID(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}
