package runlock

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestAcquireIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "wmclean.lock")

	first, err := Acquire(path)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if got := HolderPID(path); got != os.Getpid() {
		t.Fatalf("holder pid = %d, want %d", got, os.Getpid())
	}

	if _, err := Acquire(path); !errors.Is(err, ErrHeld) {
		t.Fatalf("second acquire error = %v, want ErrHeld", err)
	}

	if err := first.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	again, err := Acquire(path)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	_ = again.Release()
}

func TestReleaseNil(t *testing.T) {
	var l *Lock
	if err := l.Release(); err != nil {
		t.Fatalf("nil release: %v", err)
	}
}
