package state

import (
	"fmt"
	"os"
	"syscall"

	"github.com/Iron-Ham/phasekit/internal/errors"
)

// FileLock provides cross-process mutual exclusion using flock(2).
// Used to protect state files when several phasekit processes share a
// state directory.
type FileLock struct {
	path string
	file *os.File
}

// NewFileLock creates a FileLock backed by the file at path. Call
// Lock/Unlock to acquire and release.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

// Path returns the lock file path.
func (fl *FileLock) Path() string {
	return fl.path
}

// Lock acquires an exclusive file lock, blocking until available.
// The lock file is created if it does not exist.
func (fl *FileLock) Lock() error {
	f, err := os.OpenFile(fl.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	fl.file = f

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		_ = f.Close()
		fl.file = nil
		return fmt.Errorf("flock: %w", err)
	}
	return nil
}

// TryLock attempts to acquire the lock without blocking.
// Returns true if the lock was acquired, false if it is held by another process.
func (fl *FileLock) TryLock() (bool, error) {
	f, err := os.OpenFile(fl.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return false, fmt.Errorf("open lock file: %w", err)
	}

	err = syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err != nil {
		_ = f.Close()
		if err == syscall.EWOULDBLOCK {
			return false, nil
		}
		return false, fmt.Errorf("flock: %w", err)
	}

	fl.file = f
	return true, nil
}

// Unlock releases the file lock and closes the lock file.
func (fl *FileLock) Unlock() error {
	if fl.file == nil {
		return nil
	}

	if err := syscall.Flock(int(fl.file.Fd()), syscall.LOCK_UN); err != nil {
		_ = fl.file.Close()
		fl.file = nil
		return fmt.Errorf("funlock: %w", err)
	}

	err := fl.file.Close()
	fl.file = nil
	return err
}

// AcquireRunLock takes the per-plan run lock in dir without blocking. It
// returns a StateError wrapping errors.ErrStateLocked when another process is
// already running the plan identified by sourceID.
func AcquireRunLock(dir, sourceID string) (*FileLock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.NewStateError("failed to create state directory", err).WithPath(dir)
	}

	fl := NewFileLock(runLockPath(dir, sourceID))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, errors.NewStateError("failed to acquire run lock", err).WithPath(fl.Path())
	}
	if !ok {
		return nil, errors.NewStateError("another run of this plan is in progress", errors.ErrStateLocked).
			WithPath(fl.Path())
	}
	return fl, nil
}
