// ABOUTME: PID file held under an advisory flock for the daemon lifetime.
// ABOUTME: A second instance fails fast instead of fighting over the submission queue.
package pidfile

import (
	"fmt"
	"os"
	"strconv"

	"github.com/gofrs/flock"
)

// File is a written, lock-held PID file.
type File struct {
	path string
	lock *flock.Flock
}

// Write creates the PID file at path and takes an exclusive flock on it.
// If another live process holds the lock, Write fails without touching the
// file's contents.
func Write(path string) (*File, error) {
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock pid file %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("pid file %s is locked by another instance", path)
	}

	pid := strconv.Itoa(os.Getpid()) + "\n"
	if err := os.WriteFile(path, []byte(pid), 0o644); err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("write pid file %s: %w", path, err)
	}
	return &File{path: path, lock: lock}, nil
}

// Remove releases the lock and deletes the file. Safe to call once at
// teardown; errors are returned for logging, not retry.
func (f *File) Remove() error {
	if err := f.lock.Unlock(); err != nil {
		return fmt.Errorf("unlock pid file %s: %w", f.path, err)
	}
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove pid file %s: %w", f.path, err)
	}
	return nil
}

// Path returns the PID file location.
func (f *File) Path() string { return f.path }
