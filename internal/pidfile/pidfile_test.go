// ABOUTME: Unit tests for PID file creation, locking and removal.
package pidfile

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestWriteAndRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parserd.pid")

	f, err := Write(path)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read pid file: %v", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		t.Fatalf("pid file content %q: %v", data, err)
	}
	if pid != os.Getpid() {
		t.Errorf("pid file holds %d, want %d", pid, os.Getpid())
	}

	if err := f.Remove(); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("pid file still present after Remove")
	}
}

func TestSecondInstanceRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parserd.pid")

	first, err := Write(path)
	if err != nil {
		t.Fatalf("first Write: %v", err)
	}
	defer first.Remove() //nolint:errcheck

	if _, err := Write(path); err == nil {
		t.Error("second instance acquired the pid file lock")
	}
}
