// ABOUTME: Unit tests for log sink selection and level parsing.
package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"emerg", slog.LevelError},
		{"alert", slog.LevelError},
		{"crit", slog.LevelError},
		{"error", slog.LevelError},
		{"warn", slog.LevelWarn},
		{"notice", slog.LevelInfo},
		{"info", slog.LevelInfo},
		{"debug", slog.LevelDebug},
	}
	for _, c := range cases {
		got, err := ParseLevel(c.in)
		if err != nil {
			t.Errorf("ParseLevel(%q): %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", c.in, got, c.want)
		}
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Error("unknown level accepted")
	}
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parserd.log")
	log, closeFn, err := New(path, "info")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	log.Info("submission parsed", "submid", 7, "client", "alpha")
	log.Debug("suppressed at info level")
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var rec map[string]any
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("log line is not one JSON record: %v (%q)", err, data)
	}
	if rec["msg"] != "submission parsed" {
		t.Errorf("msg = %v", rec["msg"])
	}
	if rec["submid"] != float64(7) {
		t.Errorf("submid = %v", rec["submid"])
	}
}

func TestStderrSink(t *testing.T) {
	log, closeFn, err := New("stderr", "debug")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer closeFn() //nolint:errcheck
	if log == nil {
		t.Fatal("nil logger")
	}
}

func TestBadSinkAndFacility(t *testing.T) {
	if _, _, err := New("relative/path.log", "info"); err == nil {
		t.Error("relative path accepted as sink")
	}
	if _, _, err := New("syslog:mail", "info"); err == nil {
		t.Error("unrecognised facility accepted")
	}
}
