// ABOUTME: Unit tests for configuration loading: env defaults, INI overlay, validation.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.NumThreads < 1 {
		t.Errorf("NumThreads = %d, want >= 1", cfg.NumThreads)
	}
	if cfg.Log != "syslog:daemon" {
		t.Errorf("Log = %q, want syslog:daemon", cfg.Log)
	}
	if cfg.ConfigFile != "/etc/rteval.conf" {
		t.Errorf("ConfigFile = %q, want /etc/rteval.conf", cfg.ConfigFile)
	}
	if cfg.PIDFile != "/var/run/rteval-parserd.pid" {
		t.Errorf("PIDFile = %q, want /var/run/rteval-parserd.pid", cfg.PIDFile)
	}
	if cfg.Database.Port != 5432 || cfg.Database.Name != "rteval" {
		t.Errorf("database defaults = %+v", cfg.Database)
	}
}

func TestReadFileOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rteval.conf")
	ini := `[xmlrpc_parser]
xsltpath = /opt/rteval/xslt
reportdir = /srv/rteval/reports
threads = 3

[database]
host = db.example.net
port = 5433
database = rteval_prod
user = parser
password = hunter2
`
	if err := os.WriteFile(path, []byte(ini), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.ConfigFile = path
	if err := cfg.ReadFile(true); err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if cfg.XSLTPath != "/opt/rteval/xslt" {
		t.Errorf("XSLTPath = %q", cfg.XSLTPath)
	}
	if cfg.ReportDir != "/srv/rteval/reports" {
		t.Errorf("ReportDir = %q", cfg.ReportDir)
	}
	if cfg.NumThreads != 3 {
		t.Errorf("NumThreads = %d, want 3", cfg.NumThreads)
	}
	if cfg.Database.Host != "db.example.net" || cfg.Database.Port != 5433 {
		t.Errorf("database overlay = %+v", cfg.Database)
	}

	dsn := cfg.Database.ConnString()
	for _, want := range []string{"host=db.example.net", "port=5433", "dbname=rteval_prod", "user=parser", "password=hunter2"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("ConnString %q missing %q", dsn, want)
		}
	}
}

func TestReadFileMissing(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.ConfigFile = filepath.Join(t.TempDir(), "nope.conf")

	// Default location missing: tolerated.
	if err := cfg.ReadFile(false); err != nil {
		t.Errorf("ReadFile(default, missing) = %v, want nil", err)
	}
	// Explicit path missing: an error.
	if err := cfg.ReadFile(true); err == nil {
		t.Error("ReadFile(explicit, missing) = nil, want error")
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{NumThreads: 2, XSLTPath: "/x", ReportDir: "/r"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
	cfg.NumThreads = 0
	if err := cfg.Validate(); err == nil {
		t.Error("zero threads accepted")
	}
	cfg.NumThreads = 2
	cfg.ReportDir = ""
	if err := cfg.Validate(); err == nil {
		t.Error("empty reportdir accepted")
	}
}
