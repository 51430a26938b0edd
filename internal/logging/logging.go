// ABOUTME: Builds the daemon's slog.Logger from the configured sink and level.
// ABOUTME: Sinks: syslog:<facility> (local syslog), an absolute file path (JSON), or tinted stderr.
package logging

import (
	"fmt"
	"log/slog"
	"log/syslog"
	"os"
	"path/filepath"
	"strings"

	"github.com/lmittmann/tint"
)

const syslogTag = "rteval-parserd"

// facilities maps the recognised facility names of the `log` option.
var facilities = map[string]syslog.Priority{
	"daemon": syslog.LOG_DAEMON,
	"user":   syslog.LOG_USER,
	"local0": syslog.LOG_LOCAL0,
	"local1": syslog.LOG_LOCAL1,
	"local2": syslog.LOG_LOCAL2,
	"local3": syslog.LOG_LOCAL3,
	"local4": syslog.LOG_LOCAL4,
	"local5": syslog.LOG_LOCAL5,
	"local6": syslog.LOG_LOCAL6,
	"local7": syslog.LOG_LOCAL7,
}

// ParseLevel maps the daemon's syslog-style level names onto slog levels.
// The three levels above error collapse onto error and notice collapses onto
// info — slog has no finer tiers and nothing in the daemon logs above error.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "emerg", "alert", "crit", "error":
		return slog.LevelError, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "notice", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

// New builds a logger for the given sink and level name. The returned
// close func releases the sink (file handle or syslog socket) and is a no-op
// for stderr.
func New(sink, level string) (*slog.Logger, func() error, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, nil, err
	}

	switch {
	case sink == "" || sink == "stderr":
		h := tint.NewHandler(os.Stderr, &tint.Options{Level: lvl})
		return slog.New(h), func() error { return nil }, nil

	case sink == "syslog" || strings.HasPrefix(sink, "syslog:"):
		facility := "daemon"
		if _, name, ok := strings.Cut(sink, ":"); ok && name != "" {
			facility = name
		}
		prio, ok := facilities[facility]
		if !ok {
			return nil, nil, fmt.Errorf("unknown syslog facility %q", facility)
		}
		w, err := syslog.New(prio|syslog.LOG_INFO, syslogTag)
		if err != nil {
			return nil, nil, fmt.Errorf("open syslog: %w", err)
		}
		return slog.New(newSyslogHandler(w, lvl)), w.Close, nil

	case filepath.IsAbs(sink):
		f, err := os.OpenFile(sink, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		h := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: lvl})
		return slog.New(h), f.Close, nil

	default:
		return nil, nil, fmt.Errorf("log sink %q is neither syslog:<facility> nor an absolute path", sink)
	}
}
