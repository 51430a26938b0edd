// ABOUTME: Daemon configuration: env-var layer via caarlos0/env, INI config file via viper.
// ABOUTME: Flag overrides are applied by the CLI after Load; file keys overlay the env defaults.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/viper"
)

// Section names inside the daemon's INI config file. The parser daemon reads
// its own section plus the shared database section.
const (
	fileSectionParser = "xmlrpc_parser"
	fileSectionDB     = "database"
)

// Config holds all daemon configuration. Env vars give the base layer with
// the defaults below; the config file overlays the file-scoped keys; CLI
// flags (applied by cmd) override both.
type Config struct {
	// NumThreads is the worker count. Zero means one per CPU core,
	// resolved in Load.
	NumThreads int `env:"RTEVAL_NUM_THREADS"`

	// Log selects the log sink: "syslog:<facility>" (facility daemon, user,
	// local0..local7), an absolute file path, or "stderr".
	Log string `env:"RTEVAL_LOG" envDefault:"syslog:daemon"`

	// LogLevel is one of emerg, alert, crit, error, warn, notice, info, debug.
	LogLevel string `env:"RTEVAL_LOGLEVEL" envDefault:"info"`

	// ConfigFile is the INI file carrying the file-scoped keys below.
	ConfigFile string `env:"RTEVAL_CONFIGFILE" envDefault:"/etc/rteval.conf"`

	// PIDFile is written and lock-held for the daemon lifetime.
	PIDFile string `env:"RTEVAL_PIDFILE" envDefault:"/var/run/rteval-parserd.pid"`

	// QueueSize overrides the job queue capacity. Zero derives it from the
	// system message-queue hint.
	QueueSize int `env:"RTEVAL_QUEUE_SIZE"`

	// MetricsAddr enables the Prometheus listener when non-empty.
	MetricsAddr string `env:"RTEVAL_METRICS_ADDR"`

	// ── file-scoped keys (section [xmlrpc_parser]) ───────────────────────────────

	// XSLTPath is the directory containing xmlparser.xsl.
	XSLTPath string `env:"RTEVAL_XSLTPATH" envDefault:"/usr/share/rteval"`

	// ReportDir is the root under which per-client report subtrees are
	// materialised.
	ReportDir string `env:"RTEVAL_REPORTDIR" envDefault:"/var/lib/rteval/reports"`

	// ── file-scoped keys (section [database]) ────────────────────────────────────

	Database DBConfig
}

// DBConfig is the connection info for the submission database.
type DBConfig struct {
	Host     string `env:"RTEVAL_DB_HOST"     envDefault:"localhost"`
	Port     int    `env:"RTEVAL_DB_PORT"     envDefault:"5432"`
	Name     string `env:"RTEVAL_DB_NAME"     envDefault:"rteval"`
	User     string `env:"RTEVAL_DB_USER"     envDefault:"rtevparser"`
	Password string `env:"RTEVAL_DB_PASSWORD"`
	SSLMode  string `env:"RTEVAL_DB_SSLMODE"  envDefault:"prefer"`
}

// ConnString returns the keyword/value DSN pgx expects.
func (d DBConfig) ConnString() string {
	parts := []string{
		fmt.Sprintf("host=%s", d.Host),
		fmt.Sprintf("port=%d", d.Port),
		fmt.Sprintf("dbname=%s", d.Name),
		fmt.Sprintf("user=%s", d.User),
		fmt.Sprintf("sslmode=%s", d.SSLMode),
	}
	if d.Password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", d.Password))
	}
	return strings.Join(parts, " ")
}

// Load parses the env layer and resolves the NumThreads default. The config
// file is read afterwards by ReadFile so the CLI can override ConfigFile in
// between.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config from env: %w", err)
	}
	if cfg.NumThreads <= 0 {
		cfg.NumThreads = runtime.NumCPU()
	}
	return cfg, nil
}

// ReadFile overlays cfg with the keys from the INI config file. A missing
// file at the default location is not an error — the daemon can run from env
// and flags alone — but an explicitly configured path must exist.
func (c *Config) ReadFile(explicit bool) error {
	if _, err := os.Stat(c.ConfigFile); err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil
		}
		return fmt.Errorf("config file %s: %w", c.ConfigFile, err)
	}

	v := viper.New()
	v.SetConfigFile(c.ConfigFile)
	v.SetConfigType("ini")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("config file %s: %w", c.ConfigFile, err)
	}

	if s := v.GetString(fileSectionParser + ".xsltpath"); s != "" {
		c.XSLTPath = s
	}
	if s := v.GetString(fileSectionParser + ".reportdir"); s != "" {
		c.ReportDir = s
	}
	if n := v.GetInt(fileSectionParser + ".threads"); n > 0 {
		c.NumThreads = n
	}
	if n := v.GetInt(fileSectionParser + ".queue_size"); n > 0 {
		c.QueueSize = n
	}

	if s := v.GetString(fileSectionDB + ".host"); s != "" {
		c.Database.Host = s
	}
	if n := v.GetInt(fileSectionDB + ".port"); n > 0 {
		c.Database.Port = n
	}
	if s := v.GetString(fileSectionDB + ".database"); s != "" {
		c.Database.Name = s
	}
	if s := v.GetString(fileSectionDB + ".user"); s != "" {
		c.Database.User = s
	}
	if s := v.GetString(fileSectionDB + ".password"); s != "" {
		c.Database.Password = s
	}

	return nil
}

// Validate checks the fields the daemon cannot start without.
func (c *Config) Validate() error {
	if c.NumThreads < 1 {
		return fmt.Errorf("num_threads must be at least 1, got %d", c.NumThreads)
	}
	if c.XSLTPath == "" {
		return fmt.Errorf("xsltpath is not set")
	}
	if c.ReportDir == "" {
		return fmt.Errorf("reportdir is not set")
	}
	return nil
}
