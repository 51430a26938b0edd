// Command rteval-parserd drains the rteval submission queue: it claims
// submitted XML reports from the database, transforms them through
// xmlparser.xsl on a pool of workers and persists the parsed rows.
//
// Subcommands:
//
//	run      — start the daemon (default when no subcommand is given)
//	migrate  — apply pending database migrations and exit
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	// Embeds the IANA timezone database in the binary so that
	// time.LoadLocation works inside containers without /usr/share/zoneinfo.
	_ "time/tzdata"

	// Sets GOMEMLIMIT from the cgroup memory limit so the GC triggers
	// before the OOM killer does in containers.
	_ "github.com/KimMachineGun/automemlimit"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/cz172638/rteval-parserd/internal/config"
	"github.com/cz172638/rteval-parserd/internal/logging"
	"github.com/cz172638/rteval-parserd/internal/parserd"
	"github.com/cz172638/rteval-parserd/internal/pidfile"
	"github.com/cz172638/rteval-parserd/migrations"
)

func main() {
	root := &cobra.Command{
		Use:   "rteval-parserd",
		Short: "rteval submission queue parser daemon",
		// Silence default error printing; we print it ourselves with slog.
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE:          runDaemon,
	}
	addDaemonFlags(root)

	run := &cobra.Command{
		Use:   "run",
		Short: "Start the parser daemon",
		RunE:  runDaemon,
	}
	addDaemonFlags(run)
	root.AddCommand(run, migrateCmd())

	if err := root.Execute(); err != nil {
		slog.Error("rteval-parserd failed", "error", err)
		var xe *parserd.ExitError
		if errors.As(err, &xe) {
			os.Exit(xe.Code)
		}
		os.Exit(parserd.ExitInit)
	}
}

// addDaemonFlags registers the option surface shared by the root command
// and the explicit run subcommand.
func addDaemonFlags(cmd *cobra.Command) {
	cmd.Flags().Int("threads", 0, "worker count (default: one per CPU core)")
	cmd.Flags().String("log", "", "log sink: syslog:<facility> or an absolute file path")
	cmd.Flags().String("loglevel", "", "log level: emerg..debug")
	cmd.Flags().String("configfile", "", "configuration file (default /etc/rteval.conf)")
	cmd.Flags().String("pidfile", "", "PID file (default /var/run/rteval-parserd.pid)")
	cmd.Flags().Int("queue-size", 0, "job queue capacity (default: system hint)")
	cmd.Flags().String("metrics-addr", "", "Prometheus listen address (disabled when empty)")
}

// loadConfig builds the effective configuration: env defaults, then the
// config file, then flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	explicitFile := cmd.Flags().Changed("configfile")
	if explicitFile {
		cfg.ConfigFile, _ = cmd.Flags().GetString("configfile") //nolint:errcheck
	}
	if err := cfg.ReadFile(explicitFile); err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("threads") {
		cfg.NumThreads, _ = cmd.Flags().GetInt("threads") //nolint:errcheck
	}
	if cmd.Flags().Changed("log") {
		cfg.Log, _ = cmd.Flags().GetString("log") //nolint:errcheck
	}
	if cmd.Flags().Changed("loglevel") {
		cfg.LogLevel, _ = cmd.Flags().GetString("loglevel") //nolint:errcheck
	}
	if cmd.Flags().Changed("pidfile") {
		cfg.PIDFile, _ = cmd.Flags().GetString("pidfile") //nolint:errcheck
	}
	if cmd.Flags().Changed("queue-size") {
		cfg.QueueSize, _ = cmd.Flags().GetInt("queue-size") //nolint:errcheck
	}
	if cmd.Flags().Changed("metrics-addr") {
		cfg.MetricsAddr, _ = cmd.Flags().GetString("metrics-addr") //nolint:errcheck
	}

	return cfg, cfg.Validate()
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return &parserd.ExitError{Code: parserd.ExitInit, Err: err}
	}

	logger, closeLog, err := logging.New(cfg.Log, cfg.LogLevel)
	if err != nil {
		return &parserd.ExitError{Code: parserd.ExitInit, Err: err}
	}
	defer closeLog() //nolint:errcheck
	slog.SetDefault(logger)

	pf, err := pidfile.Write(cfg.PIDFile)
	if err != nil {
		return &parserd.ExitError{Code: parserd.ExitInit, Err: err}
	}
	defer func() {
		if err := pf.Remove(); err != nil {
			logger.Error("failed to remove pid file", "error", err)
		}
	}()

	return parserd.Run(cfg, logger)
}

// ── migrate ───────────────────────────────────────────────────────────────────

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE:  runMigrate,
	}
	cmd.Flags().String("configfile", "", "configuration file (default /etc/rteval.conf)")
	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	explicit := cmd.Flags().Changed("configfile")
	if explicit {
		cfg.ConfigFile, _ = cmd.Flags().GetString("configfile") //nolint:errcheck
	}
	if err := cfg.ReadFile(explicit); err != nil {
		return err
	}

	slog.Info("running migrations")

	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}

	// golang-migrate needs a *sql.DB; pgx's stdlib adapter keeps the same
	// driver in use project-wide. One-shot run, no pooling needed.
	connCfg, err := pgx.ParseConfig(cfg.Database.ConnString())
	if err != nil {
		return fmt.Errorf("parse database config: %w", err)
	}
	db := stdlib.OpenDB(*connCfg)
	defer db.Close() //nolint:errcheck

	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrate init: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}

	version, _, _ := m.Version() //nolint:errcheck
	slog.Info("migrations complete", "version", version)
	return nil
}
