// ABOUTME: Assembles and runs the daemon: stylesheet, sessions, queue, workers, producer, teardown.
// ABOUTME: Failures map onto exit codes via ExitError; teardown drains workers before closing anything.
package parserd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/cz172638/rteval-parserd/internal/arbiter"
	"github.com/cz172638/rteval-parserd/internal/config"
	"github.com/cz172638/rteval-parserd/internal/metrics"
	"github.com/cz172638/rteval-parserd/internal/queue"
	"github.com/cz172638/rteval-parserd/internal/report"
	"github.com/cz172638/rteval-parserd/internal/shutdown"
	"github.com/cz172638/rteval-parserd/internal/store"
	"github.com/cz172638/rteval-parserd/internal/transform"
)

// StylesheetName is the file the daemon loads from the configured xsltpath.
const StylesheetName = "xmlparser.xsl"

// Exit codes of the daemon process.
const (
	ExitOK          = 0
	ExitProducer    = 1 // producer loop fatal: notification or claim failure
	ExitInit        = 2 // initialisation failure: stylesheet, producer DB session, resources
	ExitWorkerStart = 3 // a worker's DB session could not be established
)

// closeGracePeriod bounds session teardown; the shutdown context is already
// cancelled by the time teardown runs.
const closeGracePeriod = 10 * time.Second

// ExitError carries the process exit code alongside the cause.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }
func (e *ExitError) Unwrap() error { return e.Err }

func exitErrf(code int, format string, args ...any) *ExitError {
	return &ExitError{Code: code, Err: fmt.Errorf(format, args...)}
}

// Run starts the daemon and blocks until it has shut down. A nil return is
// a clean exit; otherwise the returned *ExitError names the code to exit
// with. Teardown order: producer exits, workers drain the queue and join,
// sessions close, stylesheet handle released.
func Run(cfg *config.Config, log *slog.Logger) error {
	instance := uuid.NewString()
	log.Info("rteval-parserd starting", "instance", instance, "workers", cfg.NumThreads)

	xsl, err := transform.Load(filepath.Join(cfg.XSLTPath, StylesheetName))
	if err != nil {
		return exitErrf(ExitInit, "load stylesheet: %w", err)
	}
	defer xsl.Close()

	capacity := cfg.QueueSize
	if capacity <= 0 {
		capacity = queue.CapacityHint()
	}
	q := queue.New(capacity)
	log.Debug("job queue sized", "capacity", q.Capacity())

	m := metrics.New()
	m.RegisterQueueDepth(q.Len)

	sd := shutdown.New(log)
	sd.Notify(syscall.SIGINT, syscall.SIGTERM)
	defer sd.Stop()
	ctx := sd.Context()

	dsn := cfg.Database.ConnString()

	producerSession, err := store.Connect(ctx, dsn, log)
	if err != nil {
		return exitErrf(ExitInit, "connect producer session: %w", err)
	}
	defer closeSession(producerSession, log)

	arb := arbiter.New()
	reports := report.NewWriter(cfg.ReportDir)

	// Every worker gets its own session before any of them starts, so a
	// partially started pool never processes jobs.
	workers := make([]*Worker, cfg.NumThreads)
	for i := range workers {
		sess, err := store.Connect(ctx, dsn, log)
		if err != nil {
			return exitErrf(ExitWorkerStart, "connect session for worker %d: %w", i, err)
		}
		defer closeSession(sess, log)
		workers[i] = NewWorker(i, sess, q, arb, xsl, reports, log, m)
	}

	if cfg.MetricsAddr != "" {
		go m.Serve(ctx, cfg.MetricsAddr, log)
	}

	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			w.Run(ctx)
		}(w)
	}

	log.Info("submission queue checker started")
	producer := NewProducer(producerSession, q, sd, log, m, instance)
	perr := producer.Run(ctx)
	log.Info("submission queue checker stopped")

	// The producer is done — on the fatal path it already raised the flag,
	// on the signal path this is a no-op. Workers wake from the queue wait,
	// drain what is left and join.
	sd.Trigger()
	wg.Wait()

	if perr != nil {
		return &ExitError{Code: ExitProducer, Err: perr}
	}
	log.Info("shutdown complete")
	return nil
}

// closeSession closes with its own deadline: the shutdown context is
// already cancelled by the time teardown runs.
func closeSession(s *store.Session, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), closeGracePeriod)
	defer cancel()
	if err := s.Close(ctx); err != nil {
		log.Error("failed to close database session", "error", err)
	}
}
