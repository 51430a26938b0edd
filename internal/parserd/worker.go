// ABOUTME: Worker loop: dequeue, serialise on the client's report dir, transform, persist, mark.
// ABOUTME: Per-job errors are absorbed (rejected or failed); only the dequeue observes shutdown.
package parserd

import (
	"context"
	"errors"
	"log/slog"
	"time"

	retry "github.com/avast/retry-go/v4"

	"github.com/cz172638/rteval-parserd/internal/arbiter"
	"github.com/cz172638/rteval-parserd/internal/job"
	"github.com/cz172638/rteval-parserd/internal/metrics"
	"github.com/cz172638/rteval-parserd/internal/queue"
	"github.com/cz172638/rteval-parserd/internal/report"
	"github.com/cz172638/rteval-parserd/internal/store"
	"github.com/cz172638/rteval-parserd/internal/transform"
)

// Persist retry tuning per the gateway contract: base 1 s doubling to a
// 60 s cap, three attempts total, then the job is marked failed.
const (
	persistAttempts   = 3
	persistBaseDelay  = 1 * time.Second
	persistDelayLimit = 60 * time.Second
)

// Worker owns one DB session and processes jobs until shutdown is observed
// and the queue is drained.
type Worker struct {
	id          int
	gw          WorkerGateway
	queue       *queue.Queue
	arbiter     *arbiter.Arbiter
	transformer transform.Transformer
	reports     *report.Writer
	log         *slog.Logger
	metrics     *metrics.Metrics
}

// NewWorker wires worker id with its exclusive gateway session. The
// transformer and arbiter are the shared read-only stylesheet handle and the
// shared directory arbiter.
func NewWorker(id int, gw WorkerGateway, q *queue.Queue, arb *arbiter.Arbiter,
	t transform.Transformer, reports *report.Writer,
	log *slog.Logger, m *metrics.Metrics) *Worker {
	return &Worker{
		id:          id,
		gw:          gw,
		queue:       q,
		arbiter:     arb,
		transformer: t,
		reports:     reports,
		log:         log.With("worker", id),
		metrics:     m,
	}
}

// Run loops until the queue reports exhaustion under shutdown. ctx is the
// shutdown context; it only interrupts the dequeue wait, never a job in
// flight.
func (w *Worker) Run(ctx context.Context) {
	w.log.Info("worker started")
	for {
		j, ok := w.queue.Dequeue(ctx)
		if !ok {
			w.log.Info("worker stopping")
			return
		}
		w.process(j)
	}
}

// process handles one job start to finish. In-flight work runs on a
// background context: losing a half-written report is worse than a slow
// shutdown, so nothing here is cancelled from outside.
func (w *Worker) process(j job.Job) {
	ctx := context.Background()
	log := w.log.With("submid", j.SubmID, "client", j.ClientID)

	slot := w.arbiter.Acquire(j.ClientID)
	defer slot.Release()

	if err := w.gw.MarkInProgress(ctx, j.SubmID); err != nil {
		// The claim already owns the row; a missed status flip costs
		// operator visibility, not correctness.
		log.Warn("could not mark submission in progress", "error", err)
	}

	start := time.Now()
	out, err := w.transformer.Transform(j.PayloadPath)
	w.metrics.TransformSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		w.absorb(ctx, log, j, err)
		return
	}

	rows, err := report.ParseSQLData(out)
	if err != nil {
		w.reject(ctx, log, j, err)
		return
	}
	if err := store.ValidateRowSets(rows); err != nil {
		w.reject(ctx, log, j, err)
		return
	}

	path, err := w.reports.Write(j.ClientID, out)
	if err != nil {
		w.fail(ctx, log, j, err)
		return
	}

	err = retry.Do(
		func() error { return w.gw.PersistReport(ctx, j.SubmID, rows) },
		retry.Attempts(persistAttempts),
		retry.Delay(persistBaseDelay),
		retry.MaxDelay(persistDelayLimit),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return !errors.Is(err, store.ErrBadRowSet) }),
	)
	if err != nil {
		if errors.Is(err, store.ErrBadRowSet) {
			w.reject(ctx, log, j, err)
			return
		}
		w.fail(ctx, log, j, err)
		return
	}

	w.metrics.SubmissionsSucceeded.Inc()
	log.Info("submission parsed", "report", path)
}

// absorb classifies a transform error: structural problems reject the
// submission, anything else fails it for a later retry.
func (w *Worker) absorb(ctx context.Context, log *slog.Logger, j job.Job, err error) {
	if transform.IsReject(err) {
		w.reject(ctx, log, j, err)
		return
	}
	w.fail(ctx, log, j, err)
}

func (w *Worker) reject(ctx context.Context, log *slog.Logger, j job.Job, cause error) {
	w.metrics.SubmissionsRejected.Inc()
	log.Error("submission rejected", "error", cause)
	if err := w.gw.MarkRejected(ctx, j.SubmID, cause.Error()); err != nil {
		log.Error("could not mark submission rejected", "error", err)
	}
}

func (w *Worker) fail(ctx context.Context, log *slog.Logger, j job.Job, cause error) {
	w.metrics.SubmissionsFailed.Inc()
	log.Error("submission failed", "error", cause)
	if err := w.gw.MarkFailed(ctx, j.SubmID, cause.Error()); err != nil {
		log.Error("could not mark submission failed", "error", err)
	}
}
