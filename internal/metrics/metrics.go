// ABOUTME: Prometheus instrumentation for the parser daemon, with an optional HTTP listener.
// ABOUTME: Own registry so tests and embedding never fight over the global default.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the daemon's instruments.
type Metrics struct {
	reg *prometheus.Registry

	SubmissionsClaimed   prometheus.Counter
	SubmissionsSucceeded prometheus.Counter
	SubmissionsFailed    prometheus.Counter
	SubmissionsRejected  prometheus.Counter
	QueueFullBackoffs    prometheus.Counter
	TransformSeconds     prometheus.Histogram
}

// New creates the instrument set on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		reg: reg,
		SubmissionsClaimed: factory.NewCounter(prometheus.CounterOpts{
			Name: "rteval_parserd_submissions_claimed_total",
			Help: "Submissions claimed from the submission queue.",
		}),
		SubmissionsSucceeded: factory.NewCounter(prometheus.CounterOpts{
			Name: "rteval_parserd_submissions_succeeded_total",
			Help: "Submissions parsed and persisted successfully.",
		}),
		SubmissionsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "rteval_parserd_submissions_failed_total",
			Help: "Submissions that failed, possibly transiently.",
		}),
		SubmissionsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "rteval_parserd_submissions_rejected_total",
			Help: "Structurally invalid submissions rejected permanently.",
		}),
		QueueFullBackoffs: factory.NewCounter(prometheus.CounterOpts{
			Name: "rteval_parserd_queue_full_backoffs_total",
			Help: "Producer backoffs taken because the job queue was full.",
		}),
		TransformSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rteval_parserd_transform_duration_seconds",
			Help:    "Wall time of the XSLT transform per submission.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}
}

// RegisterQueueDepth exposes the job queue's current depth as a gauge.
func (m *Metrics) RegisterQueueDepth(depth func() int) {
	promauto.With(m.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "rteval_parserd_queue_depth",
		Help: "Jobs currently held in the in-memory queue.",
	}, func() float64 { return float64(depth()) })
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Serve runs the metrics listener until ctx is cancelled. Listener errors
// are logged, never fatal — metrics are an aid, not a dependency.
func (m *Metrics) Serve(ctx context.Context, addr string, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("metrics listener started", "addr", addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.Error("metrics listener failed", "error", err)
	}
}
