// ABOUTME: The slices of the DB gateway the producer and workers depend on.
// ABOUTME: Satisfied by *store.Session in production, by fakes in tests.
package parserd

import (
	"context"
	"time"

	"github.com/cz172638/rteval-parserd/internal/job"
	"github.com/cz172638/rteval-parserd/internal/report"
	"github.com/cz172638/rteval-parserd/internal/store"
)

// ProducerGateway is what the producer needs from its exclusive session.
// Errors from Listen, ClaimNextSubmission and WaitForNotification are fatal
// to the daemon; a MarkFailed error during shutdown is only logged.
type ProducerGateway interface {
	Listen(ctx context.Context, channel string) error
	ClaimNextSubmission(ctx context.Context, claimedBy string) (*job.Job, error)
	WaitForNotification(ctx context.Context, timeout time.Duration) (store.Wait, error)
	MarkFailed(ctx context.Context, submid int64, reason string) error
}

// WorkerGateway is what a worker needs from its exclusive session. The
// session reconnects on drops; errors surfacing here are absorbed per job.
type WorkerGateway interface {
	MarkInProgress(ctx context.Context, submid int64) error
	PersistReport(ctx context.Context, submid int64, rows []report.RowSet) error
	MarkFailed(ctx context.Context, submid int64, reason string) error
	MarkRejected(ctx context.Context, submid int64, reason string) error
}
