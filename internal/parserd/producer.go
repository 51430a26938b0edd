// ABOUTME: The producer loop: claim pending submissions, park on LISTEN when idle, enqueue with backpressure.
// ABOUTME: Claim-before-wait drains rows left pending by earlier daemon lifetimes without a NOTIFY.
package parserd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cz172638/rteval-parserd/internal/job"
	"github.com/cz172638/rteval-parserd/internal/metrics"
	"github.com/cz172638/rteval-parserd/internal/queue"
	"github.com/cz172638/rteval-parserd/internal/shutdown"
)

// NotifyChannel is the database channel the submission frontend notifies on
// insert.
const NotifyChannel = "rteval_submq"

// fullQueueBackoff is how long the producer pauses when the job queue is
// full. The queue only fills when every worker is saturated, so polling
// sooner just burns cycles; an hour-long pause would stall a drained queue.
const fullQueueBackoff = 60 * time.Second

// Producer discovers new submissions and hands them to the workers. There
// is exactly one; it runs on the daemon's main flow of control after the
// workers are started.
type Producer struct {
	gw        ProducerGateway
	queue     *queue.Queue
	shutdown  *shutdown.Coordinator
	log       *slog.Logger
	metrics   *metrics.Metrics
	claimedBy string
	channel   string
	backoff   time.Duration
}

// NewProducer wires a Producer. claimedBy identifies this daemon instance
// in the submissionqueue's claimed_by column.
func NewProducer(gw ProducerGateway, q *queue.Queue, sd *shutdown.Coordinator,
	log *slog.Logger, m *metrics.Metrics, claimedBy string) *Producer {
	return &Producer{
		gw:        gw,
		queue:     q,
		shutdown:  sd,
		log:       log,
		metrics:   m,
		claimedBy: claimedBy,
		channel:   NotifyChannel,
		backoff:   fullQueueBackoff,
	}
}

// Run executes the producer loop until shutdown is observed or a gateway
// error occurs. Gateway errors are fatal: the shutdown flag is raised so the
// workers drain, and the error is returned for the nonzero exit.
//
// The loop always issues one claim before parking in the notification wait,
// so pending rows from before this daemon started are processed even though
// their NOTIFY is long gone.
func (p *Producer) Run(ctx context.Context) error {
	if err := p.gw.Listen(ctx, p.channel); err != nil {
		p.shutdown.Trigger()
		return fmt.Errorf("producer: %w", err)
	}

	for !p.shutdown.Requested() {
		j, err := p.gw.ClaimNextSubmission(ctx, p.claimedBy)
		if err != nil {
			// A signal can cancel ctx mid-query; that is the clean path,
			// not a gateway failure.
			if p.shutdown.Requested() {
				return nil
			}
			p.log.Error("failed to fetch a submission queue job, shutting down", "error", err)
			p.shutdown.Trigger()
			return fmt.Errorf("producer: claim submission: %w", err)
		}

		if j == nil {
			res, err := p.gw.WaitForNotification(ctx, 0)
			if err != nil {
				if p.shutdown.Requested() {
					return nil
				}
				p.log.Error("failed to wait for a queue notification, shutting down", "error", err)
				p.shutdown.Trigger()
				return fmt.Errorf("producer: wait for notification: %w", err)
			}
			// WaitShutdown and WaitTimeout both loop back: the flag check
			// at the top decides whether to claim again or exit.
			_ = res
			continue
		}

		p.log.Info("new submission", "submid", j.SubmID, "client", j.ClientID, "payload", j.PayloadPath)
		p.metrics.SubmissionsClaimed.Inc()
		p.deliver(*j)
	}
	return nil
}

// deliver enqueues j, backing off while the queue is full. The same job is
// retried until it fits — a claimed submission must not be lost. If
// shutdown arrives while the job is still undelivered, one final attempt is
// made and otherwise the row is marked failed so nothing stays claimed
// after the daemon exits.
func (p *Producer) deliver(j job.Job) {
	warned := false
	for {
		if p.queue.TryEnqueue(j) == nil {
			return
		}
		if !warned {
			p.log.Warn("job queue filled up, pausing new submissions",
				"submid", j.SubmID, "backoff", p.backoff)
			warned = true
		}
		p.metrics.QueueFullBackoffs.Inc()

		timer := time.NewTimer(p.backoff)
		select {
		case <-timer.C:
		case <-p.shutdown.Done():
			timer.Stop()
			if p.queue.TryEnqueue(j) == nil {
				return
			}
			if err := p.gw.MarkFailed(context.Background(), j.SubmID,
				"daemon shut down before the submission could be processed"); err != nil {
				p.log.Error("could not fail an undelivered submission",
					"submid", j.SubmID, "error", err)
			}
			return
		}
	}
}
