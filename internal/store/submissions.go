// ABOUTME: Submission queue operations: atomic claim plus the status transitions workers record.
// ABOUTME: Claim uses FOR UPDATE SKIP LOCKED so the fetch and the transition are one step.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/cz172638/rteval-parserd/internal/job"
)

// claimSQL selects the oldest pending row, transitions it to claimed and
// returns its fields in a single statement. SKIP LOCKED keeps the claim
// race-safe should another claimer ever appear; submid order gives the FIFO
// the queue contract promises.
const claimSQL = `
UPDATE submissionqueue q
SET status = 'claimed', claimed_by = $1, claimed_at = now()
FROM (
	SELECT submid FROM submissionqueue
	WHERE status = 'pending'
	ORDER BY submid
	LIMIT 1
	FOR UPDATE SKIP LOCKED
) next
WHERE q.submid = next.submid
RETURNING q.submid, q.clientid, q.filename`

// ClaimNextSubmission claims the oldest pending submission and returns it
// as a Job, or (nil, nil) when the queue is empty. claimedBy records which
// daemon instance took the row.
func (s *Session) ClaimNextSubmission(ctx context.Context, claimedBy string) (*job.Job, error) {
	j := &job.Job{Status: job.StatusClaimed}
	err := s.conn.QueryRow(ctx, claimSQL, claimedBy).Scan(&j.SubmID, &j.ClientID, &j.PayloadPath)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim next submission: %w", err)
	}
	return j, nil
}

// MarkInProgress records that a worker has started transforming the
// submission. Failing to flip the status is logged by the caller and does
// not stop processing: the claim already owns the row.
func (s *Session) MarkInProgress(ctx context.Context, submid int64) error {
	if err := s.ensure(ctx); err != nil {
		return err
	}
	_, err := s.conn.Exec(ctx,
		`UPDATE submissionqueue SET status = 'in_progress' WHERE submid = $1 AND status = 'claimed'`,
		submid)
	if err != nil {
		return fmt.Errorf("mark submission %d in progress: %w", submid, err)
	}
	return nil
}

// MarkFailed records a possibly transient failure for the submission.
func (s *Session) MarkFailed(ctx context.Context, submid int64, reason string) error {
	return s.finish(ctx, submid, job.StatusFailed, reason)
}

// MarkRejected records a permanent, structural failure: the submission will
// never succeed on retry.
func (s *Session) MarkRejected(ctx context.Context, submid int64, reason string) error {
	return s.finish(ctx, submid, job.StatusRejected, reason)
}

func (s *Session) finish(ctx context.Context, submid int64, status job.Status, reason string) error {
	if err := s.ensure(ctx); err != nil {
		return err
	}
	_, err := s.conn.Exec(ctx,
		`UPDATE submissionqueue SET status = $2, reason = $3, completed_at = now() WHERE submid = $1`,
		submid, string(status), reason)
	if err != nil {
		return fmt.Errorf("mark submission %d %s: %w", submid, status, err)
	}
	return nil
}
