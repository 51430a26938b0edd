// ABOUTME: Job record exchanged between the submission-queue producer and workers.
// ABOUTME: Mirrors one row of the submissionqueue table plus its claim status.
package job

// Status is the lifecycle state of a submission, both in the submissionqueue
// table and on the in-memory record handed to a worker.
type Status string

const (
	// StatusNone marks a record that does not correspond to a claimed row.
	StatusNone Status = "none"
	// StatusPending is a row waiting in the submission queue.
	StatusPending Status = "pending"
	// StatusClaimed is a row the producer has taken off the queue.
	StatusClaimed Status = "claimed"
	// StatusInProgress is a row a worker has started transforming.
	StatusInProgress Status = "in_progress"
	// StatusSucceeded, StatusFailed and StatusRejected are terminal.
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusRejected  Status = "rejected"
)

// Job describes one submission to be parsed. A Job delivered to a worker
// always has Status == StatusClaimed and a matching DB row already in the
// claimed state — the claim transition and the fetch happen in one
// transaction.
type Job struct {
	// SubmID is the submission's unique, monotonically assigned id.
	SubmID int64
	// ClientID identifies the submitter; the per-client report subtree is
	// derived from it.
	ClientID string
	// PayloadPath is the filesystem path of the submitted XML blob.
	PayloadPath string
	// Status is the claim status of this record.
	Status Status
}
