// ABOUTME: Bounded in-memory handoff between the submission producer and workers.
// ABOUTME: Non-blocking enqueue (distinguished full error), blocking FIFO dequeue that wakes on shutdown.
package queue

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/cz172638/rteval-parserd/internal/job"
)

// DefaultCapacity is used when no system hint is available and no explicit
// queue size is configured.
const DefaultCapacity = 5

// mqueueMsgMax exposes the kernel's cap on messages per POSIX message queue.
// It is only read as a sizing hint; the queue itself is process-local.
const mqueueMsgMax = "/proc/sys/fs/mqueue/msg_max"

// ErrFull is returned by TryEnqueue when the queue already holds its full
// capacity. It signals backpressure, not a failure.
var ErrFull = errors.New("queue full")

// Queue is a bounded FIFO with a single producer and any number of
// consumers. A buffered channel carries the elements: sends and receives are
// FIFO across all consumers, and the buffer bound enforces the capacity
// invariant without a lock of our own.
type Queue struct {
	ch chan job.Job
}

// New creates a Queue with the given capacity. Capacities below one fall
// back to DefaultCapacity.
func New(capacity int) *Queue {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Queue{ch: make(chan job.Job, capacity)}
}

// Capacity returns the fixed capacity chosen at construction.
func (q *Queue) Capacity() int { return cap(q.ch) }

// Len returns the number of jobs currently queued.
func (q *Queue) Len() int { return len(q.ch) }

// TryEnqueue adds j to the queue without blocking. Returns ErrFull when the
// queue holds Capacity() items; the caller is expected to back off and retry
// with the same job.
func (q *Queue) TryEnqueue(j job.Job) error {
	select {
	case q.ch <- j:
		return nil
	default:
		return ErrFull
	}
}

// Dequeue removes and returns the oldest queued job, blocking until one is
// available or ctx is cancelled. After cancellation it keeps returning
// queued jobs until the queue is drained, then reports ok == false.
func (q *Queue) Dequeue(ctx context.Context) (job.Job, bool) {
	select {
	case j := <-q.ch:
		return j, true
	case <-ctx.Done():
		// Shutdown observed while waiting: drain what is already queued,
		// only report exhaustion once nothing is left.
		select {
		case j := <-q.ch:
			return j, true
		default:
			return job.Job{}, false
		}
	}
}

// CapacityHint derives the queue capacity from the system's message-queue
// sizing parameter, falling back to DefaultCapacity when it cannot be read
// or parsed. Mirrors the sizing of the message-queue based predecessor.
func CapacityHint() int {
	buf, err := os.ReadFile(mqueueMsgMax)
	if err != nil {
		return DefaultCapacity
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(buf)))
	if err != nil || n < 1 {
		return DefaultCapacity
	}
	return n
}
