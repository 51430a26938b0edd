// ABOUTME: LISTEN/NOTIFY support for the producer's long poll on the submission channel.
// ABOUTME: The wait is context-driven so shutdown wakes it promptly; timeouts are distinguished.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Wait is the outcome of WaitForNotification.
type Wait int

const (
	// WaitNotified: a notification arrived on the channel.
	WaitNotified Wait = iota
	// WaitTimeout: the timeout elapsed with no notification.
	WaitTimeout
	// WaitShutdown: the caller's context was cancelled while waiting.
	WaitShutdown
)

// Listen subscribes the session to the named notification channel. Must be
// called before the first WaitForNotification; the subscription lives as
// long as the connection.
func (s *Session) Listen(ctx context.Context, channel string) error {
	_, err := s.conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", channel, err)
	}
	return nil
}

// WaitForNotification blocks until a notification arrives on the session's
// subscribed channel, ctx is cancelled, or timeout elapses (zero timeout
// means wait indefinitely). Cancellation of ctx is reported as WaitShutdown,
// an elapsed timeout as WaitTimeout; anything else is a connection-level
// error the caller treats as fatal.
func (s *Session) WaitForNotification(ctx context.Context, timeout time.Duration) (Wait, error) {
	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	_, err := s.conn.WaitForNotification(waitCtx)
	switch {
	case err == nil:
		return WaitNotified, nil
	case ctx.Err() != nil:
		return WaitShutdown, nil
	case errors.Is(waitCtx.Err(), context.DeadlineExceeded):
		return WaitTimeout, nil
	default:
		return 0, fmt.Errorf("wait for notification: %w", err)
	}
}
