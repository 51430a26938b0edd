// ABOUTME: DB gateway for the parser daemon: exclusive pgx sessions over the submission database.
// ABOUTME: One session per owner (producer or worker); worker sessions reconnect on drops.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
)

// connectAttempts and the linear backoff below cover the window where the
// database is restarting or not yet accepting connections.
const connectAttempts = 10

// Session is one database connection with a single owning goroutine.
// Sessions are never shared: the producer has one, each worker has its own.
// Methods are not safe for concurrent use.
type Session struct {
	conn *pgx.Conn
	cfg  *pgx.ConnConfig
	log  *slog.Logger
}

// Connect opens a session for the given DSN. Connection attempts are
// retried with linear backoff so a database briefly down at daemon start
// does not abort initialisation.
func Connect(ctx context.Context, dsn string, log *slog.Logger) (*Session, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	// sqldata values arrive as untyped text; the simple protocol lets
	// postgres coerce them to the report tables' column types instead of
	// failing on a text-vs-bigint parameter mismatch.
	cfg.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	s := &Session{cfg: cfg, log: log}
	if err := s.dial(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// dial establishes s.conn, retrying up to connectAttempts times.
func (s *Session) dial(ctx context.Context) error {
	var connErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		var conn *pgx.Conn
		conn, connErr = pgx.ConnectConfig(ctx, s.cfg)
		if connErr == nil {
			s.conn = conn
			return nil
		}
		s.log.Warn("database not ready, retrying",
			"attempt", attempt,
			"error", connErr,
		)
		timer := time.NewTimer(time.Duration(attempt) * time.Second)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("database unavailable after %d attempts: %w", connectAttempts, connErr)
}

// ensure reconnects a dropped session. Only the worker-side operations call
// it: the producer treats a dead session as fatal.
func (s *Session) ensure(ctx context.Context) error {
	if s.conn != nil && !s.conn.IsClosed() {
		return nil
	}
	s.log.Warn("database session dropped, reconnecting")
	return s.dial(ctx)
}

// Close terminates the session.
func (s *Session) Close(ctx context.Context) error {
	if s.conn == nil || s.conn.IsClosed() {
		return nil
	}
	return s.conn.Close(ctx)
}
