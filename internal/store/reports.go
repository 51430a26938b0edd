// ABOUTME: Persists parsed report row sets and the submission's success in one transaction.
// ABOUTME: INSERTs are built with squirrel; target tables come from a fixed allowlist.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"

	"github.com/cz172638/rteval-parserd/internal/report"
)

// ErrBadRowSet marks a row set that names a table outside the report
// schema. The document is structurally wrong, so callers reject the
// submission instead of retrying.
var ErrBadRowSet = errors.New("row set targets a table outside the report schema")

// allowedTables are the report tables the stylesheet may emit sqldata for.
// Field names inside them were already validated as identifiers by the
// sqldata parser.
var allowedTables = map[string]struct{}{
	"rtevalruns":         {},
	"rtevalruns_details": {},
	"cyclic_statistics":  {},
}

// ValidateRowSets checks every row set against the table allowlist. Workers
// call this before PersistReport so an unknown table is classified as a
// rejection, not retried as if transient.
func ValidateRowSets(rows []report.RowSet) error {
	for _, rs := range rows {
		if _, ok := allowedTables[rs.Table]; !ok {
			return fmt.Errorf("%w: %s", ErrBadRowSet, rs.Table)
		}
	}
	return nil
}

// PersistReport inserts all row sets and flips the submission to succeeded
// inside one transaction, so a crash mid-persist leaves no half-written
// report marked done.
func (s *Session) PersistReport(ctx context.Context, submid int64, rows []report.RowSet) error {
	if err := ValidateRowSets(rows); err != nil {
		return err
	}
	if err := s.ensure(ctx); err != nil {
		return err
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("persist report %d: begin: %w", submid, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	for _, rs := range rows {
		if len(rs.Records) == 0 {
			continue
		}
		ins := psql.Insert(rs.Table).Columns(rs.Fields...)
		for _, rec := range rs.Records {
			vals := make([]interface{}, len(rec))
			for i, v := range rec {
				if v.Null {
					vals[i] = nil
				} else {
					vals[i] = v.Data
				}
			}
			ins = ins.Values(vals...)
		}
		sqlStr, args, err := ins.ToSql()
		if err != nil {
			return fmt.Errorf("persist report %d: build insert for %s: %w", submid, rs.Table, err)
		}
		if _, err := tx.Exec(ctx, sqlStr, args...); err != nil {
			return fmt.Errorf("persist report %d: insert into %s: %w", submid, rs.Table, err)
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE submissionqueue SET status = 'succeeded', completed_at = now() WHERE submid = $1`,
		submid); err != nil {
		return fmt.Errorf("persist report %d: mark succeeded: %w", submid, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("persist report %d: commit: %w", submid, err)
	}
	return nil
}
