package pg

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/parley-dev/parley/shared/domain"
)

// QueueOrphanedHandle remembers a handle for the repair job. Queuing the same
// handle twice keeps one row.
func (s *Storage) QueueOrphanedHandle(ctx context.Context, kind domain.HandleKind, handle string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO orphaned_handles(kind, handle, last_error)
			VALUES($1, $2, $3)
			ON CONFLICT (kind, handle) DO UPDATE SET last_error = EXCLUDED.last_error`,
			string(kind), handle, msg,
		)
		if err != nil {
			return fmt.Errorf("failed to queue orphaned handle: %w", err)
		}
		return nil
	})
}

// OrphanedHandles returns the least attempted handles first.
func (s *Storage) OrphanedHandles(ctx context.Context, limit int) ([]domain.OrphanedHandle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, handle, attempts, last_error
		FROM orphaned_handles
		ORDER BY attempts, id
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query orphaned handles: %w", err)
	}
	defer rows.Close()

	var out []domain.OrphanedHandle
	for rows.Next() {
		var (
			h    domain.OrphanedHandle
			kind string
		)
		if err := rows.Scan(&h.Id, &kind, &h.Handle, &h.Attempts, &h.LastError); err != nil {
			return nil, fmt.Errorf("failed to scan orphaned handle: %w", err)
		}
		h.Kind = domain.HandleKind(kind)
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orphaned handles: %w", err)
	}
	return out, nil
}

// ResolveOrphanedHandle drops an entry once the external delete went through.
func (s *Storage) ResolveOrphanedHandle(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM orphaned_handles WHERE id = $1", id); err != nil {
		return fmt.Errorf("failed to delete orphaned handle: %w", err)
	}
	return nil
}

// RecordOrphanAttempt keeps the entry for the next repair run.
func (s *Storage) RecordOrphanAttempt(ctx context.Context, id int64, cause error) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orphaned_handles SET attempts = attempts + 1, last_error = $1 WHERE id = $2",
		cause.Error(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to record orphan attempt: %w", err)
	}
	return nil
}
