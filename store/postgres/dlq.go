package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/replay"
	"github.com/xraph/replay/dlq"
	"github.com/xraph/replay/id"
)

// PushDLQ adds a dead-lettered task entry to the queue.
func (s *Store) PushDLQ(ctx context.Context, entry *dlq.Entry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO replay_dlq (`+dlqColumns+`) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
		)`,
		entry.ID.String(), entry.TaskID.String(), entry.RunID.String(),
		entry.ExecutionID.String(), entry.Activity, entry.TaskQueue,
		entry.Input, entry.Error, entry.ErrorType, entry.Attempts,
		entry.MaxAttempts, entry.ScopeAppID, entry.ScopeOrgID,
		entry.FailedAt, entry.RedrivenAt, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("replay/postgres: push dlq: %w", err)
	}
	return nil
}

// ListDLQ returns DLQ entries matching the given options, oldest first.
func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	query := `SELECT ` + dlqColumns + ` FROM replay_dlq WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.TaskQueue != "" {
		query += fmt.Sprintf(" AND task_queue = $%d", argIdx)
		args = append(args, opts.TaskQueue)
		argIdx++
	}

	query += " ORDER BY failed_at ASC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("replay/postgres: list dlq: %w", err)
	}
	defer rows.Close()

	return collect(rows, scanDLQEntry)
}

// GetDLQ retrieves a DLQ entry by ID.
func (s *Store) GetDLQ(ctx context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+dlqColumns+` FROM replay_dlq WHERE id = $1`, entryID.String())

	e, err := scanDLQEntry(row)
	if err != nil {
		if isNoRows(err) {
			return nil, replay.ErrDLQNotFound
		}
		return nil, fmt.Errorf("replay/postgres: get dlq: %w", err)
	}
	return e, nil
}

// RedriveDLQ marks a DLQ entry as redriven.
func (s *Store) RedriveDLQ(ctx context.Context, entryID id.DLQID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE replay_dlq SET redriven_at = NOW() WHERE id = $1`,
		entryID.String())
	if err != nil {
		return fmt.Errorf("replay/postgres: redrive dlq: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return replay.ErrDLQNotFound
	}
	return nil
}

// PurgeDLQ removes DLQ entries with FailedAt before the given time.
func (s *Store) PurgeDLQ(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM replay_dlq WHERE failed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("replay/postgres: purge dlq: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountDLQ returns the total number of entries in the dead letter queue.
func (s *Store) CountDLQ(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM replay_dlq`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("replay/postgres: count dlq: %w", err)
	}
	return count, nil
}
