package sqlite

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
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO replay_dlq (`+dlqColumns+`) VALUES (
			?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		)`,
		entry.ID.String(), entry.TaskID.String(), entry.RunID.String(),
		entry.ExecutionID.String(), entry.Activity, entry.TaskQueue,
		entry.Input, entry.Error, entry.ErrorType, entry.Attempts,
		entry.MaxAttempts, entry.ScopeAppID, entry.ScopeOrgID,
		encTime(entry.FailedAt), encTimePtr(entry.RedrivenAt),
		encTime(entry.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("replay/sqlite: push dlq: %w", err)
	}
	return nil
}

// ListDLQ returns DLQ entries matching the given options, oldest first.
func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	query := `SELECT ` + dlqColumns + ` FROM replay_dlq WHERE 1=1`
	args := []any{}

	if opts.TaskQueue != "" {
		query += " AND task_queue = ?"
		args = append(args, opts.TaskQueue)
	}

	query += " ORDER BY failed_at ASC"

	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		if opts.Limit <= 0 {
			query += " LIMIT -1"
		}
		query += " OFFSET ?"
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("replay/sqlite: list dlq: %w", err)
	}
	defer rows.Close()

	return collect(rows, scanDLQEntry)
}

// GetDLQ retrieves a DLQ entry by ID.
func (s *Store) GetDLQ(ctx context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+dlqColumns+` FROM replay_dlq WHERE id = ?`, entryID.String())

	e, err := scanDLQEntry(row)
	if err != nil {
		if isNoRows(err) {
			return nil, replay.ErrDLQNotFound
		}
		return nil, fmt.Errorf("replay/sqlite: get dlq: %w", err)
	}
	return e, nil
}

// RedriveDLQ marks a DLQ entry as redriven.
func (s *Store) RedriveDLQ(ctx context.Context, entryID id.DLQID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE replay_dlq SET redriven_at = ? WHERE id = ?`,
		nowNano(), entryID.String())
	if err != nil {
		return fmt.Errorf("replay/sqlite: redrive dlq: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return replay.ErrDLQNotFound
	}
	return nil
}

// PurgeDLQ removes DLQ entries with FailedAt before the given time.
func (s *Store) PurgeDLQ(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM replay_dlq WHERE failed_at < ?`, encTime(before))
	if err != nil {
		return 0, fmt.Errorf("replay/sqlite: purge dlq: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// CountDLQ returns the total number of entries in the dead letter queue.
func (s *Store) CountDLQ(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM replay_dlq`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("replay/sqlite: count dlq: %w", err)
	}
	return count, nil
}
