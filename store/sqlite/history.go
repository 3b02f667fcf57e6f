package sqlite

import (
	"context"
	"fmt"

	"github.com/xraph/replay"
	"github.com/xraph/replay/history"
	"github.com/xraph/replay/id"
)

// AppendEvents atomically appends events to the run's history, assigning
// consecutive Seq values starting at expectedNextSeq. A stale cursor or a
// concurrent append fails with ErrHistoryConflict.
func (s *Store) AppendEvents(ctx context.Context, runID id.RunID, expectedNextSeq int64, events []*history.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replay/sqlite: begin append: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	var lastSeq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM replay_history WHERE run_id = ?`,
		runID.String(),
	).Scan(&lastSeq)
	if err != nil {
		return fmt.Errorf("replay/sqlite: read history cursor: %w", err)
	}
	if expectedNextSeq != lastSeq+1 {
		return replay.ErrHistoryConflict
	}

	for i, ev := range events {
		ev.Seq = expectedNextSeq + int64(i)
		_, err = tx.ExecContext(ctx, `
			INSERT INTO replay_history (`+eventColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			ev.ID.String(), ev.RunID.String(), ev.ExecutionID.String(),
			ev.Seq, string(ev.Type), ev.Name, []byte(ev.Attrs),
			encTime(ev.OccurredAt),
		)
		if err != nil {
			if isDuplicateKey(err) {
				return replay.ErrHistoryConflict
			}
			return fmt.Errorf("replay/sqlite: append event: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("replay/sqlite: commit append: %w", err)
	}
	return nil
}

// ListEvents returns events with Seq > afterSeq in Seq order.
func (s *Store) ListEvents(ctx context.Context, runID id.RunID, afterSeq int64, limit int) ([]*history.Event, error) {
	query := `
		SELECT ` + eventColumns + ` FROM replay_history
		WHERE run_id = ? AND seq > ?
		ORDER BY seq ASC`
	args := []any{runID.String(), afterSeq}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("replay/sqlite: list events: %w", err)
	}
	defer rows.Close()

	return collect(rows, scanEvent)
}

// LatestSeq returns the highest Seq appended for the run.
func (s *Store) LatestSeq(ctx context.Context, runID id.RunID) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM replay_history WHERE run_id = ?`,
		runID.String(),
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("replay/sqlite: latest seq: %w", err)
	}
	return seq, nil
}

// DeleteHistory removes the run's entire history.
func (s *Store) DeleteHistory(ctx context.Context, runID id.RunID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM replay_history WHERE run_id = ?`, runID.String())
	if err != nil {
		return fmt.Errorf("replay/sqlite: delete history: %w", err)
	}
	return nil
}
