package postgres

import (
	"context"
	"fmt"

	"github.com/xraph/replay"
	"github.com/xraph/replay/history"
	"github.com/xraph/replay/id"
)

// AppendEvents atomically appends events to the run's history, assigning
// consecutive Seq values starting at expectedNextSeq. The append runs in a
// transaction; a concurrent writer that advanced the sequence first makes
// this call fail with ErrHistoryConflict, either via the cursor check or
// the (run_id, seq) unique constraint.
func (s *Store) AppendEvents(ctx context.Context, runID id.RunID, expectedNextSeq int64, events []*history.Event) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("replay/postgres: begin append: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	var lastSeq int64
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM replay_history WHERE run_id = $1`,
		runID.String(),
	).Scan(&lastSeq)
	if err != nil {
		return fmt.Errorf("replay/postgres: read history cursor: %w", err)
	}
	if expectedNextSeq != lastSeq+1 {
		return replay.ErrHistoryConflict
	}

	for i, ev := range events {
		ev.Seq = expectedNextSeq + int64(i)
		_, err = tx.Exec(ctx, `
			INSERT INTO replay_history (`+eventColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			ev.ID.String(), ev.RunID.String(), ev.ExecutionID.String(),
			ev.Seq, string(ev.Type), ev.Name, []byte(ev.Attrs), ev.OccurredAt,
		)
		if err != nil {
			if isDuplicateKey(err) {
				return replay.ErrHistoryConflict
			}
			return fmt.Errorf("replay/postgres: append event: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("replay/postgres: commit append: %w", err)
	}
	return nil
}

// ListEvents returns events with Seq > afterSeq in Seq order.
func (s *Store) ListEvents(ctx context.Context, runID id.RunID, afterSeq int64, limit int) ([]*history.Event, error) {
	query := `
		SELECT ` + eventColumns + ` FROM replay_history
		WHERE run_id = $1 AND seq > $2
		ORDER BY seq ASC`
	args := []any{runID.String(), afterSeq}
	if limit > 0 {
		query += " LIMIT $3"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("replay/postgres: list events: %w", err)
	}
	defer rows.Close()

	return collect(rows, scanEvent)
}

// LatestSeq returns the highest Seq appended for the run.
func (s *Store) LatestSeq(ctx context.Context, runID id.RunID) (int64, error) {
	var seq int64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM replay_history WHERE run_id = $1`,
		runID.String(),
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("replay/postgres: latest seq: %w", err)
	}
	return seq, nil
}

// DeleteHistory removes the run's entire history.
func (s *Store) DeleteHistory(ctx context.Context, runID id.RunID) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM replay_history WHERE run_id = $1`, runID.String())
	if err != nil {
		return fmt.Errorf("replay/postgres: delete history: %w", err)
	}
	return nil
}
