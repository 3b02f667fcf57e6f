package postgres

import (
	"context"
	"fmt"

	"github.com/xraph/replay"
	"github.com/xraph/replay/id"
	"github.com/xraph/replay/signal"
)

// BufferSignal persists a received signal for later consumption.
func (s *Store) BufferSignal(ctx context.Context, sg *signal.Signal) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO replay_signals (`+signalColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		sg.ID.String(), sg.ExecutionID.String(), sg.RunID.String(),
		sg.Name, sg.Payload, sg.Seq, sg.Consumed, sg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("replay/postgres: buffer signal: %w", err)
	}
	return nil
}

// NextSignal atomically claims the oldest unconsumed signal with the given
// name for the run.
func (s *Store) NextSignal(ctx context.Context, runID id.RunID, name string) (*signal.Signal, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE replay_signals
		SET consumed = TRUE
		WHERE id = (
			SELECT id FROM replay_signals
			WHERE run_id = $1 AND name = $2 AND NOT consumed
			ORDER BY seq ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING `+signalColumns,
		runID.String(), name)

	sg, err := scanSignal(row)
	if err != nil {
		if isNoRows(err) {
			return nil, replay.ErrSignalNotFound
		}
		return nil, fmt.Errorf("replay/postgres: next signal: %w", err)
	}
	return sg, nil
}

// PendingSignals returns all unconsumed signals for the run in Seq order.
// An empty name matches every signal.
func (s *Store) PendingSignals(ctx context.Context, runID id.RunID, name string) ([]*signal.Signal, error) {
	query := `
		SELECT ` + signalColumns + ` FROM replay_signals
		WHERE run_id = $1 AND NOT consumed`
	args := []any{runID.String()}
	if name != "" {
		query += " AND name = $2"
		args = append(args, name)
	}
	query += " ORDER BY seq ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("replay/postgres: pending signals: %w", err)
	}
	defer rows.Close()

	return collect(rows, scanSignal)
}

// TransferSignals reassigns all unconsumed signals from one run to another.
func (s *Store) TransferSignals(ctx context.Context, fromRunID, toRunID id.RunID) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE replay_signals
		SET run_id = $2
		WHERE run_id = $1 AND NOT consumed`,
		fromRunID.String(), toRunID.String())
	if err != nil {
		return 0, fmt.Errorf("replay/postgres: transfer signals: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// DeleteSignalsForRun removes all signals belonging to a run.
func (s *Store) DeleteSignalsForRun(ctx context.Context, runID id.RunID) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM replay_signals WHERE run_id = $1`, runID.String())
	if err != nil {
		return fmt.Errorf("replay/postgres: delete signals for run: %w", err)
	}
	return nil
}
