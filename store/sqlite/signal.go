package sqlite

import (
	"context"
	"fmt"

	"github.com/xraph/replay"
	"github.com/xraph/replay/id"
	"github.com/xraph/replay/signal"
)

// BufferSignal persists a received signal for later consumption.
func (s *Store) BufferSignal(ctx context.Context, sg *signal.Signal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO replay_signals (`+signalColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sg.ID.String(), sg.ExecutionID.String(), sg.RunID.String(),
		sg.Name, sg.Payload, sg.Seq, sg.Consumed, encTime(sg.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("replay/sqlite: buffer signal: %w", err)
	}
	return nil
}

// NextSignal atomically claims the oldest unconsumed signal with the given
// name for the run.
func (s *Store) NextSignal(ctx context.Context, runID id.RunID, name string) (*signal.Signal, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("replay/sqlite: begin next signal: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	row := tx.QueryRowContext(ctx, `
		SELECT `+signalColumns+` FROM replay_signals
		WHERE run_id = ? AND name = ? AND consumed = 0
		ORDER BY seq ASC
		LIMIT 1`, runID.String(), name)

	sg, err := scanSignal(row)
	if err != nil {
		if isNoRows(err) {
			return nil, replay.ErrSignalNotFound
		}
		return nil, fmt.Errorf("replay/sqlite: next signal: %w", err)
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE replay_signals SET consumed = 1 WHERE id = ?`, sg.ID.String(),
	); err != nil {
		return nil, fmt.Errorf("replay/sqlite: consume signal: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("replay/sqlite: commit next signal: %w", err)
	}
	sg.Consumed = true
	return sg, nil
}

// PendingSignals returns all unconsumed signals for the run in Seq order.
// An empty name matches every signal.
func (s *Store) PendingSignals(ctx context.Context, runID id.RunID, name string) ([]*signal.Signal, error) {
	query := `
		SELECT ` + signalColumns + ` FROM replay_signals
		WHERE run_id = ? AND consumed = 0`
	args := []any{runID.String()}
	if name != "" {
		query += " AND name = ?"
		args = append(args, name)
	}
	query += " ORDER BY seq ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("replay/sqlite: pending signals: %w", err)
	}
	defer rows.Close()

	return collect(rows, scanSignal)
}

// TransferSignals reassigns all unconsumed signals from one run to another.
func (s *Store) TransferSignals(ctx context.Context, fromRunID, toRunID id.RunID) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE replay_signals
		SET run_id = ?
		WHERE run_id = ? AND consumed = 0`,
		toRunID.String(), fromRunID.String())
	if err != nil {
		return 0, fmt.Errorf("replay/sqlite: transfer signals: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// DeleteSignalsForRun removes all signals belonging to a run.
func (s *Store) DeleteSignalsForRun(ctx context.Context, runID id.RunID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM replay_signals WHERE run_id = ?`, runID.String())
	if err != nil {
		return fmt.Errorf("replay/sqlite: delete signals for run: %w", err)
	}
	return nil
}
