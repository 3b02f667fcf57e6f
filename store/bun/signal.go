package bunstore

import (
	"context"
	"fmt"

	"github.com/xraph/replay"
	"github.com/xraph/replay/id"
	"github.com/xraph/replay/signal"
)

// BufferSignal persists a signal for later consumption.
func (s *Store) BufferSignal(ctx context.Context, sg *signal.Signal) error {
	m := toSignalModel(sg)
	if _, err := s.db.NewInsert().Model(m).Exec(ctx); err != nil {
		return fmt.Errorf("replay/bun: buffer signal: %w", err)
	}
	return nil
}

// NextSignal claims the oldest unconsumed signal with the given name for
// the run, marking it consumed. FOR UPDATE SKIP LOCKED keeps concurrent
// consumers from claiming the same signal.
func (s *Store) NextSignal(ctx context.Context, runID id.RunID, name string) (*signal.Signal, error) {
	var models []signalModel
	_, err := s.db.NewRaw(`
		UPDATE replay_signals
		SET consumed = TRUE
		WHERE id = (
			SELECT id FROM replay_signals
			WHERE run_id = ?0 AND name = ?1 AND NOT consumed
			ORDER BY seq ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING *`,
		runID.String(), name,
	).Exec(ctx, &models)
	if err != nil {
		return nil, fmt.Errorf("replay/bun: next signal: %w", err)
	}
	if len(models) == 0 {
		return nil, replay.ErrSignalNotFound
	}
	return fromSignalModel(&models[0])
}

// PendingSignals returns all unconsumed signals for the run in Seq order.
// An empty name matches every signal.
func (s *Store) PendingSignals(ctx context.Context, runID id.RunID, name string) ([]*signal.Signal, error) {
	var models []signalModel
	q := s.db.NewSelect().Model(&models).
		Where("run_id = ?", runID.String()).
		Where("NOT consumed")

	if name != "" {
		q = q.Where("name = ?", name)
	}

	if err := q.Order("seq ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("replay/bun: pending signals: %w", err)
	}

	signals := make([]*signal.Signal, 0, len(models))
	for i := range models {
		sg, err := fromSignalModel(&models[i])
		if err != nil {
			return nil, err
		}
		signals = append(signals, sg)
	}
	return signals, nil
}

// TransferSignals reassigns all unconsumed signals from one run to
// another. Used by continue-as-new so buffered signals survive the run
// boundary.
func (s *Store) TransferSignals(ctx context.Context, fromRunID, toRunID id.RunID) (int, error) {
	res, err := s.db.NewUpdate().
		TableExpr("replay_signals").
		Set("run_id = ?", toRunID.String()).
		Where("run_id = ?", fromRunID.String()).
		Where("NOT consumed").
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("replay/bun: transfer signals: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	return int(rows), nil
}

// DeleteSignalsForRun removes all signals buffered for a run.
func (s *Store) DeleteSignalsForRun(ctx context.Context, runID id.RunID) error {
	_, err := s.db.NewDelete().
		TableExpr("replay_signals").
		Where("run_id = ?", runID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("replay/bun: delete signals for run: %w", err)
	}
	return nil
}
