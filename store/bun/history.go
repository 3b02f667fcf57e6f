package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/xraph/replay"
	"github.com/xraph/replay/history"
	"github.com/xraph/replay/id"
)

// AppendEvents appends events to a run's journal inside a transaction,
// assigning consecutive Seq values starting at expectedNextSeq. The
// unique (run_id, seq) index turns concurrent-append races into
// replay.ErrHistoryConflict.
func (s *Store) AppendEvents(ctx context.Context, runID id.RunID, expectedNextSeq int64, events []*history.Event) error {
	if len(events) == 0 {
		return nil
	}

	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var latest int64
		err := tx.NewSelect().
			TableExpr("replay_history").
			ColumnExpr("COALESCE(MAX(seq), 0)").
			Where("run_id = ?", runID.String()).
			Scan(ctx, &latest)
		if err != nil {
			return fmt.Errorf("read history cursor: %w", err)
		}
		if expectedNextSeq != latest+1 {
			return replay.ErrHistoryConflict
		}

		models := make([]eventModel, 0, len(events))
		for i, ev := range events {
			ev.Seq = expectedNextSeq + int64(i)
			models = append(models, *toEventModel(ev))
		}
		if _, err := tx.NewInsert().Model(&models).Exec(ctx); err != nil {
			if isDuplicateKey(err) {
				return replay.ErrHistoryConflict
			}
			return fmt.Errorf("insert events: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, replay.ErrHistoryConflict) {
			return replay.ErrHistoryConflict
		}
		return fmt.Errorf("replay/bun: append events: %w", err)
	}
	return nil
}

// ListEvents returns up to limit events with Seq > afterSeq, in order.
func (s *Store) ListEvents(ctx context.Context, runID id.RunID, afterSeq int64, limit int) ([]*history.Event, error) {
	var models []eventModel
	q := s.db.NewSelect().Model(&models).
		Where("run_id = ?", runID.String()).
		Where("seq > ?", afterSeq).
		Order("seq ASC")

	if limit > 0 {
		q = q.Limit(limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("replay/bun: list events: %w", err)
	}

	events := make([]*history.Event, 0, len(models))
	for i := range models {
		ev, err := fromEventModel(&models[i])
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// LatestSeq returns the highest Seq appended for the run, or zero when the
// run has no history.
func (s *Store) LatestSeq(ctx context.Context, runID id.RunID) (int64, error) {
	var latest int64
	err := s.db.NewSelect().
		TableExpr("replay_history").
		ColumnExpr("COALESCE(MAX(seq), 0)").
		Where("run_id = ?", runID.String()).
		Scan(ctx, &latest)
	if err != nil {
		return 0, fmt.Errorf("replay/bun: latest seq: %w", err)
	}
	return latest, nil
}

// DeleteHistory removes the full journal for a run.
func (s *Store) DeleteHistory(ctx context.Context, runID id.RunID) error {
	_, err := s.db.NewDelete().
		TableExpr("replay_history").
		Where("run_id = ?", runID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("replay/bun: delete history: %w", err)
	}
	return nil
}
