package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/replay"
	"github.com/xraph/replay/id"
	"github.com/xraph/replay/timer"
)

// CreateTimer persists a new pending timer.
func (s *Store) CreateTimer(ctx context.Context, t *timer.Timer) error {
	m := toTimerModel(t)
	if _, err := s.db.NewInsert().Model(m).Exec(ctx); err != nil {
		return fmt.Errorf("replay/bun: create timer: %w", err)
	}
	return nil
}

// GetTimer retrieves a timer by ID.
func (s *Store) GetTimer(ctx context.Context, timerID id.TimerID) (*timer.Timer, error) {
	m := new(timerModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", timerID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, replay.ErrTimerNotFound
		}
		return nil, fmt.Errorf("replay/bun: get timer: %w", err)
	}
	return fromTimerModel(m)
}

// DueTimers returns pending timers with FireAt <= now, ordered by FireAt.
func (s *Store) DueTimers(ctx context.Context, now time.Time, limit int) ([]*timer.Timer, error) {
	var models []timerModel
	q := s.db.NewSelect().Model(&models).
		Where("state = ?", string(timer.StatePending)).
		Where("fire_at <= ?", now).
		Order("fire_at ASC")

	if limit > 0 {
		q = q.Limit(limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("replay/bun: due timers: %w", err)
	}

	timers := make([]*timer.Timer, 0, len(models))
	for i := range models {
		t, err := fromTimerModel(&models[i])
		if err != nil {
			return nil, err
		}
		timers = append(timers, t)
	}
	return timers, nil
}

// CompleteTimer transitions a pending timer to fired. The conditional
// update doubles as the claim: returns false when another caller already
// fired or cancelled the timer.
func (s *Store) CompleteTimer(ctx context.Context, timerID id.TimerID) (bool, error) {
	res, err := s.db.NewUpdate().
		TableExpr("replay_timers").
		Set("state = ?", string(timer.StateFired)).
		Set("fired_at = NOW()").
		Set("updated_at = NOW()").
		Where("id = ?", timerID.String()).
		Where("state = ?", string(timer.StatePending)).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("replay/bun: complete timer: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 1 {
		return true, nil
	}

	exists, err := s.db.NewSelect().
		TableExpr("replay_timers").
		Where("id = ?", timerID.String()).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("replay/bun: complete timer: %w", err)
	}
	if !exists {
		return false, replay.ErrTimerNotFound
	}
	return false, nil
}

// CancelTimersForRun transitions all pending timers of a run to cancelled.
func (s *Store) CancelTimersForRun(ctx context.Context, runID id.RunID) error {
	_, err := s.db.NewUpdate().
		TableExpr("replay_timers").
		Set("state = ?", string(timer.StateCancelled)).
		Set("updated_at = NOW()").
		Where("run_id = ?", runID.String()).
		Where("state = ?", string(timer.StatePending)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("replay/bun: cancel timers for run: %w", err)
	}
	return nil
}

// DeleteTimersForRun removes all timers of a run.
func (s *Store) DeleteTimersForRun(ctx context.Context, runID id.RunID) error {
	_, err := s.db.NewDelete().
		TableExpr("replay_timers").
		Where("run_id = ?", runID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("replay/bun: delete timers for run: %w", err)
	}
	return nil
}
