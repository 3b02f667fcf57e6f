package postgres

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
	_, err := s.pool.Exec(ctx, `
		INSERT INTO replay_timers (`+timerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.ID.String(), t.RunID.String(), t.ExecutionID.String(),
		t.ScheduledSeq, t.FireAt, string(t.State), t.FiredAt,
		t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("replay/postgres: create timer: %w", err)
	}
	return nil
}

// GetTimer retrieves a timer by ID.
func (s *Store) GetTimer(ctx context.Context, timerID id.TimerID) (*timer.Timer, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+timerColumns+` FROM replay_timers WHERE id = $1`,
		timerID.String())

	t, err := scanTimer(row)
	if err != nil {
		if isNoRows(err) {
			return nil, replay.ErrTimerNotFound
		}
		return nil, fmt.Errorf("replay/postgres: get timer: %w", err)
	}
	return t, nil
}

// DueTimers returns pending timers with FireAt <= now, ordered by FireAt.
func (s *Store) DueTimers(ctx context.Context, now time.Time, limit int) ([]*timer.Timer, error) {
	query := `
		SELECT ` + timerColumns + ` FROM replay_timers
		WHERE state = 'pending' AND fire_at <= $1
		ORDER BY fire_at ASC`
	args := []any{now}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("replay/postgres: due timers: %w", err)
	}
	defer rows.Close()

	return collect(rows, scanTimer)
}

// CompleteTimer transitions a pending timer to fired. Returns false when
// the timer is already fired or cancelled, so concurrent fire attempts
// resolve to exactly one winner.
func (s *Store) CompleteTimer(ctx context.Context, timerID id.TimerID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE replay_timers
		SET state = 'fired', fired_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND state = 'pending'`,
		timerID.String())
	if err != nil {
		return false, fmt.Errorf("replay/postgres: complete timer: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	err = s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM replay_timers WHERE id = $1)`,
		timerID.String(),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("replay/postgres: complete timer: %w", err)
	}
	if !exists {
		return false, replay.ErrTimerNotFound
	}
	return false, nil
}

// CancelTimersForRun transitions all pending timers of a run to cancelled.
func (s *Store) CancelTimersForRun(ctx context.Context, runID id.RunID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE replay_timers
		SET state = 'cancelled', updated_at = NOW()
		WHERE run_id = $1 AND state = 'pending'`,
		runID.String())
	if err != nil {
		return fmt.Errorf("replay/postgres: cancel timers for run: %w", err)
	}
	return nil
}

// DeleteTimersForRun removes all timers belonging to a run.
func (s *Store) DeleteTimersForRun(ctx context.Context, runID id.RunID) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM replay_timers WHERE run_id = $1`, runID.String())
	if err != nil {
		return fmt.Errorf("replay/postgres: delete timers for run: %w", err)
	}
	return nil
}
