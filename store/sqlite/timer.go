package sqlite

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
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO replay_timers (`+timerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID.String(), t.RunID.String(), t.ExecutionID.String(),
		t.ScheduledSeq, encTime(t.FireAt), string(t.State),
		encTimePtr(t.FiredAt), encTime(t.CreatedAt), encTime(t.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("replay/sqlite: create timer: %w", err)
	}
	return nil
}

// GetTimer retrieves a timer by ID.
func (s *Store) GetTimer(ctx context.Context, timerID id.TimerID) (*timer.Timer, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+timerColumns+` FROM replay_timers WHERE id = ?`,
		timerID.String())

	t, err := scanTimer(row)
	if err != nil {
		if isNoRows(err) {
			return nil, replay.ErrTimerNotFound
		}
		return nil, fmt.Errorf("replay/sqlite: get timer: %w", err)
	}
	return t, nil
}

// DueTimers returns pending timers with FireAt <= now, ordered by FireAt.
func (s *Store) DueTimers(ctx context.Context, now time.Time, limit int) ([]*timer.Timer, error) {
	query := `
		SELECT ` + timerColumns + ` FROM replay_timers
		WHERE state = 'pending' AND fire_at <= ?
		ORDER BY fire_at ASC`
	args := []any{encTime(now)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("replay/sqlite: due timers: %w", err)
	}
	defer rows.Close()

	return collect(rows, scanTimer)
}

// CompleteTimer transitions a pending timer to fired. Returns false when
// the timer is already fired or cancelled.
func (s *Store) CompleteTimer(ctx context.Context, timerID id.TimerID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE replay_timers
		SET state = 'fired', fired_at = ?, updated_at = ?
		WHERE id = ? AND state = 'pending'`,
		nowNano(), nowNano(), timerID.String())
	if err != nil {
		return false, fmt.Errorf("replay/sqlite: complete timer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return true, nil
	}

	var exists bool
	err = s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM replay_timers WHERE id = ?)`,
		timerID.String(),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("replay/sqlite: complete timer: %w", err)
	}
	if !exists {
		return false, replay.ErrTimerNotFound
	}
	return false, nil
}

// CancelTimersForRun transitions all pending timers of a run to cancelled.
func (s *Store) CancelTimersForRun(ctx context.Context, runID id.RunID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE replay_timers
		SET state = 'cancelled', updated_at = ?
		WHERE run_id = ? AND state = 'pending'`,
		nowNano(), runID.String())
	if err != nil {
		return fmt.Errorf("replay/sqlite: cancel timers for run: %w", err)
	}
	return nil
}

// DeleteTimersForRun removes all timers belonging to a run.
func (s *Store) DeleteTimersForRun(ctx context.Context, runID id.RunID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM replay_timers WHERE run_id = ?`, runID.String())
	if err != nil {
		return fmt.Errorf("replay/sqlite: delete timers for run: %w", err)
	}
	return nil
}
