package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/replay"
	"github.com/xraph/replay/id"
	"github.com/xraph/replay/schedule"
)

// CreateSchedule persists a new schedule. Schedule names are unique.
func (s *Store) CreateSchedule(ctx context.Context, sc *schedule.Schedule) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO replay_schedules (`+scheduleColumns+`) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		)`,
		sc.ID.String(), sc.Name, sc.Spec, sc.Workflow, sc.TaskQueue, sc.Input,
		sc.ScopeAppID, sc.ScopeOrgID, sc.LastFiredAt, sc.NextFireAt,
		sc.LockedBy, sc.LockedUntil, sc.Enabled, sc.CreatedAt, sc.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return replay.ErrDuplicateSchedule
		}
		return fmt.Errorf("replay/postgres: create schedule: %w", err)
	}
	return nil
}

// GetSchedule retrieves a schedule by ID.
func (s *Store) GetSchedule(ctx context.Context, scheduleID id.ScheduleID) (*schedule.Schedule, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+scheduleColumns+` FROM replay_schedules WHERE id = $1`,
		scheduleID.String())

	sc, err := scanSchedule(row)
	if err != nil {
		if isNoRows(err) {
			return nil, replay.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("replay/postgres: get schedule: %w", err)
	}
	return sc, nil
}

// ListSchedules returns all schedules.
func (s *Store) ListSchedules(ctx context.Context) ([]*schedule.Schedule, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+scheduleColumns+` FROM replay_schedules ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("replay/postgres: list schedules: %w", err)
	}
	defer rows.Close()

	return collect(rows, scanSchedule)
}

// AcquireScheduleLock attempts to acquire a distributed lock for a
// schedule. The lock is granted when it is free, expired, or already held
// by the same worker.
func (s *Store) AcquireScheduleLock(ctx context.Context, scheduleID id.ScheduleID, workerID id.WorkerID, ttl time.Duration) (bool, error) {
	until := time.Now().UTC().Add(ttl)
	tag, err := s.pool.Exec(ctx, `
		UPDATE replay_schedules
		SET locked_by = $2, locked_until = $3
		WHERE id = $1
		  AND (locked_by = '' OR locked_by = $2
			OR locked_until IS NULL OR locked_until <= NOW())`,
		scheduleID.String(), workerID.String(), until)
	if err != nil {
		return false, fmt.Errorf("replay/postgres: acquire schedule lock: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	err = s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM replay_schedules WHERE id = $1)`,
		scheduleID.String(),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("replay/postgres: acquire schedule lock: %w", err)
	}
	if !exists {
		return false, replay.ErrScheduleNotFound
	}
	return false, nil
}

// ReleaseScheduleLock releases the distributed lock for a schedule.
// Releasing a lock held by another worker is a no-op.
func (s *Store) ReleaseScheduleLock(ctx context.Context, scheduleID id.ScheduleID, workerID id.WorkerID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE replay_schedules
		SET locked_by = '', locked_until = NULL
		WHERE id = $1 AND locked_by = $2`,
		scheduleID.String(), workerID.String())
	if err != nil {
		return fmt.Errorf("replay/postgres: release schedule lock: %w", err)
	}
	return nil
}

// UpdateScheduleLastFired records when a schedule last fired.
func (s *Store) UpdateScheduleLastFired(ctx context.Context, scheduleID id.ScheduleID, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE replay_schedules
		SET last_fired_at = $2, updated_at = NOW()
		WHERE id = $1`,
		scheduleID.String(), at)
	if err != nil {
		return fmt.Errorf("replay/postgres: update schedule last fired: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return replay.ErrScheduleNotFound
	}
	return nil
}

// UpdateSchedule updates a schedule. Lock fields are managed by
// Acquire/Release and left untouched here.
func (s *Store) UpdateSchedule(ctx context.Context, sc *schedule.Schedule) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE replay_schedules SET
			name = $2, spec = $3, workflow = $4, task_queue = $5, input = $6,
			scope_app_id = $7, scope_org_id = $8, last_fired_at = $9,
			next_fire_at = $10, enabled = $11, updated_at = NOW()
		WHERE id = $1`,
		sc.ID.String(), sc.Name, sc.Spec, sc.Workflow, sc.TaskQueue, sc.Input,
		sc.ScopeAppID, sc.ScopeOrgID, sc.LastFiredAt, sc.NextFireAt, sc.Enabled,
	)
	if err != nil {
		return fmt.Errorf("replay/postgres: update schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return replay.ErrScheduleNotFound
	}
	return nil
}

// DeleteSchedule removes a schedule by ID.
func (s *Store) DeleteSchedule(ctx context.Context, scheduleID id.ScheduleID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM replay_schedules WHERE id = $1`, scheduleID.String())
	if err != nil {
		return fmt.Errorf("replay/postgres: delete schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return replay.ErrScheduleNotFound
	}
	return nil
}
