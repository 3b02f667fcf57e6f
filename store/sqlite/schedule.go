package sqlite

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
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO replay_schedules (`+scheduleColumns+`) VALUES (
			?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		)`,
		sc.ID.String(), sc.Name, sc.Spec, sc.Workflow, sc.TaskQueue, sc.Input,
		sc.ScopeAppID, sc.ScopeOrgID, encTimePtr(sc.LastFiredAt),
		encTimePtr(sc.NextFireAt), sc.LockedBy, encTimePtr(sc.LockedUntil),
		sc.Enabled, encTime(sc.CreatedAt), encTime(sc.UpdatedAt),
	)
	if err != nil {
		if isDuplicateKey(err) {
			return replay.ErrDuplicateSchedule
		}
		return fmt.Errorf("replay/sqlite: create schedule: %w", err)
	}
	return nil
}

// GetSchedule retrieves a schedule by ID.
func (s *Store) GetSchedule(ctx context.Context, scheduleID id.ScheduleID) (*schedule.Schedule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+` FROM replay_schedules WHERE id = ?`,
		scheduleID.String())

	sc, err := scanSchedule(row)
	if err != nil {
		if isNoRows(err) {
			return nil, replay.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("replay/sqlite: get schedule: %w", err)
	}
	return sc, nil
}

// ListSchedules returns all schedules.
func (s *Store) ListSchedules(ctx context.Context) ([]*schedule.Schedule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+scheduleColumns+` FROM replay_schedules ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("replay/sqlite: list schedules: %w", err)
	}
	defer rows.Close()

	return collect(rows, scanSchedule)
}

// AcquireScheduleLock attempts to acquire a distributed lock for a
// schedule. The lock is granted when it is free, expired, or already held
// by the same worker.
func (s *Store) AcquireScheduleLock(ctx context.Context, scheduleID id.ScheduleID, workerID id.WorkerID, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE replay_schedules
		SET locked_by = ?, locked_until = ?
		WHERE id = ?
		  AND (locked_by = '' OR locked_by = ?
			OR locked_until IS NULL OR locked_until <= ?)`,
		workerID.String(), encTime(now.Add(ttl)), scheduleID.String(),
		workerID.String(), encTime(now))
	if err != nil {
		return false, fmt.Errorf("replay/sqlite: acquire schedule lock: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return true, nil
	}

	var exists bool
	err = s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM replay_schedules WHERE id = ?)`,
		scheduleID.String(),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("replay/sqlite: acquire schedule lock: %w", err)
	}
	if !exists {
		return false, replay.ErrScheduleNotFound
	}
	return false, nil
}

// ReleaseScheduleLock releases the distributed lock for a schedule.
// Releasing a lock held by another worker is a no-op.
func (s *Store) ReleaseScheduleLock(ctx context.Context, scheduleID id.ScheduleID, workerID id.WorkerID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE replay_schedules
		SET locked_by = '', locked_until = NULL
		WHERE id = ? AND locked_by = ?`,
		scheduleID.String(), workerID.String())
	if err != nil {
		return fmt.Errorf("replay/sqlite: release schedule lock: %w", err)
	}
	return nil
}

// UpdateScheduleLastFired records when a schedule last fired.
func (s *Store) UpdateScheduleLastFired(ctx context.Context, scheduleID id.ScheduleID, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE replay_schedules
		SET last_fired_at = ?, updated_at = ?
		WHERE id = ?`,
		encTime(at), nowNano(), scheduleID.String())
	if err != nil {
		return fmt.Errorf("replay/sqlite: update schedule last fired: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return replay.ErrScheduleNotFound
	}
	return nil
}

// UpdateSchedule updates a schedule. Lock fields are managed by
// Acquire/Release and left untouched here.
func (s *Store) UpdateSchedule(ctx context.Context, sc *schedule.Schedule) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE replay_schedules SET
			name = ?, spec = ?, workflow = ?, task_queue = ?, input = ?,
			scope_app_id = ?, scope_org_id = ?, last_fired_at = ?,
			next_fire_at = ?, enabled = ?, updated_at = ?
		WHERE id = ?`,
		sc.Name, sc.Spec, sc.Workflow, sc.TaskQueue, sc.Input,
		sc.ScopeAppID, sc.ScopeOrgID, encTimePtr(sc.LastFiredAt),
		encTimePtr(sc.NextFireAt), sc.Enabled, nowNano(), sc.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("replay/sqlite: update schedule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return replay.ErrScheduleNotFound
	}
	return nil
}

// DeleteSchedule removes a schedule by ID.
func (s *Store) DeleteSchedule(ctx context.Context, scheduleID id.ScheduleID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM replay_schedules WHERE id = ?`, scheduleID.String())
	if err != nil {
		return fmt.Errorf("replay/sqlite: delete schedule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return replay.ErrScheduleNotFound
	}
	return nil
}
