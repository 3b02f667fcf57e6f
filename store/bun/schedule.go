package bunstore

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
	m := toScheduleModel(sc)
	if _, err := s.db.NewInsert().Model(m).Exec(ctx); err != nil {
		if isDuplicateKey(err) {
			return replay.ErrDuplicateSchedule
		}
		return fmt.Errorf("replay/bun: create schedule: %w", err)
	}
	return nil
}

// GetSchedule retrieves a schedule by ID.
func (s *Store) GetSchedule(ctx context.Context, scheduleID id.ScheduleID) (*schedule.Schedule, error) {
	m := new(scheduleModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", scheduleID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, replay.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("replay/bun: get schedule: %w", err)
	}
	return fromScheduleModel(m)
}

// ListSchedules returns all schedules.
func (s *Store) ListSchedules(ctx context.Context) ([]*schedule.Schedule, error) {
	var models []scheduleModel
	err := s.db.NewSelect().Model(&models).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("replay/bun: list schedules: %w", err)
	}

	schedules := make([]*schedule.Schedule, 0, len(models))
	for i := range models {
		sc, err := fromScheduleModel(&models[i])
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, sc)
	}
	return schedules, nil
}

// AcquireScheduleLock attempts to acquire a distributed lock for a
// schedule. The lock is granted when it is free, expired, or already held
// by the same worker.
func (s *Store) AcquireScheduleLock(ctx context.Context, scheduleID id.ScheduleID, workerID id.WorkerID, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.NewUpdate().
		TableExpr("replay_schedules").
		Set("locked_by = ?", workerID.String()).
		Set("locked_until = ?", now.Add(ttl)).
		Where("id = ?", scheduleID.String()).
		Where("locked_by = '' OR locked_by = ? OR locked_until IS NULL OR locked_until <= ?",
			workerID.String(), now).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("replay/bun: acquire schedule lock: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 1 {
		return true, nil
	}

	exists, err := s.db.NewSelect().
		TableExpr("replay_schedules").
		Where("id = ?", scheduleID.String()).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("replay/bun: acquire schedule lock: %w", err)
	}
	if !exists {
		return false, replay.ErrScheduleNotFound
	}
	return false, nil
}

// ReleaseScheduleLock releases the distributed lock for a schedule.
// Releasing a lock held by another worker is a no-op.
func (s *Store) ReleaseScheduleLock(ctx context.Context, scheduleID id.ScheduleID, workerID id.WorkerID) error {
	_, err := s.db.NewUpdate().
		TableExpr("replay_schedules").
		Set("locked_by = ''").
		Set("locked_until = NULL").
		Where("id = ?", scheduleID.String()).
		Where("locked_by = ?", workerID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("replay/bun: release schedule lock: %w", err)
	}
	return nil
}

// UpdateScheduleLastFired records when a schedule last fired.
func (s *Store) UpdateScheduleLastFired(ctx context.Context, scheduleID id.ScheduleID, at time.Time) error {
	res, err := s.db.NewUpdate().
		TableExpr("replay_schedules").
		Set("last_fired_at = ?", at).
		Set("updated_at = NOW()").
		Where("id = ?", scheduleID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("replay/bun: update schedule last fired: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return replay.ErrScheduleNotFound
	}
	return nil
}

// UpdateSchedule updates a schedule. Lock fields are managed by
// Acquire/Release and left untouched here.
func (s *Store) UpdateSchedule(ctx context.Context, sc *schedule.Schedule) error {
	m := toScheduleModel(sc)
	m.UpdatedAt = time.Now().UTC()
	res, err := s.db.NewUpdate().Model(m).
		Column("name", "spec", "workflow", "task_queue", "input",
			"scope_app_id", "scope_org_id", "last_fired_at", "next_fire_at",
			"enabled", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("replay/bun: update schedule: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return replay.ErrScheduleNotFound
	}
	return nil
}

// DeleteSchedule removes a schedule by ID.
func (s *Store) DeleteSchedule(ctx context.Context, scheduleID id.ScheduleID) error {
	res, err := s.db.NewDelete().
		TableExpr("replay_schedules").
		Where("id = ?", scheduleID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("replay/bun: delete schedule: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return replay.ErrScheduleNotFound
	}
	return nil
}
