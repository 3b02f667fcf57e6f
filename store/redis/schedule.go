package redis

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/xraph/replay"
	"github.com/xraph/replay/id"
	"github.com/xraph/replay/schedule"
)

// CreateSchedule persists a new schedule. Schedule names are unique.
func (s *Store) CreateSchedule(ctx context.Context, sc *schedule.Schedule) error {
	scID := sc.ID.String()

	existing, err := s.client.HGet(ctx, scheduleNamesKey, sc.Name).Result()
	if err != nil && !isRedisNil(err) {
		return fmt.Errorf("replay/redis: create schedule check name: %w", err)
	}
	if existing != "" {
		return replay.ErrDuplicateSchedule
	}

	if err := s.setEntity(ctx, scheduleKey(scID), sc); err != nil {
		return fmt.Errorf("replay/redis: create schedule: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, scheduleIDsKey, scID)
	pipe.HSet(ctx, scheduleNamesKey, sc.Name, scID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("replay/redis: create schedule indexes: %w", err)
	}
	return nil
}

// GetSchedule retrieves a schedule by ID.
func (s *Store) GetSchedule(ctx context.Context, scheduleID id.ScheduleID) (*schedule.Schedule, error) {
	var sc schedule.Schedule
	if err := s.getEntity(ctx, scheduleKey(scheduleID.String()), &sc); err != nil {
		if isRedisNil(err) {
			return nil, replay.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("replay/redis: get schedule: %w", err)
	}
	return &sc, nil
}

// ListSchedules returns all schedules.
func (s *Store) ListSchedules(ctx context.Context) ([]*schedule.Schedule, error) {
	ids, err := s.client.SMembers(ctx, scheduleIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("replay/redis: list schedules: %w", err)
	}

	schedules := make([]*schedule.Schedule, 0, len(ids))
	for _, scID := range ids {
		var sc schedule.Schedule
		if getErr := s.getEntity(ctx, scheduleKey(scID), &sc); getErr != nil {
			continue
		}
		schedules = append(schedules, &sc)
	}

	sort.Slice(schedules, func(i, k int) bool {
		return schedules[i].CreatedAt.Before(schedules[k].CreatedAt)
	})
	return schedules, nil
}

// AcquireScheduleLock attempts to acquire a distributed lock for a
// schedule. The lock is granted when it is free, expired, or already held
// by the same worker.
func (s *Store) AcquireScheduleLock(ctx context.Context, scheduleID id.ScheduleID, workerID id.WorkerID, ttl time.Duration) (bool, error) {
	key := scheduleKey(scheduleID.String())
	wID := workerID.String()
	now := time.Now().UTC()

	var sc schedule.Schedule
	if err := s.getEntity(ctx, key, &sc); err != nil {
		if isRedisNil(err) {
			return false, replay.ErrScheduleNotFound
		}
		return false, fmt.Errorf("replay/redis: acquire schedule lock get: %w", err)
	}

	if sc.LockedBy != "" && sc.LockedBy != wID {
		if sc.LockedUntil != nil && sc.LockedUntil.After(now) {
			return false, nil // lock still valid
		}
	}

	until := now.Add(ttl)
	sc.LockedBy = wID
	sc.LockedUntil = &until
	sc.UpdatedAt = now
	if err := s.setEntity(ctx, key, &sc); err != nil {
		return false, fmt.Errorf("replay/redis: acquire schedule lock set: %w", err)
	}
	return true, nil
}

// ReleaseScheduleLock releases the distributed lock for a schedule.
// Releasing a lock held by another worker is a no-op.
func (s *Store) ReleaseScheduleLock(ctx context.Context, scheduleID id.ScheduleID, workerID id.WorkerID) error {
	key := scheduleKey(scheduleID.String())

	var sc schedule.Schedule
	if err := s.getEntity(ctx, key, &sc); err != nil {
		if isRedisNil(err) {
			return nil // schedule gone, no-op
		}
		return fmt.Errorf("replay/redis: release schedule lock get: %w", err)
	}

	if sc.LockedBy != workerID.String() {
		return nil
	}

	sc.LockedBy = ""
	sc.LockedUntil = nil
	sc.UpdatedAt = time.Now().UTC()
	if err := s.setEntity(ctx, key, &sc); err != nil {
		return fmt.Errorf("replay/redis: release schedule lock set: %w", err)
	}
	return nil
}

// UpdateScheduleLastFired records when a schedule last fired.
func (s *Store) UpdateScheduleLastFired(ctx context.Context, scheduleID id.ScheduleID, at time.Time) error {
	key := scheduleKey(scheduleID.String())

	var sc schedule.Schedule
	if err := s.getEntity(ctx, key, &sc); err != nil {
		if isRedisNil(err) {
			return replay.ErrScheduleNotFound
		}
		return fmt.Errorf("replay/redis: update last fired get: %w", err)
	}

	sc.LastFiredAt = &at
	sc.UpdatedAt = time.Now().UTC()
	if err := s.setEntity(ctx, key, &sc); err != nil {
		return fmt.Errorf("replay/redis: update last fired set: %w", err)
	}
	return nil
}

// UpdateSchedule updates a schedule. Lock fields are managed by
// Acquire/Release and preserved from the stored copy.
func (s *Store) UpdateSchedule(ctx context.Context, sc *schedule.Schedule) error {
	key := scheduleKey(sc.ID.String())

	var current schedule.Schedule
	if err := s.getEntity(ctx, key, &current); err != nil {
		if isRedisNil(err) {
			return replay.ErrScheduleNotFound
		}
		return fmt.Errorf("replay/redis: update schedule get: %w", err)
	}

	next := *sc
	next.LockedBy = current.LockedBy
	next.LockedUntil = current.LockedUntil
	next.UpdatedAt = time.Now().UTC()
	if err := s.setEntity(ctx, key, &next); err != nil {
		return fmt.Errorf("replay/redis: update schedule set: %w", err)
	}
	return nil
}

// DeleteSchedule removes a schedule by ID.
func (s *Store) DeleteSchedule(ctx context.Context, scheduleID id.ScheduleID) error {
	scID := scheduleID.String()
	key := scheduleKey(scID)

	var sc schedule.Schedule
	if err := s.getEntity(ctx, key, &sc); err != nil {
		if isRedisNil(err) {
			return replay.ErrScheduleNotFound
		}
		return fmt.Errorf("replay/redis: delete schedule get: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, scheduleIDsKey, scID)
	if sc.Name != "" {
		pipe.HDel(ctx, scheduleNamesKey, sc.Name)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("replay/redis: delete schedule: %w", err)
	}
	return nil
}
