package schedule

import (
	"context"
	"time"

	"github.com/xraph/replay/id"
)

// Store defines the persistence contract for schedules.
type Store interface {
	// CreateSchedule persists a new schedule. Returns
	// replay.ErrDuplicateSchedule if the name already exists.
	CreateSchedule(ctx context.Context, s *Schedule) error

	// GetSchedule retrieves a schedule by ID.
	GetSchedule(ctx context.Context, scheduleID id.ScheduleID) (*Schedule, error)

	// ListSchedules returns all schedules.
	ListSchedules(ctx context.Context) ([]*Schedule, error)

	// AcquireScheduleLock attempts to acquire a distributed lock for a
	// schedule. Returns true if the lock was acquired. The lock expires
	// after ttl.
	AcquireScheduleLock(ctx context.Context, scheduleID id.ScheduleID, workerID id.WorkerID, ttl time.Duration) (bool, error)

	// ReleaseScheduleLock releases the distributed lock for a schedule.
	ReleaseScheduleLock(ctx context.Context, scheduleID id.ScheduleID, workerID id.WorkerID) error

	// UpdateScheduleLastFired records when a schedule last fired.
	UpdateScheduleLastFired(ctx context.Context, scheduleID id.ScheduleID, at time.Time) error

	// UpdateSchedule updates a schedule (Enabled, NextFireAt, etc.).
	UpdateSchedule(ctx context.Context, s *Schedule) error

	// DeleteSchedule removes a schedule by ID.
	DeleteSchedule(ctx context.Context, scheduleID id.ScheduleID) error
}
