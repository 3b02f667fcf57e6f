package activity

import (
	"context"
	"time"

	"github.com/xraph/replay/id"
)

// ListOpts controls pagination and filtering for task list queries.
type ListOpts struct {
	// Limit is the maximum number of tasks to return. Zero means no limit.
	Limit int
	// Offset is the number of tasks to skip.
	Offset int
	// TaskQueue filters by queue name. Empty means all queues.
	TaskQueue string
}

// CountOpts controls filtering for task count queries.
type CountOpts struct {
	// TaskQueue filters by queue name. Empty means all queues.
	TaskQueue string
	// State filters by task state. Empty means all states.
	State State
}

// Store defines the persistence contract for activity tasks.
type Store interface {
	// ScheduleTask persists a new task in scheduled state.
	ScheduleTask(ctx context.Context, t *Task) error

	// DequeueTasks atomically leases up to limit due tasks from the given
	// queues, sets them to running, stamps StartedAt and the worker, and
	// returns them. Tasks are ordered by RunAt (ascending).
	DequeueTasks(ctx context.Context, queues []string, workerID id.WorkerID, limit int) ([]*Task, error)

	// GetTask retrieves a task by ID.
	GetTask(ctx context.Context, taskID id.ActivityID) (*Task, error)

	// UpdateTask persists changes to an existing task.
	UpdateTask(ctx context.Context, t *Task) error

	// DeleteTask removes a task by ID.
	DeleteTask(ctx context.Context, taskID id.ActivityID) error

	// ListTasksByState returns tasks matching the given state.
	ListTasksByState(ctx context.Context, state State, opts ListOpts) ([]*Task, error)

	// ListTasksForRun returns all tasks belonging to a run, in
	// ScheduledSeq order.
	ListTasksForRun(ctx context.Context, runID id.RunID) ([]*Task, error)

	// HeartbeatTask updates the heartbeat timestamp for a running task,
	// indicating the worker is still alive.
	HeartbeatTask(ctx context.Context, taskID id.ActivityID, workerID id.WorkerID) error

	// ReapStaleTasks returns running tasks whose heartbeat deadline
	// (per-task HeartbeatTimeout, or defaultThreshold when unset) or
	// start-to-close deadline has lapsed.
	ReapStaleTasks(ctx context.Context, defaultThreshold time.Duration) ([]*Task, error)

	// CancelTasksForRun transitions all non-terminal tasks of a run to
	// cancelled and returns the affected tasks.
	CancelTasksForRun(ctx context.Context, runID id.RunID) ([]*Task, error)

	// CountTasks returns the number of tasks matching the given options.
	CountTasks(ctx context.Context, opts CountOpts) (int64, error)
}
