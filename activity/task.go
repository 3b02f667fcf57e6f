package activity

import (
	"time"

	"github.com/xraph/replay"
	"github.com/xraph/replay/backoff"
	"github.com/xraph/replay/id"
)

// State represents the lifecycle state of an activity task.
type State string

const (
	// StateScheduled means the task is waiting to be leased by a worker.
	StateScheduled State = "scheduled"
	// StateRunning means a worker is currently executing the task.
	StateRunning State = "running"
	// StateCompleted means the task finished successfully.
	StateCompleted State = "completed"
	// StateFailed means the task failed and its retry budget is spent.
	StateFailed State = "failed"
	// StateRetrying means an attempt failed and the next one is scheduled.
	StateRetrying State = "retrying"
	// StateCancelled means the owning run was cancelled before completion.
	StateCancelled State = "cancelled"
)

// Task is one scheduled invocation of an activity for a workflow run.
type Task struct {
	replay.Entity

	ID          id.ActivityID  `json:"id"`
	RunID       id.RunID       `json:"run_id"`
	ExecutionID id.ExecutionID `json:"execution_id"`
	Name        string         `json:"name"`
	TaskQueue   string         `json:"task_queue"`
	Input       []byte         `json:"input,omitempty"`
	State       State          `json:"state"`

	// ScheduledSeq is the history Seq of the ActivityScheduled event this
	// task was created for. The completion event points back at it.
	ScheduledSeq int64 `json:"scheduled_seq"`

	// Attempt counts attempts that have started, 1-based once running.
	Attempt int `json:"attempt"`

	RetryPolicy         backoff.Policy `json:"retry_policy"`
	StartToCloseTimeout time.Duration  `json:"start_to_close_timeout,omitempty"`
	HeartbeatTimeout    time.Duration  `json:"heartbeat_timeout,omitempty"`

	LastError  string      `json:"last_error,omitempty"`
	Result     []byte      `json:"result,omitempty"`
	ScopeAppID string      `json:"scope_app_id,omitempty"`
	ScopeOrgID string      `json:"scope_org_id,omitempty"`
	WorkerID   id.WorkerID `json:"worker_id,omitempty"`

	// RunAt is the earliest time the task may be dequeued. Retry delays
	// push it into the future.
	RunAt       time.Time  `json:"run_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	HeartbeatAt *time.Time `json:"heartbeat_at,omitempty"`
}

// Terminal reports whether the task state is final.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// StaleAfter returns the heartbeat deadline for this task given the pool's
// default threshold. A per-definition HeartbeatTimeout takes precedence.
func (t *Task) StaleAfter(defaultThreshold time.Duration) time.Duration {
	if t.HeartbeatTimeout > 0 {
		return t.HeartbeatTimeout
	}
	return defaultThreshold
}

// Deadline returns the absolute start-to-close deadline for a running task,
// or the zero time when no start-to-close timeout is set.
func (t *Task) Deadline() time.Time {
	if t.StartToCloseTimeout <= 0 || t.StartedAt == nil {
		return time.Time{}
	}
	return t.StartedAt.Add(t.StartToCloseTimeout)
}
