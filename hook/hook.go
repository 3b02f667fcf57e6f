// Package hook defines the lifecycle hook system for Replay.
// Hooks are notified of lifecycle events (execution started, activity
// failed, timer fired, etc.) and can react to them: metrics, audit
// trails, stream fan-out.
//
// Each lifecycle event is a separate interface so hooks opt in only to
// the events they care about.
package hook

import (
	"context"
	"time"

	"github.com/xraph/replay/activity"
	"github.com/xraph/replay/id"
	"github.com/xraph/replay/workflow"
)

// Hook is the base interface all hooks must implement.
type Hook interface {
	// Name returns a unique human-readable name for the hook.
	Name() string
}

// ──────────────────────────────────────────────────
// Execution lifecycle hooks
// ──────────────────────────────────────────────────

// ExecutionStarted is called when a workflow run begins.
type ExecutionStarted interface {
	OnExecutionStarted(ctx context.Context, r *workflow.Run) error
}

// ExecutionCompleted is called after a run finishes successfully.
type ExecutionCompleted interface {
	OnExecutionCompleted(ctx context.Context, r *workflow.Run, elapsed time.Duration) error
}

// ExecutionFailed is called when a run fails terminally.
type ExecutionFailed interface {
	OnExecutionFailed(ctx context.Context, r *workflow.Run, err error) error
}

// ExecutionCancelled is called when a run is cancelled.
type ExecutionCancelled interface {
	OnExecutionCancelled(ctx context.Context, r *workflow.Run, reason string) error
}

// ExecutionContinuedAsNew is called when a run hands off to a fresh run
// under the same execution ID.
type ExecutionContinuedAsNew interface {
	OnExecutionContinuedAsNew(ctx context.Context, old *workflow.Run, newRunID id.RunID) error
}

// ──────────────────────────────────────────────────
// Activity lifecycle hooks
// ──────────────────────────────────────────────────

// ActivityScheduled is called after an activity task is persisted.
type ActivityScheduled interface {
	OnActivityScheduled(ctx context.Context, t *activity.Task) error
}

// ActivityStarted is called when a worker begins executing a task.
type ActivityStarted interface {
	OnActivityStarted(ctx context.Context, t *activity.Task) error
}

// ActivityCompleted is called after a task finishes successfully.
type ActivityCompleted interface {
	OnActivityCompleted(ctx context.Context, t *activity.Task, elapsed time.Duration) error
}

// ActivityFailed is called when a task fails terminally (no more retries).
type ActivityFailed interface {
	OnActivityFailed(ctx context.Context, t *activity.Task, err error) error
}

// ActivityRetrying is called when an attempt fails and the next one is
// scheduled.
type ActivityRetrying interface {
	OnActivityRetrying(ctx context.Context, t *activity.Task, attempt int, nextRunAt time.Time) error
}

// ActivityDLQ is called when a task is moved to the dead letter queue.
type ActivityDLQ interface {
	OnActivityDLQ(ctx context.Context, t *activity.Task, err error) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// TimerFired is called when a durable timer fires.
type TimerFired interface {
	OnTimerFired(ctx context.Context, runID id.RunID, timerID id.TimerID) error
}

// SignalReceived is called after a signal is journaled into a run.
type SignalReceived interface {
	OnSignalReceived(ctx context.Context, runID id.RunID, name string) error
}

// ScheduleFired is called when a schedule fires and starts an execution.
type ScheduleFired interface {
	OnScheduleFired(ctx context.Context, scheduleName string, executionID id.ExecutionID) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
