package hook

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/replay/activity"
	"github.com/xraph/replay/id"
	"github.com/xraph/replay/workflow"
)

// Named entry types pair a hook implementation with the hook name
// captured at registration time. This avoids type-asserting back to
// Hook inside the emit methods.
type executionStartedEntry struct {
	name string
	hook ExecutionStarted
}

type executionCompletedEntry struct {
	name string
	hook ExecutionCompleted
}

type executionFailedEntry struct {
	name string
	hook ExecutionFailed
}

type executionCancelledEntry struct {
	name string
	hook ExecutionCancelled
}

type executionContinuedEntry struct {
	name string
	hook ExecutionContinuedAsNew
}

type activityScheduledEntry struct {
	name string
	hook ActivityScheduled
}

type activityStartedEntry struct {
	name string
	hook ActivityStarted
}

type activityCompletedEntry struct {
	name string
	hook ActivityCompleted
}

type activityFailedEntry struct {
	name string
	hook ActivityFailed
}

type activityRetryingEntry struct {
	name string
	hook ActivityRetrying
}

type activityDLQEntry struct {
	name string
	hook ActivityDLQ
}

type timerFiredEntry struct {
	name string
	hook TimerFired
}

type signalReceivedEntry struct {
	name string
	hook SignalReceived
}

type scheduleFiredEntry struct {
	name string
	hook ScheduleFired
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered hooks and dispatches lifecycle events to
// them. It type-caches hooks at registration time so emit calls iterate
// only over hooks that implement the relevant event.
type Registry struct {
	hooks  []Hook
	logger *slog.Logger

	// Type-cached slices for each lifecycle event.
	executionStarted   []executionStartedEntry
	executionCompleted []executionCompletedEntry
	executionFailed    []executionFailedEntry
	executionCancelled []executionCancelledEntry
	executionContinued []executionContinuedEntry
	activityScheduled  []activityScheduledEntry
	activityStarted    []activityStartedEntry
	activityCompleted  []activityCompletedEntry
	activityFailed     []activityFailedEntry
	activityRetrying   []activityRetryingEntry
	activityDLQ        []activityDLQEntry
	timerFired         []timerFiredEntry
	signalReceived     []signalReceivedEntry
	scheduleFired      []scheduleFiredEntry
	shutdown           []shutdownEntry
}

// NewRegistry creates a hook registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds a hook and type-asserts it into all applicable event
// caches. Hooks are notified in registration order.
func (r *Registry) Register(h Hook) {
	r.hooks = append(r.hooks, h)
	name := h.Name()

	if e, ok := h.(ExecutionStarted); ok {
		r.executionStarted = append(r.executionStarted, executionStartedEntry{name, e})
	}
	if e, ok := h.(ExecutionCompleted); ok {
		r.executionCompleted = append(r.executionCompleted, executionCompletedEntry{name, e})
	}
	if e, ok := h.(ExecutionFailed); ok {
		r.executionFailed = append(r.executionFailed, executionFailedEntry{name, e})
	}
	if e, ok := h.(ExecutionCancelled); ok {
		r.executionCancelled = append(r.executionCancelled, executionCancelledEntry{name, e})
	}
	if e, ok := h.(ExecutionContinuedAsNew); ok {
		r.executionContinued = append(r.executionContinued, executionContinuedEntry{name, e})
	}
	if e, ok := h.(ActivityScheduled); ok {
		r.activityScheduled = append(r.activityScheduled, activityScheduledEntry{name, e})
	}
	if e, ok := h.(ActivityStarted); ok {
		r.activityStarted = append(r.activityStarted, activityStartedEntry{name, e})
	}
	if e, ok := h.(ActivityCompleted); ok {
		r.activityCompleted = append(r.activityCompleted, activityCompletedEntry{name, e})
	}
	if e, ok := h.(ActivityFailed); ok {
		r.activityFailed = append(r.activityFailed, activityFailedEntry{name, e})
	}
	if e, ok := h.(ActivityRetrying); ok {
		r.activityRetrying = append(r.activityRetrying, activityRetryingEntry{name, e})
	}
	if e, ok := h.(ActivityDLQ); ok {
		r.activityDLQ = append(r.activityDLQ, activityDLQEntry{name, e})
	}
	if e, ok := h.(TimerFired); ok {
		r.timerFired = append(r.timerFired, timerFiredEntry{name, e})
	}
	if e, ok := h.(SignalReceived); ok {
		r.signalReceived = append(r.signalReceived, signalReceivedEntry{name, e})
	}
	if e, ok := h.(ScheduleFired); ok {
		r.scheduleFired = append(r.scheduleFired, scheduleFiredEntry{name, e})
	}
	if e, ok := h.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, e})
	}
}

// Hooks returns all registered hooks.
func (r *Registry) Hooks() []Hook { return r.hooks }

// ──────────────────────────────────────────────────
// Execution event emitters
// ──────────────────────────────────────────────────

// EmitExecutionStarted notifies all hooks that implement ExecutionStarted.
func (r *Registry) EmitExecutionStarted(ctx context.Context, run *workflow.Run) {
	for _, e := range r.executionStarted {
		if err := e.hook.OnExecutionStarted(ctx, run); err != nil {
			r.logHookError("OnExecutionStarted", e.name, err)
		}
	}
}

// EmitExecutionCompleted notifies all hooks that implement ExecutionCompleted.
func (r *Registry) EmitExecutionCompleted(ctx context.Context, run *workflow.Run, elapsed time.Duration) {
	for _, e := range r.executionCompleted {
		if err := e.hook.OnExecutionCompleted(ctx, run, elapsed); err != nil {
			r.logHookError("OnExecutionCompleted", e.name, err)
		}
	}
}

// EmitExecutionFailed notifies all hooks that implement ExecutionFailed.
func (r *Registry) EmitExecutionFailed(ctx context.Context, run *workflow.Run, runErr error) {
	for _, e := range r.executionFailed {
		if err := e.hook.OnExecutionFailed(ctx, run, runErr); err != nil {
			r.logHookError("OnExecutionFailed", e.name, err)
		}
	}
}

// EmitExecutionCancelled notifies all hooks that implement ExecutionCancelled.
func (r *Registry) EmitExecutionCancelled(ctx context.Context, run *workflow.Run, reason string) {
	for _, e := range r.executionCancelled {
		if err := e.hook.OnExecutionCancelled(ctx, run, reason); err != nil {
			r.logHookError("OnExecutionCancelled", e.name, err)
		}
	}
}

// EmitExecutionContinuedAsNew notifies all hooks that implement
// ExecutionContinuedAsNew.
func (r *Registry) EmitExecutionContinuedAsNew(ctx context.Context, old *workflow.Run, newRunID id.RunID) {
	for _, e := range r.executionContinued {
		if err := e.hook.OnExecutionContinuedAsNew(ctx, old, newRunID); err != nil {
			r.logHookError("OnExecutionContinuedAsNew", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Activity event emitters
// ──────────────────────────────────────────────────

// EmitActivityScheduled notifies all hooks that implement ActivityScheduled.
func (r *Registry) EmitActivityScheduled(ctx context.Context, t *activity.Task) {
	for _, e := range r.activityScheduled {
		if err := e.hook.OnActivityScheduled(ctx, t); err != nil {
			r.logHookError("OnActivityScheduled", e.name, err)
		}
	}
}

// EmitActivityStarted notifies all hooks that implement ActivityStarted.
func (r *Registry) EmitActivityStarted(ctx context.Context, t *activity.Task) {
	for _, e := range r.activityStarted {
		if err := e.hook.OnActivityStarted(ctx, t); err != nil {
			r.logHookError("OnActivityStarted", e.name, err)
		}
	}
}

// EmitActivityCompleted notifies all hooks that implement ActivityCompleted.
func (r *Registry) EmitActivityCompleted(ctx context.Context, t *activity.Task, elapsed time.Duration) {
	for _, e := range r.activityCompleted {
		if err := e.hook.OnActivityCompleted(ctx, t, elapsed); err != nil {
			r.logHookError("OnActivityCompleted", e.name, err)
		}
	}
}

// EmitActivityFailed notifies all hooks that implement ActivityFailed.
func (r *Registry) EmitActivityFailed(ctx context.Context, t *activity.Task, taskErr error) {
	for _, e := range r.activityFailed {
		if err := e.hook.OnActivityFailed(ctx, t, taskErr); err != nil {
			r.logHookError("OnActivityFailed", e.name, err)
		}
	}
}

// EmitActivityRetrying notifies all hooks that implement ActivityRetrying.
func (r *Registry) EmitActivityRetrying(ctx context.Context, t *activity.Task, attempt int, nextRunAt time.Time) {
	for _, e := range r.activityRetrying {
		if err := e.hook.OnActivityRetrying(ctx, t, attempt, nextRunAt); err != nil {
			r.logHookError("OnActivityRetrying", e.name, err)
		}
	}
}

// EmitActivityDLQ notifies all hooks that implement ActivityDLQ.
func (r *Registry) EmitActivityDLQ(ctx context.Context, t *activity.Task, taskErr error) {
	for _, e := range r.activityDLQ {
		if err := e.hook.OnActivityDLQ(ctx, t, taskErr); err != nil {
			r.logHookError("OnActivityDLQ", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Other event emitters
// ──────────────────────────────────────────────────

// EmitTimerFired notifies all hooks that implement TimerFired.
func (r *Registry) EmitTimerFired(ctx context.Context, runID id.RunID, timerID id.TimerID) {
	for _, e := range r.timerFired {
		if err := e.hook.OnTimerFired(ctx, runID, timerID); err != nil {
			r.logHookError("OnTimerFired", e.name, err)
		}
	}
}

// EmitSignalReceived notifies all hooks that implement SignalReceived.
func (r *Registry) EmitSignalReceived(ctx context.Context, runID id.RunID, name string) {
	for _, e := range r.signalReceived {
		if err := e.hook.OnSignalReceived(ctx, runID, name); err != nil {
			r.logHookError("OnSignalReceived", e.name, err)
		}
	}
}

// EmitScheduleFired notifies all hooks that implement ScheduleFired.
func (r *Registry) EmitScheduleFired(ctx context.Context, scheduleName string, executionID id.ExecutionID) {
	for _, e := range r.scheduleFired {
		if err := e.hook.OnScheduleFired(ctx, scheduleName, executionID); err != nil {
			r.logHookError("OnScheduleFired", e.name, err)
		}
	}
}

// EmitShutdown notifies all hooks that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a hook error without interrupting dispatch. Hook
// failures never affect engine state transitions.
func (r *Registry) logHookError(event, hookName string, err error) {
	if r.logger == nil {
		return
	}
	r.logger.Warn("hook error",
		slog.String("event", event),
		slog.String("hook", hookName),
		slog.String("error", err.Error()),
	)
}
