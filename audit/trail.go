package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/replay/activity"
	"github.com/xraph/replay/hook"
	"github.com/xraph/replay/id"
	"github.com/xraph/replay/workflow"
)

// Compile-time interface checks.
var (
	_ hook.Hook                    = (*Trail)(nil)
	_ hook.ExecutionStarted        = (*Trail)(nil)
	_ hook.ExecutionCompleted      = (*Trail)(nil)
	_ hook.ExecutionFailed         = (*Trail)(nil)
	_ hook.ExecutionCancelled      = (*Trail)(nil)
	_ hook.ExecutionContinuedAsNew = (*Trail)(nil)
	_ hook.ActivityScheduled       = (*Trail)(nil)
	_ hook.ActivityStarted         = (*Trail)(nil)
	_ hook.ActivityCompleted       = (*Trail)(nil)
	_ hook.ActivityFailed          = (*Trail)(nil)
	_ hook.ActivityRetrying        = (*Trail)(nil)
	_ hook.ActivityDLQ             = (*Trail)(nil)
	_ hook.TimerFired              = (*Trail)(nil)
	_ hook.SignalReceived          = (*Trail)(nil)
	_ hook.ScheduleFired           = (*Trail)(nil)
)

// Recorder is the interface that audit backends must implement.
// Callers inject their concrete trail store at wiring time; the
// [Log] recorder keeps entries in memory.
type Recorder interface {
	// Record persists a fully-formed audit entry.
	Record(ctx context.Context, entry *Entry) error
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, entry *Entry) error

func (f RecorderFunc) Record(ctx context.Context, entry *Entry) error {
	return f(ctx, entry)
}

// Trail bridges engine lifecycle events to an audit trail backend.
// Each lifecycle hook emits a structured audit entry through the [Recorder].
type Trail struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates a Trail that emits audit entries through the provided Recorder.
func New(r Recorder, opts ...Option) *Trail {
	t := &Trail{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name implements hook.Hook.
func (t *Trail) Name() string { return "audit-trail" }

// ── Execution lifecycle hooks ───────────────────────

// OnExecutionStarted implements hook.ExecutionStarted.
func (t *Trail) OnExecutionStarted(ctx context.Context, r *workflow.Run) error {
	return t.record(ctx, ActionExecutionStarted, SeverityInfo, OutcomeSuccess,
		ResourceRun, r.ID.String(), CategoryExecution, r.ScopeAppID, r.ScopeOrgID, nil,
		"workflow_name", r.Name,
		"execution_id", r.ExecutionID.String(),
	)
}

// OnExecutionCompleted implements hook.ExecutionCompleted.
func (t *Trail) OnExecutionCompleted(ctx context.Context, r *workflow.Run, elapsed time.Duration) error {
	return t.record(ctx, ActionExecutionCompleted, SeverityInfo, OutcomeSuccess,
		ResourceRun, r.ID.String(), CategoryExecution, r.ScopeAppID, r.ScopeOrgID, nil,
		"workflow_name", r.Name,
		"execution_id", r.ExecutionID.String(),
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnExecutionFailed implements hook.ExecutionFailed.
func (t *Trail) OnExecutionFailed(ctx context.Context, r *workflow.Run, runErr error) error {
	return t.record(ctx, ActionExecutionFailed, SeverityCritical, OutcomeFailure,
		ResourceRun, r.ID.String(), CategoryExecution, r.ScopeAppID, r.ScopeOrgID, runErr,
		"workflow_name", r.Name,
		"execution_id", r.ExecutionID.String(),
		"error_type", r.ErrorType,
	)
}

// OnExecutionCancelled implements hook.ExecutionCancelled.
func (t *Trail) OnExecutionCancelled(ctx context.Context, r *workflow.Run, reason string) error {
	return t.record(ctx, ActionExecutionCancelled, SeverityWarning, OutcomeSuccess,
		ResourceRun, r.ID.String(), CategoryExecution, r.ScopeAppID, r.ScopeOrgID, nil,
		"workflow_name", r.Name,
		"execution_id", r.ExecutionID.String(),
		"reason", reason,
	)
}

// OnExecutionContinuedAsNew implements hook.ExecutionContinuedAsNew.
func (t *Trail) OnExecutionContinuedAsNew(ctx context.Context, old *workflow.Run, newRunID id.RunID) error {
	return t.record(ctx, ActionExecutionContinued, SeverityInfo, OutcomeSuccess,
		ResourceRun, old.ID.String(), CategoryExecution, old.ScopeAppID, old.ScopeOrgID, nil,
		"workflow_name", old.Name,
		"execution_id", old.ExecutionID.String(),
		"new_run_id", newRunID.String(),
	)
}

// ── Activity lifecycle hooks ────────────────────────

// OnActivityScheduled implements hook.ActivityScheduled.
func (t *Trail) OnActivityScheduled(ctx context.Context, task *activity.Task) error {
	return t.record(ctx, ActionActivityScheduled, SeverityInfo, OutcomeSuccess,
		ResourceActivity, task.ID.String(), CategoryActivity, task.ScopeAppID, task.ScopeOrgID, nil,
		"activity_name", task.Name,
		"task_queue", task.TaskQueue,
		"run_id", task.RunID.String(),
	)
}

// OnActivityStarted implements hook.ActivityStarted.
func (t *Trail) OnActivityStarted(ctx context.Context, task *activity.Task) error {
	return t.record(ctx, ActionActivityStarted, SeverityInfo, OutcomeSuccess,
		ResourceActivity, task.ID.String(), CategoryActivity, task.ScopeAppID, task.ScopeOrgID, nil,
		"activity_name", task.Name,
		"task_queue", task.TaskQueue,
		"run_id", task.RunID.String(),
		"worker_id", task.WorkerID.String(),
		"attempt", task.Attempt,
	)
}

// OnActivityCompleted implements hook.ActivityCompleted.
func (t *Trail) OnActivityCompleted(ctx context.Context, task *activity.Task, elapsed time.Duration) error {
	return t.record(ctx, ActionActivityCompleted, SeverityInfo, OutcomeSuccess,
		ResourceActivity, task.ID.String(), CategoryActivity, task.ScopeAppID, task.ScopeOrgID, nil,
		"activity_name", task.Name,
		"task_queue", task.TaskQueue,
		"run_id", task.RunID.String(),
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnActivityFailed implements hook.ActivityFailed.
func (t *Trail) OnActivityFailed(ctx context.Context, task *activity.Task, taskErr error) error {
	return t.record(ctx, ActionActivityFailed, SeverityCritical, OutcomeFailure,
		ResourceActivity, task.ID.String(), CategoryActivity, task.ScopeAppID, task.ScopeOrgID, taskErr,
		"activity_name", task.Name,
		"task_queue", task.TaskQueue,
		"run_id", task.RunID.String(),
		"attempt", task.Attempt,
	)
}

// OnActivityRetrying implements hook.ActivityRetrying.
func (t *Trail) OnActivityRetrying(ctx context.Context, task *activity.Task, attempt int, nextRunAt time.Time) error {
	return t.record(ctx, ActionActivityRetrying, SeverityWarning, OutcomeFailure,
		ResourceActivity, task.ID.String(), CategoryActivity, task.ScopeAppID, task.ScopeOrgID, nil,
		"activity_name", task.Name,
		"task_queue", task.TaskQueue,
		"run_id", task.RunID.String(),
		"attempt", attempt,
		"next_run_at", nextRunAt.Format(time.RFC3339),
	)
}

// OnActivityDLQ implements hook.ActivityDLQ.
func (t *Trail) OnActivityDLQ(ctx context.Context, task *activity.Task, taskErr error) error {
	return t.record(ctx, ActionActivityDLQ, SeverityCritical, OutcomeFailure,
		ResourceActivity, task.ID.String(), CategoryActivity, task.ScopeAppID, task.ScopeOrgID, taskErr,
		"activity_name", task.Name,
		"task_queue", task.TaskQueue,
		"run_id", task.RunID.String(),
		"attempt", task.Attempt,
	)
}

// ── Timer, signal, and schedule hooks ───────────────

// OnTimerFired implements hook.TimerFired.
func (t *Trail) OnTimerFired(ctx context.Context, runID id.RunID, timerID id.TimerID) error {
	return t.record(ctx, ActionTimerFired, SeverityInfo, OutcomeSuccess,
		ResourceTimer, timerID.String(), CategoryTimer, "", "", nil,
		"run_id", runID.String(),
	)
}

// OnSignalReceived implements hook.SignalReceived.
func (t *Trail) OnSignalReceived(ctx context.Context, runID id.RunID, name string) error {
	return t.record(ctx, ActionSignalReceived, SeverityInfo, OutcomeSuccess,
		ResourceSignal, name, CategorySignal, "", "", nil,
		"run_id", runID.String(),
	)
}

// OnScheduleFired implements hook.ScheduleFired.
func (t *Trail) OnScheduleFired(ctx context.Context, scheduleName string, executionID id.ExecutionID) error {
	return t.record(ctx, ActionScheduleFired, SeverityInfo, OutcomeSuccess,
		ResourceSchedule, scheduleName, CategorySchedule, "", "", nil,
		"execution_id", executionID.String(),
	)
}

// ── Internal helpers ────────────────────────────────

// record builds and sends an audit entry if the action is enabled.
// The kvPairs argument is a list of key-value pairs added to Metadata.
func (t *Trail) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	scopeAppID, scopeOrgID string,
	err error,
	kvPairs ...any,
) error {
	if t.enabled != nil && !t.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	entry := &Entry{
		ID:         id.NewAuditID(),
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
		ScopeAppID: scopeAppID,
		ScopeOrgID: scopeOrgID,
		RecordedAt: time.Now().UTC(),
	}

	if recErr := t.recorder.Record(ctx, entry); recErr != nil {
		t.logger.Warn("audit: failed to record entry",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
