package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/replay/activity"
	"github.com/xraph/replay/hook"
	"github.com/xraph/replay/id"
	"github.com/xraph/replay/workflow"
)

// Compile-time interface checks.
var (
	_ hook.Hook                    = (*MetricsHook)(nil)
	_ hook.ExecutionStarted        = (*MetricsHook)(nil)
	_ hook.ExecutionCompleted      = (*MetricsHook)(nil)
	_ hook.ExecutionFailed         = (*MetricsHook)(nil)
	_ hook.ExecutionCancelled      = (*MetricsHook)(nil)
	_ hook.ExecutionContinuedAsNew = (*MetricsHook)(nil)
	_ hook.ActivityScheduled       = (*MetricsHook)(nil)
	_ hook.ActivityCompleted       = (*MetricsHook)(nil)
	_ hook.ActivityFailed          = (*MetricsHook)(nil)
	_ hook.ActivityRetrying        = (*MetricsHook)(nil)
	_ hook.ActivityDLQ             = (*MetricsHook)(nil)
	_ hook.TimerFired              = (*MetricsHook)(nil)
	_ hook.SignalReceived          = (*MetricsHook)(nil)
	_ hook.ScheduleFired           = (*MetricsHook)(nil)
)

// MetricsHook records system-wide lifecycle counters and latency
// histograms. Register it with the engine to track execution throughput,
// activity outcomes, DLQ volume, timer fires, and schedule fires.
type MetricsHook struct {
	executionsStarted   metric.Int64Counter
	executionsCompleted metric.Int64Counter
	executionsFailed    metric.Int64Counter
	executionsCancelled metric.Int64Counter
	continuations       metric.Int64Counter
	executionDuration   metric.Float64Histogram

	activitiesScheduled metric.Int64Counter
	activitiesCompleted metric.Int64Counter
	activitiesFailed    metric.Int64Counter
	activitiesRetried   metric.Int64Counter
	activitiesDLQ       metric.Int64Counter

	timersFired     metric.Int64Counter
	signalsReceived metric.Int64Counter
	schedulesFired  metric.Int64Counter
}

// NewMetricsHook creates a MetricsHook using the global MeterProvider.
func NewMetricsHook() *MetricsHook {
	return NewMetricsHookWithMeter(otel.GetMeterProvider().Meter("github.com/xraph/replay/observability"))
}

// NewMetricsHookWithMeter creates a MetricsHook with the provided meter.
func NewMetricsHookWithMeter(meter metric.Meter) *MetricsHook {
	h := &MetricsHook{}
	h.executionsStarted, _ = meter.Int64Counter("replay.execution.started",
		metric.WithDescription("Workflow executions started"))
	h.executionsCompleted, _ = meter.Int64Counter("replay.execution.completed",
		metric.WithDescription("Workflow executions completed"))
	h.executionsFailed, _ = meter.Int64Counter("replay.execution.failed",
		metric.WithDescription("Workflow executions failed"))
	h.executionsCancelled, _ = meter.Int64Counter("replay.execution.cancelled",
		metric.WithDescription("Workflow executions cancelled"))
	h.continuations, _ = meter.Int64Counter("replay.execution.continued_as_new",
		metric.WithDescription("Continue-as-new transitions"))
	h.executionDuration, _ = meter.Float64Histogram("replay.execution.duration",
		metric.WithDescription("Workflow run duration in seconds"),
		metric.WithUnit("s"))

	h.activitiesScheduled, _ = meter.Int64Counter("replay.activity.scheduled",
		metric.WithDescription("Activity tasks scheduled"))
	h.activitiesCompleted, _ = meter.Int64Counter("replay.activity.completed",
		metric.WithDescription("Activity tasks completed"))
	h.activitiesFailed, _ = meter.Int64Counter("replay.activity.failed",
		metric.WithDescription("Activity tasks terminally failed"))
	h.activitiesRetried, _ = meter.Int64Counter("replay.activity.retried",
		metric.WithDescription("Activity attempt retries"))
	h.activitiesDLQ, _ = meter.Int64Counter("replay.activity.dlq",
		metric.WithDescription("Activity tasks pushed to the dead letter queue"))

	h.timersFired, _ = meter.Int64Counter("replay.timer.fired",
		metric.WithDescription("Durable timers fired"))
	h.signalsReceived, _ = meter.Int64Counter("replay.signal.received",
		metric.WithDescription("Signals delivered to executions"))
	h.schedulesFired, _ = meter.Int64Counter("replay.schedule.fired",
		metric.WithDescription("Schedules fired"))
	return h
}

// Name implements hook.Hook.
func (m *MetricsHook) Name() string { return "observability-metrics" }

func workflowAttrs(run *workflow.Run) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("workflow", run.Name))
}

func activityAttrs(t *activity.Task) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("activity", t.Name),
		attribute.String("task_queue", t.TaskQueue),
	)
}

// ── Execution lifecycle ─────────────────────────────

func (m *MetricsHook) OnExecutionStarted(ctx context.Context, run *workflow.Run) error {
	m.executionsStarted.Add(ctx, 1, workflowAttrs(run))
	return nil
}

func (m *MetricsHook) OnExecutionCompleted(ctx context.Context, run *workflow.Run, elapsed time.Duration) error {
	m.executionsCompleted.Add(ctx, 1, workflowAttrs(run))
	m.executionDuration.Record(ctx, elapsed.Seconds(), workflowAttrs(run))
	return nil
}

func (m *MetricsHook) OnExecutionFailed(ctx context.Context, run *workflow.Run, _ error) error {
	m.executionsFailed.Add(ctx, 1, workflowAttrs(run))
	return nil
}

func (m *MetricsHook) OnExecutionCancelled(ctx context.Context, run *workflow.Run, _ string) error {
	m.executionsCancelled.Add(ctx, 1, workflowAttrs(run))
	return nil
}

func (m *MetricsHook) OnExecutionContinuedAsNew(ctx context.Context, old *workflow.Run, _ id.RunID) error {
	m.continuations.Add(ctx, 1, workflowAttrs(old))
	return nil
}

// ── Activity lifecycle ──────────────────────────────

func (m *MetricsHook) OnActivityScheduled(ctx context.Context, t *activity.Task) error {
	m.activitiesScheduled.Add(ctx, 1, activityAttrs(t))
	return nil
}

func (m *MetricsHook) OnActivityCompleted(ctx context.Context, t *activity.Task, _ time.Duration) error {
	m.activitiesCompleted.Add(ctx, 1, activityAttrs(t))
	return nil
}

func (m *MetricsHook) OnActivityFailed(ctx context.Context, t *activity.Task, _ error) error {
	m.activitiesFailed.Add(ctx, 1, activityAttrs(t))
	return nil
}

func (m *MetricsHook) OnActivityRetrying(ctx context.Context, t *activity.Task, _ int, _ time.Time) error {
	m.activitiesRetried.Add(ctx, 1, activityAttrs(t))
	return nil
}

func (m *MetricsHook) OnActivityDLQ(ctx context.Context, t *activity.Task, _ error) error {
	m.activitiesDLQ.Add(ctx, 1, activityAttrs(t))
	return nil
}

// ── Timer, signal, schedule ─────────────────────────

func (m *MetricsHook) OnTimerFired(ctx context.Context, _ id.RunID, _ id.TimerID) error {
	m.timersFired.Add(ctx, 1)
	return nil
}

func (m *MetricsHook) OnSignalReceived(ctx context.Context, _ id.RunID, name string) error {
	m.signalsReceived.Add(ctx, 1, metric.WithAttributes(attribute.String("signal", name)))
	return nil
}

func (m *MetricsHook) OnScheduleFired(ctx context.Context, scheduleName string, _ id.ExecutionID) error {
	m.schedulesFired.Add(ctx, 1, metric.WithAttributes(attribute.String("schedule", scheduleName)))
	return nil
}
