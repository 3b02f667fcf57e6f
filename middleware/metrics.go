package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/replay/activity"
)

// meterName is the instrumentation scope name for replay metrics.
const meterName = "github.com/xraph/replay"

// Metrics returns middleware that records per-task execution metrics using
// the global OTel MeterProvider. If no MeterProvider is configured, noop
// instruments are used and this middleware becomes a pass-through.
//
// Instruments:
//   - replay.activity.duration (Float64Histogram): execution time in
//     seconds, with attributes: activity, task_queue, status ("ok" or "error")
//   - replay.activity.executions (Int64Counter): total attempts,
//     with attributes: activity, task_queue, status ("ok" or "error")
func Metrics() Middleware {
	meter := otel.Meter(meterName)
	return MetricsWithMeter(meter)
}

// MetricsWithMeter returns metrics middleware using the provided meter.
// This variant allows injecting a specific MeterProvider for testing.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// Create instruments once at middleware construction time.
	// OTel instruments are safe for concurrent use. On error, the API
	// returns noop instruments so the middleware degrades gracefully.
	duration, dErr := meter.Float64Histogram(
		"replay.activity.duration",
		metric.WithDescription("Duration of activity execution in seconds"),
		metric.WithUnit("s"),
	)
	_ = dErr

	executions, eErr := meter.Int64Counter(
		"replay.activity.executions",
		metric.WithDescription("Total number of activity attempts"),
		metric.WithUnit("{execution}"),
	)
	_ = eErr

	return func(ctx context.Context, t *activity.Task, next Handler) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start).Seconds()

		status := "ok"
		if err != nil {
			status = "error"
		}

		attrs := metric.WithAttributes(
			attribute.String("activity", t.Name),
			attribute.String("task_queue", t.TaskQueue),
			attribute.String("status", status),
		)

		duration.Record(ctx, elapsed, attrs)
		executions.Add(ctx, 1, attrs)

		return err
	}
}
