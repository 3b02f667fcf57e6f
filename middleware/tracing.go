package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/replay/activity"
)

// tracerName is the instrumentation scope name for replay tracing.
const tracerName = "github.com/xraph/replay"

// Tracing returns middleware that wraps task execution in an OpenTelemetry
// span. If no TracerProvider is configured globally, the default noop tracer
// is used and this middleware becomes a pass-through with zero overhead.
//
// Span attributes include: replay.task.id, replay.activity, replay.task_queue,
// replay.attempt, replay.scope.app_id, replay.scope.org_id.
// On error, the span status is set to codes.Error with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
// This variant allows injecting a specific TracerProvider for testing or
// when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, t *activity.Task, next Handler) error {
		ctx, span := tracer.Start(ctx, "replay.activity.execute",
			trace.WithAttributes(
				attribute.String("replay.task.id", t.ID.String()),
				attribute.String("replay.activity", t.Name),
				attribute.String("replay.task_queue", t.TaskQueue),
				attribute.Int("replay.attempt", t.Attempt),
				attribute.String("replay.scope.app_id", t.ScopeAppID),
				attribute.String("replay.scope.org_id", t.ScopeOrgID),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
