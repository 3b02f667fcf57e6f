package middleware

import (
	"context"
	"log/slog"
	"runtime/debug"

	"github.com/xraph/replay"
	"github.com/xraph/replay/activity"
)

// Recover returns middleware that recovers from panics in the handler chain.
// Panics are converted to *replay.PanicError and logged with a stack trace.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, t *activity.Task, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := debug.Stack()
				logger.Error("activity handler panicked",
					slog.String("activity", t.Name),
					slog.String("task_id", t.ID.String()),
					slog.Any("panic", r),
					slog.String("stack", string(stack)),
				)
				retErr = &replay.PanicError{Value: r, Stack: stack}
			}
		}()
		return next(ctx)
	}
}
