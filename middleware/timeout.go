package middleware

import (
	"context"
	"errors"
	"log/slog"

	"github.com/xraph/replay"
	"github.com/xraph/replay/activity"
)

// Timeout returns middleware that enforces the task's start-to-close
// deadline. If the task has a non-zero StartToCloseTimeout, a
// context.WithTimeout wraps the handler call; exceeding it surfaces as a
// *replay.TimeoutError so the retry policy can classify it.
func Timeout(logger *slog.Logger) Middleware {
	return func(ctx context.Context, t *activity.Task, next Handler) error {
		if t.StartToCloseTimeout <= 0 {
			return next(ctx)
		}

		logger.Debug("activity deadline set",
			slog.String("task_id", t.ID.String()),
			slog.Duration("timeout", t.StartToCloseTimeout),
		)
		ctx, cancel := context.WithTimeout(ctx, t.StartToCloseTimeout)
		defer cancel()

		err := next(ctx)
		if err != nil && errors.Is(err, context.DeadlineExceeded) {
			return &replay.TimeoutError{
				Kind:     replay.TimeoutStartToClose,
				Activity: t.Name,
				Attempt:  t.Attempt,
			}
		}
		return err
	}
}
