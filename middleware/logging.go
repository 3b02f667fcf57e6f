package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/replay/activity"
)

// Logging returns middleware that logs task start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, t *activity.Task, next Handler) error {
		logger.Info("activity started",
			slog.String("activity", t.Name),
			slog.String("task_id", t.ID.String()),
			slog.String("task_queue", t.TaskQueue),
			slog.Int("attempt", t.Attempt),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("activity failed",
				slog.String("activity", t.Name),
				slog.String("task_id", t.ID.String()),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("activity completed",
				slog.String("activity", t.Name),
				slog.String("task_id", t.ID.String()),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
