// Package worker provides the activity execution engine: an Executor
// that invokes registered handlers through middleware, and a Pool that
// manages concurrent worker goroutines leasing tasks from the store.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/replay"
	"github.com/xraph/replay/activity"
	"github.com/xraph/replay/dlq"
	"github.com/xraph/replay/hook"
	"github.com/xraph/replay/id"
	"github.com/xraph/replay/middleware"
)

// Reporter receives terminal activity outcomes. The engine implements it:
// it journals the completion event into the owning run's history and
// delivers the outcome to the parked workflow. Retries are internal to
// the executor and never reported.
type Reporter interface {
	// OnTaskCompleted reports a successful attempt with its result.
	OnTaskCompleted(ctx context.Context, t *activity.Task, result []byte) error

	// OnTaskFailed reports a terminally failed task after the retry
	// policy is spent or short-circuited.
	OnTaskFailed(ctx context.Context, t *activity.Task, taskErr error, nonRetryable bool) error
}

// Executor runs a single activity task through middleware and the
// registered handler, then handles retry scheduling, DLQ push, state
// updates, lifecycle hooks, and outcome reporting.
type Executor struct {
	registry   *activity.Registry
	hooks      *hook.Registry
	store      activity.Store
	dlqService *dlq.Service
	reporter   Reporter
	mw         middleware.Middleware
	logger     *slog.Logger
}

// NewExecutor creates an Executor with the given dependencies.
func NewExecutor(
	registry *activity.Registry,
	hooks *hook.Registry,
	store activity.Store,
	dlqService *dlq.Service,
	reporter Reporter,
	logger *slog.Logger,
	mws ...middleware.Middleware,
) *Executor {
	return &Executor{
		registry:   registry,
		hooks:      hooks,
		store:      store,
		dlqService: dlqService,
		reporter:   reporter,
		mw:         middleware.Chain(mws...),
		logger:     logger,
	}
}

// Execute runs a leased task through the middleware chain and handler.
// On success: marks completed and reports the result to the engine.
// On failure with retries remaining: marks retrying with the policy delay.
// On failure with retries exhausted or a non-retryable error: marks
// failed, pushes to the DLQ, and reports the failure to the engine.
func (e *Executor) Execute(ctx context.Context, t *activity.Task) error {
	handler, ok := e.registry.Get(t.Name)
	if !ok {
		// No handler on this node. Terminal: the definition is expected
		// to be registered on every worker polling the queue.
		return e.handleFailure(ctx, t, fmt.Errorf("%w: %s", replay.ErrActivityNotRegistered, t.Name), time.Now().UTC())
	}

	start := time.Now()

	var result []byte
	terminal := func(ctx context.Context) error {
		out, handlerErr := handler(ctx, t.Input)
		if handlerErr != nil {
			return handlerErr
		}
		result = out
		return nil
	}

	err := e.mw(ctx, t, terminal)
	elapsed := time.Since(start)

	now := time.Now().UTC()
	t.UpdatedAt = now

	if err != nil {
		return e.handleFailure(ctx, t, err, now)
	}

	return e.handleSuccess(ctx, t, result, now, elapsed)
}

// handleSuccess marks the task completed and reports the result.
func (e *Executor) handleSuccess(ctx context.Context, t *activity.Task, result []byte, now time.Time, elapsed time.Duration) error {
	t.State = activity.StateCompleted
	t.Result = result
	t.CompletedAt = &now
	t.LastError = ""

	if updateErr := e.store.UpdateTask(ctx, t); updateErr != nil {
		e.logger.Error("failed to update task after success",
			slog.String("task_id", t.ID.String()),
			slog.String("activity", t.Name),
			slog.String("error", updateErr.Error()),
		)
		return updateErr
	}

	e.hooks.EmitActivityCompleted(ctx, t, elapsed)

	if reportErr := e.reporter.OnTaskCompleted(ctx, t, result); reportErr != nil {
		e.logger.Error("failed to report task completion",
			slog.String("task_id", t.ID.String()),
			slog.String("error", reportErr.Error()),
		)
		return reportErr
	}
	return nil
}

// handleFailure consults the task's retry policy and either schedules the
// next attempt or finalizes the failure.
func (e *Executor) handleFailure(ctx context.Context, t *activity.Task, handlerErr error, now time.Time) error {
	t.LastError = handlerErr.Error()

	if t.RetryPolicy.ShouldRetry(handlerErr, t.Attempt) {
		return e.scheduleRetry(ctx, t, handlerErr, now)
	}

	nonRetryable := replay.IsNonRetryable(handlerErr)
	return e.finalizeFailure(ctx, t, handlerErr, nonRetryable, now)
}

// scheduleRetry sets the task to retrying with the policy's backoff delay.
func (e *Executor) scheduleRetry(ctx context.Context, t *activity.Task, handlerErr error, now time.Time) error {
	delay := t.RetryPolicy.Delay(t.Attempt)
	nextRunAt := now.Add(delay)
	t.State = activity.StateRetrying
	t.RunAt = nextRunAt
	t.WorkerID = id.WorkerID{}
	t.StartedAt = nil
	t.HeartbeatAt = nil

	if updateErr := e.store.UpdateTask(ctx, t); updateErr != nil {
		e.logger.Error("failed to update task for retry",
			slog.String("task_id", t.ID.String()),
			slog.String("error", updateErr.Error()),
		)
		return updateErr
	}

	e.hooks.EmitActivityRetrying(ctx, t, t.Attempt, nextRunAt)

	e.logger.Info("activity scheduled for retry",
		slog.String("task_id", t.ID.String()),
		slog.String("activity", t.Name),
		slog.Int("attempt", t.Attempt),
		slog.Duration("delay", delay),
		slog.String("error", handlerErr.Error()),
	)

	return fmt.Errorf("activity %s attempt %d: %w", t.Name, t.Attempt, handlerErr)
}

// finalizeFailure marks the task failed, pushes it to the DLQ, and
// reports the terminal failure to the engine.
func (e *Executor) finalizeFailure(ctx context.Context, t *activity.Task, handlerErr error, nonRetryable bool, now time.Time) error {
	t.State = activity.StateFailed
	t.CompletedAt = &now

	if updateErr := e.store.UpdateTask(ctx, t); updateErr != nil {
		e.logger.Error("failed to update task as failed",
			slog.String("task_id", t.ID.String()),
			slog.String("error", updateErr.Error()),
		)
		return updateErr
	}

	if e.dlqService != nil {
		if dlqErr := e.dlqService.Push(ctx, t, handlerErr, replay.ErrorType(handlerErr)); dlqErr != nil {
			e.logger.Error("failed to push task to DLQ",
				slog.String("task_id", t.ID.String()),
				slog.String("error", dlqErr.Error()),
			)
		} else {
			e.hooks.EmitActivityDLQ(ctx, t, handlerErr)
		}
	}

	e.hooks.EmitActivityFailed(ctx, t, handlerErr)

	e.logger.Warn("activity failed terminally",
		slog.String("task_id", t.ID.String()),
		slog.String("activity", t.Name),
		slog.Int("attempts", t.Attempt),
		slog.Bool("non_retryable", nonRetryable),
		slog.String("error", handlerErr.Error()),
	)

	if reportErr := e.reporter.OnTaskFailed(ctx, t, handlerErr, nonRetryable); reportErr != nil {
		e.logger.Error("failed to report task failure",
			slog.String("task_id", t.ID.String()),
			slog.String("error", reportErr.Error()),
		)
		return reportErr
	}
	return handlerErr
}
