package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/replay/history"
	"github.com/xraph/replay/workflow"
)

// deadlineLoop sweeps open sessions for runs whose execution deadline has
// lapsed and times them out.
func (eng *Engine) deadlineLoop() {
	defer eng.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-eng.stopCh:
			return
		case <-ticker.C:
			eng.sweepDeadlines()
		}
	}
}

func (eng *Engine) sweepDeadlines() {
	now := time.Now().UTC()

	eng.mu.Lock()
	var due []*session
	for _, s := range eng.sessions {
		if !s.run.Deadline.IsZero() && !s.run.Deadline.After(now) {
			due = append(due, s)
		}
	}
	eng.mu.Unlock()

	for _, s := range due {
		eng.timeoutRun(context.Background(), s)
	}
}

// timeoutRun seals a run whose execution deadline lapsed: the terminal
// event is journaled here, then the parked handler goroutine is unwound.
func (eng *Engine) timeoutRun(ctx context.Context, s *session) {
	run := s.run

	s.mu.Lock()
	if s.sealed {
		s.mu.Unlock()
		return
	}
	s.sealed = true
	s.mu.Unlock()

	ev, err := history.New(run.ID, run.ExecutionID, history.EventExecutionTimedOut, "", history.ExecutionTimedOutAttrs{
		Deadline: run.Deadline,
	})
	if err == nil {
		err = s.append(ctx, eng.historyStore, ev)
	}
	if err != nil {
		eng.logger.Error("journal timeout failed", slog.String("run_id", run.ID.String()), slog.String("error", err.Error()))
	}

	now := time.Now().UTC()
	run.State = workflow.RunStateTimedOut
	run.Error = fmt.Sprintf("execution deadline %s exceeded", run.Deadline.Format(time.RFC3339))
	run.CompletedAt = &now
	run.UpdatedAt = now
	if updateErr := eng.runStore.UpdateRun(ctx, run); updateErr != nil {
		eng.logger.Error("update run failed", slog.String("run_id", run.ID.String()), slog.String("error", updateErr.Error()))
	}

	eng.reapRunResources(ctx, run, "execution timed out")
	eng.hooks.EmitExecutionFailed(ctx, run, fmt.Errorf("replay: execution %s timed out", run.ExecutionID))
	eng.notifyParentFailed(ctx, run, run.Error, "timeout", false)

	// Unwind the parked goroutine; finishRun sees the seal and returns.
	s.wfCtx.Cancel("execution deadline exceeded")

	eng.logger.Warn("execution timed out",
		slog.String("execution_id", run.ExecutionID.String()),
		slog.String("run_id", run.ID.String()),
		slog.Time("deadline", run.Deadline),
	)
}
