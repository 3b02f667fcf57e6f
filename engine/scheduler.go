package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/replay"
	"github.com/xraph/replay/activity"
	"github.com/xraph/replay/history"
	"github.com/xraph/replay/id"
	"github.com/xraph/replay/signal"
	"github.com/xraph/replay/timer"
	"github.com/xraph/replay/workflow"
)

// session is the in-memory state of one open run: its parked workflow
// context and the history append cursor. The cursor lives here so command
// bursts from the workflow goroutine and completions from workers share
// one serialized append path per run.
type session struct {
	run   *workflow.Run
	wfCtx *workflow.Context

	mu      sync.Mutex
	nextSeq int64
	paused  bool
	// sealed marks a run whose terminal event was journaled outside the
	// handler goroutine (deadline timeout). finishRun then unwinds
	// without recording a second terminal event.
	sealed bool
	// queued holds deliveries deferred while the run is paused.
	queued []func(c *workflow.Context)
}

// append journals events for this run at the current cursor.
func (s *session) append(ctx context.Context, store history.Store, events ...*history.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := store.AppendEvents(ctx, s.run.ID, s.nextSeq, events); err != nil {
		return err
	}
	s.nextSeq += int64(len(events))
	return nil
}

func (eng *Engine) session(runID id.RunID) *session {
	eng.mu.Lock()
	defer eng.mu.Unlock()
	return eng.sessions[runID.String()]
}

func (eng *Engine) dropSession(runID id.RunID) {
	eng.mu.Lock()
	delete(eng.sessions, runID.String())
	eng.mu.Unlock()
}

// journalRun appends events for a run, through its session cursor when the
// run is open in this process, or against the store's latest Seq otherwise.
func (eng *Engine) journalRun(ctx context.Context, run *workflow.Run, events ...*history.Event) error {
	if s := eng.session(run.ID); s != nil {
		return s.append(ctx, eng.historyStore, events...)
	}
	seq, err := eng.historyStore.LatestSeq(ctx, run.ID)
	if err != nil {
		return err
	}
	return eng.historyStore.AppendEvents(ctx, run.ID, seq+1, events)
}

// deliverToRun hands a delivery to the run's parked context. Paused runs
// queue the delivery; it flushes on resume. Runs with no session (not open
// in this process) drop it: replay rebuilds their state from history.
func (eng *Engine) deliverToRun(runID id.RunID, fn func(c *workflow.Context)) {
	s := eng.session(runID)
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.paused {
		s.queued = append(s.queued, fn)
		s.mu.Unlock()
		return
	}
	c := s.wfCtx
	s.mu.Unlock()
	fn(c)
}

// ──────────────────────────────────────────────────
// workflow.Scheduler
// ──────────────────────────────────────────────────

// ScheduleActivity journals ActivityScheduled and creates the task row.
func (eng *Engine) ScheduleActivity(ctx context.Context, run *workflow.Run, name string, input []byte) (*history.Event, error) {
	opts, ok := eng.activities.GetOptions(name)
	if !ok {
		// Scheduling is allowed before registration; execution fails
		// terminally if no worker ever carries the definition.
		opts = activity.DefaultOptions()
	}
	taskQueue := opts.TaskQueue
	if taskQueue == "" {
		taskQueue = "default"
	}

	taskID := id.NewActivityID()
	ev, err := history.New(run.ID, run.ExecutionID, history.EventActivityScheduled, name, history.ActivityScheduledAttrs{
		ActivityID: taskID,
		Activity:   name,
		Input:      input,
		TaskQueue:  taskQueue,
	})
	if err != nil {
		return nil, err
	}
	if err := eng.journalRun(ctx, run, ev); err != nil {
		return nil, err
	}

	t := &activity.Task{
		Entity:              replay.NewEntity(),
		ID:                  taskID,
		RunID:               run.ID,
		ExecutionID:         run.ExecutionID,
		Name:                name,
		TaskQueue:           taskQueue,
		Input:               input,
		State:               activity.StateScheduled,
		ScheduledSeq:        ev.Seq,
		RetryPolicy:         opts.RetryPolicy,
		StartToCloseTimeout: opts.StartToCloseTimeout,
		HeartbeatTimeout:    opts.HeartbeatTimeout,
		ScopeAppID:          run.ScopeAppID,
		ScopeOrgID:          run.ScopeOrgID,
		RunAt:               time.Now().UTC(),
	}
	if err := eng.taskStore.ScheduleTask(ctx, t); err != nil {
		return nil, err
	}
	eng.hooks.EmitActivityScheduled(ctx, t)
	return ev, nil
}

// StartTimer journals TimerStarted and creates the timer row. The absolute
// fire time is fixed here, at schedule time.
func (eng *Engine) StartTimer(ctx context.Context, run *workflow.Run, delay time.Duration) (*history.Event, error) {
	timerID := id.NewTimerID()
	fireAt := time.Now().UTC().Add(delay)

	ev, err := history.New(run.ID, run.ExecutionID, history.EventTimerStarted, "", history.TimerStartedAttrs{
		TimerID: timerID,
		Delay:   delay,
		FireAt:  fireAt,
	})
	if err != nil {
		return nil, err
	}
	if err := eng.journalRun(ctx, run, ev); err != nil {
		return nil, err
	}

	t := &timer.Timer{
		Entity:       replay.NewEntity(),
		ID:           timerID,
		RunID:        run.ID,
		ExecutionID:  run.ExecutionID,
		ScheduledSeq: ev.Seq,
		FireAt:       fireAt,
		State:        timer.StatePending,
	}
	if err := eng.timerStore.CreateTimer(ctx, t); err != nil {
		return nil, err
	}
	return ev, nil
}

// RecordMarker journals MarkerRecorded with the captured value.
func (eng *Engine) RecordMarker(ctx context.Context, run *workflow.Run, name string, value []byte) (*history.Event, error) {
	ev, err := history.New(run.ID, run.ExecutionID, history.EventMarkerRecorded, name, history.MarkerRecordedAttrs{
		Value: value,
	})
	if err != nil {
		return nil, err
	}
	if err := eng.journalRun(ctx, run, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// StartChildExecution journals ChildExecutionStarted in the parent's
// history and starts the child run under a fresh execution ID.
func (eng *Engine) StartChildExecution(ctx context.Context, run *workflow.Run, workflowName string, input []byte) (*history.Event, error) {
	version := eng.workflows.LatestVersion(workflowName)
	if version == 0 {
		return nil, replay.ErrWorkflowNotRegistered
	}

	childExecID := id.NewExecutionID()
	childRunID := id.NewRunID()

	ev, err := history.New(run.ID, run.ExecutionID, history.EventChildExecutionStarted, workflowName, history.ChildExecutionStartedAttrs{
		ChildExecutionID: childExecID,
		ChildRunID:       childRunID,
		Workflow:         workflowName,
		Input:            input,
	})
	if err != nil {
		return nil, err
	}
	if err := eng.journalRun(ctx, run, ev); err != nil {
		return nil, err
	}

	child := &workflow.Run{
		Entity:      replay.NewEntity(),
		ID:          childRunID,
		ExecutionID: childExecID,
		Name:        workflowName,
		Version:     version,
		State:       workflow.RunStateRunning,
		TaskQueue:   run.TaskQueue,
		Input:       input,
		ParentRunID: run.ID,
		ScopeAppID:  run.ScopeAppID,
		ScopeOrgID:  run.ScopeOrgID,
		StartedAt:   time.Now().UTC(),
	}
	if err := eng.runStore.CreateRun(ctx, child); err != nil {
		return nil, err
	}
	eng.hooks.EmitExecutionStarted(ctx, child)
	if err := eng.beginRun(child, nil); err != nil {
		return nil, err
	}
	return ev, nil
}

// RecordWorkflowTask journals WorkflowTaskCompleted, sealing a burst of
// live commands just before the run suspends.
func (eng *Engine) RecordWorkflowTask(ctx context.Context, run *workflow.Run, commands int) error {
	ev, err := history.New(run.ID, run.ExecutionID, history.EventWorkflowTaskCompleted, "", history.WorkflowTaskCompletedAttrs{
		Commands: commands,
	})
	if err != nil {
		return err
	}
	return eng.journalRun(ctx, run, ev)
}

// ──────────────────────────────────────────────────
// Run lifecycle
// ──────────────────────────────────────────────────

// beginRun opens a session for the run and launches its handler goroutine.
// events is the run's journaled history; nil starts a fresh run, in which
// case beginRun journals ExecutionStarted first.
func (eng *Engine) beginRun(run *workflow.Run, events []*history.Event) error {
	handler, ok := eng.workflows.GetVersion(run.Name, run.Version)
	if !ok {
		return replay.ErrWorkflowNotRegistered
	}

	// The context outlives the caller: the handler goroutine parks across
	// requests, so it must not inherit a request-scoped context.
	c, err := workflow.NewContext(context.Background(), run, eng, eng.logger, events)
	if err != nil {
		return err
	}

	var lastSeq int64
	if len(events) > 0 {
		lastSeq = events[len(events)-1].Seq
	}
	s := &session{
		run:     run,
		wfCtx:   c,
		nextSeq: lastSeq + 1,
		paused:  run.State == workflow.RunStatePaused,
	}

	eng.mu.Lock()
	eng.sessions[run.ID.String()] = s
	eng.mu.Unlock()

	if len(events) == 0 {
		started, histErr := history.New(run.ID, run.ExecutionID, history.EventExecutionStarted, run.Name, history.ExecutionStartedAttrs{
			Workflow:           run.Name,
			Version:            run.Version,
			Input:              run.Input,
			TaskQueue:          run.TaskQueue,
			ParentRunID:        run.ParentRunID,
			ContinuedFromRunID: run.ContinuedFromRunID,
			ScopeAppID:         run.ScopeAppID,
			ScopeOrgID:         run.ScopeOrgID,
		})
		if histErr != nil {
			eng.dropSession(run.ID)
			return histErr
		}
		if appendErr := s.append(context.Background(), eng.historyStore, started); appendErr != nil {
			eng.dropSession(run.ID)
			return appendErr
		}
	}

	workflow.Drive(c, handler, run.Input, func(o workflow.Outcome) {
		eng.finishRun(run, s, o)
	})
	return nil
}

// finishRun records the terminal outcome of a run's handler goroutine.
func (eng *Engine) finishRun(run *workflow.Run, s *session, o workflow.Outcome) {
	ctx := context.Background()

	s.mu.Lock()
	sealed := s.sealed
	s.mu.Unlock()
	if sealed {
		eng.dropSession(run.ID)
		return
	}

	switch o.Kind {
	case workflow.OutcomeCompleted:
		eng.completeRun(ctx, run, s, o.Result)

	case workflow.OutcomeFailed:
		eng.failRun(ctx, run, s, o.Err)

	case workflow.OutcomeCancelled:
		reason := ""
		if o.Err != nil {
			reason = o.Err.Error()
		}
		eng.closeCancelledRun(ctx, run, s, reason)

	case workflow.OutcomeContinuedAsNew:
		eng.continueRunAsNew(ctx, run, s, o.NewInput)

	case workflow.OutcomeInternal:
		// Journaling failed mid-run. Drop the session and leave the run
		// open; the next engine start recovers it by replay.
		eng.dropSession(run.ID)
		eng.logger.Error("run suspended after journal error",
			slog.String("run_id", run.ID.String()),
			slog.String("workflow", run.Name),
			slog.String("error", o.Err.Error()),
		)

	case workflow.OutcomeReplayEdge:
		// Only the replay-only scheduler produces this.
		eng.dropSession(run.ID)
	}
}

func (eng *Engine) completeRun(ctx context.Context, run *workflow.Run, s *session, result []byte) {
	ev, err := history.New(run.ID, run.ExecutionID, history.EventExecutionCompleted, "", history.ExecutionCompletedAttrs{
		Result: result,
	})
	if err == nil {
		err = s.append(ctx, eng.historyStore, ev)
	}
	if err != nil {
		eng.logger.Error("journal completion failed", slog.String("run_id", run.ID.String()), slog.String("error", err.Error()))
	}
	eng.dropSession(run.ID)

	now := time.Now().UTC()
	run.State = workflow.RunStateCompleted
	run.Output = result
	run.CompletedAt = &now
	run.UpdatedAt = now
	if err := eng.runStore.UpdateRun(ctx, run); err != nil {
		eng.logger.Error("update run failed", slog.String("run_id", run.ID.String()), slog.String("error", err.Error()))
	}

	eng.hooks.EmitExecutionCompleted(ctx, run, now.Sub(run.StartedAt))
	eng.notifyParentCompleted(ctx, run, result)
}

func (eng *Engine) failRun(ctx context.Context, run *workflow.Run, s *session, runErr error) {
	var nd *replay.NonDeterminismError
	nonDeterministic := errors.As(runErr, &nd)

	ev, err := history.New(run.ID, run.ExecutionID, history.EventExecutionFailed, "", history.ExecutionFailedAttrs{
		ErrorType:        replay.ErrorType(runErr),
		Error:            runErr.Error(),
		NonDeterministic: nonDeterministic,
	})
	if err == nil {
		err = s.append(ctx, eng.historyStore, ev)
	}
	if err != nil {
		eng.logger.Error("journal failure failed", slog.String("run_id", run.ID.String()), slog.String("error", err.Error()))
	}
	eng.dropSession(run.ID)

	now := time.Now().UTC()
	run.State = workflow.RunStateFailed
	run.Error = runErr.Error()
	run.ErrorType = replay.ErrorType(runErr)
	run.CompletedAt = &now
	run.UpdatedAt = now
	if err := eng.runStore.UpdateRun(ctx, run); err != nil {
		eng.logger.Error("update run failed", slog.String("run_id", run.ID.String()), slog.String("error", err.Error()))
	}

	eng.reapRunResources(ctx, run, "parent failed")
	eng.hooks.EmitExecutionFailed(ctx, run, runErr)
	eng.notifyParentFailed(ctx, run, runErr.Error(), replay.ErrorType(runErr), false)
}

func (eng *Engine) closeCancelledRun(ctx context.Context, run *workflow.Run, s *session, reason string) {
	ev, err := history.New(run.ID, run.ExecutionID, history.EventExecutionCancelled, "", history.ExecutionCancelledAttrs{
		Reason: reason,
	})
	if err == nil {
		err = s.append(ctx, eng.historyStore, ev)
	}
	if err != nil {
		eng.logger.Error("journal cancellation failed", slog.String("run_id", run.ID.String()), slog.String("error", err.Error()))
	}
	eng.dropSession(run.ID)

	now := time.Now().UTC()
	run.State = workflow.RunStateCancelled
	run.Error = reason
	run.CompletedAt = &now
	run.UpdatedAt = now
	if err := eng.runStore.UpdateRun(ctx, run); err != nil {
		eng.logger.Error("update run failed", slog.String("run_id", run.ID.String()), slog.String("error", err.Error()))
	}

	eng.reapRunResources(ctx, run, reason)
	eng.hooks.EmitExecutionCancelled(ctx, run, reason)
	eng.notifyParentFailed(ctx, run, reason, "", true)
}

func (eng *Engine) continueRunAsNew(ctx context.Context, run *workflow.Run, s *session, newInput []byte) {
	newRunID := id.NewRunID()

	ev, err := history.New(run.ID, run.ExecutionID, history.EventExecutionContinuedAsNew, "", history.ExecutionContinuedAsNewAttrs{
		NewRunID: newRunID,
		Input:    newInput,
	})
	if err == nil {
		err = s.append(ctx, eng.historyStore, ev)
	}
	if err != nil {
		eng.logger.Error("journal continue-as-new failed", slog.String("run_id", run.ID.String()), slog.String("error", err.Error()))
	}
	eng.dropSession(run.ID)

	now := time.Now().UTC()
	run.State = workflow.RunStateContinuedAsNew
	run.CompletedAt = &now
	run.UpdatedAt = now
	if updateErr := eng.runStore.UpdateRun(ctx, run); updateErr != nil {
		eng.logger.Error("update run failed", slog.String("run_id", run.ID.String()), slog.String("error", updateErr.Error()))
	}

	next := &workflow.Run{
		Entity:             replay.NewEntity(),
		ID:                 newRunID,
		ExecutionID:        run.ExecutionID,
		Name:               run.Name,
		Version:            run.Version,
		State:              workflow.RunStateRunning,
		TaskQueue:          run.TaskQueue,
		Input:              newInput,
		ParentRunID:        run.ParentRunID,
		ContinuedFromRunID: run.ID,
		Deadline:           run.Deadline,
		ScopeAppID:         run.ScopeAppID,
		ScopeOrgID:         run.ScopeOrgID,
		StartedAt:          now,
	}
	if createErr := eng.runStore.CreateRun(ctx, next); createErr != nil {
		eng.logger.Error("create successor run failed",
			slog.String("execution_id", run.ExecutionID.String()),
			slog.String("error", createErr.Error()),
		)
		return
	}

	// Buffered signals carry over to the successor run.
	moved, transferErr := eng.signalStore.TransferSignals(ctx, run.ID, newRunID)
	if transferErr != nil {
		eng.logger.Error("transfer signals failed", slog.String("run_id", run.ID.String()), slog.String("error", transferErr.Error()))
	}

	eng.hooks.EmitExecutionContinuedAsNew(ctx, run, newRunID)

	if beginErr := eng.beginRun(next, nil); beginErr != nil {
		eng.logger.Error("start successor run failed",
			slog.String("run_id", newRunID.String()),
			slog.String("error", beginErr.Error()),
		)
		return
	}

	// Re-journal carried signals into the successor's history so its
	// replay sees them and its inbox fills.
	if moved > 0 {
		carried, listErr := eng.signalStore.PendingSignals(ctx, newRunID, "")
		if listErr != nil {
			eng.logger.Error("list carried signals failed", slog.String("run_id", newRunID.String()), slog.String("error", listErr.Error()))
			return
		}
		for _, sig := range carried {
			if deliverErr := eng.rejournalCarriedSignal(ctx, next, sig); deliverErr != nil {
				eng.logger.Error("redeliver carried signal failed",
					slog.String("run_id", newRunID.String()),
					slog.String("signal", sig.Name),
					slog.String("error", deliverErr.Error()),
				)
			}
		}
	}
}

// reapRunResources cancels the run's outstanding tasks and timers and
// cascades cancellation to open children.
func (eng *Engine) reapRunResources(ctx context.Context, run *workflow.Run, reason string) {
	if _, err := eng.taskStore.CancelTasksForRun(ctx, run.ID); err != nil {
		eng.logger.Error("cancel tasks failed", slog.String("run_id", run.ID.String()), slog.String("error", err.Error()))
	}
	if err := eng.timerStore.CancelTimersForRun(ctx, run.ID); err != nil {
		eng.logger.Error("cancel timers failed", slog.String("run_id", run.ID.String()), slog.String("error", err.Error()))
	}

	children, err := eng.runStore.ListChildRuns(ctx, run.ID)
	if err != nil {
		eng.logger.Error("list child runs failed", slog.String("run_id", run.ID.String()), slog.String("error", err.Error()))
		return
	}
	for _, child := range children {
		if child.State.Terminal() {
			continue
		}
		eng.cancelRun(ctx, child, reason)
	}
}

// ──────────────────────────────────────────────────
// Parent notification
// ──────────────────────────────────────────────────

// parentScheduledSeq finds the Seq of the parent's ChildExecutionStarted
// event for the given child execution.
func (eng *Engine) parentScheduledSeq(ctx context.Context, parent *workflow.Run, childExecID id.ExecutionID) (int64, error) {
	events, err := eng.historyStore.ListEvents(ctx, parent.ID, 0, 0)
	if err != nil {
		return 0, err
	}
	for _, ev := range events {
		if ev.Type != history.EventChildExecutionStarted {
			continue
		}
		var attrs history.ChildExecutionStartedAttrs
		if err := ev.DecodeAttrs(&attrs); err != nil {
			return 0, err
		}
		if attrs.ChildExecutionID == childExecID {
			return ev.Seq, nil
		}
	}
	return 0, replay.ErrEventNotFound
}

func (eng *Engine) notifyParentCompleted(ctx context.Context, child *workflow.Run, result []byte) {
	if child.ParentRunID.IsNil() {
		return
	}
	parent, err := eng.runStore.GetRun(ctx, child.ParentRunID)
	if err != nil || parent.State.Terminal() {
		return
	}
	seq, err := eng.parentScheduledSeq(ctx, parent, child.ExecutionID)
	if err != nil {
		eng.logger.Error("find child schedule seq failed", slog.String("run_id", parent.ID.String()), slog.String("error", err.Error()))
		return
	}

	ev, err := history.New(parent.ID, parent.ExecutionID, history.EventChildExecutionCompleted, child.Name, history.ChildExecutionCompletedAttrs{
		ChildExecutionID: child.ExecutionID,
		ScheduledSeq:     seq,
		Result:           result,
	})
	if err == nil {
		err = eng.journalRun(ctx, parent, ev)
	}
	if err != nil {
		eng.logger.Error("journal child completion failed", slog.String("run_id", parent.ID.String()), slog.String("error", err.Error()))
		return
	}
	eng.deliverToRun(parent.ID, func(c *workflow.Context) {
		if deliverErr := c.Deliver(ev, seq); deliverErr != nil {
			eng.logger.Error("deliver child completion failed", slog.String("run_id", parent.ID.String()), slog.String("error", deliverErr.Error()))
		}
	})
}

func (eng *Engine) notifyParentFailed(ctx context.Context, child *workflow.Run, errMsg, errType string, cancelled bool) {
	if child.ParentRunID.IsNil() {
		return
	}
	parent, err := eng.runStore.GetRun(ctx, child.ParentRunID)
	if err != nil || parent.State.Terminal() {
		return
	}
	seq, err := eng.parentScheduledSeq(ctx, parent, child.ExecutionID)
	if err != nil {
		eng.logger.Error("find child schedule seq failed", slog.String("run_id", parent.ID.String()), slog.String("error", err.Error()))
		return
	}

	ev, err := history.New(parent.ID, parent.ExecutionID, history.EventChildExecutionFailed, child.Name, history.ChildExecutionFailedAttrs{
		ChildExecutionID: child.ExecutionID,
		ScheduledSeq:     seq,
		ErrorType:        errType,
		Error:            errMsg,
		Cancelled:        cancelled,
	})
	if err == nil {
		err = eng.journalRun(ctx, parent, ev)
	}
	if err != nil {
		eng.logger.Error("journal child failure failed", slog.String("run_id", parent.ID.String()), slog.String("error", err.Error()))
		return
	}
	eng.deliverToRun(parent.ID, func(c *workflow.Context) {
		if deliverErr := c.Deliver(ev, seq); deliverErr != nil {
			eng.logger.Error("deliver child failure failed", slog.String("run_id", parent.ID.String()), slog.String("error", deliverErr.Error()))
		}
	})
}

// ──────────────────────────────────────────────────
// worker.Reporter
// ──────────────────────────────────────────────────

// OnTaskCompleted journals ActivityCompleted into the owning run's history
// and wakes the run.
func (eng *Engine) OnTaskCompleted(ctx context.Context, t *activity.Task, result []byte) error {
	run, err := eng.runStore.GetRun(ctx, t.RunID)
	if err != nil {
		return err
	}
	if run.State.Terminal() {
		// The run closed while the activity was in flight. Its history
		// is sealed; the result is kept on the task row only.
		return nil
	}

	ev, err := history.New(t.RunID, t.ExecutionID, history.EventActivityCompleted, t.Name, history.ActivityCompletedAttrs{
		ActivityID:   t.ID,
		ScheduledSeq: t.ScheduledSeq,
		Result:       result,
		Attempts:     t.Attempt,
	})
	if err != nil {
		return err
	}
	if err := eng.journalRun(ctx, run, ev); err != nil {
		return err
	}
	eng.deliverToRun(t.RunID, func(c *workflow.Context) {
		if deliverErr := c.Deliver(ev, t.ScheduledSeq); deliverErr != nil {
			eng.logger.Error("deliver activity result failed", slog.String("run_id", t.RunID.String()), slog.String("error", deliverErr.Error()))
		}
	})
	return nil
}

// OnTaskFailed journals ActivityFailed after the retry policy is spent and
// wakes the run with the failure.
func (eng *Engine) OnTaskFailed(ctx context.Context, t *activity.Task, taskErr error, nonRetryable bool) error {
	run, err := eng.runStore.GetRun(ctx, t.RunID)
	if err != nil {
		return err
	}
	if run.State.Terminal() {
		return nil
	}

	ev, err := history.New(t.RunID, t.ExecutionID, history.EventActivityFailed, t.Name, history.ActivityFailedAttrs{
		ActivityID:   t.ID,
		ScheduledSeq: t.ScheduledSeq,
		ErrorType:    replay.ErrorType(taskErr),
		Error:        taskErr.Error(),
		NonRetryable: nonRetryable,
		Attempts:     t.Attempt,
	})
	if err != nil {
		return err
	}
	if err := eng.journalRun(ctx, run, ev); err != nil {
		return err
	}
	eng.deliverToRun(t.RunID, func(c *workflow.Context) {
		if deliverErr := c.Deliver(ev, t.ScheduledSeq); deliverErr != nil {
			eng.logger.Error("deliver activity failure failed", slog.String("run_id", t.RunID.String()), slog.String("error", deliverErr.Error()))
		}
	})
	return nil
}

// ──────────────────────────────────────────────────
// timer.Firer
// ──────────────────────────────────────────────────

// FireTimer journals TimerFired into the owning run's history and wakes
// the run.
func (eng *Engine) FireTimer(ctx context.Context, t *timer.Timer) error {
	run, err := eng.runStore.GetRun(ctx, t.RunID)
	if err != nil {
		return err
	}
	if run.State.Terminal() {
		return nil
	}

	ev, err := history.New(t.RunID, t.ExecutionID, history.EventTimerFired, "", history.TimerFiredAttrs{
		TimerID:      t.ID,
		ScheduledSeq: t.ScheduledSeq,
	})
	if err != nil {
		return err
	}
	if err := eng.journalRun(ctx, run, ev); err != nil {
		return err
	}
	eng.deliverToRun(t.RunID, func(c *workflow.Context) {
		if deliverErr := c.Deliver(ev, t.ScheduledSeq); deliverErr != nil {
			eng.logger.Error("deliver timer fired failed", slog.String("run_id", t.RunID.String()), slog.String("error", deliverErr.Error()))
		}
	})
	eng.hooks.EmitTimerFired(ctx, t.RunID, t.ID)
	return nil
}

// journalSignal journals SignalReceived for the run, buffers it durably,
// and hands it to the parked context.
func (eng *Engine) journalSignal(ctx context.Context, run *workflow.Run, name string, payload []byte) error {
	return eng.deliverSignal(ctx, run, name, payload, true)
}

// rejournalCarriedSignal writes a continue-as-new carried signal into the
// successor's history and inbox. The transferred buffer row is already the
// durable copy, so no second row is written.
func (eng *Engine) rejournalCarriedSignal(ctx context.Context, run *workflow.Run, sig *signal.Signal) error {
	return eng.deliverSignal(ctx, run, sig.Name, sig.Payload, false)
}

func (eng *Engine) deliverSignal(ctx context.Context, run *workflow.Run, name string, payload []byte, buffer bool) error {
	sigID := id.NewSignalID()
	ev, err := history.New(run.ID, run.ExecutionID, history.EventSignalReceived, name, history.SignalReceivedAttrs{
		SignalID: sigID,
		Payload:  payload,
	})
	if err != nil {
		return err
	}
	if err := eng.journalRun(ctx, run, ev); err != nil {
		return err
	}

	if buffer {
		sig := &signal.Signal{
			ID:          sigID,
			ExecutionID: run.ExecutionID,
			RunID:       run.ID,
			Name:        name,
			Payload:     payload,
			Seq:         ev.Seq,
			CreatedAt:   time.Now().UTC(),
		}
		if err := eng.signalStore.BufferSignal(ctx, sig); err != nil {
			eng.logger.Error("buffer signal failed", slog.String("run_id", run.ID.String()), slog.String("error", err.Error()))
		}
	}

	eng.deliverToRun(run.ID, func(c *workflow.Context) {
		c.DeliverSignal(ev.Seq, name, payload)
	})
	eng.hooks.EmitSignalReceived(ctx, run.ID, name)
	return nil
}
