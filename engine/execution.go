package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/replay"
	"github.com/xraph/replay/history"
	"github.com/xraph/replay/id"
	"github.com/xraph/replay/scope"
	"github.com/xraph/replay/signal"
	"github.com/xraph/replay/workflow"
)

// StartOptions configures StartExecution.
type StartOptions struct {
	// TaskQueue routes the execution's activities. Defaults to "default".
	TaskQueue string

	// ExecutionID pins the execution's identity for idempotent starts.
	// Starting an ID whose latest run is still open returns
	// *replay.AlreadyStartedError; a closed lineage gets a fresh run.
	ExecutionID id.ExecutionID

	// ExecutionTimeout bounds the whole execution lineage. Zero means
	// unbounded.
	ExecutionTimeout time.Duration
}

// StartOption configures a single StartExecution call.
type StartOption func(*StartOptions)

// WithStartTaskQueue routes the execution's activities to the given queue.
func WithStartTaskQueue(q string) StartOption {
	return func(o *StartOptions) { o.TaskQueue = q }
}

// WithExecutionID pins the execution ID for idempotent starts.
func WithExecutionID(execID id.ExecutionID) StartOption {
	return func(o *StartOptions) { o.ExecutionID = execID }
}

// WithExecutionTimeout bounds the execution's total duration.
func WithExecutionTimeout(d time.Duration) StartOption {
	return func(o *StartOptions) { o.ExecutionTimeout = d }
}

// StartExecutionRaw starts a workflow execution with a pre-serialized
// input and returns its first run.
func (eng *Engine) StartExecutionRaw(ctx context.Context, name string, input []byte, opts ...StartOption) (*workflow.Run, error) {
	var o StartOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.TaskQueue == "" {
		o.TaskQueue = "default"
	}

	version := eng.workflows.LatestVersion(name)
	if version == 0 {
		return nil, fmt.Errorf("%w: %s", replay.ErrWorkflowNotRegistered, name)
	}

	execID := o.ExecutionID
	if execID.IsNil() {
		execID = id.NewExecutionID()
	} else {
		latest, err := eng.runStore.LatestRun(ctx, execID)
		switch {
		case err == nil && latest.State.Open():
			return nil, &replay.AlreadyStartedError{ExecutionID: execID, RunID: latest.ID}
		case err == nil:
			// Closed lineage: a new run extends it.
		default:
			// Unknown lineage: first run claims the ID.
		}
	}

	appID, orgID := scope.Capture(ctx)
	now := time.Now().UTC()

	run := &workflow.Run{
		Entity:      replay.NewEntity(),
		ID:          id.NewRunID(),
		ExecutionID: execID,
		Name:        name,
		Version:     version,
		State:       workflow.RunStateRunning,
		TaskQueue:   o.TaskQueue,
		Input:       input,
		ScopeAppID:  appID,
		ScopeOrgID:  orgID,
		StartedAt:   now,
	}
	if o.ExecutionTimeout > 0 {
		run.Deadline = now.Add(o.ExecutionTimeout)
	}

	if err := eng.runStore.CreateRun(ctx, run); err != nil {
		return nil, err
	}
	eng.hooks.EmitExecutionStarted(ctx, run)

	if err := eng.beginRun(run, nil); err != nil {
		return nil, err
	}
	return run, nil
}

// resolveRun resolves an execution ID to its current run and enforces
// the caller's scope against the recorded tenant identity.
func (eng *Engine) resolveRun(ctx context.Context, execID id.ExecutionID) (*workflow.Run, error) {
	run, err := eng.runStore.LatestRun(ctx, execID)
	if err != nil {
		return nil, err
	}
	if !scope.Allowed(ctx, run.ScopeAppID, run.ScopeOrgID) {
		return nil, replay.ErrScopeDenied
	}
	return run, nil
}

// SignalExecution delivers a named signal to the execution's current run.
// Reserved names (pause, resume, cancel) are routed to the corresponding
// lifecycle operation; the payload of a reserved cancel carries the reason.
func (eng *Engine) SignalExecution(ctx context.Context, execID id.ExecutionID, name string, payload []byte) error {
	if signal.Reserved(name) {
		switch name {
		case signal.NamePause:
			return eng.PauseExecution(ctx, execID)
		case signal.NameResume:
			return eng.ResumeExecution(ctx, execID)
		case signal.NameCancel:
			return eng.CancelExecution(ctx, execID, string(payload))
		}
	}

	run, err := eng.resolveRun(ctx, execID)
	if err != nil {
		return err
	}
	if run.State.Terminal() {
		return replay.ErrExecutionTerminal
	}
	return eng.journalSignal(ctx, run, name, payload)
}

// QueryExecution runs a registered query handler against the execution's
// current in-memory state. Queries never touch history.
func (eng *Engine) QueryExecution(ctx context.Context, execID id.ExecutionID, name string, args []byte) (any, error) {
	run, err := eng.resolveRun(ctx, execID)
	if err != nil {
		return nil, err
	}
	s := eng.session(run.ID)
	if s == nil {
		return nil, &replay.QueryFailedError{Query: name, Err: fmt.Errorf("run %s is not active", run.ID)}
	}
	return s.wfCtx.Query(name, args)
}

// CancelExecution requests cooperative cancellation of the execution's
// current run. The run observes it at its next suspension point; in-flight
// activities are cancelled and children cascade.
func (eng *Engine) CancelExecution(ctx context.Context, execID id.ExecutionID, reason string) error {
	run, err := eng.resolveRun(ctx, execID)
	if err != nil {
		return err
	}
	if run.State.Terminal() {
		return replay.ErrExecutionTerminal
	}
	if reason == "" {
		reason = "cancelled"
	}
	eng.cancelRun(ctx, run, reason)
	return nil
}

// cancelRun delivers cancellation to an open run. With a live session the
// parked goroutine unwinds and finishRun seals the history; without one
// (the run is open but not resumed in this process) the terminal event is
// journaled directly.
func (eng *Engine) cancelRun(ctx context.Context, run *workflow.Run, reason string) {
	if s := eng.session(run.ID); s != nil {
		s.wfCtx.Cancel(reason)
		return
	}

	ev, err := history.New(run.ID, run.ExecutionID, history.EventExecutionCancelled, "", history.ExecutionCancelledAttrs{
		Reason: reason,
	})
	if err == nil {
		err = eng.journalRun(ctx, run, ev)
	}
	if err != nil {
		eng.logger.Error("journal cancellation failed", slog.String("run_id", run.ID.String()), slog.String("error", err.Error()))
	}

	now := time.Now().UTC()
	run.State = workflow.RunStateCancelled
	run.Error = reason
	run.CompletedAt = &now
	run.UpdatedAt = now
	if updateErr := eng.runStore.UpdateRun(ctx, run); updateErr != nil {
		eng.logger.Error("update run failed", slog.String("run_id", run.ID.String()), slog.String("error", updateErr.Error()))
	}

	eng.reapRunResources(ctx, run, reason)
	eng.hooks.EmitExecutionCancelled(ctx, run, reason)
	eng.notifyParentFailed(ctx, run, reason, "", true)
}

// PauseExecution stops advancing the execution's current run. In-flight
// activities finish and their completions are journaled, but the workflow
// function stays parked until resume.
func (eng *Engine) PauseExecution(ctx context.Context, execID id.ExecutionID) error {
	run, err := eng.resolveRun(ctx, execID)
	if err != nil {
		return err
	}
	if run.State.Terminal() {
		return replay.ErrExecutionTerminal
	}
	if run.State == workflow.RunStatePaused {
		return nil
	}

	run.State = workflow.RunStatePaused
	run.UpdatedAt = time.Now().UTC()
	if err := eng.runStore.UpdateRun(ctx, run); err != nil {
		return err
	}
	if s := eng.session(run.ID); s != nil {
		s.mu.Lock()
		s.paused = true
		s.mu.Unlock()
	}
	eng.logger.Info("execution paused",
		slog.String("execution_id", execID.String()),
		slog.String("run_id", run.ID.String()),
	)
	return nil
}

// ResumeExecution reopens a paused run and flushes deliveries that arrived
// while it was paused, in arrival order.
func (eng *Engine) ResumeExecution(ctx context.Context, execID id.ExecutionID) error {
	run, err := eng.resolveRun(ctx, execID)
	if err != nil {
		return err
	}
	if run.State.Terminal() {
		return replay.ErrExecutionTerminal
	}
	if run.State != workflow.RunStatePaused {
		return nil
	}

	run.State = workflow.RunStateRunning
	run.UpdatedAt = time.Now().UTC()
	if err := eng.runStore.UpdateRun(ctx, run); err != nil {
		return err
	}

	s := eng.session(run.ID)
	if s == nil {
		return nil
	}
	s.mu.Lock()
	s.paused = false
	queued := s.queued
	s.queued = nil
	c := s.wfCtx
	s.mu.Unlock()

	for _, fn := range queued {
		fn(c)
	}
	eng.logger.Info("execution resumed",
		slog.String("execution_id", execID.String()),
		slog.String("run_id", run.ID.String()),
	)
	return nil
}

// GetExecution returns the execution's current run.
func (eng *Engine) GetExecution(ctx context.Context, execID id.ExecutionID) (*workflow.Run, error) {
	return eng.resolveRun(ctx, execID)
}

// ListExecutions returns runs matching the given options, filtered to the
// caller's scope.
func (eng *Engine) ListExecutions(ctx context.Context, opts workflow.ListOpts) ([]*workflow.Run, error) {
	runs, err := eng.runStore.ListRuns(ctx, opts)
	if err != nil {
		return nil, err
	}
	visible := runs[:0]
	for _, run := range runs {
		if scope.Allowed(ctx, run.ScopeAppID, run.ScopeOrgID) {
			visible = append(visible, run)
		}
	}
	return visible, nil
}

// HistoryOptions configures GetHistory.
type HistoryOptions struct {
	// FullChain concatenates the histories of every run in the
	// execution's continue-as-new lineage, oldest run first.
	FullChain bool
}

// HistoryOption configures a single GetHistory call.
type HistoryOption func(*HistoryOptions)

// WithFullChain returns the whole lineage's history instead of only the
// current run's.
func WithFullChain() HistoryOption {
	return func(o *HistoryOptions) { o.FullChain = true }
}

// GetHistory returns the execution's journaled history.
func (eng *Engine) GetHistory(ctx context.Context, execID id.ExecutionID, opts ...HistoryOption) ([]*history.Event, error) {
	var o HistoryOptions
	for _, opt := range opts {
		opt(&o)
	}

	run, err := eng.resolveRun(ctx, execID)
	if err != nil {
		return nil, err
	}

	if !o.FullChain {
		return eng.historyStore.ListEvents(ctx, run.ID, 0, 0)
	}

	lineage, err := eng.runStore.RunsForExecution(ctx, execID)
	if err != nil {
		return nil, err
	}
	var events []*history.Event
	for _, r := range lineage {
		evs, listErr := eng.historyStore.ListEvents(ctx, r.ID, 0, 0)
		if listErr != nil {
			return nil, listErr
		}
		events = append(events, evs...)
	}
	return events, nil
}

// PendingSignals returns the names of the execution's buffered, unconsumed
// signals in delivery order.
func (eng *Engine) PendingSignals(ctx context.Context, execID id.ExecutionID) ([]string, error) {
	run, err := eng.resolveRun(ctx, execID)
	if err != nil {
		return nil, err
	}
	if s := eng.session(run.ID); s != nil {
		return s.wfCtx.PendingSignals(), nil
	}
	sigs, err := eng.signalStore.PendingSignals(ctx, run.ID, "")
	if err != nil {
		return nil, err
	}
	names := make([]string, len(sigs))
	for i, sig := range sigs {
		names[i] = sig.Name
	}
	return names, nil
}

// ReplayRun re-executes a run's handler purely against its journaled
// history to verify determinism. Nothing is appended and no side effects
// run.
func (eng *Engine) ReplayRun(ctx context.Context, runID id.RunID) error {
	run, err := eng.runStore.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	events, err := eng.historyStore.ListEvents(ctx, runID, 0, 0)
	if err != nil {
		return err
	}
	return eng.replayer.Replay(ctx, run, events)
}

// resumeOpenRuns rebuilds sessions for every open run by replaying its
// journaled history. Called on engine start for crash recovery.
func (eng *Engine) resumeOpenRuns(ctx context.Context) error {
	runs, err := eng.runStore.ListOpenRuns(ctx)
	if err != nil {
		return err
	}
	for _, run := range runs {
		if eng.session(run.ID) != nil {
			continue
		}
		events, listErr := eng.historyStore.ListEvents(ctx, run.ID, 0, 0)
		if listErr != nil {
			eng.logger.Error("load history failed",
				slog.String("run_id", run.ID.String()),
				slog.String("error", listErr.Error()),
			)
			continue
		}
		if beginErr := eng.beginRun(run, events); beginErr != nil {
			eng.logger.Error("resume run failed",
				slog.String("run_id", run.ID.String()),
				slog.String("workflow", run.Name),
				slog.String("error", beginErr.Error()),
			)
			continue
		}
		eng.logger.Info("resumed run",
			slog.String("run_id", run.ID.String()),
			slog.String("workflow", run.Name),
			slog.Int("events", len(events)),
		)
	}
	return nil
}
