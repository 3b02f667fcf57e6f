package workflow

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/xraph/replay"
	"github.com/xraph/replay/history"
)

// OutcomeKind classifies how a workflow handler goroutine ended.
type OutcomeKind int

const (
	// OutcomeCompleted means the handler returned a result.
	OutcomeCompleted OutcomeKind = iota
	// OutcomeFailed means the handler returned an error, panicked, or hit
	// a determinism violation.
	OutcomeFailed
	// OutcomeCancelled means cancellation was observed at a suspension
	// point.
	OutcomeCancelled
	// OutcomeContinuedAsNew means the handler called ContinueAsNew.
	OutcomeContinuedAsNew
	// OutcomeInternal means journaling a command failed. The run stays
	// open; replay on the next engine start recovers it.
	OutcomeInternal
	// OutcomeReplayEdge means a replay-only drive consumed the whole
	// journal and stopped at the first would-be live command.
	OutcomeReplayEdge
)

// Outcome reports how a driven handler ended.
type Outcome struct {
	Kind   OutcomeKind
	Result []byte
	Err    error
	// NewInput carries the successor run's input for
	// OutcomeContinuedAsNew.
	NewInput []byte
}

// Drive runs the handler on a fresh goroutine against the given context and
// invokes done exactly once with the outcome. The goroutine may outlive
// Drive arbitrarily long: it parks at suspension points until the engine
// resolves futures or cancels the run.
func Drive(c *Context, handler HandlerFunc, input []byte, done func(Outcome)) {
	go func() {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			if a, ok := r.(*abortError); ok {
				switch a.kind {
				case abortCancelled:
					done(Outcome{Kind: OutcomeCancelled, Err: a.err})
				case abortContinueAsNew:
					done(Outcome{Kind: OutcomeContinuedAsNew, NewInput: a.input})
				case abortNonDeterminism:
					done(Outcome{Kind: OutcomeFailed, Err: a.err})
				case abortInternal:
					done(Outcome{Kind: OutcomeInternal, Err: a.err})
				}
				return
			}
			if _, ok := r.(replayEdge); ok {
				done(Outcome{Kind: OutcomeReplayEdge})
				return
			}
			done(Outcome{Kind: OutcomeFailed, Err: &replay.PanicError{Value: r, Stack: debug.Stack()}})
		}()

		result, err := handler(c, input)
		if err != nil {
			done(Outcome{Kind: OutcomeFailed, Err: err})
			return
		}
		done(Outcome{Kind: OutcomeCompleted, Result: result})
	}()
}

// ──────────────────────────────────────────────────
// Replay verification
// ──────────────────────────────────────────────────

// replayEdge is the panic payload the replay-only scheduler uses to stop a
// handler at its first live command.
type replayEdge struct{}

// replayScheduler refuses every live command: reaching one means the
// journal was consumed cleanly.
type replayScheduler struct{}

func (replayScheduler) ScheduleActivity(context.Context, *Run, string, []byte) (*history.Event, error) {
	panic(replayEdge{})
}

func (replayScheduler) StartTimer(context.Context, *Run, time.Duration) (*history.Event, error) {
	panic(replayEdge{})
}

func (replayScheduler) RecordMarker(context.Context, *Run, string, []byte) (*history.Event, error) {
	panic(replayEdge{})
}

func (replayScheduler) StartChildExecution(context.Context, *Run, string, []byte) (*history.Event, error) {
	panic(replayEdge{})
}

func (replayScheduler) RecordWorkflowTask(context.Context, *Run, int) error {
	panic(replayEdge{})
}

// Replayer re-executes a run's handler purely against journaled history to
// verify determinism. No side effects are issued and nothing is appended.
type Replayer struct {
	registry *Registry
	logger   *slog.Logger
}

// NewReplayer creates a replayer over the given registry.
func NewReplayer(registry *Registry, logger *slog.Logger) *Replayer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Replayer{registry: registry, logger: logger}
}

// Replay drives the run's pinned handler version against events. It
// returns nil when the handler reproduces the journal exactly, whether the
// run then suspends, completes, or fails the same way it did live. A
// *replay.NonDeterminismError reports the first divergence.
func (r *Replayer) Replay(ctx context.Context, run *Run, events []*history.Event) error {
	handler, ok := r.registry.GetVersion(run.Name, run.Version)
	if !ok {
		return replay.ErrWorkflowNotRegistered
	}

	c, err := NewContext(ctx, run, replayScheduler{}, r.logger, events)
	if err != nil {
		return err
	}

	suspended := make(chan struct{}, 1)
	c.notifySuspend(suspended)

	done := make(chan Outcome, 1)
	Drive(c, handler, run.Input, func(o Outcome) { done <- o })

	select {
	case o := <-done:
		switch o.Kind {
		case OutcomeFailed:
			var nd *replay.NonDeterminismError
			if errors.As(o.Err, &nd) {
				return nd
			}
		case OutcomeInternal:
			return o.Err
		}
		return nil
	case <-suspended:
		// Parked at the same suspension point the live run is in.
		// Unwind the goroutine so it does not linger.
		c.Cancel("replay verification complete")
		<-done
		return nil
	}
}
