package workflow

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/xraph/replay"
	"github.com/xraph/replay/history"
)

// Future is the handle for an in-flight command: an activity invocation, a
// durable timer, a signal wait, or a child execution. Futures resolve in
// history order, which is what keeps WaitAny deterministic across replays.
type Future struct {
	c *Context

	resolved bool
	result   []byte
	err      error

	// seq is the history sequence of the resolving event. WaitAny picks
	// the resolved future with the lowest seq.
	seq int64
}

// Get blocks until the future resolves, then unmarshals the result into out
// (out may be nil to discard). Returns the command's error, if any.
// Blocking is a suspension point: cancellation is observed here.
func (f *Future) Get(out any) error {
	f.c.park(func() bool { return f.resolved })

	f.c.mu.Lock()
	err, result := f.err, f.result
	f.c.mu.Unlock()

	if err != nil {
		return err
	}
	if out != nil && len(result) > 0 {
		if uerr := json.Unmarshal(result, out); uerr != nil {
			return fmt.Errorf("unmarshal future result: %w", uerr)
		}
	}
	return nil
}

// Ready reports whether the future has resolved without blocking.
func (f *Future) Ready() bool {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()
	return f.resolved
}

// Err returns the future's error without blocking. It is only meaningful
// after the future resolved.
func (f *Future) Err() error {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()
	return f.err
}

// resolveLocked marks the future resolved. Caller holds c.mu.
func (f *Future) resolveLocked(result []byte, err error, seq int64) {
	if f.resolved {
		return
	}
	f.resolved = true
	f.result = result
	f.err = err
	f.seq = seq
}

// resolveFromEventLocked resolves the future from a recorded completion
// event. Caller holds c.mu.
func (f *Future) resolveFromEventLocked(ev *history.Event) error {
	switch ev.Type {
	case history.EventActivityCompleted:
		var attrs history.ActivityCompletedAttrs
		if err := ev.DecodeAttrs(&attrs); err != nil {
			return err
		}
		f.resolveLocked(attrs.Result, nil, ev.Seq)

	case history.EventActivityFailed:
		var attrs history.ActivityFailedAttrs
		if err := ev.DecodeAttrs(&attrs); err != nil {
			return err
		}
		f.resolveLocked(nil, &ActivityError{
			Activity: ev.Name,
			Attempts: attrs.Attempts,
			Err:      rebuildFailure(attrs.ErrorType, attrs.Error, attrs.NonRetryable),
		}, ev.Seq)

	case history.EventTimerFired:
		f.resolveLocked(nil, nil, ev.Seq)

	case history.EventChildExecutionCompleted:
		var attrs history.ChildExecutionCompletedAttrs
		if err := ev.DecodeAttrs(&attrs); err != nil {
			return err
		}
		f.resolveLocked(attrs.Result, nil, ev.Seq)

	case history.EventChildExecutionFailed:
		var attrs history.ChildExecutionFailedAttrs
		if err := ev.DecodeAttrs(&attrs); err != nil {
			return err
		}
		f.resolveLocked(nil, &ChildError{
			ExecutionID: attrs.ChildExecutionID,
			Workflow:    ev.Name,
			Cancelled:   attrs.Cancelled,
			Err:         rebuildFailure(attrs.ErrorType, attrs.Error, false),
		}, ev.Seq)

	default:
		return fmt.Errorf("workflow: event %s cannot resolve a future", ev.Type)
	}
	return nil
}

// rebuildFailure reconstructs a typed error from its journaled form so
// replayed code observes the same failure it saw live.
func rebuildFailure(errType, msg string, nonRetryable bool) error {
	if errType != "" {
		return &replay.ApplicationError{Type: errType, Message: msg, NonRetryable: nonRetryable}
	}
	return errors.New(msg)
}
