package replay

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/xraph/replay/id"
)

// ApplicationError is a typed business failure raised by activity or workflow
// code. The Type string is what retry policies match against their
// non-retryable lists; it should be a stable, machine-readable tag such as
// "card_declined" rather than prose.
type ApplicationError struct {
	// Type is the stable failure tag used for retry classification.
	Type string `json:"type"`

	// Message is the human-readable description.
	Message string `json:"message"`

	// NonRetryable marks the failure as terminal regardless of the retry
	// policy in force.
	NonRetryable bool `json:"non_retryable"`

	// Details carries optional structured context, JSON-encoded.
	Details json.RawMessage `json:"details,omitempty"`
}

// NewApplicationError creates a retryable ApplicationError.
func NewApplicationError(errType, message string) *ApplicationError {
	return &ApplicationError{Type: errType, Message: message}
}

// NewNonRetryableError creates an ApplicationError that is never retried.
func NewNonRetryableError(errType, message string) *ApplicationError {
	return &ApplicationError{Type: errType, Message: message, NonRetryable: true}
}

// WithDetails attaches JSON-encoded structured context to the error.
// Marshal failures are ignored; the error is returned unchanged.
func (e *ApplicationError) WithDetails(v any) *ApplicationError {
	data, err := json.Marshal(v)
	if err != nil {
		return e
	}
	e.Details = data
	return e
}

func (e *ApplicationError) Error() string {
	if e.Type == "" {
		return e.Message
	}
	return e.Type + ": " + e.Message
}

// TimeoutKind distinguishes which activity deadline lapsed.
type TimeoutKind string

const (
	// TimeoutStartToClose means the activity ran past its overall deadline.
	TimeoutStartToClose TimeoutKind = "start_to_close"

	// TimeoutHeartbeat means a running activity stopped heartbeating.
	TimeoutHeartbeat TimeoutKind = "heartbeat"
)

// TimeoutError reports an activity attempt that exceeded a deadline.
// Timeouts count as retryable attempt failures under the retry policy.
type TimeoutError struct {
	Kind     TimeoutKind `json:"kind"`
	Activity string      `json:"activity"`
	Attempt  int         `json:"attempt"`
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("replay: activity %q attempt %d timed out (%s)", e.Activity, e.Attempt, e.Kind)
}

// NonDeterminismError reports a mismatch between recorded history and what
// the workflow function did when re-executed. It is fatal: the run fails and
// is never retried, because the history can no longer be trusted to describe
// the code.
type NonDeterminismError struct {
	RunID    id.RunID `json:"run_id"`
	Seq      int64    `json:"seq"`
	Expected string   `json:"expected"`
	Got      string   `json:"got"`
}

func (e *NonDeterminismError) Error() string {
	return fmt.Sprintf("replay: non-deterministic workflow: run %s at seq %d expected %s, got %s",
		e.RunID, e.Seq, e.Expected, e.Got)
}

// AlreadyStartedError is returned by StartExecution when an open execution
// with the requested ExecutionID already exists.
type AlreadyStartedError struct {
	ExecutionID id.ExecutionID `json:"execution_id"`
	RunID       id.RunID       `json:"run_id"`
}

func (e *AlreadyStartedError) Error() string {
	return fmt.Sprintf("replay: execution %s already started (run %s)", e.ExecutionID, e.RunID)
}

// QueryFailedError is returned by QueryExecution when the query name is not
// registered on the run or the handler itself returned an error.
type QueryFailedError struct {
	Query string
	Err   error
}

func (e *QueryFailedError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("replay: query %q failed", e.Query)
	}
	return fmt.Sprintf("replay: query %q failed: %v", e.Query, e.Err)
}

func (e *QueryFailedError) Unwrap() error { return e.Err }

// PanicError wraps a panic recovered from activity or workflow code.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("replay: recovered panic: %v", e.Value)
}

// ErrorType returns the retry-classification tag for an error: the Type of
// an ApplicationError anywhere in the chain, "timeout:<kind>" for a
// TimeoutError, or "" when the error carries none. The tag is what
// NonRetryableErrorTypes entries match against and what lands in the
// error_type history attribute.
func ErrorType(err error) string {
	var appErr *ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	var toErr *TimeoutError
	if errors.As(err, &toErr) {
		return "timeout:" + string(toErr.Kind)
	}
	return ""
}

// IsNonRetryable reports whether the error is marked terminal independent of
// the retry policy: a NonRetryable ApplicationError or a NonDeterminismError.
func IsNonRetryable(err error) bool {
	var appErr *ApplicationError
	if errors.As(err, &appErr) && appErr.NonRetryable {
		return true
	}
	var ndErr *NonDeterminismError
	return errors.As(err, &ndErr)
}
