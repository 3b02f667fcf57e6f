package workflow

import (
	"fmt"

	"github.com/xraph/replay/id"
)

// ActivityError is what workflow code observes when an activity exhausts
// its retry policy or fails non-retryably. Unwrap exposes the final
// attempt's error for errors.As matching against *replay.ApplicationError.
type ActivityError struct {
	Activity string
	Attempts int
	Err      error
}

func (e *ActivityError) Error() string {
	return fmt.Sprintf("activity %q failed after %d attempt(s): %v", e.Activity, e.Attempts, e.Err)
}

func (e *ActivityError) Unwrap() error { return e.Err }

// ChildError is what a parent observes when a child execution ends in
// failure or cancellation.
type ChildError struct {
	ExecutionID id.ExecutionID
	Workflow    string
	Cancelled   bool
	Err         error
}

func (e *ChildError) Error() string {
	if e.Cancelled {
		return fmt.Sprintf("child execution %s (%s) cancelled", e.ExecutionID, e.Workflow)
	}
	return fmt.Sprintf("child execution %s (%s) failed: %v", e.ExecutionID, e.Workflow, e.Err)
}

func (e *ChildError) Unwrap() error { return e.Err }
