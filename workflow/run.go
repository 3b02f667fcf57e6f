package workflow

import (
	"time"

	"github.com/xraph/replay"
	"github.com/xraph/replay/id"
)

// RunState represents the lifecycle state of a workflow run.
type RunState string

const (
	// RunStateRunning means the run is open and making progress.
	RunStateRunning RunState = "running"
	// RunStatePaused means the run is open but the engine is not
	// advancing it. In-flight activities finish and record; the workflow
	// function stays parked until resume.
	RunStatePaused RunState = "paused"
	// RunStateCompleted means the workflow function returned a result.
	RunStateCompleted RunState = "completed"
	// RunStateFailed means the workflow failed terminally.
	RunStateFailed RunState = "failed"
	// RunStateCancelled means cancellation was observed at a suspension
	// point.
	RunStateCancelled RunState = "cancelled"
	// RunStateContinuedAsNew means the run closed by handing off to a
	// fresh run under the same execution ID.
	RunStateContinuedAsNew RunState = "continued_as_new"
	// RunStateTimedOut means the execution deadline lapsed before the
	// run finished.
	RunStateTimedOut RunState = "timed_out"
)

// Terminal reports whether the run state is final.
func (s RunState) Terminal() bool {
	switch s {
	case RunStateCompleted, RunStateFailed, RunStateCancelled,
		RunStateContinuedAsNew, RunStateTimedOut:
		return true
	default:
		return false
	}
}

// Open reports whether the run is still in progress (running or paused).
func (s RunState) Open() bool {
	return s == RunStateRunning || s == RunStatePaused
}

// Run represents a single run of an execution. An execution is a lineage of
// runs under one stable ExecutionID; continue-as-new closes one run and
// opens the next.
type Run struct {
	replay.Entity

	ID          id.RunID       `json:"id"`
	ExecutionID id.ExecutionID `json:"execution_id"`
	Name        string         `json:"name"`
	Version     int            `json:"version"`
	State       RunState       `json:"state"`
	TaskQueue   string         `json:"task_queue,omitempty"`
	Input       []byte         `json:"input,omitempty"`
	Output      []byte         `json:"output,omitempty"`
	Error       string         `json:"error,omitempty"`
	ErrorType   string         `json:"error_type,omitempty"`

	// ParentRunID links a child execution's first run to the parent run
	// that started it.
	ParentRunID id.RunID `json:"parent_run_id,omitempty"`

	// ContinuedFromRunID links a continue-as-new successor to its
	// predecessor.
	ContinuedFromRunID id.RunID `json:"continued_from_run_id,omitempty"`

	// Deadline is the absolute execution timeout, zero when unbounded.
	// It is inherited across continue-as-new.
	Deadline time.Time `json:"deadline,omitempty"`

	ScopeAppID  string     `json:"scope_app_id,omitempty"`
	ScopeOrgID  string     `json:"scope_org_id,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
