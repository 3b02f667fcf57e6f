package workflow

import (
	"context"

	"github.com/xraph/replay/id"
)

// ListOpts controls pagination for run list queries.
type ListOpts struct {
	// Limit is the maximum number of runs to return. Zero means no limit.
	Limit int
	// Offset is the number of runs to skip.
	Offset int
	// State filters by run state. Empty means all states.
	State RunState
	// Name filters by workflow name. Empty means all workflows.
	Name string
}

// Store defines the persistence contract for runs and execution lineage.
//
// The lineage index is implicit: every Run carries its ExecutionID, and
// LatestRun resolves an ExecutionID to its most recent run. Continue-as-new
// appends runs to the lineage; client operations address the ExecutionID.
type Store interface {
	// CreateRun persists a new run.
	CreateRun(ctx context.Context, run *Run) error

	// GetRun retrieves a run by ID.
	GetRun(ctx context.Context, runID id.RunID) (*Run, error)

	// UpdateRun persists changes to an existing run.
	UpdateRun(ctx context.Context, run *Run) error

	// LatestRun returns the most recent run of the execution lineage,
	// or replay.ErrExecutionNotFound when the lineage is unknown.
	LatestRun(ctx context.Context, executionID id.ExecutionID) (*Run, error)

	// RunsForExecution returns the full lineage of the execution in
	// start order (oldest first).
	RunsForExecution(ctx context.Context, executionID id.ExecutionID) ([]*Run, error)

	// ListRuns returns runs matching the given options.
	ListRuns(ctx context.Context, opts ListOpts) ([]*Run, error)

	// ListOpenRuns returns all runs whose state is running or paused.
	// Used by crash recovery to rebuild in-memory state by replay.
	ListOpenRuns(ctx context.Context) ([]*Run, error)

	// ListChildRuns returns all child runs started by a parent run.
	ListChildRuns(ctx context.Context, parentRunID id.RunID) ([]*Run, error)

	// DeleteRun removes a run record. History and timers are deleted
	// through their own stores.
	DeleteRun(ctx context.Context, runID id.RunID) error
}
