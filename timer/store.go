package timer

import (
	"context"
	"time"

	"github.com/xraph/replay/id"
)

// Store defines the persistence contract for durable timers.
type Store interface {
	// CreateTimer persists a new pending timer.
	CreateTimer(ctx context.Context, t *Timer) error

	// GetTimer retrieves a timer by ID.
	GetTimer(ctx context.Context, timerID id.TimerID) (*Timer, error)

	// DueTimers returns pending timers with FireAt <= now, ordered by
	// FireAt ascending, up to limit (limit <= 0 means no limit).
	DueTimers(ctx context.Context, now time.Time, limit int) ([]*Timer, error)

	// CompleteTimer transitions a pending timer to fired. Completing a
	// timer that is already fired or cancelled is a no-op returning false.
	CompleteTimer(ctx context.Context, timerID id.TimerID) (bool, error)

	// CancelTimersForRun transitions all pending timers of a run to
	// cancelled.
	CancelTimersForRun(ctx context.Context, runID id.RunID) error

	// DeleteTimersForRun removes all timers belonging to a run.
	DeleteTimersForRun(ctx context.Context, runID id.RunID) error
}
