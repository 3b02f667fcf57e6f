package replay

import "errors"

var (
	// Store errors.
	ErrNoStore         = errors.New("replay: no store configured")
	ErrStoreClosed     = errors.New("replay: store closed")
	ErrMigrationFailed = errors.New("replay: migration failed")

	// Not found errors.
	ErrExecutionNotFound = errors.New("replay: execution not found")
	ErrRunNotFound       = errors.New("replay: run not found")
	ErrTaskNotFound      = errors.New("replay: activity task not found")
	ErrTimerNotFound     = errors.New("replay: timer not found")
	ErrSignalNotFound    = errors.New("replay: no buffered signal")
	ErrEventNotFound     = errors.New("replay: event not found")
	ErrScheduleNotFound  = errors.New("replay: schedule entry not found")
	ErrDLQNotFound       = errors.New("replay: dlq entry not found")
	ErrWorkerNotFound    = errors.New("replay: worker not found")

	// Conflict errors.
	ErrHistoryConflict   = errors.New("replay: history sequence conflict")
	ErrDuplicateSchedule = errors.New("replay: duplicate schedule entry")
	ErrDuplicateRun      = errors.New("replay: run already exists")
	ErrDuplicateTask     = errors.New("replay: activity task already exists")

	// Registration errors.
	ErrWorkflowNotRegistered = errors.New("replay: workflow not registered")
	ErrActivityNotRegistered = errors.New("replay: activity not registered")
	ErrAlreadyRegistered     = errors.New("replay: already registered")

	// State errors.
	ErrInvalidState      = errors.New("replay: invalid state transition")
	ErrExecutionTerminal = errors.New("replay: execution already terminal")
	ErrExecutionPaused   = errors.New("replay: execution is paused")
	ErrRetriesExhausted  = errors.New("replay: retry attempts exhausted")
	ErrScopeDenied       = errors.New("replay: caller scope does not match execution scope")

	// Cluster errors.
	ErrLeadershipLost = errors.New("replay: leadership lost")
	ErrNotLeader      = errors.New("replay: not the leader")
)
