package replay

import "time"

// Config holds configuration for the Runtime.
type Config struct {
	// Concurrency is the maximum number of activity tasks processed
	// concurrently by the worker pool.
	Concurrency int

	// TaskQueues is the list of task queues the worker pool will poll.
	TaskQueues []string

	// PollInterval is how often to poll for new activity tasks.
	PollInterval time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration

	// HeartbeatInterval is how often running activity tasks record
	// heartbeats.
	HeartbeatInterval time.Duration

	// StaleTaskThreshold is how long an activity task may go without a
	// heartbeat before its lease is reaped. Definitions with an explicit
	// HeartbeatTimeout override this per task.
	StaleTaskThreshold time.Duration

	// TimerResolution is how often the timer service scans for due timers.
	TimerResolution time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:        10,
		TaskQueues:         []string{"default"},
		PollInterval:       1 * time.Second,
		ShutdownTimeout:    30 * time.Second,
		HeartbeatInterval:  10 * time.Second,
		StaleTaskThreshold: 30 * time.Second,
		TimerResolution:    250 * time.Millisecond,
	}
}
