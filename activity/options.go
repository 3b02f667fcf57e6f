package activity

import (
	"time"

	"github.com/xraph/replay/backoff"
)

// Options configures per-activity behavior: retry policy, task queue,
// and execution deadlines.
type Options struct {
	// RetryPolicy governs attempt delays and non-retryable classification.
	RetryPolicy backoff.Policy

	// TaskQueue is the queue this activity's tasks are scheduled on.
	TaskQueue string

	// StartToCloseTimeout bounds a single attempt from lease to result.
	// Zero means unlimited.
	StartToCloseTimeout time.Duration

	// HeartbeatTimeout is how long a running attempt may go without a
	// heartbeat before its lease is reaped. Zero defers to the pool's
	// stale-task threshold.
	HeartbeatTimeout time.Duration
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		RetryPolicy:         backoff.DefaultPolicy(),
		TaskQueue:           "default",
		StartToCloseTimeout: 5 * time.Minute,
	}
}

// Option is a functional option for configuring an activity definition.
type Option func(*Options)

// WithRetryPolicy sets the retry policy for the activity.
func WithRetryPolicy(p backoff.Policy) Option {
	return func(o *Options) {
		o.RetryPolicy = p
	}
}

// WithTaskQueue sets the task queue for the activity.
func WithTaskQueue(q string) Option {
	return func(o *Options) {
		o.TaskQueue = q
	}
}

// WithStartToCloseTimeout bounds a single attempt's execution time.
func WithStartToCloseTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.StartToCloseTimeout = d
	}
}

// WithHeartbeatTimeout sets the heartbeat lease for running attempts.
func WithHeartbeatTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.HeartbeatTimeout = d
	}
}
