package backoff

import (
	"math"
	"slices"
	"time"

	"github.com/xraph/replay"
)

// Policy is the declarative retry policy attached to an activity definition.
// Unlike a Strategy, a Policy also decides whether an attempt should be
// retried at all: it bounds the attempt count and short-circuits on failure
// types declared non-retryable.
//
// The delay before attempt n+1 after n failures is
//
//	min(InitialInterval × BackoffCoefficient^(n−1), MaximumInterval)
//
// so attempt numbering is 1-based: the first retry waits InitialInterval.
type Policy struct {
	// InitialInterval is the delay before the first retry.
	InitialInterval time.Duration `json:"initial_interval"`

	// BackoffCoefficient is the multiplier applied per attempt. Values
	// at or below 1.0 give a constant delay.
	BackoffCoefficient float64 `json:"backoff_coefficient"`

	// MaximumInterval caps the computed delay. Zero means uncapped.
	MaximumInterval time.Duration `json:"maximum_interval"`

	// MaximumAttempts bounds total attempts including the first.
	// Zero or negative means unlimited.
	MaximumAttempts int `json:"maximum_attempts"`

	// NonRetryableErrorTypes lists ApplicationError types that fail the
	// activity immediately, regardless of remaining attempts.
	NonRetryableErrorTypes []string `json:"non_retryable_error_types,omitempty"`
}

// DefaultPolicy returns the retry policy applied when an activity definition
// does not set one: 1s initial, doubling, capped at 1m, unlimited attempts.
func DefaultPolicy() Policy {
	return Policy{
		InitialInterval:    1 * time.Second,
		BackoffCoefficient: 2.0,
		MaximumInterval:    1 * time.Minute,
	}
}

// Delay returns the wait before retry attempt n (1-indexed).
// Policy implements Strategy.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	initial := p.InitialInterval
	if initial <= 0 {
		initial = 1 * time.Second
	}
	coeff := p.BackoffCoefficient
	if coeff < 1.0 {
		coeff = 1.0
	}

	d := time.Duration(float64(initial) * math.Pow(coeff, float64(attempt-1)))
	if d < initial {
		// math.Pow overflow wraps negative for huge attempts.
		d = p.MaximumInterval
	}
	if p.MaximumInterval > 0 && d > p.MaximumInterval {
		d = p.MaximumInterval
	}
	return d
}

// ShouldRetry reports whether a failure on the given attempt (1-indexed)
// leaves the activity eligible for another attempt.
func (p Policy) ShouldRetry(err error, attempt int) bool {
	if replay.IsNonRetryable(err) {
		return false
	}
	if t := replay.ErrorType(err); t != "" && slices.Contains(p.NonRetryableErrorTypes, t) {
		return false
	}
	if p.MaximumAttempts > 0 && attempt >= p.MaximumAttempts {
		return false
	}
	return true
}

// Strategy adapts the policy's schedule for callers that only need delays.
func (p Policy) Strategy() Strategy { return p }

// Compile-time interface check.
var _ Strategy = Policy{}
