// Package middleware wraps activity task execution with cross-cutting
// concerns: panic recovery, tenancy scope injection, structured logging,
// OpenTelemetry tracing and metrics.
package middleware

import (
	"context"

	"github.com/xraph/replay/activity"
)

// Handler runs the activity body at the end of the chain.
type Handler func(ctx context.Context) error

// Middleware sits around a Handler. It gets the context, the task in
// flight, and the next link; it must call next unless it is
// short-circuiting with an error.
type Middleware func(ctx context.Context, t *activity.Task, next Handler) error

// Chain folds the given middleware into one. The first element becomes
// the outermost wrapper, so Chain(logging, recover, scope) runs logging
// first and the handler last.
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, t *activity.Task, next Handler) error {
		// Wrap from the innermost link outward.
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) error {
				return mw(ctx, t, prev)
			}
		}
		return h(ctx)
	}
}
