package middleware

import (
	"context"

	"github.com/xraph/replay/activity"
	"github.com/xraph/replay/scope"
)

// Scope returns middleware that restores multi-tenant scope from the
// task's ScopeAppID/ScopeOrgID fields into the context. This ensures
// handlers see the same scope as the original start caller.
func Scope() Middleware {
	return func(ctx context.Context, t *activity.Task, next Handler) error {
		ctx = scope.Restore(ctx, t.ScopeAppID, t.ScopeOrgID)
		return next(ctx)
	}
}
