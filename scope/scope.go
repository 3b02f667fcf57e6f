// Package scope carries multi-tenant caller identity through contexts.
// An execution records the scope it was started under; client operations
// verify the caller's scope against it, and activity handlers observe the
// originating scope restored into their context.
package scope

import "context"

type ctxKey struct{}

// Scope identifies the tenant a call acts on behalf of. Empty fields mean
// unrestricted.
type Scope struct {
	AppID string
	OrgID string
}

// IsZero reports whether the scope carries no tenant identity.
func (s Scope) IsZero() bool { return s.AppID == "" && s.OrgID == "" }

// With returns a context carrying the given scope.
func With(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// From extracts the scope from the context, if any.
func From(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(ctxKey{}).(Scope)
	return s, ok
}

// Capture extracts the scope IDs from the context for persistence.
// Returns empty strings when no scope is present.
func Capture(ctx context.Context) (appID, orgID string) {
	s, ok := From(ctx)
	if !ok {
		return "", ""
	}
	return s.AppID, s.OrgID
}

// Restore reconstructs the scope in the context from persisted IDs.
// A no-op when both IDs are empty.
func Restore(ctx context.Context, appID, orgID string) context.Context {
	if appID == "" && orgID == "" {
		return ctx
	}
	return With(ctx, Scope{AppID: appID, OrgID: orgID})
}

// Allowed reports whether a caller scope may act on a record stamped with
// the given IDs. An empty recorded scope is unrestricted; otherwise the
// caller's IDs must match the non-empty recorded fields.
func Allowed(ctx context.Context, recordedAppID, recordedOrgID string) bool {
	if recordedAppID == "" && recordedOrgID == "" {
		return true
	}
	callerApp, callerOrg := Capture(ctx)
	if recordedAppID != "" && callerApp != recordedAppID {
		return false
	}
	if recordedOrgID != "" && callerOrg != recordedOrgID {
		return false
	}
	return true
}
