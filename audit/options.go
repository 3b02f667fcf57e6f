package audit

import "log/slog"

// Option configures a Trail.
type Option func(*Trail)

// WithActions restricts the trail to emit only the listed actions.
// By default all actions are enabled. Unknown actions are silently ignored.
//
// Example:
//
//	audit.New(recorder,
//	    audit.WithActions(
//	        audit.ActionActivityFailed,
//	        audit.ActionActivityDLQ,
//	        audit.ActionExecutionFailed,
//	    ),
//	)
func WithActions(actions ...string) Option {
	return func(t *Trail) {
		t.enabled = make(map[string]bool, len(actions))
		for _, a := range actions {
			t.enabled[a] = true
		}
	}
}

// WithLogger sets a custom logger for the trail.
func WithLogger(l *slog.Logger) Option {
	return func(t *Trail) { t.logger = l }
}
