// Package audit records an immutable trail of engine lifecycle
// transitions.
//
// The [Trail] type registers as a lifecycle hook: every execution,
// activity, timer, signal, and schedule transition emits a structured
// [Entry] through the [Recorder] interface. Entries carry severity
// (info for normal operations, warning for retries and cancellations,
// critical for terminal failures), outcome, principal scope
// attribution, and rich metadata (workflow name, task queue, elapsed
// time, errors).
//
// # Usage
//
//	log := audit.NewLog()
//	trail := audit.New(log)
//	eng, err := engine.Build(rt, engine.WithHook(trail))
//
// # Selective filtering
//
//	audit.New(recorder,
//	    audit.WithActions(
//	        audit.ActionActivityFailed,
//	        audit.ActionActivityDLQ,
//	        audit.ActionExecutionFailed,
//	    ),
//	)
package audit
