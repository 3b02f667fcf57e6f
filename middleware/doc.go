// Package middleware provides the cross-cutting execution chain wrapped
// around every activity attempt: panic recovery, OpenTelemetry tracing
// and metrics, structured logging, tenant scope restoration, and
// start-to-close deadline enforcement.
//
// The engine installs a default chain; applications append their own
// middleware through engine options. Middleware run outermost-first in
// the order given to Chain.
package middleware
