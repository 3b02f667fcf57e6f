// Package observability provides an OpenTelemetry-based metrics hook for
// Replay. The MetricsHook implements lifecycle hook interfaces to record
// system-wide counters for execution, activity, timer, signal, and
// schedule events.
//
// For per-attempt tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
