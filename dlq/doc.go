// Package dlq provides the dead letter queue for activity tasks that have
// exhausted their retry budget. It supports inspection, redrive, and
// purging.
//
// When an activity attempt fails terminally (the retry policy is exhausted
// or the error is non-retryable), the executor calls [Service.Push] to
// record it in the DLQ alongside journaling the failure into the run's
// history. The original input, error message, and attempt counts are
// preserved for debugging.
//
// # Entry
//
// An [Entry] captures:
//   - TaskID / Activity / TaskQueue: original task identity
//   - RunID / ExecutionID: the workflow run the task belonged to
//   - Input: the raw JSON input at time of failure
//   - Error / ErrorType: the final error
//   - Attempts / MaxAttempts: exhausted retry budget
//   - FailedAt: when the terminal failure occurred
//   - RedrivenAt: set when the entry is redriven (nil if not yet)
//
// # Redrive
//
// Redriving an entry re-schedules the original activity as a fresh task
// with a zeroed attempt counter. If the owning run is still parked on that
// activity, a successful redrive completes it; completion delivery is
// idempotent per scheduled sequence number. Redrive sets RedrivenAt on the
// DLQ entry.
//
// # Admin API
//
// The DLQ is exposed via the HTTP admin API:
//   - GET  /v1/dlq                  — list entries
//   - GET  /v1/dlq/:entryId         — get a single entry
//   - POST /v1/dlq/:entryId/redrive — redrive one entry
//   - POST /v1/dlq/purge            — purge old entries
//   - GET  /v1/dlq/count            — entry count
package dlq
