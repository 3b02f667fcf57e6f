// Package replay provides a durable workflow orchestration runtime for Go.
// Workflow functions are ordinary Go code; every side effect they request is
// journaled into an append-only per-execution event history, and state is
// reconstructed after a crash by deterministically replaying that history.
//
// Replay is designed as a library, not a service. Import it, configure a
// store, register activities and workflows as ordinary Go functions, and
// start executions.
//
// # Quick Start
//
//	r, err := replay.New(
//	    replay.WithStore(pgStore),
//	    replay.WithConcurrency(20),
//	)
//
// # Architecture
//
// Replay follows a composable store pattern where each subsystem (workflow,
// history, activity, timer, signal, schedule, dlq, cluster) defines its own
// store interface. A single backend implements all of them.
//
// The engine owns the event history: workers execute activity handlers and
// report outcomes back, but only the engine appends events. Workflow code
// interacts with the world exclusively through workflow.Context, which is
// what makes deterministic replay possible.
//
// All entity IDs use TypeID: type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package replay
