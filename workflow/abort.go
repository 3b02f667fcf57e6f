package workflow

// abortKind classifies the control-flow panics used to unwind a workflow
// goroutine out of arbitrarily deep user code.
type abortKind int

const (
	// abortCancelled unwinds when cancellation is observed at a
	// suspension point.
	abortCancelled abortKind = iota
	// abortContinueAsNew unwinds a ContinueAsNew call.
	abortContinueAsNew
	// abortNonDeterminism unwinds when recorded history contradicts what
	// the handler did.
	abortNonDeterminism
	// abortInternal unwinds on infrastructure failure (store errors while
	// journaling a command). The run stays open and is recovered by
	// replay on the next engine start.
	abortInternal
)

// abortError is the panic payload for engine-controlled unwinding. It is
// never visible to user code: the driver recovers it and reports a typed
// Outcome.
type abortError struct {
	kind abortKind
	err  error
	// input carries the next run's input for abortContinueAsNew.
	input []byte
}
