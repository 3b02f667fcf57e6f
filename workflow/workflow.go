// Package workflow defines workflow definitions, runs, the deterministic
// execution context, and the workflow store interface.
package workflow

// Definition is a typed workflow definition with a handler function.
// T is the input type (must be JSON-serializable for Run.Input storage).
//
// Handlers must be deterministic: all side effects go through the Context
// (activities, timers, signals, side-effect markers). Wall-clock reads,
// random sources, and map-iteration-order decisions belong in activities
// or behind wf.SideEffect.
type Definition[T any] struct {
	// Name is the unique identifier for this workflow type.
	Name string

	// Version tags the handler's logic. Runs are pinned to the version
	// they started with; new executions use the latest registered
	// version. Zero means version 1.
	Version int

	// Handler is the function that executes the workflow logic. Its
	// result is JSON-serialized into Run.Output.
	Handler func(wf *Context, input T) (any, error)
}

// NewWorkflow creates a typed workflow definition.
func NewWorkflow[T any](name string, handler func(wf *Context, input T) (any, error)) *Definition[T] {
	return &Definition[T]{
		Name:    name,
		Handler: handler,
	}
}

// WithVersion returns a copy of the definition tagged with the given
// version number.
func (d *Definition[T]) WithVersion(v int) *Definition[T] {
	dd := *d
	dd.Version = v
	return &dd
}
