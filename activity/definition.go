package activity

import "context"

// Definition is a typed activity definition with a handler function.
// T is the input type (must be JSON-serializable). The handler's result
// is JSON-serialized into the run's history, so it must be serializable
// as well.
type Definition[T any] struct {
	// Name is the unique identifier for this activity type.
	Name string

	// Handler is the function that performs the side effect.
	Handler func(ctx context.Context, input T) (any, error)

	// Opts configures retry policy, task queue, and timeouts.
	Opts Options
}

// NewDefinition creates a typed activity definition.
func NewDefinition[T any](name string, handler func(ctx context.Context, input T) (any, error), opts ...Option) *Definition[T] {
	def := &Definition[T]{
		Name:    name,
		Handler: handler,
		Opts:    DefaultOptions(),
	}
	for _, opt := range opts {
		opt(&def.Opts)
	}
	return def
}
