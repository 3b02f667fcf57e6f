package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// HandlerFunc is a type-erased activity handler: raw JSON in, raw JSON out.
// The typed Definition[T] is converted to a HandlerFunc at registration
// time by closing over JSON unmarshal + the typed handler.
type HandlerFunc func(ctx context.Context, input []byte) ([]byte, error)

// Registry maps activity names to type-erased handlers and the options
// the workflow scheduler needs (queue, retry policy, timeouts).
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	opts     map[string]Options
}

// NewRegistry creates an empty activity registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]HandlerFunc),
		opts:     make(map[string]Options),
	}
}

// RegisterDefinition registers a typed activity definition. The generic
// handler is wrapped in a closure that JSON-unmarshals the input into T
// before calling the typed handler and JSON-marshals the result after.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func RegisterDefinition[T any](r *Registry, def *Definition[T]) {
	handler := func(ctx context.Context, input []byte) ([]byte, error) {
		var t T
		if len(input) > 0 {
			if err := json.Unmarshal(input, &t); err != nil {
				return nil, fmt.Errorf("unmarshal input for activity %q: %w", def.Name, err)
			}
		}
		result, err := def.Handler(ctx, t)
		if err != nil {
			return nil, err
		}
		if result == nil {
			return nil, nil
		}
		data, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("marshal result for activity %q: %w", def.Name, err)
		}
		return data, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[def.Name] = handler
	r.opts[def.Name] = def.Opts
}

// Get returns the handler for the given activity name.
// Returns false if no handler is registered.
func (r *Registry) Get(name string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// GetOptions returns the registered options for the given activity name.
func (r *Registry) GetOptions(name string) (Options, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.opts[name]
	return o, ok
}

// Names returns all registered activity names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}
