package replay

import (
	"context"
	"log/slog"
	"time"
)

// Option configures a Runtime.
type Option func(*Runtime) error

// Storer is the minimal store interface held by the Runtime.
// It covers lifecycle operations only. The full composite interface
// (store.Store) is used in subsystem layers that don't create import
// cycles. Implementations satisfy store.Store which embeds all
// subsystem stores.
type Storer interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// coordinator is an internal interface for engine lifecycle.
type coordinator interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// hookEmitter is an internal interface for hook lifecycle events.
type hookEmitter interface {
	EmitShutdown(ctx context.Context)
}

// Runtime is the central coordinator for durable workflow execution:
// the event-sourced engine, the activity worker pool, the timer service,
// scheduled starts, and distributed coordination.
//
// Create one with New() and functional options. The Runtime holds
// references to subsystem components via internal interfaces to avoid
// import cycles. Use engine.Build to wire everything together.
type Runtime struct {
	config Config
	logger *slog.Logger
	store  Storer
	hooks  hookEmitter
	engine coordinator

	// started tracks whether Start has been called.
	started bool
}

// New creates a new Runtime with the given options.
func New(opts ...Option) (*Runtime, error) {
	r := &Runtime{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Logger returns the runtime's logger.
func (r *Runtime) Logger() *slog.Logger { return r.logger }

// Store returns the runtime's store.
func (r *Runtime) Store() Storer { return r.store }

// Config returns a copy of the runtime's configuration.
func (r *Runtime) Config() Config { return r.config }

// SetEngine sets the engine coordinator (called by the engine package).
func (r *Runtime) SetEngine(e coordinator) { r.engine = e }

// SetHooks sets the hook emitter (called by the engine package).
func (r *Runtime) SetHooks(h hookEmitter) { r.hooks = h }

// Start resumes open runs and begins processing activity tasks and timers.
func (r *Runtime) Start(ctx context.Context) error {
	if r.engine == nil {
		return ErrNoStore
	}
	if err := r.engine.Start(ctx); err != nil {
		return err
	}
	r.started = true
	return nil
}

// Stop gracefully shuts down the runtime.
func (r *Runtime) Stop(ctx context.Context) error {
	if r.engine != nil && r.started {
		if err := r.engine.Stop(ctx); err != nil {
			r.logger.Error("engine stop error", "error", err)
		}
	}
	if r.hooks != nil {
		r.hooks.EmitShutdown(ctx)
	}
	if r.store != nil {
		return r.store.Close()
	}
	return nil
}

// WithConcurrency sets the maximum number of concurrent activity tasks.
func WithConcurrency(n int) Option {
	return func(r *Runtime) error {
		r.config.Concurrency = n
		return nil
	}
}

// WithTaskQueues sets the task queues the worker pool will poll.
func WithTaskQueues(queues []string) Option {
	return func(r *Runtime) error {
		r.config.TaskQueues = queues
		return nil
	}
}

// WithLogger sets the structured logger for the runtime.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runtime) error {
		r.logger = l
		return nil
	}
}

// WithStore sets the persistence backend for the runtime.
// The store must implement Storer at minimum; typically it will be a
// store.Store which embeds all subsystem store interfaces.
func WithStore(s Storer) Option {
	return func(r *Runtime) error {
		r.store = s
		return nil
	}
}

// WithPollInterval sets how often workers poll for new activity tasks.
func WithPollInterval(d time.Duration) Option {
	return func(r *Runtime) error {
		r.config.PollInterval = d
		return nil
	}
}

// WithShutdownTimeout bounds graceful shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(r *Runtime) error {
		r.config.ShutdownTimeout = d
		return nil
	}
}

// WithHeartbeatInterval sets how often running tasks record heartbeats.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(r *Runtime) error {
		r.config.HeartbeatInterval = d
		return nil
	}
}

// WithStaleTaskThreshold sets the default stale-lease threshold for
// running activity tasks.
func WithStaleTaskThreshold(d time.Duration) Option {
	return func(r *Runtime) error {
		r.config.StaleTaskThreshold = d
		return nil
	}
}

// WithTimerResolution sets how often the timer service scans for due
// timers.
func WithTimerResolution(d time.Duration) Option {
	return func(r *Runtime) error {
		r.config.TimerResolution = d
		return nil
	}
}
