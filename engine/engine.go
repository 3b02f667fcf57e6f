// Package engine wires all Replay subsystems together: the event-sourced
// execution core, the activity worker pool, the timer service, the
// schedule scheduler, and the hook registry.
//
// This package exists to break the import cycle: the root replay package
// defines Entity (imported by workflow, activity, etc.) and so cannot
// import those packages back. The engine package sits above all subsystem
// packages and below the application layer.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/replay"
	"github.com/xraph/replay/activity"
	"github.com/xraph/replay/backoff"
	"github.com/xraph/replay/cluster"
	"github.com/xraph/replay/dlq"
	"github.com/xraph/replay/history"
	"github.com/xraph/replay/hook"
	"github.com/xraph/replay/id"
	mw "github.com/xraph/replay/middleware"
	"github.com/xraph/replay/observability"
	"github.com/xraph/replay/queue"
	"github.com/xraph/replay/schedule"
	"github.com/xraph/replay/scope"
	"github.com/xraph/replay/signal"
	"github.com/xraph/replay/timer"
	"github.com/xraph/replay/worker"
	"github.com/xraph/replay/workflow"
)

// Engine is the execution core: it implements workflow.Scheduler for live
// commands, worker.Reporter for activity outcomes, and timer.Firer for due
// timers, and it owns the in-memory sessions of all open runs.
// Use Build() to create one from a Runtime.
type Engine struct {
	rt     *replay.Runtime
	logger *slog.Logger

	hooks      *hook.Registry
	activities *activity.Registry
	workflows  *workflow.Registry

	runStore      workflow.Store
	historyStore  history.Store
	taskStore     activity.Store
	timerStore    timer.Store
	signalStore   signal.Store
	scheduleStore schedule.Store
	clusterStore  cluster.Store

	dlqService *dlq.Service
	pool       *worker.Pool
	timers     *timer.Service
	scheduler  *schedule.Scheduler
	replayer   *workflow.Replayer

	queueConfigs []queue.Config
	queueManager *queue.Manager
	mws          []mw.Middleware
	defaultRetry *backoff.Policy

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	// sessions holds one entry per open run, keyed by RunID string.
	mu       sync.Mutex
	sessions map[string]*session

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithHook registers a lifecycle hook with the engine.
func WithHook(h hook.Hook) Option {
	return func(eng *Engine) {
		eng.hooks.Register(h)
	}
}

// WithMiddleware appends middleware to the activity execution chain, after
// the default stack.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithDefaultRetryPolicy sets the retry policy applied to activities whose
// definition does not carry one.
func WithDefaultRetryPolicy(p backoff.Policy) Option {
	return func(eng *Engine) {
		eng.defaultRetry = &p
	}
}

// WithQueueConfig registers queue-level rate limiting and concurrency
// configurations. Queues not listed have no limits.
func WithQueueConfig(configs ...queue.Config) Option {
	return func(eng *Engine) {
		eng.queueConfigs = append(eng.queueConfigs, configs...)
	}
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// When set, the tracing middleware uses this provider instead of the
// global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider for the engine.
// When set, both the metrics middleware and the observability hook use
// this provider instead of the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// Build creates an Engine from a Runtime. The Runtime's store must
// implement every subsystem store interface; store.Store does.
func Build(rt *replay.Runtime, opts ...Option) (*Engine, error) {
	logger := rt.Logger()
	store := rt.Store()

	if store == nil {
		return nil, replay.ErrNoStore
	}

	ws, ok := store.(workflow.Store)
	if !ok {
		return nil, fmt.Errorf("replay: store does not implement workflow.Store")
	}
	hs, ok := store.(history.Store)
	if !ok {
		return nil, fmt.Errorf("replay: store does not implement history.Store")
	}
	as, ok := store.(activity.Store)
	if !ok {
		return nil, fmt.Errorf("replay: store does not implement activity.Store")
	}
	ts, ok := store.(timer.Store)
	if !ok {
		return nil, fmt.Errorf("replay: store does not implement timer.Store")
	}
	sigs, ok := store.(signal.Store)
	if !ok {
		return nil, fmt.Errorf("replay: store does not implement signal.Store")
	}
	ss, ok := store.(schedule.Store)
	if !ok {
		return nil, fmt.Errorf("replay: store does not implement schedule.Store")
	}
	ds, ok := store.(dlq.Store)
	if !ok {
		return nil, fmt.Errorf("replay: store does not implement dlq.Store")
	}
	cls, ok := store.(cluster.Store)
	if !ok {
		return nil, fmt.Errorf("replay: store does not implement cluster.Store")
	}

	eng := &Engine{
		rt:            rt,
		logger:        logger,
		hooks:         hook.NewRegistry(logger),
		activities:    activity.NewRegistry(),
		workflows:     workflow.NewRegistry(),
		runStore:      ws,
		historyStore:  hs,
		taskStore:     as,
		timerStore:    ts,
		signalStore:   sigs,
		scheduleStore: ss,
		clusterStore:  cls,
		sessions:      make(map[string]*session),
		stopCh:        make(chan struct{}),
	}

	for _, opt := range opts {
		opt(eng)
	}

	eng.dlqService = dlq.NewService(ds, as)
	eng.replayer = workflow.NewReplayer(eng.workflows, logger)

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracer := eng.tracerProvider.Tracer("github.com/xraph/replay")
		tracingMw = mw.TracingWithTracer(tracer)
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter("github.com/xraph/replay")
		metricsMw = mw.MetricsWithMeter(meter)
	} else {
		metricsMw = mw.Metrics()
	}

	// Register the observability metrics hook.
	var obsHook *observability.MetricsHook
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter("github.com/xraph/replay/observability")
		obsHook = observability.NewMetricsHookWithMeter(meter)
	} else {
		obsHook = observability.NewMetricsHook()
	}
	eng.hooks.Register(obsHook)

	// Default middleware stack:
	// recover → tracing → metrics → logging → scope → timeout.
	defaultMws := []mw.Middleware{
		mw.Recover(logger),
		tracingMw,
		metricsMw,
		mw.Logging(logger),
		mw.Scope(),
		mw.Timeout(logger),
	}
	allMws := make([]mw.Middleware, 0, len(defaultMws)+len(eng.mws))
	allMws = append(allMws, defaultMws...)
	allMws = append(allMws, eng.mws...)

	config := rt.Config()
	executor := worker.NewExecutor(eng.activities, eng.hooks, as, eng.dlqService, eng, logger, allMws...)

	poolOpts := []worker.PoolOption{
		worker.WithPoolConcurrency(config.Concurrency),
		worker.WithPoolQueues(config.TaskQueues),
		worker.WithPollInterval(config.PollInterval),
		worker.WithHeartbeatInterval(config.HeartbeatInterval),
		worker.WithStaleTaskThreshold(config.StaleTaskThreshold),
	}

	if len(eng.queueConfigs) > 0 {
		eng.queueManager = queue.NewManager(eng.queueConfigs...)
		poolOpts = append(poolOpts, worker.WithQueueManager(eng.queueManager))
	}

	eng.pool = worker.NewPool(as, executor, eng.hooks, logger, poolOpts...)

	eng.timers = timer.NewService(ts, eng,
		timer.WithResolution(config.TimerResolution),
		timer.WithLogger(logger),
	)

	// The scheduler starts executions through the same path as clients.
	startFn := func(ctx context.Context, workflowName string, input []byte, taskQueue string) (id.ExecutionID, error) {
		var startOpts []StartOption
		if taskQueue != "" {
			startOpts = append(startOpts, WithStartTaskQueue(taskQueue))
		}
		run, err := eng.StartExecutionRaw(ctx, workflowName, input, startOpts...)
		if err != nil {
			return id.Nil, err
		}
		return run.ExecutionID, nil
	}
	eng.scheduler = schedule.NewScheduler(ss, cls, startFn, eng.hooks, eng.pool.WorkerID(), logger)

	// Register this worker in the cluster store.
	hostname, hostnameErr := os.Hostname()
	if hostnameErr != nil {
		hostname = "unknown"
	}
	w := &cluster.Worker{
		ID:          eng.pool.WorkerID(),
		Hostname:    hostname,
		Queues:      config.TaskQueues,
		Concurrency: config.Concurrency,
		State:       cluster.WorkerActive,
		LastSeen:    time.Now().UTC(),
		CreatedAt:   time.Now().UTC(),
	}
	if regErr := cls.RegisterWorker(context.Background(), w); regErr != nil {
		logger.Warn("failed to register worker in cluster store", slog.String("error", regErr.Error()))
	}

	rt.SetEngine(eng)
	rt.SetHooks(eng.hooks)

	return eng, nil
}

// Start resumes open runs by replay, then starts the timer service, the
// schedule scheduler, and the worker pool.
func (eng *Engine) Start(ctx context.Context) error {
	if resumeErr := eng.resumeOpenRuns(ctx); resumeErr != nil {
		eng.logger.Warn("failed to resume open runs",
			slog.String("error", resumeErr.Error()),
		)
	}

	eng.timers.Start(ctx)

	eng.wg.Add(1)
	go eng.deadlineLoop()

	if err := eng.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	return eng.pool.Start(ctx)
}

// Stop gracefully shuts down the engine: the pool drains in-flight tasks,
// then the scheduler and timer service stop. Parked workflow goroutines
// stay parked; their runs resume by replay on the next start.
func (eng *Engine) Stop(ctx context.Context) error {
	if err := eng.clusterStore.DeregisterWorker(ctx, eng.pool.WorkerID()); err != nil {
		eng.logger.Warn("failed to deregister worker", slog.String("error", err.Error()))
	}

	if err := eng.scheduler.Stop(ctx); err != nil {
		eng.logger.Error("scheduler stop error", slog.String("error", err.Error()))
	}

	eng.timers.Stop()

	close(eng.stopCh)
	eng.wg.Wait()

	return eng.pool.Stop(ctx)
}

// Hooks returns the hook registry.
func (eng *Engine) Hooks() *hook.Registry { return eng.hooks }

// Activities returns the activity registry.
func (eng *Engine) Activities() *activity.Registry { return eng.activities }

// Workflows returns the workflow registry.
func (eng *Engine) Workflows() *workflow.Registry { return eng.workflows }

// Runtime returns the underlying Runtime.
func (eng *Engine) Runtime() *replay.Runtime { return eng.rt }

// DLQService returns the engine's DLQ service for redrive and inspection.
func (eng *Engine) DLQService() *dlq.Service { return eng.dlqService }

// ScheduleStore returns the schedule store.
func (eng *Engine) ScheduleStore() schedule.Store { return eng.scheduleStore }

// Scheduler returns the schedule scheduler.
func (eng *Engine) Scheduler() *schedule.Scheduler { return eng.scheduler }

// QueueManager returns the queue manager, or nil if no queue configs were
// provided.
func (eng *Engine) QueueManager() *queue.Manager { return eng.queueManager }

// RegisterActivity registers a typed activity definition with the engine.
func RegisterActivity[T any](eng *Engine, def *activity.Definition[T]) {
	if eng.defaultRetry != nil && def.Opts.RetryPolicy.MaximumAttempts == 0 && def.Opts.RetryPolicy.InitialInterval == 0 {
		def.Opts.RetryPolicy = *eng.defaultRetry
	}
	activity.RegisterDefinition(eng.activities, def)
}

// RegisterWorkflow registers a typed workflow definition with the engine.
func RegisterWorkflow[T any](eng *Engine, def *workflow.Definition[T]) {
	workflow.RegisterDefinition(eng.workflows, def)
}

// StartExecution starts a workflow execution with a typed input.
func StartExecution[T any](ctx context.Context, eng *Engine, name string, input T, opts ...StartOption) (*workflow.Run, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("marshal input for workflow %q: %w", name, err)
	}
	return eng.StartExecutionRaw(ctx, name, data, opts...)
}

// RegisterSchedule registers a typed schedule definition with the engine.
// It validates the cron spec, computes the initial NextFireAt, and
// persists the entry. Re-registration of the same name is idempotent.
func RegisterSchedule[T any](ctx context.Context, eng *Engine, def *schedule.Definition[T]) error {
	parsed, err := schedule.ParseSpec(def.Spec)
	if err != nil {
		return fmt.Errorf("invalid schedule spec %q: %w", def.Spec, err)
	}

	input, err := json.Marshal(def.Input)
	if err != nil {
		return fmt.Errorf("marshal schedule input: %w", err)
	}

	now := time.Now().UTC()
	next := parsed.Next(now)
	appID, orgID := scope.Capture(ctx)

	entry := &schedule.Schedule{
		Entity:     replay.NewEntity(),
		ID:         id.NewScheduleID(),
		Name:       def.Name,
		Spec:       def.Spec,
		Workflow:   def.Workflow,
		TaskQueue:  def.TaskQueue,
		Input:      input,
		ScopeAppID: appID,
		ScopeOrgID: orgID,
		NextFireAt: &next,
		Enabled:    true,
	}

	if err := eng.scheduleStore.CreateSchedule(ctx, entry); err != nil {
		if errors.Is(err, replay.ErrDuplicateSchedule) {
			return nil
		}
		return fmt.Errorf("register schedule %q: %w", def.Name, err)
	}

	eng.logger.Info("schedule registered",
		slog.String("name", def.Name),
		slog.String("spec", def.Spec),
		slog.String("workflow", def.Workflow),
		slog.Time("next_fire_at", next),
	)

	return nil
}
