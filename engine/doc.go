// Package engine wires all Replay subsystems together and provides the
// primary application-level API for registering workflows and activities
// and operating executions.
//
// The engine package exists to break a fundamental import cycle: the root
// replay package defines Entity (imported by workflow, activity, schedule,
// etc.) and therefore cannot import those packages back. Engine sits above
// all subsystem packages and below the application layer.
//
// # Building an Engine
//
//	rt, err := replay.New(
//	    replay.WithStore(pgStore),
//	    replay.WithConcurrency(20),
//	)
//
//	eng, err := engine.Build(rt,
//	    engine.WithHook(myHook),
//	    engine.WithMiddleware(middleware.Logging(logger)),
//	    engine.WithQueueConfig(queue.Config{
//	        Name:      "payments",
//	        RateLimit: 100,
//	    }),
//	)
//
// # Registering Work
//
//	engine.RegisterActivity(eng, chargeCard)
//	engine.RegisterWorkflow(eng, processOrder)
//	engine.RegisterSchedule(ctx, eng, nightlyReconcile)
//
// # Operating Executions
//
//	run, err := engine.StartExecution(ctx, eng, "process_order", OrderInput{ID: "ord_123"})
//	err = eng.SignalExecution(ctx, run.ExecutionID, "payment_received", payload)
//	state, err := eng.QueryExecution(ctx, run.ExecutionID, "status", nil)
//	err = eng.CancelExecution(ctx, run.ExecutionID, "customer request")
//
// # Options
//
//   - [WithHook] — register a lifecycle hook
//   - [WithMiddleware] — add a middleware to the activity execution chain
//   - [WithDefaultRetryPolicy] — set the fallback activity retry policy
//   - [WithQueueConfig] — configure per-queue rate limits and concurrency
//   - [WithTracerProvider] — set the OpenTelemetry tracer provider
//   - [WithMeterProvider] — set the OpenTelemetry meter provider
package engine
