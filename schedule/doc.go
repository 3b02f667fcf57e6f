// Package schedule provides distributed cron-style scheduling of workflow
// executions with leader election and per-tenant support.
//
// Schedules are stored in the database and fired only by the cluster
// leader. This guarantees at-most-once firing even when multiple runtime
// instances are running.
//
// # Schedule
//
// A [Schedule] describes a recurring workflow start:
//   - Spec: standard cron expression (e.g., "0 9 * * 1-5") or a
//     descriptor like "@every 30s"
//   - Workflow: the registered workflow definition to start when fired
//   - TaskQueue: target queue for the execution's activities
//   - Input: static JSON input passed to every triggered execution
//   - ScopeAppID / ScopeOrgID: tenant scoping
//   - Enabled: whether the schedule fires
//   - LockedBy / LockedUntil: distributed lock fields (managed internally)
//
// # Registering a Schedule
//
// Use engine.RegisterSchedule to add a schedule at startup:
//
//	engine.RegisterSchedule(ctx, eng, "monthly-billing", "0 0 1 * *",
//	    BillingCycle, BillingInput{Plan: "pro"})
//
// # Scheduler
//
// The [Scheduler] evaluates due schedules on every tick, acquires a
// distributed lock on each, starts the corresponding workflow execution,
// and updates LastFiredAt and NextFireAt. The hook.ScheduleFired lifecycle
// hook fires after each start.
package schedule
