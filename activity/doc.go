// Package activity defines the activity task entity, typed definitions,
// and store interface.
//
// # Activity Task
//
// A [Task] is one scheduled invocation of an activity on behalf of a
// workflow run. It embeds [replay.Entity] for timestamps, carries a typed
// input (JSON), and progresses through a state machine:
//
//	scheduled → running → completed
//	scheduled → running → retrying → running → ...
//	scheduled → running → failed
//	scheduled → cancelled
//
// Fields of note:
//   - TaskQueue: which queue the task belongs to (default: "default")
//   - RetryPolicy: the backoff schedule and non-retryable classification
//   - Attempt: how many attempts have started (1-based once running)
//   - RunAt: earliest time the task may be dequeued (set by retry delays)
//   - ScheduledSeq: the history sequence of the ActivityScheduled event
//
// Tasks never write history themselves. Workers lease them, run the
// handler, and report the outcome; the engine appends the matching
// ActivityCompleted or ActivityFailed event.
//
// # Defining an Activity
//
// Use [Definition] with a typed handler. Input is JSON-serialized when the
// workflow schedules the call and deserialized before the handler runs:
//
//	var ChargeAccount = activity.NewDefinition("charge_account",
//	    func(ctx context.Context, input ChargeInput) (any, error) {
//	        return gateway.Charge(ctx, input.AccountID, input.Amount)
//	    },
//	    activity.WithRetryPolicy(backoff.Policy{
//	        InitialInterval:        time.Second,
//	        BackoffCoefficient:     2.0,
//	        MaximumInterval:        10 * time.Second,
//	        MaximumAttempts:        3,
//	        NonRetryableErrorTypes: []string{"card_declined"},
//	    }),
//	)
//
// # Registry
//
// [Registry] maps activity names to type-erased [HandlerFunc] values.
// Register definitions at startup via [RegisterDefinition]:
//
//	activity.RegisterDefinition(registry, ChargeAccount)
//	activity.RegisterDefinition(registry, SendInvoice)
//
// The engine package provides higher-level engine.RegisterActivity
// wrappers.
package activity
