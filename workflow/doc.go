// Package workflow defines typed workflow definitions, the deterministic
// workflow context, and the run store interface.
//
// Workflows are durable functions. Instead of checkpointing heap state, the
// runtime records every command a workflow issues (schedule an activity, start
// a timer, wait for a signal) as an event in an append-only history. After a
// crash the handler is re-executed from the top; commands whose results are
// already in history return those recorded results immediately, and execution
// fast-forwards to the first command with no recorded outcome.
//
// # Defining a Workflow
//
//	var ProcessOrder = workflow.NewWorkflow("process_order",
//	    func(wf *workflow.Context, input OrderInput) (any, error) {
//	        var charge ChargeResult
//	        if err := wf.ExecuteActivity("charge_card", input.Payment, &charge); err != nil {
//	            return nil, err
//	        }
//
//	        if err := wf.Sleep(24 * time.Hour); err != nil {
//	            return nil, err
//	        }
//
//	        var receipt Receipt
//	        err := wf.ExecuteActivity("send_receipt", charge, &receipt)
//	        return receipt, err
//	    },
//	)
//
// # Determinism
//
// Handler code must be deterministic: same history in, same commands out. Use
// [Context.Now] instead of time.Now, [Context.SideEffect] for random values or
// other one-shot reads, and activities for all I/O. On replay the runtime
// compares each issued command against the recorded one and aborts the run
// with a [replay.NonDeterminismError] if they diverge.
//
// # Waiting
//
// A workflow can park until an external signal arrives, optionally racing a
// timer:
//
//	sig := wf.WaitSignalAsync("payment.confirmed")
//	tmr := wf.SleepAsync(24 * time.Hour)
//	if wf.WaitAny(sig, tmr) == sig {
//	    ...
//	}
//
// # State Machine
//
// A [Run] moves through these states:
//
//	running → completed
//	running → failed
//	running → cancelled
//	running → continued_as_new
//	running → timed_out
//	running ⇄ paused
//
// # Key Types
//
//   - [Definition] — typed workflow descriptor with Name, Version, and Handler
//   - [Context] — the deterministic API handed to handlers
//   - [Future] — a pending command result, resolved in history order
//   - [Run] — a single workflow execution attempt record
//   - [Registry] — maps workflow name and version to type-erased handlers
package workflow
