package schedule

// Definition is a typed schedule definition. T is the workflow input type
// (must be JSON-serializable).
type Definition[T any] struct {
	// Name is the unique identifier for this schedule.
	Name string

	// Spec is a cron expression (e.g., "*/5 * * * *" or "@every 30s").
	Spec string

	// Workflow is the name of the workflow to start on each fire.
	Workflow string

	// Input is the input to start the workflow with.
	Input T

	// TaskQueue overrides the default task queue (optional).
	TaskQueue string
}
