package audit

import (
	"time"

	"github.com/xraph/replay/id"
)

// Entry is a single immutable audit trail record. Entries are emitted
// by the [Trail] hook for every lifecycle transition and persisted
// through a [Recorder].
type Entry struct {
	ID id.AuditID `json:"id"`

	// What happened
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	// Details
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`

	// Principal scope attribution.
	ScopeAppID string `json:"scope_app_id,omitempty"`
	ScopeOrgID string `json:"scope_org_id,omitempty"`

	RecordedAt time.Time `json:"recorded_at"`
}

// Audit entry actions. Each constant corresponds to one lifecycle hook
// and becomes the Action field of the entry.
const (
	ActionExecutionStarted   = "execution.started"
	ActionExecutionCompleted = "execution.completed"
	ActionExecutionFailed    = "execution.failed"
	ActionExecutionCancelled = "execution.cancelled"
	ActionExecutionContinued = "execution.continued_as_new"
	ActionActivityScheduled  = "activity.scheduled"
	ActionActivityStarted    = "activity.started"
	ActionActivityCompleted  = "activity.completed"
	ActionActivityFailed     = "activity.failed"
	ActionActivityRetrying   = "activity.retrying"
	ActionActivityDLQ        = "activity.dlq"
	ActionTimerFired         = "timer.fired"
	ActionSignalReceived     = "signal.received"
	ActionScheduleFired      = "schedule.fired"
)

// Audit entry categories group related actions.
const (
	CategoryExecution = "replay.execution"
	CategoryActivity  = "replay.activity"
	CategoryTimer     = "replay.timer"
	CategorySignal    = "replay.signal"
	CategorySchedule  = "replay.schedule"
)

// Resource types used as the Resource field in audit entries.
const (
	ResourceRun      = "workflow_run"
	ResourceActivity = "activity_task"
	ResourceTimer    = "timer"
	ResourceSignal   = "signal"
	ResourceSchedule = "schedule"
)

// Severity levels.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// AllActions returns every action the trail can emit.
func AllActions() []string {
	return []string{
		ActionExecutionStarted,
		ActionExecutionCompleted,
		ActionExecutionFailed,
		ActionExecutionCancelled,
		ActionExecutionContinued,
		ActionActivityScheduled,
		ActionActivityStarted,
		ActionActivityCompleted,
		ActionActivityFailed,
		ActionActivityRetrying,
		ActionActivityDLQ,
		ActionTimerFired,
		ActionSignalReceived,
		ActionScheduleFired,
	}
}
