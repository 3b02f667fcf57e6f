package dlq

import (
	"time"

	"github.com/xraph/replay/id"
)

// Entry represents an activity task that has exhausted its retry budget
// and been moved to the dead letter queue for inspection or redrive.
type Entry struct {
	ID          id.DLQID       `json:"id"`
	TaskID      id.ActivityID  `json:"task_id"`
	RunID       id.RunID       `json:"run_id"`
	ExecutionID id.ExecutionID `json:"execution_id"`
	Activity    string         `json:"activity"`
	TaskQueue   string         `json:"task_queue"`
	Input       []byte         `json:"input,omitempty"`
	Error       string         `json:"error"`
	ErrorType   string         `json:"error_type,omitempty"`
	Attempts    int            `json:"attempts"`
	MaxAttempts int            `json:"max_attempts"`
	ScopeAppID  string         `json:"scope_app_id,omitempty"`
	ScopeOrgID  string         `json:"scope_org_id,omitempty"`
	FailedAt    time.Time      `json:"failed_at"`
	RedrivenAt  *time.Time     `json:"redriven_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}
