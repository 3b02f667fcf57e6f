package schedule

import (
	"time"

	"github.com/xraph/replay"
	"github.com/xraph/replay/id"
)

// Schedule is a recurring workflow start. Firing a schedule creates a new
// execution of Workflow with the stored Input.
type Schedule struct {
	replay.Entity

	ID          id.ScheduleID `json:"id"`
	Name        string        `json:"name"`
	Spec        string        `json:"spec"`
	Workflow    string        `json:"workflow"`
	TaskQueue   string        `json:"task_queue,omitempty"`
	Input       []byte        `json:"input,omitempty"`
	ScopeAppID  string        `json:"scope_app_id,omitempty"`
	ScopeOrgID  string        `json:"scope_org_id,omitempty"`
	LastFiredAt *time.Time    `json:"last_fired_at,omitempty"`
	NextFireAt  *time.Time    `json:"next_fire_at,omitempty"`
	LockedBy    string        `json:"locked_by,omitempty"`
	LockedUntil *time.Time    `json:"locked_until,omitempty"`
	Enabled     bool          `json:"enabled"`
}
