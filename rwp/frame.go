// Package rwp implements the Replay Wire Protocol (RWP), a message-based
// protocol for client↔server communication. RWP is transported over
// WebSocket (primary) and HTTP (one-shot RPC).
package rwp

import (
	"encoding/json"
	"time"
)

// FrameType identifies the frame category.
type FrameType string

const (
	FrameRequest  FrameType = "request"
	FrameResponse FrameType = "response"
	FrameEvent    FrameType = "event"
	FrameErr      FrameType = "error"
	FramePing     FrameType = "ping"
	FramePong     FrameType = "pong"
)

// Frame is the RWP message envelope. Every message exchanged over
// the protocol is a Frame.
type Frame struct {
	// ID uniquely identifies this frame.
	ID string `json:"id" msgpack:"id"`

	// Type categorizes the frame.
	Type FrameType `json:"type" msgpack:"type"`

	// Method names the operation for request frames (e.g., "execution.start").
	Method string `json:"method,omitempty" msgpack:"method,omitempty"`

	// CorrelID links a response to its originating request.
	CorrelID string `json:"correl_id,omitempty" msgpack:"correl_id,omitempty"`

	// Token carries auth credentials (typically only on the auth frame).
	Token string `json:"token,omitempty" msgpack:"token,omitempty"`

	// AppID scopes the request to a tenant application.
	AppID string `json:"app_id,omitempty" msgpack:"app_id,omitempty"`

	// OrgID scopes the request to a tenant organization.
	OrgID string `json:"org_id,omitempty" msgpack:"org_id,omitempty"`

	// Data carries the method-specific payload.
	Data json.RawMessage `json:"data,omitempty" msgpack:"data,omitempty"`

	// Error carries error details for error frames.
	Error *ErrorDetail `json:"error,omitempty" msgpack:"error,omitempty"`

	// Channel identifies the subscription channel for event/subscribe frames.
	Channel string `json:"channel,omitempty" msgpack:"channel,omitempty"`

	// Credits replenishes flow-control credits (backpressure).
	Credits int `json:"credits,omitempty" msgpack:"credits,omitempty"`

	// Timestamp records when this frame was created.
	Timestamp time.Time `json:"ts" msgpack:"ts"`
}

// ErrorDetail describes an error in a response or error frame.
type ErrorDetail struct {
	Code    int    `json:"code" msgpack:"code"`
	Message string `json:"message" msgpack:"message"`
	Details string `json:"details,omitempty" msgpack:"details,omitempty"`
}

// ── Well-known methods ──────────────────────────────

const (
	// Auth methods.
	MethodAuth = "auth"

	// Execution methods.
	MethodExecutionStart   = "execution.start"
	MethodExecutionGet     = "execution.get"
	MethodExecutionList    = "execution.list"
	MethodExecutionSignal  = "execution.signal"
	MethodExecutionQuery   = "execution.query"
	MethodExecutionCancel  = "execution.cancel"
	MethodExecutionPause   = "execution.pause"
	MethodExecutionResume  = "execution.resume"
	MethodExecutionHistory = "execution.history"

	// Subscription methods.
	MethodSubscribe   = "subscribe"
	MethodUnsubscribe = "unsubscribe"

	// Admin methods.
	MethodScheduleList = "schedule.list"
	MethodDLQList      = "dlq.list"
	MethodDLQRedrive   = "dlq.redrive"
	MethodStats        = "stats"
)

// ── Well-known error codes ──────────────────────────

const (
	ErrCodeBadRequest     = 400
	ErrCodeUnauthorized   = 401
	ErrCodeForbidden      = 403
	ErrCodeNotFound       = 404
	ErrCodeMethodNotFound = 405
	ErrCodeConflict       = 409
	ErrCodeInternal       = 500
)

// ── Request/Response payloads ───────────────────────

// AuthRequest is sent by clients to authenticate.
type AuthRequest struct {
	Token  string `json:"token"`
	Format string `json:"format,omitempty"` // "json" (default) or "msgpack"
}

// AuthResponse is returned after successful authentication.
type AuthResponse struct {
	Format    string `json:"format"`
	SessionID string `json:"session_id"`
}

// ExecutionStartRequest starts a new workflow execution.
type ExecutionStartRequest struct {
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`

	// TaskQueue routes the execution's activities ("default" when empty).
	TaskQueue string `json:"task_queue,omitempty"`

	// ExecutionID pins the execution identity for idempotent starts.
	ExecutionID string `json:"execution_id,omitempty"`

	// ExecutionTimeoutMs bounds the whole execution lineage. Zero means
	// unbounded.
	ExecutionTimeoutMs int64 `json:"execution_timeout_ms,omitempty"`
}

// ExecutionStartResponse confirms an execution start.
type ExecutionStartResponse struct {
	ExecutionID string `json:"execution_id"`
	RunID       string `json:"run_id"`
	Name        string `json:"name"`
	State       string `json:"state"`
}

// ExecutionGetRequest retrieves an execution's latest run.
type ExecutionGetRequest struct {
	ExecutionID string `json:"execution_id"`
}

// ExecutionListRequest lists workflow runs.
type ExecutionListRequest struct {
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
	State  string `json:"state,omitempty"`
	Name   string `json:"name,omitempty"`
}

// ExecutionSignalRequest delivers a signal to a running execution.
type ExecutionSignalRequest struct {
	ExecutionID string          `json:"execution_id"`
	Name        string          `json:"name"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// ExecutionQueryRequest runs a read-only query handler against a run.
type ExecutionQueryRequest struct {
	ExecutionID string          `json:"execution_id"`
	Name        string          `json:"name"`
	Args        json.RawMessage `json:"args,omitempty"`
}

// ExecutionCancelRequest cancels an execution.
type ExecutionCancelRequest struct {
	ExecutionID string `json:"execution_id"`
	Reason      string `json:"reason,omitempty"`
}

// ExecutionPauseRequest pauses an execution.
type ExecutionPauseRequest struct {
	ExecutionID string `json:"execution_id"`
}

// ExecutionResumeRequest resumes a paused execution.
type ExecutionResumeRequest struct {
	ExecutionID string `json:"execution_id"`
}

// ExecutionHistoryRequest fetches the journal for an execution's latest
// run, or the whole continue-as-new chain.
type ExecutionHistoryRequest struct {
	ExecutionID string `json:"execution_id"`
	FullChain   bool   `json:"full_chain,omitempty"`
}

// SubscribeRequest subscribes to a topic channel.
type SubscribeRequest struct {
	Channel string `json:"channel"`
	Credits int    `json:"credits,omitempty"` // Initial credits (0 = use default)
}

// UnsubscribeRequest removes a subscription.
type UnsubscribeRequest struct {
	Channel string `json:"channel"`
}

// DLQListRequest lists dead letter queue entries.
type DLQListRequest struct {
	Limit     int    `json:"limit,omitempty"`
	Offset    int    `json:"offset,omitempty"`
	TaskQueue string `json:"task_queue,omitempty"`
}

// DLQRedriveRequest re-schedules a dead-lettered activity task.
type DLQRedriveRequest struct {
	EntryID string `json:"entry_id"`
}

// NewRequestFrame creates a new request frame.
func NewRequestFrame(id, method string, data any) (*Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Frame{
		ID:        id,
		Type:      FrameRequest,
		Method:    method,
		Data:      raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// NewResponseFrame creates a response to a request.
func NewResponseFrame(correlID string, data any) (*Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Frame{
		ID:        generateFrameID(),
		Type:      FrameResponse,
		CorrelID:  correlID,
		Data:      raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// NewErrorFrame creates an error response to a request.
func NewErrorFrame(correlID string, code int, message string) *Frame {
	return &Frame{
		ID:       generateFrameID(),
		Type:     FrameErr,
		CorrelID: correlID,
		Error: &ErrorDetail{
			Code:    code,
			Message: message,
		},
		Timestamp: time.Now().UTC(),
	}
}

// NewEventFrame creates an event frame for a subscription channel.
func NewEventFrame(channel string, data any) (*Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Frame{
		ID:        generateFrameID(),
		Type:      FrameEvent,
		Channel:   channel,
		Data:      raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// GenerateFrameID returns a new unique frame ID.
// Uses a simple timestamp + counter approach for performance.
func GenerateFrameID() string {
	return time.Now().UTC().Format("20060102150405.000000000")
}

// generateFrameID is an internal alias for backward compatibility.
func generateFrameID() string { return GenerateFrameID() }
