package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/replay/rwp"
)

// ExecutionResult contains the result of starting an execution.
type ExecutionResult struct {
	ExecutionID string `json:"execution_id"`
	RunID       string `json:"run_id"`
	Name        string `json:"name"`
	State       string `json:"state"`
}

// StartExecution starts a workflow execution on the remote Replay server.
func (c *Client) StartExecution(ctx context.Context, name string, input any, opts ...StartOption) (*ExecutionResult, error) {
	raw, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("marshal input: %w", err)
	}

	req := rwp.ExecutionStartRequest{
		Name:  name,
		Input: raw,
	}
	for _, opt := range opts {
		opt(&req)
	}

	resp, reqErr := c.request(ctx, rwp.MethodExecutionStart, req)
	if reqErr != nil {
		return nil, reqErr
	}

	var result ExecutionResult
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &result, nil
}

// GetExecution retrieves the current run of an execution.
func (c *Client) GetExecution(ctx context.Context, executionID string) (json.RawMessage, error) {
	resp, err := c.request(ctx, rwp.MethodExecutionGet, rwp.ExecutionGetRequest{
		ExecutionID: executionID,
	})
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// ListExecutions lists workflow runs, newest first.
func (c *Client) ListExecutions(ctx context.Context, opts rwp.ExecutionListRequest) (json.RawMessage, error) {
	resp, err := c.request(ctx, rwp.MethodExecutionList, opts)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Signal delivers a named signal to a running execution.
func (c *Client) Signal(ctx context.Context, executionID, name string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal signal payload: %w", err)
	}

	_, reqErr := c.request(ctx, rwp.MethodExecutionSignal, rwp.ExecutionSignalRequest{
		ExecutionID: executionID,
		Name:        name,
		Payload:     raw,
	})
	return reqErr
}

// Query invokes a read-only query handler on a running execution.
func (c *Client) Query(ctx context.Context, executionID, name string, args any) (json.RawMessage, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshal query args: %w", err)
	}

	resp, reqErr := c.request(ctx, rwp.MethodExecutionQuery, rwp.ExecutionQueryRequest{
		ExecutionID: executionID,
		Name:        name,
		Args:        raw,
	})
	if reqErr != nil {
		return nil, reqErr
	}
	return resp.Data, nil
}

// Cancel requests cancellation of a running execution.
func (c *Client) Cancel(ctx context.Context, executionID, reason string) error {
	_, err := c.request(ctx, rwp.MethodExecutionCancel, rwp.ExecutionCancelRequest{
		ExecutionID: executionID,
		Reason:      reason,
	})
	return err
}

// Pause suspends activity dispatch for a running execution.
func (c *Client) Pause(ctx context.Context, executionID string) error {
	_, err := c.request(ctx, rwp.MethodExecutionPause, rwp.ExecutionPauseRequest{
		ExecutionID: executionID,
	})
	return err
}

// Resume lifts a pause and lets the execution progress again.
func (c *Client) Resume(ctx context.Context, executionID string) error {
	_, err := c.request(ctx, rwp.MethodExecutionResume, rwp.ExecutionResumeRequest{
		ExecutionID: executionID,
	})
	return err
}

// GetHistory retrieves the journaled history of an execution. With
// fullChain set, history of continued-as-new predecessors is included.
func (c *Client) GetHistory(ctx context.Context, executionID string, fullChain bool) (json.RawMessage, error) {
	resp, err := c.request(ctx, rwp.MethodExecutionHistory, rwp.ExecutionHistoryRequest{
		ExecutionID: executionID,
		FullChain:   fullChain,
	})
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// ListSchedules lists registered cron schedules.
func (c *Client) ListSchedules(ctx context.Context) (json.RawMessage, error) {
	resp, err := c.request(ctx, rwp.MethodScheduleList, nil)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// ListDLQ lists dead letter queue entries.
func (c *Client) ListDLQ(ctx context.Context, opts rwp.DLQListRequest) (json.RawMessage, error) {
	resp, err := c.request(ctx, rwp.MethodDLQList, opts)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// RedriveDLQ requeues a dead letter entry for another attempt.
func (c *Client) RedriveDLQ(ctx context.Context, entryID string) error {
	_, err := c.request(ctx, rwp.MethodDLQRedrive, rwp.DLQRedriveRequest{
		EntryID: entryID,
	})
	return err
}

// StartOption configures an execution start request.
type StartOption func(*rwp.ExecutionStartRequest)

// WithTaskQueue routes the execution's activities to a named task queue.
func WithTaskQueue(queue string) StartOption {
	return func(r *rwp.ExecutionStartRequest) { r.TaskQueue = queue }
}

// WithExecutionID pins the execution ID for idempotent starts.
func WithExecutionID(executionID string) StartOption {
	return func(r *rwp.ExecutionStartRequest) { r.ExecutionID = executionID }
}

// WithExecutionTimeout bounds the execution's total duration.
func WithExecutionTimeout(d time.Duration) StartOption {
	return func(r *rwp.ExecutionStartRequest) { r.ExecutionTimeoutMs = d.Milliseconds() }
}
