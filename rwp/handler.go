package rwp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/xraph/replay"
	"github.com/xraph/replay/dlq"
	"github.com/xraph/replay/engine"
	"github.com/xraph/replay/id"
	"github.com/xraph/replay/scope"
	"github.com/xraph/replay/stream"
	"github.com/xraph/replay/workflow"
)

// Handler routes RWP frames to engine operations.
type Handler struct {
	eng    *engine.Engine
	broker *stream.Broker
	conns  *ConnectionManager
	logger *slog.Logger
}

// NewHandler creates a new RWP method handler.
func NewHandler(eng *engine.Engine, broker *stream.Broker, logger *slog.Logger) *Handler {
	return &Handler{eng: eng, broker: broker, logger: logger}
}

// SetConnections attaches the server's connection manager so the stats
// method can report the live connection count.
func (h *Handler) SetConnections(cm *ConnectionManager) {
	h.conns = cm
}

// Handle processes a single RWP request frame and returns a response.
func (h *Handler) Handle(ctx context.Context, frame *Frame, conn *Connection) *Frame {
	// Inject scope from connection identity.
	if conn.Identity != nil {
		ctx = scope.Restore(ctx, conn.Identity.AppID, conn.Identity.OrgID)
	}

	switch frame.Method {
	case MethodExecutionStart:
		return h.handleExecutionStart(ctx, frame)
	case MethodExecutionGet:
		return h.handleExecutionGet(ctx, frame)
	case MethodExecutionList:
		return h.handleExecutionList(ctx, frame)
	case MethodExecutionSignal:
		return h.handleExecutionSignal(ctx, frame)
	case MethodExecutionQuery:
		return h.handleExecutionQuery(ctx, frame)
	case MethodExecutionCancel:
		return h.handleExecutionCancel(ctx, frame)
	case MethodExecutionPause:
		return h.handleExecutionPause(ctx, frame)
	case MethodExecutionResume:
		return h.handleExecutionResume(ctx, frame)
	case MethodExecutionHistory:
		return h.handleExecutionHistory(ctx, frame)
	case MethodSubscribe:
		return h.handleSubscribe(frame)
	case MethodUnsubscribe:
		return h.handleUnsubscribe(frame)
	case MethodScheduleList:
		return h.handleScheduleList(ctx, frame)
	case MethodDLQList:
		return h.handleDLQList(ctx, frame)
	case MethodDLQRedrive:
		return h.handleDLQRedrive(ctx, frame)
	case MethodStats:
		return h.handleStats(ctx, frame)
	default:
		return NewErrorFrame(frame.ID, ErrCodeMethodNotFound, "unknown method: "+frame.Method)
	}
}

// mustResponseFrame creates a response frame, returning an error frame on marshal failure.
func mustResponseFrame(frameID string, data any) *Frame {
	resp, err := NewResponseFrame(frameID, data)
	if err != nil {
		return NewErrorFrame(frameID, ErrCodeInternal, "marshal response: "+err.Error())
	}
	return resp
}

// errorCode maps well-known engine errors to protocol error codes.
func errorCode(err error) int {
	switch {
	case errors.Is(err, replay.ErrExecutionNotFound), errors.Is(err, replay.ErrRunNotFound):
		return ErrCodeNotFound
	default:
		return ErrCodeInternal
	}
}

func (h *Handler) handleExecutionStart(ctx context.Context, frame *Frame) *Frame {
	var req ExecutionStartRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid request: "+err.Error())
	}

	opts := make([]engine.StartOption, 0, 3)
	if req.TaskQueue != "" {
		opts = append(opts, engine.WithStartTaskQueue(req.TaskQueue))
	}
	if req.ExecutionID != "" {
		execID, err := id.ParseExecutionID(req.ExecutionID)
		if err != nil {
			return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid execution ID: "+err.Error())
		}
		opts = append(opts, engine.WithExecutionID(execID))
	}
	if req.ExecutionTimeoutMs > 0 {
		opts = append(opts, engine.WithExecutionTimeout(time.Duration(req.ExecutionTimeoutMs)*time.Millisecond))
	}

	run, err := h.eng.StartExecutionRaw(ctx, req.Name, req.Input, opts...)
	if err != nil {
		var started *replay.AlreadyStartedError
		if errors.As(err, &started) {
			return NewErrorFrame(frame.ID, ErrCodeConflict, "execution already started: "+err.Error())
		}
		return NewErrorFrame(frame.ID, ErrCodeInternal, "execution start failed: "+err.Error())
	}

	return mustResponseFrame(frame.ID, ExecutionStartResponse{
		ExecutionID: run.ExecutionID.String(),
		RunID:       run.ID.String(),
		Name:        run.Name,
		State:       string(run.State),
	})
}

func (h *Handler) handleExecutionGet(ctx context.Context, frame *Frame) *Frame {
	var req ExecutionGetRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid request: "+err.Error())
	}

	execID, err := id.ParseExecutionID(req.ExecutionID)
	if err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid execution ID: "+err.Error())
	}

	run, err := h.eng.GetExecution(ctx, execID)
	if err != nil {
		return NewErrorFrame(frame.ID, errorCode(err), "execution not found: "+err.Error())
	}

	return mustResponseFrame(frame.ID, run)
}

func (h *Handler) handleExecutionList(ctx context.Context, frame *Frame) *Frame {
	var req ExecutionListRequest
	if len(frame.Data) > 0 {
		if err := json.Unmarshal(frame.Data, &req); err != nil {
			return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid request: "+err.Error())
		}
	}

	runs, err := h.eng.ListExecutions(ctx, workflow.ListOpts{
		Limit:  req.Limit,
		Offset: req.Offset,
		State:  workflow.RunState(req.State),
		Name:   req.Name,
	})
	if err != nil {
		return NewErrorFrame(frame.ID, ErrCodeInternal, "list failed: "+err.Error())
	}

	return mustResponseFrame(frame.ID, runs)
}

func (h *Handler) handleExecutionSignal(ctx context.Context, frame *Frame) *Frame {
	var req ExecutionSignalRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid request: "+err.Error())
	}

	execID, err := id.ParseExecutionID(req.ExecutionID)
	if err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid execution ID: "+err.Error())
	}

	if err := h.eng.SignalExecution(ctx, execID, req.Name, req.Payload); err != nil {
		return NewErrorFrame(frame.ID, errorCode(err), "signal failed: "+err.Error())
	}

	return mustResponseFrame(frame.ID, map[string]string{"status": "delivered"})
}

func (h *Handler) handleExecutionQuery(ctx context.Context, frame *Frame) *Frame {
	var req ExecutionQueryRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid request: "+err.Error())
	}

	execID, err := id.ParseExecutionID(req.ExecutionID)
	if err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid execution ID: "+err.Error())
	}

	result, err := h.eng.QueryExecution(ctx, execID, req.Name, req.Args)
	if err != nil {
		return NewErrorFrame(frame.ID, errorCode(err), "query failed: "+err.Error())
	}

	return mustResponseFrame(frame.ID, map[string]any{"result": result})
}

func (h *Handler) handleExecutionCancel(ctx context.Context, frame *Frame) *Frame {
	var req ExecutionCancelRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid request: "+err.Error())
	}

	execID, err := id.ParseExecutionID(req.ExecutionID)
	if err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid execution ID: "+err.Error())
	}

	if err := h.eng.CancelExecution(ctx, execID, req.Reason); err != nil {
		return NewErrorFrame(frame.ID, errorCode(err), "cancel failed: "+err.Error())
	}

	return mustResponseFrame(frame.ID, map[string]string{"status": "cancelled"})
}

func (h *Handler) handleExecutionPause(ctx context.Context, frame *Frame) *Frame {
	var req ExecutionPauseRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid request: "+err.Error())
	}

	execID, err := id.ParseExecutionID(req.ExecutionID)
	if err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid execution ID: "+err.Error())
	}

	if err := h.eng.PauseExecution(ctx, execID); err != nil {
		return NewErrorFrame(frame.ID, errorCode(err), "pause failed: "+err.Error())
	}

	return mustResponseFrame(frame.ID, map[string]string{"status": "paused"})
}

func (h *Handler) handleExecutionResume(ctx context.Context, frame *Frame) *Frame {
	var req ExecutionResumeRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid request: "+err.Error())
	}

	execID, err := id.ParseExecutionID(req.ExecutionID)
	if err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid execution ID: "+err.Error())
	}

	if err := h.eng.ResumeExecution(ctx, execID); err != nil {
		return NewErrorFrame(frame.ID, errorCode(err), "resume failed: "+err.Error())
	}

	return mustResponseFrame(frame.ID, map[string]string{"status": "resumed"})
}

func (h *Handler) handleExecutionHistory(ctx context.Context, frame *Frame) *Frame {
	var req ExecutionHistoryRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid request: "+err.Error())
	}

	execID, err := id.ParseExecutionID(req.ExecutionID)
	if err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid execution ID: "+err.Error())
	}

	var opts []engine.HistoryOption
	if req.FullChain {
		opts = append(opts, engine.WithFullChain())
	}

	events, err := h.eng.GetHistory(ctx, execID, opts...)
	if err != nil {
		return NewErrorFrame(frame.ID, errorCode(err), "history failed: "+err.Error())
	}

	return mustResponseFrame(frame.ID, events)
}

func (h *Handler) handleSubscribe(frame *Frame) *Frame {
	var req SubscribeRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid request: "+err.Error())
	}

	if err := stream.ValidateTopic(req.Channel); err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, err.Error())
	}

	// Actual subscription is done in the server loop after response is sent.
	return mustResponseFrame(frame.ID, map[string]string{
		"channel": req.Channel,
		"status":  "subscribed",
	})
}

func (h *Handler) handleUnsubscribe(frame *Frame) *Frame {
	var req UnsubscribeRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid request: "+err.Error())
	}

	// Actual unsubscription is done in the server loop after response is sent.
	return mustResponseFrame(frame.ID, map[string]string{
		"channel": req.Channel,
		"status":  "unsubscribed",
	})
}

func (h *Handler) handleScheduleList(ctx context.Context, frame *Frame) *Frame {
	schedules, err := h.eng.ScheduleStore().ListSchedules(ctx)
	if err != nil {
		return NewErrorFrame(frame.ID, ErrCodeInternal, "list schedules failed: "+err.Error())
	}
	return mustResponseFrame(frame.ID, schedules)
}

func (h *Handler) handleDLQList(ctx context.Context, frame *Frame) *Frame {
	var req DLQListRequest
	if len(frame.Data) > 0 {
		if err := json.Unmarshal(frame.Data, &req); err != nil {
			return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid request: "+err.Error())
		}
	}

	entries, err := h.eng.DLQService().DLQStore().ListDLQ(ctx, dlq.ListOpts{
		Limit:     req.Limit,
		Offset:    req.Offset,
		TaskQueue: req.TaskQueue,
	})
	if err != nil {
		return NewErrorFrame(frame.ID, ErrCodeInternal, "list DLQ failed: "+err.Error())
	}

	return mustResponseFrame(frame.ID, entries)
}

func (h *Handler) handleDLQRedrive(ctx context.Context, frame *Frame) *Frame {
	var req DLQRedriveRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid request: "+err.Error())
	}

	entryID, err := id.ParseDLQID(req.EntryID)
	if err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid entry ID: "+err.Error())
	}

	task, err := h.eng.DLQService().Redrive(ctx, entryID)
	if err != nil {
		return NewErrorFrame(frame.ID, ErrCodeInternal, "redrive failed: "+err.Error())
	}

	return mustResponseFrame(frame.ID, map[string]string{
		"status":  "redriven",
		"task_id": task.ID.String(),
	})
}

func (h *Handler) handleStats(ctx context.Context, frame *Frame) *Frame {
	stats := map[string]any{
		"broker": h.broker.Stats(),
	}
	if h.conns != nil {
		stats["connections"] = h.conns.Count()
	}
	if count, err := h.eng.DLQService().DLQStore().CountDLQ(ctx); err == nil {
		stats["dlq_depth"] = count
	}
	return mustResponseFrame(frame.ID, stats)
}
