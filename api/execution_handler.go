package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/replay"
	"github.com/xraph/replay/engine"
	"github.com/xraph/replay/id"
	"github.com/xraph/replay/workflow"
)

// StartExecutionRequest is the body for POST /v1/executions.
type StartExecutionRequest struct {
	Name               string          `json:"name"`
	Input              json.RawMessage `json:"input,omitempty"`
	TaskQueue          string          `json:"task_queue,omitempty"`
	ExecutionID        string          `json:"execution_id,omitempty"`
	ExecutionTimeoutMs int64           `json:"execution_timeout_ms,omitempty"`
}

// SignalRequest is the body for POST /v1/executions/{executionID}/signal.
type SignalRequest struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// QueryRequest is the body for POST /v1/executions/{executionID}/query.
type QueryRequest struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

// CancelRequest is the body for POST /v1/executions/{executionID}/cancel.
type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (a *API) startExecution(w http.ResponseWriter, r *http.Request) {
	var req StartExecutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	opts := make([]engine.StartOption, 0, 3)
	if req.TaskQueue != "" {
		opts = append(opts, engine.WithStartTaskQueue(req.TaskQueue))
	}
	if req.ExecutionID != "" {
		execID, err := id.ParseExecutionID(req.ExecutionID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid execution ID: "+err.Error())
			return
		}
		opts = append(opts, engine.WithExecutionID(execID))
	}
	if req.ExecutionTimeoutMs > 0 {
		opts = append(opts, engine.WithExecutionTimeout(time.Duration(req.ExecutionTimeoutMs)*time.Millisecond))
	}

	run, err := a.eng.StartExecutionRaw(r.Context(), req.Name, req.Input, opts...)
	if err != nil {
		var started *replay.AlreadyStartedError
		switch {
		case errors.As(err, &started):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, replay.ErrWorkflowNotRegistered):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeStoreError(w, err)
		}
		return
	}

	writeJSON(w, http.StatusCreated, run)
}

func (a *API) listExecutions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	runs, err := a.eng.ListExecutions(r.Context(), workflow.ListOpts{
		Limit:  defaultLimit(limit),
		Offset: offset,
		State:  workflow.RunState(q.Get("state")),
		Name:   q.Get("name"),
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, runs)
}

func (a *API) getExecution(w http.ResponseWriter, r *http.Request) {
	execID, ok := a.executionID(w, r)
	if !ok {
		return
	}

	run, err := a.eng.GetExecution(r.Context(), execID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, run)
}

func (a *API) getHistory(w http.ResponseWriter, r *http.Request) {
	execID, ok := a.executionID(w, r)
	if !ok {
		return
	}

	var opts []engine.HistoryOption
	if r.URL.Query().Get("full_chain") == "true" {
		opts = append(opts, engine.WithFullChain())
	}

	events, err := a.eng.GetHistory(r.Context(), execID, opts...)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, events)
}

func (a *API) signalExecution(w http.ResponseWriter, r *http.Request) {
	execID, ok := a.executionID(w, r)
	if !ok {
		return
	}

	var req SignalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	if err := a.eng.SignalExecution(r.Context(), execID, req.Name, req.Payload); err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "delivered"})
}

func (a *API) queryExecution(w http.ResponseWriter, r *http.Request) {
	execID, ok := a.executionID(w, r)
	if !ok {
		return
	}

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := a.eng.QueryExecution(r.Context(), execID, req.Name, req.Args)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

func (a *API) cancelExecution(w http.ResponseWriter, r *http.Request) {
	execID, ok := a.executionID(w, r)
	if !ok {
		return
	}

	var req CancelRequest
	if r.Body != nil {
		// Body is optional for cancel.
		_ = json.NewDecoder(r.Body).Decode(&req) //nolint:errcheck // empty body is fine
	}

	if err := a.eng.CancelExecution(r.Context(), execID, req.Reason); err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (a *API) pauseExecution(w http.ResponseWriter, r *http.Request) {
	execID, ok := a.executionID(w, r)
	if !ok {
		return
	}

	if err := a.eng.PauseExecution(r.Context(), execID); err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (a *API) resumeExecution(w http.ResponseWriter, r *http.Request) {
	execID, ok := a.executionID(w, r)
	if !ok {
		return
	}

	if err := a.eng.ResumeExecution(r.Context(), execID); err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

func (a *API) listWorkflows(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"workflows": a.eng.Workflows().Names()})
}

func (a *API) listActivities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"activities": a.eng.Activities().Names()})
}

// executionID parses the {executionID} path parameter, writing a 400 on
// failure.
func (a *API) executionID(w http.ResponseWriter, r *http.Request) (id.ExecutionID, bool) {
	execID, err := id.ParseExecutionID(chi.URLParam(r, "executionID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid execution ID: "+err.Error())
		return id.Nil, false
	}
	return execID, true
}
