// Package api exposes the Replay management surface over HTTP. It is a
// thin REST layer on top of the engine: execution lifecycle, schedules,
// dead letter queue, and aggregate statistics. Real-time streaming is
// the RWP server's job; this API is for dashboards, CLIs, and scripts.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/xraph/replay"
	"github.com/xraph/replay/engine"
)

// API wires the HTTP handlers for the Replay management surface.
type API struct {
	eng    *engine.Engine
	logger *slog.Logger
}

// Option configures an API.
type Option func(*API)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) { a.logger = logger }
}

// New creates an API from a Replay engine.
func New(eng *engine.Engine, opts ...Option) *API {
	a := &API{eng: eng, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Router returns the fully assembled chi router with all routes.
func (a *API) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", a.health)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/executions", func(r chi.Router) {
			r.Post("/", a.startExecution)
			r.Get("/", a.listExecutions)
			r.Route("/{executionID}", func(r chi.Router) {
				r.Get("/", a.getExecution)
				r.Get("/history", a.getHistory)
				r.Post("/signal", a.signalExecution)
				r.Post("/query", a.queryExecution)
				r.Post("/cancel", a.cancelExecution)
				r.Post("/pause", a.pauseExecution)
				r.Post("/resume", a.resumeExecution)
			})
		})

		r.Route("/schedules", func(r chi.Router) {
			r.Get("/", a.listSchedules)
			r.Route("/{scheduleID}", func(r chi.Router) {
				r.Get("/", a.getSchedule)
				r.Post("/enable", a.enableSchedule)
				r.Post("/disable", a.disableSchedule)
				r.Delete("/", a.deleteSchedule)
			})
		})

		r.Route("/dlq", func(r chi.Router) {
			r.Get("/", a.listDLQ)
			r.Get("/count", a.dlqCount)
			r.Post("/purge", a.purgeDLQ)
			r.Route("/{entryID}", func(r chi.Router) {
				r.Get("/", a.getDLQ)
				r.Post("/redrive", a.redriveDLQ)
			})
		})

		r.Get("/workflows", a.listWorkflows)
		r.Get("/activities", a.listActivities)
		r.Get("/stats", a.stats)
	})

	return r
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	if err := a.eng.Runtime().Store().Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unreachable: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ErrorResponse is the JSON body for error replies.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data) //nolint:errcheck // client gone is not actionable
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeStoreError maps well-known engine errors to HTTP status codes.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, replay.ErrExecutionNotFound),
		errors.Is(err, replay.ErrRunNotFound),
		errors.Is(err, replay.ErrScheduleNotFound),
		errors.Is(err, replay.ErrDLQNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, replay.ErrExecutionTerminal),
		errors.Is(err, replay.ErrInvalidState):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, replay.ErrScopeDenied):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// defaultLimit caps list sizes to keep responses bounded.
func defaultLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}
