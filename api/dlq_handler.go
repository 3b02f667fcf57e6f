package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/replay/dlq"
	"github.com/xraph/replay/id"
)

// PurgeDLQResponse reports how many entries a purge removed.
type PurgeDLQResponse struct {
	Purged int64 `json:"purged"`
}

// DLQCountResponse carries the dead letter queue depth.
type DLQCountResponse struct {
	Count int64 `json:"count"`
}

func (a *API) listDLQ(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	entries, err := a.eng.DLQService().DLQStore().ListDLQ(r.Context(), dlq.ListOpts{
		Limit:     defaultLimit(limit),
		Offset:    offset,
		TaskQueue: q.Get("task_queue"),
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

func (a *API) getDLQ(w http.ResponseWriter, r *http.Request) {
	entryID, err := id.ParseDLQID(chi.URLParam(r, "entryID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid DLQ entry ID: "+err.Error())
		return
	}

	entry, getErr := a.eng.DLQService().DLQStore().GetDLQ(r.Context(), entryID)
	if getErr != nil {
		writeStoreError(w, getErr)
		return
	}

	writeJSON(w, http.StatusOK, entry)
}

func (a *API) redriveDLQ(w http.ResponseWriter, r *http.Request) {
	entryID, err := id.ParseDLQID(chi.URLParam(r, "entryID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid DLQ entry ID: "+err.Error())
		return
	}

	task, redriveErr := a.eng.DLQService().Redrive(r.Context(), entryID)
	if redriveErr != nil {
		writeStoreError(w, redriveErr)
		return
	}

	writeJSON(w, http.StatusCreated, task)
}

func (a *API) purgeDLQ(w http.ResponseWriter, r *http.Request) {
	// Purge entries older than 30 days.
	before := time.Now().UTC().Add(-30 * 24 * time.Hour)

	count, err := a.eng.DLQService().DLQStore().PurgeDLQ(r.Context(), before)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, PurgeDLQResponse{Purged: count})
}

func (a *API) dlqCount(w http.ResponseWriter, r *http.Request) {
	count, err := a.eng.DLQService().DLQStore().CountDLQ(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, DLQCountResponse{Count: count})
}
