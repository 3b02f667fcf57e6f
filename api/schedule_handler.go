package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/replay/id"
)

func (a *API) listSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := a.eng.ScheduleStore().ListSchedules(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, schedules)
}

func (a *API) getSchedule(w http.ResponseWriter, r *http.Request) {
	schedID, ok := a.scheduleID(w, r)
	if !ok {
		return
	}

	sc, err := a.eng.ScheduleStore().GetSchedule(r.Context(), schedID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (a *API) enableSchedule(w http.ResponseWriter, r *http.Request) {
	a.setScheduleEnabled(w, r, true)
}

func (a *API) disableSchedule(w http.ResponseWriter, r *http.Request) {
	a.setScheduleEnabled(w, r, false)
}

func (a *API) setScheduleEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	schedID, ok := a.scheduleID(w, r)
	if !ok {
		return
	}

	sc, err := a.eng.ScheduleStore().GetSchedule(r.Context(), schedID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	sc.Enabled = enabled
	if updateErr := a.eng.ScheduleStore().UpdateSchedule(r.Context(), sc); updateErr != nil {
		writeStoreError(w, updateErr)
		return
	}

	writeJSON(w, http.StatusOK, sc)
}

func (a *API) deleteSchedule(w http.ResponseWriter, r *http.Request) {
	schedID, ok := a.scheduleID(w, r)
	if !ok {
		return
	}

	if err := a.eng.ScheduleStore().DeleteSchedule(r.Context(), schedID); err != nil {
		writeStoreError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) scheduleID(w http.ResponseWriter, r *http.Request) (id.ScheduleID, bool) {
	schedID, err := id.ParseScheduleID(chi.URLParam(r, "scheduleID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid schedule ID: "+err.Error())
		return id.Nil, false
	}
	return schedID, true
}
