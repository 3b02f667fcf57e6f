package api

import (
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/replay/workflow"
)

// RunCounts groups workflow run totals by state.
type RunCounts struct {
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	Paused    int `json:"paused"`
}

// StatsResponse is the aggregate statistics payload.
type StatsResponse struct {
	Runs       RunCounts `json:"runs"`
	DLQCount   int64     `json:"dlq_count"`
	Workflows  int       `json:"workflows"`
	Activities int       `json:"activities"`
}

func (a *API) stats(w http.ResponseWriter, r *http.Request) {
	states := []workflow.RunState{
		workflow.RunStateRunning, workflow.RunStateCompleted,
		workflow.RunStateFailed, workflow.RunStateCancelled,
		workflow.RunStatePaused,
	}
	counts := make([]int, len(states))
	var dlqCount int64

	g, ctx := errgroup.WithContext(r.Context())
	for i, state := range states {
		g.Go(func() error {
			runs, err := a.eng.ListExecutions(ctx, workflow.ListOpts{State: state})
			if err != nil {
				return err
			}
			counts[i] = len(runs)
			return nil
		})
	}
	g.Go(func() error {
		n, err := a.eng.DLQService().DLQStore().CountDLQ(ctx)
		if err != nil {
			return err
		}
		dlqCount = n
		return nil
	})
	if err := g.Wait(); err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, StatsResponse{
		Runs: RunCounts{
			Running:   counts[0],
			Completed: counts[1],
			Failed:    counts[2],
			Cancelled: counts[3],
			Paused:    counts[4],
		},
		DLQCount:   dlqCount,
		Workflows:  len(a.eng.Workflows().Names()),
		Activities: len(a.eng.Activities().Names()),
	})
}
