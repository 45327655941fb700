package api

import (
	"context"
	"net/http"

	"github.com/arelis/hub"
	"github.com/arelis/hub/event"
	"github.com/arelis/hub/store"
)

// StatsResponse is the response for GET /stats.
type StatsResponse struct {
	Pending    int64 `json:"pending"`
	InProgress int64 `json:"in_progress"`
	Processed  int64 `json:"processed"`
	Failed     int64 `json:"failed"`
	RetryQueue int64 `json:"retry_queue"`
}

func (a *Handler) getStats(w http.ResponseWriter, r *http.Request) {
	resp, err := collectStats(r.Context(), a.hub.Store())
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func collectStats(ctx context.Context, s store.Store) (*StatsResponse, error) {
	var resp StatsResponse
	counts := []struct {
		status event.Status
		dst    *int64
	}{
		{event.StatusPending, &resp.Pending},
		{event.StatusInProgress, &resp.InProgress},
		{event.StatusProcessed, &resp.Processed},
		{event.StatusFailed, &resp.Failed},
	}
	for _, c := range counts {
		n, err := s.CountByStatus(ctx, c.status)
		if err != nil {
			return nil, hub.StoreError(err, "api: count events")
		}
		*c.dst = n
	}

	retries, err := s.CountRetries(ctx)
	if err != nil {
		return nil, hub.StoreError(err, "api: count retries")
	}
	resp.RetryQueue = retries

	return &resp, nil
}
