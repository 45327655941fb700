package api

import (
	"net/http"

	"github.com/arelis/hub"
	"github.com/arelis/hub/event"
)

type createEventRequest struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

func (a *Handler) createEvent(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	evt, err := a.hub.Publish(r.Context(), req.Type, req.Data)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, evt)
}

func (a *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	status, err := eventStatus(queryParam(r, "status"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	opts := event.ListOpts{
		Offset: queryInt(r, "offset", 0),
		Limit:  queryInt(r, "limit", 50),
		Type:   queryParam(r, "type"),
		Status: status,
	}

	events, err := a.hub.Store().ListEvents(r.Context(), opts)
	if err != nil {
		a.writeError(w, r, hub.StoreError(err, "api: list events"))
		return
	}
	if events == nil {
		events = []*event.Event{}
	}

	writeJSON(w, http.StatusOK, events)
}

func (a *Handler) getEvent(w http.ResponseWriter, r *http.Request) {
	evtID, err := parseEventID(r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	evt, err := a.hub.Store().GetEvent(r.Context(), evtID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, evt)
}

func eventStatus(raw string) (event.Status, error) {
	s := event.Status(raw)
	if s != "" && !s.Valid() {
		return "", hub.ValidationError("api: invalid filter", "status",
			"must be one of pending, in_progress, processed, failed")
	}
	return s, nil
}
