package api

import (
	"net/http"

	"github.com/arelis/hub"
	"github.com/arelis/hub/id"
	"github.com/arelis/hub/webhook"
)

func (a *Handler) createWebhook(w http.ResponseWriter, r *http.Request) {
	var in webhook.Input
	if err := decodeJSON(w, r, &in); err != nil {
		a.writeError(w, r, err)
		return
	}

	wh, err := a.hub.Webhooks().Create(r.Context(), in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, wh)
}

func (a *Handler) listWebhooks(w http.ResponseWriter, r *http.Request) {
	opts := webhook.ListOpts{
		Offset: queryInt(r, "offset", 0),
		Limit:  queryInt(r, "limit", 50),
	}

	list, err := a.hub.Webhooks().List(r.Context(), opts)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []*webhook.Webhook{}
	}

	writeJSON(w, http.StatusOK, list)
}

func (a *Handler) getWebhook(w http.ResponseWriter, r *http.Request) {
	whID, err := parseWebhookID(r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	wh, err := a.hub.Webhooks().Get(r.Context(), whID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, wh)
}

func (a *Handler) deleteWebhook(w http.ResponseWriter, r *http.Request) {
	whID, err := parseWebhookID(r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	if err := a.hub.Webhooks().Delete(r.Context(), whID); err != nil {
		a.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func parseWebhookID(raw string) (id.ID, error) {
	whID, err := id.ParseWebhookID(raw)
	if err != nil {
		return id.ID{}, hub.ValidationError("api: invalid webhook id", "id", "must be a webhook id (whk_...)")
	}
	return whID, nil
}

func parseEventID(raw string) (id.ID, error) {
	evtID, err := id.ParseEventID(raw)
	if err != nil {
		return id.ID{}, hub.ValidationError("api: invalid event id", "id", "must be an event id (evt_...)")
	}
	return evtID, nil
}
