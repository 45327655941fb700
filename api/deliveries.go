package api

import (
	"net/http"

	"github.com/arelis/hub"
	"github.com/arelis/hub/delivery"
)

func (a *Handler) listWebhookDeliveries(w http.ResponseWriter, r *http.Request) {
	whID, err := parseWebhookID(r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if _, err := a.hub.Webhooks().Get(r.Context(), whID); err != nil {
		a.writeError(w, r, err)
		return
	}

	opts, err := deliveryOpts(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	opts.WebhookID = whID
	a.writeDeliveries(w, r, opts)
}

func (a *Handler) listEventDeliveries(w http.ResponseWriter, r *http.Request) {
	evtID, err := parseEventID(r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if _, err := a.hub.Store().GetEvent(r.Context(), evtID); err != nil {
		a.writeError(w, r, err)
		return
	}

	opts, err := deliveryOpts(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	opts.EventID = evtID
	a.writeDeliveries(w, r, opts)
}

func (a *Handler) writeDeliveries(w http.ResponseWriter, r *http.Request, opts delivery.ListOpts) {
	records, err := a.hub.Store().ListRecords(r.Context(), opts)
	if err != nil {
		a.writeError(w, r, hub.StoreError(err, "api: list deliveries"))
		return
	}
	if records == nil {
		records = []*delivery.Record{}
	}

	writeJSON(w, http.StatusOK, records)
}

func deliveryOpts(r *http.Request) (delivery.ListOpts, error) {
	status, err := deliveryStatus(queryParam(r, "status"))
	if err != nil {
		return delivery.ListOpts{}, err
	}
	return delivery.ListOpts{
		Offset: queryInt(r, "offset", 0),
		Limit:  queryInt(r, "limit", 50),
		Status: status,
	}, nil
}

func deliveryStatus(raw string) (delivery.Status, error) {
	switch s := delivery.Status(raw); s {
	case "", delivery.StatusDelivered, delivery.StatusFailed:
		return s, nil
	default:
		return "", hub.ValidationError("api: invalid filter", "status", "must be delivered or failed")
	}
}
