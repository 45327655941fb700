package api

import (
	"context"
	"net/http"

	"github.com/arelis/hub/agent"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// ListAgentsResponse is one page of agents.
type ListAgentsResponse struct {
	Agents  []*agent.Agent `json:"agents"`
	Total   int64          `json:"total"`
	Page    int            `json:"page"`
	PerPage int            `json:"per_page"`
}

type updateAgentStatusRequest struct {
	Status agent.Status `json:"status"`
}

func (a *Handler) listAgents(w http.ResponseWriter, r *http.Request) {
	resp, err := listAgentPage(r.Context(), a.hub.Agents(),
		queryInt(r, "page", 1),
		queryInt(r, "per_page", defaultPerPage),
		agent.Status(queryParam(r, "status")),
		queryParam(r, "customer_id"),
	)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// listAgentPage clamps page to >= 1 and perPage to (0, maxPerPage].
func listAgentPage(
	ctx context.Context,
	agents *agent.Service,
	page, perPage int,
	status agent.Status,
	customerID string,
) (*ListAgentsResponse, error) {
	page = max(page, 1)
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	perPage = min(perPage, maxPerPage)

	list, total, err := agents.List(ctx, agent.ListOpts{
		Offset:     (page - 1) * perPage,
		Limit:      perPage,
		Status:     status,
		CustomerID: customerID,
	})
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*agent.Agent{}
	}

	return &ListAgentsResponse{
		Agents:  list,
		Total:   total,
		Page:    page,
		PerPage: perPage,
	}, nil
}

func (a *Handler) getAgent(w http.ResponseWriter, r *http.Request) {
	ag, err := a.hub.Agents().Get(r.Context(), r.PathValue("uuid"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ag)
}

// updateAgentStatus stores the new status and publishes agent.status.changed.
func (a *Handler) updateAgentStatus(w http.ResponseWriter, r *http.Request) {
	var req updateAgentStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	ag, err := a.hub.Agents().UpdateStatus(r.Context(), r.PathValue("uuid"), req.Status)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ag)
}

func (a *Handler) getAgentMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := a.hub.Agents().Metrics(r.Context(), r.PathValue("uuid"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, m)
}
