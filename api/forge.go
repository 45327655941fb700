package api

import (
	"net/http"

	"github.com/xraph/forge"

	"github.com/arelis/hub"
	"github.com/arelis/hub/agent"
	"github.com/arelis/hub/delivery"
	"github.com/arelis/hub/event"
	"github.com/arelis/hub/webhook"
)

// ForgeAPI wires all Forge-style HTTP handlers together.
//
// The inbound receiver is not part of it: verification needs the raw request
// body, so POST /webhooks/receive/:id is served by Handler.
type ForgeAPI struct {
	hub *hub.Hub
	log forge.Logger
}

// NewForgeAPI creates a ForgeAPI from a Hub.
func NewForgeAPI(h *hub.Hub, log forge.Logger) *ForgeAPI {
	return &ForgeAPI{hub: h, log: log}
}

// RegisterRoutes registers all hub admin API routes into the given Forge
// router with full OpenAPI metadata.
func (a *ForgeAPI) RegisterRoutes(router forge.Router) {
	a.registerWebhookRoutes(router)
	a.registerEventRoutes(router)
	a.registerDeliveryRoutes(router)
	a.registerAgentRoutes(router)
	a.registerStatsRoutes(router)
}

// ---------------------------------------------------------------------------
// Webhook routes
// ---------------------------------------------------------------------------

func (a *ForgeAPI) registerWebhookRoutes(router forge.Router) {
	g := router.Group("", forge.WithGroupTags("webhooks"))

	if err := g.POST("/webhooks", a.createWebhook,
		forge.WithSummary("Register webhook"),
		forge.WithDescription("Subscribes a URL to a set of exact event types. Deliveries are signed with the given secret."),
		forge.WithOperationID("createWebhook"),
		forge.WithRequestSchema(CreateWebhookForgeRequest{}),
		forge.WithCreatedResponse(webhook.Webhook{}),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register createWebhook route", forge.Error(err))
	}

	if err := g.GET("/webhooks", a.listWebhooks,
		forge.WithSummary("List webhooks"),
		forge.WithDescription("Returns registered webhooks, newest first."),
		forge.WithOperationID("listWebhooks"),
		forge.WithRequestSchema(ListWebhooksForgeRequest{}),
		forge.WithListResponse(webhook.Webhook{}, http.StatusOK),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register listWebhooks route", forge.Error(err))
	}

	if err := g.GET("/webhooks/:webhookId", a.getWebhook,
		forge.WithSummary("Get webhook"),
		forge.WithDescription("Returns one webhook. The secret is never returned."),
		forge.WithOperationID("getWebhook"),
		forge.WithResponseSchema(http.StatusOK, "Webhook details", webhook.Webhook{}),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register getWebhook route", forge.Error(err))
	}

	if err := g.DELETE("/webhooks/:webhookId", a.deleteWebhook,
		forge.WithSummary("Delete webhook"),
		forge.WithDescription("Removes a webhook. Queued retries for it are discarded when they come due."),
		forge.WithOperationID("deleteWebhook"),
		forge.WithNoContentResponse(),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register deleteWebhook route", forge.Error(err))
	}
}

func (a *ForgeAPI) createWebhook(ctx forge.Context, req *CreateWebhookForgeRequest) (*webhook.Webhook, error) {
	wh, err := a.hub.Webhooks().Create(ctx.Context(), webhook.Input{
		URL:         req.URL,
		Events:      req.Events,
		Secret:      req.Secret,
		Description: req.Description,
	})
	if err != nil {
		return nil, mapError(err)
	}

	if err := ctx.JSON(http.StatusCreated, wh); err != nil {
		return nil, mapError(err)
	}

	//nolint:nilnil // response already written via ctx.JSON.
	return nil, nil
}

func (a *ForgeAPI) listWebhooks(ctx forge.Context, req *ListWebhooksForgeRequest) ([]*webhook.Webhook, error) {
	limit := req.Limit
	if limit == 0 {
		limit = 50
	}

	list, err := a.hub.Webhooks().List(ctx.Context(), webhook.ListOpts{
		Offset: req.Offset,
		Limit:  limit,
	})
	if err != nil {
		return nil, mapError(err)
	}

	return list, nil
}

func (a *ForgeAPI) getWebhook(ctx forge.Context, req *GetWebhookForgeRequest) (*webhook.Webhook, error) {
	whID, err := parseWebhookID(req.WebhookID)
	if err != nil {
		return nil, mapError(err)
	}

	wh, err := a.hub.Webhooks().Get(ctx.Context(), whID)
	if err != nil {
		return nil, mapError(err)
	}

	return wh, nil
}

func (a *ForgeAPI) deleteWebhook(ctx forge.Context, req *DeleteWebhookForgeRequest) (*webhook.Webhook, error) {
	whID, err := parseWebhookID(req.WebhookID)
	if err != nil {
		return nil, mapError(err)
	}

	if err := a.hub.Webhooks().Delete(ctx.Context(), whID); err != nil {
		return nil, mapError(err)
	}

	if err := ctx.NoContent(http.StatusNoContent); err != nil {
		return nil, mapError(err)
	}

	//nolint:nilnil // response already written via ctx.NoContent.
	return nil, nil
}

// ---------------------------------------------------------------------------
// Event routes
// ---------------------------------------------------------------------------

func (a *ForgeAPI) registerEventRoutes(router forge.Router) {
	g := router.Group("", forge.WithGroupTags("events"))

	if err := g.POST("/events", a.createEvent,
		forge.WithSummary("Publish event"),
		forge.WithDescription("Stores a pending event. The dispatcher delivers it to every subscribed webhook on its next tick."),
		forge.WithOperationID("publishEvent"),
		forge.WithRequestSchema(CreateEventForgeRequest{}),
		forge.WithResponseSchema(http.StatusAccepted, "Event accepted", event.Event{}),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register publishEvent route", forge.Error(err))
	}

	if err := g.GET("/events", a.listEvents,
		forge.WithSummary("List events"),
		forge.WithDescription("Returns events filtered by type and processing status."),
		forge.WithOperationID("listEvents"),
		forge.WithRequestSchema(ListEventsForgeRequest{}),
		forge.WithListResponse(event.Event{}, http.StatusOK),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register listEvents route", forge.Error(err))
	}

	if err := g.GET("/events/:eventId", a.getEvent,
		forge.WithSummary("Get event"),
		forge.WithDescription("Returns one event with its processing status."),
		forge.WithOperationID("getEvent"),
		forge.WithResponseSchema(http.StatusOK, "Event details", event.Event{}),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register getEvent route", forge.Error(err))
	}
}

func (a *ForgeAPI) createEvent(ctx forge.Context, req *CreateEventForgeRequest) (*event.Event, error) {
	evt, err := a.hub.Publish(ctx.Context(), req.Type, req.Data)
	if err != nil {
		return nil, mapError(err)
	}

	if err := ctx.JSON(http.StatusAccepted, evt); err != nil {
		return nil, mapError(err)
	}

	//nolint:nilnil // response already written via ctx.JSON.
	return nil, nil
}

func (a *ForgeAPI) listEvents(ctx forge.Context, req *ListEventsForgeRequest) ([]*event.Event, error) {
	status, err := eventStatus(req.Status)
	if err != nil {
		return nil, mapError(err)
	}

	limit := req.Limit
	if limit == 0 {
		limit = 50
	}

	events, err := a.hub.Store().ListEvents(ctx.Context(), event.ListOpts{
		Offset: req.Offset,
		Limit:  limit,
		Type:   req.Type,
		Status: status,
	})
	if err != nil {
		return nil, mapError(hub.StoreError(err, "api: list events"))
	}

	return events, nil
}

func (a *ForgeAPI) getEvent(ctx forge.Context, req *GetEventForgeRequest) (*event.Event, error) {
	evtID, err := parseEventID(req.EventID)
	if err != nil {
		return nil, mapError(err)
	}

	evt, err := a.hub.Store().GetEvent(ctx.Context(), evtID)
	if err != nil {
		return nil, mapError(err)
	}

	return evt, nil
}

// ---------------------------------------------------------------------------
// Delivery routes
// ---------------------------------------------------------------------------

func (a *ForgeAPI) registerDeliveryRoutes(router forge.Router) {
	g := router.Group("", forge.WithGroupTags("deliveries"))

	if err := g.GET("/webhooks/:webhookId/deliveries", a.listWebhookDeliveries,
		forge.WithSummary("List webhook deliveries"),
		forge.WithDescription("Returns every delivery attempt made to a webhook, newest first."),
		forge.WithOperationID("listWebhookDeliveries"),
		forge.WithRequestSchema(ListWebhookDeliveriesForgeRequest{}),
		forge.WithListResponse(delivery.Record{}, http.StatusOK),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register listWebhookDeliveries route", forge.Error(err))
	}

	if err := g.GET("/events/:eventId/deliveries", a.listEventDeliveries,
		forge.WithSummary("List event deliveries"),
		forge.WithDescription("Returns every delivery attempt made for an event across all subscribers."),
		forge.WithOperationID("listEventDeliveries"),
		forge.WithRequestSchema(ListEventDeliveriesForgeRequest{}),
		forge.WithListResponse(delivery.Record{}, http.StatusOK),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register listEventDeliveries route", forge.Error(err))
	}
}

func (a *ForgeAPI) listWebhookDeliveries(ctx forge.Context, req *ListWebhookDeliveriesForgeRequest) ([]*delivery.Record, error) {
	whID, err := parseWebhookID(req.WebhookID)
	if err != nil {
		return nil, mapError(err)
	}
	if _, err := a.hub.Webhooks().Get(ctx.Context(), whID); err != nil {
		return nil, mapError(err)
	}

	status, err := deliveryStatus(req.Status)
	if err != nil {
		return nil, mapError(err)
	}

	return a.records(ctx, delivery.ListOpts{
		Offset:    req.Offset,
		Limit:     req.Limit,
		WebhookID: whID,
		Status:    status,
	})
}

func (a *ForgeAPI) listEventDeliveries(ctx forge.Context, req *ListEventDeliveriesForgeRequest) ([]*delivery.Record, error) {
	evtID, err := parseEventID(req.EventID)
	if err != nil {
		return nil, mapError(err)
	}
	if _, err := a.hub.Store().GetEvent(ctx.Context(), evtID); err != nil {
		return nil, mapError(err)
	}

	status, err := deliveryStatus(req.Status)
	if err != nil {
		return nil, mapError(err)
	}

	return a.records(ctx, delivery.ListOpts{
		Offset:  req.Offset,
		Limit:   req.Limit,
		EventID: evtID,
		Status:  status,
	})
}

func (a *ForgeAPI) records(ctx forge.Context, opts delivery.ListOpts) ([]*delivery.Record, error) {
	if opts.Limit == 0 {
		opts.Limit = 50
	}

	records, err := a.hub.Store().ListRecords(ctx.Context(), opts)
	if err != nil {
		return nil, mapError(hub.StoreError(err, "api: list deliveries"))
	}

	return records, nil
}

// ---------------------------------------------------------------------------
// Agent routes
// ---------------------------------------------------------------------------

func (a *ForgeAPI) registerAgentRoutes(router forge.Router) {
	g := router.Group("", forge.WithGroupTags("agents"))

	if err := g.GET("/agents", a.listAgents,
		forge.WithSummary("List agents"),
		forge.WithDescription("Returns a page of agent rows filtered by status and customer."),
		forge.WithOperationID("listAgents"),
		forge.WithRequestSchema(ListAgentsForgeRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Agent page", ListAgentsResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register listAgents route", forge.Error(err))
	}

	if err := g.GET("/agents/:agentUuid", a.getAgent,
		forge.WithSummary("Get agent"),
		forge.WithDescription("Returns one agent row."),
		forge.WithOperationID("getAgent"),
		forge.WithResponseSchema(http.StatusOK, "Agent details", agent.Agent{}),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register getAgent route", forge.Error(err))
	}

	if err := g.PATCH("/agents/:agentUuid/status", a.updateAgentStatus,
		forge.WithSummary("Update agent status"),
		forge.WithDescription("Sets the agent's status and publishes agent.status.changed with the previous and new values."),
		forge.WithOperationID("updateAgentStatus"),
		forge.WithRequestSchema(UpdateAgentStatusForgeRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Updated agent", agent.Agent{}),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register updateAgentStatus route", forge.Error(err))
	}

	if err := g.GET("/agents/:agentUuid/metrics", a.getAgentMetrics,
		forge.WithSummary("Get agent metrics"),
		forge.WithDescription("Returns the agent's execution counters."),
		forge.WithOperationID("getAgentMetrics"),
		forge.WithResponseSchema(http.StatusOK, "Agent metrics", agent.Metrics{}),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register getAgentMetrics route", forge.Error(err))
	}
}

func (a *ForgeAPI) listAgents(ctx forge.Context, req *ListAgentsForgeRequest) (*ListAgentsResponse, error) {
	resp, err := listAgentPage(ctx.Context(), a.hub.Agents(),
		req.Page, req.PerPage, agent.Status(req.Status), req.CustomerID)
	if err != nil {
		return nil, mapError(err)
	}

	return resp, nil
}

func (a *ForgeAPI) getAgent(ctx forge.Context, req *GetAgentForgeRequest) (*agent.Agent, error) {
	ag, err := a.hub.Agents().Get(ctx.Context(), req.AgentUUID)
	if err != nil {
		return nil, mapError(err)
	}

	return ag, nil
}

func (a *ForgeAPI) updateAgentStatus(ctx forge.Context, req *UpdateAgentStatusForgeRequest) (*agent.Agent, error) {
	ag, err := a.hub.Agents().UpdateStatus(ctx.Context(), req.AgentUUID, agent.Status(req.Status))
	if err != nil {
		return nil, mapError(err)
	}

	return ag, nil
}

func (a *ForgeAPI) getAgentMetrics(ctx forge.Context, req *GetAgentForgeRequest) (*agent.Metrics, error) {
	m, err := a.hub.Agents().Metrics(ctx.Context(), req.AgentUUID)
	if err != nil {
		return nil, mapError(err)
	}

	return m, nil
}

// ---------------------------------------------------------------------------
// Stats routes
// ---------------------------------------------------------------------------

func (a *ForgeAPI) registerStatsRoutes(router forge.Router) {
	g := router.Group("", forge.WithGroupTags("stats"))

	if err := g.GET("/stats", a.getStats,
		forge.WithSummary("System statistics"),
		forge.WithDescription("Returns event counts per processing status and the retry queue size."),
		forge.WithOperationID("getStats"),
		forge.WithResponseSchema(http.StatusOK, "Hub statistics", StatsResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register getStats route", forge.Error(err))
	}
}

func (a *ForgeAPI) getStats(ctx forge.Context, _ *StatsForgeRequest) (*StatsResponse, error) {
	resp, err := collectStats(ctx.Context(), a.hub.Store())
	if err != nil {
		return nil, mapError(err)
	}

	return resp, nil
}
