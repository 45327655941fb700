package api

// ---------------------------------------------------------------------------
// Webhook requests
// ---------------------------------------------------------------------------

// CreateWebhookForgeRequest binds the body for POST /webhooks.
type CreateWebhookForgeRequest struct {
	URL         string   `description:"Delivery URL (http or https)"          json:"url"`
	Events      []string `description:"Exact event types to subscribe to"     json:"events"`
	Secret      string   `description:"HMAC signing secret, 32+ characters"   json:"secret"`
	Description string   `description:"Human-readable description"            json:"description,omitempty"`
}

// ListWebhooksForgeRequest binds query parameters for GET /webhooks.
type ListWebhooksForgeRequest struct {
	Offset int `description:"Pagination offset"      query:"offset"`
	Limit  int `description:"Page size (default 50)" query:"limit"`
}

// GetWebhookForgeRequest binds the path for GET /webhooks/:webhookId.
type GetWebhookForgeRequest struct {
	WebhookID string `description:"Webhook identifier" path:"webhookId"`
}

// DeleteWebhookForgeRequest binds the path for DELETE /webhooks/:webhookId.
type DeleteWebhookForgeRequest struct {
	WebhookID string `description:"Webhook identifier" path:"webhookId"`
}

// ---------------------------------------------------------------------------
// Event requests
// ---------------------------------------------------------------------------

// CreateEventForgeRequest binds the body for POST /events.
type CreateEventForgeRequest struct {
	Type string         `description:"Event type (e.g. agent.status.changed)" json:"type"`
	Data map[string]any `description:"Event payload"                          json:"data"`
}

// ListEventsForgeRequest binds query parameters for GET /events.
type ListEventsForgeRequest struct {
	Type   string `description:"Filter by event type"                          query:"type"`
	Status string `description:"Filter by pending/in_progress/processed/failed" query:"status"`
	Offset int    `description:"Pagination offset"                             query:"offset"`
	Limit  int    `description:"Page size (default 50)"                        query:"limit"`
}

// GetEventForgeRequest binds the path for GET /events/:eventId.
type GetEventForgeRequest struct {
	EventID string `description:"Event identifier" path:"eventId"`
}

// ---------------------------------------------------------------------------
// Delivery requests
// ---------------------------------------------------------------------------

// ListWebhookDeliveriesForgeRequest binds GET /webhooks/:webhookId/deliveries.
type ListWebhookDeliveriesForgeRequest struct {
	WebhookID string `description:"Webhook identifier"             path:"webhookId"`
	Status    string `description:"Filter by delivered or failed"  query:"status"`
	Offset    int    `description:"Pagination offset"              query:"offset"`
	Limit     int    `description:"Page size (default 50)"         query:"limit"`
}

// ListEventDeliveriesForgeRequest binds GET /events/:eventId/deliveries.
type ListEventDeliveriesForgeRequest struct {
	EventID string `description:"Event identifier"               path:"eventId"`
	Status  string `description:"Filter by delivered or failed"  query:"status"`
	Offset  int    `description:"Pagination offset"              query:"offset"`
	Limit   int    `description:"Page size (default 50)"         query:"limit"`
}

// ---------------------------------------------------------------------------
// Agent requests
// ---------------------------------------------------------------------------

// ListAgentsForgeRequest binds query parameters for GET /agents.
type ListAgentsForgeRequest struct {
	Status     string `description:"Filter by active/paused/stopped" query:"status"`
	CustomerID string `description:"Filter by customer"              query:"customer_id"`
	Page       int    `description:"Page number (default 1)"         query:"page"`
	PerPage    int    `description:"Page size (default 20, max 100)" query:"per_page"`
}

// GetAgentForgeRequest binds the path for GET /agents/:agentUuid and
// GET /agents/:agentUuid/metrics.
type GetAgentForgeRequest struct {
	AgentUUID string `description:"Agent UUID" path:"agentUuid"`
}

// UpdateAgentStatusForgeRequest binds PATCH /agents/:agentUuid/status.
type UpdateAgentStatusForgeRequest struct {
	AgentUUID string `description:"Agent UUID"                  path:"agentUuid"`
	Status    string `description:"New status (active/paused/stopped)" json:"status"`
}

// StatsForgeRequest is empty. GET /stats has no parameters.
type StatsForgeRequest struct{}
