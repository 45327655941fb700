package mongo

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/arelis/hub/agent"
	"github.com/arelis/hub/delivery"
	"github.com/arelis/hub/event"
	"github.com/arelis/hub/id"
	"github.com/arelis/hub/internal/entity"
	"github.com/arelis/hub/webhook"
)

// --- Event models ---

type eventModel struct {
	grove.BaseModel `grove:"table:hub_events"`

	ID          string     `grove:"id,pk"        bson:"_id"`
	Type        string     `grove:"type"         bson:"type"`
	Data        string     `grove:"data"         bson:"data"`
	Status      string     `grove:"status"       bson:"status"`
	Error       string     `grove:"error"        bson:"error,omitempty"`
	ClaimedAt   *time.Time `grove:"claimed_at"   bson:"claimed_at,omitempty"`
	ProcessedAt *time.Time `grove:"processed_at" bson:"processed_at,omitempty"`
	CreatedAt   time.Time  `grove:"created_at"   bson:"created_at"`
	UpdatedAt   time.Time  `grove:"updated_at"   bson:"updated_at"`
}

// Data is kept as JSON text so nested documents round-trip as plain maps.
func toEventModel(evt *event.Event) (*eventModel, error) {
	status := evt.Status
	if status == "" {
		status = event.StatusPending
	}
	data, err := json.Marshal(evt.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal event data: %w", err)
	}
	return &eventModel{
		ID:          evt.ID.String(),
		Type:        evt.Type,
		Data:        string(data),
		Status:      string(status),
		Error:       evt.Error,
		ClaimedAt:   evt.ClaimedAt,
		ProcessedAt: evt.ProcessedAt,
		CreatedAt:   evt.CreatedAt,
		UpdatedAt:   evt.UpdatedAt,
	}, nil
}

func fromEventModel(m *eventModel) (*event.Event, error) {
	evtID, err := id.ParseEventID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse event ID %q: %w", m.ID, err)
	}
	data := map[string]any{}
	if m.Data != "" && m.Data != "null" {
		if err := json.Unmarshal([]byte(m.Data), &data); err != nil {
			return nil, fmt.Errorf("unmarshal event data %q: %w", m.ID, err)
		}
	}
	return &event.Event{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          evtID,
		Type:        m.Type,
		Data:        data,
		Status:      event.Status(m.Status),
		Error:       m.Error,
		ClaimedAt:   m.ClaimedAt,
		ProcessedAt: m.ProcessedAt,
	}, nil
}

// --- Webhook models ---

type webhookModel struct {
	grove.BaseModel `grove:"table:hub_webhooks"`

	ID          string    `grove:"id,pk"       bson:"_id"`
	URL         string    `grove:"url"         bson:"url"`
	Events      []string  `grove:"events"      bson:"events"`
	Secret      string    `grove:"secret"      bson:"secret"`
	Description string    `grove:"description" bson:"description,omitempty"`
	CreatedAt   time.Time `grove:"created_at"  bson:"created_at"`
	UpdatedAt   time.Time `grove:"updated_at"  bson:"updated_at"`
}

func toWebhookModel(wh *webhook.Webhook) *webhookModel {
	return &webhookModel{
		ID:          wh.ID.String(),
		URL:         wh.URL,
		Events:      wh.Events,
		Secret:      wh.Secret,
		Description: wh.Description,
		CreatedAt:   wh.CreatedAt,
		UpdatedAt:   wh.UpdatedAt,
	}
}

func fromWebhookModel(m *webhookModel) (*webhook.Webhook, error) {
	whID, err := id.ParseWebhookID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse webhook ID %q: %w", m.ID, err)
	}
	return &webhook.Webhook{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          whID,
		URL:         m.URL,
		Events:      m.Events,
		Secret:      m.Secret,
		Description: m.Description,
	}, nil
}

// --- Delivery record models ---

type recordModel struct {
	grove.BaseModel `grove:"table:hub_delivery_records"`

	ID         string    `grove:"id,pk"       bson:"_id"`
	WebhookID  string    `grove:"webhook_id"  bson:"webhook_id"`
	EventID    string    `grove:"event_id"    bson:"event_id"`
	Status     string    `grove:"status"      bson:"status"`
	Error      string    `grove:"error"       bson:"error,omitempty"`
	Attempt    int       `grove:"attempt"     bson:"attempt"`
	StatusCode int       `grove:"status_code" bson:"status_code"`
	LatencyMs  int64     `grove:"latency_ms"  bson:"latency_ms"`
	CreatedAt  time.Time `grove:"created_at"  bson:"created_at"`
}

func toRecordModel(rec *delivery.Record) *recordModel {
	return &recordModel{
		ID:         rec.ID.String(),
		WebhookID:  rec.WebhookID.String(),
		EventID:    rec.EventID.String(),
		Status:     string(rec.Status),
		Error:      rec.Error,
		Attempt:    rec.Attempt,
		StatusCode: rec.StatusCode,
		LatencyMs:  rec.LatencyMs,
		CreatedAt:  rec.CreatedAt,
	}
}

func fromRecordModel(m *recordModel) (*delivery.Record, error) {
	recID, err := id.ParseDeliveryID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse delivery ID %q: %w", m.ID, err)
	}
	whID, err := id.ParseWebhookID(m.WebhookID)
	if err != nil {
		return nil, fmt.Errorf("parse webhook ID %q: %w", m.WebhookID, err)
	}
	evtID, err := id.ParseEventID(m.EventID)
	if err != nil {
		return nil, fmt.Errorf("parse event ID %q: %w", m.EventID, err)
	}
	return &delivery.Record{
		ID:         recID,
		WebhookID:  whID,
		EventID:    evtID,
		Status:     delivery.Status(m.Status),
		Error:      m.Error,
		Attempt:    m.Attempt,
		StatusCode: m.StatusCode,
		LatencyMs:  m.LatencyMs,
		CreatedAt:  m.CreatedAt,
	}, nil
}

// --- Retry models ---

type retryModel struct {
	grove.BaseModel `grove:"table:hub_delivery_retries"`

	ID          string     `grove:"id,pk"        bson:"_id"`
	WebhookID   string     `grove:"webhook_id"   bson:"webhook_id"`
	EventID     string     `grove:"event_id"     bson:"event_id"`
	Attempt     int        `grove:"attempt"      bson:"attempt"`
	DueAt       time.Time  `grove:"due_at"       bson:"due_at"`
	LockedUntil *time.Time `grove:"locked_until" bson:"locked_until"`
	LastError   string     `grove:"last_error"   bson:"last_error,omitempty"`
	CreatedAt   time.Time  `grove:"created_at"   bson:"created_at"`
}

func toRetryModel(r *delivery.Retry) *retryModel {
	return &retryModel{
		ID:          r.ID.String(),
		WebhookID:   r.WebhookID.String(),
		EventID:     r.EventID.String(),
		Attempt:     r.Attempt,
		DueAt:       r.DueAt,
		LockedUntil: r.LockedUntil,
		LastError:   r.LastError,
		CreatedAt:   r.CreatedAt,
	}
}

func fromRetryModel(m *retryModel) (*delivery.Retry, error) {
	rtyID, err := id.ParseRetryID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse retry ID %q: %w", m.ID, err)
	}
	whID, err := id.ParseWebhookID(m.WebhookID)
	if err != nil {
		return nil, fmt.Errorf("parse webhook ID %q: %w", m.WebhookID, err)
	}
	evtID, err := id.ParseEventID(m.EventID)
	if err != nil {
		return nil, fmt.Errorf("parse event ID %q: %w", m.EventID, err)
	}
	return &delivery.Retry{
		ID:          rtyID,
		WebhookID:   whID,
		EventID:     evtID,
		Attempt:     m.Attempt,
		DueAt:       m.DueAt,
		LockedUntil: m.LockedUntil,
		LastError:   m.LastError,
		CreatedAt:   m.CreatedAt,
	}, nil
}

// --- Agent models ---

type agentModel struct {
	grove.BaseModel `grove:"table:hub_agents"`

	UUID              string     `grove:"uuid,pk"            bson:"_id"`
	Name              string     `grove:"name"               bson:"name"`
	CustomerID        string     `grove:"customer_id"        bson:"customer_id,omitempty"`
	Status            string     `grove:"status"             bson:"status"`
	CurrentExecutions int        `grove:"current_executions" bson:"current_executions"`
	MaxExecutions     int        `grove:"max_executions"     bson:"max_executions"`
	LastExecutionAt   *time.Time `grove:"last_execution_at"  bson:"last_execution_at,omitempty"`
	CreatedAt         time.Time  `grove:"created_at"         bson:"created_at"`
	UpdatedAt         time.Time  `grove:"updated_at"         bson:"updated_at"`
}

func toAgentModel(a *agent.Agent) *agentModel {
	return &agentModel{
		UUID:              a.UUID,
		Name:              a.Name,
		CustomerID:        a.CustomerID,
		Status:            string(a.Status),
		CurrentExecutions: a.CurrentExecutions,
		MaxExecutions:     a.MaxExecutions,
		LastExecutionAt:   a.LastExecutionAt,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
}

func fromAgentModel(m *agentModel) *agent.Agent {
	return &agent.Agent{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		UUID:              m.UUID,
		Name:              m.Name,
		CustomerID:        m.CustomerID,
		Status:            agent.Status(m.Status),
		CurrentExecutions: m.CurrentExecutions,
		MaxExecutions:     m.MaxExecutions,
		LastExecutionAt:   m.LastExecutionAt,
	}
}
