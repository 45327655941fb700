package sqlite

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

// Timestamps are TEXT in a fixed-width UTC layout so that string comparison
// in SQL orders them the same way as time comparison.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// sqliteDefaultLayout is what DATETIME('now') produces for column defaults.
const sqliteDefaultLayout = "2006-01-02 15:04:05"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(sqliteDefaultLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func parseTimePtr(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	t, err := parseTime(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseEntity(created, updated string) (entity.Entity, error) {
	c, err := parseTime(created)
	if err != nil {
		return entity.Entity{}, err
	}
	u, err := parseTime(updated)
	if err != nil {
		return entity.Entity{}, err
	}
	return entity.Entity{CreatedAt: c, UpdatedAt: u}, nil
}

// --- Event models ---

type eventModel struct {
	grove.BaseModel `grove:"table:hub_events"`

	ID          string  `grove:"id,pk"`
	Type        string  `grove:"type"`
	Data        string  `grove:"data"`
	Status      string  `grove:"status"`
	Error       string  `grove:"error"`
	ClaimedAt   *string `grove:"claimed_at"`
	ProcessedAt *string `grove:"processed_at"`
	CreatedAt   string  `grove:"created_at"`
	UpdatedAt   string  `grove:"updated_at"`
}

func toEventModel(evt *event.Event) (*eventModel, error) {
	data, err := json.Marshal(evt.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal event data: %w", err)
	}
	status := evt.Status
	if status == "" {
		status = event.StatusPending
	}
	return &eventModel{
		ID:          evt.ID.String(),
		Type:        evt.Type,
		Data:        string(data),
		Status:      string(status),
		Error:       evt.Error,
		ClaimedAt:   formatTimePtr(evt.ClaimedAt),
		ProcessedAt: formatTimePtr(evt.ProcessedAt),
		CreatedAt:   formatTime(evt.CreatedAt),
		UpdatedAt:   formatTime(evt.UpdatedAt),
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
	ent, err := parseEntity(m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("event %q: %w", m.ID, err)
	}
	claimedAt, err := parseTimePtr(m.ClaimedAt)
	if err != nil {
		return nil, fmt.Errorf("event %q: %w", m.ID, err)
	}
	processedAt, err := parseTimePtr(m.ProcessedAt)
	if err != nil {
		return nil, fmt.Errorf("event %q: %w", m.ID, err)
	}
	return &event.Event{
		Entity:      ent,
		ID:          evtID,
		Type:        m.Type,
		Data:        data,
		Status:      event.Status(m.Status),
		Error:       m.Error,
		ClaimedAt:   claimedAt,
		ProcessedAt: processedAt,
	}, nil
}

// --- Webhook models ---

type webhookModel struct {
	grove.BaseModel `grove:"table:hub_webhooks"`

	ID          string `grove:"id,pk"`
	URL         string `grove:"url"`
	Events      string `grove:"events"`
	Secret      string `grove:"secret"`
	Description string `grove:"description"`
	CreatedAt   string `grove:"created_at"`
	UpdatedAt   string `grove:"updated_at"`
}

func (m *webhookModel) events() []string {
	var events []string
	if m.Events != "" {
		_ = json.Unmarshal([]byte(m.Events), &events) //nolint:errcheck // best-effort
	}
	return events
}

func toWebhookModel(wh *webhook.Webhook) *webhookModel {
	events, _ := json.Marshal(wh.Events) //nolint:errcheck // best-effort
	return &webhookModel{
		ID:          wh.ID.String(),
		URL:         wh.URL,
		Events:      string(events),
		Secret:      wh.Secret,
		Description: wh.Description,
		CreatedAt:   formatTime(wh.CreatedAt),
		UpdatedAt:   formatTime(wh.UpdatedAt),
	}
}

func fromWebhookModel(m *webhookModel) (*webhook.Webhook, error) {
	whID, err := id.ParseWebhookID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse webhook ID %q: %w", m.ID, err)
	}
	ent, err := parseEntity(m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("webhook %q: %w", m.ID, err)
	}
	return &webhook.Webhook{
		Entity:      ent,
		ID:          whID,
		URL:         m.URL,
		Events:      m.events(),
		Secret:      m.Secret,
		Description: m.Description,
	}, nil
}

// --- Delivery record models ---

type recordModel struct {
	grove.BaseModel `grove:"table:hub_delivery_records"`

	ID         string `grove:"id,pk"`
	WebhookID  string `grove:"webhook_id"`
	EventID    string `grove:"event_id"`
	Status     string `grove:"status"`
	Error      string `grove:"error"`
	Attempt    int    `grove:"attempt"`
	StatusCode int    `grove:"status_code"`
	LatencyMs  int64  `grove:"latency_ms"`
	CreatedAt  string `grove:"created_at"`
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
		CreatedAt:  formatTime(rec.CreatedAt),
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
	createdAt, err := parseTime(m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("delivery %q: %w", m.ID, err)
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
		CreatedAt:  createdAt,
	}, nil
}

// --- Retry models ---

type retryModel struct {
	grove.BaseModel `grove:"table:hub_delivery_retries"`

	ID          string  `grove:"id,pk"`
	WebhookID   string  `grove:"webhook_id"`
	EventID     string  `grove:"event_id"`
	Attempt     int     `grove:"attempt"`
	DueAt       string  `grove:"due_at"`
	LockedUntil *string `grove:"locked_until"`
	LastError   string  `grove:"last_error"`
	CreatedAt   string  `grove:"created_at"`
}

func toRetryModel(r *delivery.Retry) *retryModel {
	return &retryModel{
		ID:          r.ID.String(),
		WebhookID:   r.WebhookID.String(),
		EventID:     r.EventID.String(),
		Attempt:     r.Attempt,
		DueAt:       formatTime(r.DueAt),
		LockedUntil: formatTimePtr(r.LockedUntil),
		LastError:   r.LastError,
		CreatedAt:   formatTime(r.CreatedAt),
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
	dueAt, err := parseTime(m.DueAt)
	if err != nil {
		return nil, fmt.Errorf("retry %q: %w", m.ID, err)
	}
	lockedUntil, err := parseTimePtr(m.LockedUntil)
	if err != nil {
		return nil, fmt.Errorf("retry %q: %w", m.ID, err)
	}
	createdAt, err := parseTime(m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("retry %q: %w", m.ID, err)
	}
	return &delivery.Retry{
		ID:          rtyID,
		WebhookID:   whID,
		EventID:     evtID,
		Attempt:     m.Attempt,
		DueAt:       dueAt,
		LockedUntil: lockedUntil,
		LastError:   m.LastError,
		CreatedAt:   createdAt,
	}, nil
}

// --- Agent models ---

type agentModel struct {
	grove.BaseModel `grove:"table:hub_agents"`

	UUID              string  `grove:"uuid,pk"`
	Name              string  `grove:"name"`
	CustomerID        string  `grove:"customer_id"`
	Status            string  `grove:"status"`
	CurrentExecutions int     `grove:"current_executions"`
	MaxExecutions     int     `grove:"max_executions"`
	LastExecutionAt   *string `grove:"last_execution_at"`
	CreatedAt         string  `grove:"created_at"`
	UpdatedAt         string  `grove:"updated_at"`
}

func toAgentModel(a *agent.Agent) *agentModel {
	return &agentModel{
		UUID:              a.UUID,
		Name:              a.Name,
		CustomerID:        a.CustomerID,
		Status:            string(a.Status),
		CurrentExecutions: a.CurrentExecutions,
		MaxExecutions:     a.MaxExecutions,
		LastExecutionAt:   formatTimePtr(a.LastExecutionAt),
		CreatedAt:         formatTime(a.CreatedAt),
		UpdatedAt:         formatTime(a.UpdatedAt),
	}
}

func fromAgentModel(m *agentModel) (*agent.Agent, error) {
	ent, err := parseEntity(m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("agent %q: %w", m.UUID, err)
	}
	lastExecutionAt, err := parseTimePtr(m.LastExecutionAt)
	if err != nil {
		return nil, fmt.Errorf("agent %q: %w", m.UUID, err)
	}
	return &agent.Agent{
		Entity:            ent,
		UUID:              m.UUID,
		Name:              m.Name,
		CustomerID:        m.CustomerID,
		Status:            agent.Status(m.Status),
		CurrentExecutions: m.CurrentExecutions,
		MaxExecutions:     m.MaxExecutions,
		LastExecutionAt:   lastExecutionAt,
	}, nil
}
