package inbound_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	goerrors "github.com/goliatone/go-errors"

	"github.com/arelis/hub"
	"github.com/arelis/hub/agent"
	"github.com/arelis/hub/id"
	"github.com/arelis/hub/inbound"
	"github.com/arelis/hub/internal/entity"
	"github.com/arelis/hub/signature"
	"github.com/arelis/hub/store/memory"
	"github.com/arelis/hub/webhook"
)

const (
	secret    = "0123456789abcdef0123456789abcdef"
	agentUUID = "8f14e45f-ceea-4e7a-9f5b-6c1d2a3b4c5d"
)

func ctx() context.Context { return context.Background() }

type fixture struct {
	store    *memory.Store
	agents   *agent.Service
	receiver *inbound.Receiver
	webhook  *webhook.Webhook
	logs     *bytes.Buffer
}

func setup(t *testing.T) *fixture {
	t.Helper()
	s := memory.New()
	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	agents := agent.NewService(s, nil, logger)
	if err := agents.Register(ctx(), &agent.Agent{UUID: agentUUID, Name: "support"}); err != nil {
		t.Fatal(err)
	}

	wh := &webhook.Webhook{
		Entity: entity.New(),
		ID:     id.NewWebhookID(),
		URL:    "https://example.com/hook",
		Events: []string{agent.EventStatusChanged},
		Secret: secret,
	}
	if err := s.CreateWebhook(ctx(), wh); err != nil {
		t.Fatal(err)
	}

	r := inbound.NewReceiver(s,
		inbound.WithLogger(logger),
		inbound.WithHandler(inbound.AgentStatusHandler(agents, logger)),
	)
	return &fixture{store: s, agents: agents, receiver: r, webhook: wh, logs: logs}
}

func payload(t *testing.T, typ string, data map[string]any) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"id":      id.NewEventID().String(),
		"type":    typ,
		"created": "2026-01-02T03:04:05.000Z",
		"data":    data,
	})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func statusOf(t *testing.T, f *fixture) agent.Status {
	t.Helper()
	a, err := f.agents.Get(ctx(), agentUUID)
	if err != nil {
		t.Fatal(err)
	}
	return a.Status
}

func requireRich(t *testing.T, err error, code int, textCode string) *goerrors.Error {
	t.Helper()
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T (%v)", err, err)
	}
	if rich.Code != code || rich.TextCode != textCode {
		t.Fatalf("expected %d/%q, got %d/%q", code, textCode, rich.Code, rich.TextCode)
	}
	return rich
}

func TestReceiveAppliesAgentStatus(t *testing.T) {
	f := setup(t)
	body := payload(t, agent.EventStatusChanged, map[string]any{
		"agent_uuid":      agentUUID,
		"previous_status": "active",
		"new_status":      "paused",
	})

	res, err := f.receiver.Receive(ctx(), f.webhook.ID.String(), signature.Sign(body, secret), body)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Handled || res.Type != agent.EventStatusChanged {
		t.Fatalf("unexpected result: %+v", res)
	}
	if st := statusOf(t, f); st != agent.StatusPaused {
		t.Fatalf("expected paused, got %s", st)
	}
}

func TestReceiveBadSignature(t *testing.T) {
	f := setup(t)
	body := payload(t, agent.EventStatusChanged, map[string]any{"agent_uuid": agentUUID, "new_status": "stopped"})

	_, err := f.receiver.Receive(ctx(), f.webhook.ID.String(), strings.Repeat("0", signature.Size), body)
	rich := requireRich(t, err, http.StatusUnauthorized, hub.CodeUnauthorized)
	if rich.Category != goerrors.CategoryAuth {
		t.Fatalf("expected auth category, got %q", rich.Category)
	}
	if st := statusOf(t, f); st != agent.StatusActive {
		t.Fatalf("expected no mutation, got %s", st)
	}
}

func TestReceiveSignedWithOtherSecret(t *testing.T) {
	f := setup(t)
	body := payload(t, agent.EventStatusChanged, map[string]any{"agent_uuid": agentUUID, "new_status": "stopped"})

	_, err := f.receiver.Receive(ctx(), f.webhook.ID.String(), signature.Sign(body, strings.Repeat("y", 32)), body)
	requireRich(t, err, http.StatusUnauthorized, hub.CodeUnauthorized)
}

func TestReceiveTamperedBody(t *testing.T) {
	f := setup(t)
	body := payload(t, agent.EventStatusChanged, map[string]any{"agent_uuid": agentUUID, "new_status": "paused"})
	sig := signature.Sign(body, secret)
	tampered := bytes.Replace(body, []byte("paused"), []byte("stopped"), 1)

	_, err := f.receiver.Receive(ctx(), f.webhook.ID.String(), sig, tampered)
	requireRich(t, err, http.StatusUnauthorized, hub.CodeUnauthorized)
	if st := statusOf(t, f); st != agent.StatusActive {
		t.Fatalf("expected no mutation, got %s", st)
	}
}

func TestReceiveMissingSignature(t *testing.T) {
	f := setup(t)
	body := payload(t, agent.EventStatusChanged, map[string]any{"agent_uuid": agentUUID, "new_status": "paused"})

	_, err := f.receiver.Receive(ctx(), f.webhook.ID.String(), "", body)
	requireRich(t, err, http.StatusBadRequest, hub.CodeMissingSignature)
}

func TestReceiveUnknownWebhook(t *testing.T) {
	f := setup(t)
	body := payload(t, agent.EventStatusChanged, map[string]any{"agent_uuid": agentUUID, "new_status": "paused"})
	sig := signature.Sign(body, secret)

	for _, whID := range []string{id.NewWebhookID().String(), "not-an-id", id.NewEventID().String()} {
		_, err := f.receiver.Receive(ctx(), whID, sig, body)
		requireRich(t, err, http.StatusNotFound, hub.CodeNotFound)
	}
}

func TestReceiveUnhandledTypeIsLogged(t *testing.T) {
	f := setup(t)
	body := payload(t, "agent.created", map[string]any{"agent_uuid": agentUUID})

	res, err := f.receiver.Receive(ctx(), f.webhook.ID.String(), signature.Sign(body, secret), body)
	if err != nil {
		t.Fatal(err)
	}
	if res.Handled {
		t.Fatal("expected unhandled result")
	}
	if !strings.Contains(f.logs.String(), "inbound event type unhandled") {
		t.Fatalf("expected unhandled log line, got:\n%s", f.logs.String())
	}
}

func TestReceiveSchemaViolation(t *testing.T) {
	f := setup(t)
	body := payload(t, agent.EventStatusChanged, map[string]any{"agent_uuid": agentUUID, "new_status": "sleeping"})

	_, err := f.receiver.Receive(ctx(), f.webhook.ID.String(), signature.Sign(body, secret), body)
	rich := requireRich(t, err, http.StatusBadRequest, hub.CodeValidation)

	fields := rich.AllValidationErrors()
	if len(fields) == 0 || fields[0].Field != "/new_status" {
		t.Fatalf("expected /new_status field error, got %+v", fields)
	}
	if st := statusOf(t, f); st != agent.StatusActive {
		t.Fatalf("expected no mutation, got %s", st)
	}
}

func TestReceiveMalformedBody(t *testing.T) {
	f := setup(t)

	for _, body := range [][]byte{[]byte(`not json`), []byte(`[1,2]`), []byte(`{"data":{}}`)} {
		_, err := f.receiver.Receive(ctx(), f.webhook.ID.String(), signature.Sign(body, secret), body)
		requireRich(t, err, http.StatusBadRequest, hub.CodeValidation)
	}
}

func TestReceiveUnknownAgentIsIgnored(t *testing.T) {
	f := setup(t)
	body := payload(t, agent.EventStatusChanged, map[string]any{
		"agent_uuid": "c9f0f895-fb98-4b91-8e7e-2a3b4c5d6e7f",
		"new_status": "paused",
	})

	res, err := f.receiver.Receive(ctx(), f.webhook.ID.String(), signature.Sign(body, secret), body)
	if err != nil {
		t.Fatalf("expected unknown agent to be accepted, got %v", err)
	}
	if res == nil {
		t.Fatal("expected a result")
	}
	if !strings.Contains(f.logs.String(), "inbound status change for unknown agent") {
		t.Fatalf("expected unknown agent log line, got:\n%s", f.logs.String())
	}
	if st := statusOf(t, f); st != agent.StatusActive {
		t.Fatalf("known agent changed: %s", st)
	}
}

func TestReceiveOpaqueAgentKey(t *testing.T) {
	f := setup(t)
	if err := f.agents.Register(ctx(), &agent.Agent{UUID: "a1", Name: "legacy"}); err != nil {
		t.Fatal(err)
	}
	body := payload(t, agent.EventStatusChanged, map[string]any{"agent_uuid": "a1", "new_status": "paused"})

	res, err := f.receiver.Receive(ctx(), f.webhook.ID.String(), signature.Sign(body, secret), body)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Handled {
		t.Fatal("expected handled result")
	}
	a, err := f.agents.Get(ctx(), "a1")
	if err != nil {
		t.Fatal(err)
	}
	if a.Status != agent.StatusPaused {
		t.Fatalf("expected paused, got %s", a.Status)
	}
}

func TestRegisterRejectsBrokenSchema(t *testing.T) {
	r := inbound.NewReceiver(memory.New())
	err := r.Register(inbound.Handler{
		Type:   "x.y",
		Schema: map[string]any{"type": 12},
		Handle: func(context.Context, *inbound.Event) error { return nil },
	})
	if err == nil {
		t.Fatal("expected schema compile error")
	}
}

func TestCustomHandler(t *testing.T) {
	f := setup(t)
	var got *inbound.Event
	if err := f.receiver.Register(inbound.Handler{
		Type: "console.ping",
		Handle: func(_ context.Context, evt *inbound.Event) error {
			got = evt
			return nil
		},
	}); err != nil {
		t.Fatal(err)
	}

	body := payload(t, "console.ping", nil)
	res, err := f.receiver.Receive(ctx(), f.webhook.ID.String(), signature.Sign(body, secret), body)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Handled || got == nil || got.WebhookID.String() != f.webhook.ID.String() {
		t.Fatalf("handler not invoked as expected: res=%+v evt=%+v", res, got)
	}
	if got.Data == nil {
		t.Fatal("expected empty data map, got nil")
	}
}
