package dispatcher_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/arelis/hub/dispatcher"
	"github.com/arelis/hub/event"
	"github.com/arelis/hub/id"
	"github.com/arelis/hub/internal/entity"
	"github.com/arelis/hub/signature"
	"github.com/arelis/hub/webhook"
)

const testSecret = "whsec_test_secret_1234567890abcdef1234567890abcdef"

func newTestWebhook(url string) *webhook.Webhook {
	return &webhook.Webhook{
		Entity: entity.New(),
		ID:     id.NewWebhookID(),
		URL:    url,
		Events: []string{"agent.status.changed"},
		Secret: testSecret,
	}
}

func newTestEvent() *event.Event {
	return &event.Event{
		Entity: entity.New(),
		ID:     id.NewEventID(),
		Type:   "agent.status.changed",
		Data:   map[string]any{"agent_uuid": "a-1", "new_status": "paused"},
		Status: event.StatusPending,
	}
}

func TestSenderHappyPath(t *testing.T) {
	var receivedHeaders http.Header
	var receivedBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedHeaders = r.Header
		receivedBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := dispatcher.NewSender(nil, 5*time.Second)
	wh := newTestWebhook(srv.URL)
	evt := newTestEvent()

	res := sender.Send(context.Background(), wh, evt)

	if !res.OK() {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
	if res.LatencyMs < 0 {
		t.Fatal("latency should be non-negative")
	}

	if receivedHeaders.Get("Content-Type") != "application/json" {
		t.Fatal("missing Content-Type")
	}
	sig := receivedHeaders.Get(signature.Header)
	if len(sig) != signature.Size {
		t.Fatalf("expected %d hex chars, got %q", signature.Size, sig)
	}
	if !signature.Verify(receivedBody, sig, wh.Secret) {
		t.Fatal("signature does not verify over the received body")
	}

	var payload map[string]any
	if err := json.Unmarshal(receivedBody, &payload); err != nil {
		t.Fatal(err)
	}
	if len(payload) != 4 {
		t.Fatalf("expected exactly id/type/created/data, got %v", payload)
	}
	if payload["id"] != evt.ID.String() || !strings.HasPrefix(payload["id"].(string), "evt_") {
		t.Fatalf("unexpected id: %v", payload["id"])
	}
	if payload["type"] != "agent.status.changed" {
		t.Fatalf("unexpected type: %v", payload["type"])
	}
	if _, err := time.Parse(time.RFC3339, payload["created"].(string)); err != nil {
		t.Fatalf("created is not ISO-8601: %v", err)
	}
	data, ok := payload["data"].(map[string]any)
	if !ok || data["new_status"] != "paused" {
		t.Fatalf("unexpected data: %v", payload["data"])
	}
}

func TestSenderSignatureUsesWebhookSecret(t *testing.T) {
	var sig string
	var body []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sig = r.Header.Get(signature.Header)
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sender := dispatcher.NewSender(nil, 5*time.Second)
	sender.Send(context.Background(), newTestWebhook(srv.URL), newTestEvent())

	if signature.Verify(body, sig, strings.Repeat("x", 40)) {
		t.Fatal("signature verified with the wrong secret")
	}
}

func TestSenderServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("internal error"))
	}))
	defer srv.Close()

	sender := dispatcher.NewSender(nil, 5*time.Second)
	res := sender.Send(context.Background(), newTestWebhook(srv.URL), newTestEvent())

	if res.OK() {
		t.Fatal("expected failure")
	}
	if res.StatusCode != 500 {
		t.Fatalf("expected 500, got %d", res.StatusCode)
	}

	var derr *dispatcher.DeliveryError
	if !errors.As(res.Err, &derr) {
		t.Fatalf("expected *DeliveryError, got %T", res.Err)
	}
	if derr.StatusCode != 500 || derr.Timeout {
		t.Fatalf("unexpected delivery error: %+v", derr)
	}
	if !strings.Contains(res.Err.Error(), "internal error") {
		t.Fatalf("expected response snippet in error, got %q", res.Err.Error())
	}
}

func TestSenderTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := dispatcher.NewSender(nil, 50*time.Millisecond)
	res := sender.Send(context.Background(), newTestWebhook(srv.URL), newTestEvent())

	if res.StatusCode != 0 {
		t.Fatalf("expected status 0 on timeout, got %d", res.StatusCode)
	}
	var derr *dispatcher.DeliveryError
	if !errors.As(res.Err, &derr) || !derr.Timeout {
		t.Fatalf("expected timeout delivery error, got %v", res.Err)
	}
	if !strings.Contains(res.Err.Error(), "timeout") {
		t.Fatalf("expected error to mention timeout, got %q", res.Err.Error())
	}
}

func TestSenderConnectionRefused(t *testing.T) {
	sender := dispatcher.NewSender(nil, 5*time.Second)
	res := sender.Send(context.Background(), newTestWebhook("http://127.0.0.1:1"), newTestEvent())

	if res.StatusCode != 0 {
		t.Fatalf("expected status 0 on connection refused, got %d", res.StatusCode)
	}
	if res.Err == nil {
		t.Fatal("expected error on connection refused")
	}
}
