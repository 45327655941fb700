package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/arelis/hub"
	"github.com/arelis/hub/agent"
	"github.com/arelis/hub/api"
	"github.com/arelis/hub/ratelimit"
	"github.com/arelis/hub/signature"
	"github.com/arelis/hub/store/memory"
)

const (
	testSecret = "0123456789abcdef0123456789abcdef"
	agentUUID  = "8f14e45f-ceea-4e7a-9f5b-6c1d2a3b4c5d"
)

type fixture struct {
	srv *httptest.Server
	hub *hub.Hub
}

// testServer creates a Handler backed by a memory store and returns the test server.
func testServer(t *testing.T, limiter *ratelimit.Limiter) *fixture {
	t.Helper()

	h, err := hub.New(hub.WithStore(memory.New()), hub.WithMaxAttempts(1))
	if err != nil {
		t.Fatal(err)
	}
	if err := h.Agents().Register(context.Background(), &agent.Agent{
		UUID:          agentUUID,
		Name:          "support-bot",
		CustomerID:    "cus_1",
		MaxExecutions: 3,
	}); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(api.NewHandler(h, nil, limiter, slog.Default()))
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, hub: h}
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var b []byte
	if body != nil {
		var err error
		if b, err = json.Marshal(body); err != nil {
			t.Fatalf("marshal: %v", err)
		}
	}
	return doRaw(t, method, url, b, nil)
}

func doRaw(t *testing.T, method, url string, body []byte, header http.Header) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, url, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details []struct {
			Field   string `json:"field"`
			Message string `json:"message"`
		} `json:"details"`
	} `json:"error"`
}

func expectError(t *testing.T, resp *http.Response, status int, code string) errorEnvelope {
	t.Helper()
	if resp.StatusCode != status {
		resp.Body.Close()
		t.Fatalf("expected %d, got %d", status, resp.StatusCode)
	}
	var env errorEnvelope
	decodeBody(t, resp, &env)
	if env.Error.Code != code {
		t.Fatalf("expected error code %q, got %+v", code, env.Error)
	}
	if env.Error.Message == "" {
		t.Fatal("expected an error message")
	}
	return env
}

func createWebhook(t *testing.T, f *fixture, url string, events ...string) string {
	t.Helper()
	resp := doJSON(t, "POST", f.srv.URL+"/webhooks", map[string]any{
		"url":    url,
		"events": events,
		"secret": testSecret,
	})
	if resp.StatusCode != http.StatusCreated {
		resp.Body.Close()
		t.Fatalf("create webhook: expected 201, got %d", resp.StatusCode)
	}
	var wh map[string]any
	decodeBody(t, resp, &wh)
	return wh["id"].(string)
}

// --- Webhooks ---

func TestWebhooks_CRUD(t *testing.T) {
	f := testServer(t, nil)

	resp := doJSON(t, "POST", f.srv.URL+"/webhooks", map[string]any{
		"url":         "https://example.com/hook",
		"events":      []string{"agent.status.changed"},
		"secret":      testSecret,
		"description": "console",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", resp.StatusCode)
	}
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if strings.Contains(string(raw), testSecret) {
		t.Fatalf("secret leaked in create response: %s", raw)
	}
	var wh map[string]any
	if err := json.Unmarshal(raw, &wh); err != nil {
		t.Fatal(err)
	}
	whID, _ := wh["id"].(string)
	if !strings.HasPrefix(whID, "whk_") {
		t.Fatalf("expected whk_ id, got %v", wh["id"])
	}

	// List
	resp = doJSON(t, "GET", f.srv.URL+"/webhooks", nil)
	var list []map[string]any
	decodeBody(t, resp, &list)
	if len(list) != 1 {
		t.Fatalf("expected 1 webhook, got %d", len(list))
	}

	// Get
	resp = doJSON(t, "GET", f.srv.URL+"/webhooks/"+whID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Delete
	resp = doJSON(t, "DELETE", f.srv.URL+"/webhooks/"+whID, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	expectError(t, doJSON(t, "GET", f.srv.URL+"/webhooks/"+whID, nil), http.StatusNotFound, hub.CodeNotFound)
	expectError(t, doJSON(t, "DELETE", f.srv.URL+"/webhooks/"+whID, nil), http.StatusNotFound, hub.CodeNotFound)
}

func TestWebhooks_ValidationEnvelope(t *testing.T) {
	f := testServer(t, nil)

	resp := doJSON(t, "POST", f.srv.URL+"/webhooks", map[string]any{
		"url":    "https://example.com/hook",
		"secret": "too-short",
	})
	env := expectError(t, resp, http.StatusBadRequest, hub.CodeValidation)

	fields := map[string]bool{}
	for _, d := range env.Error.Details {
		fields[d.Field] = true
	}
	if !fields["events"] || !fields["secret"] {
		t.Fatalf("expected events and secret details, got %+v", env.Error.Details)
	}
}

func TestWebhooks_BadInput(t *testing.T) {
	f := testServer(t, nil)

	expectError(t, doRaw(t, "POST", f.srv.URL+"/webhooks", []byte("{not json"), nil),
		http.StatusBadRequest, hub.CodeValidation)
	expectError(t, doJSON(t, "GET", f.srv.URL+"/webhooks/not-an-id", nil),
		http.StatusBadRequest, hub.CodeValidation)
	expectError(t, doJSON(t, "GET", f.srv.URL+"/webhooks/evt_01h455vb4pex5vsknk084sn02q", nil),
		http.StatusBadRequest, hub.CodeValidation)
}

// --- Events & deliveries ---

func TestEvents_PublishDispatchAndQuery(t *testing.T) {
	f := testServer(t, nil)

	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()
	whID := createWebhook(t, f, target.URL, "agent.created")

	resp := doJSON(t, "POST", f.srv.URL+"/events", map[string]any{
		"type": "agent.created",
		"data": map[string]any{"agent_uuid": agentUUID},
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("publish: expected 202, got %d", resp.StatusCode)
	}
	var evt map[string]any
	decodeBody(t, resp, &evt)
	evtID, _ := evt["id"].(string)
	if !strings.HasPrefix(evtID, "evt_") || evt["status"] != "pending" {
		t.Fatalf("unexpected event: %v", evt)
	}

	if _, err := f.hub.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}

	resp = doJSON(t, "GET", f.srv.URL+"/events/"+evtID, nil)
	decodeBody(t, resp, &evt)
	if evt["status"] != "processed" {
		t.Fatalf("expected processed, got %v", evt["status"])
	}

	var records []map[string]any
	resp = doJSON(t, "GET", f.srv.URL+"/events/"+evtID+"/deliveries", nil)
	decodeBody(t, resp, &records)
	if len(records) != 1 || records[0]["status"] != "delivered" || records[0]["webhook_id"] != whID {
		t.Fatalf("unexpected event deliveries: %v", records)
	}

	resp = doJSON(t, "GET", f.srv.URL+"/webhooks/"+whID+"/deliveries?status=failed", nil)
	decodeBody(t, resp, &records)
	if len(records) != 0 {
		t.Fatalf("expected no failed deliveries, got %v", records)
	}

	expectError(t, doJSON(t, "GET", f.srv.URL+"/webhooks/"+whID+"/deliveries?status=bogus", nil),
		http.StatusBadRequest, hub.CodeValidation)
	expectError(t, doJSON(t, "GET", f.srv.URL+"/events/evt_01h455vb4pex5vsknk084sn02q/deliveries", nil),
		http.StatusNotFound, hub.CodeNotFound)
}

func TestEvents_ValidationAndFilters(t *testing.T) {
	f := testServer(t, nil)

	expectError(t, doJSON(t, "POST", f.srv.URL+"/events", map[string]any{"type": "  "}),
		http.StatusBadRequest, hub.CodeValidation)

	for _, typ := range []string{"a.one", "a.two", "a.one"} {
		resp := doJSON(t, "POST", f.srv.URL+"/events", map[string]any{"type": typ})
		resp.Body.Close()
	}

	var list []map[string]any
	decodeBody(t, doJSON(t, "GET", f.srv.URL+"/events?type=a.one&status=pending", nil), &list)
	if len(list) != 2 {
		t.Fatalf("expected 2 pending a.one events, got %d", len(list))
	}

	expectError(t, doJSON(t, "GET", f.srv.URL+"/events?status=done", nil),
		http.StatusBadRequest, hub.CodeValidation)
}

// --- Inbound ---

func TestReceive(t *testing.T) {
	f := testServer(t, nil)
	whID := createWebhook(t, f, "https://example.com/hook", "agent.status.changed")

	body, _ := json.Marshal(map[string]any{
		"id":      "evt_remote",
		"type":    "agent.status.changed",
		"created": time.Now().UTC().Format(time.RFC3339),
		"data": map[string]any{
			"agent_uuid":      agentUUID,
			"previous_status": "active",
			"new_status":      "stopped",
		},
	})
	url := f.srv.URL + "/webhooks/receive/" + whID

	t.Run("missing signature", func(t *testing.T) {
		expectError(t, doRaw(t, "POST", url, body, nil), http.StatusBadRequest, hub.CodeMissingSignature)
	})

	t.Run("bad signature", func(t *testing.T) {
		h := http.Header{signature.Header: {signature.Sign(body, strings.Repeat("x", 32))}}
		expectError(t, doRaw(t, "POST", url, body, h), http.StatusUnauthorized, hub.CodeUnauthorized)

		a, _ := f.hub.Agents().Get(context.Background(), agentUUID)
		if a.Status != agent.StatusActive {
			t.Fatalf("rejected payload mutated the agent: %s", a.Status)
		}
	})

	t.Run("unknown webhook", func(t *testing.T) {
		h := http.Header{signature.Header: {signature.Sign(body, testSecret)}}
		expectError(t, doRaw(t, "POST", f.srv.URL+"/webhooks/receive/whk_01h455vb4pex5vsknk084sn02q", body, h),
			http.StatusNotFound, hub.CodeNotFound)
	})

	t.Run("applied", func(t *testing.T) {
		h := http.Header{signature.Header: {signature.Sign(body, testSecret)}}
		resp := doRaw(t, "POST", url, body, h)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		var res map[string]any
		decodeBody(t, resp, &res)
		if res["handled"] != true {
			t.Fatalf("expected handled result, got %v", res)
		}

		a, _ := f.hub.Agents().Get(context.Background(), agentUUID)
		if a.Status != agent.StatusStopped {
			t.Fatalf("expected stopped, got %s", a.Status)
		}
	})
}

// --- Agents ---

func TestAgents(t *testing.T) {
	f := testServer(t, nil)

	var page map[string]any
	decodeBody(t, doJSON(t, "GET", f.srv.URL+"/agents?status=active&customer_id=cus_1&page=1&per_page=10", nil), &page)
	if page["total"] != float64(1) || page["per_page"] != float64(10) {
		t.Fatalf("unexpected page: %v", page)
	}

	resp := doJSON(t, "PATCH", f.srv.URL+"/agents/"+agentUUID+"/status", map[string]any{"status": "paused"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch: expected 200, got %d", resp.StatusCode)
	}
	var a map[string]any
	decodeBody(t, resp, &a)
	if a["status"] != "paused" {
		t.Fatalf("expected paused, got %v", a["status"])
	}

	var events []map[string]any
	decodeBody(t, doJSON(t, "GET", f.srv.URL+"/events?type=agent.status.changed", nil), &events)
	if len(events) != 1 {
		t.Fatalf("expected 1 status change event, got %d", len(events))
	}
	data, _ := events[0]["data"].(map[string]any)
	if data["previous_status"] != "active" || data["new_status"] != "paused" {
		t.Fatalf("unexpected event data: %v", data)
	}

	var m map[string]any
	decodeBody(t, doJSON(t, "GET", f.srv.URL+"/agents/"+agentUUID+"/metrics", nil), &m)
	if m["max_executions"] != float64(3) {
		t.Fatalf("unexpected metrics: %v", m)
	}

	expectError(t, doJSON(t, "PATCH", f.srv.URL+"/agents/"+agentUUID+"/status", map[string]any{"status": "asleep"}),
		http.StatusBadRequest, hub.CodeValidation)
	expectError(t, doJSON(t, "GET", f.srv.URL+"/agents/c9f0f895-fb98-4b91-8e7e-2a3b4c5d6e7f", nil),
		http.StatusNotFound, hub.CodeNotFound)
}

// --- Stats ---

func TestStats(t *testing.T) {
	f := testServer(t, nil)

	resp := doJSON(t, "POST", f.srv.URL+"/events", map[string]any{"type": "a.one"})
	resp.Body.Close()

	var stats api.StatsResponse
	decodeBody(t, doJSON(t, "GET", f.srv.URL+"/stats", nil), &stats)
	if stats.Pending != 1 || stats.Processed != 0 || stats.RetryQueue != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

// --- Middleware ---

func TestRequestID(t *testing.T) {
	f := testServer(t, nil)

	resp := doJSON(t, "GET", f.srv.URL+"/stats", nil)
	resp.Body.Close()
	if resp.Header.Get(api.RequestIDHeader) == "" {
		t.Fatal("expected a generated request id")
	}

	resp = doRaw(t, "GET", f.srv.URL+"/stats", nil, http.Header{api.RequestIDHeader: {"req-123"}})
	resp.Body.Close()
	if got := resp.Header.Get(api.RequestIDHeader); got != "req-123" {
		t.Fatalf("expected request id echoed, got %q", got)
	}
}

func TestRateLimit(t *testing.T) {
	f := testServer(t, ratelimit.New(2, time.Minute))

	for i := range 2 {
		resp := doJSON(t, "GET", f.srv.URL+"/stats", nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, resp.StatusCode)
		}
	}

	resp := doJSON(t, "GET", f.srv.URL+"/stats", nil)
	if resp.Header.Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
	expectError(t, resp, http.StatusTooManyRequests, hub.CodeRateLimited)
}
