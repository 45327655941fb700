// Package hub fans out domain events to HTTP webhook subscribers.
//
// Producers call Publish to record an event. A dispatcher loop claims
// pending events, resolves the webhooks subscribed to each event type, signs
// the payload with HMAC-SHA256 and POSTs it to every subscriber, recording
// each attempt as an append-only delivery record. Retryable failures are
// re-attempted with exponential backoff.
//
// Key features:
//   - Exact event-type subscription registry
//   - HMAC-SHA256 signed deliveries (X-Webhook-Signature)
//   - Claim/lease processing with a stuck-event sweep
//   - Composable store pattern (Postgres, SQLite, MongoDB, Redis, Memory)
//   - Optional NATS mirror of every published event
//
// Quick start:
//
//	h, err := hub.New(
//	    hub.WithStore(memory.New()),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	h.Start(ctx)
//	defer h.Stop(ctx)
//
//	h.Webhooks().Create(ctx, webhook.Input{
//	    URL:    "https://console.example.com/hooks/agents",
//	    Events: []string{"agent.status.changed"},
//	    Secret: secret,
//	})
//
//	h.Publish(ctx, "agent.status.changed", map[string]any{
//	    "agent_uuid": agentUUID,
//	    "new_status": "paused",
//	})
package hub
