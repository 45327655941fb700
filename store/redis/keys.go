package redis

// Key prefixes for primary entity storage.
const (
	prefixEvent   = "hub:evt:"
	prefixWebhook = "hub:wh:"
	prefixRecord  = "hub:rec:"
	prefixRetry   = "hub:rty:"
	prefixAgent   = "hub:agent:"
)

// Key prefixes for sorted set indexes.
const (
	zEventAll      = "hub:z:evt:all"
	zEventPending  = "hub:z:evt:pending" // scored by created_at
	zEventClaimed  = "hub:z:evt:claimed" // scored by claimed_at
	zWebhookAll    = "hub:z:wh:all"
	zRecordAll     = "hub:z:rec:all"
	zRecordWebhook = "hub:z:rec:wh:"   // + webhook ID
	zRecordEvent   = "hub:z:rec:evt:"  // + event ID
	zRetryDue      = "hub:z:rty:due"   // scored by due_at
	zRetryLease    = "hub:z:rty:lease" // scored by locked_until
	zAgentAll      = "hub:z:agent:all"
)

// Key prefixes for set indexes.
const (
	sEventStatus = "hub:s:evt:status:" // + status
	sWebhookType = "hub:s:wh:type:"    // + event type
)

// entityKey returns the primary key for an entity.
func entityKey(prefix, id string) string {
	return prefix + id
}

// statusSetKey returns the set key holding event IDs in a status.
func statusSetKey(status string) string {
	return sEventStatus + status
}
