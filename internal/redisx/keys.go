package redisx

import "time"

const (
	// Idempotency for order creation: idem:order:create:{client_key} -> order_id
	KeyIdemOrderCreate = "idem:order:create:%s"

	// Cache of an order's current status: order_status:{order_id} -> JSON
	KeyOrderStatus = "order_status:%s"

	// Dedup of event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

// ChannelOrderEvents is the pub/sub channel carrying live order events to
// every API instance.
const ChannelOrderEvents = "live:orders"

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
