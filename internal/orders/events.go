package orders

import (
	"context"
	"encoding/json"
	"time"
)

const (
	EventOrderCreated   = "OrderCreated"
	EventOrderAccepted  = "OrderAccepted"
	EventOrderDelivered = "OrderDelivered"
	EventOrderArchived  = "OrderArchived"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type OrderCreatedPayload struct {
	OrderID      string              `json:"order_id"`
	CustomerName string              `json:"customer_name"`
	Location     string              `json:"location"`
	Items        map[string]LineItem `json:"items"`
	Total        int                 `json:"total"`
}

type StatusChangedPayload struct {
	OrderID string    `json:"order_id"`
	From    Status    `json:"from"`
	To      Status    `json:"to"`
	At      time.Time `json:"at"`
}

type OrderArchivedPayload struct {
	OrderID        string `json:"order_id"`
	SubmissionDate string `json:"submission_date"`
}

// ChangeKind classifies a live-set mutation for fanout to subscribers.
type ChangeKind string

const (
	ChangeCreated       ChangeKind = "created"
	ChangeStatusChanged ChangeKind = "status_changed"
	ChangeArchived      ChangeKind = "archived"
)

// Change is the unit the live query layer propagates: the full order after
// the mutation plus, for transitions, the status it left. Old-status
// subscribers turn it into a removal, new-status subscribers into an
// addition.
type Change struct {
	Kind       ChangeKind `json:"kind"`
	Order      *Order     `json:"order"`
	PrevStatus Status     `json:"prev_status,omitempty"`
}

// ChangeSink receives every committed mutation of the live order set.
type ChangeSink interface {
	Publish(ctx context.Context, c Change) error
}
