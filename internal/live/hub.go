package live

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/Impact-10/apartmentcafe/internal/orders"
)

type EventType string

const (
	EventAdded   EventType = "added"
	EventUpdated EventType = "updated"
	EventRemoved EventType = "removed"
	EventError   EventType = "error"
)

// Event is one live-query notification. Removed events carry the order as it
// was when it left the subscriber's result set.
type Event struct {
	Type  EventType     `json:"type"`
	Order *orders.Order `json:"order,omitempty"`
	Err   string        `json:"error,omitempty"`
}

// Filter selects either a single order by id (customer tracker) or every
// order in one status (admin dashboard).
type Filter struct {
	OrderID string
	Status  orders.Status
}

func ByOrder(id string) Filter        { return Filter{OrderID: id} }
func ByStatus(s orders.Status) Filter { return Filter{Status: s} }

func (f Filter) matchesOrder(o *orders.Order) bool {
	if f.OrderID != "" {
		return o.ID == f.OrderID
	}
	return o.Status == f.Status
}

func (f Filter) matchesStatus(s orders.Status) bool {
	return f.OrderID == "" && f.Status == s
}

const subscriberBuffer = 64

// Subscription is one registration with the hub. Events stop after
// Unsubscribe returns; Unsubscribe is idempotent and releases exactly this
// registration.
type Subscription struct {
	id     string
	filter Filter
	ch     chan Event
	hub    *Hub
	once   sync.Once
}

func (s *Subscription) Events() <-chan Event { return s.ch }

func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.hub.remove(s.id)
		close(s.ch)
	})
}

// Hub is the in-process subscriber registry of the live query layer. Each
// Subscribe call owns its own registration; a mutation broadcast fans out to
// every subscriber whose filter matched the order before or after the change.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{subs: make(map[string]*Subscription), logger: logger}
}

func (h *Hub) Subscribe(f Filter) *Subscription {
	sub := &Subscription{
		id:     uuid.NewString(),
		filter: f,
		ch:     make(chan Event, subscriberBuffer),
		hub:    h,
	}
	h.mu.Lock()
	h.subs[sub.id] = sub
	h.mu.Unlock()
	return sub
}

// remove waits for in-flight broadcasts to drain (they hold the read lock),
// so closing the channel afterwards is safe.
func (h *Hub) remove(id string) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

// Broadcast fans one committed mutation out to all matching subscribers.
// Old-status subscribers see a removal, new-status subscribers an addition,
// single-order subscribers an update. Slow subscribers drop events rather
// than stall the hub; a snapshot re-read recovers them.
func (h *Hub) Broadcast(c orders.Change) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		ev, ok := eventFor(sub.filter, c)
		if !ok {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			h.logger.Warn("subscriber buffer full, dropping event",
				"subscriber_id", sub.id, "order_id", c.Order.ID)
		}
	}
}

// Fail delivers a terminal error event to every subscriber. The streams are
// considered ended; callers must re-subscribe.
func (h *Hub) Fail(err error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		select {
		case sub.ch <- Event{Type: EventError, Err: err.Error()}:
		default:
		}
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func eventFor(f Filter, c orders.Change) (Event, bool) {
	o := c.Order
	switch c.Kind {
	case orders.ChangeCreated:
		if f.matchesOrder(o) {
			return Event{Type: EventAdded, Order: o}, true
		}
	case orders.ChangeStatusChanged:
		if f.OrderID != "" {
			if f.OrderID == o.ID {
				return Event{Type: EventUpdated, Order: o}, true
			}
			return Event{}, false
		}
		if f.matchesStatus(o.Status) {
			return Event{Type: EventAdded, Order: o}, true
		}
		if f.matchesStatus(c.PrevStatus) {
			return Event{Type: EventRemoved, Order: o}, true
		}
	case orders.ChangeArchived:
		if f.OrderID == o.ID || f.matchesStatus(o.Status) || f.matchesStatus(c.PrevStatus) {
			return Event{Type: EventRemoved, Order: o}, true
		}
	}
	return Event{}, false
}
