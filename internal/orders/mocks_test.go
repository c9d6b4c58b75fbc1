package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
)

// fakeStore is an in-memory Store with the same contract as the Postgres
// repo: server-assigned ids and timestamps, conditional transitions,
// copy-then-delete archival.
type fakeStore struct {
	mu      sync.Mutex
	orders  map[string]*Order
	keys    map[string]string
	history map[string][]*Order

	failWith error // when set, every call fails with this error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:  make(map[string]*Order),
		keys:    make(map[string]string),
		history: make(map[string][]*Order),
	}
}

func (f *fakeStore) Insert(ctx context.Context, o *Order, clientKey string) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if clientKey != "" {
		if _, exists := f.keys[clientKey]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateKey, clientKey)
		}
	}

	o.ID = uuid.NewString()
	o.Status = StatusPending
	o.CreatedAt = time.Now().UTC()
	f.orders[o.ID] = clone(o)
	if clientKey != "" {
		f.keys[clientKey] = o.ID
	}
	return nil
}

func (f *fakeStore) FindByClientKey(ctx context.Context, key string) (*Order, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	id, ok := f.keys[key]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(f.orders[id]), nil
}

func (f *fakeStore) Get(ctx context.Context, id string) (*Order, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	o, ok := f.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(o), nil
}

func (f *fakeStore) ListByStatus(ctx context.Context, s Status) ([]*Order, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*Order
	for _, o := range f.orders {
		if o.Status == s {
			out = append(out, clone(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeStore) Transition(ctx context.Context, id string, from, to Status) (*Order, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	o, ok := f.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	if o.Status != from {
		return nil, fmt.Errorf("%w: %s -> %s (order is %s)", ErrInvalidTransition, from, to, o.Status)
	}
	now := time.Now().UTC()
	o.Status = to
	switch to {
	case StatusAccepted:
		o.AcceptedAt = &now
	case StatusDelivered:
		o.DeliveredAt = &now
	}
	return clone(o), nil
}

func (f *fakeStore) Archive(ctx context.Context, id string) (*Order, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	o, ok := f.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !o.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidState, o.Status)
	}
	date := o.SubmissionDate()
	f.history[date] = append(f.history[date], clone(o))
	delete(f.orders, id)
	return clone(o), nil
}

func (f *fakeStore) History(ctx context.Context, day time.Time) ([]*Order, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*Order
	for _, o := range f.history[day.Format("2006-01-02")] {
		out = append(out, clone(o))
	}
	return out, nil
}

func clone(o *Order) *Order {
	cp := *o
	cp.Items = make(map[string]LineItem, len(o.Items))
	for k, v := range o.Items {
		cp.Items[k] = v
	}
	return &cp
}

// fakePublisher records the envelopes published to one topic.
type fakePublisher struct {
	mu        sync.Mutex
	envelopes []Envelope
}

func (p *fakePublisher) Publish(key, value []byte, headers ...kafkago.Header) {
	var env Envelope
	_ = json.Unmarshal(value, &env)
	p.mu.Lock()
	p.envelopes = append(p.envelopes, env)
	p.mu.Unlock()
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.envelopes)
}

// fakeSink records the live changes a mutation fans out.
type fakeSink struct {
	mu      sync.Mutex
	changes []Change
}

func (s *fakeSink) Publish(ctx context.Context, c Change) error {
	s.mu.Lock()
	s.changes = append(s.changes, c)
	s.mu.Unlock()
	return nil
}

func (s *fakeSink) last() (Change, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.changes) == 0 {
		return Change{}, false
	}
	return s.changes[len(s.changes)-1], true
}
