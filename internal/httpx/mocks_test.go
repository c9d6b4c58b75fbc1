package httpx

import (
	"context"
	"sync"
	"time"

	"github.com/Impact-10/apartmentcafe/internal/menu"
	"github.com/Impact-10/apartmentcafe/internal/orders"
)

// fakeOrders returns canned results and records what it was asked for.
type fakeOrders struct {
	mu sync.Mutex

	err     error
	order   *orders.Order
	existed bool
	list    []*orders.Order
	history []*orders.Order

	lastInput  orders.CreateInput
	lastID     string
	lastStatus orders.Status
	lastDay    time.Time
}

func (f *fakeOrders) Create(ctx context.Context, in orders.CreateInput, traceID string) (*orders.Order, bool, error) {
	f.mu.Lock()
	f.lastInput = in
	f.mu.Unlock()
	if f.err != nil {
		return nil, false, f.err
	}
	return f.order, f.existed, nil
}

func (f *fakeOrders) Transition(ctx context.Context, id string, next orders.Status, traceID string) (*orders.Order, error) {
	f.mu.Lock()
	f.lastID, f.lastStatus = id, next
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.order, nil
}

func (f *fakeOrders) Archive(ctx context.Context, id string, traceID string) (*orders.Order, error) {
	f.mu.Lock()
	f.lastID = id
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.order, nil
}

func (f *fakeOrders) Get(ctx context.Context, id string) (*orders.Order, error) {
	f.mu.Lock()
	f.lastID = id
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.order, nil
}

func (f *fakeOrders) ListByStatus(ctx context.Context, status orders.Status) ([]*orders.Order, error) {
	f.mu.Lock()
	f.lastStatus = status
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.list, nil
}

func (f *fakeOrders) History(ctx context.Context, day time.Time) ([]*orders.Order, error) {
	f.mu.Lock()
	f.lastDay = day
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.history, nil
}

type fakeCatalog struct {
	items []menu.Item
	err   error
}

func (f *fakeCatalog) ListAll(ctx context.Context) ([]menu.Item, error) {
	return f.items, f.err
}

func (f *fakeCatalog) ListEnabled(ctx context.Context) ([]menu.Item, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []menu.Item
	for _, it := range f.items {
		if it.Enabled {
			out = append(out, it)
		}
	}
	return out, nil
}

func (f *fakeCatalog) Get(ctx context.Context, id string) (*menu.Item, error) {
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.items {
		if f.items[i].ID == id {
			return &f.items[i], nil
		}
	}
	return nil, menu.ErrNotFound
}

func (f *fakeCatalog) SetEnabled(ctx context.Context, id string, enabled bool) (*menu.Item, error) {
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.items {
		if f.items[i].ID == id {
			f.items[i].Enabled = enabled
			return &f.items[i], nil
		}
	}
	return nil, menu.ErrNotFound
}
