package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Impact-10/apartmentcafe/internal/live"
	"github.com/Impact-10/apartmentcafe/internal/orders"
)

type sseEvent struct {
	name string
	data string
}

func parseSSE(t *testing.T, body string) []sseEvent {
	t.Helper()
	var out []sseEvent
	var cur sseEvent
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
			out = append(out, cur)
			cur = sseEvent{}
		}
	}
	return out
}

func orderEvents(t *testing.T, body string) []live.Event {
	t.Helper()
	var out []live.Event
	for _, raw := range parseSSE(t, body) {
		if raw.name != "order" {
			continue
		}
		var ev live.Event
		if err := json.Unmarshal([]byte(raw.data), &ev); err != nil {
			t.Fatalf("bad event payload %q: %v", raw.data, err)
		}
		out = append(out, ev)
	}
	return out
}

func waitForSubscribers(t *testing.T, hub *live.Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Len() < n {
		if time.Now().After(deadline) {
			t.Fatalf("hub never reached %d subscribers", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStreamOrderLifecycle(t *testing.T) {
	o := sampleOrder()
	fo := &fakeOrders{order: o}
	r, hub, _ := newTestEnv(t, fo, &fakeCatalog{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/orders/"+o.ID+"/stream", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.ServeHTTP(w, req)
	}()

	waitForSubscribers(t, hub, 1)

	up := *o
	up.Status = orders.StatusAccepted
	hub.Broadcast(orders.Change{
		Kind:       orders.ChangeStatusChanged,
		Order:      &up,
		PrevStatus: orders.StatusPending,
	})

	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
	if !strings.Contains(w.Body.String(), "retry: 2000") {
		t.Error("stream must advertise a retry interval")
	}

	events := orderEvents(t, w.Body.String())
	if len(events) != 2 {
		t.Fatalf("got %d order events, want snapshot + update; body:\n%s", len(events), w.Body)
	}
	if events[0].Type != live.EventAdded || events[0].Order.Status != orders.StatusPending {
		t.Errorf("first event = %+v, want added pending snapshot", events[0])
	}
	if events[1].Type != live.EventUpdated || events[1].Order.Status != orders.StatusAccepted {
		t.Errorf("second event = %+v, want updated accepted", events[1])
	}
}

func TestStreamOrderAlreadyArchived(t *testing.T) {
	fo := &fakeOrders{err: orders.ErrNotFound}
	r, _, _ := newTestEnv(t, fo, &fakeCatalog{})

	w := doJSON(t, r, http.MethodGet, "/api/orders/gone/stream", "", nil)

	events := orderEvents(t, w.Body.String())
	if len(events) != 1 || events[0].Type != live.EventRemoved {
		t.Fatalf("events = %+v, want a single removed event", events)
	}
}

func TestStreamOrdersSnapshotAndChange(t *testing.T) {
	o := sampleOrder()
	fo := &fakeOrders{list: []*orders.Order{o}}
	r, hub, admin := newTestEnv(t, fo, &fakeCatalog{})

	// EventSource cannot set headers; the token rides the query string.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet,
		"/api/admin/orders/stream?status=pending&access_token="+adminToken(t, admin), nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.ServeHTTP(w, req)
	}()

	waitForSubscribers(t, hub, 1)

	fresh := sampleOrder()
	fresh.ID = "8c9e2f1a-0000-0000-0000-000000000002"
	hub.Broadcast(orders.Change{Kind: orders.ChangeCreated, Order: fresh})

	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	var snapshot []*orders.Order
	for _, raw := range parseSSE(t, w.Body.String()) {
		if raw.name == "snapshot" {
			if err := json.Unmarshal([]byte(raw.data), &snapshot); err != nil {
				t.Fatal(err)
			}
		}
	}
	if len(snapshot) != 1 || snapshot[0].ID != o.ID {
		t.Errorf("snapshot = %+v, want the one pending order", snapshot)
	}

	events := orderEvents(t, w.Body.String())
	if len(events) != 1 || events[0].Type != live.EventAdded || events[0].Order.ID != fresh.ID {
		t.Errorf("events = %+v, want added %s", events, fresh.ID)
	}
}

func TestStreamOrdersRejectsUnknownStatus(t *testing.T) {
	r, _, admin := newTestEnv(t, &fakeOrders{}, &fakeCatalog{})

	w := doJSON(t, r, http.MethodGet,
		"/api/admin/orders/stream?status=completed&access_token="+adminToken(t, admin), "", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestStreamOrdersRequiresToken(t *testing.T) {
	r, _, _ := newTestEnv(t, &fakeOrders{}, &fakeCatalog{})

	w := doJSON(t, r, http.MethodGet, "/api/admin/orders/stream", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}
