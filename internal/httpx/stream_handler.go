package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Impact-10/apartmentcafe/internal/live"
	"github.com/Impact-10/apartmentcafe/internal/orders"
)

const keepaliveInterval = 30 * time.Second

// streamOrder is the customer tracker feed: one order by id. The client
// re-subscribes across visits using its stored tracking handle; a removed
// event tells it the order left the live set.
func (h *Handler) streamOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing id"})
		return
	}

	sub := h.Hub.Subscribe(live.ByOrder(id))
	defer sub.Unsubscribe()

	flusher := beginStream(w)

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	o, err := h.Orders.Get(ctx, id)
	cancel()
	switch {
	case errors.Is(err, orders.ErrNotFound):
		// Already archived (or never existed): tell the client to drop its
		// tracking handle and end the stream.
		sendEvent(w, flusher, live.Event{Type: live.EventRemoved})
		return
	case err != nil:
		sendEvent(w, flusher, live.Event{Type: live.EventError, Err: err.Error()})
		return
	default:
		sendEvent(w, flusher, live.Event{Type: live.EventAdded, Order: o})
	}

	h.streamLoop(w, r, flusher, sub)
}

// streamOrders is the admin dashboard feed: every order in one status.
func (h *Handler) streamOrders(w http.ResponseWriter, r *http.Request) {
	status := orders.Status(r.URL.Query().Get("status"))
	if status == "" {
		status = orders.StatusPending
	}
	if !status.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status"})
		return
	}

	// Register before the snapshot read so no change is missed; a change that
	// lands in between may show up twice, which at-least-once delivery allows.
	sub := h.Hub.Subscribe(live.ByStatus(status))
	defer sub.Unsubscribe()

	flusher := beginStream(w)

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	snapshot, err := h.Orders.ListByStatus(ctx, status)
	cancel()
	if err != nil {
		sendEvent(w, flusher, live.Event{Type: live.EventError, Err: err.Error()})
		return
	}
	sendNamed(w, flusher, "snapshot", snapshot)

	h.streamLoop(w, r, flusher, sub)
}

func (h *Handler) streamLoop(w http.ResponseWriter, r *http.Request, flusher http.Flusher, sub *live.Subscription) {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			sendEvent(w, flusher, ev)
			if ev.Type == live.EventError {
				// Terminal: the caller must re-establish the subscription.
				return
			}
		}
	}
}

func beginStream(w http.ResponseWriter) http.Flusher {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	fmt.Fprintf(w, ": connected\n\n")
	fmt.Fprintf(w, "retry: 2000\n\n")

	flusher, ok := w.(http.Flusher)
	if !ok {
		flusher = noopFlusher{}
	}
	flusher.Flush()
	return flusher
}

func sendEvent(w http.ResponseWriter, flusher http.Flusher, ev live.Event) {
	sendNamed(w, flusher, "order", ev)
}

func sendNamed(w http.ResponseWriter, flusher http.Flusher, name string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\n", name)
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}

type noopFlusher struct{}

func (noopFlusher) Flush() {}
