package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Impact-10/apartmentcafe/internal/auth"
	"github.com/Impact-10/apartmentcafe/internal/live"
	"github.com/Impact-10/apartmentcafe/internal/menu"
	"github.com/Impact-10/apartmentcafe/internal/orders"
)

// OrderService is what the HTTP layer needs from the order core.
type OrderService interface {
	Create(ctx context.Context, in orders.CreateInput, traceID string) (*orders.Order, bool, error)
	Transition(ctx context.Context, id string, next orders.Status, traceID string) (*orders.Order, error)
	Archive(ctx context.Context, id string, traceID string) (*orders.Order, error)
	Get(ctx context.Context, id string) (*orders.Order, error)
	ListByStatus(ctx context.Context, status orders.Status) ([]*orders.Order, error)
	History(ctx context.Context, day time.Time) ([]*orders.Order, error)
}

type Handler struct {
	Orders OrderService
	Menu   menu.Catalog
	Hub    *live.Hub
	Admin  *auth.Admin
	Logger *slog.Logger
}

type CreateOrderResp struct {
	OrderID    string `json:"order_id"`
	Total      int    `json:"total"`
	Idempotent bool   `json:"idempotent"`
}

func (h *Handler) Register(r *chi.Mux) {
	r.Route("/api", func(api chi.Router) {
		api.Group(func(g chi.Router) {
			g.Use(middleware.Timeout(15 * time.Second))

			g.Post("/orders", h.createOrder)
			g.Get("/orders/{id}", h.getOrder)
			g.Get("/menu", h.listMenu)
			g.Post("/admin/login", h.adminLogin)

			g.Group(func(ad chi.Router) {
				ad.Use(h.Admin.RequireAdmin)
				ad.Get("/admin/orders", h.listOrders)
				ad.Post("/admin/orders/{id}/accept", h.acceptOrder)
				ad.Post("/admin/orders/{id}/deliver", h.deliverOrder)
				ad.Post("/admin/orders/{id}/archive", h.archiveOrder)
				ad.Get("/admin/history", h.listHistory)
				ad.Get("/admin/menu", h.listMenuAdmin)
				ad.Patch("/admin/menu/{id}", h.toggleMenuItem)
			})
		})

		// Streams stay outside the timeout middleware; they are long-lived.
		api.Get("/orders/{id}/stream", h.streamOrder)
		api.Group(func(st chi.Router) {
			st.Use(h.Admin.RequireAdmin)
			st.Get("/admin/orders/stream", h.streamOrders)
		})
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var code int
	switch {
	case errors.Is(err, orders.ErrValidation), errors.Is(err, orders.ErrInvalidStatus):
		code = http.StatusBadRequest
	case errors.Is(err, orders.ErrInvalidTransition), errors.Is(err, orders.ErrInvalidState):
		code = http.StatusConflict
	case errors.Is(err, orders.ErrNotFound), errors.Is(err, menu.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, auth.ErrInvalidCredentials):
		code = http.StatusUnauthorized
	default:
		// Transport failure; the caller decides whether to retry.
		code = http.StatusBadGateway
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var in orders.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		in.ClientKey = key
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, existed, err := h.Orders.Create(ctx, in, middleware.GetReqID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, CreateOrderResp{OrderID: o.ID, Total: o.Total, Idempotent: existed})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Orders.Get(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	status := orders.Status(r.URL.Query().Get("status"))
	if status == "" {
		status = orders.StatusPending
	}

	out, err := h.Orders.ListByStatus(r.Context(), status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": out})
}

func (h *Handler) acceptOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, orders.StatusAccepted)
}

func (h *Handler) deliverOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, orders.StatusDelivered)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, next orders.Status) {
	id := chi.URLParam(r, "id")
	o, err := h.Orders.Transition(r.Context(), id, next, middleware.GetReqID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) archiveOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	o, err := h.Orders.Archive(r.Context(), id, middleware.GetReqID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"order_id":        o.ID,
		"submission_date": o.SubmissionDate(),
	})
}

func (h *Handler) listHistory(w http.ResponseWriter, r *http.Request) {
	day := time.Now().UTC()
	if v := r.URL.Query().Get("date"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "date must be YYYY-MM-DD"})
			return
		}
		day = parsed
	}

	out, err := h.Orders.History(r.Context(), day)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":   day.Format("2006-01-02"),
		"orders": out,
	})
}
