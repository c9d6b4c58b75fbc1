package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Impact-10/apartmentcafe/internal/menu"
)

// listMenu serves the customer menu: enabled items only, grouped by meal
// slot for display.
func (h *Handler) listMenu(w http.ResponseWriter, r *http.Request) {
	items, err := h.Menu.ListEnabled(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"menu": menu.GroupByMeal(items)})
}

func (h *Handler) listMenuAdmin(w http.ResponseWriter, r *http.Request) {
	items, err := h.Menu.ListAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type toggleMenuReq struct {
	Enabled bool `json:"enabled"`
}

func (h *Handler) toggleMenuItem(w http.ResponseWriter, r *http.Request) {
	var req toggleMenuReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	it, err := h.Menu.SetEnabled(r.Context(), chi.URLParam(r, "id"), req.Enabled)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}
