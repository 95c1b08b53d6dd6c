package holdings

import (
	"net/http"

	"lv-securities/internal/httputil"
	"lv-securities/internal/model"
	"lv-securities/internal/store"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	projector *Projector
	db        store.DB
}

func NewHandler(projector *Projector, db store.DB) *Handler {
	return &Handler{projector: projector, db: db}
}

// GetPortfolio handles GET /v1/users/{userID}/portfolio.
func (h *Handler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var portfolio model.Portfolio
	err := h.db.View(r.Context(), func(tx store.Tx) error {
		var err error
		portfolio, err = h.projector.Portfolio(r.Context(), tx, userID)
		return err
	})
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to load portfolio"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, portfolio)
}
