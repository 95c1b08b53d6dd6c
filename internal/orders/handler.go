package orders

import (
	"errors"
	"net/http"
	"time"

	"lv-securities/internal/httputil"
	"lv-securities/internal/model"
	"lv-securities/internal/store"
	"lv-securities/internal/types"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type placeOrderBody struct {
	UserID    string           `json:"user_id"`
	ProductID string           `json:"product_id"`
	Side      string           `json:"side"`
	Kind      string           `json:"kind"`
	Price     *decimal.Decimal `json:"price,omitempty"`
	Qty       decimal.Decimal  `json:"qty"`
	ExpiresAt *time.Time       `json:"expires_at,omitempty"`
}

// Place handles POST /v1/orders. The response carries the order's
// resulting status.
func (h *Handler) Place(w http.ResponseWriter, r *http.Request) {
	var body placeOrderBody
	if err := httputil.DecodeJSON(r, &body); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid request body"})
		return
	}
	order, err := h.svc.PlaceOrder(r.Context(), PlaceOrderRequest{
		UserID:    body.UserID,
		ProductID: body.ProductID,
		Side:      types.OrderSide(body.Side),
		Kind:      types.OrderKind(body.Kind),
		Price:     body.Price,
		Qty:       body.Qty,
		ExpiresAt: body.ExpiresAt,
	})
	if err != nil {
		if errors.Is(err, ErrValidation) {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
			return
		}
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to place order"})
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, order)
}

// Cancel handles POST /v1/orders/{orderID}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "missing X-User-ID"})
		return
	}
	order, err := h.svc.Cancel(r.Context(), userID, orderID)
	switch {
	case err == nil:
		httputil.WriteJSON(w, http.StatusOK, order)
	case errors.Is(err, store.ErrNotFound):
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "order not found"})
	case errors.Is(err, ErrNotOwner):
		httputil.WriteJSON(w, http.StatusForbidden, httputil.ErrorResponse{Error: "not your order"})
	case errors.Is(err, ErrNotCancellable):
		httputil.WriteJSON(w, http.StatusConflict, httputil.ErrorResponse{Error: "order is already closed"})
	default:
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to cancel order"})
	}
}

// Get handles GET /v1/orders/{orderID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	order, err := h.svc.Get(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "order not found"})
			return
		}
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to load order"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, order)
}

// ListByUser handles GET /v1/users/{userID}/orders.
func (h *Handler) ListByUser(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.ListByUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to list orders"})
		return
	}
	if orders == nil {
		orders = []model.Order{}
	}
	httputil.WriteJSON(w, http.StatusOK, orders)
}
