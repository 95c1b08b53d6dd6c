package execution

import (
	"errors"
	"net/http"
	"strconv"

	"lv-securities/internal/httputil"
	"lv-securities/internal/matching"
	"lv-securities/internal/model"
	"lv-securities/internal/store"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	matcher     *matching.Matcher
	coordinator *Coordinator
	db          store.DB
}

func NewHandler(matcher *matching.Matcher, coordinator *Coordinator, db store.DB) *Handler {
	return &Handler{matcher: matcher, coordinator: coordinator, db: db}
}

type matchResponse struct {
	ProductID string        `json:"product_id"`
	Proposed  int           `json:"proposed"`
	Executed  int           `json:"executed"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Trades    []model.Trade `json:"trades"`
}

// MatchProduct handles POST /v1/internal/products/{productID}/match: one
// matching pass followed by execution of every proposal. Individual
// trade failures do not fail the request.
func (h *Handler) MatchProduct(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")
	matches, err := h.matcher.ProposeMatches(r.Context(), productID)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "matching pass failed"})
		return
	}
	results := h.coordinator.ProcessMatches(r.Context(), matches)

	resp := matchResponse{ProductID: productID, Proposed: len(matches), Trades: []model.Trade{}}
	for _, res := range results {
		switch {
		case res.Skipped:
			resp.Skipped++
		case res.Err != nil:
			resp.Failed++
		default:
			resp.Executed++
			resp.Trades = append(resp.Trades, res.Trade)
		}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// GetTrade handles GET /v1/trades/{tradeID}.
func (h *Handler) GetTrade(w http.ResponseWriter, r *http.Request) {
	var trade model.Trade
	err := h.db.View(r.Context(), func(tx store.Tx) error {
		var err error
		trade, err = tx.GetTrade(r.Context(), chi.URLParam(r, "tradeID"))
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "trade not found"})
			return
		}
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to load trade"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, trade)
}

// ListProductTrades handles GET /v1/products/{productID}/trades.
func (h *Handler) ListProductTrades(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid limit"})
			return
		}
		limit = n
	}
	var trades []model.Trade
	err := h.db.View(r.Context(), func(tx store.Tx) error {
		var err error
		trades, err = tx.ListTradesByProduct(r.Context(), chi.URLParam(r, "productID"), limit)
		return err
	})
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to list trades"})
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}
	httputil.WriteJSON(w, http.StatusOK, trades)
}
