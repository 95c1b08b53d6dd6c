package custody

import (
	"net/http"

	"lv-securities/internal/httputil"
)

type Handler struct {
	poller *Poller
}

func NewHandler(poller *Poller) *Handler {
	return &Handler{poller: poller}
}

type pollResponse struct {
	Advanced int `json:"advanced"`
}

// PollSettlements handles POST /v1/internal/settlements/poll: one manual
// sweep of outstanding transfers, same path the background poller takes.
func (h *Handler) PollSettlements(w http.ResponseWriter, r *http.Request) {
	advanced, err := h.poller.PollOnce(r.Context())
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "settlement poll failed"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pollResponse{Advanced: advanced})
}
