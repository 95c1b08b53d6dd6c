package httpserver

import (
	"net/http"
	"strings"

	"lv-securities/internal/audit"
	"lv-securities/internal/metrics"

	"github.com/gorilla/websocket"
)

// WSHandler streams audit events (trade executions, settlement
// transitions, order cancellations) to connected clients. Slow clients
// miss events rather than stalling publishers.
type WSHandler struct {
	bus      *audit.Bus
	origin   string
	upgrader websocket.Upgrader
}

func NewWSHandler(bus *audit.Bus, origin string) *WSHandler {
	return &WSHandler{
		bus:    bus,
		origin: origin,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return allowOrigin(r, origin) },
		},
	}
}

func allowOrigin(r *http.Request, origin string) bool {
	if origin == "*" {
		return true
	}
	reqOrigin := r.Header.Get("Origin")
	// Allow both localhost and 127.0.0.1 variants for development
	if strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1") {
		if strings.Contains(reqOrigin, "localhost") || strings.Contains(reqOrigin, "127.0.0.1") {
			return true
		}
	}
	return strings.EqualFold(reqOrigin, origin)
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	metrics.WebSocketClients.Inc()
	defer metrics.WebSocketClients.Dec()

	sub := h.bus.Subscribe()
	defer h.bus.Unsubscribe(sub)

	// Filter by event type: /v1/ws?types=trade_executed,trade_settled
	var want map[string]struct{}
	if raw := r.URL.Query().Get("types"); raw != "" {
		want = make(map[string]struct{})
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				want[t] = struct{}{}
			}
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	for {
		select {
		case evt, ok := <-sub:
			if !ok {
				return
			}
			if want != nil {
				if _, match := want[evt.Type]; !match {
					continue
				}
			}
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
