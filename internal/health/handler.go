// Package health serves liveness and readiness probes. Liveness is
// process-local; readiness also pings the database so a node with a
// dead pool drops out of rotation before it serves trading requests.
package health

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"lv-securities/internal/httputil"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Handler struct {
	pool      *pgxpool.Pool
	startedAt time.Time
}

func NewHandler(pool *pgxpool.Pool, startedAt time.Time) *Handler {
	start := startedAt.UTC()
	if start.IsZero() {
		start = time.Now().UTC()
	}
	return &Handler{pool: pool, startedAt: start}
}

type liveResponse struct {
	Status     string `json:"status"`
	Timestamp  string `json:"timestamp"`
	UptimeSec  int64  `json:"uptime_sec"`
	GoVersion  string `json:"go_version"`
	Goroutines int    `json:"goroutines"`
}

type readyResponse struct {
	Status   string  `json:"status"`
	Database dbStats `json:"database"`
}

type dbStats struct {
	Reachable bool   `json:"reachable"`
	PingMs    int64  `json:"ping_ms"`
	Error     string `json:"error,omitempty"`
}

func (h *Handler) uptime(now time.Time) time.Duration {
	uptime := now.Sub(h.startedAt)
	if uptime < 0 {
		return 0
	}
	return uptime
}

// Live handles GET /health.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	httputil.WriteJSON(w, http.StatusOK, liveResponse{
		Status:     "ok",
		Timestamp:  now.Format(time.RFC3339),
		UptimeSec:  int64(h.uptime(now).Seconds()),
		GoVersion:  runtime.Version(),
		Goroutines: runtime.NumGoroutine(),
	})
}

// Ready handles GET /ready.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	db := dbStats{}
	status := http.StatusOK
	resp := readyResponse{Status: "ok"}

	if h.pool != nil {
		start := time.Now()
		pingCtx, cancel := context.WithTimeout(r.Context(), time.Second)
		err := h.pool.Ping(pingCtx)
		cancel()
		db.PingMs = time.Since(start).Milliseconds()
		if err != nil {
			db.Error = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		} else {
			db.Reachable = true
		}
	}
	resp.Database = db
	httputil.WriteJSON(w, status, resp)
}
