package httpserver

import (
	"net/http"

	"lv-securities/internal/custody"
	"lv-securities/internal/execution"
	"lv-securities/internal/health"
	"lv-securities/internal/holdings"
	"lv-securities/internal/metrics"
	"lv-securities/internal/orders"

	"github.com/go-chi/chi/v5"
)

type RouterDeps struct {
	OrderHandler     *orders.Handler
	ExecutionHandler *execution.Handler
	HoldingsHandler  *holdings.Handler
	CustodyHandler   *custody.Handler
	HealthHandler    *health.Handler
	WSHandler        http.Handler
	InternalToken    string
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	// CORS middleware for development
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				origin = "*"
			}
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-User-ID, X-Internal-Token")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	// Security Middleware
	r.Use(SecurityHeaders)
	r.Use(RateLimitMiddleware)

	r.Get("/health", d.HealthHandler.Live)
	r.Get("/ready", d.HealthHandler.Ready)
	r.Handle("/metrics", metrics.Handler())
	r.Route("/v1", func(r chi.Router) {
		r.Get("/ws", d.WSHandler.ServeHTTP)

		r.Post("/orders", d.OrderHandler.Place)
		r.Post("/orders/{orderID}/cancel", d.OrderHandler.Cancel)
		r.Get("/orders/{orderID}", d.OrderHandler.Get)
		r.Get("/users/{userID}/orders", d.OrderHandler.ListByUser)
		r.Get("/users/{userID}/portfolio", d.HoldingsHandler.GetPortfolio)

		r.Get("/trades/{tradeID}", d.ExecutionHandler.GetTrade)
		r.Get("/products/{productID}/trades", d.ExecutionHandler.ListProductTrades)

		r.Group(func(r chi.Router) {
			r.Use(InternalAuth(d.InternalToken))
			r.Post("/internal/products/{productID}/match", d.ExecutionHandler.MatchProduct)
			r.Post("/internal/settlements/poll", d.CustodyHandler.PollSettlements)
		})
	})
	return r
}
