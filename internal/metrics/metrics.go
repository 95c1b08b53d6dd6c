// Package metrics provides Prometheus instrumentation for the matching
// and settlement engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// MatchesProposed counts matches produced by the order book matcher.
	MatchesProposed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trading_matches_proposed_total",
		Help: "Matches proposed by the order book matcher",
	}, []string{"product_id"})

	// MatchPassDuration tracks the duration of one matching pass.
	MatchPassDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trading_match_pass_duration_seconds",
		Help:    "Duration of one matching pass over a product's book",
		Buckets: prometheus.DefBuckets,
	}, []string{"product_id"})

	// TradesExecuted counts trades committed by the coordinator.
	TradesExecuted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trading_trades_executed_total",
		Help: "Trades committed by the execution coordinator",
	})

	// TradesSkipped counts proposed matches refused before commit.
	TradesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trading_trades_skipped_total",
		Help: "Proposed matches refused before commit",
	}, []string{"reason"})

	// TradesFailed counts trades that failed after internal commit.
	TradesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trading_trades_failed_total",
		Help: "Trades marked failed after internal commit",
	})

	// SettlementTransitions counts custodial transfer state transitions.
	SettlementTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trading_settlement_transitions_total",
		Help: "Custodial transfer state transitions",
	}, []string{"to"})

	// WebSocketClients tracks connected event feed clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trading_websocket_clients",
		Help: "Connected websocket event feed clients",
	})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
