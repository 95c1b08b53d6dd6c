package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Holding is a user's aggregate position in one product. AverageCost is a
// quantity-weighted blend recomputed on every increase and left untouched
// on decrease. A holding with zero quantity is deleted, never stored.
type Holding struct {
	UserID        string          `json:"user_id"`
	ProductID     string          `json:"product_id"`
	Qty           decimal.Decimal `json:"qty"`
	AverageCost   decimal.Decimal `json:"average_cost"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	CurrentValue  decimal.Decimal `json:"current_value"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	Version       int64           `json:"-"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Portfolio is the per-user aggregate view: all holdings plus cash.
type Portfolio struct {
	UserID             string          `json:"user_id"`
	Holdings           []Holding       `json:"holdings"`
	CashBalance        decimal.Decimal `json:"cash_balance"`
	TotalValue         decimal.Decimal `json:"total_value"`
	TotalRealizedPnL   decimal.Decimal `json:"total_realized_pnl"`
	TotalUnrealizedPnL decimal.Decimal `json:"total_unrealized_pnl"`
}
