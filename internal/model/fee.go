package model

import (
	"time"

	"lv-securities/internal/types"

	"github.com/shopspring/decimal"
)

// FeeTransaction is one fee leg (buyer or seller) of one trade. Created in
// pending, flipped to collected only after the matching ledger debit applied.
type FeeTransaction struct {
	ID        string            `json:"id"`
	TradeID   string            `json:"trade_id"`
	UserID    string            `json:"user_id"`
	Leg       types.FeeLeg      `json:"leg"`
	Amount    decimal.Decimal   `json:"amount"`
	Base      decimal.Decimal   `json:"base"`
	Percent   decimal.Decimal   `json:"percent"`
	Flat      decimal.Decimal   `json:"flat"`
	Status    types.FeeStatus   `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// FeeSchedule is the platform-configured fee terms for one category.
type FeeSchedule struct {
	Category types.FeeCategory `json:"category"`
	Percent  decimal.Decimal   `json:"percent"`
	Flat     decimal.Decimal   `json:"flat"`
	Min      decimal.Decimal   `json:"min"`
	Max      decimal.Decimal   `json:"max"`
}
