package model

import (
	"time"

	"lv-securities/internal/types"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID           string            `json:"id"`
	UserID       string            `json:"user_id"`
	ProductID    string            `json:"product_id"`
	Side         types.OrderSide   `json:"side"`
	Kind         types.OrderKind   `json:"kind"`
	Status       types.OrderStatus `json:"status"`
	Price        *decimal.Decimal  `json:"price"`
	Qty          decimal.Decimal   `json:"qty"`
	FilledQty    decimal.Decimal   `json:"filled_qty"`
	RemainingQty decimal.Decimal   `json:"remaining_qty"`
	AvgFillPrice decimal.Decimal   `json:"avg_fill_price"`
	AccruedFees  decimal.Decimal   `json:"accrued_fees"`
	ExpiresAt    *time.Time        `json:"expires_at"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}
