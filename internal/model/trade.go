package model

import (
	"time"

	"lv-securities/internal/types"

	"github.com/shopspring/decimal"
)

type Trade struct {
	ID          string            `json:"id"`
	ProductID   string            `json:"product_id"`
	BuyOrderID  string            `json:"buy_order_id"`
	SellOrderID string            `json:"sell_order_id"`
	BuyerID     string            `json:"buyer_id"`
	SellerID    string            `json:"seller_id"`
	Qty         decimal.Decimal   `json:"qty"`
	Price       decimal.Decimal   `json:"price"`
	Notional    decimal.Decimal   `json:"notional"`
	BuyerFee    decimal.Decimal   `json:"buyer_fee"`
	SellerFee   decimal.Decimal   `json:"seller_fee"`
	Status      types.TradeStatus `json:"status"`
	FailReason  string            `json:"fail_reason,omitempty"`
	ExecutedAt  time.Time         `json:"executed_at"`
	SettledAt   *time.Time        `json:"settled_at"`
	FailedAt    *time.Time        `json:"failed_at"`
}
