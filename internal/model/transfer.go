package model

import (
	"time"

	"lv-securities/internal/types"

	"github.com/shopspring/decimal"
)

// CustodialTransfer tracks the movement of legal title at the external
// custodian for exactly one trade.
type CustodialTransfer struct {
	ID              string               `json:"id"`
	TradeID         string               `json:"trade_id"`
	ProductID       string               `json:"product_id"`
	Qty             decimal.Decimal      `json:"qty"`
	FromAccount     string               `json:"from_account"`
	ToAccount       string               `json:"to_account"`
	Status          types.TransferStatus `json:"status"`
	CustodianRef    string               `json:"custodian_ref,omitempty"`
	CustodianFee    *decimal.Decimal     `json:"custodian_fee,omitempty"`
	FailReason      string               `json:"fail_reason,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
	SettledAt       *time.Time           `json:"settled_at"`
}
