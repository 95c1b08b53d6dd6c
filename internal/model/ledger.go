package model

import (
	"time"

	"lv-securities/internal/types"

	"github.com/shopspring/decimal"
)

// CashEntry is one signed movement on a user's cash balance. The balance
// is the sum of all entries for the user.
type CashEntry struct {
	ID        string                `json:"id"`
	UserID    string                `json:"user_id"`
	Amount    decimal.Decimal       `json:"amount"`
	EntryType types.LedgerEntryType `json:"entry_type"`
	Ref       string                `json:"ref"`
	CreatedAt time.Time             `json:"created_at"`
}
