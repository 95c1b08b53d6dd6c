// Package store defines the persistence boundary for the trading engine.
// Postgres is the source of truth; the in-memory implementation backs
// tests and local development.
package store

import (
	"context"
	"errors"
	"time"

	"lv-securities/internal/model"
	"lv-securities/internal/types"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrVersionConflict is returned by SaveHolding when the row changed
	// since it was read. Callers retry a bounded number of times.
	ErrVersionConflict = errors.New("store: version conflict")
)

// DB opens transactional scopes. WithinTx is the engine's single
// atomicity boundary: everything inside commits or aborts together.
type DB interface {
	WithinTx(ctx context.Context, fn func(Tx) error) error
	View(ctx context.Context, fn func(Tx) error) error
}

// Tx carries the entity operations available inside a scope. Services
// declare their own narrow interfaces; Tx satisfies them structurally.
type Tx interface {
	CreateOrder(ctx context.Context, o model.Order) (model.Order, error)
	GetOrder(ctx context.Context, id string) (model.Order, error)
	GetOrderForUpdate(ctx context.Context, id string) (model.Order, error)
	ListOpenOrders(ctx context.Context, productID string, side types.OrderSide) ([]model.Order, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]model.Order, error)
	ListExpiredOrders(ctx context.Context, cutoff time.Time) ([]model.Order, error)
	UpdateOrderFill(ctx context.Context, o model.Order) error
	UpdateOrderStatus(ctx context.Context, id string, status types.OrderStatus) error

	CreateTrade(ctx context.Context, t model.Trade) (model.Trade, error)
	GetTrade(ctx context.Context, id string) (model.Trade, error)
	ListTradesByProduct(ctx context.Context, productID string, limit int) ([]model.Trade, error)
	MarkTradeSettled(ctx context.Context, id string, at time.Time) error
	MarkTradeFailed(ctx context.Context, id, reason string, at time.Time) error

	CreateFeeTransaction(ctx context.Context, f model.FeeTransaction) (model.FeeTransaction, error)
	UpdateFeeTransactionStatus(ctx context.Context, id string, status types.FeeStatus) error
	ListFeeTransactionsByTrade(ctx context.Context, tradeID string) ([]model.FeeTransaction, error)

	// LockCashAccount serializes the user's cash ledger for the rest of
	// the scope. Callers that read the balance and then write against it
	// must lock first, or two scopes can both pass the sufficiency check
	// against the same pre-debit balance.
	LockCashAccount(ctx context.Context, userID string) error
	AppendCashEntry(ctx context.Context, e model.CashEntry) (model.CashEntry, error)
	CashBalance(ctx context.Context, userID string) (decimal.Decimal, error)

	GetHolding(ctx context.Context, userID, productID string) (model.Holding, error)
	ListHoldings(ctx context.Context, userID string) ([]model.Holding, error)
	SaveHolding(ctx context.Context, h model.Holding) (model.Holding, error)
	DeleteHolding(ctx context.Context, userID, productID string) error

	CreateTransfer(ctx context.Context, t model.CustodialTransfer) (model.CustodialTransfer, error)
	GetTransfer(ctx context.Context, id string) (model.CustodialTransfer, error)
	GetTransferByTrade(ctx context.Context, tradeID string) (model.CustodialTransfer, error)
	ListTransfersByStatus(ctx context.Context, statuses ...types.TransferStatus) ([]model.CustodialTransfer, error)
	UpdateTransfer(ctx context.Context, t model.CustodialTransfer) error

	GetFeeSchedule(ctx context.Context, category types.FeeCategory) (model.FeeSchedule, error)
	SaveFeeSchedule(ctx context.Context, s model.FeeSchedule) error
}
