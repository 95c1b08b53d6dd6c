// Package ledger exposes the cash ledger to the trading engine: debit and
// credit a user's balance with a single source of truth per user. The
// balance is the sum of immutable signed entries.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"lv-securities/internal/model"
	"lv-securities/internal/types"

	"github.com/shopspring/decimal"
)

// ErrInsufficientFunds is returned by Debit when the user's balance does
// not cover the amount. Callers treat it as a precondition failure, not a
// crash.
var ErrInsufficientFunds = errors.New("ledger: insufficient funds")

// Store is the slice of the transactional scope the gateway needs.
type Store interface {
	LockCashAccount(ctx context.Context, userID string) error
	AppendCashEntry(ctx context.Context, e model.CashEntry) (model.CashEntry, error)
	CashBalance(ctx context.Context, userID string) (decimal.Decimal, error)
}

type Gateway struct{}

func NewGateway() *Gateway {
	return &Gateway{}
}

func (g *Gateway) Balance(ctx context.Context, tx Store, userID string) (decimal.Decimal, error) {
	return tx.CashBalance(ctx, userID)
}

// Debit removes amount from the user's balance. The amount must be
// positive; the resulting balance must not go negative. The account is
// locked before the balance is read so the sufficiency check and the
// entry insert cannot straddle a concurrent debit.
func (g *Gateway) Debit(ctx context.Context, tx Store, userID string, amount decimal.Decimal, entryType types.LedgerEntryType, ref string) error {
	if !amount.IsPositive() {
		return fmt.Errorf("ledger: debit amount must be positive, got %s", amount)
	}
	if err := tx.LockCashAccount(ctx, userID); err != nil {
		return err
	}
	balance, err := tx.CashBalance(ctx, userID)
	if err != nil {
		return err
	}
	if balance.LessThan(amount) {
		return fmt.Errorf("%w: balance %s, need %s", ErrInsufficientFunds, balance, amount)
	}
	_, err = tx.AppendCashEntry(ctx, model.CashEntry{
		UserID:    userID,
		Amount:    amount.Neg(),
		EntryType: entryType,
		Ref:       ref,
	})
	return err
}

// Credit adds amount to the user's balance.
func (g *Gateway) Credit(ctx context.Context, tx Store, userID string, amount decimal.Decimal, entryType types.LedgerEntryType, ref string) error {
	if !amount.IsPositive() {
		return fmt.Errorf("ledger: credit amount must be positive, got %s", amount)
	}
	if err := tx.LockCashAccount(ctx, userID); err != nil {
		return err
	}
	_, err := tx.AppendCashEntry(ctx, model.CashEntry{
		UserID:    userID,
		Amount:    amount,
		EntryType: entryType,
		Ref:       ref,
	})
	return err
}
