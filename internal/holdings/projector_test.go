package holdings

import (
	"context"
	"testing"

	"lv-securities/internal/marketdata"
	"lv-securities/internal/model"
	"lv-securities/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newProjector() *Projector {
	return NewProjector(marketdata.NewStaticSource(), 5, zap.NewNop())
}

func TestIncreaseBlendsAverageCost(t *testing.T) {
	ctx := context.Background()
	db := store.NewMemory()
	p := newProjector()

	require.NoError(t, db.WithinTx(ctx, func(tx store.Tx) error {
		_, err := p.Increase(ctx, tx, "u1", "p1", d("10"), d("100"))
		return err
	}))
	var h model.Holding
	require.NoError(t, db.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		h, err = p.Increase(ctx, tx, "u1", "p1", d("30"), d("120"))
		return err
	}))
	// (10*100 + 30*120) / 40 = 115
	require.True(t, h.Qty.Equal(d("40")), "qty %s", h.Qty)
	require.True(t, h.AverageCost.Equal(d("115")), "avg cost %s", h.AverageCost)
}

func TestDecreaseRealizesPnLAndKeepsAverageCost(t *testing.T) {
	ctx := context.Background()
	db := store.NewMemory()
	p := newProjector()

	require.NoError(t, db.WithinTx(ctx, func(tx store.Tx) error {
		_, err := p.Increase(ctx, tx, "u1", "p1", d("40"), d("115"))
		return err
	}))
	var h model.Holding
	require.NoError(t, db.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		h, err = p.Decrease(ctx, tx, "u1", "p1", d("15"), d("130"))
		return err
	}))
	// Realized: 15 * (130 - 115) = 225. Average cost untouched.
	require.True(t, h.Qty.Equal(d("25")), "qty %s", h.Qty)
	require.True(t, h.AverageCost.Equal(d("115")), "avg cost %s", h.AverageCost)
	require.True(t, h.RealizedPnL.Equal(d("225")), "realized %s", h.RealizedPnL)
}

func TestDecreaseAtLossRealizesNegative(t *testing.T) {
	ctx := context.Background()
	db := store.NewMemory()
	p := newProjector()

	require.NoError(t, db.WithinTx(ctx, func(tx store.Tx) error {
		_, err := p.Increase(ctx, tx, "u1", "p1", d("10"), d("50"))
		return err
	}))
	var h model.Holding
	require.NoError(t, db.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		h, err = p.Decrease(ctx, tx, "u1", "p1", d("4"), d("45"))
		return err
	}))
	require.True(t, h.RealizedPnL.Equal(d("-20")), "realized %s", h.RealizedPnL)
}

func TestDecreaseToZeroDeletesHolding(t *testing.T) {
	ctx := context.Background()
	db := store.NewMemory()
	p := newProjector()

	require.NoError(t, db.WithinTx(ctx, func(tx store.Tx) error {
		_, err := p.Increase(ctx, tx, "u1", "p1", d("10"), d("100"))
		return err
	}))
	require.NoError(t, db.WithinTx(ctx, func(tx store.Tx) error {
		_, err := p.Decrease(ctx, tx, "u1", "p1", d("10"), d("100"))
		return err
	}))
	err := db.View(ctx, func(tx store.Tx) error {
		_, err := tx.GetHolding(ctx, "u1", "p1")
		return err
	})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestDecreaseInsufficientHolding(t *testing.T) {
	ctx := context.Background()
	db := store.NewMemory()
	p := newProjector()

	// No holding at all.
	err := db.WithinTx(ctx, func(tx store.Tx) error {
		_, err := p.Decrease(ctx, tx, "u1", "p1", d("1"), d("100"))
		return err
	})
	require.ErrorIs(t, err, ErrInsufficientHolding)

	// Holding smaller than requested.
	require.NoError(t, db.WithinTx(ctx, func(tx store.Tx) error {
		_, err := p.Increase(ctx, tx, "u1", "p1", d("5"), d("100"))
		return err
	}))
	err = db.WithinTx(ctx, func(tx store.Tx) error {
		_, err := p.Decrease(ctx, tx, "u1", "p1", d("6"), d("100"))
		return err
	})
	require.ErrorIs(t, err, ErrInsufficientHolding)
}

func TestMarkToMarketUsesLatestPrice(t *testing.T) {
	ctx := context.Background()
	db := store.NewMemory()
	prices := marketdata.NewStaticSource()
	prices.SetPrice("p1", d("120"))
	p := NewProjector(prices, 5, zap.NewNop())

	var h model.Holding
	require.NoError(t, db.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		h, err = p.Increase(ctx, tx, "u1", "p1", d("10"), d("100"))
		return err
	}))
	require.True(t, h.CurrentValue.Equal(d("1200")), "current value %s", h.CurrentValue)
	require.True(t, h.UnrealizedPnL.Equal(d("200")), "unrealized %s", h.UnrealizedPnL)
}

// conflictStore wraps a holdings store and forces version conflicts on
// every save.
type conflictStore struct {
	Store
}

func (c conflictStore) SaveHolding(ctx context.Context, h model.Holding) (model.Holding, error) {
	return model.Holding{}, store.ErrVersionConflict
}

func TestIncreaseConflictRetriesExhausted(t *testing.T) {
	ctx := context.Background()
	db := store.NewMemory()
	p := NewProjector(marketdata.NewStaticSource(), 3, zap.NewNop())

	err := db.WithinTx(ctx, func(tx store.Tx) error {
		_, err := p.Increase(ctx, conflictStore{Store: tx}, "u1", "p1", d("1"), d("100"))
		return err
	})
	require.ErrorIs(t, err, ErrConflictRetriesExhausted)
}

func TestPortfolioTotals(t *testing.T) {
	ctx := context.Background()
	db := store.NewMemory()
	prices := marketdata.NewStaticSource()
	prices.SetPrice("p1", d("110"))
	p := NewProjector(prices, 5, zap.NewNop())

	require.NoError(t, db.WithinTx(ctx, func(tx store.Tx) error {
		if _, err := tx.AppendCashEntry(ctx, model.CashEntry{UserID: "u1", Amount: d("500")}); err != nil {
			return err
		}
		if _, err := p.Increase(ctx, tx, "u1", "p1", d("10"), d("100")); err != nil {
			return err
		}
		_, err := p.Increase(ctx, tx, "u1", "p2", d("2"), d("50"))
		return err
	}))

	var portfolio model.Portfolio
	require.NoError(t, db.View(ctx, func(tx store.Tx) error {
		var err error
		portfolio, err = p.Portfolio(ctx, tx, "u1")
		return err
	}))
	require.Len(t, portfolio.Holdings, 2)
	require.True(t, portfolio.CashBalance.Equal(d("500")))
	// p1 marked at 110 (1100), p2 has no market price so marked at cost (100).
	require.True(t, portfolio.TotalValue.Equal(d("1700")), "total %s", portfolio.TotalValue)
	require.True(t, portfolio.TotalUnrealizedPnL.Equal(d("100")), "unrealized %s", portfolio.TotalUnrealizedPnL)
}
