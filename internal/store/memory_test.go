package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"lv-securities/internal/model"
	"lv-securities/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestWithinTxAbortLeavesNothingBehind(t *testing.T) {
	ctx := context.Background()
	db := NewMemory()
	boom := errors.New("boom")

	err := db.WithinTx(ctx, func(tx Tx) error {
		if _, err := tx.CreateOrder(ctx, model.Order{UserID: "u1", ProductID: "p1", Side: types.OrderSideBuy, Status: types.OrderStatusPending, Qty: d("10"), RemainingQty: d("10")}); err != nil {
			return err
		}
		if _, err := tx.AppendCashEntry(ctx, model.CashEntry{UserID: "u1", Amount: d("100"), EntryType: types.LedgerEntryTypeAdjust}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, db.View(ctx, func(tx Tx) error {
		orders, err := tx.ListOrdersByUser(ctx, "u1")
		require.NoError(t, err)
		require.Empty(t, orders)
		bal, err := tx.CashBalance(ctx, "u1")
		require.NoError(t, err)
		require.True(t, bal.IsZero())
		return nil
	}))
}

func TestWithinTxCommitIsVisible(t *testing.T) {
	ctx := context.Background()
	db := NewMemory()
	var id string
	require.NoError(t, db.WithinTx(ctx, func(tx Tx) error {
		o, err := tx.CreateOrder(ctx, model.Order{UserID: "u1", ProductID: "p1", Side: types.OrderSideBuy, Status: types.OrderStatusPending, Qty: d("10"), RemainingQty: d("10")})
		id = o.ID
		return err
	}))
	require.NoError(t, db.View(ctx, func(tx Tx) error {
		o, err := tx.GetOrder(ctx, id)
		require.NoError(t, err)
		require.Equal(t, "u1", o.UserID)
		return nil
	}))
}

func TestSaveHoldingVersionConflict(t *testing.T) {
	ctx := context.Background()
	db := NewMemory()

	var saved model.Holding
	require.NoError(t, db.WithinTx(ctx, func(tx Tx) error {
		var err error
		saved, err = tx.SaveHolding(ctx, model.Holding{UserID: "u1", ProductID: "p1", Qty: d("5"), AverageCost: d("10")})
		return err
	}))
	require.Equal(t, int64(1), saved.Version)

	// Writing with a stale version must conflict.
	err := db.WithinTx(ctx, func(tx Tx) error {
		stale := saved
		stale.Version = 0
		_, err := tx.SaveHolding(ctx, stale)
		return err
	})
	require.ErrorIs(t, err, ErrVersionConflict)

	// Writing with the current version succeeds and bumps it.
	require.NoError(t, db.WithinTx(ctx, func(tx Tx) error {
		next := saved
		next.Qty = d("7")
		var err error
		saved, err = tx.SaveHolding(ctx, next)
		return err
	}))
	require.Equal(t, int64(2), saved.Version)

	// Creating a holding with a nonzero version is also a conflict.
	err = db.WithinTx(ctx, func(tx Tx) error {
		_, err := tx.SaveHolding(ctx, model.Holding{UserID: "u2", ProductID: "p1", Qty: d("1"), Version: 3})
		return err
	})
	require.ErrorIs(t, err, ErrVersionConflict)
}

func TestListOpenOrdersPriceTimePriority(t *testing.T) {
	ctx := context.Background()
	db := NewMemory()
	base := time.Now().UTC()

	price := func(s string) *decimal.Decimal {
		p := d(s)
		return &p
	}
	mk := func(tx Tx, side types.OrderSide, p *decimal.Decimal, at time.Time) string {
		o, err := tx.CreateOrder(ctx, model.Order{
			UserID: "u", ProductID: "p1", Side: side, Kind: types.OrderKindLimit,
			Status: types.OrderStatusPending, Price: p,
			Qty: d("10"), RemainingQty: d("10"), CreatedAt: at,
		})
		require.NoError(t, err)
		return o.ID
	}

	var cheapEarly, cheapLate, rich, market string
	require.NoError(t, db.WithinTx(ctx, func(tx Tx) error {
		cheapLate = mk(tx, types.OrderSideSell, price("10"), base.Add(time.Second))
		cheapEarly = mk(tx, types.OrderSideSell, price("10"), base)
		rich = mk(tx, types.OrderSideSell, price("20"), base)
		market = mk(tx, types.OrderSideSell, nil, base.Add(2*time.Second))
		return nil
	}))

	require.NoError(t, db.View(ctx, func(tx Tx) error {
		sells, err := tx.ListOpenOrders(ctx, "p1", types.OrderSideSell)
		require.NoError(t, err)
		require.Len(t, sells, 4)
		// Market order first, then price ascending, time ascending.
		require.Equal(t, market, sells[0].ID)
		require.Equal(t, cheapEarly, sells[1].ID)
		require.Equal(t, cheapLate, sells[2].ID)
		require.Equal(t, rich, sells[3].ID)
		return nil
	}))
}

func TestListOpenOrdersExcludesClosedAndDrained(t *testing.T) {
	ctx := context.Background()
	db := NewMemory()

	require.NoError(t, db.WithinTx(ctx, func(tx Tx) error {
		open, err := tx.CreateOrder(ctx, model.Order{UserID: "u", ProductID: "p1", Side: types.OrderSideBuy, Status: types.OrderStatusPending, Qty: d("10"), RemainingQty: d("10")})
		if err != nil {
			return err
		}
		_ = open
		cancelled, err := tx.CreateOrder(ctx, model.Order{UserID: "u", ProductID: "p1", Side: types.OrderSideBuy, Status: types.OrderStatusPending, Qty: d("10"), RemainingQty: d("10")})
		if err != nil {
			return err
		}
		if err := tx.UpdateOrderStatus(ctx, cancelled.ID, types.OrderStatusCancelled); err != nil {
			return err
		}
		_, err = tx.CreateOrder(ctx, model.Order{UserID: "u", ProductID: "p1", Side: types.OrderSideBuy, Status: types.OrderStatusPartiallyFilled, Qty: d("10"), RemainingQty: d("0")})
		return err
	}))

	require.NoError(t, db.View(ctx, func(tx Tx) error {
		buys, err := tx.ListOpenOrders(ctx, "p1", types.OrderSideBuy)
		require.NoError(t, err)
		require.Len(t, buys, 1)
		return nil
	}))
}

func TestListExpiredOrders(t *testing.T) {
	ctx := context.Background()
	db := NewMemory()
	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	require.NoError(t, db.WithinTx(ctx, func(tx Tx) error {
		if _, err := tx.CreateOrder(ctx, model.Order{UserID: "u", ProductID: "p1", Side: types.OrderSideBuy, Status: types.OrderStatusPending, Qty: d("1"), RemainingQty: d("1"), ExpiresAt: &past}); err != nil {
			return err
		}
		if _, err := tx.CreateOrder(ctx, model.Order{UserID: "u", ProductID: "p1", Side: types.OrderSideBuy, Status: types.OrderStatusPending, Qty: d("1"), RemainingQty: d("1"), ExpiresAt: &future}); err != nil {
			return err
		}
		_, err := tx.CreateOrder(ctx, model.Order{UserID: "u", ProductID: "p1", Side: types.OrderSideBuy, Status: types.OrderStatusPending, Qty: d("1"), RemainingQty: d("1")})
		return err
	}))

	require.NoError(t, db.View(ctx, func(tx Tx) error {
		expired, err := tx.ListExpiredOrders(ctx, now)
		require.NoError(t, err)
		require.Len(t, expired, 1)
		return nil
	}))
}
