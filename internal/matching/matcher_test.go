package matching

import (
	"context"
	"fmt"
	"testing"
	"time"

	"lv-securities/internal/model"
	"lv-securities/internal/store"
	"lv-securities/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func price(s string) *decimal.Decimal {
	p := d(s)
	return &p
}

func limitOrder(id string, side types.OrderSide, p *decimal.Decimal, qty string, at time.Time) model.Order {
	kind := types.OrderKindLimit
	if p == nil {
		kind = types.OrderKindMarket
	}
	return model.Order{
		ID: id, UserID: "u-" + id, ProductID: "p1",
		Side: side, Kind: kind, Status: types.OrderStatusPending,
		Price: p, Qty: d(qty), RemainingQty: d(qty), CreatedAt: at,
	}
}

func TestProposeCrossingPair(t *testing.T) {
	base := time.Now().UTC()
	buys := []model.Order{limitOrder("b1", types.OrderSideBuy, price("105"), "10", base)}
	sells := []model.Order{limitOrder("s1", types.OrderSideSell, price("100"), "10", base)}

	matches := propose(buys, sells)
	require.Len(t, matches, 1)
	// Trades print at the resting sell's price: buyer gets the improvement.
	require.True(t, matches[0].Price.Equal(d("100")))
	require.True(t, matches[0].Qty.Equal(d("10")))
}

func TestProposeNoCrossWhenBuyBelowSell(t *testing.T) {
	base := time.Now().UTC()
	buys := []model.Order{limitOrder("b1", types.OrderSideBuy, price("99"), "10", base)}
	sells := []model.Order{limitOrder("s1", types.OrderSideSell, price("100"), "10", base)}
	require.Empty(t, propose(buys, sells))
}

func TestProposePartialFillSpansSells(t *testing.T) {
	base := time.Now().UTC()
	buys := []model.Order{limitOrder("b1", types.OrderSideBuy, price("110"), "150", base)}
	sells := []model.Order{
		limitOrder("s1", types.OrderSideSell, price("100"), "100", base),
		limitOrder("s2", types.OrderSideSell, price("105"), "80", base),
	}

	matches := propose(buys, sells)
	require.Len(t, matches, 2)
	require.True(t, matches[0].Qty.Equal(d("100")))
	require.True(t, matches[0].Price.Equal(d("100")))
	require.True(t, matches[1].Qty.Equal(d("50")))
	require.True(t, matches[1].Price.Equal(d("105")))
}

func TestProposeMarketOrdersNeverCrossEachOther(t *testing.T) {
	base := time.Now().UTC()
	buys := []model.Order{limitOrder("b1", types.OrderSideBuy, nil, "10", base)}
	sells := []model.Order{limitOrder("s1", types.OrderSideSell, nil, "10", base)}
	require.Empty(t, propose(buys, sells))
}

func TestProposeMarketBuyTakesLimitSell(t *testing.T) {
	base := time.Now().UTC()
	buys := []model.Order{limitOrder("b1", types.OrderSideBuy, nil, "5", base)}
	sells := []model.Order{limitOrder("s1", types.OrderSideSell, price("42"), "5", base)}

	matches := propose(buys, sells)
	require.Len(t, matches, 1)
	require.True(t, matches[0].Price.Equal(d("42")))
}

func TestProposeMarketSellTakesBuyPrice(t *testing.T) {
	base := time.Now().UTC()
	buys := []model.Order{limitOrder("b1", types.OrderSideBuy, price("42"), "5", base)}
	sells := []model.Order{limitOrder("s1", types.OrderSideSell, nil, "5", base)}

	matches := propose(buys, sells)
	require.Len(t, matches, 1)
	require.True(t, matches[0].Price.Equal(d("42")))
}

func TestProposeMatchesUsesPriceTimePriority(t *testing.T) {
	ctx := context.Background()
	db := store.NewMemory()
	m := NewMatcher(db, zap.NewNop())
	base := time.Now().UTC()

	var wantFirstSell string
	require.NoError(t, db.WithinTx(ctx, func(tx store.Tx) error {
		// Same price, earlier sell must fill first.
		later, err := tx.CreateOrder(ctx, limitOrder("", types.OrderSideSell, price("100"), "10", base.Add(time.Second)))
		if err != nil {
			return err
		}
		_ = later
		earlier, err := tx.CreateOrder(ctx, limitOrder("", types.OrderSideSell, price("100"), "10", base))
		if err != nil {
			return err
		}
		wantFirstSell = earlier.ID
		_, err = tx.CreateOrder(ctx, limitOrder("", types.OrderSideBuy, price("100"), "10", base))
		return err
	}))

	matches, err := m.ProposeMatches(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, wantFirstSell, matches[0].Sell.ID)
}

func TestProposeProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		base := time.Now().UTC()
		nBuys := rapid.IntRange(0, 8).Draw(t, "nBuys")
		nSells := rapid.IntRange(0, 8).Draw(t, "nSells")

		var buys, sells []model.Order
		for i := 0; i < nBuys; i++ {
			p := decimal.NewFromInt(int64(rapid.IntRange(90, 110).Draw(t, "buyPrice")))
			qty := fmt.Sprintf("%d", rapid.IntRange(1, 50).Draw(t, "buyQty"))
			buys = append(buys, limitOrder(fmt.Sprintf("b%d", i), types.OrderSideBuy, &p, qty, base))
		}
		for i := 0; i < nSells; i++ {
			p := decimal.NewFromInt(int64(rapid.IntRange(90, 110).Draw(t, "sellPrice")))
			qty := fmt.Sprintf("%d", rapid.IntRange(1, 50).Draw(t, "sellQty"))
			sells = append(sells, limitOrder(fmt.Sprintf("s%d", i), types.OrderSideSell, &p, qty, base))
		}

		remaining := make(map[string]decimal.Decimal)
		for _, o := range append(append([]model.Order{}, buys...), sells...) {
			remaining[o.ID] = o.RemainingQty
		}

		for _, m := range propose(buys, sells) {
			if m.Buy.Price.LessThan(*m.Sell.Price) {
				t.Fatalf("matched below the sell price: buy %s sell %s", m.Buy.Price, m.Sell.Price)
			}
			if !m.Price.Equal(*m.Sell.Price) {
				t.Fatalf("price %s is not the sell price %s", m.Price, m.Sell.Price)
			}
			if !m.Qty.IsPositive() {
				t.Fatalf("non-positive match qty %s", m.Qty)
			}
			for _, id := range []string{m.Buy.ID, m.Sell.ID} {
				remaining[id] = remaining[id].Sub(m.Qty)
				if remaining[id].IsNegative() {
					t.Fatalf("order %s over-allocated", id)
				}
			}
		}
	})
}
