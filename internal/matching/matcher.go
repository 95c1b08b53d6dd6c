// Package matching scans a product's outstanding orders and proposes
// matches under price-time priority. Proposals are in-memory only; the
// execution coordinator persists fills.
package matching

import (
	"context"
	"sync"
	"time"

	"lv-securities/internal/metrics"
	"lv-securities/internal/model"
	"lv-securities/internal/store"
	"lv-securities/internal/types"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Match is one proposed pairing of a buy and a sell order. The order
// snapshots may be stale by the time the coordinator re-reads them.
type Match struct {
	Buy   model.Order
	Sell  model.Order
	Qty   decimal.Decimal
	Price decimal.Decimal
}

type Matcher struct {
	db  store.DB
	log *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewMatcher(db store.DB, log *zap.Logger) *Matcher {
	return &Matcher{db: db, log: log, locks: make(map[string]*sync.Mutex)}
}

// productLock serializes matching passes per product. Passes for
// different products run concurrently.
func (m *Matcher) productLock(productID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[productID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[productID] = l
	}
	return l
}

// ProposeMatches loads the open book for one product and walks it under
// price-time priority. The matched price is always the resting sell
// order's price, so price improvement favors the buyer.
func (m *Matcher) ProposeMatches(ctx context.Context, productID string) ([]Match, error) {
	lock := m.productLock(productID)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	var buys, sells []model.Order
	err := m.db.View(ctx, func(tx store.Tx) error {
		var err error
		if buys, err = tx.ListOpenOrders(ctx, productID, types.OrderSideBuy); err != nil {
			return err
		}
		sells, err = tx.ListOpenOrders(ctx, productID, types.OrderSideSell)
		return err
	})
	if err != nil {
		return nil, err
	}

	matches := propose(buys, sells)
	metrics.MatchesProposed.WithLabelValues(productID).Add(float64(len(matches)))
	metrics.MatchPassDuration.WithLabelValues(productID).Observe(time.Since(start).Seconds())
	m.log.Debug("matching pass complete",
		zap.String("product_id", productID),
		zap.Int("buys", len(buys)),
		zap.Int("sells", len(sells)),
		zap.Int("matches", len(matches)),
	)
	return matches, nil
}

// propose walks buys outer, sells inner. Remaining quantities are
// decremented on the local copies so later pairs in the same pass see
// updated availability; nothing is persisted here.
func propose(buys, sells []model.Order) []Match {
	var out []Match
	for bi := range buys {
		buy := &buys[bi]
		for si := range sells {
			if !buy.RemainingQty.IsPositive() {
				break
			}
			sell := &sells[si]
			if !sell.RemainingQty.IsPositive() {
				continue
			}
			price, ok := crossPrice(*buy, *sell)
			if !ok {
				if sell.Price != nil {
					// Sells are sorted by price ascending: no later sell
					// can cross this buy either.
					break
				}
				continue
			}
			qty := decimal.Min(buy.RemainingQty, sell.RemainingQty)
			out = append(out, Match{Buy: *buy, Sell: *sell, Qty: qty, Price: price})
			buy.RemainingQty = buy.RemainingQty.Sub(qty)
			sell.RemainingQty = sell.RemainingQty.Sub(qty)
		}
	}
	return out
}

// crossPrice reports whether the pair crosses and at what price. Limit
// against limit crosses iff buy >= sell, at the sell price. A market
// order crosses any priced counterpart; two market orders never cross
// because there is no reference price.
func crossPrice(buy, sell model.Order) (decimal.Decimal, bool) {
	if sell.Price == nil {
		if buy.Price == nil {
			return decimal.Decimal{}, false
		}
		return *buy.Price, true
	}
	if buy.Price != nil && buy.Price.LessThan(*sell.Price) {
		return decimal.Decimal{}, false
	}
	return *sell.Price, true
}
