package marketdata

import (
	"context"

	"lv-securities/internal/store"

	"github.com/shopspring/decimal"
)

// TradeSource marks products to the most recent execution price.
// Products that have never traded have no mark.
//
// LastPrice opens its own read scope on the store, so it must not be
// called from inside another scope on store.Memory, whose scopes are not
// reentrant. Against Postgres the read runs on a separate pooled
// connection and the restriction does not apply.
type TradeSource struct {
	db store.DB
}

func NewTradeSource(db store.DB) *TradeSource {
	return &TradeSource{db: db}
}

func (s *TradeSource) LastPrice(ctx context.Context, productID string) (decimal.Decimal, error) {
	var price decimal.Decimal
	err := s.db.View(ctx, func(tx store.Tx) error {
		trades, err := tx.ListTradesByProduct(ctx, productID, 1)
		if err != nil {
			return err
		}
		if len(trades) == 0 {
			return ErrPriceUnavailable
		}
		price = trades[0].Price
		return nil
	})
	return price, err
}
