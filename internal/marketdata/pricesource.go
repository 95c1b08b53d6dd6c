// Package marketdata supplies the latest known market price per product,
// used for portfolio mark-to-market. The engine only reads prices; it
// never produces them.
package marketdata

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"
)

// ErrPriceUnavailable is returned when no price is known for a product.
var ErrPriceUnavailable = errors.New("marketdata: price unavailable")

type PriceSource interface {
	LastPrice(ctx context.Context, productID string) (decimal.Decimal, error)
}

// StaticSource holds prices in memory. Backs tests and development, and
// acts as the upstream for the redis read-through cache.
type StaticSource struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

func NewStaticSource() *StaticSource {
	return &StaticSource{prices: make(map[string]decimal.Decimal)}
}

func (s *StaticSource) SetPrice(productID string, price decimal.Decimal) {
	s.mu.Lock()
	s.prices[productID] = price
	s.mu.Unlock()
}

func (s *StaticSource) LastPrice(_ context.Context, productID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prices[productID]
	if !ok {
		return decimal.Decimal{}, ErrPriceUnavailable
	}
	return p, nil
}
