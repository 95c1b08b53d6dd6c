// Package holdings maintains each user's per-product position aggregate:
// quantity, weighted-average cost, realized and unrealized P&L.
package holdings

import (
	"context"
	"errors"

	"lv-securities/internal/marketdata"
	"lv-securities/internal/model"
	"lv-securities/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	// ErrInsufficientHolding is returned by Decrease when the user does
	// not hold enough quantity.
	ErrInsufficientHolding = errors.New("holdings: insufficient holding")
	// ErrConflictRetriesExhausted is returned when conflicting writes to
	// the same holding persist past the bounded retry budget.
	ErrConflictRetriesExhausted = errors.New("holdings: conflicting writes, retries exhausted")
)

// Store is the slice of the transactional scope the projector needs.
type Store interface {
	GetHolding(ctx context.Context, userID, productID string) (model.Holding, error)
	ListHoldings(ctx context.Context, userID string) ([]model.Holding, error)
	SaveHolding(ctx context.Context, h model.Holding) (model.Holding, error)
	DeleteHolding(ctx context.Context, userID, productID string) error
}

// PortfolioStore adds the cash balance read used for portfolio totals.
type PortfolioStore interface {
	Store
	CashBalance(ctx context.Context, userID string) (decimal.Decimal, error)
}

type Projector struct {
	prices      marketdata.PriceSource
	maxAttempts int
	log         *zap.Logger
}

func NewProjector(prices marketdata.PriceSource, maxAttempts int, log *zap.Logger) *Projector {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Projector{prices: prices, maxAttempts: maxAttempts, log: log}
}

// Increase adds qty at price to the user's holding, blending the average
// cost. A new holding starts at averageCost = price. Conflicting writes
// are reloaded and reapplied up to the retry budget.
func (p *Projector) Increase(ctx context.Context, tx Store, userID, productID string, qty, price decimal.Decimal) (model.Holding, error) {
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		h, err := tx.GetHolding(ctx, userID, productID)
		if errors.Is(err, store.ErrNotFound) {
			h = model.Holding{UserID: userID, ProductID: productID}
		} else if err != nil {
			return model.Holding{}, err
		}
		if h.Qty.IsPositive() {
			total := h.Qty.Add(qty)
			h.AverageCost = h.Qty.Mul(h.AverageCost).Add(qty.Mul(price)).Div(total)
			h.Qty = total
		} else {
			h.Qty = qty
			h.AverageCost = price
		}
		p.markToMarket(ctx, &h, price)
		saved, err := tx.SaveHolding(ctx, h)
		if errors.Is(err, store.ErrVersionConflict) {
			p.log.Debug("holding save conflict, retrying", zap.String("user_id", userID), zap.String("product_id", productID), zap.Int("attempt", attempt+1))
			continue
		}
		return saved, err
	}
	return model.Holding{}, ErrConflictRetriesExhausted
}

// Decrease removes qty at price, realizing P&L against the average cost.
// Average cost is not recomputed on decrease. A holding that reaches
// zero quantity is deleted.
func (p *Projector) Decrease(ctx context.Context, tx Store, userID, productID string, qty, price decimal.Decimal) (model.Holding, error) {
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		h, err := tx.GetHolding(ctx, userID, productID)
		if errors.Is(err, store.ErrNotFound) {
			return model.Holding{}, ErrInsufficientHolding
		}
		if err != nil {
			return model.Holding{}, err
		}
		if qty.GreaterThan(h.Qty) {
			return model.Holding{}, ErrInsufficientHolding
		}
		h.RealizedPnL = h.RealizedPnL.Add(qty.Mul(price.Sub(h.AverageCost)))
		h.Qty = h.Qty.Sub(qty)
		if h.Qty.IsZero() {
			if err := tx.DeleteHolding(ctx, userID, productID); err != nil {
				return model.Holding{}, err
			}
			h.CurrentValue = decimal.Zero
			h.UnrealizedPnL = decimal.Zero
			return h, nil
		}
		p.markToMarket(ctx, &h, price)
		saved, err := tx.SaveHolding(ctx, h)
		if errors.Is(err, store.ErrVersionConflict) {
			p.log.Debug("holding save conflict, retrying", zap.String("user_id", userID), zap.String("product_id", productID), zap.Int("attempt", attempt+1))
			continue
		}
		return saved, err
	}
	return model.Holding{}, ErrConflictRetriesExhausted
}

// markToMarket refreshes current value and unrealized P&L from the latest
// known market price, falling back to the fill price when no market price
// is available yet.
func (p *Projector) markToMarket(ctx context.Context, h *model.Holding, fallback decimal.Decimal) {
	mark := fallback
	if p.prices != nil {
		if last, err := p.prices.LastPrice(ctx, h.ProductID); err == nil {
			mark = last
		}
	}
	h.CurrentValue = h.Qty.Mul(mark)
	h.UnrealizedPnL = h.Qty.Mul(mark.Sub(h.AverageCost))
}

// Portfolio assembles the user's aggregate view: every holding marked to
// the latest price plus the cash balance, totals as plain sums.
func (p *Projector) Portfolio(ctx context.Context, tx PortfolioStore, userID string) (model.Portfolio, error) {
	hs, err := tx.ListHoldings(ctx, userID)
	if err != nil {
		return model.Portfolio{}, err
	}
	cash, err := tx.CashBalance(ctx, userID)
	if err != nil {
		return model.Portfolio{}, err
	}
	out := model.Portfolio{
		UserID:             userID,
		Holdings:           make([]model.Holding, 0, len(hs)),
		CashBalance:        cash,
		TotalValue:         cash,
		TotalRealizedPnL:   decimal.Zero,
		TotalUnrealizedPnL: decimal.Zero,
	}
	for _, h := range hs {
		p.markToMarket(ctx, &h, h.AverageCost)
		out.Holdings = append(out.Holdings, h)
		out.TotalValue = out.TotalValue.Add(h.CurrentValue)
		out.TotalRealizedPnL = out.TotalRealizedPnL.Add(h.RealizedPnL)
		out.TotalUnrealizedPnL = out.TotalUnrealizedPnL.Add(h.UnrealizedPnL)
	}
	return out, nil
}
