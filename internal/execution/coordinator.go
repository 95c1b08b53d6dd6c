// Package execution converts proposed matches into persisted, internally
// consistent trades, or refuses them cleanly. Step order and the atomic
// boundary follow one rule: everything internal commits together, the
// custodial hand-off happens after and is compensated, not rolled back.
package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lv-securities/internal/audit"
	"lv-securities/internal/fees"
	"lv-securities/internal/holdings"
	"lv-securities/internal/ledger"
	"lv-securities/internal/matching"
	"lv-securities/internal/metrics"
	"lv-securities/internal/model"
	"lv-securities/internal/store"
	"lv-securities/internal/types"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrStaleMatch marks a proposal whose orders changed since the matching
// pass. A benign race: the caller skips to the next proposal.
var ErrStaleMatch = errors.New("execution: match is stale")

// Initiator hands a committed trade to custodial settlement.
type Initiator interface {
	Initiate(ctx context.Context, trade model.Trade) error
	FailForTrade(ctx context.Context, tradeID, reason string)
}

type Coordinator struct {
	db        store.DB
	fees      *fees.Provider
	ledger    *ledger.Gateway
	holdings  *holdings.Projector
	initiator Initiator
	bus       *audit.Bus
	log       *zap.Logger
}

func NewCoordinator(db store.DB, feeProvider *fees.Provider, gateway *ledger.Gateway, projector *holdings.Projector, initiator Initiator, bus *audit.Bus, log *zap.Logger) *Coordinator {
	return &Coordinator{
		db:        db,
		fees:      feeProvider,
		ledger:    gateway,
		holdings:  projector,
		initiator: initiator,
		bus:       bus,
		log:       log,
	}
}

// ExecuteMatch commits one proposed match. Inside a single transactional
// scope it re-reads both orders, verifies preconditions, creates the
// trade, applies the fills, moves cash, collects fees, and updates both
// holdings. After commit it hands the trade to custodial settlement; a
// hand-off failure marks the trade failed without rolling back the
// committed effects.
func (c *Coordinator) ExecuteMatch(ctx context.Context, m matching.Match) (model.Trade, error) {
	buyerSchedule, err := c.fees.Schedule(ctx, types.FeeCategoryBuyerTrade)
	if err != nil {
		return model.Trade{}, err
	}
	sellerSchedule, err := c.fees.Schedule(ctx, types.FeeCategorySellerTrade)
	if err != nil {
		return model.Trade{}, err
	}

	var trade model.Trade
	err = c.db.WithinTx(ctx, func(tx store.Tx) error {
		// The matcher's snapshots are only a proposal; re-read under lock.
		buy, err := tx.GetOrderForUpdate(ctx, m.Buy.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrStaleMatch
			}
			return err
		}
		sell, err := tx.GetOrderForUpdate(ctx, m.Sell.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrStaleMatch
			}
			return err
		}
		if buy.Status.IsTerminal() || sell.Status.IsTerminal() {
			return ErrStaleMatch
		}
		if buy.RemainingQty.LessThan(m.Qty) || sell.RemainingQty.LessThan(m.Qty) {
			return ErrStaleMatch
		}

		notional := m.Qty.Mul(m.Price)
		buyerFee := fees.Calculate(notional, buyerSchedule)
		sellerFee := fees.Calculate(notional, sellerSchedule)

		// Buyer pays fee on top of the notional. Lock the buyer's cash
		// account before the sufficiency check so a concurrent trade for
		// the same buyer cannot pass it against the same balance.
		buyerCost := notional.Add(buyerFee)
		if err := tx.LockCashAccount(ctx, buy.UserID); err != nil {
			return err
		}
		balance, err := c.ledger.Balance(ctx, tx, buy.UserID)
		if err != nil {
			return err
		}
		if balance.LessThan(buyerCost) {
			return fmt.Errorf("%w: balance %s, need %s", ledger.ErrInsufficientFunds, balance, buyerCost)
		}

		trade, err = tx.CreateTrade(ctx, model.Trade{
			ProductID:   buy.ProductID,
			BuyOrderID:  buy.ID,
			SellOrderID: sell.ID,
			BuyerID:     buy.UserID,
			SellerID:    sell.UserID,
			Qty:         m.Qty,
			Price:       m.Price,
			Notional:    notional,
			BuyerFee:    buyerFee,
			SellerFee:   sellerFee,
			Status:      types.TradeStatusPending,
			ExecutedAt:  time.Now().UTC(),
		})
		if err != nil {
			return err
		}

		applyFill(&buy, m.Qty, m.Price, buyerFee)
		applyFill(&sell, m.Qty, m.Price, sellerFee)
		if err := tx.UpdateOrderFill(ctx, buy); err != nil {
			return err
		}
		if err := tx.UpdateOrderFill(ctx, sell); err != nil {
			return err
		}

		if err := c.ledger.Debit(ctx, tx, buy.UserID, buyerCost, types.LedgerEntryTypeTrade, trade.ID); err != nil {
			return err
		}
		// Seller pays their fee out of the proceeds.
		if proceeds := notional.Sub(sellerFee); proceeds.IsPositive() {
			if err := c.ledger.Credit(ctx, tx, sell.UserID, proceeds, types.LedgerEntryTypeTrade, trade.ID); err != nil {
				return err
			}
		}

		if err := c.collectFee(ctx, tx, trade.ID, buy.UserID, types.FeeLegBuyer, buyerFee, notional, buyerSchedule); err != nil {
			return err
		}
		if err := c.collectFee(ctx, tx, trade.ID, sell.UserID, types.FeeLegSeller, sellerFee, notional, sellerSchedule); err != nil {
			return err
		}

		if _, err := c.holdings.Increase(ctx, tx, buy.UserID, buy.ProductID, m.Qty, m.Price); err != nil {
			return err
		}
		if _, err := c.holdings.Decrease(ctx, tx, sell.UserID, sell.ProductID, m.Qty, m.Price); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return model.Trade{}, err
	}

	metrics.TradesExecuted.Inc()
	c.bus.Publish(audit.EventTradeExecuted, tradeEventData(trade))
	c.log.Info("trade executed",
		zap.String("trade_id", trade.ID),
		zap.String("product_id", trade.ProductID),
		zap.String("qty", trade.Qty.String()),
		zap.String("price", trade.Price.String()),
		zap.String("notional", trade.Notional.String()),
	)

	// Hand-off to custodial settlement, outside the atomic boundary. The
	// committed cash/holdings/fee effects stay applied on failure; the
	// reconciliation job corrects drift against the share register.
	if handoffErr := c.initiator.Initiate(ctx, trade); handoffErr != nil {
		reason := "custodial hand-off failed: " + handoffErr.Error()
		now := time.Now().UTC()
		if err := c.db.WithinTx(ctx, func(tx store.Tx) error {
			return tx.MarkTradeFailed(ctx, trade.ID, reason, now)
		}); err != nil {
			c.log.Error("failed to mark trade failed", zap.String("trade_id", trade.ID), zap.Error(err))
		}
		c.initiator.FailForTrade(ctx, trade.ID, reason)
		trade.Status = types.TradeStatusFailed
		trade.FailReason = reason
		trade.FailedAt = &now
		metrics.TradesFailed.Inc()
		c.bus.Publish(audit.EventTradeFailed, tradeEventData(trade))
		c.log.Error("trade failed after commit", zap.String("trade_id", trade.ID), zap.Error(handoffErr))
	}
	return trade, nil
}

// collectFee records the fee leg and flips it to collected; the matching
// ledger movement has already been applied by the caller.
func (c *Coordinator) collectFee(ctx context.Context, tx store.Tx, tradeID, userID string, leg types.FeeLeg, amount, base decimal.Decimal, schedule model.FeeSchedule) error {
	ft, err := tx.CreateFeeTransaction(ctx, model.FeeTransaction{
		TradeID: tradeID,
		UserID:  userID,
		Leg:     leg,
		Amount:  amount,
		Base:    base,
		Percent: schedule.Percent,
		Flat:    schedule.Flat,
		Status:  types.FeeStatusPending,
	})
	if err != nil {
		return err
	}
	return tx.UpdateFeeTransactionStatus(ctx, ft.ID, types.FeeStatusCollected)
}

// applyFill blends the order's average fill price over prior fills and
// the new fill, then derives remaining quantity and status.
func applyFill(o *model.Order, qty, price, fee decimal.Decimal) {
	newFilled := o.FilledQty.Add(qty)
	o.AvgFillPrice = o.FilledQty.Mul(o.AvgFillPrice).Add(qty.Mul(price)).Div(newFilled)
	o.FilledQty = newFilled
	o.RemainingQty = o.Qty.Sub(newFilled)
	o.AccruedFees = o.AccruedFees.Add(fee)
	if o.RemainingQty.IsPositive() {
		o.Status = types.OrderStatusPartiallyFilled
	} else {
		o.Status = types.OrderStatusFilled
	}
}

func tradeEventData(t model.Trade) map[string]string {
	return map[string]string{
		"trade_id":   t.ID,
		"product_id": t.ProductID,
		"buyer_id":   t.BuyerID,
		"seller_id":  t.SellerID,
		"qty":        t.Qty.String(),
		"price":      t.Price.String(),
		"notional":   t.Notional.String(),
		"status":     string(t.Status),
	}
}

// Result is the outcome of one proposed match in a batch.
type Result struct {
	Match   matching.Match
	Trade   model.Trade
	Err     error
	Skipped bool
}

// ProcessMatches executes a whole pass's proposals in order, continuing
// past individual failures. Benign races and precondition failures are
// skips, not errors.
func (c *Coordinator) ProcessMatches(ctx context.Context, matches []matching.Match) []Result {
	results := make([]Result, 0, len(matches))
	for _, m := range matches {
		trade, err := c.ExecuteMatch(ctx, m)
		res := Result{Match: m, Trade: trade, Err: err}
		switch {
		case err == nil:
		case errors.Is(err, ErrStaleMatch):
			res.Skipped = true
			metrics.TradesSkipped.WithLabelValues("stale_match").Inc()
			c.log.Debug("skipping stale match", zap.String("buy_order_id", m.Buy.ID), zap.String("sell_order_id", m.Sell.ID))
		case errors.Is(err, ledger.ErrInsufficientFunds):
			res.Skipped = true
			metrics.TradesSkipped.WithLabelValues("insufficient_funds").Inc()
			c.bus.Publish(audit.EventTradeRejected, map[string]string{
				"buy_order_id":  m.Buy.ID,
				"sell_order_id": m.Sell.ID,
				"reason":        "insufficient buyer funds",
			})
			c.log.Info("skipping match: insufficient buyer funds", zap.String("buy_order_id", m.Buy.ID))
		case errors.Is(err, holdings.ErrInsufficientHolding):
			res.Skipped = true
			metrics.TradesSkipped.WithLabelValues("insufficient_holding").Inc()
			c.bus.Publish(audit.EventTradeRejected, map[string]string{
				"buy_order_id":  m.Buy.ID,
				"sell_order_id": m.Sell.ID,
				"reason":        "insufficient seller holding",
			})
			c.log.Info("skipping match: insufficient seller holding", zap.String("sell_order_id", m.Sell.ID))
		default:
			c.log.Error("match execution failed", zap.String("buy_order_id", m.Buy.ID), zap.String("sell_order_id", m.Sell.ID), zap.Error(err))
		}
		results = append(results, res)
	}
	return results
}
