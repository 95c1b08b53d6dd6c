package custody

import (
	"context"
	"time"

	"lv-securities/internal/audit"
	"lv-securities/internal/metrics"
	"lv-securities/internal/model"
	"lv-securities/internal/store"
	"lv-securities/internal/types"

	"go.uber.org/zap"
)

// Poller periodically asks the custodian for the status of in-flight
// transfers and advances their state machine. When a transfer settles,
// the originating trade is flipped to settled in the same scope.
type Poller struct {
	db        store.DB
	custodian Custodian
	bus       *audit.Bus
	log       *zap.Logger
	interval  time.Duration
}

func NewPoller(db store.DB, custodian Custodian, bus *audit.Bus, interval time.Duration, log *zap.Logger) *Poller {
	return &Poller{db: db, custodian: custodian, bus: bus, interval: interval, log: log}
}

// Run polls until the context is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := p.PollOnce(ctx); err != nil {
				p.log.Error("settlement poll failed", zap.Error(err))
			} else if n > 0 {
				p.log.Info("settlement poll advanced transfers", zap.Int("count", n))
			}
		}
	}
}

// PollOnce checks every submitted or confirmed transfer against the
// custodian and applies the reported transitions. It returns the number
// of transfers advanced. Per-transfer errors are logged and skipped so
// one bad transfer does not stall the rest.
func (p *Poller) PollOnce(ctx context.Context) (int, error) {
	var inflight []model.CustodialTransfer
	err := p.db.View(ctx, func(tx store.Tx) error {
		var err error
		inflight, err = tx.ListTransfersByStatus(ctx, types.TransferStatusSubmitted, types.TransferStatusConfirmed)
		return err
	})
	if err != nil {
		return 0, err
	}

	advanced := 0
	for _, tr := range inflight {
		report, err := p.custodian.TransferStatus(ctx, tr.CustodianRef)
		if err != nil {
			p.log.Warn("custodian status check failed", zap.String("transfer_id", tr.ID), zap.Error(err))
			continue
		}
		if report.Status == tr.Status {
			continue
		}
		if err := p.apply(ctx, tr.ID, report); err != nil {
			p.log.Error("failed to apply settlement transition",
				zap.String("transfer_id", tr.ID),
				zap.String("to", string(report.Status)),
				zap.Error(err))
			continue
		}
		advanced++
	}
	return advanced, nil
}

func (p *Poller) apply(ctx context.Context, transferID string, report StatusReport) error {
	var tradeID string
	err := p.db.WithinTx(ctx, func(tx store.Tx) error {
		cur, err := tx.GetTransfer(ctx, transferID)
		if err != nil {
			return err
		}
		if cur.Status == report.Status {
			return nil
		}
		if err := ValidateTransition(cur.Status, report.Status); err != nil {
			return err
		}
		cur.Status = report.Status
		tradeID = cur.TradeID
		now := time.Now().UTC()
		switch report.Status {
		case types.TransferStatusSettled:
			cur.SettledAt = &now
			if err := tx.MarkTradeSettled(ctx, cur.TradeID, now); err != nil {
				return err
			}
		case types.TransferStatusFailed:
			cur.FailReason = report.Reason
			if err := tx.MarkTradeFailed(ctx, cur.TradeID, "custodial settlement failed: "+report.Reason, now); err != nil {
				return err
			}
		}
		return tx.UpdateTransfer(ctx, cur)
	})
	if err != nil {
		return err
	}

	metrics.SettlementTransitions.WithLabelValues(string(report.Status)).Inc()
	switch report.Status {
	case types.TransferStatusSettled:
		p.bus.Publish(audit.EventTradeSettled, map[string]string{"transfer_id": transferID, "trade_id": tradeID})
	case types.TransferStatusConfirmed:
		p.bus.Publish(audit.EventTransferConfirmed, map[string]string{"transfer_id": transferID, "trade_id": tradeID})
	case types.TransferStatusFailed:
		p.bus.Publish(audit.EventTransferFailed, map[string]string{"transfer_id": transferID, "trade_id": tradeID, "reason": report.Reason})
	}
	return nil
}
