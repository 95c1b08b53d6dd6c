package custody

import (
	"context"
	"fmt"

	"lv-securities/internal/audit"
	"lv-securities/internal/metrics"
	"lv-securities/internal/model"
	"lv-securities/internal/store"
	"lv-securities/internal/types"

	"go.uber.org/zap"
)

// Initiator creates the custodial transfer for a committed trade and
// submits it to the custodian. It runs outside the coordinator's atomic
// boundary; its failure is compensated, never rolled back.
type Initiator struct {
	db        store.DB
	custodian Custodian
	bus       *audit.Bus
	log       *zap.Logger
}

func NewInitiator(db store.DB, custodian Custodian, bus *audit.Bus, log *zap.Logger) *Initiator {
	return &Initiator{db: db, custodian: custodian, bus: bus, log: log}
}

// custodyAccount maps a platform user to their account at the custodian.
func custodyAccount(userID string) string {
	return "cust-" + userID
}

// Initiate records a pending transfer for the trade, submits it to the
// custodian, and advances it to submitted. On submission failure the
// transfer is marked failed and the error is returned so the caller can
// fail the trade.
func (i *Initiator) Initiate(ctx context.Context, trade model.Trade) error {
	var transfer model.CustodialTransfer
	err := i.db.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		transfer, err = tx.CreateTransfer(ctx, model.CustodialTransfer{
			TradeID:     trade.ID,
			ProductID:   trade.ProductID,
			Qty:         trade.Qty,
			FromAccount: custodyAccount(trade.SellerID),
			ToAccount:   custodyAccount(trade.BuyerID),
			Status:      types.TransferStatusPending,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("create custodial transfer: %w", err)
	}

	receipt, submitErr := i.custodian.SubmitTransfer(ctx, TransferRequest{
		TransferID:  transfer.ID,
		TradeID:     trade.ID,
		ProductID:   trade.ProductID,
		Qty:         trade.Qty,
		FromAccount: transfer.FromAccount,
		ToAccount:   transfer.ToAccount,
	})
	if submitErr != nil {
		if err := i.markFailed(ctx, transfer.ID, submitErr.Error()); err != nil {
			i.log.Error("failed to record transfer failure", zap.String("transfer_id", transfer.ID), zap.Error(err))
		}
		return fmt.Errorf("submit custodial transfer: %w", submitErr)
	}

	err = i.db.WithinTx(ctx, func(tx store.Tx) error {
		cur, err := tx.GetTransfer(ctx, transfer.ID)
		if err != nil {
			return err
		}
		if err := ValidateTransition(cur.Status, types.TransferStatusSubmitted); err != nil {
			return err
		}
		cur.Status = types.TransferStatusSubmitted
		cur.CustodianRef = receipt.Reference
		cur.CustodianFee = receipt.Fee
		return tx.UpdateTransfer(ctx, cur)
	})
	if err != nil {
		return fmt.Errorf("record transfer submission: %w", err)
	}

	metrics.SettlementTransitions.WithLabelValues(string(types.TransferStatusSubmitted)).Inc()
	i.bus.Publish(audit.EventTransferSubmitted, map[string]string{
		"transfer_id":   transfer.ID,
		"trade_id":      trade.ID,
		"custodian_ref": receipt.Reference,
	})
	return nil
}

func (i *Initiator) markFailed(ctx context.Context, transferID, reason string) error {
	err := i.db.WithinTx(ctx, func(tx store.Tx) error {
		cur, err := tx.GetTransfer(ctx, transferID)
		if err != nil {
			return err
		}
		if err := ValidateTransition(cur.Status, types.TransferStatusFailed); err != nil {
			return err
		}
		cur.Status = types.TransferStatusFailed
		cur.FailReason = reason
		return tx.UpdateTransfer(ctx, cur)
	})
	if err != nil {
		return err
	}
	metrics.SettlementTransitions.WithLabelValues(string(types.TransferStatusFailed)).Inc()
	i.bus.Publish(audit.EventTransferFailed, map[string]string{
		"transfer_id": transferID,
		"reason":      reason,
	})
	return nil
}

// FailForTrade marks the transfer tied to a trade as failed, if one
// exists. Used by the coordinator when compensating a committed trade.
func (i *Initiator) FailForTrade(ctx context.Context, tradeID, reason string) {
	var transferID string
	err := i.db.View(ctx, func(tx store.Tx) error {
		tr, err := tx.GetTransferByTrade(ctx, tradeID)
		if err != nil {
			return err
		}
		if tr.Status.IsTerminal() {
			return nil
		}
		transferID = tr.ID
		return nil
	})
	if err != nil || transferID == "" {
		return
	}
	if err := i.markFailed(ctx, transferID, reason); err != nil {
		i.log.Error("failed to fail transfer for trade",
			zap.String("trade_id", tradeID), zap.Error(err))
	}
}
