package custody

import (
	"context"
	"errors"
	"testing"
	"time"

	"lv-securities/internal/audit"
	"lv-securities/internal/model"
	"lv-securities/internal/store"
	"lv-securities/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubCustodian scripts submit and status responses per reference.
type stubCustodian struct {
	submitErr error
	statuses  map[string]StatusReport
	statusErr map[string]error
	submitted []TransferRequest
}

func (s *stubCustodian) SubmitTransfer(_ context.Context, req TransferRequest) (Receipt, error) {
	if s.submitErr != nil {
		return Receipt{}, s.submitErr
	}
	s.submitted = append(s.submitted, req)
	return Receipt{Reference: "ref-" + req.TransferID}, nil
}

func (s *stubCustodian) TransferStatus(_ context.Context, ref string) (StatusReport, error) {
	if err, ok := s.statusErr[ref]; ok {
		return StatusReport{}, err
	}
	report, ok := s.statuses[ref]
	if !ok {
		return StatusReport{}, errors.New("unknown reference")
	}
	return report, nil
}

func seedTrade(t *testing.T, db store.DB) model.Trade {
	t.Helper()
	ctx := context.Background()
	var trade model.Trade
	require.NoError(t, db.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		trade, err = tx.CreateTrade(ctx, model.Trade{
			ProductID: "p1", BuyerID: "buyer", SellerID: "seller",
			Qty: decimal.RequireFromString("10"), Price: decimal.RequireFromString("100"),
			Notional: decimal.RequireFromString("1000"),
			Status:   types.TradeStatusPending,
		})
		return err
	}))
	return trade
}

func TestInitiateCreatesAndSubmitsTransfer(t *testing.T) {
	ctx := context.Background()
	db := store.NewMemory()
	cust := &stubCustodian{}
	initiator := NewInitiator(db, cust, audit.NewBus(zap.NewNop()), zap.NewNop())
	trade := seedTrade(t, db)

	require.NoError(t, initiator.Initiate(ctx, trade))
	require.Len(t, cust.submitted, 1)
	require.Equal(t, "cust-seller", cust.submitted[0].FromAccount)
	require.Equal(t, "cust-buyer", cust.submitted[0].ToAccount)

	require.NoError(t, db.View(ctx, func(tx store.Tx) error {
		tr, err := tx.GetTransferByTrade(ctx, trade.ID)
		require.NoError(t, err)
		require.Equal(t, types.TransferStatusSubmitted, tr.Status)
		require.NotEmpty(t, tr.CustodianRef)
		return nil
	}))
}

func TestInitiateSubmitFailureMarksTransferFailed(t *testing.T) {
	ctx := context.Background()
	db := store.NewMemory()
	cust := &stubCustodian{submitErr: errors.New("custodian down")}
	initiator := NewInitiator(db, cust, audit.NewBus(zap.NewNop()), zap.NewNop())
	trade := seedTrade(t, db)

	err := initiator.Initiate(ctx, trade)
	require.Error(t, err)

	require.NoError(t, db.View(ctx, func(tx store.Tx) error {
		tr, err := tx.GetTransferByTrade(ctx, trade.ID)
		require.NoError(t, err)
		require.Equal(t, types.TransferStatusFailed, tr.Status)
		require.Contains(t, tr.FailReason, "custodian down")
		return nil
	}))
}

func seedSubmittedTransfer(t *testing.T, db store.DB, tradeID, ref string, status types.TransferStatus) string {
	t.Helper()
	ctx := context.Background()
	var id string
	require.NoError(t, db.WithinTx(ctx, func(tx store.Tx) error {
		tr, err := tx.CreateTransfer(ctx, model.CustodialTransfer{
			TradeID: tradeID, ProductID: "p1",
			Qty:         decimal.RequireFromString("10"),
			FromAccount: "cust-seller", ToAccount: "cust-buyer",
			Status: status, CustodianRef: ref,
		})
		id = tr.ID
		return err
	}))
	return id
}

func TestPollOnceAdvancesToConfirmed(t *testing.T) {
	ctx := context.Background()
	db := store.NewMemory()
	trade := seedTrade(t, db)
	id := seedSubmittedTransfer(t, db, trade.ID, "ref-1", types.TransferStatusSubmitted)

	cust := &stubCustodian{statuses: map[string]StatusReport{
		"ref-1": {Reference: "ref-1", Status: types.TransferStatusConfirmed},
	}}
	p := NewPoller(db, cust, audit.NewBus(zap.NewNop()), time.Second, zap.NewNop())

	advanced, err := p.PollOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, advanced)

	require.NoError(t, db.View(ctx, func(tx store.Tx) error {
		tr, err := tx.GetTransfer(ctx, id)
		require.NoError(t, err)
		require.Equal(t, types.TransferStatusConfirmed, tr.Status)
		return nil
	}))
}

func TestPollOnceSettlesTradeWithTransfer(t *testing.T) {
	ctx := context.Background()
	db := store.NewMemory()
	trade := seedTrade(t, db)
	id := seedSubmittedTransfer(t, db, trade.ID, "ref-1", types.TransferStatusConfirmed)

	cust := &stubCustodian{statuses: map[string]StatusReport{
		"ref-1": {Reference: "ref-1", Status: types.TransferStatusSettled},
	}}
	p := NewPoller(db, cust, audit.NewBus(zap.NewNop()), time.Second, zap.NewNop())

	advanced, err := p.PollOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, advanced)

	require.NoError(t, db.View(ctx, func(tx store.Tx) error {
		tr, err := tx.GetTransfer(ctx, id)
		require.NoError(t, err)
		require.Equal(t, types.TransferStatusSettled, tr.Status)
		require.NotNil(t, tr.SettledAt)

		got, err := tx.GetTrade(ctx, trade.ID)
		require.NoError(t, err)
		require.Equal(t, types.TradeStatusSettled, got.Status)
		require.NotNil(t, got.SettledAt)
		return nil
	}))
}

func TestPollOnceFailureFailsTrade(t *testing.T) {
	ctx := context.Background()
	db := store.NewMemory()
	trade := seedTrade(t, db)
	seedSubmittedTransfer(t, db, trade.ID, "ref-1", types.TransferStatusSubmitted)

	cust := &stubCustodian{statuses: map[string]StatusReport{
		"ref-1": {Reference: "ref-1", Status: types.TransferStatusFailed, Reason: "register rejected"},
	}}
	p := NewPoller(db, cust, audit.NewBus(zap.NewNop()), time.Second, zap.NewNop())

	advanced, err := p.PollOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, advanced)

	require.NoError(t, db.View(ctx, func(tx store.Tx) error {
		got, err := tx.GetTrade(ctx, trade.ID)
		require.NoError(t, err)
		require.Equal(t, types.TradeStatusFailed, got.Status)
		require.Contains(t, got.FailReason, "register rejected")
		return nil
	}))
}

func TestPollOnceSkipsBrokenTransfer(t *testing.T) {
	ctx := context.Background()
	db := store.NewMemory()
	tradeA := seedTrade(t, db)
	tradeB := seedTrade(t, db)
	seedSubmittedTransfer(t, db, tradeA.ID, "ref-a", types.TransferStatusSubmitted)
	idB := seedSubmittedTransfer(t, db, tradeB.ID, "ref-b", types.TransferStatusSubmitted)

	cust := &stubCustodian{
		statuses:  map[string]StatusReport{"ref-b": {Reference: "ref-b", Status: types.TransferStatusConfirmed}},
		statusErr: map[string]error{"ref-a": errors.New("timeout")},
	}
	p := NewPoller(db, cust, audit.NewBus(zap.NewNop()), time.Second, zap.NewNop())

	advanced, err := p.PollOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, advanced)

	require.NoError(t, db.View(ctx, func(tx store.Tx) error {
		tr, err := tx.GetTransfer(ctx, idB)
		require.NoError(t, err)
		require.Equal(t, types.TransferStatusConfirmed, tr.Status)
		return nil
	}))
}

func TestPollOnceUnchangedStatusIsNotAdvanced(t *testing.T) {
	ctx := context.Background()
	db := store.NewMemory()
	trade := seedTrade(t, db)
	seedSubmittedTransfer(t, db, trade.ID, "ref-1", types.TransferStatusSubmitted)

	cust := &stubCustodian{statuses: map[string]StatusReport{
		"ref-1": {Reference: "ref-1", Status: types.TransferStatusSubmitted},
	}}
	p := NewPoller(db, cust, audit.NewBus(zap.NewNop()), time.Second, zap.NewNop())

	advanced, err := p.PollOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, advanced)
}
