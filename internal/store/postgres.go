package store

import (
	"context"
	"errors"
	"time"

	"lv-securities/internal/model"
	"lv-securities/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Postgres implements DB on pgx. One WithinTx call is one SQL
// transaction; order re-reads take row locks so concurrent coordinators
// for the same orders serialize.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// NewPool connects and pings so startup fails fast on a bad DSN.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func (p *Postgres) WithinTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (p *Postgres) View(ctx context.Context, fn func(Tx) error) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	return fn(&pgTx{tx: tx})
}

type pgTx struct {
	tx pgx.Tx
}

const orderColumns = "id, user_id, product_id, side, kind, status, price, qty, filled_qty, remaining_qty, avg_fill_price, accrued_fees, expires_at, created_at, updated_at"

func scanOrder(row pgx.Row) (model.Order, error) {
	var o model.Order
	var side, kind, status string
	err := row.Scan(&o.ID, &o.UserID, &o.ProductID, &side, &kind, &status, &o.Price, &o.Qty, &o.FilledQty, &o.RemainingQty, &o.AvgFillPrice, &o.AccruedFees, &o.ExpiresAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return o, ErrNotFound
		}
		return o, err
	}
	o.Side = types.OrderSide(side)
	o.Kind = types.OrderKind(kind)
	o.Status = types.OrderStatus(status)
	return o, nil
}

func scanOrders(rows pgx.Rows) ([]model.Order, error) {
	defer rows.Close()
	var out []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (t *pgTx) CreateOrder(ctx context.Context, o model.Order) (model.Order, error) {
	now := time.Now().UTC()
	err := t.tx.QueryRow(ctx, "insert into orders (user_id, product_id, side, kind, status, price, qty, filled_qty, remaining_qty, avg_fill_price, accrued_fees, expires_at, created_at, updated_at) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14) returning id, created_at", o.UserID, o.ProductID, string(o.Side), string(o.Kind), string(o.Status), o.Price, o.Qty, o.FilledQty, o.RemainingQty, o.AvgFillPrice, o.AccruedFees, o.ExpiresAt, now, now).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		return o, err
	}
	o.UpdatedAt = now
	return o, nil
}

func (t *pgTx) GetOrder(ctx context.Context, id string) (model.Order, error) {
	return scanOrder(t.tx.QueryRow(ctx, "select "+orderColumns+" from orders where id = $1", id))
}

func (t *pgTx) GetOrderForUpdate(ctx context.Context, id string) (model.Order, error) {
	return scanOrder(t.tx.QueryRow(ctx, "select "+orderColumns+" from orders where id = $1 for update", id))
}

func (t *pgTx) ListOpenOrders(ctx context.Context, productID string, side types.OrderSide) ([]model.Order, error) {
	dir := "asc"
	if side == types.OrderSideBuy {
		dir = "desc"
	}
	rows, err := t.tx.Query(ctx, "select "+orderColumns+" from orders where product_id = $1 and side = $2 and status in ('pending','partially_filled') and remaining_qty > 0 order by price "+dir+" nulls first, created_at asc, id asc", productID, string(side))
	if err != nil {
		return nil, err
	}
	return scanOrders(rows)
}

func (t *pgTx) ListOrdersByUser(ctx context.Context, userID string) ([]model.Order, error) {
	rows, err := t.tx.Query(ctx, "select "+orderColumns+" from orders where user_id = $1 order by created_at desc, id desc", userID)
	if err != nil {
		return nil, err
	}
	return scanOrders(rows)
}

func (t *pgTx) ListExpiredOrders(ctx context.Context, cutoff time.Time) ([]model.Order, error) {
	rows, err := t.tx.Query(ctx, "select "+orderColumns+" from orders where status in ('pending','partially_filled') and expires_at is not null and expires_at <= $1", cutoff)
	if err != nil {
		return nil, err
	}
	return scanOrders(rows)
}

func (t *pgTx) UpdateOrderFill(ctx context.Context, o model.Order) error {
	_, err := t.tx.Exec(ctx, "update orders set filled_qty = $1, remaining_qty = $2, avg_fill_price = $3, accrued_fees = $4, status = $5, updated_at = $6 where id = $7", o.FilledQty, o.RemainingQty, o.AvgFillPrice, o.AccruedFees, string(o.Status), time.Now().UTC(), o.ID)
	return err
}

func (t *pgTx) UpdateOrderStatus(ctx context.Context, id string, status types.OrderStatus) error {
	_, err := t.tx.Exec(ctx, "update orders set status = $1, updated_at = $2 where id = $3", string(status), time.Now().UTC(), id)
	return err
}

const tradeColumns = "id, product_id, buy_order_id, sell_order_id, buyer_id, seller_id, qty, price, notional, buyer_fee, seller_fee, status, coalesce(fail_reason, ''), executed_at, settled_at, failed_at"

func scanTrade(row pgx.Row) (model.Trade, error) {
	var tr model.Trade
	var status string
	err := row.Scan(&tr.ID, &tr.ProductID, &tr.BuyOrderID, &tr.SellOrderID, &tr.BuyerID, &tr.SellerID, &tr.Qty, &tr.Price, &tr.Notional, &tr.BuyerFee, &tr.SellerFee, &status, &tr.FailReason, &tr.ExecutedAt, &tr.SettledAt, &tr.FailedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return tr, ErrNotFound
		}
		return tr, err
	}
	tr.Status = types.TradeStatus(status)
	return tr, nil
}

func (t *pgTx) CreateTrade(ctx context.Context, tr model.Trade) (model.Trade, error) {
	if tr.ExecutedAt.IsZero() {
		tr.ExecutedAt = time.Now().UTC()
	}
	err := t.tx.QueryRow(ctx, "insert into trades (product_id, buy_order_id, sell_order_id, buyer_id, seller_id, qty, price, notional, buyer_fee, seller_fee, status, executed_at) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) returning id", tr.ProductID, tr.BuyOrderID, tr.SellOrderID, tr.BuyerID, tr.SellerID, tr.Qty, tr.Price, tr.Notional, tr.BuyerFee, tr.SellerFee, string(tr.Status), tr.ExecutedAt).Scan(&tr.ID)
	return tr, err
}

func (t *pgTx) GetTrade(ctx context.Context, id string) (model.Trade, error) {
	return scanTrade(t.tx.QueryRow(ctx, "select "+tradeColumns+" from trades where id = $1", id))
}

func (t *pgTx) ListTradesByProduct(ctx context.Context, productID string, limit int) ([]model.Trade, error) {
	rows, err := t.tx.Query(ctx, "select "+tradeColumns+" from trades where product_id = $1 order by executed_at desc, id desc limit $2", productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Trade
	for rows.Next() {
		tr, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

func (t *pgTx) MarkTradeSettled(ctx context.Context, id string, at time.Time) error {
	_, err := t.tx.Exec(ctx, "update trades set status = 'settled', settled_at = $1 where id = $2", at, id)
	return err
}

func (t *pgTx) MarkTradeFailed(ctx context.Context, id, reason string, at time.Time) error {
	_, err := t.tx.Exec(ctx, "update trades set status = 'failed', fail_reason = $1, failed_at = $2 where id = $3", reason, at, id)
	return err
}

func (t *pgTx) CreateFeeTransaction(ctx context.Context, f model.FeeTransaction) (model.FeeTransaction, error) {
	now := time.Now().UTC()
	err := t.tx.QueryRow(ctx, "insert into fee_transactions (trade_id, user_id, leg, amount, base, percent, flat, status, created_at, updated_at) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) returning id", f.TradeID, f.UserID, string(f.Leg), f.Amount, f.Base, f.Percent, f.Flat, string(f.Status), now, now).Scan(&f.ID)
	if err != nil {
		return f, err
	}
	f.CreatedAt = now
	f.UpdatedAt = now
	return f, nil
}

func (t *pgTx) UpdateFeeTransactionStatus(ctx context.Context, id string, status types.FeeStatus) error {
	_, err := t.tx.Exec(ctx, "update fee_transactions set status = $1, updated_at = $2 where id = $3", string(status), time.Now().UTC(), id)
	return err
}

func (t *pgTx) ListFeeTransactionsByTrade(ctx context.Context, tradeID string) ([]model.FeeTransaction, error) {
	rows, err := t.tx.Query(ctx, "select id, trade_id, user_id, leg, amount, base, percent, flat, status, created_at, updated_at from fee_transactions where trade_id = $1 order by created_at asc, id asc", tradeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.FeeTransaction
	for rows.Next() {
		var f model.FeeTransaction
		var leg, status string
		if err := rows.Scan(&f.ID, &f.TradeID, &f.UserID, &leg, &f.Amount, &f.Base, &f.Percent, &f.Flat, &status, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		f.Leg = types.FeeLeg(leg)
		f.Status = types.FeeStatus(status)
		out = append(out, f)
	}
	return out, rows.Err()
}

// LockCashAccount serializes the user's cash ledger across concurrent
// transactions. The lock must be held before the balance is read: at read
// committed, two transactions that check the balance first and lock at
// insert time both see the pre-debit sum and can drive it negative.
func (t *pgTx) LockCashAccount(ctx context.Context, userID string) error {
	_, err := t.tx.Exec(ctx, "select pg_advisory_xact_lock(hashtext($1))", userID)
	return err
}

func (t *pgTx) AppendCashEntry(ctx context.Context, e model.CashEntry) (model.CashEntry, error) {
	now := time.Now().UTC()
	err := t.tx.QueryRow(ctx, "insert into cash_entries (user_id, amount, entry_type, ref, created_at) values ($1,$2,$3,$4,$5) returning id", e.UserID, e.Amount, string(e.EntryType), e.Ref, now).Scan(&e.ID)
	if err != nil {
		return e, err
	}
	e.CreatedAt = now
	return e, nil
}

func (t *pgTx) CashBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := t.tx.QueryRow(ctx, "select coalesce(sum(amount), 0) from cash_entries where user_id = $1", userID).Scan(&sum)
	return sum, err
}

const holdingColumns = "user_id, product_id, qty, average_cost, realized_pnl, current_value, unrealized_pnl, version, updated_at"

func (t *pgTx) GetHolding(ctx context.Context, userID, productID string) (model.Holding, error) {
	var h model.Holding
	err := t.tx.QueryRow(ctx, "select "+holdingColumns+" from holdings where user_id = $1 and product_id = $2", userID, productID).Scan(&h.UserID, &h.ProductID, &h.Qty, &h.AverageCost, &h.RealizedPnL, &h.CurrentValue, &h.UnrealizedPnL, &h.Version, &h.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return h, ErrNotFound
	}
	return h, err
}

func (t *pgTx) ListHoldings(ctx context.Context, userID string) ([]model.Holding, error) {
	rows, err := t.tx.Query(ctx, "select "+holdingColumns+" from holdings where user_id = $1 order by product_id asc", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Holding
	for rows.Next() {
		var h model.Holding
		if err := rows.Scan(&h.UserID, &h.ProductID, &h.Qty, &h.AverageCost, &h.RealizedPnL, &h.CurrentValue, &h.UnrealizedPnL, &h.Version, &h.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (t *pgTx) SaveHolding(ctx context.Context, h model.Holding) (model.Holding, error) {
	now := time.Now().UTC()
	if h.Version == 0 {
		_, err := t.tx.Exec(ctx, "insert into holdings (user_id, product_id, qty, average_cost, realized_pnl, current_value, unrealized_pnl, version, updated_at) values ($1,$2,$3,$4,$5,$6,$7,1,$8)", h.UserID, h.ProductID, h.Qty, h.AverageCost, h.RealizedPnL, h.CurrentValue, h.UnrealizedPnL, now)
		if err != nil {
			return h, err
		}
		h.Version = 1
		h.UpdatedAt = now
		return h, nil
	}
	tag, err := t.tx.Exec(ctx, "update holdings set qty = $1, average_cost = $2, realized_pnl = $3, current_value = $4, unrealized_pnl = $5, version = version + 1, updated_at = $6 where user_id = $7 and product_id = $8 and version = $9", h.Qty, h.AverageCost, h.RealizedPnL, h.CurrentValue, h.UnrealizedPnL, now, h.UserID, h.ProductID, h.Version)
	if err != nil {
		return h, err
	}
	if tag.RowsAffected() == 0 {
		return h, ErrVersionConflict
	}
	h.Version++
	h.UpdatedAt = now
	return h, nil
}

func (t *pgTx) DeleteHolding(ctx context.Context, userID, productID string) error {
	tag, err := t.tx.Exec(ctx, "delete from holdings where user_id = $1 and product_id = $2", userID, productID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const transferColumns = "id, trade_id, product_id, qty, from_account, to_account, status, coalesce(custodian_ref, ''), custodian_fee, coalesce(fail_reason, ''), created_at, updated_at, settled_at"

func scanTransfer(row pgx.Row) (model.CustodialTransfer, error) {
	var tr model.CustodialTransfer
	var status string
	err := row.Scan(&tr.ID, &tr.TradeID, &tr.ProductID, &tr.Qty, &tr.FromAccount, &tr.ToAccount, &status, &tr.CustodianRef, &tr.CustodianFee, &tr.FailReason, &tr.CreatedAt, &tr.UpdatedAt, &tr.SettledAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return tr, ErrNotFound
		}
		return tr, err
	}
	tr.Status = types.TransferStatus(status)
	return tr, nil
}

func (t *pgTx) CreateTransfer(ctx context.Context, tr model.CustodialTransfer) (model.CustodialTransfer, error) {
	now := time.Now().UTC()
	err := t.tx.QueryRow(ctx, "insert into custodial_transfers (trade_id, product_id, qty, from_account, to_account, status, created_at, updated_at) values ($1,$2,$3,$4,$5,$6,$7,$8) returning id", tr.TradeID, tr.ProductID, tr.Qty, tr.FromAccount, tr.ToAccount, string(tr.Status), now, now).Scan(&tr.ID)
	if err != nil {
		return tr, err
	}
	tr.CreatedAt = now
	tr.UpdatedAt = now
	return tr, nil
}

func (t *pgTx) GetTransfer(ctx context.Context, id string) (model.CustodialTransfer, error) {
	return scanTransfer(t.tx.QueryRow(ctx, "select "+transferColumns+" from custodial_transfers where id = $1", id))
}

func (t *pgTx) GetTransferByTrade(ctx context.Context, tradeID string) (model.CustodialTransfer, error) {
	return scanTransfer(t.tx.QueryRow(ctx, "select "+transferColumns+" from custodial_transfers where trade_id = $1", tradeID))
}

func (t *pgTx) ListTransfersByStatus(ctx context.Context, statuses ...types.TransferStatus) ([]model.CustodialTransfer, error) {
	ss := make([]string, len(statuses))
	for i, s := range statuses {
		ss[i] = string(s)
	}
	rows, err := t.tx.Query(ctx, "select "+transferColumns+" from custodial_transfers where status = any($1) order by created_at asc, id asc", ss)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.CustodialTransfer
	for rows.Next() {
		tr, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

func (t *pgTx) UpdateTransfer(ctx context.Context, tr model.CustodialTransfer) error {
	_, err := t.tx.Exec(ctx, "update custodial_transfers set status = $1, custodian_ref = nullif($2, ''), custodian_fee = $3, fail_reason = nullif($4, ''), settled_at = $5, updated_at = $6 where id = $7", string(tr.Status), tr.CustodianRef, tr.CustodianFee, tr.FailReason, tr.SettledAt, time.Now().UTC(), tr.ID)
	return err
}

func (t *pgTx) GetFeeSchedule(ctx context.Context, category types.FeeCategory) (model.FeeSchedule, error) {
	var s model.FeeSchedule
	var cat string
	err := t.tx.QueryRow(ctx, "select category, percent, flat, min_fee, max_fee from fee_schedules where category = $1", string(category)).Scan(&cat, &s.Percent, &s.Flat, &s.Min, &s.Max)
	if errors.Is(err, pgx.ErrNoRows) {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	s.Category = types.FeeCategory(cat)
	return s, nil
}

func (t *pgTx) SaveFeeSchedule(ctx context.Context, s model.FeeSchedule) error {
	_, err := t.tx.Exec(ctx, "insert into fee_schedules (category, percent, flat, min_fee, max_fee) values ($1,$2,$3,$4,$5) on conflict (category) do update set percent = excluded.percent, flat = excluded.flat, min_fee = excluded.min_fee, max_fee = excluded.max_fee", string(s.Category), s.Percent, s.Flat, s.Min, s.Max)
	return err
}
