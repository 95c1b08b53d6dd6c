package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"lv-securities/internal/model"
	"lv-securities/internal/types"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Memory implements DB with maps under a single mutex. WithinTx runs the
// callback against a deep copy of the state and swaps it in on success,
// so an aborted scope leaves nothing behind.
//
// Scopes are not reentrant: a callback must not open another WithinTx or
// View on the same Memory, directly or through a collaborator (e.g. a
// price source that reads the store), or it blocks on the mutex it holds.
// Wire marketdata.StaticSource into components that run inside scopes.
type Memory struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	seq       int64
	orders    map[string]model.Order
	orderSeq  map[string]int64
	trades    map[string]model.Trade
	tradeIDs  []string
	fees      map[string]model.FeeTransaction
	feeIDs    []string
	cash      []model.CashEntry
	holdings  map[string]model.Holding
	transfers map[string]model.CustodialTransfer
	schedules map[types.FeeCategory]model.FeeSchedule
}

func NewMemory() *Memory {
	return &Memory{state: &memState{
		orders:    make(map[string]model.Order),
		orderSeq:  make(map[string]int64),
		trades:    make(map[string]model.Trade),
		fees:      make(map[string]model.FeeTransaction),
		holdings:  make(map[string]model.Holding),
		transfers: make(map[string]model.CustodialTransfer),
		schedules: make(map[types.FeeCategory]model.FeeSchedule),
	}}
}

func (m *Memory) WithinTx(ctx context.Context, fn func(Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.state.clone()
	if err := fn(&memTx{st: next}); err != nil {
		return err
	}
	m.state = next
	return nil
}

func (m *Memory) View(ctx context.Context, fn func(Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&memTx{st: m.state.clone()})
}

func (s *memState) clone() *memState {
	next := &memState{
		seq:       s.seq,
		orders:    make(map[string]model.Order, len(s.orders)),
		orderSeq:  make(map[string]int64, len(s.orderSeq)),
		trades:    make(map[string]model.Trade, len(s.trades)),
		tradeIDs:  append([]string(nil), s.tradeIDs...),
		fees:      make(map[string]model.FeeTransaction, len(s.fees)),
		feeIDs:    append([]string(nil), s.feeIDs...),
		cash:      append([]model.CashEntry(nil), s.cash...),
		holdings:  make(map[string]model.Holding, len(s.holdings)),
		transfers: make(map[string]model.CustodialTransfer, len(s.transfers)),
		schedules: make(map[types.FeeCategory]model.FeeSchedule, len(s.schedules)),
	}
	for k, v := range s.orders {
		next.orders[k] = v
	}
	for k, v := range s.orderSeq {
		next.orderSeq[k] = v
	}
	for k, v := range s.trades {
		next.trades[k] = v
	}
	for k, v := range s.fees {
		next.fees[k] = v
	}
	for k, v := range s.holdings {
		next.holdings[k] = v
	}
	for k, v := range s.transfers {
		next.transfers[k] = v
	}
	for k, v := range s.schedules {
		next.schedules[k] = v
	}
	return next
}

type memTx struct {
	st *memState
}

// --- orders ---

func (t *memTx) CreateOrder(_ context.Context, o model.Order) (model.Order, error) {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	t.st.seq++
	t.st.orders[o.ID] = o
	t.st.orderSeq[o.ID] = t.st.seq
	return o, nil
}

func (t *memTx) GetOrder(_ context.Context, id string) (model.Order, error) {
	o, ok := t.st.orders[id]
	if !ok {
		return model.Order{}, ErrNotFound
	}
	return o, nil
}

func (t *memTx) GetOrderForUpdate(ctx context.Context, id string) (model.Order, error) {
	return t.GetOrder(ctx, id)
}

func (t *memTx) ListOpenOrders(_ context.Context, productID string, side types.OrderSide) ([]model.Order, error) {
	var out []model.Order
	for _, o := range t.st.orders {
		if o.ProductID != productID || o.Side != side {
			continue
		}
		if o.Status != types.OrderStatusPending && o.Status != types.OrderStatusPartiallyFilled {
			continue
		}
		if !o.RemainingQty.IsPositive() {
			continue
		}
		out = append(out, o)
	}
	sortOpenOrders(out, side, t.st.orderSeq)
	return out, nil
}

// sortOpenOrders applies price-time priority: buys best price first
// (descending), sells best price first (ascending), ties broken by
// creation time then insertion order. Market orders (nil price) always
// lead their side.
func sortOpenOrders(orders []model.Order, side types.OrderSide, seq map[string]int64) {
	sort.Slice(orders, func(i, j int) bool {
		a, b := orders[i], orders[j]
		if (a.Price == nil) != (b.Price == nil) {
			return a.Price == nil
		}
		if a.Price != nil && b.Price != nil && !a.Price.Equal(*b.Price) {
			if side == types.OrderSideBuy {
				return a.Price.GreaterThan(*b.Price)
			}
			return a.Price.LessThan(*b.Price)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return seq[a.ID] < seq[b.ID]
	})
}

func (t *memTx) ListOrdersByUser(_ context.Context, userID string) ([]model.Order, error) {
	var out []model.Order
	for _, o := range t.st.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return t.st.orderSeq[out[i].ID] > t.st.orderSeq[out[j].ID] })
	return out, nil
}

func (t *memTx) ListExpiredOrders(_ context.Context, cutoff time.Time) ([]model.Order, error) {
	var out []model.Order
	for _, o := range t.st.orders {
		if o.Status.IsTerminal() || o.ExpiresAt == nil {
			continue
		}
		if !o.ExpiresAt.After(cutoff) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (t *memTx) UpdateOrderFill(_ context.Context, o model.Order) error {
	cur, ok := t.st.orders[o.ID]
	if !ok {
		return ErrNotFound
	}
	cur.FilledQty = o.FilledQty
	cur.RemainingQty = o.RemainingQty
	cur.AvgFillPrice = o.AvgFillPrice
	cur.AccruedFees = o.AccruedFees
	cur.Status = o.Status
	cur.UpdatedAt = time.Now().UTC()
	t.st.orders[o.ID] = cur
	return nil
}

func (t *memTx) UpdateOrderStatus(_ context.Context, id string, status types.OrderStatus) error {
	cur, ok := t.st.orders[id]
	if !ok {
		return ErrNotFound
	}
	cur.Status = status
	cur.UpdatedAt = time.Now().UTC()
	t.st.orders[id] = cur
	return nil
}

// --- trades ---

func (t *memTx) CreateTrade(_ context.Context, tr model.Trade) (model.Trade, error) {
	if tr.ID == "" {
		tr.ID = uuid.New().String()
	}
	if tr.ExecutedAt.IsZero() {
		tr.ExecutedAt = time.Now().UTC()
	}
	t.st.trades[tr.ID] = tr
	t.st.tradeIDs = append(t.st.tradeIDs, tr.ID)
	return tr, nil
}

func (t *memTx) GetTrade(_ context.Context, id string) (model.Trade, error) {
	tr, ok := t.st.trades[id]
	if !ok {
		return model.Trade{}, ErrNotFound
	}
	return tr, nil
}

func (t *memTx) ListTradesByProduct(_ context.Context, productID string, limit int) ([]model.Trade, error) {
	var out []model.Trade
	for i := len(t.st.tradeIDs) - 1; i >= 0; i-- {
		tr := t.st.trades[t.st.tradeIDs[i]]
		if tr.ProductID != productID {
			continue
		}
		out = append(out, tr)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (t *memTx) MarkTradeSettled(_ context.Context, id string, at time.Time) error {
	tr, ok := t.st.trades[id]
	if !ok {
		return ErrNotFound
	}
	tr.Status = types.TradeStatusSettled
	tr.SettledAt = &at
	t.st.trades[id] = tr
	return nil
}

func (t *memTx) MarkTradeFailed(_ context.Context, id, reason string, at time.Time) error {
	tr, ok := t.st.trades[id]
	if !ok {
		return ErrNotFound
	}
	tr.Status = types.TradeStatusFailed
	tr.FailReason = reason
	tr.FailedAt = &at
	t.st.trades[id] = tr
	return nil
}

// --- fee transactions ---

func (t *memTx) CreateFeeTransaction(_ context.Context, f model.FeeTransaction) (model.FeeTransaction, error) {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	f.UpdatedAt = now
	t.st.fees[f.ID] = f
	t.st.feeIDs = append(t.st.feeIDs, f.ID)
	return f, nil
}

func (t *memTx) UpdateFeeTransactionStatus(_ context.Context, id string, status types.FeeStatus) error {
	f, ok := t.st.fees[id]
	if !ok {
		return ErrNotFound
	}
	f.Status = status
	f.UpdatedAt = time.Now().UTC()
	t.st.fees[id] = f
	return nil
}

func (t *memTx) ListFeeTransactionsByTrade(_ context.Context, tradeID string) ([]model.FeeTransaction, error) {
	var out []model.FeeTransaction
	for _, id := range t.st.feeIDs {
		if f := t.st.fees[id]; f.TradeID == tradeID {
			out = append(out, f)
		}
	}
	return out, nil
}

// --- cash ledger ---

// LockCashAccount is a no-op: the store's single mutex already serializes
// whole scopes, so the check-then-write sequence cannot interleave.
func (t *memTx) LockCashAccount(_ context.Context, _ string) error {
	return nil
}

func (t *memTx) AppendCashEntry(_ context.Context, e model.CashEntry) (model.CashEntry, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	t.st.cash = append(t.st.cash, e)
	return e, nil
}

func (t *memTx) CashBalance(_ context.Context, userID string) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, e := range t.st.cash {
		if e.UserID == userID {
			sum = sum.Add(e.Amount)
		}
	}
	return sum, nil
}

// --- holdings ---

func holdingKey(userID, productID string) string {
	return userID + "/" + productID
}

func (t *memTx) GetHolding(_ context.Context, userID, productID string) (model.Holding, error) {
	h, ok := t.st.holdings[holdingKey(userID, productID)]
	if !ok {
		return model.Holding{}, ErrNotFound
	}
	return h, nil
}

func (t *memTx) ListHoldings(_ context.Context, userID string) ([]model.Holding, error) {
	var out []model.Holding
	for _, h := range t.st.holdings {
		if h.UserID == userID {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func (t *memTx) SaveHolding(_ context.Context, h model.Holding) (model.Holding, error) {
	key := holdingKey(h.UserID, h.ProductID)
	cur, ok := t.st.holdings[key]
	if ok && cur.Version != h.Version {
		return model.Holding{}, ErrVersionConflict
	}
	if !ok && h.Version != 0 {
		return model.Holding{}, ErrVersionConflict
	}
	h.Version++
	h.UpdatedAt = time.Now().UTC()
	t.st.holdings[key] = h
	return h, nil
}

func (t *memTx) DeleteHolding(_ context.Context, userID, productID string) error {
	key := holdingKey(userID, productID)
	if _, ok := t.st.holdings[key]; !ok {
		return ErrNotFound
	}
	delete(t.st.holdings, key)
	return nil
}

// --- custodial transfers ---

func (t *memTx) CreateTransfer(_ context.Context, tr model.CustodialTransfer) (model.CustodialTransfer, error) {
	if tr.ID == "" {
		tr.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if tr.CreatedAt.IsZero() {
		tr.CreatedAt = now
	}
	tr.UpdatedAt = now
	t.st.transfers[tr.ID] = tr
	return tr, nil
}

func (t *memTx) GetTransfer(_ context.Context, id string) (model.CustodialTransfer, error) {
	tr, ok := t.st.transfers[id]
	if !ok {
		return model.CustodialTransfer{}, ErrNotFound
	}
	return tr, nil
}

func (t *memTx) GetTransferByTrade(_ context.Context, tradeID string) (model.CustodialTransfer, error) {
	for _, tr := range t.st.transfers {
		if tr.TradeID == tradeID {
			return tr, nil
		}
	}
	return model.CustodialTransfer{}, ErrNotFound
}

func (t *memTx) ListTransfersByStatus(_ context.Context, statuses ...types.TransferStatus) ([]model.CustodialTransfer, error) {
	want := make(map[types.TransferStatus]struct{}, len(statuses))
	for _, s := range statuses {
		want[s] = struct{}{}
	}
	var out []model.CustodialTransfer
	for _, tr := range t.st.transfers {
		if _, ok := want[tr.Status]; ok {
			out = append(out, tr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (t *memTx) UpdateTransfer(_ context.Context, tr model.CustodialTransfer) error {
	if _, ok := t.st.transfers[tr.ID]; !ok {
		return ErrNotFound
	}
	tr.UpdatedAt = time.Now().UTC()
	t.st.transfers[tr.ID] = tr
	return nil
}

// --- fee schedules ---

func (t *memTx) GetFeeSchedule(_ context.Context, category types.FeeCategory) (model.FeeSchedule, error) {
	s, ok := t.st.schedules[category]
	if !ok {
		return model.FeeSchedule{}, ErrNotFound
	}
	return s, nil
}

func (t *memTx) SaveFeeSchedule(_ context.Context, s model.FeeSchedule) error {
	t.st.schedules[s.Category] = s
	return nil
}
