// Package orders handles order intake and lifecycle outside of fills:
// validation, creation, cancellation, and expiry. Fill state is written
// only by the execution coordinator.
package orders

import (
	"context"
	"errors"
	"time"

	"lv-securities/internal/audit"
	"lv-securities/internal/model"
	"lv-securities/internal/store"
	"lv-securities/internal/types"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrValidation     = errors.New("orders: invalid order")
	ErrNotOwner       = errors.New("orders: order belongs to another user")
	ErrNotCancellable = errors.New("orders: order is already closed")
)

type Service struct {
	db  store.DB
	bus *audit.Bus
	log *zap.Logger
}

func NewService(db store.DB, bus *audit.Bus, log *zap.Logger) *Service {
	return &Service{db: db, bus: bus, log: log}
}

type PlaceOrderRequest struct {
	UserID    string
	ProductID string
	Side      types.OrderSide
	Kind      types.OrderKind
	Price     *decimal.Decimal
	Qty       decimal.Decimal
	ExpiresAt *time.Time
}

func validatePlace(req PlaceOrderRequest) error {
	if req.UserID == "" || req.ProductID == "" {
		return errors.New("missing user or product")
	}
	if req.Side != types.OrderSideBuy && req.Side != types.OrderSideSell {
		return errors.New("invalid side")
	}
	if req.Kind != types.OrderKindLimit && req.Kind != types.OrderKindMarket {
		return errors.New("invalid kind")
	}
	if req.Kind == types.OrderKindLimit {
		if req.Price == nil || !req.Price.IsPositive() {
			return errors.New("limit orders require a positive price")
		}
	} else if req.Price != nil {
		return errors.New("price not allowed for market orders")
	}
	if !req.Qty.IsPositive() {
		return errors.New("qty must be positive")
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(time.Now()) {
		return errors.New("expiry must be in the future")
	}
	return nil
}

func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (model.Order, error) {
	if err := validatePlace(req); err != nil {
		return model.Order{}, errors.Join(ErrValidation, err)
	}
	var order model.Order
	err := s.db.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		order, err = tx.CreateOrder(ctx, model.Order{
			UserID:       req.UserID,
			ProductID:    req.ProductID,
			Side:         req.Side,
			Kind:         req.Kind,
			Status:       types.OrderStatusPending,
			Price:        req.Price,
			Qty:          req.Qty,
			FilledQty:    decimal.Zero,
			RemainingQty: req.Qty,
			AvgFillPrice: decimal.Zero,
			AccruedFees:  decimal.Zero,
			ExpiresAt:    req.ExpiresAt,
		})
		return err
	})
	if err != nil {
		return model.Order{}, err
	}
	s.log.Info("order placed",
		zap.String("order_id", order.ID),
		zap.String("user_id", order.UserID),
		zap.String("product_id", order.ProductID),
		zap.String("side", string(order.Side)),
		zap.String("qty", order.Qty.String()),
	)
	return order, nil
}

// Cancel moves a non-terminal order to cancelled. The order row is
// locked so a cancel cannot race a fill for the same order.
func (s *Service) Cancel(ctx context.Context, userID, orderID string) (model.Order, error) {
	var order model.Order
	err := s.db.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		order, err = tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.UserID != userID {
			return ErrNotOwner
		}
		if order.Status.IsTerminal() {
			return ErrNotCancellable
		}
		order.Status = types.OrderStatusCancelled
		return tx.UpdateOrderStatus(ctx, orderID, types.OrderStatusCancelled)
	})
	if err != nil {
		return model.Order{}, err
	}
	s.bus.Publish(audit.EventOrderCancelled, map[string]string{
		"order_id": order.ID,
		"user_id":  order.UserID,
	})
	return order, nil
}

func (s *Service) Get(ctx context.Context, orderID string) (model.Order, error) {
	var order model.Order
	err := s.db.View(ctx, func(tx store.Tx) error {
		var err error
		order, err = tx.GetOrder(ctx, orderID)
		return err
	})
	return order, err
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]model.Order, error) {
	var out []model.Order
	err := s.db.View(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListOrdersByUser(ctx, userID)
		return err
	})
	return out, err
}

// ExpireSweep cancels every open order whose expiry has passed. Returns
// the number of orders cancelled.
func (s *Service) ExpireSweep(ctx context.Context, now time.Time) (int, error) {
	expired := 0
	err := s.db.WithinTx(ctx, func(tx store.Tx) error {
		orders, err := tx.ListExpiredOrders(ctx, now)
		if err != nil {
			return err
		}
		for _, o := range orders {
			if err := tx.UpdateOrderStatus(ctx, o.ID, types.OrderStatusCancelled); err != nil {
				return err
			}
			expired++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if expired > 0 {
		s.log.Info("expired orders cancelled", zap.Int("count", expired))
	}
	return expired, nil
}
