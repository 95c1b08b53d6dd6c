// Package audit publishes an event for every trade and settlement
// transition. Downstream consumers (compliance, reconciliation, the
// websocket feed) subscribe; slow subscribers drop events rather than
// block the trading path.
package audit

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	EventTradeExecuted     = "trade_executed"
	EventTradeRejected     = "trade_rejected"
	EventTradeFailed       = "trade_failed"
	EventTradeSettled      = "trade_settled"
	EventTransferSubmitted = "transfer_submitted"
	EventTransferConfirmed = "transfer_confirmed"
	EventTransferFailed    = "transfer_failed"
	EventTransferCancelled = "transfer_cancelled"
	EventOrderCancelled    = "order_cancelled"
)

type Event struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Data any       `json:"data"`
}

type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
	log  *zap.Logger
}

func NewBus(log *zap.Logger) *Bus {
	return &Bus{subs: make(map[chan Event]struct{}), log: log}
}

func (b *Bus) Subscribe() chan Event {
	ch := make(chan Event, 100)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

func (b *Bus) Publish(eventType string, data any) {
	evt := Event{Type: eventType, At: time.Now().UTC(), Data: data}
	b.log.Info("audit event", zap.String("event", eventType), zap.Any("data", data))
	b.mu.RLock()
	for ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.RUnlock()
}
