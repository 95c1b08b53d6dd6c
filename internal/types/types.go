package types

type OrderSide string

type OrderKind string

type OrderStatus string

type TradeStatus string

type TransferStatus string

type FeeStatus string

type FeeLeg string

type FeeCategory string

type LedgerEntryType string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

const (
	OrderKindLimit  OrderKind = "limit"
	OrderKindMarket OrderKind = "market"
)

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusRejected        OrderStatus = "rejected"
)

const (
	TradeStatusPending TradeStatus = "pending"
	TradeStatusSettled TradeStatus = "settled"
	TradeStatusFailed  TradeStatus = "failed"
)

const (
	TransferStatusPending   TransferStatus = "pending"
	TransferStatusSubmitted TransferStatus = "submitted"
	TransferStatusConfirmed TransferStatus = "confirmed"
	TransferStatusSettled   TransferStatus = "settled"
	TransferStatusFailed    TransferStatus = "failed"
	TransferStatusCancelled TransferStatus = "cancelled"
)

const (
	FeeStatusPending   FeeStatus = "pending"
	FeeStatusCollected FeeStatus = "collected"
	FeeStatusRefunded  FeeStatus = "refunded"
	FeeStatusFailed    FeeStatus = "failed"
)

const (
	FeeLegBuyer  FeeLeg = "buyer"
	FeeLegSeller FeeLeg = "seller"
)

const (
	FeeCategoryBuyerTrade  FeeCategory = "buyer_trade"
	FeeCategorySellerTrade FeeCategory = "seller_trade"
)

const (
	LedgerEntryTypeTrade  LedgerEntryType = "trade"
	LedgerEntryTypeFee    LedgerEntryType = "fee"
	LedgerEntryTypeAdjust LedgerEntryType = "adjust"
)

// IsTerminal reports whether an order can no longer change.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled || s == OrderStatusRejected
}

// IsTerminal reports whether a transfer can no longer change.
func (s TransferStatus) IsTerminal() bool {
	return s == TransferStatusSettled || s == TransferStatusFailed || s == TransferStatusCancelled
}
