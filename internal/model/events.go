package model

import "github.com/shopspring/decimal"

// OrderEventKind discriminates the events an Order.Apply dispatches on.
type OrderEventKind string

const (
	EventOrderSubmitted        OrderEventKind = "OrderSubmitted"
	EventOrderAccepted         OrderEventKind = "OrderAccepted"
	EventOrderRejected         OrderEventKind = "OrderRejected"
	EventOrderPendingUpdate    OrderEventKind = "OrderPendingUpdate"
	EventOrderUpdated          OrderEventKind = "OrderUpdated"
	EventOrderPendingCancel    OrderEventKind = "OrderPendingCancel"
	EventOrderCanceled         OrderEventKind = "OrderCanceled"
	EventOrderCancelRejected   OrderEventKind = "OrderCancelRejected"
	EventOrderModifyRejected   OrderEventKind = "OrderModifyRejected"
	EventOrderExpired          OrderEventKind = "OrderExpired"
	EventOrderTriggered        OrderEventKind = "OrderTriggered"
	EventOrderPartiallyFilled  OrderEventKind = "OrderPartiallyFilled"
	EventOrderFilled           OrderEventKind = "OrderFilled"
	EventOrderDenied           OrderEventKind = "OrderDenied"
)

// OrderEvent is the common envelope for every order lifecycle event. Each
// concrete payload is carried in the Fill/Reason/etc fields that apply to
// its Kind; fields irrelevant to a given Kind are left zero.
type OrderEvent struct {
	Kind          OrderEventKind
	ClientOrderID ClientOrderID
	VenueOrderID  VenueOrderID // may be empty (e.g. Denied, pre-accept Rejected)
	AccountID     AccountID
	TsEvent       UnixNanos
	TsInit        UnixNanos

	// Rejected / Denied / ModifyRejected / CancelRejected
	Reason string

	// Updated (modify accepted): new terms, zero value = unchanged
	Price        decimal.Decimal
	TriggerPrice decimal.Decimal
	Quantity     decimal.Decimal

	// PartiallyFilled / Filled
	Fill *FillReport
}

// FillReport carries everything a single execution report needs to update
// an order and its position — it must round-trip unchanged through
// reconciliation.
type FillReport struct {
	TradeID        TradeID
	LastQty        decimal.Decimal // quantity filled by this report
	LastPx         decimal.Decimal // price of this fill
	CumQty         decimal.Decimal // cumulative filled quantity after this report
	AvgPx          decimal.Decimal // cumulative average fill price after this report
	Liquidity      LiquiditySide
	CommissionCcy  string
	Commission     decimal.Decimal
}

// PositionEventKind discriminates position lifecycle notifications.
type PositionEventKind string

const (
	PositionOpened  PositionEventKind = "PositionOpened"
	PositionChanged PositionEventKind = "PositionChanged"
	PositionClosed  PositionEventKind = "PositionClosed"
)

// PositionEvent is published whenever a position transitions.
type PositionEvent struct {
	Kind        PositionEventKind
	PositionID  PositionID
	InstrumentID InstrumentId
	Side        PositionSide
	Quantity    decimal.Decimal
	AvgEntryPx  decimal.Decimal
	RealizedPnL decimal.Decimal
	TsEvent     UnixNanos
}

// AccountStateEvent replaces an account's balances/margins wholesale —
// older states are retained for audit but the newest is authoritative.
type AccountStateEvent struct {
	AccountID AccountID
	Type      AccountType
	Balances  []Balance
	Margins   []MarginBalance
	TsEvent   UnixNanos
	Reported  bool // true if this came from the venue, false if synthesized locally
}
