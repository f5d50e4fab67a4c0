package model

import "github.com/shopspring/decimal"

// OrderStatusReport is the venue's view of a single order, as returned by
// a query-orders call. The reconciliation driver diffs this against the
// Cache's local Order to find missed events via a snapshot -> diff ->
// synthesize -> re-diff convergence loop.
type OrderStatusReport struct {
	ClientOrderID ClientOrderID
	VenueOrderID  VenueOrderID
	InstrumentID  InstrumentId
	Side          OrderSide
	Type          OrderType
	Status        OrderStatus
	Quantity      decimal.Decimal
	FilledQty     decimal.Decimal
	AvgFillPx     decimal.Decimal
	Price         decimal.Decimal
	TsLastEvent   UnixNanos
}

// FillReportSnapshot is the venue's view of a single execution, used to
// synthesize missing OrderPartiallyFilled/OrderFilled events during
// reconciliation.
type FillReportSnapshot struct {
	ClientOrderID ClientOrderID
	VenueOrderID  VenueOrderID
	TradeID       TradeID
	InstrumentID  InstrumentId
	Side          OrderSide
	LastQty       decimal.Decimal
	LastPx        decimal.Decimal
	Liquidity     LiquiditySide
	Commission    decimal.Decimal
	CommissionCcy string
	TsEvent       UnixNanos
}

// PositionStatusReport is the venue's view of a single net position.
type PositionStatusReport struct {
	InstrumentID InstrumentId
	Side         PositionSide
	Quantity     decimal.Decimal
	AvgEntryPx   decimal.Decimal
}

// ExecutionMassStatus bundles everything a reconciliation pass pulls from
// a venue in one round trip: open/closed orders, recent fills, and net
// positions, all as of TsInit.
type ExecutionMassStatus struct {
	AccountID  AccountID
	Orders     []OrderStatusReport
	Fills      []FillReportSnapshot
	Positions  []PositionStatusReport
	TsInit     UnixNanos
}

// Snapshot is an immutable, point-in-time capture of an Order or Position
// for audit and durable-cache replay. Unlike OrderStatusReport (which
// represents the venue's own belief), a Snapshot always represents the
// Cache's local belief at TsSnapshot.
type Snapshot struct {
	Kind       string // "ORDER" or "POSITION"
	EntityID   string // ClientOrderID or PositionID, as string
	TsSnapshot UnixNanos
	Order      *Order
	Position   *Position
}
