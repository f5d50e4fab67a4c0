package model

import "github.com/shopspring/decimal"

// Order is the event-sourced representation of a single client order. All
// mutation goes through Apply; nothing else may assign to its fields once
// constructed. The Events slice is the append-only audit trail of every
// applied event, from which Status can be reconstructed deterministically.
type Order struct {
	ClientOrderID ClientOrderID
	VenueOrderID  VenueOrderID
	InstrumentID  InstrumentId
	StrategyID    StrategyID
	AccountID     AccountID
	OrderListID   OrderListID

	Side         OrderSide
	Type         OrderType
	Quantity     decimal.Decimal
	Price        decimal.Decimal // zero for MARKET
	TriggerPrice decimal.Decimal // zero unless STOP_MARKET/STOP_LIMIT
	TimeInForce  TimeInForce
	ExpireTimeNs UnixNanos

	PostOnly   bool
	ReduceOnly bool
	DisplayQty decimal.Decimal // zero = fully displayed
	IsQuoteQty bool            // Quantity is denominated in quote currency

	Contingency     ContingencyType
	LinkedOrderIDs  []ClientOrderID
	ParentOrderID   ClientOrderID

	Status      OrderStatus
	FilledQty   decimal.Decimal
	AvgFillPx   decimal.Decimal
	LastTradeID TradeID
	DenyReason  DenialReason
	RejectReason string

	TsInit      UnixNanos
	TsLastEvent UnixNanos

	Events []OrderEvent
}

// NewOrder constructs an order in INITIALIZED state, not yet submitted
// anywhere. Nothing is validated here; command validation happens in the
// engine before Apply(Submitted) is ever called.
func NewOrder(clientOrderID ClientOrderID, instrumentID InstrumentId, strategyID StrategyID,
	accountID AccountID, side OrderSide, typ OrderType, quantity decimal.Decimal, tsInit UnixNanos) *Order {
	return &Order{
		ClientOrderID: clientOrderID,
		InstrumentID:  instrumentID,
		StrategyID:    strategyID,
		AccountID:     accountID,
		Side:          side,
		Type:          typ,
		Quantity:      quantity,
		TimeInForce:   TimeInForceGTC,
		Contingency:   ContingencyNone,
		Status:        OrderStatusInitialized,
		FilledQty:     decimal.Zero,
		TsInit:        tsInit,
		TsLastEvent:   tsInit,
	}
}

// IsOpen reports whether the order can still receive fills or be canceled.
func (o *Order) IsOpen() bool {
	switch o.Status {
	case OrderStatusAccepted, OrderStatusPartiallyFilled, OrderStatusTriggered,
		OrderStatusPendingUpdate, OrderStatusPendingCancel:
		return true
	default:
		return false
	}
}

// LeavesQty is the quantity still open for fills.
func (o *Order) LeavesQty() decimal.Decimal {
	return o.Quantity.Sub(o.FilledQty)
}

// Apply dispatches an event against the order's current state. A
// transition that is not valid for Status panics with InvariantViolation:
// this indicates a venue event was routed to the wrong order, or a bug in
// the code that produced it, not a recoverable runtime condition (spec
// §4.3, §7).
func (o *Order) Apply(ev OrderEvent) {
	if o.Status.IsTerminal() {
		PanicInvariant("Order", "cannot apply %s to %s in terminal state %s", ev.Kind, o.ClientOrderID, o.Status)
	}

	switch ev.Kind {
	case EventOrderDenied:
		o.mustBeIn(ev, OrderStatusInitialized)
		o.Status = OrderStatusDenied
		o.DenyReason = DenialReason(ev.Reason)

	case EventOrderSubmitted:
		o.mustBeIn(ev, OrderStatusInitialized)
		o.Status = OrderStatusSubmitted

	case EventOrderRejected:
		o.mustBeIn(ev, OrderStatusSubmitted)
		o.Status = OrderStatusRejected
		o.RejectReason = ev.Reason

	case EventOrderAccepted:
		o.mustBeIn(ev, OrderStatusSubmitted, OrderStatusPendingUpdate)
		o.Status = OrderStatusAccepted
		if ev.VenueOrderID != "" {
			o.VenueOrderID = ev.VenueOrderID
		}

	case EventOrderTriggered:
		o.mustBeIn(ev, OrderStatusAccepted)
		o.Status = OrderStatusTriggered

	case EventOrderPendingUpdate:
		o.mustBeIn(ev, OrderStatusAccepted, OrderStatusTriggered, OrderStatusPartiallyFilled)
		o.Status = OrderStatusPendingUpdate

	case EventOrderUpdated:
		o.mustBeIn(ev, OrderStatusPendingUpdate)
		o.Status = o.statusBeforePending()
		if !ev.Price.IsZero() {
			o.Price = ev.Price
		}
		if !ev.TriggerPrice.IsZero() {
			o.TriggerPrice = ev.TriggerPrice
		}
		if !ev.Quantity.IsZero() {
			o.Quantity = ev.Quantity
		}

	case EventOrderModifyRejected:
		o.mustBeIn(ev, OrderStatusPendingUpdate)
		o.Status = o.statusBeforePending()

	case EventOrderPendingCancel:
		o.mustBeIn(ev, OrderStatusAccepted, OrderStatusTriggered, OrderStatusPartiallyFilled)
		o.Status = OrderStatusPendingCancel

	case EventOrderCanceled:
		o.mustBeIn(ev, OrderStatusPendingCancel, OrderStatusAccepted, OrderStatusTriggered, OrderStatusPartiallyFilled)
		o.Status = OrderStatusCanceled

	case EventOrderCancelRejected:
		o.mustBeIn(ev, OrderStatusPendingCancel)
		o.Status = o.statusBeforePending()

	case EventOrderExpired:
		o.mustBeIn(ev, OrderStatusAccepted, OrderStatusTriggered, OrderStatusPartiallyFilled)
		o.Status = OrderStatusExpired

	case EventOrderPartiallyFilled, EventOrderFilled:
		o.mustBeIn(ev, OrderStatusAccepted, OrderStatusTriggered, OrderStatusPartiallyFilled)
		o.applyFill(ev)

	default:
		PanicInvariant("Order", "unknown event kind %s for %s", ev.Kind, o.ClientOrderID)
	}

	o.TsLastEvent = ev.TsEvent
	o.Events = append(o.Events, ev)
}

func (o *Order) applyFill(ev OrderEvent) {
	if ev.Fill == nil {
		PanicInvariant("Order", "fill event for %s carries no FillReport", o.ClientOrderID)
	}
	f := ev.Fill
	if f.CumQty.GreaterThan(o.Quantity) {
		PanicInvariant("Order", "cumulative fill %s exceeds order quantity %s for %s", f.CumQty, o.Quantity, o.ClientOrderID)
	}
	if f.CumQty.LessThan(o.FilledQty) {
		PanicInvariant("Order", "cumulative fill %s regressed below prior %s for %s", f.CumQty, o.FilledQty, o.ClientOrderID)
	}
	o.FilledQty = f.CumQty
	o.AvgFillPx = f.AvgPx
	o.LastTradeID = f.TradeID
	if o.FilledQty.Equal(o.Quantity) {
		o.Status = OrderStatusFilled
	} else {
		o.Status = OrderStatusPartiallyFilled
	}
}

// statusBeforePending recovers the status that preceded a PENDING_UPDATE or
// PENDING_CANCEL transition, derived from FilledQty since the order's own
// field was already overwritten going into the pending state.
func (o *Order) statusBeforePending() OrderStatus {
	if o.FilledQty.IsZero() {
		return OrderStatusAccepted
	}
	return OrderStatusPartiallyFilled
}

func (o *Order) mustBeIn(ev OrderEvent, allowed ...OrderStatus) {
	for _, s := range allowed {
		if o.Status == s {
			return
		}
	}
	PanicInvariant("Order", "%s invalid from status %s for %s", ev.Kind, o.Status, o.ClientOrderID)
}
