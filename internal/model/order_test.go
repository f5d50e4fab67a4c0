package model

import (
	"testing"

	"github.com/shopspring/decimal"
)

func newTestOrder() *Order {
	return NewOrder("client-1", "BTC-USD", "strat-1", "acct-1",
		OrderSideBuy, OrderTypeLimit, decimal.NewFromInt(10), 1)
}

func expectPanic(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected a panic, got none")
		} else if _, ok := r.(*InvariantViolation); !ok {
			t.Errorf("expected *InvariantViolation panic, got %T: %v", r, r)
		}
	}()
	fn()
}

func TestOrderHappyPathLimitOrder(t *testing.T) {
	t.Parallel()
	o := newTestOrder()

	o.Apply(OrderEvent{Kind: EventOrderSubmitted, TsEvent: 2})
	if o.Status != OrderStatusSubmitted {
		t.Fatalf("status = %s, want SUBMITTED", o.Status)
	}

	o.Apply(OrderEvent{Kind: EventOrderAccepted, VenueOrderID: "venue-1", TsEvent: 3})
	if o.Status != OrderStatusAccepted {
		t.Fatalf("status = %s, want ACCEPTED", o.Status)
	}
	if o.VenueOrderID != "venue-1" {
		t.Errorf("VenueOrderID = %s, want venue-1", o.VenueOrderID)
	}

	o.Apply(OrderEvent{
		Kind:    EventOrderFilled,
		TsEvent: 4,
		Fill: &FillReport{
			LastQty: decimal.NewFromInt(10),
			LastPx:  decimal.NewFromInt(100),
			CumQty:  decimal.NewFromInt(10),
			AvgPx:   decimal.NewFromInt(100),
		},
	})
	if o.Status != OrderStatusFilled {
		t.Fatalf("status = %s, want FILLED", o.Status)
	}
	if !o.FilledQty.Equal(decimal.NewFromInt(10)) {
		t.Errorf("FilledQty = %s, want 10", o.FilledQty)
	}
	if len(o.Events) != 3 {
		t.Errorf("len(Events) = %d, want 3", len(o.Events))
	}
}

func TestOrderPartialThenFullFill(t *testing.T) {
	t.Parallel()
	o := newTestOrder()
	o.Apply(OrderEvent{Kind: EventOrderSubmitted, TsEvent: 1})
	o.Apply(OrderEvent{Kind: EventOrderAccepted, TsEvent: 2})

	o.Apply(OrderEvent{
		Kind:    EventOrderPartiallyFilled,
		TsEvent: 3,
		Fill: &FillReport{
			LastQty: decimal.NewFromInt(4),
			CumQty:  decimal.NewFromInt(4),
			AvgPx:   decimal.NewFromInt(100),
		},
	})
	if o.Status != OrderStatusPartiallyFilled {
		t.Fatalf("status = %s, want PARTIALLY_FILLED", o.Status)
	}
	if !o.LeavesQty().Equal(decimal.NewFromInt(6)) {
		t.Errorf("LeavesQty = %s, want 6", o.LeavesQty())
	}

	o.Apply(OrderEvent{
		Kind:    EventOrderFilled,
		TsEvent: 4,
		Fill: &FillReport{
			LastQty: decimal.NewFromInt(6),
			CumQty:  decimal.NewFromInt(10),
			AvgPx:   decimal.NewFromInt(100),
		},
	})
	if o.Status != OrderStatusFilled {
		t.Fatalf("status = %s, want FILLED", o.Status)
	}
}

func TestOrderFillCannotExceedQuantity(t *testing.T) {
	t.Parallel()
	o := newTestOrder()
	o.Apply(OrderEvent{Kind: EventOrderSubmitted, TsEvent: 1})
	o.Apply(OrderEvent{Kind: EventOrderAccepted, TsEvent: 2})

	expectPanic(t, func() {
		o.Apply(OrderEvent{
			Kind:    EventOrderFilled,
			TsEvent: 3,
			Fill: &FillReport{
				CumQty: decimal.NewFromInt(11),
				AvgPx:  decimal.NewFromInt(100),
			},
		})
	})
}

func TestOrderFillCannotRegress(t *testing.T) {
	t.Parallel()
	o := newTestOrder()
	o.Apply(OrderEvent{Kind: EventOrderSubmitted, TsEvent: 1})
	o.Apply(OrderEvent{Kind: EventOrderAccepted, TsEvent: 2})
	o.Apply(OrderEvent{
		Kind:    EventOrderPartiallyFilled,
		TsEvent: 3,
		Fill:    &FillReport{CumQty: decimal.NewFromInt(5), AvgPx: decimal.NewFromInt(100)},
	})

	expectPanic(t, func() {
		o.Apply(OrderEvent{
			Kind:    EventOrderPartiallyFilled,
			TsEvent: 4,
			Fill:    &FillReport{CumQty: decimal.NewFromInt(3), AvgPx: decimal.NewFromInt(100)},
		})
	})
}

func TestOrderCannotTransitionOutOfTerminalState(t *testing.T) {
	t.Parallel()
	o := newTestOrder()
	o.Apply(OrderEvent{Kind: EventOrderSubmitted, TsEvent: 1})
	o.Apply(OrderEvent{Kind: EventOrderRejected, TsEvent: 2})

	if !o.Status.IsTerminal() {
		t.Fatal("REJECTED should be terminal")
	}
	expectPanic(t, func() {
		o.Apply(OrderEvent{Kind: EventOrderAccepted, TsEvent: 3})
	})
}

func TestOrderCancelRejectedRestoresPriorStatus(t *testing.T) {
	t.Parallel()
	o := newTestOrder()
	o.Apply(OrderEvent{Kind: EventOrderSubmitted, TsEvent: 1})
	o.Apply(OrderEvent{Kind: EventOrderAccepted, TsEvent: 2})
	o.Apply(OrderEvent{
		Kind:    EventOrderPartiallyFilled,
		TsEvent: 3,
		Fill:    &FillReport{CumQty: decimal.NewFromInt(4), AvgPx: decimal.NewFromInt(100)},
	})

	o.Apply(OrderEvent{Kind: EventOrderPendingCancel, TsEvent: 4})
	if o.Status != OrderStatusPendingCancel {
		t.Fatalf("status = %s, want PENDING_CANCEL", o.Status)
	}

	o.Apply(OrderEvent{Kind: EventOrderCancelRejected, TsEvent: 5})
	if o.Status != OrderStatusPartiallyFilled {
		t.Fatalf("status after cancel-reject = %s, want PARTIALLY_FILLED (restored)", o.Status)
	}
}

func TestOrderDeniedNeverReachesSubmitted(t *testing.T) {
	t.Parallel()
	o := newTestOrder()
	o.Apply(OrderEvent{Kind: EventOrderDenied, Reason: "POST_ONLY_NOT_SUPPORTED", TsEvent: 1})
	if o.Status != OrderStatusDenied {
		t.Fatalf("status = %s, want DENIED", o.Status)
	}
	if !o.Status.IsTerminal() {
		t.Error("DENIED should be terminal")
	}
}
