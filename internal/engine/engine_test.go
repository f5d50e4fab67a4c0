package engine

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nautilus-go/exec-core/internal/bus"
	"github.com/nautilus-go/exec-core/internal/cache"
	"github.com/nautilus-go/exec-core/internal/clock"
	"github.com/nautilus-go/exec-core/internal/httpx"
	"github.com/nautilus-go/exec-core/internal/model"
	"github.com/nautilus-go/exec-core/internal/venue"
	"github.com/nautilus-go/exec-core/internal/venue/sandbox"
)

const testAccountID model.AccountID = "acct-1"
const testInstrumentID model.InstrumentId = "BTC-USD"

func newTestEngine(t *testing.T, caps venue.Capabilities) (*Engine, *sandbox.Venue, *cache.Cache) {
	t.Helper()

	c := cache.New(nil)
	c.AddInstrument(model.Instrument{
		ID:             testInstrumentID,
		PricePrecision: 2,
		SizePrecision:  2,
		MinQuantity:    decimal.NewFromInt(1),
	})
	acct := model.NewAccount(testAccountID, model.AccountTypeCash)
	acct.Apply(model.AccountStateEvent{
		AccountID: testAccountID,
		Type:      model.AccountTypeCash,
		Balances:  []model.Balance{{Currency: "USD", Total: decimal.NewFromInt(1000000), Locked: decimal.Zero}},
	})
	c.AddAccount(acct)

	v := sandbox.New(caps)
	b := bus.New(nil)
	clk := clock.NewTest(time.Unix(1700000000, 0))

	cfg := Config{
		AccountID:   testAccountID,
		OMS:         model.OMSNetting,
		RetryPolicy: httpx.RetryPolicy{Initial: time.Millisecond, Factor: 1, Max: time.Millisecond, MaxRetries: 1},
	}

	e := New(cfg, "sandbox", c, b, clk, v, v, httpx.NewLimiter(), nil)
	return e, v, c
}

func submitCmd(clientOrderID model.ClientOrderID) SubmitOrderCommand {
	return SubmitOrderCommand{
		CommandID:     "cmd-1",
		ClientOrderID: clientOrderID,
		InstrumentID:  testInstrumentID,
		StrategyID:    "strat-1",
		AccountID:     testAccountID,
		Side:          model.OrderSideBuy,
		Type:          model.OrderTypeLimit,
		Quantity:      decimal.NewFromInt(10),
		Price:         decimal.NewFromInt(100),
		TimeInForce:   model.TimeInForceGTC,
	}
}

func TestSubmitOrderHappyPathReachesAccepted(t *testing.T) {
	t.Parallel()
	e, _, c := newTestEngine(t, venue.Capabilities{})

	if err := e.SubmitOrder(context.Background(), submitCmd("client-1")); err != nil {
		t.Fatalf("SubmitOrder() error = %v", err)
	}

	o, ok := c.Order("client-1")
	if !ok {
		t.Fatal("order was not added to the cache")
	}
	if o.Status != model.OrderStatusAccepted {
		t.Errorf("status = %s, want ACCEPTED", o.Status)
	}
	if o.VenueOrderID == "" {
		t.Error("expected a VenueOrderID to be recorded")
	}
}

func TestSubmitOrderPostOnlyDeniedWhenUnsupported(t *testing.T) {
	t.Parallel()
	e, _, c := newTestEngine(t, venue.Capabilities{SupportsPostOnly: false})

	cmd := submitCmd("client-1")
	cmd.PostOnly = true

	err := e.SubmitOrder(context.Background(), cmd)
	if err == nil {
		t.Fatal("expected a denial error for unsupported POST_ONLY")
	}
	de, ok := err.(*DeniedError)
	if !ok {
		t.Fatalf("error type = %T, want *DeniedError", err)
	}
	if de.Reason != model.DenialPostOnlyNotSupported {
		t.Errorf("Reason = %s, want POST_ONLY_NOT_SUPPORTED", de.Reason)
	}

	o, ok := c.Order("client-1")
	if !ok {
		t.Fatal("a denied order should still be recorded in the cache")
	}
	if o.Status != model.OrderStatusDenied {
		t.Errorf("status = %s, want DENIED", o.Status)
	}
}

func TestSubmitOrderDuplicateClientOrderIDDenied(t *testing.T) {
	t.Parallel()
	e, _, _ := newTestEngine(t, venue.Capabilities{})

	if err := e.SubmitOrder(context.Background(), submitCmd("client-1")); err != nil {
		t.Fatalf("first SubmitOrder() error = %v", err)
	}

	err := e.SubmitOrder(context.Background(), submitCmd("client-1"))
	de, ok := err.(*DeniedError)
	if !ok {
		t.Fatalf("error type = %T, want *DeniedError", err)
	}
	if de.Reason != model.DenialDuplicateClientOrderID {
		t.Errorf("Reason = %s, want DUPLICATE_CLIENT_ORDER_ID", de.Reason)
	}
}

func TestSubmitOrderUnknownInstrumentDenied(t *testing.T) {
	t.Parallel()
	e, _, _ := newTestEngine(t, venue.Capabilities{})

	cmd := submitCmd("client-1")
	cmd.InstrumentID = "DOES-NOT-EXIST"

	err := e.SubmitOrder(context.Background(), cmd)
	de, ok := err.(*DeniedError)
	if !ok {
		t.Fatalf("error type = %T, want *DeniedError", err)
	}
	if de.Reason != model.DenialInstrumentNotFound {
		t.Errorf("Reason = %s, want INSTRUMENT_NOT_FOUND", de.Reason)
	}
}

func TestSubmitOrderVenueDenialRejectsOrder(t *testing.T) {
	t.Parallel()
	e, v, c := newTestEngine(t, venue.Capabilities{})
	v.DenyNext = "BAD_REQUEST"

	err := e.SubmitOrder(context.Background(), submitCmd("client-1"))
	if err == nil {
		t.Fatal("expected an error when the venue denies submission")
	}

	o, _ := c.Order("client-1")
	if o.Status != model.OrderStatusRejected {
		t.Errorf("status = %s, want REJECTED", o.Status)
	}
}

func TestCancelOrderHappyPath(t *testing.T) {
	t.Parallel()
	e, _, c := newTestEngine(t, venue.Capabilities{})
	e.SubmitOrder(context.Background(), submitCmd("client-1"))

	if err := e.CancelOrder(context.Background(), CancelOrderCommand{ClientOrderID: "client-1"}); err != nil {
		t.Fatalf("CancelOrder() error = %v", err)
	}

	o, _ := c.Order("client-1")
	if o.Status != model.OrderStatusCanceled {
		t.Errorf("status = %s, want CANCELED", o.Status)
	}
}

func TestCancelOrderUnknownClientOrderIDErrors(t *testing.T) {
	t.Parallel()
	e, _, _ := newTestEngine(t, venue.Capabilities{})
	err := e.CancelOrder(context.Background(), CancelOrderCommand{ClientOrderID: "never-submitted"})
	if err == nil {
		t.Error("expected an error canceling an order the engine never tracked")
	}
}

func TestCancelOrderNotOpenErrors(t *testing.T) {
	t.Parallel()
	e, _, _ := newTestEngine(t, venue.Capabilities{})
	e.SubmitOrder(context.Background(), submitCmd("client-1"))
	e.CancelOrder(context.Background(), CancelOrderCommand{ClientOrderID: "client-1"})

	err := e.CancelOrder(context.Background(), CancelOrderCommand{ClientOrderID: "client-1"})
	if err == nil {
		t.Error("expected an error canceling an order that is already terminal")
	}
}

func TestCancelAllSideSpecificDeniedWhenUnsupported(t *testing.T) {
	t.Parallel()
	e, _, _ := newTestEngine(t, venue.Capabilities{SupportsSideSpecificCancelAll: false})

	err := e.CancelAll(context.Background(), CancelAllCommand{InstrumentID: testInstrumentID, Side: model.OrderSideBuy, SideSet: true})
	de, ok := err.(*DeniedError)
	if !ok {
		t.Fatalf("error type = %T, want *DeniedError", err)
	}
	if de.Reason != model.DenialSideSpecificCancelUnsupported {
		t.Errorf("Reason = %s, want SIDE_SPECIFIC_CANCEL_UNSUPPORTED", de.Reason)
	}
}

func TestCancelAllCancelsOnlyOpenOrdersForInstrument(t *testing.T) {
	t.Parallel()
	e, _, c := newTestEngine(t, venue.Capabilities{})
	c.AddInstrument(model.Instrument{ID: "ETH-USD", PricePrecision: 2, SizePrecision: 2, MinQuantity: decimal.NewFromInt(1)})

	e.SubmitOrder(context.Background(), submitCmd("client-1"))
	ethCmd := submitCmd("client-2")
	ethCmd.InstrumentID = "ETH-USD"
	e.SubmitOrder(context.Background(), ethCmd)

	if err := e.CancelAll(context.Background(), CancelAllCommand{InstrumentID: testInstrumentID}); err != nil {
		t.Fatalf("CancelAll() error = %v", err)
	}

	btc, _ := c.Order("client-1")
	eth, _ := c.Order("client-2")
	if btc.Status != model.OrderStatusCanceled {
		t.Errorf("BTC order status = %s, want CANCELED", btc.Status)
	}
	if eth.Status == model.OrderStatusCanceled {
		t.Error("ETH order should not have been canceled by a BTC-scoped CancelAll")
	}
}

func TestFillAppliesToNettingPosition(t *testing.T) {
	t.Parallel()
	e, v, c := newTestEngine(t, venue.Capabilities{})
	e.SubmitOrder(context.Background(), submitCmd("client-1"))

	if _, err := v.Fill("client-1", decimal.NewFromInt(10), decimal.NewFromInt(105)); err != nil {
		t.Fatalf("Fill() error = %v", err)
	}

	e.applyAndPublish(model.OrderEvent{
		Kind:          model.EventOrderFilled,
		ClientOrderID: "client-1",
		TsEvent:       2,
		Fill: &model.FillReport{
			LastQty: decimal.NewFromInt(10),
			LastPx:  decimal.NewFromInt(105),
			CumQty:  decimal.NewFromInt(10),
			AvgPx:   decimal.NewFromInt(105),
		},
	})

	pos := c.PositionForNetting(testInstrumentID, "strat-1", testAccountID)
	if !pos.Quantity.Equal(decimal.NewFromInt(10)) {
		t.Errorf("position Quantity = %s, want 10", pos.Quantity)
	}
}

func TestStopCancelsOpenOrdersAndDisconnects(t *testing.T) {
	t.Parallel()
	e, v, c := newTestEngine(t, venue.Capabilities{})
	if err := e.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	e.SubmitOrder(context.Background(), submitCmd("client-1"))

	e.Stop()

	o, _ := c.Order("client-1")
	if o.Status != model.OrderStatusCanceled {
		t.Errorf("status after Stop() = %s, want CANCELED (safety-net cancel)", o.Status)
	}
	if v.IsConnected() {
		t.Error("venue should be disconnected after Stop()")
	}
}
