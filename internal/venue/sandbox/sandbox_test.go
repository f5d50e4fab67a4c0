package sandbox

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/nautilus-go/exec-core/internal/model"
	"github.com/nautilus-go/exec-core/internal/venue"
)

func testOrder(clientOrderID model.ClientOrderID) *model.Order {
	return model.NewOrder(clientOrderID, "BTC-USD", "strat-1", "acct-1",
		model.OrderSideBuy, model.OrderTypeLimit, decimal.NewFromInt(10), 1)
}

func TestConnectDisconnectTracksState(t *testing.T) {
	t.Parallel()
	v := New(venue.Capabilities{})
	ctx := context.Background()

	if v.IsConnected() {
		t.Fatal("should start disconnected")
	}
	if err := v.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !v.IsConnected() {
		t.Error("should be connected after Connect")
	}
	if err := v.Disconnect(ctx); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if v.IsConnected() {
		t.Error("should be disconnected after Disconnect")
	}
}

func TestSubmitOrderAcceptsAndMintsVenueOrderID(t *testing.T) {
	t.Parallel()
	v := New(venue.Capabilities{})
	order := testOrder("client-1")

	venueOrderID, err := v.SubmitOrder(context.Background(), order)
	if err != nil {
		t.Fatalf("SubmitOrder() error = %v", err)
	}
	if venueOrderID == "" {
		t.Error("expected a non-empty VenueOrderID")
	}
}

func TestSubmitOrderDeniedByDenyNext(t *testing.T) {
	t.Parallel()
	v := New(venue.Capabilities{})
	v.DenyNext = "POST_ONLY_NOT_SUPPORTED"

	_, err := v.SubmitOrder(context.Background(), testOrder("client-1"))
	if err == nil {
		t.Fatal("expected a denial error")
	}
	if v.DenyNext != "" {
		t.Error("DenyNext should be consumed after one denial")
	}

	// The next submission should succeed normally.
	if _, err := v.SubmitOrder(context.Background(), testOrder("client-2")); err != nil {
		t.Errorf("second SubmitOrder() error = %v, want nil (DenyNext already consumed)", err)
	}
}

func TestCancelOrderMarksCanceled(t *testing.T) {
	t.Parallel()
	v := New(venue.Capabilities{})
	order := testOrder("client-1")
	v.SubmitOrder(context.Background(), order)

	if err := v.CancelOrder(context.Background(), order); err != nil {
		t.Fatalf("CancelOrder() error = %v", err)
	}

	status, err := v.GenerateMassStatus(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("GenerateMassStatus() error = %v", err)
	}
	if len(status.Orders) != 1 || status.Orders[0].Status != model.OrderStatusCanceled {
		t.Errorf("orders = %+v, want one CANCELED order", status.Orders)
	}
}

func TestCancelOrderUnknownClientOrderIDErrors(t *testing.T) {
	t.Parallel()
	v := New(venue.Capabilities{})
	err := v.CancelOrder(context.Background(), testOrder("never-submitted"))
	if err == nil {
		t.Fatal("expected an error canceling an order the sandbox never accepted")
	}
}

func TestCancelAllOrdersOnlyTouchesMatchingInstrument(t *testing.T) {
	t.Parallel()
	v := New(venue.Capabilities{})
	btc := model.NewOrder("client-1", "BTC-USD", "strat-1", "acct-1", model.OrderSideBuy, model.OrderTypeLimit, decimal.NewFromInt(10), 1)
	eth := model.NewOrder("client-2", "ETH-USD", "strat-1", "acct-1", model.OrderSideBuy, model.OrderTypeLimit, decimal.NewFromInt(10), 1)
	v.SubmitOrder(context.Background(), btc)
	v.SubmitOrder(context.Background(), eth)

	if err := v.CancelAllOrders(context.Background(), "BTC-USD"); err != nil {
		t.Fatalf("CancelAllOrders() error = %v", err)
	}

	status, _ := v.GenerateMassStatus(context.Background(), "acct-1")
	for _, o := range status.Orders {
		switch o.InstrumentID {
		case "BTC-USD":
			if o.Status != model.OrderStatusCanceled {
				t.Errorf("BTC-USD order status = %s, want CANCELED", o.Status)
			}
		case "ETH-USD":
			if o.Status == model.OrderStatusCanceled {
				t.Error("ETH-USD order should not have been canceled")
			}
		}
	}
}

func TestFillPartialThenFullRecomputesAvgPrice(t *testing.T) {
	t.Parallel()
	v := New(venue.Capabilities{})
	order := testOrder("client-1")
	v.SubmitOrder(context.Background(), order)

	fill1, err := v.Fill("client-1", decimal.NewFromInt(4), decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("first Fill() error = %v", err)
	}
	if !fill1.LastQty.Equal(decimal.NewFromInt(4)) {
		t.Errorf("fill1.LastQty = %s, want 4", fill1.LastQty)
	}

	status, _ := v.GenerateMassStatus(context.Background(), "acct-1")
	if status.Orders[0].Status != model.OrderStatusPartiallyFilled {
		t.Fatalf("status after partial fill = %s, want PARTIALLY_FILLED", status.Orders[0].Status)
	}

	if _, err := v.Fill("client-1", decimal.NewFromInt(6), decimal.NewFromInt(200)); err != nil {
		t.Fatalf("second Fill() error = %v", err)
	}

	status, _ = v.GenerateMassStatus(context.Background(), "acct-1")
	if status.Orders[0].Status != model.OrderStatusFilled {
		t.Fatalf("status after full fill = %s, want FILLED", status.Orders[0].Status)
	}
	// VWAP of 4@100 + 6@200 = (400+1200)/10 = 160
	if !status.Orders[0].AvgFillPx.Equal(decimal.NewFromInt(160)) {
		t.Errorf("AvgFillPx = %s, want 160", status.Orders[0].AvgFillPx)
	}
}

func TestFillUnknownClientOrderIDErrors(t *testing.T) {
	t.Parallel()
	v := New(venue.Capabilities{})
	_, err := v.Fill("never-submitted", decimal.NewFromInt(1), decimal.NewFromInt(100))
	if err == nil {
		t.Fatal("expected an error filling an order the sandbox never accepted")
	}
}

func TestGenerateMassStatusIncludesInjectedPositions(t *testing.T) {
	t.Parallel()
	v := New(venue.Capabilities{})
	v.SetPosition(model.PositionStatusReport{InstrumentID: "BTC-USD", Quantity: decimal.NewFromInt(5)})

	status, err := v.GenerateMassStatus(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("GenerateMassStatus() error = %v", err)
	}
	if len(status.Positions) != 1 || !status.Positions[0].Quantity.Equal(decimal.NewFromInt(5)) {
		t.Errorf("positions = %+v, want one injected BTC-USD position of qty 5", status.Positions)
	}
}
