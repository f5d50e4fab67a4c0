package engine

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/nautilus-go/exec-core/internal/model"
	"github.com/nautilus-go/exec-core/internal/venue"
)

func TestSubmitOrderLocksRequiredMargin(t *testing.T) {
	t.Parallel()
	e, _, c := newTestEngine(t, venue.Capabilities{})

	if err := e.SubmitOrder(context.Background(), submitCmd("client-1")); err != nil {
		t.Fatalf("SubmitOrder() error = %v", err)
	}

	acct, ok := c.Account(testAccountID)
	if !ok {
		t.Fatal("test account missing from cache")
	}
	// CASH account, NoMargin: 10 qty * 100 price = 1000 locked against USD.
	bal, _ := acct.Balance("USD")
	if !bal.Locked.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("Locked = %s, want 1000", bal.Locked)
	}
}

func TestSubmitOrderDeniedWhenInsufficientBalance(t *testing.T) {
	t.Parallel()
	e, _, c := newTestEngine(t, venue.Capabilities{})

	acct, _ := c.Account(testAccountID)
	acct.Apply(model.AccountStateEvent{
		AccountID: testAccountID,
		Type:      model.AccountTypeCash,
		Balances:  []model.Balance{{Currency: "USD", Total: decimal.NewFromInt(500), Locked: decimal.Zero}},
	})

	err := e.SubmitOrder(context.Background(), submitCmd("client-1"))
	de, ok := err.(*DeniedError)
	if !ok {
		t.Fatalf("error type = %T, want *DeniedError", err)
	}
	if de.Reason != model.DenialInsufficientBalance {
		t.Errorf("Reason = %s, want INSUFFICIENT_BALANCE", de.Reason)
	}
}

func TestFillReleasesMarginProportionally(t *testing.T) {
	t.Parallel()
	e, v, c := newTestEngine(t, venue.Capabilities{})
	e.SubmitOrder(context.Background(), submitCmd("client-1"))

	if _, err := v.Fill("client-1", decimal.NewFromInt(4), decimal.NewFromInt(100)); err != nil {
		t.Fatalf("Fill() error = %v", err)
	}
	e.applyAndPublish(model.OrderEvent{
		Kind:          model.EventOrderPartiallyFilled,
		ClientOrderID: "client-1",
		TsEvent:       2,
		Fill: &model.FillReport{
			LastQty: decimal.NewFromInt(4),
			LastPx:  decimal.NewFromInt(100),
			CumQty:  decimal.NewFromInt(4),
			AvgPx:   decimal.NewFromInt(100),
		},
	})

	acct, _ := c.Account(testAccountID)
	bal, _ := acct.Balance("USD")
	// 1000 locked initially, 40% filled -> 400 released, 600 remains locked.
	if !bal.Locked.Equal(decimal.NewFromInt(600)) {
		t.Errorf("Locked after partial fill = %s, want 600", bal.Locked)
	}
}

func TestFillReleasesAllMarginOnTerminalFill(t *testing.T) {
	t.Parallel()
	e, v, c := newTestEngine(t, venue.Capabilities{})
	e.SubmitOrder(context.Background(), submitCmd("client-1"))

	if _, err := v.Fill("client-1", decimal.NewFromInt(10), decimal.NewFromInt(100)); err != nil {
		t.Fatalf("Fill() error = %v", err)
	}
	e.applyAndPublish(model.OrderEvent{
		Kind:          model.EventOrderFilled,
		ClientOrderID: "client-1",
		TsEvent:       2,
		Fill: &model.FillReport{
			LastQty: decimal.NewFromInt(10),
			LastPx:  decimal.NewFromInt(100),
			CumQty:  decimal.NewFromInt(10),
			AvgPx:   decimal.NewFromInt(100),
		},
	})

	acct, _ := c.Account(testAccountID)
	bal, _ := acct.Balance("USD")
	if !bal.Locked.IsZero() {
		t.Errorf("Locked after full fill = %s, want 0", bal.Locked)
	}
}

func TestCancelReleasesRemainingMargin(t *testing.T) {
	t.Parallel()
	e, _, c := newTestEngine(t, venue.Capabilities{})
	e.SubmitOrder(context.Background(), submitCmd("client-1"))

	if err := e.CancelOrder(context.Background(), CancelOrderCommand{ClientOrderID: "client-1"}); err != nil {
		t.Fatalf("CancelOrder() error = %v", err)
	}

	acct, _ := c.Account(testAccountID)
	bal, _ := acct.Balance("USD")
	if !bal.Locked.IsZero() {
		t.Errorf("Locked after cancel = %s, want 0", bal.Locked)
	}
}

func TestModifyOrderHappyPathAppliesUpdatedEvent(t *testing.T) {
	t.Parallel()
	e, v, c := newTestEngine(t, venue.Capabilities{})
	e.SubmitOrder(context.Background(), submitCmd("client-1"))

	err := e.ModifyOrder(context.Background(), ModifyOrderCommand{
		ClientOrderID: "client-1",
		NewPrice:      decimal.NewFromInt(110),
		NewQuantity:   decimal.NewFromInt(20),
	})
	if err != nil {
		t.Fatalf("ModifyOrder() error = %v", err)
	}

	o, _ := c.Order("client-1")
	if o.Status != model.OrderStatusAccepted {
		t.Errorf("status after modify = %s, want ACCEPTED", o.Status)
	}
	if !o.Price.Equal(decimal.NewFromInt(110)) {
		t.Errorf("Price after modify = %s, want 110", o.Price)
	}
	if !o.Quantity.Equal(decimal.NewFromInt(20)) {
		t.Errorf("Quantity after modify = %s, want 20", o.Quantity)
	}

	status, err := v.GenerateMassStatus(context.Background(), testAccountID)
	if err != nil {
		t.Fatalf("GenerateMassStatus() error = %v", err)
	}
	var report model.OrderStatusReport
	for _, r := range status.Orders {
		if r.ClientOrderID == "client-1" {
			report = r
		}
	}
	if !report.Price.Equal(decimal.NewFromInt(110)) {
		t.Errorf("venue-reported Price = %s, want 110", report.Price)
	}
	if !report.Quantity.Equal(decimal.NewFromInt(20)) {
		t.Errorf("venue-reported Quantity = %s, want 20", report.Quantity)
	}

	acct, _ := c.Account(testAccountID)
	bal, _ := acct.Balance("USD")
	// New notional 20 * 110 = 2200 should now be locked, replacing the
	// original 1000.
	if !bal.Locked.Equal(decimal.NewFromInt(2200)) {
		t.Errorf("Locked after modify = %s, want 2200", bal.Locked)
	}
}

func TestModifyOrderRejectedByVenueRevertsStatusAndKeepsMargin(t *testing.T) {
	t.Parallel()
	e, v, c := newTestEngine(t, venue.Capabilities{})
	e.SubmitOrder(context.Background(), submitCmd("client-1"))
	// Forgetting the order makes the sandbox's ModifyOrder return a
	// validation error, simulating a venue-side rejection of the amend.
	v.Forget("client-1")

	err := e.ModifyOrder(context.Background(), ModifyOrderCommand{
		ClientOrderID: "client-1",
		NewPrice:      decimal.NewFromInt(110),
	})
	if err == nil {
		t.Fatal("expected an error when the venue rejects the modify")
	}

	o, _ := c.Order("client-1")
	if o.Status != model.OrderStatusAccepted {
		t.Errorf("status after modify rejection = %s, want ACCEPTED (reverted to statusBeforePending)", o.Status)
	}
	if !o.Price.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Price after modify rejection = %s, want unchanged at 100", o.Price)
	}

	acct, _ := c.Account(testAccountID)
	bal, _ := acct.Balance("USD")
	if !bal.Locked.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("Locked after modify rejection = %s, want unchanged at 1000", bal.Locked)
	}
}

func TestBatchCancelOrdersCancelsEachID(t *testing.T) {
	t.Parallel()
	e, _, c := newTestEngine(t, venue.Capabilities{SupportsBatchCancel: true, MaxBatchSize: 10})
	e.SubmitOrder(context.Background(), submitCmd("client-1"))
	cmd2 := submitCmd("client-2")
	e.SubmitOrder(context.Background(), cmd2)

	err := e.BatchCancelOrders(context.Background(), BatchCancelCommand{ClientOrderIDs: []model.ClientOrderID{"client-1", "client-2"}})
	if err != nil {
		t.Fatalf("BatchCancelOrders() error = %v", err)
	}

	o1, _ := c.Order("client-1")
	o2, _ := c.Order("client-2")
	if o1.Status != model.OrderStatusCanceled {
		t.Errorf("client-1 status = %s, want CANCELED", o1.Status)
	}
	if o2.Status != model.OrderStatusCanceled {
		t.Errorf("client-2 status = %s, want CANCELED", o2.Status)
	}
}

func TestBatchCancelOrdersDeniedWhenUnsupported(t *testing.T) {
	t.Parallel()
	e, _, _ := newTestEngine(t, venue.Capabilities{SupportsBatchCancel: false})

	err := e.BatchCancelOrders(context.Background(), BatchCancelCommand{ClientOrderIDs: []model.ClientOrderID{"client-1"}})
	de, ok := err.(*DeniedError)
	if !ok {
		t.Fatalf("error type = %T, want *DeniedError", err)
	}
	if de.Reason != model.DenialBatchCancelUnsupported {
		t.Errorf("Reason = %s, want BATCH_CANCEL_UNSUPPORTED", de.Reason)
	}
}

func TestBatchCancelOrdersDeniedWhenExceedingMaxBatchSize(t *testing.T) {
	t.Parallel()
	e, _, _ := newTestEngine(t, venue.Capabilities{SupportsBatchCancel: true, MaxBatchSize: 1})

	err := e.BatchCancelOrders(context.Background(), BatchCancelCommand{ClientOrderIDs: []model.ClientOrderID{"client-1", "client-2"}})
	de, ok := err.(*DeniedError)
	if !ok {
		t.Fatalf("error type = %T, want *DeniedError", err)
	}
	if de.Reason != model.DenialBatchCancelUnsupported {
		t.Errorf("Reason = %s, want BATCH_CANCEL_UNSUPPORTED", de.Reason)
	}
}

func TestQueryAccountPublishesCurrentState(t *testing.T) {
	t.Parallel()
	e, _, _ := newTestEngine(t, venue.Capabilities{})

	var got model.AccountStateEvent
	var gotTopic string
	e.bus.Subscribe("accounts.**", func(topic string, msg interface{}) {
		gotTopic = topic
		got = msg.(model.AccountStateEvent)
	})

	if err := e.QueryAccount(context.Background(), QueryAccountCommand{AccountID: testAccountID}); err != nil {
		t.Fatalf("QueryAccount() error = %v", err)
	}

	if gotTopic != "accounts.acct-1.queried" {
		t.Errorf("topic = %s, want accounts.acct-1.queried", gotTopic)
	}
	if got.Reported {
		t.Error("Reported = true, want false (locally synthesized)")
	}
	var bal model.Balance
	found := false
	for _, b := range got.Balances {
		if b.Currency == "USD" {
			found = true
			bal = b
		}
	}
	if !found {
		t.Fatal("expected a USD balance in the published event")
	}
	if !bal.Total.Equal(decimal.NewFromInt(1000000)) {
		t.Errorf("Total = %s, want 1000000", bal.Total)
	}
}
