// Package sandbox is an in-memory venue adapter satisfying
// venue.OrderSubmitter and venue.Reconciler (it has no market-data feed, so
// it is not a venue.DataClient), used by
// engine and reconciliation tests in place of a real exchange. Built as a
// standalone fake rather than a dry-run flag on the real client so it can
// simulate venue-side state divergence for reconciliation tests.
package sandbox

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/nautilus-go/exec-core/internal/model"
	"github.com/nautilus-go/exec-core/internal/venue"
)

// Venue is an in-memory execution venue: every SubmitOrder is auto-accepted
// (or denied by injected rules), fills are driven explicitly via Fill for
// deterministic tests, and GenerateMassStatus reports back whatever the
// sandbox currently believes — which a test can deliberately desync from
// the engine's Cache to exercise reconciliation.
type Venue struct {
	mu sync.Mutex

	connected bool
	caps      venue.Capabilities

	orders    map[model.ClientOrderID]*sandboxOrder
	venueSeq  int
	positions map[model.InstrumentId]model.PositionStatusReport

	// DenyNext, if set, makes the next SubmitOrder fail with this reason
	// instead of accepting, modeling a venue-side validation rejection.
	DenyNext string
}

type sandboxOrder struct {
	report model.OrderStatusReport
}

// New builds a sandbox venue with the given capability set.
func New(caps venue.Capabilities) *Venue {
	return &Venue{
		caps:      caps,
		orders:    make(map[model.ClientOrderID]*sandboxOrder),
		positions: make(map[model.InstrumentId]model.PositionStatusReport),
	}
}

func (v *Venue) Connect(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.connected = true
	return nil
}

func (v *Venue) Disconnect(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.connected = false
	return nil
}

func (v *Venue) IsConnected() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.connected
}

func (v *Venue) Capabilities() venue.Capabilities { return v.caps }

// SubmitOrder accepts the order unless DenyNext is set, minting a
// deterministic sequential VenueOrderID.
func (v *Venue) SubmitOrder(ctx context.Context, order *model.Order) (model.VenueOrderID, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.DenyNext != "" {
		reason := v.DenyNext
		v.DenyNext = ""
		return "", model.NewVenueError(model.ErrorValidation, fmt.Errorf("sandbox denied: %s", reason))
	}

	v.venueSeq++
	venueOrderID := model.VenueOrderID(fmt.Sprintf("SANDBOX-%d", v.venueSeq))
	v.orders[order.ClientOrderID] = &sandboxOrder{
		report: model.OrderStatusReport{
			ClientOrderID: order.ClientOrderID,
			VenueOrderID:  venueOrderID,
			InstrumentID:  order.InstrumentID,
			Side:          order.Side,
			Type:          order.Type,
			Status:        model.OrderStatusAccepted,
			Quantity:      order.Quantity,
			FilledQty:     decimal.Zero,
			Price:         order.Price,
		},
	}
	return venueOrderID, nil
}

// ModifyOrder replaces price and/or quantity on a resting order. A zero
// newPrice or newQuantity means "leave that term unchanged".
func (v *Venue) ModifyOrder(ctx context.Context, order *model.Order, newPrice, newQuantity decimal.Decimal) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	so, ok := v.orders[order.ClientOrderID]
	if !ok {
		return model.NewVenueError(model.ErrorValidation, fmt.Errorf("unknown order %s", order.ClientOrderID))
	}
	if !newPrice.IsZero() {
		so.report.Price = newPrice
	}
	if !newQuantity.IsZero() {
		so.report.Quantity = newQuantity
	}
	return nil
}

func (v *Venue) CancelOrder(ctx context.Context, order *model.Order) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	so, ok := v.orders[order.ClientOrderID]
	if !ok {
		return model.NewVenueError(model.ErrorValidation, fmt.Errorf("unknown order %s", order.ClientOrderID))
	}
	so.report.Status = model.OrderStatusCanceled
	return nil
}

func (v *Venue) CancelAllOrders(ctx context.Context, instrumentID model.InstrumentId) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.caps.SupportsSideSpecificCancelAll {
		// instrument-scoped cancel-all is always supported; this models a
		// venue that additionally can't filter by side, which is enforced
		// one layer up by the engine's command validator.
	}
	for _, so := range v.orders {
		if so.report.InstrumentID == instrumentID && !isTerminalReport(so.report.Status) {
			so.report.Status = model.OrderStatusCanceled
		}
	}
	return nil
}

// Fill synthesizes a fill against an already-accepted order, for tests to
// drive position/PnL behavior deterministically.
func (v *Venue) Fill(clientOrderID model.ClientOrderID, lastQty, lastPx decimal.Decimal) (model.FillReportSnapshot, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	so, ok := v.orders[clientOrderID]
	if !ok {
		return model.FillReportSnapshot{}, fmt.Errorf("unknown order %s", clientOrderID)
	}

	newCum := so.report.FilledQty.Add(lastQty)
	totalCost := so.report.AvgFillPx.Mul(so.report.FilledQty).Add(lastPx.Mul(lastQty))
	if newCum.Sign() > 0 {
		so.report.AvgFillPx = totalCost.Div(newCum)
	}
	so.report.FilledQty = newCum
	if so.report.FilledQty.Equal(so.report.Quantity) {
		so.report.Status = model.OrderStatusFilled
	} else {
		so.report.Status = model.OrderStatusPartiallyFilled
	}

	return model.FillReportSnapshot{
		ClientOrderID: clientOrderID,
		VenueOrderID:  so.report.VenueOrderID,
		TradeID:       model.TradeID(fmt.Sprintf("%s-%d", clientOrderID, v.venueSeq)),
		InstrumentID:  so.report.InstrumentID,
		Side:          so.report.Side,
		LastQty:       lastQty,
		LastPx:        lastPx,
		Liquidity:     model.LiquidityMaker,
	}, nil
}

// GenerateMassStatus reports every tracked order and position as the
// sandbox currently believes them, independent of what the engine's Cache
// believes — a test can mutate the sandbox directly to create the
// divergence a reconciliation pass must heal.
func (v *Venue) GenerateMassStatus(ctx context.Context, accountID model.AccountID) (model.ExecutionMassStatus, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	status := model.ExecutionMassStatus{AccountID: accountID}
	for _, so := range v.orders {
		status.Orders = append(status.Orders, so.report)
	}
	for _, p := range v.positions {
		status.Positions = append(status.Positions, p)
	}
	return status, nil
}

// SetPosition lets a test declare the venue's belief about a position
// directly, independent of any fills routed through Fill.
func (v *Venue) SetPosition(report model.PositionStatusReport) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.positions[report.InstrumentID] = report
}

// Forget removes an order from the sandbox's own bookkeeping without
// touching anything else, modeling a venue that has aged an order out of
// its open-order view entirely (so a subsequent GenerateMassStatus omits
// it) for reconciliation tests.
func (v *Venue) Forget(clientOrderID model.ClientOrderID) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.orders, clientOrderID)
}

func isTerminalReport(s model.OrderStatus) bool { return s.IsTerminal() }
