// Package venue defines the adapter contract every venue integration must
// satisfy: capability-flag-gated DataClient/ExecutionClient interfaces, so
// unsupported operations are denied locally by the engine and never sent
// over the wire. The interface shape (PlaceOrder/CancelOrder/GetOrder/
// GetOrders/GetBalance/GetOrderBook/SubscribeOrderBook/SubscribeTrades/
// Health) is generalized with an explicit Capabilities flag struct, since
// a client that only ever spoke to one venue would never need one.
package venue

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/nautilus-go/exec-core/internal/model"
)

// Capabilities declares what a venue adapter actually supports. The engine
// consults this before ever building a command, so an unsupported
// operation is denied with a DenialReason instead of reaching the venue
// and failing remotely.
type Capabilities struct {
	SupportsPostOnly          bool
	SupportsReduceOnly        bool
	SupportsStopOrders        bool
	SupportsQuoteQuantity     bool
	SupportedTimeInForce      map[model.TimeInForce]bool
	SupportsSideSpecificCancelAll bool
	SupportsBatchCancel       bool
	MaxBatchSize              int
}

// SupportsTIF reports whether tif is in the supported set; an empty set
// means "GTC only", matching the conservative default most venues offer.
func (c Capabilities) SupportsTIF(tif model.TimeInForce) bool {
	if len(c.SupportedTimeInForce) == 0 {
		return tif == model.TimeInForceGTC
	}
	return c.SupportedTimeInForce[tif]
}

// Connectable is implemented by both DataClient and ExecutionClient:
// lifecycle is identical regardless of which half of the venue a client
// speaks to.
type Connectable interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool
}

// Subscribable is a generic market-data subscription surface: Subscribe
// starts streaming updates of T for instrumentID to the returned channel,
// and the returned cancel func stops it. Parameterized so the same shape
// covers order books, trades, and quotes without three near-identical
// interfaces.
type Subscribable[T any] interface {
	Subscribe(ctx context.Context, instrumentID model.InstrumentId) (<-chan T, func(), error)
}

// OrderSubmitter is the execution half of a venue adapter: the minimal set
// of venue operations the engine drives, all gated by Capabilities before
// being called.
type OrderSubmitter interface {
	Connectable
	SubmitOrder(ctx context.Context, order *model.Order) (model.VenueOrderID, error)
	// ModifyOrder amends price and/or quantity on a resting order. A zero
	// value in either argument means "leave that term unchanged".
	ModifyOrder(ctx context.Context, order *model.Order, newPrice, newQuantity decimal.Decimal) error
	CancelOrder(ctx context.Context, order *model.Order) error
	CancelAllOrders(ctx context.Context, instrumentID model.InstrumentId) error
	Capabilities() Capabilities
}

// Reconciler is implemented by venues that can report their own
// authoritative state for the snapshot -> diff -> synthesize -> re-diff
// convergence algorithm.
type Reconciler interface {
	GenerateMassStatus(ctx context.Context, accountID model.AccountID) (model.ExecutionMassStatus, error)
}

// DataClient is the market-data half of a venue adapter.
type DataClient interface {
	Connectable
	Subscribable[model.OrderBookSnapshot]
}
