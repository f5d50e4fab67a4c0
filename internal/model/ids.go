// Package model defines the entities the Cache owns: instruments, orders,
// positions, accounts, and the events that mutate them. Every entity is
// event-sourced — Apply is the only way to mutate one, and it is total: a
// well-formed event never fails to apply, it either transitions the entity
// or panics with an InvariantViolation because the caller handed it a
// transition that should have been impossible.
package model

import "fmt"

// UnixNanos is nanoseconds since the Unix epoch, used for both ts_event
// (venue time) and ts_init (local receipt time) throughout the event model.
type UnixNanos int64

// Symbol is a venue-local instrument code, e.g. "AUDUSD" or "BTC-PERP".
type Symbol string

// Venue identifies a trading venue, e.g. "SIM", "BINANCE", "COINBASE".
type Venue string

// InstrumentId names an instrument at a venue; NewInstrumentId builds it as
// "{Symbol}.{Venue}". It is a string type: immutable, compared by value, and
// used as the routing key throughout the engine, cache, and message bus.
type InstrumentId string

func NewInstrumentId(symbol Symbol, venue Venue) InstrumentId {
	return InstrumentId(fmt.Sprintf("%s.%s", symbol, venue))
}

func (id InstrumentId) String() string {
	return string(id)
}

// ClientOrderID is minted locally and is unique for the lifetime of the process.
type ClientOrderID string

// VenueOrderID is assigned by the venue once it accepts an order. Orders
// that have not yet been acknowledged have no VenueOrderID.
type VenueOrderID string

// StrategyID identifies the strategy that originated a command or owns an order/position.
type StrategyID string

// AccountID identifies an account at a venue, usually "{venue}-{account_number}".
type AccountID string

// PositionID identifies a position within an (InstrumentId, OMS) scope. Under
// NETTING this is stable across close/reopen cycles; under HEDGING each
// entry mints a new one.
type PositionID string

// OrderListID groups orders submitted together (e.g. an OCO/OUO/OTO bracket).
type OrderListID string

// TradeID identifies a single fill/execution reported by the venue.
type TradeID string

// CommandID is a UUIDv4 minted for every inbound trading command.
type CommandID string

// CorrelationID ties a bus request to its response.
type CorrelationID string
