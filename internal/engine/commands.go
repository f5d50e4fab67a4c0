package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/nautilus-go/exec-core/internal/model"
	"github.com/nautilus-go/exec-core/internal/venue"
)

// SubmitOrderCommand is the inbound request to place a new order. CommandID
// is minted by the caller (a UUIDv4) and carried with the command; the
// engine does not read it. Duplicate submission is detected by
// ClientOrderID against the orders already in the Cache.
type SubmitOrderCommand struct {
	CommandID    model.CommandID
	ClientOrderID model.ClientOrderID
	InstrumentID model.InstrumentId
	StrategyID   model.StrategyID
	AccountID    model.AccountID
	Side         model.OrderSide
	Type         model.OrderType
	Quantity     decimal.Decimal
	Price        decimal.Decimal
	TriggerPrice decimal.Decimal
	TimeInForce  model.TimeInForce
	PostOnly     bool
	ReduceOnly   bool
	IsQuoteQty   bool
}

// ModifyOrderCommand requests a price and/or quantity amendment on a
// resting order. A zero NewPrice or NewQuantity means "leave unchanged".
type ModifyOrderCommand struct {
	CommandID     model.CommandID
	ClientOrderID model.ClientOrderID
	NewPrice      decimal.Decimal
	NewQuantity   decimal.Decimal
}

// CancelOrderCommand requests cancellation of a single order.
type CancelOrderCommand struct {
	CommandID     model.CommandID
	ClientOrderID model.ClientOrderID
}

// BatchCancelCommand requests cancellation of a specific set of orders in
// one logical request. A batch larger than the venue's MaxBatchSize is
// denied as a whole, not split.
type BatchCancelCommand struct {
	CommandID      model.CommandID
	ClientOrderIDs []model.ClientOrderID
}

// QueryAccountCommand requests the engine republish the current state of
// an account onto the bus (e.g. for a client that missed earlier updates).
type QueryAccountCommand struct {
	CommandID model.CommandID
	AccountID model.AccountID
}

// CancelAllCommand requests cancellation of every open order for an
// instrument. Side is optional ("" = both sides); engines that cannot
// filter by side at the venue deny this locally rather than silently
// canceling more than asked.
type CancelAllCommand struct {
	CommandID    model.CommandID
	InstrumentID model.InstrumentId
	Side         model.OrderSide
	SideSet      bool
}

// DeniedError is returned by command validation when a command is refused
// before it reaches the venue. It is a normal error, not an
// InvariantViolation: a denial is an expected, policy-driven outcome.
type DeniedError struct {
	Reason model.DenialReason
	Detail string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("denied: %s (%s)", e.Reason, e.Detail)
}

// validateSubmit checks cmd against the instrument, account, and venue
// capabilities before any Order is constructed, returning a DeniedError
// for the first violation found.
func (e *Engine) validateSubmit(cmd SubmitOrderCommand, caps venue.Capabilities) error {
	inst, ok := e.cache.Instrument(cmd.InstrumentID)
	if !ok {
		return &DeniedError{Reason: model.DenialInstrumentNotFound, Detail: cmd.InstrumentID.String()}
	}

	if _, exists := e.cache.Order(cmd.ClientOrderID); exists {
		return &DeniedError{Reason: model.DenialDuplicateClientOrderID, Detail: string(cmd.ClientOrderID)}
	}

	acct, ok := e.cache.Account(cmd.AccountID)
	if !ok {
		return &DeniedError{Reason: model.DenialAccountNotReady, Detail: string(cmd.AccountID)}
	}

	if cmd.PostOnly && !caps.SupportsPostOnly {
		return &DeniedError{Reason: model.DenialPostOnlyNotSupported, Detail: e.venueName()}
	}
	if cmd.ReduceOnly && !caps.SupportsReduceOnly {
		return &DeniedError{Reason: model.DenialReduceOnlyNotSupported, Detail: e.venueName()}
	}
	if cmd.IsQuoteQty && !caps.SupportsQuoteQuantity {
		return &DeniedError{Reason: model.DenialUnsupportedQuoteQuantity, Detail: e.venueName()}
	}
	if !caps.SupportsTIF(cmd.TimeInForce) {
		return &DeniedError{Reason: model.DenialUnsupportedTimeInForce, Detail: string(cmd.TimeInForce)}
	}

	if cmd.Type != model.OrderTypeMarket {
		if err := inst.ValidatePrice(cmd.Price); err != nil {
			return &DeniedError{Reason: model.DenialPricePrecisionMismatch, Detail: err.Error()}
		}
	}
	if err := inst.ValidateQuantity(cmd.Quantity); err != nil {
		return &DeniedError{Reason: model.DenialSizeBelowMin, Detail: err.Error()}
	}

	if required := e.requiredMargin(inst, cmd.Side, cmd.Quantity, cmd.Price); required.IsPositive() {
		currency := lockCurrency(inst)
		if required.GreaterThan(acct.BalanceFree(currency)) {
			return &DeniedError{Reason: model.DenialInsufficientBalance, Detail: fmt.Sprintf("need %s %s, have %s free", required, currency, acct.BalanceFree(currency))}
		}
	}

	return nil
}

// validateCancelAll checks a side-scoped cancel-all against capabilities:
// a venue that cannot filter cancels by side must deny the command rather
// than canceling both sides and silently over-delivering.
func (e *Engine) validateCancelAll(cmd CancelAllCommand, caps venue.Capabilities) error {
	if cmd.SideSet && !caps.SupportsSideSpecificCancelAll {
		return &DeniedError{Reason: model.DenialSideSpecificCancelUnsupported, Detail: string(cmd.Side)}
	}
	return nil
}

func (e *Engine) venueName() string {
	return e.venueLabel
}
