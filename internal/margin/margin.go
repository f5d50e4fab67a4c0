// Package margin provides pluggable initial/maintenance margin calculation,
// swapped in per account via AccountType so the engine never special-cases
// CASH vs MARGIN vs BETTING accounts directly.
package margin

import (
	"github.com/shopspring/decimal"

	"github.com/nautilus-go/exec-core/internal/model"
)

// Model computes the margin (or, for cash/betting accounts, the notional
// exposure) an order or position locks against an account's free balance.
// Implementations must be pure functions of their inputs: no I/O, no
// mutation, callable from the engine's hot command-validation path.
type Model interface {
	// InitialMargin is the amount to lock when opening or increasing
	// exposure to quantity at price, before the venue has confirmed it.
	InitialMargin(inst model.Instrument, side model.OrderSide, quantity, price decimal.Decimal) decimal.Decimal

	// MaintenanceMargin is the amount an already-open position of quantity
	// at avgEntryPx must keep locked, marked to lastPx.
	MaintenanceMargin(inst model.Instrument, side model.PositionSide, quantity, avgEntryPx, lastPx decimal.Decimal) decimal.Decimal
}

// NoMargin is used for CASH and BETTING accounts: the full notional value
// of the order is locked 1:1, since there is no leverage to compute.
type NoMargin struct{}

func (NoMargin) InitialMargin(inst model.Instrument, side model.OrderSide, quantity, price decimal.Decimal) decimal.Decimal {
	return quantity.Mul(price).Mul(inst.Multiplier.Abs().Max(decimal.New(1, 0)))
}

func (NoMargin) MaintenanceMargin(inst model.Instrument, side model.PositionSide, quantity, avgEntryPx, lastPx decimal.Decimal) decimal.Decimal {
	return quantity.Mul(lastPx).Mul(inst.Multiplier.Abs().Max(decimal.New(1, 0)))
}

// Standard implements a fixed-leverage margin model: initial and
// maintenance margin are each a configured fraction of notional. This is
// the "standard" retail-broker model (fixed percentage, no portfolio
// netting across instruments).
type Standard struct {
	InitialLeverage     decimal.Decimal // e.g. 20 = 20x, so initial margin = notional / 20
	MaintenanceFraction decimal.Decimal // e.g. 0.5 = maintenance is half of initial
}

// NewStandard builds a Standard model from a leverage ratio, deriving the
// conventional half-of-initial maintenance requirement.
func NewStandard(leverage decimal.Decimal) Standard {
	return Standard{
		InitialLeverage:     leverage,
		MaintenanceFraction: decimal.NewFromFloat(0.5),
	}
}

func (m Standard) notional(inst model.Instrument, quantity, price decimal.Decimal) decimal.Decimal {
	mult := inst.Multiplier
	if mult.IsZero() {
		mult = decimal.New(1, 0)
	}
	return quantity.Mul(price).Mul(mult)
}

func (m Standard) InitialMargin(inst model.Instrument, side model.OrderSide, quantity, price decimal.Decimal) decimal.Decimal {
	if m.InitialLeverage.IsZero() {
		return m.notional(inst, quantity, price)
	}
	return m.notional(inst, quantity, price).Div(m.InitialLeverage)
}

func (m Standard) MaintenanceMargin(inst model.Instrument, side model.PositionSide, quantity, avgEntryPx, lastPx decimal.Decimal) decimal.Decimal {
	initial := m.InitialMargin(inst, model.OrderSideBuy, quantity, lastPx)
	return initial.Mul(m.MaintenanceFraction)
}

// ForAccountType picks the conventional model for an account type: CASH
// and BETTING accounts never use leverage, MARGIN accounts do.
func ForAccountType(t model.AccountType, leverage decimal.Decimal) Model {
	switch t {
	case model.AccountTypeMargin:
		return NewStandard(leverage)
	default:
		return NoMargin{}
	}
}
