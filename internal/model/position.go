package model

import "github.com/shopspring/decimal"

// Position is the event-sourced net holding in a single instrument. Under
// NETTING a Position's PositionID is stable across close/reopen cycles: the
// moment quantity returns to flat, the position is snapshotted into its
// Cycles history and the same struct is reused for whatever opens next,
// rather than minting a fresh identity per entry. HEDGING never reuses a
// PositionID (the Cache mints a new Position per entry there instead),
// so this type does not need to know which OMS mode produced it; it
// just models one continuous netted holding, snapshotting itself before
// each reopen.
type Position struct {
	ID           PositionID
	InstrumentID InstrumentId
	StrategyID   StrategyID
	AccountID    AccountID

	Side        PositionSide
	Quantity    decimal.Decimal // always non-negative; Side carries direction
	AvgEntryPx  decimal.Decimal
	AvgExitPx   decimal.Decimal

	RealizedPnL decimal.Decimal // incremental cache, updated on every closing fill
	Commissions decimal.Decimal

	PeakQuantity decimal.Decimal
	OpenedAtNs   UnixNanos
	ClosedAtNs   UnixNanos // zero while open

	Cycles []PositionSnapshot // prior closed cycles under the same PositionID (NETTING only)
}

// PositionSnapshot is an immutable record of one closed entry/exit cycle.
type PositionSnapshot struct {
	Side        PositionSide
	Quantity    decimal.Decimal
	AvgEntryPx  decimal.Decimal
	AvgExitPx   decimal.Decimal
	RealizedPnL decimal.Decimal
	OpenedAtNs  UnixNanos
	ClosedAtNs  UnixNanos
}

// NewPosition opens a position from its first fill.
func NewPosition(id PositionID, instrumentID InstrumentId, strategyID StrategyID, accountID AccountID) *Position {
	return &Position{
		ID:           id,
		InstrumentID: instrumentID,
		StrategyID:   strategyID,
		AccountID:    accountID,
		Side:         PositionSideFlat,
		Quantity:     decimal.Zero,
		RealizedPnL:  decimal.Zero,
		Commissions:  decimal.Zero,
	}
}

// IsOpen reports whether the position currently holds non-zero quantity.
func (p *Position) IsOpen() bool { return p.Side != PositionSideFlat }

// Apply folds a fill into the position: same-side fills extend it
// (recomputing the volume-weighted average entry price), opposite-side
// fills reduce or reverse it (realizing PnL on the reduced portion). When
// quantity returns exactly to zero the cycle is snapshotted into Cycles
// and the position is reset to flat, ready to be reopened under the same
// PositionID (NETTING semantics).
func (p *Position) Apply(side OrderSide, fillQty, fillPx, commission decimal.Decimal, tsEvent UnixNanos) {
	if fillQty.Sign() <= 0 {
		PanicInvariant("Position", "fill quantity must be positive, got %s for %s", fillQty, p.ID)
	}
	p.Commissions = p.Commissions.Add(commission)

	if p.Side == PositionSideFlat {
		p.openFrom(side, fillQty, fillPx, tsEvent)
		return
	}

	sameSide := (p.Side == PositionSideLong && side == OrderSideBuy) ||
		(p.Side == PositionSideShort && side == OrderSideSell)

	if sameSide {
		p.extend(fillQty, fillPx)
		return
	}

	p.reduceOrReverse(side, fillQty, fillPx, tsEvent)
}

func (p *Position) openFrom(side OrderSide, fillQty, fillPx decimal.Decimal, tsEvent UnixNanos) {
	if side == OrderSideBuy {
		p.Side = PositionSideLong
	} else {
		p.Side = PositionSideShort
	}
	p.Quantity = fillQty
	p.AvgEntryPx = fillPx
	p.AvgExitPx = decimal.Zero
	p.PeakQuantity = fillQty
	p.OpenedAtNs = tsEvent
	p.ClosedAtNs = 0
}

func (p *Position) extend(fillQty, fillPx decimal.Decimal) {
	totalCost := p.AvgEntryPx.Mul(p.Quantity).Add(fillPx.Mul(fillQty))
	newQty := p.Quantity.Add(fillQty)
	p.AvgEntryPx = totalCost.Div(newQty)
	p.Quantity = newQty
	if p.Quantity.GreaterThan(p.PeakQuantity) {
		p.PeakQuantity = p.Quantity
	}
}

func (p *Position) reduceOrReverse(side OrderSide, fillQty, fillPx decimal.Decimal, tsEvent UnixNanos) {
	closingQty := decimal.Min(fillQty, p.Quantity)
	pnl := p.realizedPnLOn(closingQty, fillPx)
	p.RealizedPnL = p.RealizedPnL.Add(pnl)

	remaining := p.Quantity.Sub(closingQty)
	leftoverFill := fillQty.Sub(closingQty)

	if remaining.IsZero() {
		p.AvgExitPx = fillPx
		p.ClosedAtNs = tsEvent
		p.Cycles = append(p.Cycles, PositionSnapshot{
			Side:        p.Side,
			Quantity:    p.PeakQuantity,
			AvgEntryPx:  p.AvgEntryPx,
			AvgExitPx:   p.AvgExitPx,
			RealizedPnL: p.RealizedPnL,
			OpenedAtNs:  p.OpenedAtNs,
			ClosedAtNs:  p.ClosedAtNs,
		})
		p.resetToFlat()
		if leftoverFill.Sign() > 0 {
			p.openFrom(side, leftoverFill, fillPx, tsEvent)
		}
		return
	}

	p.Quantity = remaining
}

// realizedPnLOn computes PnL for closingQty at exitPx against the current
// average entry price, signed by position direction.
func (p *Position) realizedPnLOn(closingQty, exitPx decimal.Decimal) decimal.Decimal {
	diff := exitPx.Sub(p.AvgEntryPx)
	if p.Side == PositionSideShort {
		diff = diff.Neg()
	}
	return diff.Mul(closingQty)
}

func (p *Position) resetToFlat() {
	p.Side = PositionSideFlat
	p.Quantity = decimal.Zero
	p.AvgEntryPx = decimal.Zero
	p.PeakQuantity = decimal.Zero
	p.RealizedPnL = decimal.Zero
	p.Commissions = decimal.Zero
}

// UnrealizedPnL marks the open position to lastPx; zero if flat.
func (p *Position) UnrealizedPnL(lastPx decimal.Decimal) decimal.Decimal {
	if p.Side == PositionSideFlat {
		return decimal.Zero
	}
	diff := lastPx.Sub(p.AvgEntryPx)
	if p.Side == PositionSideShort {
		diff = diff.Neg()
	}
	return diff.Mul(p.Quantity)
}
