package engine

import (
	"github.com/shopspring/decimal"

	"github.com/nautilus-go/exec-core/internal/model"
)

// orderLock tracks the margin currently reserved against one order's
// account. amount is what remains locked right now; perUnit is the rate at
// which a fill of the order's remaining quantity releases it.
type orderLock struct {
	currency string
	amount   decimal.Decimal
	perUnit  decimal.Decimal
}

// lockCurrency picks the balance currency an order's margin is reserved
// against, falling back to USD for instruments that never reported one.
func lockCurrency(inst model.Instrument) string {
	if inst.QuoteCurrency != "" {
		return inst.QuoteCurrency
	}
	return "USD"
}

// requiredMargin computes the initial margin for a qty/price pair on inst,
// 0 if either is zero (e.g. a MARKET order with no reference price).
func (e *Engine) requiredMargin(inst model.Instrument, side model.OrderSide, qty, price decimal.Decimal) decimal.Decimal {
	if qty.IsZero() || price.IsZero() {
		return decimal.Zero
	}
	return e.marginModel.InitialMargin(inst, side, qty, price)
}

// lockMargin reserves a submitted order's initial margin against its
// account's free balance and records the lock so fills/terminal events can
// release it later. No-op for MARKET orders (no pre-trade reference price)
// or when the required amount is zero.
func (e *Engine) lockMargin(cmd SubmitOrderCommand) {
	if cmd.Type == model.OrderTypeMarket {
		return
	}
	inst, ok := e.cache.Instrument(cmd.InstrumentID)
	if !ok {
		return
	}
	amt := e.requiredMargin(inst, cmd.Side, cmd.Quantity, cmd.Price)
	if !amt.IsPositive() {
		return
	}
	currency := lockCurrency(inst)
	if err := e.cache.LockAccountBalance(cmd.AccountID, currency, amt); err != nil {
		e.logger.Error("failed to lock margin", "client_order_id", cmd.ClientOrderID, "account_id", cmd.AccountID, "error", err)
		return
	}

	e.locksMu.Lock()
	e.locks[cmd.ClientOrderID] = &orderLock{currency: currency, amount: amt, perUnit: amt.Div(cmd.Quantity)}
	e.locksMu.Unlock()
}

// adjustMarginForModify resizes an order's lock to new price/quantity terms
// once a modify is accepted by the venue, locking more or releasing the
// difference against the order's account as needed. Called with the
// order's state as it was before the modify's Updated event is applied, so
// the zero-value fallback ("unchanged") resolves against the right terms.
func (e *Engine) adjustMarginForModify(order *model.Order, newPrice, newQuantity decimal.Decimal) {
	if order.Type == model.OrderTypeMarket {
		return
	}
	price := newPrice
	if price.IsZero() {
		price = order.Price
	}
	qty := newQuantity
	if qty.IsZero() {
		qty = order.Quantity
	}

	inst, ok := e.cache.Instrument(order.InstrumentID)
	if !ok {
		return
	}
	required := e.requiredMargin(inst, order.Side, qty, price)
	currency := lockCurrency(inst)

	e.locksMu.Lock()
	lock, hasLock := e.locks[order.ClientOrderID]
	if !hasLock {
		lock = &orderLock{currency: currency}
		e.locks[order.ClientOrderID] = lock
	}
	diff := required.Sub(lock.amount)
	lock.amount = required
	if qty.IsPositive() {
		lock.perUnit = required.Div(qty)
	}
	e.locksMu.Unlock()

	switch {
	case diff.IsPositive():
		if err := e.cache.LockAccountBalance(order.AccountID, currency, diff); err != nil {
			e.logger.Error("failed to lock additional margin on modify", "client_order_id", order.ClientOrderID, "error", err)
		}
	case diff.IsNegative():
		e.unlock(order.AccountID, currency, diff.Neg())
	}
}

// releaseMarginOnFill releases the slice of an order's lock proportional to
// a fill's quantity, as that quantity stops being "at risk in an open
// order" and becomes a position the margin model prices separately.
func (e *Engine) releaseMarginOnFill(order *model.Order, fillQty decimal.Decimal) {
	e.locksMu.Lock()
	lock, ok := e.locks[order.ClientOrderID]
	if !ok {
		e.locksMu.Unlock()
		return
	}
	release := lock.perUnit.Mul(fillQty)
	if release.GreaterThan(lock.amount) {
		release = lock.amount
	}
	lock.amount = lock.amount.Sub(release)
	currency := lock.currency
	e.locksMu.Unlock()

	e.unlock(order.AccountID, currency, release)
}

// releaseMarginRemaining releases whatever remains of an order's lock once
// it reaches a terminal status: no further fill or modify can follow it, so
// anything still reserved must return to free balance.
func (e *Engine) releaseMarginRemaining(order *model.Order) {
	e.locksMu.Lock()
	lock, ok := e.locks[order.ClientOrderID]
	if ok {
		delete(e.locks, order.ClientOrderID)
	}
	e.locksMu.Unlock()
	if !ok {
		return
	}
	e.unlock(order.AccountID, lock.currency, lock.amount)
}

func (e *Engine) unlock(accountID model.AccountID, currency string, amt decimal.Decimal) {
	if !amt.IsPositive() {
		return
	}
	if err := e.cache.UnlockAccountBalance(accountID, currency, amt); err != nil {
		e.logger.Error("failed to unlock margin", "account_id", accountID, "currency", currency, "error", err)
	}
}
