package model

import "github.com/shopspring/decimal"

// Balance is a single-currency balance line. Free is derived, never stored
// independently, so it can never drift from Total-Locked.
type Balance struct {
	Currency string
	Total    decimal.Decimal
	Locked   decimal.Decimal
}

// Free returns the unencumbered balance available to open new positions.
func (b Balance) Free() decimal.Decimal {
	return b.Total.Sub(b.Locked)
}

// MarginBalance is a single-instrument initial/maintenance margin line,
// reported by margin accounts only.
type MarginBalance struct {
	InstrumentID InstrumentId
	Initial      decimal.Decimal
	Maintenance  decimal.Decimal
}

// Account is the event-sourced balance/margin ledger for one venue account.
// Every AccountStateEvent replaces Balances/Margins wholesale: the account
// does not attempt to diff or reconcile individual currency lines itself,
// it trusts the venue's (or the margin model's) latest full snapshot, while
// retaining prior states for audit.
type Account struct {
	ID   AccountID
	Type AccountType

	Balances map[string]Balance
	Margins  map[InstrumentId]MarginBalance

	History []AccountStateEvent
}

func NewAccount(id AccountID, typ AccountType) *Account {
	return &Account{
		ID:       id,
		Type:     typ,
		Balances: make(map[string]Balance),
		Margins:  make(map[InstrumentId]MarginBalance),
	}
}

// Apply replaces the account's balances and margins with the event's
// snapshot. Unlike Order/Position, this is not a state-machine transition
// with invalid-state panics: any AccountStateEvent is valid at any time,
// since the venue (or a locally synthesized projection) is always allowed
// to tell the account what its current balances are.
func (a *Account) Apply(ev AccountStateEvent) {
	a.Balances = make(map[string]Balance, len(ev.Balances))
	for _, bal := range ev.Balances {
		a.Balances[bal.Currency] = bal
	}
	a.Margins = make(map[InstrumentId]MarginBalance, len(ev.Margins))
	for _, m := range ev.Margins {
		a.Margins[m.InstrumentID] = m
	}
	a.History = append(a.History, ev)
}

// Balance looks up a currency's balance line, returning ok=false if the
// account has never reported one.
func (a *Account) Balance(currency string) (Balance, bool) {
	b, ok := a.Balances[currency]
	return b, ok
}

// BalanceFree returns the free balance for currency, or zero if unknown.
func (a *Account) BalanceFree(currency string) decimal.Decimal {
	if b, ok := a.Balances[currency]; ok {
		return b.Free()
	}
	return decimal.Zero
}

// LockBalance moves lockQty from free into locked for currency. Panics if
// the account has no such balance or insufficient free quantity — callers
// (order submission) must check BalanceFree first; this is the commit step
// after that check, and finding it impossible here means the check was
// skipped or state has already diverged.
func (a *Account) LockBalance(currency string, lockQty decimal.Decimal) {
	b, ok := a.Balances[currency]
	if !ok {
		PanicInvariant("Account", "no balance for currency %s on %s", currency, a.ID)
	}
	if lockQty.GreaterThan(b.Free()) {
		PanicInvariant("Account", "cannot lock %s %s, only %s free on %s", lockQty, currency, b.Free(), a.ID)
	}
	b.Locked = b.Locked.Add(lockQty)
	a.Balances[currency] = b
}

// UnlockBalance releases unlockQty from locked back to free, e.g. on order
// cancel or fill. Clamped at zero rather than panicking, since venue
// rounding can make the exact locked amount slightly imprecise.
func (a *Account) UnlockBalance(currency string, unlockQty decimal.Decimal) {
	b, ok := a.Balances[currency]
	if !ok {
		return
	}
	b.Locked = decimal.Max(decimal.Zero, b.Locked.Sub(unlockQty))
	a.Balances[currency] = b
}
