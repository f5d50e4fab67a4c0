package cache

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/nautilus-go/exec-core/internal/model"
)

// Cache is the engine's single authoritative store of domain entities and
// the indexes the engine, reconciliation driver, and message bus
// consumers query against. It is mutated by exactly one goroutine (the
// engine's run loop), a single-writer discipline; read-only lookups used
// by other goroutines take the RWMutex for reading.
type Cache struct {
	mu sync.RWMutex

	orders        map[model.ClientOrderID]*model.Order
	venueToClient map[model.VenueOrderID]model.ClientOrderID
	openByInst    map[model.InstrumentId]map[model.ClientOrderID]struct{}
	ordersByStrat map[model.StrategyID]map[model.ClientOrderID]struct{}

	positions       map[model.PositionID]*model.Position
	nettingPosition map[model.InstrumentId]model.PositionID // NETTING: one live position per instrument
	positionsByInst map[model.InstrumentId]map[model.PositionID]struct{}
	positionsByStrat map[model.StrategyID]map[model.PositionID]struct{}

	accounts map[model.AccountID]*model.Account

	instruments map[model.InstrumentId]model.Instrument

	durable *Durable // nil if durability is disabled
}

// New builds an empty Cache. durable may be nil to run memory-only (e.g.
// in tests or a sandbox session that discards state on exit).
func New(durable *Durable) *Cache {
	return &Cache{
		orders:           make(map[model.ClientOrderID]*model.Order),
		venueToClient:    make(map[model.VenueOrderID]model.ClientOrderID),
		openByInst:       make(map[model.InstrumentId]map[model.ClientOrderID]struct{}),
		ordersByStrat:    make(map[model.StrategyID]map[model.ClientOrderID]struct{}),
		positions:        make(map[model.PositionID]*model.Position),
		nettingPosition:  make(map[model.InstrumentId]model.PositionID),
		positionsByInst:  make(map[model.InstrumentId]map[model.PositionID]struct{}),
		positionsByStrat: make(map[model.StrategyID]map[model.PositionID]struct{}),
		accounts:         make(map[model.AccountID]*model.Account),
		instruments:      make(map[model.InstrumentId]model.Instrument),
		durable:          durable,
	}
}

// AddInstrument registers (or replaces) an instrument's specification.
func (c *Cache) AddInstrument(inst model.Instrument) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.instruments[inst.ID] = inst
}

func (c *Cache) Instrument(id model.InstrumentId) (model.Instrument, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	inst, ok := c.instruments[id]
	return inst, ok
}

// AddOrder registers a freshly-created order and persists it if durability
// is enabled.
func (c *Cache) AddOrder(o *model.Order) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.orders[o.ClientOrderID]; exists {
		return fmt.Errorf("order %s already in cache", o.ClientOrderID)
	}
	c.orders[o.ClientOrderID] = o
	c.indexOpenLocked(o)

	if c.ordersByStrat[o.StrategyID] == nil {
		c.ordersByStrat[o.StrategyID] = make(map[model.ClientOrderID]struct{})
	}
	c.ordersByStrat[o.StrategyID][o.ClientOrderID] = struct{}{}

	return c.persistOrderLocked(o)
}

// ApplyOrderEvent looks up the order the event targets, applies it, updates
// indexes, and persists the result.
func (c *Cache) ApplyOrderEvent(ev model.OrderEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	o, ok := c.orders[ev.ClientOrderID]
	if !ok {
		return fmt.Errorf("no cached order %s for event %s", ev.ClientOrderID, ev.Kind)
	}

	o.Apply(ev) // panics on InvariantViolation, propagated to caller intentionally

	if ev.VenueOrderID != "" {
		c.venueToClient[ev.VenueOrderID] = o.ClientOrderID
	}
	if o.Status.IsTerminal() {
		c.unindexOpenLocked(o)
	}

	return c.persistOrderLocked(o)
}

func (c *Cache) indexOpenLocked(o *model.Order) {
	if c.openByInst[o.InstrumentID] == nil {
		c.openByInst[o.InstrumentID] = make(map[model.ClientOrderID]struct{})
	}
	c.openByInst[o.InstrumentID][o.ClientOrderID] = struct{}{}
}

func (c *Cache) unindexOpenLocked(o *model.Order) {
	if set, ok := c.openByInst[o.InstrumentID]; ok {
		delete(set, o.ClientOrderID)
	}
}

func (c *Cache) persistOrderLocked(o *model.Order) error {
	if c.durable == nil {
		return nil
	}
	return c.durable.Put("order", string(o.ClientOrderID), o)
}

// Order looks up an order by client order id.
func (c *Cache) Order(id model.ClientOrderID) (*model.Order, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	o, ok := c.orders[id]
	return o, ok
}

// OrderByVenueID resolves a venue order id back to the local order.
func (c *Cache) OrderByVenueID(id model.VenueOrderID) (*model.Order, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cid, ok := c.venueToClient[id]
	if !ok {
		return nil, false
	}
	o, ok := c.orders[cid]
	return o, ok
}

// OpenOrdersForInstrument returns every currently-open order for instID.
func (c *Cache) OpenOrdersForInstrument(instID model.InstrumentId) []*model.Order {
	c.mu.RLock()
	defer c.mu.RUnlock()
	set := c.openByInst[instID]
	out := make([]*model.Order, 0, len(set))
	for cid := range set {
		out = append(out, c.orders[cid])
	}
	return out
}

// PositionForNetting returns the live netted position for instID, creating
// one under a deterministic id if none exists yet.
func (c *Cache) PositionForNetting(instID model.InstrumentId, strategyID model.StrategyID, accountID model.AccountID) *model.Position {
	c.mu.Lock()
	defer c.mu.Unlock()

	if pid, ok := c.nettingPosition[instID]; ok {
		return c.positions[pid]
	}

	pid := model.PositionID(fmt.Sprintf("%s-NET", instID))
	pos := model.NewPosition(pid, instID, strategyID, accountID)
	c.positions[pid] = pos
	c.nettingPosition[instID] = pid
	c.indexPositionLocked(pos)
	return pos
}

// NewHedgePosition mints a fresh position identity for a HEDGING-mode entry.
func (c *Cache) NewHedgePosition(id model.PositionID, instID model.InstrumentId, strategyID model.StrategyID, accountID model.AccountID) *model.Position {
	c.mu.Lock()
	defer c.mu.Unlock()
	pos := model.NewPosition(id, instID, strategyID, accountID)
	c.positions[id] = pos
	c.indexPositionLocked(pos)
	return pos
}

func (c *Cache) indexPositionLocked(p *model.Position) {
	if c.positionsByInst[p.InstrumentID] == nil {
		c.positionsByInst[p.InstrumentID] = make(map[model.PositionID]struct{})
	}
	c.positionsByInst[p.InstrumentID][p.ID] = struct{}{}

	if c.positionsByStrat[p.StrategyID] == nil {
		c.positionsByStrat[p.StrategyID] = make(map[model.PositionID]struct{})
	}
	c.positionsByStrat[p.StrategyID][p.ID] = struct{}{}
}

// PersistPosition writes the current state of p to the durable store, if
// enabled. Callers do this after every fill that mutates a position.
func (c *Cache) PersistPosition(p *model.Position) error {
	if c.durable == nil {
		return nil
	}
	return c.durable.Put("position", string(p.ID), p)
}

// Position looks up a position by id.
func (c *Cache) Position(id model.PositionID) (*model.Position, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.positions[id]
	return p, ok
}

// PositionsForInstrument returns every position (open or with history)
// tracked for instID.
func (c *Cache) PositionsForInstrument(instID model.InstrumentId) []*model.Position {
	c.mu.RLock()
	defer c.mu.RUnlock()
	set := c.positionsByInst[instID]
	out := make([]*model.Position, 0, len(set))
	for pid := range set {
		out = append(out, c.positions[pid])
	}
	return out
}

// AddAccount registers an account.
func (c *Cache) AddAccount(a *model.Account) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accounts[a.ID] = a
}

// Account looks up an account by id.
func (c *Cache) Account(id model.AccountID) (*model.Account, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.accounts[id]
	return a, ok
}

// ApplyAccountState folds an account state event and persists the result.
func (c *Cache) ApplyAccountState(ev model.AccountStateEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	a, ok := c.accounts[ev.AccountID]
	if !ok {
		return fmt.Errorf("no cached account %s", ev.AccountID)
	}
	a.Apply(ev)
	return c.persistAccountLocked(a)
}

// LockAccountBalance reserves lockQty of currency against accountID's free
// balance and persists the account, under the same lock AddOrder/
// ApplyOrderEvent use — the mutation and its durable write happen as one
// step so a reader never observes a locked balance that didn't make it to
// disk.
func (c *Cache) LockAccountBalance(accountID model.AccountID, currency string, lockQty decimal.Decimal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.accounts[accountID]
	if !ok {
		return fmt.Errorf("no cached account %s", accountID)
	}
	a.LockBalance(currency, lockQty)
	return c.persistAccountLocked(a)
}

// UnlockAccountBalance releases unlockQty of currency back to accountID's
// free balance and persists the account. A no-op (not an error) if the
// account is unknown, mirroring Account.UnlockBalance's own tolerance.
func (c *Cache) UnlockAccountBalance(accountID model.AccountID, currency string, unlockQty decimal.Decimal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.accounts[accountID]
	if !ok {
		return nil
	}
	a.UnlockBalance(currency, unlockQty)
	return c.persistAccountLocked(a)
}

func (c *Cache) persistAccountLocked(a *model.Account) error {
	if c.durable == nil {
		return nil
	}
	return c.durable.Put("account", string(a.ID), a)
}

// AllOpenOrders returns every order the cache still considers open, across
// every instrument — used by the reconciliation driver and shutdown's
// cancel-all safety net.
func (c *Cache) AllOpenOrders() []*model.Order {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*model.Order, 0)
	for _, o := range c.orders {
		if o.IsOpen() {
			out = append(out, o)
		}
	}
	return out
}
