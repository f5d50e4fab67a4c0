package engine

import (
	"github.com/nautilus-go/exec-core/internal/model"
)

// applyFillToPosition folds a fill event into the Cache's position for the
// order's instrument, choosing NETTING or HEDGING semantics per engine
// config. Errors persisting the position are logged, not returned: the
// fill already happened at the venue and the order's own FilledQty has
// already advanced, so there is no sensible "undo" path here, only a
// durability gap to flag.
func (e *Engine) applyFillToPosition(ev model.OrderEvent) {
	if ev.Fill == nil {
		return
	}
	order, ok := e.cache.Order(ev.ClientOrderID)
	if !ok {
		e.logger.Error("fill event for unknown order", "client_order_id", ev.ClientOrderID)
		return
	}

	var pos *model.Position
	if e.cfg.OMS == model.OMSHedging {
		pid := model.PositionID(order.ClientOrderID) + "-POS"
		pos, ok = e.cache.Position(pid)
		if !ok {
			pos = e.cache.NewHedgePosition(pid, order.InstrumentID, order.StrategyID, order.AccountID)
		}
	} else {
		pos = e.cache.PositionForNetting(order.InstrumentID, order.StrategyID, order.AccountID)
	}

	pos.Apply(order.Side, ev.Fill.LastQty, ev.Fill.LastPx, ev.Fill.Commission, ev.TsEvent)

	if err := e.cache.PersistPosition(pos); err != nil {
		e.logger.Error("failed to persist position", "position_id", pos.ID, "error", err)
	}

	kind := model.PositionChanged
	if !pos.IsOpen() {
		kind = model.PositionClosed
	} else if pos.ClosedAtNs == 0 && pos.Quantity.Equal(ev.Fill.LastQty) {
		kind = model.PositionOpened
	}

	e.bus.Publish("positions."+pos.InstrumentID.String()+"."+string(kind), model.PositionEvent{
		Kind:         kind,
		PositionID:   pos.ID,
		InstrumentID: pos.InstrumentID,
		Side:         pos.Side,
		Quantity:     pos.Quantity,
		AvgEntryPx:   pos.AvgEntryPx,
		RealizedPnL:  pos.RealizedPnL,
		TsEvent:      ev.TsEvent,
	})
}
