package engine

import (
	"context"
	"fmt"

	"github.com/nautilus-go/exec-core/internal/httpx"
	"github.com/nautilus-go/exec-core/internal/model"
)

// ModifyOrder amends price and/or quantity on a resting order, driving it
// through PENDING_UPDATE to either Updated (venue ack) or ModifyRejected
// (venue refusal or exhausted retries).
func (e *Engine) ModifyOrder(ctx context.Context, cmd ModifyOrderCommand) error {
	order, ok := e.cache.Order(cmd.ClientOrderID)
	if !ok {
		return fmt.Errorf("unknown order %s", cmd.ClientOrderID)
	}
	if !order.IsOpen() {
		return fmt.Errorf("order %s is not open (status %s)", cmd.ClientOrderID, order.Status)
	}

	if inst, ok := e.cache.Instrument(order.InstrumentID); ok {
		if !cmd.NewPrice.IsZero() {
			if err := inst.ValidatePrice(cmd.NewPrice); err != nil {
				return &DeniedError{Reason: model.DenialPricePrecisionMismatch, Detail: err.Error()}
			}
		}
		if !cmd.NewQuantity.IsZero() {
			if err := inst.ValidateQuantity(cmd.NewQuantity); err != nil {
				return &DeniedError{Reason: model.DenialSizeBelowMin, Detail: err.Error()}
			}
		}
		price, qty := cmd.NewPrice, cmd.NewQuantity
		if price.IsZero() {
			price = order.Price
		}
		if qty.IsZero() {
			qty = order.Quantity
		}
		extra := e.requiredMargin(inst, order.Side, qty, price)
		e.locksMu.Lock()
		if lock, held := e.locks[order.ClientOrderID]; held {
			extra = extra.Sub(lock.amount)
		}
		e.locksMu.Unlock()
		if acct, found := e.cache.Account(order.AccountID); found && extra.GreaterThan(acct.BalanceFree(lockCurrency(inst))) {
			return &DeniedError{Reason: model.DenialInsufficientBalance, Detail: fmt.Sprintf("modify needs %s more %s than is free", extra, lockCurrency(inst))}
		}
	}

	e.applyAndPublish(model.OrderEvent{
		Kind:          model.EventOrderPendingUpdate,
		ClientOrderID: order.ClientOrderID,
		TsEvent:       e.clock.NowNs(),
	})

	err := httpx.Do(ctx, e.cfg.RetryPolicy, httpx.DefaultShouldRetry, func(ctx context.Context) error {
		if err := e.limiter.Wait(ctx, "order"); err != nil {
			return err
		}
		return e.submitter.ModifyOrder(ctx, order, cmd.NewPrice, cmd.NewQuantity)
	})

	if err != nil {
		e.applyAndPublish(model.OrderEvent{
			Kind:          model.EventOrderModifyRejected,
			ClientOrderID: order.ClientOrderID,
			Reason:        err.Error(),
			TsEvent:       e.clock.NowNs(),
		})
		return err
	}

	e.adjustMarginForModify(order, cmd.NewPrice, cmd.NewQuantity)

	e.applyAndPublish(model.OrderEvent{
		Kind:          model.EventOrderUpdated,
		ClientOrderID: order.ClientOrderID,
		Price:         cmd.NewPrice,
		Quantity:      cmd.NewQuantity,
		TsEvent:       e.clock.NowNs(),
	})
	return nil
}

// SubmitOrder validates cmd, constructs an Order in the Cache, and sends
// it to the venue. A denial never reaches the venue: the Order is created
// directly in DENIED status and the command returns the DeniedError.
func (e *Engine) SubmitOrder(ctx context.Context, cmd SubmitOrderCommand) error {
	caps := e.submitter.Capabilities()

	if err := e.validateSubmit(cmd, caps); err != nil {
		e.denyOrder(cmd, err)
		return err
	}

	order := model.NewOrder(cmd.ClientOrderID, cmd.InstrumentID, cmd.StrategyID, cmd.AccountID,
		cmd.Side, cmd.Type, cmd.Quantity, e.clock.NowNs())
	order.Price = cmd.Price
	order.TriggerPrice = cmd.TriggerPrice
	order.TimeInForce = cmd.TimeInForce
	order.PostOnly = cmd.PostOnly
	order.ReduceOnly = cmd.ReduceOnly
	order.IsQuoteQty = cmd.IsQuoteQty

	if err := e.cache.AddOrder(order); err != nil {
		return fmt.Errorf("cache order: %w", err)
	}
	e.lockMargin(cmd)

	e.applyAndPublish(model.OrderEvent{
		Kind:          model.EventOrderSubmitted,
		ClientOrderID: order.ClientOrderID,
		TsEvent:       e.clock.NowNs(),
	})

	e.markInFlight(order.ClientOrderID)
	defer e.clearInFlight(order.ClientOrderID)

	var venueOrderID model.VenueOrderID
	err := httpx.Do(ctx, e.cfg.RetryPolicy, httpx.DefaultShouldRetry, func(ctx context.Context) error {
		if err := e.limiter.Wait(ctx, "order"); err != nil {
			return err
		}
		id, submitErr := e.submitter.SubmitOrder(ctx, order)
		if submitErr != nil {
			return submitErr
		}
		venueOrderID = id
		return nil
	})

	if err != nil {
		e.applyAndPublish(model.OrderEvent{
			Kind:          model.EventOrderRejected,
			ClientOrderID: order.ClientOrderID,
			Reason:        err.Error(),
			TsEvent:       e.clock.NowNs(),
		})
		return err
	}

	e.applyAndPublish(model.OrderEvent{
		Kind:          model.EventOrderAccepted,
		ClientOrderID: order.ClientOrderID,
		VenueOrderID:  venueOrderID,
		TsEvent:       e.clock.NowNs(),
	})
	return nil
}

func (e *Engine) denyOrder(cmd SubmitOrderCommand, err error) {
	order := model.NewOrder(cmd.ClientOrderID, cmd.InstrumentID, cmd.StrategyID, cmd.AccountID,
		cmd.Side, cmd.Type, cmd.Quantity, e.clock.NowNs())

	reason := ""
	if de, ok := err.(*DeniedError); ok {
		reason = string(de.Reason)
	}

	if addErr := e.cache.AddOrder(order); addErr != nil {
		e.logger.Error("failed to cache denied order", "client_order_id", cmd.ClientOrderID, "error", addErr)
		return
	}
	e.applyAndPublish(model.OrderEvent{
		Kind:          model.EventOrderDenied,
		ClientOrderID: order.ClientOrderID,
		Reason:        reason,
		TsEvent:       e.clock.NowNs(),
	})
}

// CancelOrder cancels a single open order.
func (e *Engine) CancelOrder(ctx context.Context, cmd CancelOrderCommand) error {
	order, ok := e.cache.Order(cmd.ClientOrderID)
	if !ok {
		return fmt.Errorf("unknown order %s", cmd.ClientOrderID)
	}
	if !order.IsOpen() {
		return fmt.Errorf("order %s is not open (status %s)", cmd.ClientOrderID, order.Status)
	}

	e.applyAndPublish(model.OrderEvent{
		Kind:          model.EventOrderPendingCancel,
		ClientOrderID: order.ClientOrderID,
		TsEvent:       e.clock.NowNs(),
	})

	err := httpx.Do(ctx, e.cfg.RetryPolicy, httpx.DefaultShouldRetry, func(ctx context.Context) error {
		if err := e.limiter.Wait(ctx, "cancel"); err != nil {
			return err
		}
		return e.submitter.CancelOrder(ctx, order)
	})

	if err != nil {
		e.applyAndPublish(model.OrderEvent{
			Kind:          model.EventOrderCancelRejected,
			ClientOrderID: order.ClientOrderID,
			Reason:        err.Error(),
			TsEvent:       e.clock.NowNs(),
		})
		return err
	}

	e.applyAndPublish(model.OrderEvent{
		Kind:          model.EventOrderCanceled,
		ClientOrderID: order.ClientOrderID,
		TsEvent:       e.clock.NowNs(),
	})
	return nil
}

// CancelAll cancels every open order for an instrument, optionally scoped
// to one side.
func (e *Engine) CancelAll(ctx context.Context, cmd CancelAllCommand) error {
	caps := e.submitter.Capabilities()
	if err := e.validateCancelAll(cmd, caps); err != nil {
		return err
	}

	open := e.cache.OpenOrdersForInstrument(cmd.InstrumentID)
	for _, o := range open {
		if cmd.SideSet && o.Side != cmd.Side {
			continue
		}
		e.applyAndPublish(model.OrderEvent{
			Kind:          model.EventOrderPendingCancel,
			ClientOrderID: o.ClientOrderID,
			TsEvent:       e.clock.NowNs(),
		})
	}

	err := httpx.Do(ctx, e.cfg.RetryPolicy, httpx.DefaultShouldRetry, func(ctx context.Context) error {
		if err := e.limiter.Wait(ctx, "cancel"); err != nil {
			return err
		}
		return e.submitter.CancelAllOrders(ctx, cmd.InstrumentID)
	})
	if err != nil {
		return err
	}

	for _, o := range open {
		if cmd.SideSet && o.Side != cmd.Side {
			continue
		}
		e.applyAndPublish(model.OrderEvent{
			Kind:          model.EventOrderCanceled,
			ClientOrderID: o.ClientOrderID,
			TsEvent:       e.clock.NowNs(),
		})
	}
	return nil
}

// BatchCancelOrders cancels a specific set of orders in one logical
// request. The venue contract here has no dedicated batch-cancel wire
// call, so each id is driven through the same PENDING_CANCEL -> Canceled/
// CancelRejected path CancelOrder uses; MaxBatchSize only bounds how many
// are attempted per call, since the wire cost is already one request per
// order either way.
func (e *Engine) BatchCancelOrders(ctx context.Context, cmd BatchCancelCommand) error {
	caps := e.submitter.Capabilities()
	if !caps.SupportsBatchCancel {
		return &DeniedError{Reason: model.DenialBatchCancelUnsupported, Detail: e.venueName()}
	}
	if caps.MaxBatchSize > 0 && len(cmd.ClientOrderIDs) > caps.MaxBatchSize {
		return &DeniedError{Reason: model.DenialBatchCancelUnsupported, Detail: fmt.Sprintf("%d orders exceeds venue max batch size %d", len(cmd.ClientOrderIDs), caps.MaxBatchSize)}
	}

	var firstErr error
	for _, cid := range cmd.ClientOrderIDs {
		if err := e.CancelOrder(ctx, CancelOrderCommand{ClientOrderID: cid}); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// QueryAccount republishes the Cache's current belief about accountID onto
// the bus, for a consumer that missed or wants to refresh its last-known
// state. Reported=false marks the event as locally synthesized rather than
// venue-pushed.
func (e *Engine) QueryAccount(ctx context.Context, cmd QueryAccountCommand) error {
	acct, ok := e.cache.Account(cmd.AccountID)
	if !ok {
		return fmt.Errorf("unknown account %s", cmd.AccountID)
	}

	balances := make([]model.Balance, 0, len(acct.Balances))
	for _, b := range acct.Balances {
		balances = append(balances, b)
	}
	margins := make([]model.MarginBalance, 0, len(acct.Margins))
	for _, m := range acct.Margins {
		margins = append(margins, m)
	}

	ev := model.AccountStateEvent{
		AccountID: acct.ID,
		Type:      acct.Type,
		Balances:  balances,
		Margins:   margins,
		TsEvent:   e.clock.NowNs(),
		Reported:  false,
	}
	e.bus.Publish(fmt.Sprintf("accounts.%s.queried", acct.ID), ev)
	return nil
}

// applyAndPublish applies ev to the Cache and publishes it on the bus
// under "orders.{instrument}.{kind}", logging rather than propagating a
// cache error since by this point the event has already been accepted as
// having happened (the venue has acted on it) — the Cache failing to
// record it is an observability problem, not grounds to pretend the
// event never occurred.
func (e *Engine) applyAndPublish(ev model.OrderEvent) {
	if err := e.cache.ApplyOrderEvent(ev); err != nil {
		e.logger.Error("failed to apply order event to cache", "client_order_id", ev.ClientOrderID, "kind", ev.Kind, "error", err)
	}

	order, ok := e.cache.Order(ev.ClientOrderID)
	topic := fmt.Sprintf("orders.%s.%s", ev.ClientOrderID, ev.Kind)
	if ok {
		topic = fmt.Sprintf("orders.%s.%s", order.InstrumentID, ev.Kind)
	}
	e.bus.Publish(topic, ev)

	if ev.Kind == model.EventOrderPartiallyFilled || ev.Kind == model.EventOrderFilled {
		e.applyFillToPosition(ev)
		if ok && ev.Fill != nil {
			e.releaseMarginOnFill(order, ev.Fill.LastQty)
		}
	}

	if ok && order.Status.IsTerminal() {
		e.releaseMarginRemaining(order)
	}
}
