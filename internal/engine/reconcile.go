package engine

import (
	"context"
	"fmt"

	"github.com/nautilus-go/exec-core/internal/model"
)

// Reconcile runs the snapshot -> diff -> synthesize -> re-diff convergence
// algorithm against the venue's authoritative state. It is idempotent:
// running it twice in a row with no intervening venue activity produces
// no further events the second time.
func (e *Engine) Reconcile(ctx context.Context) error {
	if e.reconciler == nil {
		return nil
	}

	status, err := e.reconciler.GenerateMassStatus(ctx, e.cfg.AccountID)
	if err != nil {
		return fmt.Errorf("generate mass status: %w", err)
	}

	diffs := e.diffOrders(status.Orders)
	for _, d := range diffs {
		e.synthesize(d)
	}

	remaining := e.diffOrders(status.Orders)
	if len(remaining) > 0 {
		e.logger.Warn("reconciliation did not fully converge", "remaining_diffs", len(remaining))
	}

	return nil
}

// orderDiff describes one order whose local Cache state disagrees with
// the venue's report, or (missingAtVenue) one the Cache still considers
// open that the venue's mass status no longer reports at all.
type orderDiff struct {
	report         model.OrderStatusReport
	local          *model.Order // nil if the Cache has never heard of this order
	missingAtVenue bool
}

func (e *Engine) diffOrders(reports []model.OrderStatusReport) []orderDiff {
	var diffs []orderDiff
	reported := make(map[model.ClientOrderID]struct{}, len(reports))
	for _, r := range reports {
		reported[r.ClientOrderID] = struct{}{}
		local, ok := e.cache.Order(r.ClientOrderID)
		if !ok {
			diffs = append(diffs, orderDiff{report: r, local: nil})
			continue
		}
		if local.Status != r.Status || !local.FilledQty.Equal(r.FilledQty) {
			diffs = append(diffs, orderDiff{report: r, local: local})
		}
	}

	for _, o := range e.cache.AllOpenOrders() {
		if _, ok := reported[o.ClientOrderID]; ok {
			continue
		}
		diffs = append(diffs, orderDiff{local: o, missingAtVenue: true})
	}

	return diffs
}

// synthesize produces and applies the missing local events needed to bring
// one order's Cache state in line with the venue's report. A fill-vs-cancel
// race always resolves in favor of the fill: if the venue reports a
// FilledQty increase even though the last local event was a cancel
// acknowledgment, the fill is treated as having happened first.
func (e *Engine) synthesize(d orderDiff) {
	if d.missingAtVenue {
		e.synthesizeMissingAtVenue(d.local)
		return
	}

	if d.local == nil {
		order := model.NewOrder(d.report.ClientOrderID, d.report.InstrumentID, "", e.cfg.AccountID,
			d.report.Side, d.report.Type, d.report.Quantity, e.clock.NowNs())
		order.VenueOrderID = d.report.VenueOrderID
		order.Price = d.report.Price
		if err := e.cache.AddOrder(order); err != nil {
			e.logger.Error("failed to add reconciled order", "client_order_id", d.report.ClientOrderID, "error", err)
			return
		}
		e.applyAndPublish(model.OrderEvent{
			Kind:          model.EventOrderSubmitted,
			ClientOrderID: order.ClientOrderID,
			TsEvent:       e.clock.NowNs(),
		})
		d.local = order
	}

	if d.local.Status == model.OrderStatusSubmitted && d.report.Status != model.OrderStatusSubmitted {
		e.applyAndPublish(model.OrderEvent{
			Kind:          model.EventOrderAccepted,
			ClientOrderID: d.local.ClientOrderID,
			VenueOrderID:  d.report.VenueOrderID,
			TsEvent:       e.clock.NowNs(),
		})
	}

	if d.report.FilledQty.GreaterThan(d.local.FilledQty) {
		delta := d.report.FilledQty.Sub(d.local.FilledQty)
		e.applyAndPublish(model.OrderEvent{
			Kind:          model.EventOrderPartiallyFilled,
			ClientOrderID: d.local.ClientOrderID,
			TsEvent:       e.clock.NowNs(),
			Fill: &model.FillReport{
				LastQty: delta,
				LastPx:  d.report.AvgFillPx,
				CumQty:  d.report.FilledQty,
				AvgPx:   d.report.AvgFillPx,
			},
		})
	}

	switch d.report.Status {
	case model.OrderStatusFilled:
		if d.local.Status != model.OrderStatusFilled {
			o, _ := e.cache.Order(d.local.ClientOrderID)
			if o != nil && o.FilledQty.LessThan(o.Quantity) {
				e.applyAndPublish(model.OrderEvent{
					Kind:          model.EventOrderPartiallyFilled,
					ClientOrderID: d.local.ClientOrderID,
					TsEvent:       e.clock.NowNs(),
					Fill: &model.FillReport{
						LastQty: o.Quantity.Sub(o.FilledQty),
						LastPx:  d.report.AvgFillPx,
						CumQty:  o.Quantity,
						AvgPx:   d.report.AvgFillPx,
					},
				})
			}
		}
	case model.OrderStatusCanceled:
		o, _ := e.cache.Order(d.local.ClientOrderID)
		if o != nil && o.IsOpen() {
			e.applyAndPublish(model.OrderEvent{
				Kind:          model.EventOrderCanceled,
				ClientOrderID: d.local.ClientOrderID,
				TsEvent:       e.clock.NowNs(),
			})
		}
	case model.OrderStatusExpired:
		o, _ := e.cache.Order(d.local.ClientOrderID)
		if o != nil && o.IsOpen() {
			e.applyAndPublish(model.OrderEvent{
				Kind:          model.EventOrderExpired,
				ClientOrderID: d.local.ClientOrderID,
				TsEvent:       e.clock.NowNs(),
			})
		}
	}
}

// synthesizeMissingAtVenue handles an order the local Cache still considers
// open when the venue's mass status no longer reports it at all — closed
// out-of-band in a way that left no status line behind. Orders past their
// expiry are synthesized as Expired, everything else as Canceled, the
// common venue behavior for an order that aged out of the open-order list
// after a manual or out-of-band cancel.
func (e *Engine) synthesizeMissingAtVenue(o *model.Order) {
	switch o.Status {
	case model.OrderStatusAccepted, model.OrderStatusTriggered, model.OrderStatusPartiallyFilled, model.OrderStatusPendingCancel:
	default:
		e.logger.Warn("order missing at venue but not in a cancelable local state, skipping synthesis",
			"client_order_id", o.ClientOrderID, "status", o.Status)
		return
	}

	kind := model.EventOrderCanceled
	if o.Status != model.OrderStatusPendingCancel && o.ExpireTimeNs != 0 && o.ExpireTimeNs <= e.clock.NowNs() {
		kind = model.EventOrderExpired
	}
	e.applyAndPublish(model.OrderEvent{
		Kind:          kind,
		ClientOrderID: o.ClientOrderID,
		TsEvent:       e.clock.NowNs(),
	})
}
