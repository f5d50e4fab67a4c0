// Package engine is the central orchestrator of the execution core.
//
// It wires together:
//
//  1. A Cache holding every Order/Position/Account the process is
//     responsible for.
//  2. A venue.OrderSubmitter the engine drives with capability-gated
//     commands, wrapped in rate limiting and retry.
//  3. A message bus the engine publishes every order/position/account
//     event to, and from which other components (strategies, dashboards)
//     receive state changes.
//  4. A reconciliation driver that keeps the Cache converged with the
//     venue's own belief about open orders, fills, and positions.
//
// Lifecycle: New() -> Start() -> [runs until ctx canceled] -> Stop().
// Orchestration follows a wg.Add(1)+go func() per subsystem, select-loop
// main goroutine, cancel -> safety net -> persist -> wg.Wait -> close on
// shutdown shape, generalized from a market-making-specific orchestrator
// to a venue-agnostic execution engine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nautilus-go/exec-core/internal/bus"
	"github.com/nautilus-go/exec-core/internal/cache"
	"github.com/nautilus-go/exec-core/internal/clock"
	"github.com/nautilus-go/exec-core/internal/httpx"
	"github.com/nautilus-go/exec-core/internal/margin"
	"github.com/nautilus-go/exec-core/internal/model"
	"github.com/nautilus-go/exec-core/internal/venue"
)

// Config bundles the tunables the engine itself consumes, distinct from
// the full on-disk config.Config so tests can construct an Engine without
// a YAML file.
type Config struct {
	AccountID          model.AccountID
	OMS                model.OMSType
	ReconcileOnStartup bool
	ReconcileInterval  time.Duration
	ShutdownCancelWait time.Duration
	RetryPolicy        httpx.RetryPolicy
	// MarginModel sizes the balance lock a submitted order reserves and
	// the maintenance requirement an open position must keep. Defaults to
	// margin.NoMargin{} (full notional, no leverage) if left nil.
	MarginModel margin.Model
}

// inFlightCommand tracks a command sent to the venue but not yet
// acknowledged, so a periodic sweep can query its outcome if the venue
// never replies.
type inFlightCommand struct {
	clientOrderID model.ClientOrderID
	sentAt        time.Time
}

// Engine is the execution engine. All Cache mutation happens on its own
// goroutines or under command handler calls; it does not itself serialize
// concurrent callers beyond what Cache already does — the single-writer
// discipline lives in Cache, not here.
type Engine struct {
	cfg        Config
	venueLabel string

	cache      *cache.Cache
	bus        *bus.Bus
	clock      clock.Clock
	submitter  venue.OrderSubmitter
	reconciler venue.Reconciler
	limiter    *httpx.Limiter
	scheduler  *clock.Scheduler
	logger     *slog.Logger

	inFlightMu sync.Mutex
	inFlight   map[model.ClientOrderID]inFlightCommand

	marginModel margin.Model
	locksMu     sync.Mutex
	locks       map[model.ClientOrderID]*orderLock

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires an Engine from its dependencies. venueLabel is used only in
// log fields and denial details (e.g. "coinbase", "sandbox").
func New(cfg Config, venueLabel string, c *cache.Cache, b *bus.Bus, clk clock.Clock,
	submitter venue.OrderSubmitter, reconciler venue.Reconciler, limiter *httpx.Limiter, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MarginModel == nil {
		cfg.MarginModel = margin.NoMargin{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:         cfg,
		venueLabel:  venueLabel,
		cache:       c,
		bus:         b,
		clock:       clk,
		submitter:   submitter,
		reconciler:  reconciler,
		limiter:     limiter,
		scheduler:   clock.NewScheduler(logger),
		logger:      logger.With("component", "engine"),
		inFlight:    make(map[model.ClientOrderID]inFlightCommand),
		marginModel: cfg.MarginModel,
		locks:       make(map[model.ClientOrderID]*orderLock),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start connects to the venue, optionally reconciles on startup, and
// launches the periodic reconciliation and in-flight sweep goroutines.
func (e *Engine) Start() error {
	if err := e.submitter.Connect(e.ctx); err != nil {
		return fmt.Errorf("connect venue: %w", err)
	}

	if e.cfg.ReconcileOnStartup {
		if err := e.Reconcile(e.ctx); err != nil {
			return fmt.Errorf("startup reconciliation: %w", err)
		}
	}

	if e.cfg.ReconcileInterval > 0 {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.runPeriodicReconcile()
		}()
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.runInFlightSweep()
	}()

	e.scheduler.Start()

	e.logger.Info("engine started", "venue", e.venueLabel, "account", e.cfg.AccountID)
	return nil
}

// Stop shuts the engine down in order: cancel the engine's context (ending
// the periodic reconcile and in-flight sweep loops) and stop the scheduler,
// cancel every open order as a safety net, persist durable-cache state (already
// incremental, so this is a no-op flush), disconnect from the venue,
// then wait for every goroutine to exit.
func (e *Engine) Stop() {
	e.logger.Info("shutting down engine")

	e.cancel()
	e.scheduler.Stop()

	cancelCtx, cancelCancel := context.WithTimeout(context.Background(), e.shutdownCancelWait())
	defer cancelCancel()
	if err := e.cancelAllSafetyNet(cancelCtx); err != nil {
		e.logger.Error("cancel-all safety net failed", "error", err)
	}

	if err := e.submitter.Disconnect(context.Background()); err != nil {
		e.logger.Error("venue disconnect failed", "error", err)
	}

	e.wg.Wait()
	e.logger.Info("engine shutdown complete")
}

func (e *Engine) shutdownCancelWait() time.Duration {
	if e.cfg.ShutdownCancelWait > 0 {
		return e.cfg.ShutdownCancelWait
	}
	return 10 * time.Second
}

// cancelAllSafetyNet sends one venue cancel-all per instrument that still
// has open orders in the Cache, one instrument after another, and on each
// success applies Canceled to that instrument's open orders (an order in
// PENDING_UPDATE has no Canceled transition and is left as it is). A
// failure on one instrument does not stop the others; every failure is
// returned joined.
func (e *Engine) cancelAllSafetyNet(ctx context.Context) error {
	open := e.cache.AllOpenOrders()
	if len(open) == 0 {
		return nil
	}

	seen := make(map[model.InstrumentId]bool)
	var errs []error
	for _, o := range open {
		if seen[o.InstrumentID] {
			continue
		}
		seen[o.InstrumentID] = true
		instID := o.InstrumentID
		if err := e.submitter.CancelAllOrders(ctx, instID); err != nil {
			errs = append(errs, fmt.Errorf("cancel all %s: %w", instID, err))
			continue
		}
		for _, other := range open {
			if other.InstrumentID == instID && other.Status != model.OrderStatusPendingUpdate {
				e.applyAndPublish(model.OrderEvent{Kind: model.EventOrderCanceled, ClientOrderID: other.ClientOrderID, TsEvent: e.clock.NowNs()})
			}
		}
	}

	return errors.Join(errs...)
}

func (e *Engine) runPeriodicReconcile() {
	ticker := time.NewTicker(e.cfg.ReconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			if err := e.Reconcile(e.ctx); err != nil {
				e.logger.Error("periodic reconciliation failed", "error", err)
			}
		}
	}
}

// runInFlightSweep periodically queries the venue for any command that
// has been in flight too long without an acknowledgment, so a dropped
// response never leaves the Cache silently stuck in PENDING/SUBMITTED.
func (e *Engine) runInFlightSweep() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.sweepInFlight()
		}
	}
}

func (e *Engine) sweepInFlight() {
	const staleAfter = 30 * time.Second

	e.inFlightMu.Lock()
	stale := make([]model.ClientOrderID, 0)
	now := time.Now()
	for cid, cmd := range e.inFlight {
		if now.Sub(cmd.sentAt) > staleAfter {
			stale = append(stale, cid)
		}
	}
	e.inFlightMu.Unlock()

	if len(stale) == 0 {
		return
	}

	e.logger.Warn("in-flight commands stale, triggering reconciliation", "count", len(stale))
	if err := e.Reconcile(e.ctx); err != nil {
		e.logger.Error("reconciliation from stale in-flight sweep failed", "error", err)
	}
}

func (e *Engine) markInFlight(clientOrderID model.ClientOrderID) {
	e.inFlightMu.Lock()
	defer e.inFlightMu.Unlock()
	e.inFlight[clientOrderID] = inFlightCommand{clientOrderID: clientOrderID, sentAt: time.Now()}
}

func (e *Engine) clearInFlight(clientOrderID model.ClientOrderID) {
	e.inFlightMu.Lock()
	defer e.inFlightMu.Unlock()
	delete(e.inFlight, clientOrderID)
}
