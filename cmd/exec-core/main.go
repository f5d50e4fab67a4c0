// exec-core is the execution engine entry point.
//
// Architecture:
//
//	main.go                  — entry point: loads config, wires venue + cache + bus, starts the engine, waits for SIGINT/SIGTERM
//	internal/engine          — orchestrator: command validation, in-flight tracking, reconciliation driver, shutdown
//	internal/cache           — authoritative Order/Position/Account store with a msgpack durable backing store
//	internal/model           — event-sourced Order/Position/Account entities and their invariants
//	internal/margin          — pluggable initial/maintenance margin models
//	internal/venue           — capability-gated adapter contract (rest.Client + rest.DataFeed for production, sandbox.Venue for local runs)
//	internal/httpx           — rate limiting, retry with jittered backoff, cancel broadcaster
//	internal/bus             — in-process typed pub/sub with glob topics and correlated request/response
//	internal/clock           — injectable clock plus a cron-backed maintenance scheduler
//
// Exit codes: 0 clean shutdown, 1 unhandled error, 2 invalid configuration,
// 3 startup reconciliation failed, 130 terminated by SIGINT.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/nautilus-go/exec-core/internal/bus"
	"github.com/nautilus-go/exec-core/internal/cache"
	"github.com/nautilus-go/exec-core/internal/clock"
	"github.com/nautilus-go/exec-core/internal/config"
	"github.com/nautilus-go/exec-core/internal/engine"
	"github.com/nautilus-go/exec-core/internal/httpx"
	"github.com/nautilus-go/exec-core/internal/margin"
	"github.com/nautilus-go/exec-core/internal/model"
	"github.com/nautilus-go/exec-core/internal/venue"
	"github.com/nautilus-go/exec-core/internal/venue/rest"
	"github.com/nautilus-go/exec-core/internal/venue/sandbox"
)

const (
	exitOK               = 0
	exitUnhandledError   = 1
	exitInvalidConfig    = 2
	exitReconcileFailed  = 3
	exitSIGINT           = 130
)

func main() {
	os.Exit(run())
}

func run() int {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("EXEC_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		return exitInvalidConfig
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		return exitInvalidConfig
	}

	logger := newLogger(cfg.Logging)

	durable, submitter, reconciler, dataFeed, err := buildVenue(*cfg, logger)
	if err != nil {
		logger.Error("failed to build venue adapter", "error", err)
		return exitUnhandledError
	}

	c := cache.New(durable)
	seedAccount(c, *cfg)

	b := bus.New(logger)

	if dataFeed != nil {
		if err := dataFeed.Connect(context.Background()); err != nil {
			logger.Error("failed to connect data feed", "error", err)
			return exitUnhandledError
		}
		defer dataFeed.Disconnect(context.Background())
	}
	clk := clock.NewLive()
	limiter := buildLimiter(cfg.RateLimit)

	engCfg := engine.Config{
		AccountID:          model.AccountID(cfg.Account.ID),
		OMS:                model.OMSType(cfg.OMS),
		ReconcileOnStartup: cfg.Reconcile.OnStartup,
		ReconcileInterval:  cfg.Reconcile.Interval,
		RetryPolicy: httpx.RetryPolicy{
			Initial:    cfg.Retry.Initial,
			Factor:     cfg.Retry.Factor,
			Max:        cfg.Retry.Max,
			MaxRetries: cfg.Retry.MaxRetries,
		},
		MarginModel: margin.ForAccountType(model.AccountType(cfg.Account.Type), decimal.NewFromFloat(cfg.Account.Leverage)),
	}
	if engCfg.RetryPolicy.Initial == 0 {
		engCfg.RetryPolicy = httpx.DefaultRetryPolicy()
	}

	eng := engine.New(engCfg, cfg.Venue.Name, c, b, clk, submitter, reconciler, limiter, logger)

	if err := eng.Start(); err != nil {
		logger.Error("failed to start engine", "error", err)
		if cfg.Reconcile.OnStartup {
			return exitReconcileFailed
		}
		return exitUnhandledError
	}

	logger.Info("exec-core started", "venue", cfg.Venue.Name, "account", cfg.Account.ID, "oms", cfg.OMS)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	logger.Info("received shutdown signal", "signal", sig.String())
	eng.Stop()

	if sig == syscall.SIGINT {
		return exitSIGINT
	}
	return exitOK
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// buildVenue wires either the sandbox adapter (environment: sandbox) or
// the generic REST + WS adapter (any other environment) behind the same
// venue.OrderSubmitter/venue.Reconciler/venue.DataClient interfaces the
// engine and its market-data consumers use. The sandbox has no WS feed of
// its own, so dataFeed is nil in that environment.
func buildVenue(cfg config.Config, logger *slog.Logger) (*cache.Durable, venue.OrderSubmitter, venue.Reconciler, *rest.DataFeed, error) {
	caps := venue.Capabilities{
		SupportsPostOnly:      true,
		SupportsReduceOnly:    true,
		SupportsStopOrders:    true,
		SupportsQuoteQuantity: false,
		SupportedTimeInForce: map[model.TimeInForce]bool{
			model.TimeInForceGTC: true,
			model.TimeInForceIOC: true,
			model.TimeInForceFOK: true,
		},
		SupportsSideSpecificCancelAll: false,
		SupportsBatchCancel:           true,
		MaxBatchSize:                  15,
	}

	var durable *cache.Durable
	if cfg.Cache.DurableEnabled {
		d, err := cache.OpenDurable(cfg.Cache.DataDir, cfg.Cache.Prefix)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		durable = d
	}

	if cfg.Environment == "sandbox" {
		v := sandbox.New(caps)
		return durable, v, v, nil, nil
	}

	client := rest.New(cfg.Venue.BaseURL, rest.Credentials{
		ApiKey:     cfg.Venue.ApiKey,
		ApiSecret:  cfg.Venue.ApiSecret,
		Passphrase: cfg.Venue.Passphrase,
	}, caps)

	var dataFeed *rest.DataFeed
	if cfg.Venue.WSURL != "" {
		dataFeed = rest.NewDataFeed(cfg.Venue.WSURL, logger)
	}

	return durable, client, client, dataFeed, nil
}

func buildLimiter(cfg config.RateLimitConfig) *httpx.Limiter {
	limiter := httpx.NewLimiter()
	limiter.Register("order", httpx.NewDualBucket(
		nonZero(cfg.OrderBurstPerSec, 10), int(nonZero(float64(cfg.OrderBurstCapacity), 10)),
		nonZero(cfg.OrderWindowCapacity, 300), nonZero(cfg.OrderWindowCapacity, 300)/60))
	limiter.Register("cancel", httpx.NewDualBucket(
		nonZero(cfg.CancelBurstPerSec, 10), int(nonZero(float64(cfg.CancelBurstCapacity), 10)),
		nonZero(cfg.CancelWindowCapacity, 300), nonZero(cfg.CancelWindowCapacity, 300)/60))
	limiter.Register("query", httpx.NewDualBucket(
		nonZero(cfg.QueryBurstPerSec, 5), int(nonZero(float64(cfg.QueryBurstCapacity), 5)),
		nonZero(cfg.QueryWindowCapacity, 150), nonZero(cfg.QueryWindowCapacity, 150)/60))
	return limiter
}

func nonZero(v, fallback float64) float64 {
	if v == 0 {
		return fallback
	}
	return v
}

func seedAccount(c *cache.Cache, cfg config.Config) {
	acc := model.NewAccount(model.AccountID(cfg.Account.ID), model.AccountType(cfg.Account.Type))
	acc.Apply(model.AccountStateEvent{
		AccountID: acc.ID,
		Type:      acc.Type,
		Balances: []model.Balance{
			{Currency: "USD", Total: decimal.Zero, Locked: decimal.Zero},
		},
		Reported: false,
	})
	c.AddAccount(acc)
}
