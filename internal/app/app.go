// Package app wires the harness to its backends and runs it in the
// configured mode.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/profitharness/internal/config"
	"github.com/alanyoungcy/profitharness/internal/domain"
	"github.com/alanyoungcy/profitharness/internal/events"
	"github.com/alanyoungcy/profitharness/internal/harness"
	"github.com/alanyoungcy/profitharness/internal/routing"
	"github.com/alanyoungcy/profitharness/internal/strategy"
)

// App owns the configuration, the logger and the cleanup stack.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates an App.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// runtime is the assembled harness with its strategy set.
type runtime struct {
	harness    *harness.Harness
	strategies *strategy.Registry
}

// Run wires dependencies and blocks in the configured mode.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("backend", a.cfg.Backend),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	switch strings.ToLower(a.cfg.Mode) {
	case "serve":
		return a.ServeMode(ctx, deps)
	case "run":
		return a.RunMode(ctx, deps)
	case "quote":
		return a.QuoteMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close runs the cleanup stack in reverse. Safe to call twice.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// build assembles the registry, the harness and the strategies. extra
// receives events alongside the log and the signal bus.
func (a *App) build(ctx context.Context, deps *Dependencies, extra ...domain.EventEmitter) (*runtime, error) {
	reg := routing.NewRegistry(deps.Resolver, a.logger, routing.WithConcurrentQuotes(a.cfg.Harness.ConcurrentQuotes))
	if err := a.loadRegistry(ctx, reg, deps.RegistryStore); err != nil {
		return nil, err
	}

	emitter := events.Multi{events.NewLog(a.logger)}
	if deps.SignalBus != nil {
		emitter = append(emitter, events.NewBus(deps.SignalBus, a.logger))
	}
	emitter = append(emitter, extra...)

	base, err := parseAsset("harness base asset", a.cfg.Harness.BaseAsset)
	if err != nil {
		return nil, err
	}
	h := harness.New(harness.Config{
		Account:        deps.Account,
		Admin:          deps.Admin,
		BaseAsset:      base,
		SlippageBps:    uint32(a.cfg.Harness.SlippageBps),
		SwapDeadline:   a.cfg.Harness.SwapDeadline.Duration,
		SettleAfterRun: a.cfg.Harness.SettleAfterRun,
		LockKey:        a.cfg.Harness.LockKey,
		LockTTL:        a.cfg.Harness.LockTTL.Duration,
	}, harness.Deps{
		Ledger:        deps.Ledger,
		Registry:      reg,
		Emitter:       emitter,
		Locker:        deps.LockManager,
		Audit:         deps.AuditStore,
		RegistryStore: deps.RegistryStore,
		Sinks:         a.sinks(deps),
	}, a.logger)

	for _, s := range a.cfg.Harness.TrackedAssets {
		asset, err := parseAsset("tracked asset", s)
		if err != nil {
			return nil, err
		}
		h.Tracker().Add(asset)
	}

	strategies := strategy.NewRegistry()
	for _, s := range strategy.Builtins(a.strategyConfig(base), reg, h.Executor()) {
		strategies.Register(s)
	}
	return &runtime{harness: h, strategies: strategies}, nil
}

// loadRegistry restores venues and intermediates from the store when it
// holds any; otherwise it registers the configured ones and persists them.
func (a *App) loadRegistry(ctx context.Context, reg *routing.Registry, store domain.RegistryStore) error {
	if store != nil {
		venues, err := store.ListVenues(ctx)
		if err != nil {
			return fmt.Errorf("app: load venues: %w", err)
		}
		if len(venues) > 0 {
			for _, v := range venues {
				if _, err := reg.AddVenue(v); err != nil {
					return fmt.Errorf("app: restore venue %q: %w", v.Name, err)
				}
			}
			mids, err := store.ListIntermediates(ctx)
			if err != nil {
				return fmt.Errorf("app: load intermediates: %w", err)
			}
			reg.ReplaceIntermediateAssets(mids)
			a.logger.InfoContext(ctx, "registry restored",
				slog.Int("venues", len(venues)),
				slog.Int("intermediates", len(mids)),
			)
			return nil
		}
	}

	for _, vc := range a.cfg.Venues {
		v := domain.Venue{
			Name:          vc.Name,
			QuoteEndpoint: common.HexToAddress(vc.Router),
			RouteEndpoint: common.HexToAddress(vc.Factory),
			FeeBps:        uint32(vc.FeeBps),
			Active:        vc.Active,
		}
		idx, err := reg.AddVenue(v)
		if err != nil {
			return fmt.Errorf("app: add venue %q: %w", vc.Name, err)
		}
		if store != nil {
			if err := store.InsertVenue(ctx, idx, v); err != nil {
				return fmt.Errorf("app: persist venue %q: %w", vc.Name, err)
			}
		}
	}
	mids := make([]domain.Asset, 0, len(a.cfg.Intermediates))
	for _, s := range a.cfg.Intermediates {
		mids = append(mids, common.HexToAddress(s))
	}
	reg.ReplaceIntermediateAssets(mids)
	if store != nil {
		if err := store.ReplaceIntermediates(ctx, reg.Intermediates()); err != nil {
			return fmt.Errorf("app: persist intermediates: %w", err)
		}
	}
	return nil
}

// sinks returns the result consumers enabled by deps.
func (a *App) sinks(deps *Dependencies) []harness.Sink {
	var sinks []harness.Sink
	if deps.ExecutionStore != nil {
		sinks = append(sinks, harness.SinkFunc(deps.ExecutionStore.Create))
	}
	if deps.ResultCache != nil {
		sinks = append(sinks, harness.SinkFunc(deps.ResultCache.SetLatest))
	}
	if deps.Archiver != nil {
		sinks = append(sinks, harness.SinkFunc(func(ctx context.Context, r domain.ExecutionResult) error {
			_, err := deps.Archiver.Archive(ctx, r)
			return err
		}))
	}
	if deps.Notifier != nil && deps.Notifier.Enabled() {
		sinks = append(sinks, deps.Notifier)
	}
	return sinks
}

func (a *App) strategyConfig(base domain.Asset) strategy.Config {
	sc := strategy.Config{
		Base:        base,
		SlippageBps: uint32(a.cfg.Harness.SlippageBps),
		Reason:      a.cfg.Strategy.Reason,
	}
	if a.cfg.Strategy.Token != "" {
		sc.Token = common.HexToAddress(a.cfg.Strategy.Token)
	}
	if a.cfg.Strategy.Amount != "" {
		if v, err := config.ParseAmount(a.cfg.Strategy.Amount); err == nil {
			sc.Amount = v
		}
	}
	return sc
}

func (a *App) strategyAmount() *big.Int {
	v, err := config.ParseAmount(a.cfg.Strategy.Amount)
	if err != nil {
		return new(big.Int)
	}
	return v
}

// parseAsset is domain.ParseAsset with an error naming what was being read.
func parseAsset(what, s string) (domain.Asset, error) {
	asset, ok := domain.ParseAsset(s)
	if !ok {
		return domain.Asset{}, fmt.Errorf("app: invalid %s %q", what, s)
	}
	return asset, nil
}
