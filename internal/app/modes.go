package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/profitharness/internal/crypto"
	"github.com/alanyoungcy/profitharness/internal/domain"
	"github.com/alanyoungcy/profitharness/internal/server"
	"github.com/alanyoungcy/profitharness/internal/server/handler"
	"github.com/alanyoungcy/profitharness/internal/server/ws"
)

// output is where run and quote modes print their JSON.
var output io.Writer = os.Stdout

// ServeMode runs the HTTP API and the WebSocket hub until ctx is cancelled.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	var rt *runtime
	hub := ws.NewHub(deps.SignalBus, func() map[string]any {
		if rt == nil {
			return map[string]any{}
		}
		return map[string]any{
			"executing":  rt.harness.Executing(),
			"account":    rt.harness.Account(),
			"base_asset": rt.harness.Tracker().Base(),
			"strategies": rt.strategies.List(),
		}
	}, a.logger)

	// Without a bus the hub is fed in-process.
	var extra []domain.EventEmitter
	if deps.SignalBus == nil {
		extra = append(extra, hub)
	}
	built, err := a.build(ctx, deps, extra...)
	if err != nil {
		return err
	}
	rt = built

	var signer *crypto.RequestAuth
	if a.cfg.Server.HMACSecret != "" {
		signer = &crypto.RequestAuth{Secret: a.cfg.Server.HMACSecret, MaxSkew: a.cfg.Server.HMACSkew.Duration}
	}
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		Signer:      signer,
		Limiter:     deps.RateLimiter,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, server.Handlers{
		Health:     handler.NewHealthHandler(deps.Checks, a.logger),
		Registry:   handler.NewRegistryHandler(rt.harness, a.logger),
		Harness:    handler.NewHarnessHandler(rt.harness, a.logger),
		Executions: handler.NewExecutionHandler(rt.harness, rt.strategies, deps.ExecutionStore, deps.ResultCache, reportLoader(deps), a.logger),
	}, hub, a.logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(ctx) })
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// reportLoader avoids handing the handler a typed nil.
func reportLoader(deps *Dependencies) handler.ReportLoader {
	if deps.Archiver == nil {
		return nil
	}
	return deps.Archiver
}

// RunMode executes the configured strategy once and prints the result.
func (a *App) RunMode(ctx context.Context, deps *Dependencies) error {
	rt, err := a.build(ctx, deps)
	if err != nil {
		return err
	}
	s, err := rt.strategies.Get(a.cfg.Strategy.Name)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}

	var extra []domain.Asset
	if a.cfg.Strategy.Token != "" {
		token, err := parseAsset("strategy token", a.cfg.Strategy.Token)
		if err != nil {
			return err
		}
		extra = append(extra, token)
	}
	res, err := rt.harness.ExecuteStrategyWithTokens(ctx, s, extra)
	if err != nil {
		return fmt.Errorf("app: execute %s: %w", a.cfg.Strategy.Name, err)
	}

	a.logger.InfoContext(ctx, "execution finished",
		slog.String("id", res.ID),
		slog.Bool("success", res.Success),
		slog.String("profit", res.Profit.String()),
	)
	if err := printJSON(res); err != nil {
		return err
	}
	if !res.Success {
		return errors.New("app: strategy failed: " + res.FailureReason)
	}
	return nil
}

// QuoteMode prints the best exact-input and exact-output routes between the
// base asset and the configured token.
func (a *App) QuoteMode(ctx context.Context, deps *Dependencies) error {
	rt, err := a.build(ctx, deps)
	if err != nil {
		return err
	}
	reg := rt.harness.Registry()
	base := rt.harness.Tracker().Base()
	token, err := parseAsset("strategy token", a.cfg.Strategy.Token)
	if err != nil {
		return err
	}
	amount := a.strategyAmount()

	return printJSON(map[string]any{
		"exact_in":  reg.BestQuote(ctx, base, token, amount),
		"exact_out": reg.BestQuoteForExactOutput(ctx, base, token, amount),
		"reverse":   reg.BestQuote(ctx, token, base, amount),
	})
}

func printJSON(v any) error {
	enc := json.NewEncoder(output)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("app: write output: %w", err)
	}
	return nil
}
