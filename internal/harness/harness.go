// Package harness runs one strategy at a time against the ledger and turns
// the balance changes it made into a structured, profit-normalized result.
package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/alanyoungcy/profitharness/internal/domain"
	"github.com/alanyoungcy/profitharness/internal/executor"
	"github.com/alanyoungcy/profitharness/internal/profit"
	"github.com/alanyoungcy/profitharness/internal/revert"
	"github.com/alanyoungcy/profitharness/internal/routing"
	"github.com/alanyoungcy/profitharness/internal/tracker"
)

// DefaultLockKey is the distributed lock guarding executions.
const DefaultLockKey = "lock:harness:execution"

// Config holds harness settings.
type Config struct {
	Account        common.Address
	Admin          common.Address
	BaseAsset      domain.Asset
	SlippageBps    uint32
	SwapDeadline   time.Duration
	SettleAfterRun bool
	LockKey        string
	LockTTL        time.Duration
}

// Sink receives every finished result. Sink errors are logged only.
type Sink interface {
	Record(ctx context.Context, r domain.ExecutionResult) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, r domain.ExecutionResult) error

// Record calls f.
func (f SinkFunc) Record(ctx context.Context, r domain.ExecutionResult) error { return f(ctx, r) }

// Deps are the harness collaborators. Ledger and Registry are required.
type Deps struct {
	Ledger        domain.Ledger
	Registry      *routing.Registry
	Emitter       domain.EventEmitter
	Locker        domain.LockManager
	Audit         domain.AuditStore
	RegistryStore domain.RegistryStore
	Sinks         []Sink
}

// Harness sandboxes strategy executions. At most one execution is in
// flight; a concurrent or nested call fails with ErrReentrancyDenied.
type Harness struct {
	cfg        Config
	ledger     domain.Ledger
	registry   *routing.Registry
	tracker    *tracker.Tracker
	executor   *executor.Executor
	normalizer *profit.Normalizer
	emitter    domain.EventEmitter
	locker     domain.LockManager
	audit      domain.AuditStore
	regStore   domain.RegistryStore
	sinks      []Sink
	logger     *slog.Logger

	executing atomic.Bool
	now       func() time.Time
}

// New wires a harness around deps.
func New(cfg Config, deps Deps, logger *slog.Logger) *Harness {
	if cfg.SlippageBps == 0 {
		cfg.SlippageBps = executor.DefaultSlippageBps
	}
	if cfg.LockKey == "" {
		cfg.LockKey = DefaultLockKey
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	emitter := deps.Emitter
	if emitter == nil {
		emitter = nopEmitter{}
	}
	ex := executor.New(executor.Config{Account: cfg.Account, Deadline: cfg.SwapDeadline}, deps.Registry, deps.Ledger, emitter, logger)
	return &Harness{
		cfg:        cfg,
		ledger:     deps.Ledger,
		registry:   deps.Registry,
		tracker:    tracker.New(deps.Ledger, cfg.Account, cfg.BaseAsset),
		executor:   ex,
		normalizer: profit.New(deps.Registry, ex, deps.Ledger, cfg.Account, cfg.SlippageBps, logger),
		emitter:    emitter,
		locker:     deps.Locker,
		audit:      deps.Audit,
		regStore:   deps.RegistryStore,
		sinks:      deps.Sinks,
		logger:     logger.With(slog.String("component", "harness")),
		now:        time.Now,
	}
}

// Account is the address strategies trade from.
func (h *Harness) Account() common.Address { return h.cfg.Account }

// Admin is the only address allowed to call administrative operations.
func (h *Harness) Admin() common.Address { return h.cfg.Admin }

// Registry returns the venue registry.
func (h *Harness) Registry() *routing.Registry { return h.registry }

// Tracker returns the balance tracker.
func (h *Harness) Tracker() *tracker.Tracker { return h.tracker }

// Executor returns the swap executor bound to the harness account.
func (h *Harness) Executor() *executor.Executor { return h.executor }

// Normalizer returns the profit normalizer.
func (h *Harness) Normalizer() *profit.Normalizer { return h.normalizer }

// Ledger returns the ledger the harness reads balances from.
func (h *Harness) Ledger() domain.Ledger { return h.ledger }

// Executing reports whether an execution is in flight.
func (h *Harness) Executing() bool { return h.executing.Load() }

// ExecuteStrategy runs s once and returns its result. The only error is
// ErrReentrancyDenied (or a failure to reach the distributed lock); strategy
// failures are reported inside the result.
func (h *Harness) ExecuteStrategy(ctx context.Context, s domain.Strategy) (domain.ExecutionResult, error) {
	return h.execute(ctx, s, nil)
}

// ExecuteStrategyWithTokens registers extra tracked assets, then runs s.
func (h *Harness) ExecuteStrategyWithTokens(ctx context.Context, s domain.Strategy, extra []domain.Asset) (domain.ExecutionResult, error) {
	return h.execute(ctx, s, extra)
}

func (h *Harness) execute(ctx context.Context, s domain.Strategy, extra []domain.Asset) (domain.ExecutionResult, error) {
	if !h.executing.CompareAndSwap(false, true) {
		return domain.ExecutionResult{}, domain.ErrReentrancyDenied
	}

	unlock := func() {}
	if h.locker != nil {
		release, err := h.locker.Acquire(ctx, h.cfg.LockKey, h.cfg.LockTTL)
		if err != nil {
			h.executing.Store(false)
			if errors.Is(err, domain.ErrLockHeld) {
				return domain.ExecutionResult{}, fmt.Errorf("harness: %w: %w", domain.ErrReentrancyDenied, err)
			}
			return domain.ExecutionResult{}, fmt.Errorf("harness: acquire lock: %w", err)
		}
		unlock = release
	}

	res := h.runLocked(ctx, s, extra, unlock)

	sinkCtx := context.WithoutCancel(ctx)
	for _, sink := range h.sinks {
		if err := sink.Record(sinkCtx, res); err != nil {
			h.logger.Warn("result sink failed",
				slog.String("execution_id", res.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return res, nil
}

// runLocked runs s and releases the lock and the in-flight flag even if
// accounting panics.
func (h *Harness) runLocked(ctx context.Context, s domain.Strategy, extra []domain.Asset, unlock func()) domain.ExecutionResult {
	defer func() {
		unlock()
		h.executing.Store(false)
	}()
	return h.run(ctx, s, extra)
}

func (h *Harness) run(ctx context.Context, s domain.Strategy, extra []domain.Asset) domain.ExecutionResult {
	id := uuid.NewString()
	ctx = domain.WithExecutionID(ctx, id)
	// Only the strategy sees caller cancellation. Snapshots and pricing
	// must finish against the state the strategy left.
	acct := context.WithoutCancel(ctx)
	for _, a := range extra {
		h.tracker.Add(a)
	}
	base := h.tracker.Base()
	res := domain.ExecutionResult{
		ID:        id,
		Strategy:  strategyName(s),
		BaseAsset: base,
		Profit:    new(big.Int),
		StartedAt: h.now().UTC(),
	}
	log := h.logger.With(slog.String("execution_id", id), slog.String("strategy", res.Strategy))

	if err := h.tracker.SnapshotBefore(acct); err != nil {
		res.FailureKind = domain.FailureLedger
		res.FailureReason = err.Error()
		log.Error("pre-run snapshot failed", slog.String("error", err.Error()))
		return res
	}

	baseline := h.remaining()
	start := time.Now()
	runErr := invoke(ctx, s)
	res.Duration = time.Since(start)
	if used := baseline - h.remaining(); used <= baseline {
		res.GasUsed = used
	}

	if runErr == nil {
		res.Success = true
	} else {
		res.FailureKind, res.FailureReason = revert.ClassifyStrategyError(runErr)
		log.Info("strategy failed",
			slog.String("failure_kind", string(res.FailureKind)),
			slog.String("reason", res.FailureReason),
		)
	}

	balances, err := h.tracker.CollectDeltas(acct)
	if err != nil {
		res.Success = false
		res.FailureKind = domain.FailureLedger
		res.FailureReason = err.Error()
		log.Error("post-run snapshot failed", slog.String("error", err.Error()))
		return res
	}
	res.Balances = balances
	for _, b := range balances {
		h.emit(acct, domain.EventBalanceSnapshot, map[string]any{
			"asset":  b.Asset.Hex(),
			"before": b.Before.String(),
			"after":  b.After.String(),
			"delta":  b.Delta.String(),
		})
	}

	report := h.normalizer.Analyze(acct, base, balances)
	res.Profit = report.Profit
	res.AllBalancesNonNegative = report.AllNonNegative
	res.BaseSymbol = report.BaseSymbol
	res.ProfitFormatted = report.ProfitFormatted
	h.emit(acct, domain.EventProfitComputed, map[string]any{
		"profit":           report.Profit.String(),
		"all_non_negative": report.AllNonNegative,
		"base_delta":       report.BaseDelta.String(),
		"surplus_value":    report.SurplusValue.String(),
		"deficit_cost":     report.DeficitCost.String(),
		"confidence":       report.Confidence,
		"profit_formatted": report.ProfitFormatted,
		"assets":           report.Assets,
	})

	if h.cfg.SettleAfterRun {
		realized, err := h.normalizer.Settle(acct, base, h.tracker.BeforeOf(base), balances)
		if err != nil {
			log.Warn("settlement failed", slog.String("error", err.Error()))
		} else {
			res.Settled = true
			res.SettledProfit = realized
		}
	}

	h.emit(acct, domain.EventExecutionCompleted, map[string]any{
		"success":  res.Success,
		"profit":   res.Profit.String(),
		"gas_used": res.GasUsed,
	})
	log.Info("execution completed",
		slog.Bool("success", res.Success),
		slog.String("profit", res.Profit.String()),
		slog.Uint64("gas_used", res.GasUsed),
		slog.Duration("duration", res.Duration),
	)
	return res
}

// invoke runs s, converting a panic into a runtime fault.
func invoke(ctx context.Context, s domain.Strategy) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &revert.PanicError{Value: r}
		}
	}()
	return s.Run(ctx)
}

func (h *Harness) remaining() uint64 {
	if m, ok := h.ledger.(domain.Meter); ok {
		return m.Remaining()
	}
	return 0
}

func (h *Harness) emit(ctx context.Context, kind domain.EventKind, data map[string]any) {
	h.emitter.Emit(ctx, domain.Event{
		Kind:        kind,
		ExecutionID: domain.ExecutionIDFrom(ctx),
		Data:        data,
		At:          h.now().UTC(),
	})
}

func strategyName(s domain.Strategy) string {
	if n, ok := s.(interface{ Name() string }); ok {
		return n.Name()
	}
	return "anonymous"
}

type nopEmitter struct{}

func (nopEmitter) Emit(context.Context, domain.Event) {}
