package executor

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/profitharness/internal/domain"
	"github.com/alanyoungcy/profitharness/internal/ledger"
	"github.com/alanyoungcy/profitharness/internal/revert"
)

const (
	// DefaultSlippageBps is the slippage tolerance used when none is given.
	DefaultSlippageBps uint32 = 500
	// DefaultDeadline bounds every swap call.
	DefaultDeadline = 300 * time.Second
)

// Router is the subset of the venue registry the executor needs.
type Router interface {
	Backend(index int) (domain.Venue, domain.VenueBackend, error)
	BestQuote(ctx context.Context, in, out domain.Asset, amountIn *big.Int) domain.Quote
	BestQuoteForExactOutput(ctx context.Context, in, out domain.Asset, amountOut *big.Int) domain.Quote
}

// Config holds executor settings.
type Config struct {
	Account  common.Address
	Deadline time.Duration
}

// Executor performs bounded-slippage trades on behalf of the harness
// account. Trade failures are classified, emitted, and returned as
// zero-output results; they never propagate as errors.
type Executor struct {
	router   Router
	ledger   domain.Ledger
	emitter  domain.EventEmitter
	account  common.Address
	deadline time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// New creates an Executor.
func New(cfg Config, router Router, l domain.Ledger, emitter domain.EventEmitter, logger *slog.Logger) *Executor {
	deadline := cfg.Deadline
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	return &Executor{
		router:   router,
		ledger:   l,
		emitter:  emitter,
		account:  cfg.Account,
		deadline: deadline,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "swap_executor")),
	}
}

// Account is the address trades are made from and paid to.
func (e *Executor) Account() common.Address { return e.account }

// MinOut applies slippageBps to a quoted output.
func MinOut(amountOut *big.Int, slippageBps uint32) *big.Int {
	if amountOut == nil {
		return new(big.Int)
	}
	v := new(big.Int).Mul(amountOut, big.NewInt(int64(domain.BPSMax-clampBps(slippageBps))))
	return v.Quo(v, big.NewInt(domain.BPSMax))
}

// MaxIn applies slippageBps to a quoted input.
func MaxIn(amountIn *big.Int, slippageBps uint32) *big.Int {
	if amountIn == nil {
		return new(big.Int)
	}
	v := new(big.Int).Mul(amountIn, big.NewInt(int64(domain.BPSMax+clampBps(slippageBps))))
	return v.Quo(v, big.NewInt(domain.BPSMax))
}

func clampBps(bps uint32) uint32 {
	if bps > domain.BPSMax {
		return domain.BPSMax
	}
	return bps
}

// SwapExactIn sells amountIn along q's path, requiring at least
// MinOut(q.AmountOut, slippageBps) back.
func (e *Executor) SwapExactIn(ctx context.Context, q domain.Quote, amountIn *big.Int, slippageBps uint32) domain.SwapResult {
	res := domain.SwapResult{
		VenueIndex: q.VenueIndex,
		Path:       q.Path,
		AmountIn:   amountOrZero(amountIn),
		AmountOut:  new(big.Int),
	}
	if q.Identity {
		res.Success = true
		res.AmountOut = new(big.Int).Set(res.AmountIn)
		return res
	}
	if !q.Found() {
		res.FailureReason = "no route"
		return res
	}
	if res.AmountIn.Sign() <= 0 {
		res.FailureReason = "zero amount"
		return res
	}

	req := domain.SwapRequest{
		Path:   q.Path,
		Amount: res.AmountIn,
		Limit:  MinOut(q.AmountOut, slippageBps),
	}
	return e.execute(ctx, res, req, res.AmountIn, func(b domain.VenueBackend, c context.Context, r domain.SwapRequest) ([]*big.Int, error) {
		return b.SwapExactIn(c, r)
	})
}

// BuyExactOut buys amountOut of token paying with assetIn. The spend cap is
// the best exact-output quote plus slippage, clamped to the held balance of
// assetIn. When the holding cannot cover the quoted input the whole holding
// is sold along the best forward route instead, buying less than asked.
func (e *Executor) BuyExactOut(ctx context.Context, assetIn, token domain.Asset, amountOut *big.Int, slippageBps uint32) domain.SwapResult {
	res := domain.SwapResult{
		VenueIndex: -1,
		AmountIn:   new(big.Int),
		AmountOut:  new(big.Int),
	}
	if amountOut == nil || amountOut.Sign() <= 0 {
		res.FailureReason = "zero amount"
		return res
	}
	if assetIn == token {
		res.Success = true
		res.AmountIn = new(big.Int).Set(amountOut)
		res.AmountOut = new(big.Int).Set(amountOut)
		return res
	}

	held, err := ledger.Holding(ctx, e.ledger, assetIn, e.account)
	if err != nil {
		return e.fail(ctx, res, fmt.Errorf("executor: read balance: %w", err))
	}
	if held.Sign() == 0 {
		res.FailureReason = "no balance"
		return res
	}

	q := e.router.BestQuoteForExactOutput(ctx, assetIn, token, amountOut)
	if !q.Found() {
		res.FailureReason = "no route"
		return res
	}
	if held.Cmp(q.AmountIn) < 0 {
		e.logger.Info("holding below quoted input, buying what the balance covers",
			slog.String("asset_in", assetIn.Hex()),
			slog.String("token", token.Hex()),
			slog.String("held", held.String()),
			slog.String("required", q.AmountIn.String()),
		)
		return e.SwapExactIn(ctx, e.router.BestQuote(ctx, assetIn, token, held), held, slippageBps)
	}

	maxIn := MaxIn(q.AmountIn, slippageBps)
	if maxIn.Cmp(held) > 0 {
		maxIn = new(big.Int).Set(held)
	}
	res.VenueIndex = q.VenueIndex
	res.Path = q.Path
	res.AmountIn = maxIn
	req := domain.SwapRequest{
		Path:   q.Path,
		Amount: new(big.Int).Set(amountOut),
		Limit:  maxIn,
	}
	return e.execute(ctx, res, req, maxIn, func(b domain.VenueBackend, c context.Context, r domain.SwapRequest) ([]*big.Int, error) {
		return b.SwapExactOut(c, r)
	})
}

type swapFn func(b domain.VenueBackend, ctx context.Context, req domain.SwapRequest) ([]*big.Int, error)

func (e *Executor) execute(ctx context.Context, res domain.SwapResult, req domain.SwapRequest, approve *big.Int, swap swapFn) domain.SwapResult {
	v, backend, err := e.router.Backend(res.VenueIndex)
	if err != nil {
		return e.fail(ctx, res, err)
	}

	if err := e.ledger.Approve(ctx, req.Path[0], e.account, v.QuoteEndpoint, approve); err != nil {
		return e.fail(ctx, res, fmt.Errorf("executor: approve %s: %w", v.Name, err))
	}

	deadline := e.now().Add(e.deadline)
	req.Sender = e.account
	req.Recipient = e.account
	req.Deadline = deadline

	callCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	amounts, err := callVenue(swap, backend, callCtx, req)
	if err != nil {
		return e.fail(ctx, res, err)
	}
	if len(amounts) < 2 {
		return e.fail(ctx, res, fmt.Errorf("executor: venue %s returned %d amounts", v.Name, len(amounts)))
	}

	res.Success = true
	res.AmountIn = amounts[0]
	res.AmountOut = amounts[len(amounts)-1]
	e.emit(ctx, domain.EventSwapExecuted, map[string]any{
		"venue_index": res.VenueIndex,
		"venue":       v.Name,
		"path":        pathHex(res.Path),
		"amount_in":   res.AmountIn.String(),
		"amount_out":  res.AmountOut.String(),
	})
	e.logger.Info("swap executed",
		slog.String("venue", v.Name),
		slog.Any("path", pathHex(res.Path)),
		slog.String("amount_in", res.AmountIn.String()),
		slog.String("amount_out", res.AmountOut.String()),
	)
	return res
}

// callVenue runs swap, reporting a panicking backend as a runtime fault.
func callVenue(swap swapFn, b domain.VenueBackend, ctx context.Context, req domain.SwapRequest) (amounts []*big.Int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &revert.PanicError{Value: r}
		}
	}()
	return swap(b, ctx, req)
}

func (e *Executor) fail(ctx context.Context, res domain.SwapResult, err error) domain.SwapResult {
	kind, reason := revert.ClassifyError(err)
	res.Success = false
	res.AmountOut = new(big.Int)
	res.FailureKind = kind
	res.FailureReason = reason
	e.emit(ctx, domain.EventSwapFailed, map[string]any{
		"venue_index":  res.VenueIndex,
		"path":         pathHex(res.Path),
		"amount_in":    res.AmountIn.String(),
		"failure_kind": string(kind),
		"reason":       reason,
	})
	e.logger.Warn("swap failed",
		slog.Int("venue_index", res.VenueIndex),
		slog.String("failure_kind", string(kind)),
		slog.String("reason", reason),
		slog.String("error", err.Error()),
	)
	return res
}

func (e *Executor) emit(ctx context.Context, kind domain.EventKind, data map[string]any) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(ctx, domain.Event{
		Kind:        kind,
		ExecutionID: domain.ExecutionIDFrom(ctx),
		Data:        data,
		At:          e.now(),
	})
}

func pathHex(path []domain.Asset) []string {
	out := make([]string, len(path))
	for i, a := range path {
		out[i] = a.Hex()
	}
	return out
}

func amountOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
