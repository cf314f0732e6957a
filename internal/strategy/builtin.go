package strategy

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/alanyoungcy/profitharness/internal/domain"
	"github.com/alanyoungcy/profitharness/internal/revert"
)

// Noop does nothing and succeeds.
type Noop struct{}

func (Noop) Name() string              { return "noop" }
func (Noop) Run(context.Context) error { return nil }

// Revert always fails with Reason encoded as an Error(string) payload.
type Revert struct {
	Reason string
}

func (Revert) Name() string { return "revert" }

func (r Revert) Run(context.Context) error {
	return revert.Reason(r.Reason)
}

// RoundTrip sells Amount of Base for Token along the best route, then sells
// everything received back into Base.
type RoundTrip struct {
	cfg     Config
	quoter  Quoter
	swapper Swapper
}

// NewRoundTrip creates a RoundTrip strategy.
func NewRoundTrip(cfg Config, q Quoter, s Swapper) *RoundTrip {
	return &RoundTrip{cfg: cfg, quoter: q, swapper: s}
}

func (r *RoundTrip) Name() string { return "round_trip" }

func (r *RoundTrip) Run(ctx context.Context) error {
	if r.cfg.Amount == nil || r.cfg.Amount.Sign() <= 0 {
		return errors.New("round_trip: amount must be positive")
	}
	got, err := r.leg(ctx, r.cfg.Base, r.cfg.Token, r.cfg.Amount)
	if err != nil {
		return err
	}
	_, err = r.leg(ctx, r.cfg.Token, r.cfg.Base, got)
	return err
}

func (r *RoundTrip) leg(ctx context.Context, in, out domain.Asset, amount *big.Int) (*big.Int, error) {
	q := r.quoter.BestQuote(ctx, in, out, amount)
	if !q.Found() {
		return nil, fmt.Errorf("round_trip: no route %s -> %s", in.Hex(), out.Hex())
	}
	res := r.swapper.SwapExactIn(ctx, q, amount, r.cfg.SlippageBps)
	if !res.Success {
		return nil, fmt.Errorf("round_trip: swap %s -> %s: %s", in.Hex(), out.Hex(), res.FailureReason)
	}
	return res.AmountOut, nil
}

// Builtins returns every built-in strategy configured from cfg.
func Builtins(cfg Config, q Quoter, s Swapper) []Strategy {
	return []Strategy{
		Noop{},
		Revert{Reason: cfg.Reason},
		NewRoundTrip(cfg, q, s),
	}
}
