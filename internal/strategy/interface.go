package strategy

import (
	"context"
	"math/big"

	"github.com/alanyoungcy/profitharness/internal/domain"
)

// Strategy is a named unit of logic the harness can execute.
type Strategy interface {
	Name() string
	Run(ctx context.Context) error
}

// Quoter prices exact-input trades.
type Quoter interface {
	BestQuote(ctx context.Context, in, out domain.Asset, amountIn *big.Int) domain.Quote
}

// Swapper executes trades from the harness account.
type Swapper interface {
	SwapExactIn(ctx context.Context, q domain.Quote, amountIn *big.Int, slippageBps uint32) domain.SwapResult
}

// Config holds the parameters of the built-in strategies.
type Config struct {
	Base        domain.Asset
	Token       domain.Asset
	Amount      *big.Int
	SlippageBps uint32
	Reason      string
}

var _ domain.Strategy = Strategy(nil)
