// Package profit converts a set of balance deltas into one signed figure
// denominated in the base asset.
package profit

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/profitharness/internal/domain"
	"github.com/alanyoungcy/profitharness/internal/ledger"
)

// Quoter prices exact-input trades.
type Quoter interface {
	BestQuote(ctx context.Context, in, out domain.Asset, amountIn *big.Int) domain.Quote
}

// Swapper executes settlement trades.
type Swapper interface {
	SwapExactIn(ctx context.Context, q domain.Quote, amountIn *big.Int, slippageBps uint32) domain.SwapResult
	BuyExactOut(ctx context.Context, assetIn, token domain.Asset, amountOut *big.Int, slippageBps uint32) domain.SwapResult
}

// Report breaks a computed profit into its parts.
type Report struct {
	Profit         *big.Int       `json:"profit"`
	AllNonNegative bool           `json:"all_non_negative"`
	BaseDelta      *big.Int       `json:"base_delta"`
	SurplusValue   *big.Int       `json:"surplus_value"`
	DeficitCost    *big.Int       `json:"deficit_cost"`
	Confidence     float64        `json:"confidence"`
	Unpriced       []domain.Asset `json:"unpriced,omitempty"`
	// Base naming is filled when the ledger implements domain.AssetMetadata.
	BaseSymbol      string        `json:"base_symbol,omitempty"`
	ProfitFormatted string        `json:"profit_formatted,omitempty"`
	Assets          []AssetDetail `json:"assets,omitempty"`
}

// AssetDetail is one delta with its base value. Value is nil when the
// delta could not be priced.
type AssetDetail struct {
	Asset          domain.Asset `json:"asset"`
	Symbol         string       `json:"symbol,omitempty"`
	Decimals       *uint8       `json:"decimals,omitempty"`
	Delta          *big.Int     `json:"delta"`
	DeltaFormatted string       `json:"delta_formatted,omitempty"`
	Value          *big.Int     `json:"value,omitempty"`
}

// Normalizer prices and settles balance deltas through the venue registry.
type Normalizer struct {
	quoter      Quoter
	swapper     Swapper
	ledger      domain.Ledger
	account     common.Address
	slippageBps uint32
	logger      *slog.Logger
}

// New creates a Normalizer settling on behalf of account.
func New(q Quoter, s Swapper, l domain.Ledger, account common.Address, slippageBps uint32, logger *slog.Logger) *Normalizer {
	return &Normalizer{
		quoter:      q,
		swapper:     s,
		ledger:      l,
		account:     account,
		slippageBps: slippageBps,
		logger:      logger.With(slog.String("component", "profit_normalizer")),
	}
}

// ComputeProfit values every delta in base and reports whether every delta
// was non-negative. A surplus with no route is ignored and so is a deficit
// with no route, which then costs nothing.
func (n *Normalizer) ComputeProfit(ctx context.Context, base domain.Asset, balances []domain.TokenBalance) (*big.Int, bool) {
	r := n.Analyze(ctx, base, balances)
	return r.Profit, r.AllNonNegative
}

// Analyze is ComputeProfit with the per-part breakdown.
func (n *Normalizer) Analyze(ctx context.Context, base domain.Asset, balances []domain.TokenBalance) Report {
	r := Report{
		Profit:         new(big.Int),
		AllNonNegative: true,
		BaseDelta:      new(big.Int),
		SurplusValue:   new(big.Int),
		DeficitCost:    new(big.Int),
	}
	meta, _ := n.ledger.(domain.AssetMetadata)
	var nonBase, priced int
	for _, b := range balances {
		delta := b.Delta
		if delta == nil {
			continue
		}
		if delta.Sign() < 0 {
			r.AllNonNegative = false
		}
		value := n.value(ctx, base, b.Asset, delta)
		if meta != nil {
			r.Assets = append(r.Assets, describe(ctx, meta, b.Asset, delta, value))
		}
		switch {
		case b.Asset == base:
			r.BaseDelta.Add(r.BaseDelta, delta)
		case delta.Sign() == 0:
			continue
		case value == nil:
			nonBase++
			r.Unpriced = append(r.Unpriced, b.Asset)
			continue
		case delta.Sign() > 0:
			nonBase++
			priced++
			r.SurplusValue.Add(r.SurplusValue, value)
		default:
			nonBase++
			priced++
			r.DeficitCost.Sub(r.DeficitCost, value)
		}
		r.Profit.Add(r.Profit, value)
	}

	r.Confidence = 1
	if nonBase > 0 {
		r.Confidence = float64(priced) / float64(nonBase)
	}
	if meta != nil {
		if sym, err := meta.Symbol(ctx, base); err == nil {
			r.BaseSymbol = sym
		}
		if dec, err := meta.Decimals(ctx, base); err == nil {
			r.ProfitFormatted = FormatUnits(r.Profit, dec)
		}
	}
	return r
}

// value prices delta of asset in base: a surplus at what selling it would
// yield, a deficit (negated) at what buying it back would cost. It returns
// nil when no route exists.
func (n *Normalizer) value(ctx context.Context, base, asset domain.Asset, delta *big.Int) *big.Int {
	if asset == base || delta.Sign() == 0 {
		return new(big.Int).Set(delta)
	}
	if delta.Sign() > 0 {
		q := n.quoter.BestQuote(ctx, asset, base, delta)
		if !q.Found() {
			return nil
		}
		return new(big.Int).Set(q.AmountOut)
	}
	q := n.quoter.BestQuote(ctx, base, asset, new(big.Int).Neg(delta))
	if !q.Found() {
		return nil
	}
	return new(big.Int).Neg(q.AmountOut)
}

func describe(ctx context.Context, meta domain.AssetMetadata, asset domain.Asset, delta, value *big.Int) AssetDetail {
	d := AssetDetail{Asset: asset, Delta: delta, Value: value}
	if sym, err := meta.Symbol(ctx, asset); err == nil {
		d.Symbol = sym
	}
	if dec, err := meta.Decimals(ctx, asset); err == nil {
		d.Decimals = &dec
		d.DeltaFormatted = FormatUnits(delta, dec)
	}
	return d
}

// Settle converts every non-base delta into base through real trades and
// returns the realized profit: the base balance now minus baseBefore.
//
// Pass one sells each surplus (bounded by the amount still held). Pass two
// buys back each deficit. Individual trade failures are absorbed.
func (n *Normalizer) Settle(ctx context.Context, base domain.Asset, baseBefore *big.Int, balances []domain.TokenBalance) (*big.Int, error) {
	for _, b := range balances {
		if b.Asset == base || b.Delta == nil || b.Delta.Sign() <= 0 {
			continue
		}
		held, err := ledger.Holding(ctx, n.ledger, b.Asset, n.account)
		if err != nil {
			n.logger.Warn("settle: balance read failed",
				slog.String("asset", b.Asset.Hex()),
				slog.String("error", err.Error()),
			)
			continue
		}
		if held.Sign() == 0 {
			continue
		}
		amount := new(big.Int).Set(b.Delta)
		if held.Cmp(amount) < 0 {
			amount = held
		}
		q := n.quoter.BestQuote(ctx, b.Asset, base, amount)
		if !q.Found() {
			n.logger.Info("settle: no route for surplus", slog.String("asset", b.Asset.Hex()))
			continue
		}
		res := n.swapper.SwapExactIn(ctx, q, amount, n.slippageBps)
		n.logger.Debug("settle: surplus sold",
			slog.String("asset", b.Asset.Hex()),
			slog.Bool("success", res.Success),
			slog.String("amount_out", res.AmountOut.String()),
		)
	}

	for _, b := range balances {
		if b.Asset == base || b.Delta == nil || b.Delta.Sign() >= 0 {
			continue
		}
		res := n.swapper.BuyExactOut(ctx, base, b.Asset, new(big.Int).Neg(b.Delta), n.slippageBps)
		n.logger.Debug("settle: deficit bought back",
			slog.String("asset", b.Asset.Hex()),
			slog.Bool("success", res.Success),
			slog.String("amount_out", res.AmountOut.String()),
		)
	}

	now, err := ledger.Holding(ctx, n.ledger, base, n.account)
	if err != nil {
		return nil, fmt.Errorf("profit: settle: read base: %w", err)
	}
	before := baseBefore
	if before == nil {
		before = new(big.Int)
	}
	return new(big.Int).Sub(now, before), nil
}
