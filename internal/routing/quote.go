// Package routing finds the best exchange path for a trade across a
// registry of independent venues.
package routing

import (
	"context"
	"math/big"

	"github.com/alanyoungcy/profitharness/internal/domain"
)

// QuoteVenue returns the best exact-input quote on a single venue, searching
// the direct pair and every two-hop path through an intermediate. A path
// whose venue call fails or yields zero output is skipped.
func QuoteVenue(
	ctx context.Context,
	b domain.VenueBackend,
	index int,
	v domain.Venue,
	in, out domain.Asset,
	amountIn *big.Int,
	intermediates []domain.Asset,
) domain.Quote {
	if in == out {
		return domain.IdentityQuote(amountIn)
	}
	best := domain.NoRoute(amountIn)
	if amountIn == nil || amountIn.Sign() <= 0 {
		return best
	}
	for _, path := range candidatePaths(ctx, b, in, out, intermediates) {
		amounts, err := b.AmountsOut(ctx, amountIn, path)
		if err != nil || len(amounts) != len(path) {
			continue
		}
		got := amounts[len(amounts)-1]
		if got == nil || got.Sign() <= 0 {
			continue
		}
		if !best.Found() || got.Cmp(best.AmountOut) > 0 {
			best = newQuote(index, v, path, amountIn, got)
		}
	}
	return best
}

// QuoteVenueExactOut returns the cheapest exact-output quote on a single
// venue. AmountIn is the required input.
func QuoteVenueExactOut(
	ctx context.Context,
	b domain.VenueBackend,
	index int,
	v domain.Venue,
	in, out domain.Asset,
	amountOut *big.Int,
	intermediates []domain.Asset,
) domain.Quote {
	if in == out {
		return domain.IdentityQuote(amountOut)
	}
	best := domain.NoRoute(new(big.Int))
	if amountOut == nil || amountOut.Sign() <= 0 {
		return best
	}
	for _, path := range candidatePaths(ctx, b, in, out, intermediates) {
		amounts, err := b.AmountsIn(ctx, amountOut, path)
		if err != nil || len(amounts) != len(path) {
			continue
		}
		need := amounts[0]
		if need == nil || need.Sign() <= 0 {
			continue
		}
		if !best.Found() || need.Cmp(best.AmountIn) < 0 {
			best = newQuote(index, v, path, need, amountOut)
		}
	}
	return best
}

// candidatePaths lists the direct path (when listed) followed by every
// in -> m -> out path whose legs are both listed.
func candidatePaths(ctx context.Context, b domain.VenueBackend, in, out domain.Asset, intermediates []domain.Asset) [][]domain.Asset {
	var paths [][]domain.Asset
	if listed(ctx, b, in, out) {
		paths = append(paths, []domain.Asset{in, out})
	}
	for _, m := range intermediates {
		if m == in || m == out {
			continue
		}
		if listed(ctx, b, in, m) && listed(ctx, b, m, out) {
			paths = append(paths, []domain.Asset{in, m, out})
		}
	}
	return paths
}

func listed(ctx context.Context, b domain.VenueBackend, x, y domain.Asset) bool {
	ok, err := b.PairExists(ctx, x, y)
	return err == nil && ok
}

func newQuote(index int, v domain.Venue, path []domain.Asset, in, out *big.Int) domain.Quote {
	p := make([]domain.Asset, len(path))
	copy(p, path)
	return domain.Quote{
		VenueIndex:     index,
		VenueName:      v.Name,
		Path:           p,
		AmountIn:       new(big.Int).Set(in),
		AmountOut:      new(big.Int).Set(out),
		EffectivePrice: domain.EffectivePrice(in, out),
		PriceImpactBps: v.FeeBps * uint32(len(path)-1),
	}
}
