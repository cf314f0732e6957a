package domain

import "math/big"

// Quote is a priced route on a single venue. A quote with no path and a zero
// AmountOut means no route was found; it is never an error.
type Quote struct {
	VenueIndex     int      `json:"venue_index"`
	VenueName      string   `json:"venue_name"`
	Path           []Asset  `json:"path"`
	AmountIn       *big.Int `json:"amount_in"`
	AmountOut      *big.Int `json:"amount_out"`
	EffectivePrice *big.Int `json:"effective_price"`
	PriceImpactBps uint32   `json:"price_impact_bps"`
	Identity       bool     `json:"identity,omitempty"`
}

// NoRoute returns the empty quote.
func NoRoute(amountIn *big.Int) Quote {
	return Quote{
		VenueIndex:     -1,
		AmountIn:       orZero(amountIn),
		AmountOut:      new(big.Int),
		EffectivePrice: new(big.Int),
	}
}

// IdentityQuote prices an asset against itself.
func IdentityQuote(amount *big.Int) Quote {
	q := Quote{
		VenueIndex: -1,
		AmountIn:   orZero(amount),
		AmountOut:  new(big.Int).Set(orZero(amount)),
		Identity:   true,
	}
	q.EffectivePrice = EffectivePrice(q.AmountIn, q.AmountOut)
	return q
}

// Found reports whether the quote names a usable route.
func (q Quote) Found() bool {
	if q.Identity {
		return true
	}
	return len(q.Path) > 0 && q.AmountOut != nil && q.AmountOut.Sign() > 0
}

// Hops is the number of trades on the path.
func (q Quote) Hops() int {
	if len(q.Path) < 2 {
		return 0
	}
	return len(q.Path) - 1
}

// EffectivePrice returns out * PriceUnit / in, or zero when in is zero.
func EffectivePrice(in, out *big.Int) *big.Int {
	if in == nil || in.Sign() == 0 || out == nil {
		return new(big.Int)
	}
	p := new(big.Int).Mul(out, PriceUnit)
	return p.Quo(p, in)
}

// SwapResult is the outcome of one executed (or attempted) trade. A failed
// trade has Success false and a zero AmountOut.
type SwapResult struct {
	Success       bool        `json:"success"`
	VenueIndex    int         `json:"venue_index"`
	Path          []Asset     `json:"path,omitempty"`
	AmountIn      *big.Int    `json:"amount_in"`
	AmountOut     *big.Int    `json:"amount_out"`
	FailureKind   FailureKind `json:"failure_kind,omitempty"`
	FailureReason string      `json:"failure_reason,omitempty"`
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
