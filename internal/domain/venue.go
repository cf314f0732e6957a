package domain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Venue is an independent exchange listed in the routing registry. Its
// identity is the index it was registered at.
type Venue struct {
	Name          string         `json:"name"`
	QuoteEndpoint common.Address `json:"quote_endpoint"` // router: quotes and swaps
	RouteEndpoint common.Address `json:"route_endpoint"` // factory: pair lookup
	FeeBps        uint32         `json:"fee_bps"`
	Active        bool           `json:"active"`
}

// SwapRequest describes one bounded trade along a path.
//
// For exact-input swaps Amount is the input and Limit the minimum output.
// For exact-output swaps Amount is the desired output and Limit the maximum
// input.
type SwapRequest struct {
	Path      []Asset
	Amount    *big.Int
	Limit     *big.Int
	Sender    common.Address
	Recipient common.Address
	Deadline  time.Time
}

// VenueBackend is the call surface of one venue.
type VenueBackend interface {
	// PairExists reports whether a and b are listed together.
	PairExists(ctx context.Context, a, b Asset) (bool, error)
	// AmountsOut returns the amount at every hop for an exact input.
	AmountsOut(ctx context.Context, amountIn *big.Int, path []Asset) ([]*big.Int, error)
	// AmountsIn returns the amount at every hop for an exact output.
	AmountsIn(ctx context.Context, amountOut *big.Int, path []Asset) ([]*big.Int, error)
	SwapExactIn(ctx context.Context, req SwapRequest) ([]*big.Int, error)
	SwapExactOut(ctx context.Context, req SwapRequest) ([]*big.Int, error)
}

// Reserves is a pair's liquidity as seen from (A, B).
type Reserves struct {
	Pair     common.Address `json:"pair"`
	A        Asset          `json:"a"`
	B        Asset          `json:"b"`
	ReserveA *big.Int       `json:"reserve_a"`
	ReserveB *big.Int       `json:"reserve_b"`
}

// ReservesReader is implemented by backends that can expose pool reserves.
type ReservesReader interface {
	Reserves(ctx context.Context, a, b Asset) (Reserves, error)
}

// BackendResolver maps a registered venue to its call surface.
type BackendResolver interface {
	Resolve(v Venue) (VenueBackend, error)
}
