package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/profitharness/internal/domain"
)

// Router is the call surface of one Uniswap V2 style venue: quotes and
// swaps go to the router contract, pair lookups to the factory.
type Router struct {
	tx      *Transactor
	router  common.Address
	factory common.Address
}

// NewRouter binds a venue's endpoints.
func NewRouter(t *Transactor, v domain.Venue) *Router {
	return &Router{tx: t, router: v.QuoteEndpoint, factory: v.RouteEndpoint}
}

// Resolver builds a Router for any venue on the same node.
type Resolver struct {
	tx *Transactor
}

// NewResolver creates a Resolver.
func NewResolver(t *Transactor) *Resolver {
	return &Resolver{tx: t}
}

func (r *Resolver) Resolve(v domain.Venue) (domain.VenueBackend, error) {
	if v.QuoteEndpoint == (common.Address{}) {
		return nil, fmt.Errorf("chain: venue %q has no router address", v.Name)
	}
	return NewRouter(r.tx, v), nil
}

func (r *Router) PairExists(ctx context.Context, a, b domain.Asset) (bool, error) {
	pair, err := r.pair(ctx, a, b)
	if err != nil {
		return false, err
	}
	return pair != (common.Address{}), nil
}

func (r *Router) AmountsOut(ctx context.Context, amountIn *big.Int, path []domain.Asset) ([]*big.Int, error) {
	return r.amounts(ctx, "getAmountsOut", amountIn, path)
}

func (r *Router) AmountsIn(ctx context.Context, amountOut *big.Int, path []domain.Asset) ([]*big.Int, error) {
	return r.amounts(ctx, "getAmountsIn", amountOut, path)
}

// SwapExactIn submits swapExactTokensForTokens. The returned amounts are the
// simulated result of the same call.
func (r *Router) SwapExactIn(ctx context.Context, req domain.SwapRequest) ([]*big.Int, error) {
	return r.swap(ctx, "swapExactTokensForTokens", req)
}

// SwapExactOut submits swapTokensForExactTokens.
func (r *Router) SwapExactOut(ctx context.Context, req domain.SwapRequest) ([]*big.Int, error) {
	return r.swap(ctx, "swapTokensForExactTokens", req)
}

// Reserves reads the pair's reserves oriented as (a, b).
func (r *Router) Reserves(ctx context.Context, a, b domain.Asset) (domain.Reserves, error) {
	pair, err := r.pair(ctx, a, b)
	if err != nil {
		return domain.Reserves{}, err
	}
	if pair == (common.Address{}) {
		return domain.Reserves{}, fmt.Errorf("chain: reserves %s/%s: %w", a.Hex(), b.Hex(), domain.ErrNoPair)
	}

	data, _ := pairABI.Pack("getReserves")
	out, err := r.tx.Call(ctx, pair, data)
	if err != nil {
		return domain.Reserves{}, fmt.Errorf("chain: getReserves %s: %w", pair.Hex(), err)
	}
	vals, err := pairABI.Methods["getReserves"].Outputs.Unpack(out)
	if err != nil || len(vals) != 3 {
		return domain.Reserves{}, fmt.Errorf("chain: decode getReserves %s: %v", pair.Hex(), err)
	}
	r0, r1 := vals[0].(*big.Int), vals[1].(*big.Int)

	data, _ = pairABI.Pack("token0")
	out, err = r.tx.Call(ctx, pair, data)
	if err != nil {
		return domain.Reserves{}, fmt.Errorf("chain: token0 %s: %w", pair.Hex(), err)
	}
	vals, err = pairABI.Methods["token0"].Outputs.Unpack(out)
	if err != nil || len(vals) != 1 {
		return domain.Reserves{}, fmt.Errorf("chain: decode token0 %s: %v", pair.Hex(), err)
	}
	if vals[0].(common.Address) != a {
		r0, r1 = r1, r0
	}
	return domain.Reserves{Pair: pair, A: a, B: b, ReserveA: r0, ReserveB: r1}, nil
}

func (r *Router) pair(ctx context.Context, a, b domain.Asset) (common.Address, error) {
	data, err := factoryABI.Pack("getPair", a, b)
	if err != nil {
		return common.Address{}, fmt.Errorf("chain: pack getPair: %w", err)
	}
	out, err := r.tx.Call(ctx, r.factory, data)
	if err != nil {
		return common.Address{}, fmt.Errorf("chain: getPair %s/%s: %w", a.Hex(), b.Hex(), err)
	}
	vals, err := factoryABI.Methods["getPair"].Outputs.Unpack(out)
	if err != nil || len(vals) != 1 {
		return common.Address{}, fmt.Errorf("chain: decode getPair: %v", err)
	}
	return vals[0].(common.Address), nil
}

func (r *Router) amounts(ctx context.Context, method string, amount *big.Int, path []domain.Asset) ([]*big.Int, error) {
	data, err := routerABI.Pack(method, amount, path)
	if err != nil {
		return nil, fmt.Errorf("chain: pack %s: %w", method, err)
	}
	out, err := r.tx.Call(ctx, r.router, data)
	if err != nil {
		return nil, err
	}
	return unpackAmounts(method, out)
}

func (r *Router) swap(ctx context.Context, method string, req domain.SwapRequest) ([]*big.Int, error) {
	if req.Sender != r.tx.Address() {
		return nil, fmt.Errorf("chain: %s: sender %s is not the operator: %w", method, req.Sender.Hex(), domain.ErrUnauthorized)
	}
	data, err := routerABI.Pack(method, req.Amount, req.Limit, req.Path, req.Recipient, big.NewInt(req.Deadline.Unix()))
	if err != nil {
		return nil, fmt.Errorf("chain: pack %s: %w", method, err)
	}
	ret, _, err := r.tx.Send(ctx, r.router, nil, data)
	if err != nil {
		return nil, err
	}
	return unpackAmounts(method, ret)
}

func unpackAmounts(method string, out []byte) ([]*big.Int, error) {
	vals, err := routerABI.Methods[method].Outputs.Unpack(out)
	if err != nil || len(vals) != 1 {
		return nil, fmt.Errorf("chain: decode %s: %v", method, err)
	}
	amounts, ok := vals[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("chain: decode %s: unexpected type %T", method, vals[0])
	}
	return amounts, nil
}
