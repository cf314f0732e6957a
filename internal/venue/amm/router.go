// Package amm implements a constant-product venue whose pools live on the
// in-memory ledger. Pool reserves are the pool account's ledger balances.
package amm

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/profitharness/internal/domain"
	"github.com/alanyoungcy/profitharness/internal/ledger"
	"github.com/alanyoungcy/profitharness/internal/revert"
)

type pairKey [2]common.Address

// Router quotes and executes swaps across the pools created through it.
// Swaps pull input via the ledger allowance granted to the router address.
type Router struct {
	ledger  *ledger.Memory
	address common.Address
	factory common.Address
	feeBps  uint32

	mu    sync.RWMutex
	pairs map[pairKey]common.Address
	now   func() time.Time
}

// New creates a router for one venue.
func New(l *ledger.Memory, router, factory common.Address, feeBps uint32) *Router {
	return &Router{
		ledger:  l,
		address: router,
		factory: factory,
		feeBps:  feeBps,
		pairs:   make(map[pairKey]common.Address),
		now:     time.Now,
	}
}

// SetClock replaces the time source used for deadline checks.
func (r *Router) SetClock(now func() time.Time) {
	r.now = now
}

// Address is the router account (the spender swaps pull from).
func (r *Router) Address() common.Address { return r.address }

// PairAddress derives the pool account for (a, b) under factory.
func PairAddress(factory common.Address, a, b domain.Asset) common.Address {
	t0, t1 := sortAssets(a, b)
	h := crypto.Keccak256(factory.Bytes(), t0.Bytes(), t1.Bytes())
	return common.BytesToAddress(h[12:])
}

// CreatePair lists (a, b) on the venue and returns the pool account.
func (r *Router) CreatePair(a, b domain.Asset) (common.Address, error) {
	if a == b {
		return common.Address{}, fmt.Errorf("amm: create pair: identical assets %s", a.Hex())
	}
	key := newPairKey(a, b)
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pairs[key]; ok {
		return p, nil
	}
	p := PairAddress(r.factory, a, b)
	r.pairs[key] = p
	return p, nil
}

// AddLiquidity moves amountA of a and amountB of b from provider into the
// pool, creating the pair when needed.
func (r *Router) AddLiquidity(ctx context.Context, provider common.Address, a, b domain.Asset, amountA, amountB *big.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pair, err := r.CreatePair(a, b)
	if err != nil {
		return err
	}
	ua, err := ledger.ToUint256(amountA)
	if err != nil {
		return fmt.Errorf("amm: add liquidity: %w", err)
	}
	ub, err := ledger.ToUint256(amountB)
	if err != nil {
		return fmt.Errorf("amm: add liquidity: %w", err)
	}
	return r.ledger.Update(func(tx *ledger.Tx) error {
		if err := tx.Transfer(a, provider, pair, ua); err != nil {
			return fmt.Errorf("amm: add liquidity %s: %w", a.Hex(), err)
		}
		if err := tx.Transfer(b, provider, pair, ub); err != nil {
			return fmt.Errorf("amm: add liquidity %s: %w", b.Hex(), err)
		}
		return nil
	})
}

// PairExists reports whether (a, b) is listed.
func (r *Router) PairExists(_ context.Context, a, b domain.Asset) (bool, error) {
	_, ok := r.pair(a, b)
	return ok, nil
}

// Reserves returns the pool balances of (a, b).
func (r *Router) Reserves(ctx context.Context, a, b domain.Asset) (domain.Reserves, error) {
	pair, ok := r.pair(a, b)
	if !ok {
		return domain.Reserves{}, fmt.Errorf("amm: reserves: %w", domain.ErrNoPair)
	}
	ra, err := r.ledger.BalanceOf(ctx, a, pair)
	if err != nil {
		return domain.Reserves{}, err
	}
	rb, err := r.ledger.BalanceOf(ctx, b, pair)
	if err != nil {
		return domain.Reserves{}, err
	}
	return domain.Reserves{Pair: pair, A: a, B: b, ReserveA: ra, ReserveB: rb}, nil
}

// AmountsOut prices an exact input along path.
func (r *Router) AmountsOut(ctx context.Context, amountIn *big.Int, path []domain.Asset) ([]*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var amounts []*big.Int
	err := r.ledger.Update(func(tx *ledger.Tx) error {
		var err error
		amounts, err = r.amountsOut(tx, amountIn, path)
		return err
	})
	return amounts, err
}

// AmountsIn prices an exact output along path.
func (r *Router) AmountsIn(ctx context.Context, amountOut *big.Int, path []domain.Asset) ([]*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var amounts []*big.Int
	err := r.ledger.Update(func(tx *ledger.Tx) error {
		var err error
		amounts, err = r.amountsIn(tx, amountOut, path)
		return err
	})
	return amounts, err
}

// SwapExactIn sells exactly req.Amount for at least req.Limit.
func (r *Router) SwapExactIn(ctx context.Context, req domain.SwapRequest) ([]*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var amounts []*big.Int
	err := r.ledger.Update(func(tx *ledger.Tx) error {
		if err := r.checkDeadline(req.Deadline); err != nil {
			return err
		}
		var err error
		amounts, err = r.amountsOut(tx, req.Amount, req.Path)
		if err != nil {
			return err
		}
		if req.Limit != nil && amounts[len(amounts)-1].Cmp(req.Limit) < 0 {
			return revert.Reason("INSUFFICIENT_OUTPUT_AMOUNT")
		}
		return r.swap(tx, amounts, req)
	})
	if err != nil {
		return nil, err
	}
	return amounts, nil
}

// SwapExactOut buys exactly req.Amount spending at most req.Limit.
func (r *Router) SwapExactOut(ctx context.Context, req domain.SwapRequest) ([]*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var amounts []*big.Int
	err := r.ledger.Update(func(tx *ledger.Tx) error {
		if err := r.checkDeadline(req.Deadline); err != nil {
			return err
		}
		var err error
		amounts, err = r.amountsIn(tx, req.Amount, req.Path)
		if err != nil {
			return err
		}
		if req.Limit != nil && amounts[0].Cmp(req.Limit) > 0 {
			return revert.Reason("EXCESSIVE_INPUT_AMOUNT")
		}
		return r.swap(tx, amounts, req)
	})
	if err != nil {
		return nil, err
	}
	return amounts, nil
}

func (r *Router) checkDeadline(deadline time.Time) error {
	if !deadline.IsZero() && r.now().After(deadline) {
		return revert.Reason("EXPIRED")
	}
	return nil
}

func (r *Router) swap(tx *ledger.Tx, amounts []*big.Int, req domain.SwapRequest) error {
	path := req.Path
	if err := tx.Charge(ledger.GasSwapHop * uint64(len(path)-1)); err != nil {
		return fmt.Errorf("amm: swap: %w (%w)", revert.Empty(), err)
	}
	in, err := ledger.ToUint256(amounts[0])
	if err != nil {
		return revert.Reason("INVALID_AMOUNT")
	}
	if err := tx.SpendAllowance(path[0], req.Sender, r.address, in); err != nil {
		return revert.Reason("TRANSFER_FROM_FAILED")
	}
	first, _ := r.pair(path[0], path[1])
	if err := tx.Transfer(path[0], req.Sender, first, in); err != nil {
		return revert.Reason("TRANSFER_FROM_FAILED")
	}
	for i := 0; i < len(path)-1; i++ {
		pool, _ := r.pair(path[i], path[i+1])
		to := req.Recipient
		if i < len(path)-2 {
			to, _ = r.pair(path[i+1], path[i+2])
		}
		out, err := ledger.ToUint256(amounts[i+1])
		if err != nil {
			return revert.Reason("INVALID_AMOUNT")
		}
		if err := tx.Transfer(path[i+1], pool, to, out); err != nil {
			return revert.Reason("TRANSFER_FAILED")
		}
	}
	return nil
}

func (r *Router) amountsOut(tx *ledger.Tx, amountIn *big.Int, path []domain.Asset) ([]*big.Int, error) {
	if len(path) < 2 {
		return nil, revert.Reason("INVALID_PATH")
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, revert.Reason("INSUFFICIENT_INPUT_AMOUNT")
	}
	amounts := make([]*big.Int, len(path))
	amounts[0] = new(big.Int).Set(amountIn)
	for i := 0; i < len(path)-1; i++ {
		rIn, rOut, err := r.reserves(tx, path[i], path[i+1])
		if err != nil {
			return nil, err
		}
		out, err := amountOut(amounts[i], rIn, rOut, r.feeBps)
		if err != nil {
			return nil, err
		}
		amounts[i+1] = out
	}
	return amounts, nil
}

func (r *Router) amountsIn(tx *ledger.Tx, amountOutWanted *big.Int, path []domain.Asset) ([]*big.Int, error) {
	if len(path) < 2 {
		return nil, revert.Reason("INVALID_PATH")
	}
	if amountOutWanted == nil || amountOutWanted.Sign() <= 0 {
		return nil, revert.Reason("INSUFFICIENT_OUTPUT_AMOUNT")
	}
	amounts := make([]*big.Int, len(path))
	amounts[len(path)-1] = new(big.Int).Set(amountOutWanted)
	for i := len(path) - 1; i > 0; i-- {
		rIn, rOut, err := r.reserves(tx, path[i-1], path[i])
		if err != nil {
			return nil, err
		}
		in, err := amountIn(amounts[i], rIn, rOut, r.feeBps)
		if err != nil {
			return nil, err
		}
		amounts[i-1] = in
	}
	return amounts, nil
}

func (r *Router) reserves(tx *ledger.Tx, in, out domain.Asset) (*big.Int, *big.Int, error) {
	pair, ok := r.pair(in, out)
	if !ok {
		return nil, nil, revert.Reason("PAIR_NOT_LISTED")
	}
	return tx.Balance(in, pair).ToBig(), tx.Balance(out, pair).ToBig(), nil
}

func (r *Router) pair(a, b domain.Asset) (common.Address, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pairs[newPairKey(a, b)]
	return p, ok
}

// amountOut is the constant-product output for an exact input after fees.
func amountOut(in, reserveIn, reserveOut *big.Int, feeBps uint32) (*big.Int, error) {
	if reserveIn.Sign() == 0 || reserveOut.Sign() == 0 {
		return nil, revert.Reason("INSUFFICIENT_LIQUIDITY")
	}
	inWithFee := new(big.Int).Mul(in, big.NewInt(int64(domain.BPSMax-feeBps)))
	num := new(big.Int).Mul(inWithFee, reserveOut)
	den := new(big.Int).Mul(reserveIn, big.NewInt(domain.BPSMax))
	den.Add(den, inWithFee)
	out := num.Quo(num, den)
	if out.Sign() == 0 {
		return nil, revert.Reason("INSUFFICIENT_OUTPUT_AMOUNT")
	}
	return out, nil
}

// amountIn is the constant-product input required for an exact output.
func amountIn(out, reserveIn, reserveOut *big.Int, feeBps uint32) (*big.Int, error) {
	if reserveIn.Sign() == 0 || out.Cmp(reserveOut) >= 0 {
		return nil, revert.Reason("INSUFFICIENT_LIQUIDITY")
	}
	num := new(big.Int).Mul(reserveIn, out)
	num.Mul(num, big.NewInt(domain.BPSMax))
	den := new(big.Int).Sub(reserveOut, out)
	den.Mul(den, big.NewInt(int64(domain.BPSMax-feeBps)))
	in := num.Quo(num, den)
	return in.Add(in, big.NewInt(1)), nil
}

func newPairKey(a, b domain.Asset) pairKey {
	t0, t1 := sortAssets(a, b)
	return pairKey{t0, t1}
}

func sortAssets(a, b domain.Asset) (domain.Asset, domain.Asset) {
	if bytes.Compare(a.Bytes(), b.Bytes()) < 0 {
		return a, b
	}
	return b, a
}

var (
	_ domain.VenueBackend   = (*Router)(nil)
	_ domain.ReservesReader = (*Router)(nil)
)
