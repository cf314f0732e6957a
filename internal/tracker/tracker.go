// Package tracker snapshots the harness account's balances before and after a
// strategy run and derives signed deltas.
package tracker

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/profitharness/internal/domain"
	"github.com/alanyoungcy/profitharness/internal/ledger"
)

// Tracker holds the insertion-ordered set of tracked assets. The base asset
// is always at index 0.
type Tracker struct {
	ledger  domain.Ledger
	account common.Address

	mu     sync.Mutex
	assets []domain.Asset
	index  map[domain.Asset]struct{}
	before map[domain.Asset]*big.Int
}

// New returns a tracker for account with base as its first asset.
func New(l domain.Ledger, account common.Address, base domain.Asset) *Tracker {
	return &Tracker{
		ledger:  l,
		account: account,
		assets:  []domain.Asset{base},
		index:   map[domain.Asset]struct{}{base: {}},
		before:  make(map[domain.Asset]*big.Int),
	}
}

// Account is the address whose balances are tracked.
func (t *Tracker) Account() common.Address { return t.account }

// Add appends asset unless it is already tracked. It reports whether the
// asset was new.
func (t *Tracker) Add(asset domain.Asset) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.index[asset]; ok {
		return false
	}
	t.index[asset] = struct{}{}
	t.assets = append(t.assets, asset)
	return true
}

// SetBase makes asset the base, moving it to index 0. The previous base
// stays tracked.
func (t *Tracker) SetBase(asset domain.Asset) {
	t.mu.Lock()
	defer t.mu.Unlock()
	next := make([]domain.Asset, 0, len(t.assets)+1)
	next = append(next, asset)
	for _, a := range t.assets {
		if a != asset {
			next = append(next, a)
		}
	}
	t.assets = next
	t.index[asset] = struct{}{}
}

// Base returns the current base asset.
func (t *Tracker) Base() domain.Asset {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.assets[0]
}

// Assets returns a copy of the tracked assets in order.
func (t *Tracker) Assets() []domain.Asset {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.Asset, len(t.assets))
	copy(out, t.assets)
	return out
}

// SnapshotBefore records the current balance of every tracked asset,
// replacing any earlier snapshot.
func (t *Tracker) SnapshotBefore(ctx context.Context) error {
	assets := t.Assets()
	snap := make(map[domain.Asset]*big.Int, len(assets))
	for _, a := range assets {
		bal, err := ledger.Holding(ctx, t.ledger, a, t.account)
		if err != nil {
			return fmt.Errorf("tracker: snapshot %s: %w", a.Hex(), err)
		}
		snap[a] = bal
	}
	t.mu.Lock()
	t.before = snap
	t.mu.Unlock()
	return nil
}

// BeforeOf returns the snapshotted balance of asset, or zero when the asset
// was not tracked at snapshot time.
func (t *Tracker) BeforeOf(asset domain.Asset) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if v, ok := t.before[asset]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

// CollectDeltas reads current balances and returns one TokenBalance per
// tracked asset in tracked order.
func (t *Tracker) CollectDeltas(ctx context.Context) ([]domain.TokenBalance, error) {
	assets := t.Assets()
	out := make([]domain.TokenBalance, 0, len(assets))
	for _, a := range assets {
		after, err := ledger.Holding(ctx, t.ledger, a, t.account)
		if err != nil {
			return nil, fmt.Errorf("tracker: collect %s: %w", a.Hex(), err)
		}
		before := t.BeforeOf(a)
		out = append(out, domain.TokenBalance{
			Asset:  a,
			Before: before,
			After:  after,
			Delta:  new(big.Int).Sub(after, before),
		})
	}
	return out, nil
}
