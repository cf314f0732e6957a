// Package ledger provides the in-process balance book used by the memory
// backend and helpers shared by every ledger implementation.
package ledger

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/profitharness/internal/domain"
)

// Gas charged per state-changing operation. Reads are free.
const (
	GasTransfer uint64 = 29_000
	GasApprove  uint64 = 24_000
	GasSwapHop  uint64 = 60_000
)

type allowanceKey struct {
	asset   domain.Asset
	owner   common.Address
	spender common.Address
}

// Memory is a mutex-guarded ledger holding balances as 256-bit unsigned
// integers. It meters writes against an optional gas limit.
type Memory struct {
	mu         sync.Mutex
	balances   map[domain.Asset]map[common.Address]*uint256.Int
	allowances map[allowanceKey]*uint256.Int
	meta       map[domain.Asset]assetMeta
	gasLimit   uint64
	gasUsed    uint64
}

type assetMeta struct {
	symbol   string
	decimals uint8
}

// NewMemory returns an empty ledger. A gasLimit of zero means unlimited.
func NewMemory(gasLimit uint64) *Memory {
	return &Memory{
		balances:   make(map[domain.Asset]map[common.Address]*uint256.Int),
		allowances: make(map[allowanceKey]*uint256.Int),
		meta:       make(map[domain.Asset]assetMeta),
		gasLimit:   gasLimit,
	}
}

// SetMetadata names asset. Symbol and Decimals fail for unnamed assets.
func (m *Memory) SetMetadata(asset domain.Asset, symbol string, decimals uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meta[asset] = assetMeta{symbol: symbol, decimals: decimals}
}

func (m *Memory) Symbol(_ context.Context, asset domain.Asset) (string, error) {
	md, err := m.metadata(asset)
	return md.symbol, err
}

func (m *Memory) Decimals(_ context.Context, asset domain.Asset) (uint8, error) {
	md, err := m.metadata(asset)
	return md.decimals, err
}

func (m *Memory) metadata(asset domain.Asset) (assetMeta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	md, ok := m.meta[asset]
	if !ok {
		return assetMeta{}, fmt.Errorf("ledger: metadata %s: %w", asset.Hex(), domain.ErrNotFound)
	}
	return md, nil
}

// Remaining returns the unspent gas budget.
func (m *Memory) Remaining() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit := m.gasLimit
	if limit == 0 {
		limit = math.MaxUint64
	}
	if m.gasUsed >= limit {
		return 0
	}
	return limit - m.gasUsed
}

// BalanceOf returns the balance of asset held by account.
func (m *Memory) BalanceOf(_ context.Context, asset domain.Asset, account common.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance(asset, account).ToBig(), nil
}

// NativeBalance returns the native-asset balance of account.
func (m *Memory) NativeBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	return m.BalanceOf(ctx, domain.NativeAsset, account)
}

// Allowance returns how much spender may move on behalf of owner.
func (m *Memory) Allowance(_ context.Context, asset domain.Asset, owner, spender common.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.allowances[allowanceKey{asset, owner, spender}]; ok {
		return a.ToBig(), nil
	}
	return new(big.Int), nil
}

// Transfer moves amount of asset between accounts.
func (m *Memory) Transfer(ctx context.Context, asset domain.Asset, from, to common.Address, amount *big.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v, err := toUint256(amount)
	if err != nil {
		return fmt.Errorf("ledger: transfer: %w", err)
	}
	return m.Update(func(tx *Tx) error {
		if err := tx.Charge(GasTransfer); err != nil {
			return err
		}
		return tx.Transfer(asset, from, to, v)
	})
}

// Approve sets the allowance of spender over owner's asset.
func (m *Memory) Approve(ctx context.Context, asset domain.Asset, owner, spender common.Address, amount *big.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v, err := toUint256(amount)
	if err != nil {
		return fmt.Errorf("ledger: approve: %w", err)
	}
	return m.Update(func(tx *Tx) error {
		if err := tx.Charge(GasApprove); err != nil {
			return err
		}
		tx.SetAllowance(asset, owner, spender, v)
		return nil
	})
}

// Mint credits amount of asset to account without metering.
func (m *Memory) Mint(asset domain.Asset, account common.Address, amount *big.Int) error {
	v, err := toUint256(amount)
	if err != nil {
		return fmt.Errorf("ledger: mint: %w", err)
	}
	return m.Update(func(tx *Tx) error {
		cur := tx.Balance(asset, account)
		next, overflow := new(uint256.Int).AddOverflow(cur, v)
		if overflow {
			return domain.ErrBalanceOverflow
		}
		tx.setBalance(asset, account, next)
		return nil
	})
}

// Burn debits amount of asset from account without metering.
func (m *Memory) Burn(asset domain.Asset, account common.Address, amount *big.Int) error {
	v, err := toUint256(amount)
	if err != nil {
		return fmt.Errorf("ledger: burn: %w", err)
	}
	return m.Update(func(tx *Tx) error {
		cur := tx.Balance(asset, account)
		if cur.Lt(v) {
			return domain.ErrInsufficientBalance
		}
		tx.setBalance(asset, account, new(uint256.Int).Sub(cur, v))
		return nil
	})
}

// Update runs fn with exclusive access to the ledger. Every balance or
// allowance change made through tx is undone when fn returns an error. Gas
// charged before the error stays spent.
func (m *Memory) Update(fn func(tx *Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &Tx{m: m}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func (m *Memory) balance(asset domain.Asset, account common.Address) *uint256.Int {
	if byAcct, ok := m.balances[asset]; ok {
		if b, ok := byAcct[account]; ok {
			return b.Clone()
		}
	}
	return new(uint256.Int)
}

// Tx is a view of the ledger inside Update.
type Tx struct {
	m    *Memory
	undo []func()
}

// Balance returns a copy of account's balance of asset.
func (tx *Tx) Balance(asset domain.Asset, account common.Address) *uint256.Int {
	return tx.m.balance(asset, account)
}

// Transfer moves v of asset from one account to another.
func (tx *Tx) Transfer(asset domain.Asset, from, to common.Address, v *uint256.Int) error {
	fromBal := tx.Balance(asset, from)
	if fromBal.Lt(v) {
		return domain.ErrInsufficientBalance
	}
	if from == to {
		return nil
	}
	toBal := tx.Balance(asset, to)
	next, overflow := new(uint256.Int).AddOverflow(toBal, v)
	if overflow {
		return domain.ErrBalanceOverflow
	}
	tx.setBalance(asset, from, new(uint256.Int).Sub(fromBal, v))
	tx.setBalance(asset, to, next)
	return nil
}

// SpendAllowance decreases spender's allowance over owner's asset by v.
func (tx *Tx) SpendAllowance(asset domain.Asset, owner, spender common.Address, v *uint256.Int) error {
	if owner == spender {
		return nil
	}
	key := allowanceKey{asset, owner, spender}
	cur, ok := tx.m.allowances[key]
	if !ok || cur.Lt(v) {
		return domain.ErrInsufficientAllow
	}
	tx.SetAllowance(asset, owner, spender, new(uint256.Int).Sub(cur, v))
	return nil
}

// SetAllowance overwrites spender's allowance over owner's asset.
func (tx *Tx) SetAllowance(asset domain.Asset, owner, spender common.Address, v *uint256.Int) {
	key := allowanceKey{asset, owner, spender}
	prev, had := tx.m.allowances[key]
	tx.undo = append(tx.undo, func() {
		if had {
			tx.m.allowances[key] = prev
		} else {
			delete(tx.m.allowances, key)
		}
	})
	tx.m.allowances[key] = v.Clone()
}

// Charge spends gas, failing with ErrOutOfGas once the limit is crossed.
func (tx *Tx) Charge(gas uint64) error {
	m := tx.m
	if m.gasLimit != 0 && m.gasUsed+gas > m.gasLimit {
		m.gasUsed = m.gasLimit
		return domain.ErrOutOfGas
	}
	m.gasUsed += gas
	return nil
}

func (tx *Tx) setBalance(asset domain.Asset, account common.Address, v *uint256.Int) {
	byAcct, ok := tx.m.balances[asset]
	if !ok {
		byAcct = make(map[common.Address]*uint256.Int)
		tx.m.balances[asset] = byAcct
	}
	prev, had := byAcct[account]
	tx.undo = append(tx.undo, func() {
		if had {
			byAcct[account] = prev
		} else {
			delete(byAcct, account)
		}
	})
	byAcct[account] = v
}

func (tx *Tx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

// ToUint256 converts a non-negative big.Int that fits in 256 bits.
func ToUint256(v *big.Int) (*uint256.Int, error) {
	return toUint256(v)
}

func toUint256(v *big.Int) (*uint256.Int, error) {
	if v == nil || v.Sign() < 0 {
		return nil, domain.ErrInvalidAmount
	}
	u, overflow := uint256.FromBig(v)
	if overflow {
		return nil, domain.ErrBalanceOverflow
	}
	return u, nil
}

var (
	_ domain.Ledger = (*Memory)(nil)
	_ domain.Meter  = (*Memory)(nil)
)
