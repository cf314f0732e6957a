package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/profitharness/internal/domain"
)

// Ledger reads ERC20 and native balances from the node and moves funds of
// the operator account only.
type Ledger struct {
	tx *Transactor
}

// NewLedger creates a Ledger on top of t.
func NewLedger(t *Transactor) *Ledger {
	return &Ledger{tx: t}
}

// Remaining exposes the transactor's gas meter.
func (l *Ledger) Remaining() uint64 {
	return l.tx.Remaining()
}

func (l *Ledger) BalanceOf(ctx context.Context, asset domain.Asset, account common.Address) (*big.Int, error) {
	if domain.IsNative(asset) {
		return l.NativeBalance(ctx, account)
	}
	data, err := erc20ABI.Pack("balanceOf", account)
	if err != nil {
		return nil, fmt.Errorf("chain: pack balanceOf: %w", err)
	}
	out, err := l.tx.Call(ctx, asset, data)
	if err != nil {
		return nil, fmt.Errorf("chain: balanceOf %s: %w", asset.Hex(), err)
	}
	vals, err := erc20ABI.Methods["balanceOf"].Outputs.Unpack(out)
	if err != nil || len(vals) != 1 {
		return nil, fmt.Errorf("chain: decode balanceOf %s: %v", asset.Hex(), err)
	}
	return vals[0].(*big.Int), nil
}

// NativeSymbol names the chain-native asset in reports.
const NativeSymbol = "ETH"

// Symbol calls the token's symbol(). The native asset is NativeSymbol.
func (l *Ledger) Symbol(ctx context.Context, asset domain.Asset) (string, error) {
	if domain.IsNative(asset) {
		return NativeSymbol, nil
	}
	vals, err := l.view(ctx, asset, "symbol")
	if err != nil {
		return "", err
	}
	sym, ok := vals[0].(string)
	if !ok {
		return "", fmt.Errorf("chain: decode symbol %s: unexpected %T", asset.Hex(), vals[0])
	}
	return sym, nil
}

// Decimals calls the token's decimals(). The native asset has 18.
func (l *Ledger) Decimals(ctx context.Context, asset domain.Asset) (uint8, error) {
	if domain.IsNative(asset) {
		return 18, nil
	}
	vals, err := l.view(ctx, asset, "decimals")
	if err != nil {
		return 0, err
	}
	d, ok := vals[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("chain: decode decimals %s: unexpected %T", asset.Hex(), vals[0])
	}
	return d, nil
}

// view calls a no-argument ERC20 getter returning one value.
func (l *Ledger) view(ctx context.Context, asset domain.Asset, method string) ([]any, error) {
	data, err := erc20ABI.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("chain: pack %s: %w", method, err)
	}
	out, err := l.tx.Call(ctx, asset, data)
	if err != nil {
		return nil, fmt.Errorf("chain: %s %s: %w", method, asset.Hex(), err)
	}
	vals, err := erc20ABI.Methods[method].Outputs.Unpack(out)
	if err != nil || len(vals) != 1 {
		return nil, fmt.Errorf("chain: decode %s %s: %v", method, asset.Hex(), err)
	}
	return vals, nil
}

func (l *Ledger) NativeBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	bal, err := l.tx.eth.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: native balance %s: %w", account.Hex(), err)
	}
	return bal, nil
}

func (l *Ledger) Transfer(ctx context.Context, asset domain.Asset, from, to common.Address, amount *big.Int) error {
	if err := l.checkOwner(from); err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return domain.ErrInvalidAmount
	}
	if domain.IsNative(asset) {
		_, _, err := l.tx.Send(ctx, to, amount, nil)
		return err
	}
	data, err := erc20ABI.Pack("transfer", to, amount)
	if err != nil {
		return fmt.Errorf("chain: pack transfer: %w", err)
	}
	_, _, err = l.tx.Send(ctx, asset, nil, data)
	return err
}

func (l *Ledger) Approve(ctx context.Context, asset domain.Asset, owner, spender common.Address, amount *big.Int) error {
	if err := l.checkOwner(owner); err != nil {
		return err
	}
	if domain.IsNative(asset) {
		return nil
	}
	if amount == nil || amount.Sign() < 0 {
		return domain.ErrInvalidAmount
	}
	data, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return fmt.Errorf("chain: pack approve: %w", err)
	}
	_, _, err = l.tx.Send(ctx, asset, nil, data)
	return err
}

func (l *Ledger) checkOwner(account common.Address) error {
	if account != l.tx.Address() {
		return fmt.Errorf("chain: %s is not the operator account: %w", account.Hex(), domain.ErrUnauthorized)
	}
	return nil
}
