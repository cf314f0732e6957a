package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/profitharness/internal/domain"
)

// Holding reads account's balance of asset, routing the native asset to
// NativeBalance.
func Holding(ctx context.Context, l domain.Ledger, asset domain.Asset, account common.Address) (*big.Int, error) {
	if domain.IsNative(asset) {
		return l.NativeBalance(ctx, account)
	}
	return l.BalanceOf(ctx, asset, account)
}
