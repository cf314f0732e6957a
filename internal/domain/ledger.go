package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Ledger is the authoritative balance book the harness and strategies act on.
type Ledger interface {
	BalanceOf(ctx context.Context, asset Asset, account common.Address) (*big.Int, error)
	NativeBalance(ctx context.Context, account common.Address) (*big.Int, error)
	Transfer(ctx context.Context, asset Asset, from, to common.Address, amount *big.Int) error
	Approve(ctx context.Context, asset Asset, owner, spender common.Address, amount *big.Int) error
}

// Meter is implemented by ledgers that account a compute budget.
type Meter interface {
	Remaining() uint64
}

// AssetMetadata is implemented by ledgers that can name their assets.
type AssetMetadata interface {
	Symbol(ctx context.Context, asset Asset) (string, error)
	Decimals(ctx context.Context, asset Asset) (uint8, error)
}
