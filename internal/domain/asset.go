package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Asset identifies a fungible unit held on the ledger. The zero address is
// reserved for the chain-native asset.
type Asset = common.Address

// NativeAsset is the sentinel for the chain-native asset.
var NativeAsset = common.Address{}

// PriceUnit is the fixed-point scale of Quote.EffectivePrice (1e18).
var PriceUnit = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// BPSMax is the basis-point denominator.
const BPSMax = 10_000

// IsNative reports whether a is the native-asset sentinel.
func IsNative(a Asset) bool {
	return a == NativeAsset
}

// ParseAsset converts a hex string to an Asset. Empty strings and the
// literal "native" map to NativeAsset.
func ParseAsset(s string) (Asset, bool) {
	if s == "" || s == "native" {
		return NativeAsset, true
	}
	if !common.IsHexAddress(s) {
		return Asset{}, false
	}
	return common.HexToAddress(s), true
}
