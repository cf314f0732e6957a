package config

import "strings"

// ChainPreset carries the well-known venues and assets of one chain.
type ChainPreset struct {
	Name          string
	BaseAsset     string
	Venues        []VenueConfig
	Intermediates []string
}

// ChainPresets maps chain IDs to their defaults.
var ChainPresets = map[int64]ChainPreset{
	1: {
		Name:      "ethereum",
		BaseAsset: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", // WETH
		Venues: []VenueConfig{
			{
				Name:    "Uniswap V2",
				Router:  "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D",
				Factory: "0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f",
				FeeBps:  30,
				Active:  true,
			},
			{
				Name:    "SushiSwap",
				Router:  "0xd9e1cE17f2641f24aE83637ab66a2cca9C378B9F",
				Factory: "0xC0AEe478e3658e2610c5F7A4A2E1777cE9e4f2Ac",
				FeeBps:  30,
				Active:  true,
			},
		},
		Intermediates: []string{
			"0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", // USDC
			"0xdAC17F958D2ee523a2206206994597C13D831ec7", // USDT
			"0x6B175474E89094C44Da98b954EecdeCB5BADcB39", // DAI
			"0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599", // WBTC
		},
	},
	56: {
		Name:      "bsc",
		BaseAsset: "0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c", // WBNB
		Venues: []VenueConfig{
			{
				Name:    "PancakeSwap V2",
				Router:  "0x10ED43C718714eb63d5aA57B78B54704E256024E",
				Factory: "0xcA143Ce32Fe78f1f7019d7d551a6402fC5350c73",
				FeeBps:  25,
				Active:  true,
			},
			{
				Name:    "BiSwap",
				Router:  "0x3a6d8cA21D1CF76F653A67577FA0D27453350dD8",
				Factory: "0x858E3312ed3A876947EA49d572A7C42DE08af7EE",
				FeeBps:  10,
				Active:  true,
			},
		},
		Intermediates: []string{
			"0xe9e7CEA3DedcA5984780Bafc599bD69ADd087D56", // BUSD
			"0x55d398326f99059fF775485246999027B3197955", // USDT
			"0x8AC76a51cc950d9822D68b83fE1Ad97B32Cd580d", // USDC
			"0x7130d2A12B9BCbFAe4f2634d864A1Ee1Ce3Ead9c", // BTCB
		},
	},
}

// ApplyPresets fills base asset, venues and intermediates from the chain
// preset when the evm backend is selected and the values were left empty.
func ApplyPresets(cfg *Config) {
	if !strings.EqualFold(cfg.Backend, "evm") || !cfg.Chain.UsePresets {
		return
	}
	p, ok := ChainPresets[cfg.Chain.ChainID]
	if !ok {
		return
	}
	if cfg.Harness.BaseAsset == "" {
		cfg.Harness.BaseAsset = p.BaseAsset
	}
	if len(cfg.Venues) == 0 {
		cfg.Venues = append([]VenueConfig(nil), p.Venues...)
	}
	if len(cfg.Intermediates) == 0 {
		cfg.Intermediates = append([]string(nil), p.Intermediates...)
	}
}
