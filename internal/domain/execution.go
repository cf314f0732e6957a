package domain

import (
	"context"
	"math/big"
	"time"
)

// FailureKind classifies why a strategy run or a trade did not succeed.
type FailureKind string

const (
	FailureNone         FailureKind = ""
	FailureTextual      FailureKind = "textual"
	FailureRuntimeFault FailureKind = "runtime_fault"
	FailureUnknown      FailureKind = "unknown"
	FailureTimeout      FailureKind = "timeout"
	FailureLedger       FailureKind = "ledger"
)

// Strategy is an opaque unit of logic with a single capability.
type Strategy interface {
	Run(ctx context.Context) error
}

// StrategyFunc adapts a function to the Strategy interface.
type StrategyFunc func(ctx context.Context) error

// Run calls f(ctx).
func (f StrategyFunc) Run(ctx context.Context) error { return f(ctx) }

// TokenBalance is the before/after view of one tracked asset.
type TokenBalance struct {
	Asset  Asset    `json:"asset"`
	Before *big.Int `json:"before"`
	After  *big.Int `json:"after"`
	Delta  *big.Int `json:"delta"`
}

// ExecutionResult is the structured outcome of one strategy execution.
type ExecutionResult struct {
	ID                     string         `json:"id"`
	Strategy               string         `json:"strategy"`
	Success                bool           `json:"success"`
	FailureKind            FailureKind    `json:"failure_kind,omitempty"`
	FailureReason          string         `json:"failure_reason,omitempty"`
	GasUsed                uint64         `json:"gas_used"`
	Duration               time.Duration  `json:"duration"`
	BaseAsset              Asset          `json:"base_asset"`
	Profit                 *big.Int       `json:"profit"`
	AllBalancesNonNegative bool           `json:"all_balances_non_negative"`
	Balances               []TokenBalance `json:"balances"`
	Settled                bool           `json:"settled"`
	SettledProfit          *big.Int       `json:"settled_profit,omitempty"`
	// BaseSymbol and ProfitFormatted are set when the ledger knows the
	// base asset's symbol and decimals.
	BaseSymbol      string `json:"base_symbol,omitempty"`
	ProfitFormatted string `json:"profit_formatted,omitempty"`
	StartedAt              time.Time      `json:"started_at"`
}

// Profitable reports whether the run succeeded with a positive profit.
func (r ExecutionResult) Profitable() bool {
	return r.Success && r.Profit != nil && r.Profit.Sign() > 0
}

// ExecutionStats aggregates persisted results.
type ExecutionStats struct {
	Total     int64    `json:"total"`
	Succeeded int64    `json:"succeeded"`
	Profit    *big.Int `json:"profit"`
}

// SuccessRate is Succeeded / Total, or zero for an empty window.
func (s ExecutionStats) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Succeeded) / float64(s.Total)
}
