package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/profitharness/internal/crypto"
	"github.com/alanyoungcy/profitharness/internal/revert"
)

// Backend is the subset of *ethclient.Client the transactor needs.
type Backend interface {
	ethereum.ContractCaller
	ethereum.GasEstimator
	ethereum.TransactionSender
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// TransactorConfig holds transaction submission parameters.
type TransactorConfig struct {
	// GasLimit caps every transaction. Zero means estimate per call.
	GasLimit       uint64
	ReceiptTimeout time.Duration
	PollInterval   time.Duration
}

// Transactor simulates, signs, submits and confirms transactions from the
// operator account, one at a time.
type Transactor struct {
	eth    Backend
	signer *crypto.Signer
	cfg    TransactorConfig
	logger *slog.Logger

	mu      sync.Mutex
	gasUsed atomic.Uint64
}

// NewTransactor creates a Transactor.
func NewTransactor(eth Backend, signer *crypto.Signer, cfg TransactorConfig, logger *slog.Logger) *Transactor {
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = 2 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &Transactor{
		eth:    eth,
		signer: signer,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "chain")),
	}
}

// Address returns the operator address.
func (t *Transactor) Address() common.Address {
	return t.signer.Address()
}

// Remaining reports the unspent share of a notional MaxUint64 gas budget, so
// the difference between two readings is the gas consumed in between.
func (t *Transactor) Remaining() uint64 {
	return math.MaxUint64 - t.gasUsed.Load()
}

// Call runs a read-only call from the operator account at the latest block.
func (t *Transactor) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return t.eth.CallContract(ctx, ethereum.CallMsg{From: t.Address(), To: &to, Data: data}, nil)
}

// Send simulates the call, then submits it and waits for the receipt. The
// returned bytes are the simulated return data. A failed simulation returns
// the node error untouched so revert payloads survive for classification.
func (t *Transactor) Send(ctx context.Context, to common.Address, value *big.Int, data []byte) ([]byte, *types.Receipt, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if value == nil {
		value = new(big.Int)
	}
	from := t.Address()
	msg := ethereum.CallMsg{From: from, To: &to, Value: value, Data: data}

	ret, err := t.eth.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, nil, err
	}

	gas := t.cfg.GasLimit
	if gas == 0 {
		gas, err = t.eth.EstimateGas(ctx, msg)
		if err != nil {
			return nil, nil, fmt.Errorf("chain: estimate gas: %w", err)
		}
	}
	nonce, err := t.eth.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, nil, fmt.Errorf("chain: nonce: %w", err)
	}
	tip, err := t.eth.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("chain: gas tip: %w", err)
	}
	head, err := t.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("chain: head: %w", err)
	}
	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}

	tx, err := t.signer.SignTx(types.NewTx(&types.DynamicFeeTx{
		ChainID:   t.signer.ChainID(),
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Value:     value,
		Data:      data,
	}))
	if err != nil {
		return nil, nil, err
	}
	if err := t.eth.SendTransaction(ctx, tx); err != nil {
		return nil, nil, fmt.Errorf("chain: send %s: %w", tx.Hash().Hex(), err)
	}

	receipt, err := t.waitMined(ctx, tx.Hash())
	if err != nil {
		return nil, nil, err
	}
	t.gasUsed.Add(receipt.GasUsed)

	t.logger.Debug("transaction mined",
		slog.String("tx", tx.Hash().Hex()),
		slog.String("to", to.Hex()),
		slog.Uint64("gas_used", receipt.GasUsed),
		slog.Uint64("status", receipt.Status),
	)
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, receipt, fmt.Errorf("chain: tx %s failed on-chain: %w", tx.Hash().Hex(), revert.Empty())
	}
	return ret, receipt, nil
}

func (t *Transactor) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.ReceiptTimeout)
	defer cancel()

	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()
	for {
		receipt, err := t.eth.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("chain: receipt %s: %w", hash.Hex(), err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("chain: waiting for %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
