package chain

import (
	"context"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/profitharness/internal/crypto"
	"github.com/alanyoungcy/profitharness/internal/domain"
	"github.com/alanyoungcy/profitharness/internal/revert"
)

var (
	tokA    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	tokB    = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	router  = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	factory = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	pair    = common.HexToAddress("0x00000000000000000000000000000000000000e1")
)

type fakeNode struct {
	replies map[string][]byte
	revert  []byte
	native  *big.Int
	status  uint64
	sent    []*types.Transaction
	calls   []ethereum.CallMsg
}

func (n *fakeNode) reply(a abi.ABI, method string, vals ...any) {
	out, err := a.Methods[method].Outputs.Pack(vals...)
	if err != nil {
		panic(err)
	}
	if n.replies == nil {
		n.replies = map[string][]byte{}
	}
	n.replies[string(a.Methods[method].ID)] = out
}

func (n *fakeNode) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	n.calls = append(n.calls, msg)
	if n.revert != nil {
		return nil, &revert.Error{Data: n.revert}
	}
	if len(msg.Data) < 4 {
		return nil, nil
	}
	return n.replies[string(msg.Data[:4])], nil
}

func (n *fakeNode) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) { return 90_000, nil }

func (n *fakeNode) SendTransaction(_ context.Context, tx *types.Transaction) error {
	n.sent = append(n.sent, tx)
	return nil
}

func (n *fakeNode) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return n.native, nil
}

func (n *fakeNode) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return uint64(len(n.sent)), nil
}

func (n *fakeNode) SuggestGasTipCap(context.Context) (*big.Int, error) { return big.NewInt(1), nil }

func (n *fakeNode) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{BaseFee: big.NewInt(10)}, nil
}

func (n *fakeNode) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return &types.Receipt{Status: n.status, GasUsed: 21_000}, nil
}

func newTransactor(t *testing.T, node *fakeNode) *Transactor {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	s, err := crypto.NewSigner(key, 1)
	require.NoError(t, err)
	return NewTransactor(node, s, TransactorConfig{PollInterval: time.Millisecond}, slog.Default())
}

func TestLedgerBalances(t *testing.T) {
	node := &fakeNode{native: big.NewInt(7)}
	node.reply(erc20ABI, "balanceOf", big.NewInt(1234))
	l := NewLedger(newTransactor(t, node))
	ctx := context.Background()

	bal, err := l.BalanceOf(ctx, tokA, tokB)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), bal.Int64())

	bal, err = l.BalanceOf(ctx, domain.NativeAsset, tokB)
	require.NoError(t, err)
	assert.Equal(t, int64(7), bal.Int64())
}

func TestLedgerOnlyMovesOperatorFunds(t *testing.T) {
	node := &fakeNode{status: types.ReceiptStatusSuccessful}
	tx := newTransactor(t, node)
	l := NewLedger(tx)
	ctx := context.Background()

	err := l.Transfer(ctx, tokA, tokB, router, big.NewInt(1))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Empty(t, node.sent)

	require.NoError(t, l.Approve(ctx, tokA, tx.Address(), router, big.NewInt(5)))
	require.Len(t, node.sent, 1)
	assert.Equal(t, tokA, *node.sent[0].To())
	assert.Equal(t, uint64(90_000), node.sent[0].Gas())
	assert.Equal(t, int64(21), node.sent[0].GasFeeCap().Int64())
}

func TestRouterSwapUsesSimulatedAmounts(t *testing.T) {
	node := &fakeNode{status: types.ReceiptStatusSuccessful}
	node.reply(routerABI, "swapExactTokensForTokens", []*big.Int{big.NewInt(100), big.NewInt(181)})
	tx := newTransactor(t, node)
	r := NewRouter(tx, domain.Venue{QuoteEndpoint: router, RouteEndpoint: factory})
	before := tx.Remaining()

	amounts, err := r.SwapExactIn(context.Background(), domain.SwapRequest{
		Path:      []domain.Asset{tokA, tokB},
		Amount:    big.NewInt(100),
		Limit:     big.NewInt(170),
		Sender:    tx.Address(),
		Recipient: tx.Address(),
		Deadline:  time.Now().Add(time.Minute),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(181), amounts[1].Int64())
	require.Len(t, node.sent, 1)
	assert.Equal(t, router, *node.sent[0].To())
	assert.Equal(t, uint64(21_000), before-tx.Remaining())
}

func TestRouterFailuresClassify(t *testing.T) {
	ctx := context.Background()
	req := func(tx *Transactor) domain.SwapRequest {
		return domain.SwapRequest{
			Path:   []domain.Asset{tokA, tokB},
			Amount: big.NewInt(1), Limit: big.NewInt(1),
			Sender: tx.Address(), Recipient: tx.Address(),
			Deadline: time.Now(),
		}
	}

	node := &fakeNode{revert: revert.EncodeReason("INSUFFICIENT_OUTPUT_AMOUNT")}
	tx := newTransactor(t, node)
	_, err := NewRouter(tx, domain.Venue{QuoteEndpoint: router}).SwapExactIn(ctx, req(tx))
	kind, reason := revert.ClassifyError(err)
	assert.Equal(t, domain.FailureTextual, kind)
	assert.Equal(t, "INSUFFICIENT_OUTPUT_AMOUNT", reason)
	assert.Empty(t, node.sent)

	node = &fakeNode{status: types.ReceiptStatusFailed}
	node.reply(routerABI, "swapTokensForExactTokens", []*big.Int{big.NewInt(1), big.NewInt(1)})
	tx = newTransactor(t, node)
	_, err = NewRouter(tx, domain.Venue{QuoteEndpoint: router}).SwapExactOut(ctx, req(tx))
	kind, _ = revert.ClassifyError(err)
	assert.Equal(t, domain.FailureUnknown, kind)
}

func TestRouterReservesOrientation(t *testing.T) {
	node := &fakeNode{}
	node.reply(factoryABI, "getPair", pair)
	node.reply(pairABI, "getReserves", big.NewInt(10), big.NewInt(20), uint32(0))
	node.reply(pairABI, "token0", tokB)
	r := NewRouter(newTransactor(t, node), domain.Venue{QuoteEndpoint: router, RouteEndpoint: factory})

	res, err := r.Reserves(context.Background(), tokA, tokB)
	require.NoError(t, err)
	assert.Equal(t, pair, res.Pair)
	assert.Equal(t, int64(20), res.ReserveA.Int64())
	assert.Equal(t, int64(10), res.ReserveB.Int64())

	ok, err := r.PairExists(context.Background(), tokA, tokB)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestResolver(t *testing.T) {
	res := NewResolver(newTransactor(t, &fakeNode{}))
	_, err := res.Resolve(domain.Venue{Name: "empty"})
	assert.Error(t, err)
	b, err := res.Resolve(domain.Venue{QuoteEndpoint: router})
	require.NoError(t, err)
	_, ok := b.(domain.ReservesReader)
	assert.True(t, ok)
}

func TestLedgerMetadata(t *testing.T) {
	node := &fakeNode{}
	node.reply(erc20ABI, "symbol", "USDC")
	node.reply(erc20ABI, "decimals", uint8(6))
	l := NewLedger(newTransactor(t, node))
	ctx := context.Background()

	sym, err := l.Symbol(ctx, tokA)
	require.NoError(t, err)
	assert.Equal(t, "USDC", sym)
	dec, err := l.Decimals(ctx, tokA)
	require.NoError(t, err)
	assert.Equal(t, uint8(6), dec)

	sym, err = l.Symbol(ctx, domain.NativeAsset)
	require.NoError(t, err)
	assert.Equal(t, NativeSymbol, sym)
	dec, err = l.Decimals(ctx, domain.NativeAsset)
	require.NoError(t, err)
	assert.Equal(t, uint8(18), dec)

	var _ domain.AssetMetadata = l
}
