package executor

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/profitharness/internal/domain"
	"github.com/alanyoungcy/profitharness/internal/ledger"
	"github.com/alanyoungcy/profitharness/internal/revert"
	"github.com/alanyoungcy/profitharness/internal/routing"
	"github.com/alanyoungcy/profitharness/internal/venue/amm"
)

var (
	base    = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	tok     = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	account = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	lp      = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	other   = common.HexToAddress("0x00000000000000000000000000000000000000a3")
	router0 = common.HexToAddress("0x00000000000000000000000000000000000000e0")
	fact0   = common.HexToAddress("0x00000000000000000000000000000000000000e1")
)

type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) Emit(_ context.Context, ev domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) kinds() []domain.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	ledger   *ledger.Memory
	amm      *amm.Router
	registry *routing.Registry
	exec     *Executor
	events   *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	l := ledger.NewMemory(0)
	r := amm.New(l, router0, fact0, 30)
	require.NoError(t, l.Mint(base, lp, big.NewInt(1_000_000)))
	require.NoError(t, l.Mint(tok, lp, big.NewInt(1_000_000)))
	require.NoError(t, r.AddLiquidity(ctx, lp, base, tok, big.NewInt(100_000), big.NewInt(100_000)))

	res := routing.NewStaticResolver()
	res.Bind(router0, r)
	reg := routing.NewRegistry(res, discard())
	_, err := reg.AddVenue(domain.Venue{Name: "amm", QuoteEndpoint: router0, RouteEndpoint: fact0, FeeBps: 30, Active: true})
	require.NoError(t, err)

	rec := &recorder{}
	ex := New(Config{Account: account}, reg, l, rec, discard())
	return &fixture{ledger: l, amm: r, registry: reg, exec: ex, events: rec}
}

func TestMinOutMaxIn(t *testing.T) {
	tests := []struct {
		bps    uint32
		minOut int64
		maxIn  int64
	}{
		{0, 1000, 1000},
		{500, 950, 1050},
		{10_000, 0, 2000},
		{20_000, 0, 2000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.minOut, MinOut(big.NewInt(1000), tt.bps).Int64(), "min out at %d bps", tt.bps)
		assert.Equal(t, tt.maxIn, MaxIn(big.NewInt(1000), tt.bps).Int64(), "max in at %d bps", tt.bps)
	}
}

func TestSwapExactIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ledger.Mint(base, account, big.NewInt(1000)))

	q := f.registry.BestQuote(ctx, base, tok, big.NewInt(1000))
	require.True(t, q.Found())

	res := f.exec.SwapExactIn(ctx, q, big.NewInt(1000), DefaultSlippageBps)
	require.True(t, res.Success, res.FailureReason)
	assert.Equal(t, 0, res.AmountOut.Cmp(q.AmountOut))

	got, err := f.ledger.BalanceOf(ctx, tok, account)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Cmp(q.AmountOut))
	assert.Equal(t, []domain.EventKind{domain.EventSwapExecuted}, f.events.kinds())
}

func TestSwapExactInStaleQuoteFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ledger.Mint(base, account, big.NewInt(1000)))
	require.NoError(t, f.ledger.Mint(base, other, big.NewInt(50_000)))

	q := f.registry.BestQuote(ctx, base, tok, big.NewInt(1000))
	require.True(t, q.Found())

	// Another trader moves the price before our swap lands.
	require.NoError(t, f.ledger.Approve(ctx, base, other, router0, big.NewInt(50_000)))
	_, err := f.amm.SwapExactIn(ctx, domain.SwapRequest{
		Path: []domain.Asset{base, tok}, Amount: big.NewInt(50_000), Sender: other, Recipient: other,
	})
	require.NoError(t, err)

	res := f.exec.SwapExactIn(ctx, q, big.NewInt(1000), 0)
	assert.False(t, res.Success)
	assert.Zero(t, res.AmountOut.Sign())
	assert.Equal(t, domain.FailureTextual, res.FailureKind)
	assert.Equal(t, "INSUFFICIENT_OUTPUT_AMOUNT", res.FailureReason)
	assert.Equal(t, []domain.EventKind{domain.EventSwapFailed}, f.events.kinds())

	held, _ := f.ledger.BalanceOf(ctx, base, account)
	assert.Equal(t, int64(1000), held.Int64())
}

func TestSwapExactInNoRoute(t *testing.T) {
	f := newFixture(t)
	res := f.exec.SwapExactIn(context.Background(), domain.NoRoute(big.NewInt(5)), big.NewInt(5), 0)
	assert.False(t, res.Success)
	assert.Zero(t, res.AmountOut.Sign())
	assert.Empty(t, f.events.kinds())
}

func TestSwapExactInIdentity(t *testing.T) {
	f := newFixture(t)
	res := f.exec.SwapExactIn(context.Background(), domain.IdentityQuote(big.NewInt(5)), big.NewInt(5), 0)
	assert.True(t, res.Success)
	assert.Equal(t, int64(5), res.AmountOut.Int64())
}

// failingBackend reports a listed pair and fails every swap with err.
type failingBackend struct {
	err   error
	block bool
	boom  bool
}

func (b failingBackend) PairExists(context.Context, domain.Asset, domain.Asset) (bool, error) {
	return true, nil
}

func (b failingBackend) AmountsOut(_ context.Context, in *big.Int, path []domain.Asset) ([]*big.Int, error) {
	out := make([]*big.Int, len(path))
	for i := range out {
		out[i] = new(big.Int).Set(in)
	}
	return out, nil
}

func (b failingBackend) AmountsIn(_ context.Context, want *big.Int, path []domain.Asset) ([]*big.Int, error) {
	return b.AmountsOut(context.Background(), want, path)
}

func (b failingBackend) SwapExactIn(ctx context.Context, _ domain.SwapRequest) ([]*big.Int, error) {
	if b.boom {
		panic("venue blew up")
	}
	if b.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return nil, b.err
}

func (b failingBackend) SwapExactOut(ctx context.Context, req domain.SwapRequest) ([]*big.Int, error) {
	return b.SwapExactIn(ctx, req)
}

func TestSwapFailureClassification(t *testing.T) {
	tests := []struct {
		name   string
		back   failingBackend
		kind   domain.FailureKind
		reason string
	}{
		{"textual", failingBackend{err: revert.Reason("K")}, domain.FailureTextual, "K"},
		{"empty", failingBackend{err: revert.Empty()}, domain.FailureUnknown, ""},
		{"panic", failingBackend{err: revert.Panic(0x12)}, domain.FailureRuntimeFault, "panic: division or modulo by zero (0x12)"},
		{"timeout", failingBackend{block: true}, domain.FailureTimeout, "deadline exceeded"},
		{"venue panic", failingBackend{boom: true}, domain.FailureRuntimeFault, "panic: venue blew up"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := ledger.NewMemory(0)
			require.NoError(t, l.Mint(base, account, big.NewInt(100)))
			res := routing.NewStaticResolver()
			res.Bind(router0, tt.back)
			reg := routing.NewRegistry(res, discard())
			_, err := reg.AddVenue(domain.Venue{Name: "stub", QuoteEndpoint: router0, Active: true})
			require.NoError(t, err)
			rec := &recorder{}
			ex := New(Config{Account: account, Deadline: 20 * time.Millisecond}, reg, l, rec, discard())

			q := reg.BestQuote(context.Background(), base, tok, big.NewInt(100))
			require.True(t, q.Found())
			out := ex.SwapExactIn(context.Background(), q, big.NewInt(100), 0)
			assert.False(t, out.Success)
			assert.Zero(t, out.AmountOut.Sign())
			assert.Equal(t, tt.kind, out.FailureKind)
			assert.Equal(t, tt.reason, out.FailureReason)
			assert.Equal(t, []domain.EventKind{domain.EventSwapFailed}, rec.kinds())
		})
	}
}

func TestBuyExactOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ledger.Mint(base, account, big.NewInt(10_000)))

	res := f.exec.BuyExactOut(ctx, base, tok, big.NewInt(500), DefaultSlippageBps)
	require.True(t, res.Success, res.FailureReason)
	assert.Equal(t, int64(500), res.AmountOut.Int64())

	got, _ := f.ledger.BalanceOf(ctx, tok, account)
	assert.Equal(t, int64(500), got.Int64())
}

func TestBuyExactOutShortfallBuysLess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ledger.Mint(base, account, big.NewInt(100)))

	res := f.exec.BuyExactOut(ctx, base, tok, big.NewInt(500), DefaultSlippageBps)
	require.True(t, res.Success, res.FailureReason)
	assert.Equal(t, int64(100), res.AmountIn.Int64())
	assert.Less(t, res.AmountOut.Int64(), int64(500))
	assert.Positive(t, res.AmountOut.Int64())

	held, _ := f.ledger.BalanceOf(ctx, base, account)
	assert.Zero(t, held.Sign())
}

func TestBuyExactOutWithoutBalance(t *testing.T) {
	f := newFixture(t)
	res := f.exec.BuyExactOut(context.Background(), base, tok, big.NewInt(500), DefaultSlippageBps)
	assert.False(t, res.Success)
	assert.Zero(t, res.AmountOut.Sign())
	assert.Empty(t, f.events.kinds())
}
