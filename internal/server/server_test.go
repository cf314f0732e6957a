package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/profitharness/internal/domain"
	"github.com/alanyoungcy/profitharness/internal/harness"
	"github.com/alanyoungcy/profitharness/internal/ledger"
	"github.com/alanyoungcy/profitharness/internal/routing"
	"github.com/alanyoungcy/profitharness/internal/server/handler"
	"github.com/alanyoungcy/profitharness/internal/strategy"
	"github.com/alanyoungcy/profitharness/internal/venue/amm"
)

var (
	base    = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	tok     = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	account = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	admin   = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	lp      = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	router  = common.HexToAddress("0x00000000000000000000000000000000000000e0")
	factory = common.HexToAddress("0x00000000000000000000000000000000000000f0")
)

type api struct {
	t       *testing.T
	handler http.Handler
	ledger  *ledger.Memory
}

func newAPI(t *testing.T) *api {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	l := ledger.NewMemory(1_000_000_000)
	res := routing.NewStaticResolver()
	reg := routing.NewRegistry(res, logger)

	pool := amm.New(l, router, factory, 30)
	res.Bind(router, pool)
	require.NoError(t, l.Mint(base, lp, big.NewInt(1_000_000)))
	require.NoError(t, l.Mint(tok, lp, big.NewInt(2_000_000)))
	require.NoError(t, pool.AddLiquidity(ctx, lp, base, tok, big.NewInt(1_000_000), big.NewInt(2_000_000)))
	require.NoError(t, l.Mint(base, account, big.NewInt(10_000)))

	h := harness.New(harness.Config{Account: account, Admin: admin, BaseAsset: base}, harness.Deps{Ledger: l, Registry: reg}, logger)
	strategies := strategy.NewRegistry()
	for _, s := range strategy.Builtins(strategy.Config{Base: base, Token: tok, Amount: big.NewInt(1000), Reason: "X"}, reg, h.Executor()) {
		strategies.Register(s)
	}

	handlers := Handlers{
		Health:     handler.NewHealthHandler(nil, logger),
		Registry:   handler.NewRegistryHandler(h, logger),
		Harness:    handler.NewHarnessHandler(h, logger),
		Executions: handler.NewExecutionHandler(h, strategies, nil, nil, nil, logger),
	}
	return &api{t: t, handler: NewHandler(Config{APIKey: "k"}, handlers, nil, logger), ledger: l}
}

func (a *api) do(method, path, body string, out any) int {
	a.t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Authorization", "Bearer k")
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	if out != nil {
		require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func (a *api) addVenue() {
	a.t.Helper()
	code := a.do(http.MethodPost, "/api/venues", `{"name":"uni","router":"`+router.Hex()+`","factory":"`+factory.Hex()+`","fee_bps":30}`, nil)
	require.Equal(a.t, http.StatusCreated, code)
}

func TestHealthIsPublic(t *testing.T) {
	a := newAPI(t)
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/venues", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestVenuesAndQuote(t *testing.T) {
	a := newAPI(t)
	a.addVenue()

	var venues struct {
		Venues []struct {
			Index int    `json:"index"`
			Name  string `json:"name"`
		} `json:"venues"`
	}
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/venues", "", &venues))
	require.Len(t, venues.Venues, 1)
	assert.Equal(t, "uni", venues.Venues[0].Name)

	var quote struct {
		Found bool         `json:"found"`
		Quote domain.Quote `json:"quote"`
	}
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/quote?in="+base.Hex()+"&out="+tok.Hex()+"&amount=1000", "", &quote))
	assert.True(t, quote.Found)
	assert.Equal(t, 0, quote.Quote.VenueIndex)
	assert.Positive(t, quote.Quote.AmountOut.Sign())

	var reserves domain.Reserves
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/venues/0/reserves?a="+tok.Hex()+"&b="+base.Hex(), "", &reserves))
	assert.Equal(t, int64(2_000_000), reserves.ReserveA.Int64())
	assert.Equal(t, int64(1_000_000), reserves.ReserveB.Int64())

	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodGet, "/api/quote?in=nope&out="+tok.Hex()+"&amount=1", "", nil))
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, "/api/venues/7/active", `{"active":false}`, nil))
	assert.Equal(t, http.StatusOK, a.do(http.MethodPost, "/api/venues/0/active", `{"active":false}`, nil))
}

func TestExecuteStrategies(t *testing.T) {
	a := newAPI(t)
	a.addVenue()

	var res domain.ExecutionResult
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/api/executions", `{"strategy":"revert"}`, &res))
	assert.False(t, res.Success)
	assert.Equal(t, "X", res.FailureReason)

	res = domain.ExecutionResult{}
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/api/executions", `{"strategy":"round_trip","tokens":["`+tok.Hex()+`"]}`, &res))
	assert.True(t, res.Success, res.FailureReason)
	assert.Equal(t, "round_trip", res.Strategy)
	assert.Negative(t, res.Profit.Sign())

	assert.Equal(t, http.StatusNotFound, a.do(http.MethodPost, "/api/executions", `{"strategy":"missing"}`, nil))
	assert.Equal(t, http.StatusNotImplemented, a.do(http.MethodGet, "/api/executions", "", nil))
}

func TestAccountEndpoints(t *testing.T) {
	a := newAPI(t)
	ctx := context.Background()

	require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/api/tracked", `{"assets":["`+tok.Hex()+`"]}`, nil))

	var tracked struct {
		Assets []common.Address `json:"assets"`
	}
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/tracked", "", &tracked))
	assert.Equal(t, []common.Address{base, tok}, tracked.Assets)

	var out struct {
		Amount *big.Int `json:"amount"`
	}
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/api/withdraw", `{"asset":"`+base.Hex()+`","to":"`+admin.Hex()+`","amount":"400"}`, &out))
	assert.Equal(t, int64(400), out.Amount.Int64())
	got, err := a.ledger.BalanceOf(ctx, base, admin)
	require.NoError(t, err)
	assert.Equal(t, int64(400), got.Int64())

	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, "/api/withdraw", `{"asset":"`+base.Hex()+`","to":""}`, nil))
	require.Equal(t, http.StatusOK, a.do(http.MethodPut, "/api/base", `{"asset":"`+tok.Hex()+`"}`, nil))

	var status map[string]any
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/status", "", &status))
	assert.Equal(t, false, status["executing"])
}
