package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/profitharness/internal/config"
	"github.com/alanyoungcy/profitharness/internal/domain"
	"github.com/alanyoungcy/profitharness/internal/routing"
)

const (
	baseHex  = "0x00000000000000000000000000000000000000b1"
	tokHex   = "0x00000000000000000000000000000000000000c1"
	midHex   = "0x00000000000000000000000000000000000000d1"
	acctHex  = "0x00000000000000000000000000000000000000a1"
	adminHex = "0x00000000000000000000000000000000000000ad"
)

func testConfig(mode, strategyName string) *config.Config {
	cfg := config.Defaults()
	cfg.Mode = mode
	cfg.Harness.Account = acctHex
	cfg.Harness.Admin = adminHex
	cfg.Harness.BaseAsset = baseHex
	cfg.Harness.TrackedAssets = []string{tokHex}
	cfg.Venues = []config.VenueConfig{{
		Name:    "amm",
		Router:  "0x00000000000000000000000000000000000000e0",
		Factory: "0x00000000000000000000000000000000000000f0",
		FeeBps:  30,
		Active:  true,
	}}
	cfg.Intermediates = []string{midHex}
	cfg.Memory.Balances = []config.MemoryBalance{{Asset: baseHex, Amount: "10000"}}
	cfg.Memory.Pools = []config.MemoryPool{{
		Venue: "amm", AssetA: baseHex, AssetB: tokHex, ReserveA: "1000000", ReserveB: "2000000",
	}}
	cfg.Strategy = config.StrategyConfig{Name: strategyName, Token: tokHex, Amount: "1000", Reason: "nope"}
	return &cfg
}

func runApp(t *testing.T, cfg *config.Config) (map[string]any, error) {
	t.Helper()
	var buf bytes.Buffer
	prev := output
	output = &buf
	t.Cleanup(func() { output = prev })

	a := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer a.Close()
	err := a.Run(context.Background())

	var out map[string]any
	if buf.Len() > 0 {
		require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	}
	return out, err
}

func TestRunModeRoundTrip(t *testing.T) {
	out, err := runApp(t, testConfig("run", "round_trip"))
	require.NoError(t, err)
	assert.Equal(t, "round_trip", out["strategy"])
	assert.Equal(t, true, out["success"])
	// Two fee-bearing hops lose a little base.
	assert.Less(t, out["profit"].(float64), 0.0)
	assert.Equal(t, true, out["all_balances_non_negative"])
}

func TestRunModeRevert(t *testing.T) {
	out, err := runApp(t, testConfig("run", "revert"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "nope", out["failure_reason"])
}

func TestRunModeUnknownStrategy(t *testing.T) {
	_, err := runApp(t, testConfig("run", "missing"))
	assert.ErrorContains(t, err, "not registered")
}

func TestQuoteMode(t *testing.T) {
	out, err := runApp(t, testConfig("quote", "noop"))
	require.NoError(t, err)
	for _, k := range []string{"exact_in", "exact_out", "reverse"} {
		require.Contains(t, out, k)
		q := out[k].(map[string]any)
		assert.Len(t, q["path"], 2, k)
	}
}

func TestRunModeFormatsProfit(t *testing.T) {
	cfg := testConfig("run", "round_trip")
	cfg.Memory.Tokens = []config.MemoryToken{{Asset: baseHex, Symbol: "BASE", Decimals: 2}}
	out, err := runApp(t, cfg)
	require.NoError(t, err)
	assert.Equal(t, "BASE", out["base_symbol"])
	assert.Contains(t, out["profit_formatted"], "-0.")
}

func TestInvalidStrategyToken(t *testing.T) {
	for _, mode := range []string{"run", "quote"} {
		cfg := testConfig(mode, "noop")
		cfg.Strategy.Token = "nothex"
		_, err := runApp(t, cfg)
		assert.ErrorContains(t, err, "invalid strategy token", mode)
	}

	cfg := testConfig("run", "noop")
	cfg.Harness.TrackedAssets = []string{"0xzz"}
	_, err := runApp(t, cfg)
	assert.ErrorContains(t, err, `invalid tracked asset "0xzz"`)
}

func TestUnsupportedMode(t *testing.T) {
	_, err := runApp(t, testConfig("trade", "noop"))
	assert.ErrorContains(t, err, "unsupported mode")
}

type memRegistryStore struct {
	venues []domain.Venue
	mids   []domain.Asset
}

func (s *memRegistryStore) ListVenues(context.Context) ([]domain.Venue, error) { return s.venues, nil }

func (s *memRegistryStore) InsertVenue(_ context.Context, index int, v domain.Venue) error {
	for len(s.venues) <= index {
		s.venues = append(s.venues, domain.Venue{})
	}
	s.venues[index] = v
	return nil
}

func (s *memRegistryStore) SetVenueActive(_ context.Context, index int, active bool) error {
	s.venues[index].Active = active
	return nil
}

func (s *memRegistryStore) ListIntermediates(context.Context) ([]domain.Asset, error) {
	return s.mids, nil
}

func (s *memRegistryStore) ReplaceIntermediates(_ context.Context, assets []domain.Asset) error {
	s.mids = append([]domain.Asset(nil), assets...)
	return nil
}

func TestLoadRegistryPersistsConfig(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig("serve", "noop")
	a := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	store := &memRegistryStore{}

	reg := routing.NewRegistry(routing.NewStaticResolver(), a.logger)
	require.NoError(t, a.loadRegistry(ctx, reg, store))

	require.Len(t, store.venues, 1)
	assert.Equal(t, "amm", store.venues[0].Name)
	assert.Equal(t, uint32(30), store.venues[0].FeeBps)
	assert.Equal(t, []domain.Asset{common.HexToAddress(midHex)}, store.mids)
	assert.Len(t, reg.Venues(), 1)
}

func TestLoadRegistryRestoresStore(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig("serve", "noop")
	a := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	store := &memRegistryStore{
		venues: []domain.Venue{
			{Name: "one", QuoteEndpoint: common.HexToAddress("0x01"), FeeBps: 30, Active: true},
			{Name: "two", QuoteEndpoint: common.HexToAddress("0x02"), FeeBps: 5, Active: false},
		},
		mids: []domain.Asset{common.HexToAddress(tokHex)},
	}

	reg := routing.NewRegistry(routing.NewStaticResolver(), a.logger)
	require.NoError(t, a.loadRegistry(ctx, reg, store))

	venues := reg.Venues()
	require.Len(t, venues, 2)
	assert.Equal(t, "two", venues[1].Name)
	assert.False(t, venues[1].Active)
	assert.Equal(t, []domain.Asset{common.HexToAddress(tokHex)}, reg.Intermediates())
	// The configured venue was not added on top.
	assert.Len(t, store.venues, 2)
}
