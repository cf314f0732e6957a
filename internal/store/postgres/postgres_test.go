package postgres

import (
	"context"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/profitharness/internal/domain"
)

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/h?sslmode=disable",
		DSN(ClientConfig{User: "u", Password: "p", Host: "db", Database: "h"}))
	assert.Equal(t, "postgres://u:p@db:6543/h?sslmode=require",
		DSN(ClientConfig{User: "u", Password: "p", Host: "db", Port: 6543, Database: "h", SSLMode: "require"}))
	assert.Equal(t, "postgres://x", DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}))
	assert.Equal(t, "postgres://svc:p%40ss%2Fw@db:5432/h?sslmode=disable",
		DSN(ClientConfig{User: "svc", Password: "p@ss/w", Host: "db", Database: "h"}))
}

func TestMigrationFiles(t *testing.T) {
	names, err := migrationFiles()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "001_init.sql", names[0])
	assert.IsIncreasing(t, names)
}

func TestNumericText(t *testing.T) {
	huge, _ := new(big.Int).SetString("115792089237316195423570985008687907853269984665640564039457584007913129639935", 10)
	assert.Equal(t, huge.String(), numText(huge))
	assert.Equal(t, "0", numText(nil))
	assert.Nil(t, numTextPtr(nil))

	v, err := parseNum("-42")
	require.NoError(t, err)
	assert.Equal(t, int64(-42), v.Int64())

	_, err = parseNum("1.5")
	assert.Error(t, err)

	p, err := parseNumPtr(nil)
	require.NoError(t, err)
	assert.Nil(t, p)
}

// newTestClient connects to HARNESS_TEST_POSTGRES_DSN and migrates, or skips.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	dsn := os.Getenv("HARNESS_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("HARNESS_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	c, err := New(ctx, ClientConfig{DSN: dsn, MaxConns: 4})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	require.NoError(t, c.RunMigrations(ctx))
	require.NoError(t, c.RunMigrations(ctx))
	return c
}

func TestExecutionStore(t *testing.T) {
	c := newTestClient(t)
	s := NewExecutionStore(c.Pool())
	ctx := context.Background()

	base := common.HexToAddress("0x00000000000000000000000000000000000000b1")
	tok := common.HexToAddress("0x00000000000000000000000000000000000000c1")
	neg, _ := new(big.Int).SetString("-340282366920938463463374607431768211456", 10)
	started := time.Now().UTC().Truncate(time.Microsecond)

	r := domain.ExecutionResult{
		ID:                     uuid.NewString(),
		Strategy:               "round_trip",
		Success:                true,
		GasUsed:                21000,
		Duration:               1500 * time.Millisecond,
		BaseAsset:              base,
		Profit:                 big.NewInt(7),
		AllBalancesNonNegative: false,
		Balances: []domain.TokenBalance{
			{Asset: base, Before: big.NewInt(100), After: big.NewInt(107), Delta: big.NewInt(7)},
			{Asset: tok, Before: big.NewInt(0), After: neg, Delta: neg},
		},
		Settled:       true,
		SettledProfit: big.NewInt(5),
		StartedAt:     started,
	}
	require.NoError(t, s.Create(ctx, r))

	got, err := s.GetByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.Strategy, got.Strategy)
	assert.Equal(t, r.GasUsed, got.GasUsed)
	assert.Equal(t, r.Duration, got.Duration)
	assert.Equal(t, base, got.BaseAsset)
	assert.Equal(t, 0, got.Profit.Cmp(r.Profit))
	assert.Equal(t, 0, got.SettledProfit.Cmp(r.SettledProfit))
	require.Len(t, got.Balances, 2)
	assert.Equal(t, tok, got.Balances[1].Asset)
	assert.Equal(t, 0, got.Balances[1].Delta.Cmp(neg))
	assert.True(t, got.StartedAt.Equal(started))

	failed := domain.ExecutionResult{
		ID: uuid.NewString(), Strategy: "revert", FailureKind: domain.FailureTextual, FailureReason: "X",
		BaseAsset: base, Profit: new(big.Int), AllBalancesNonNegative: true, StartedAt: started.Add(time.Second),
	}
	require.NoError(t, s.Create(ctx, failed))

	list, err := s.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, failed.ID, list[0].ID)
	assert.Nil(t, list[0].SettledProfit)

	st, err := s.Stats(ctx, started)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, st.Total, int64(2))
	assert.GreaterOrEqual(t, st.Succeeded, int64(1))

	_, err = s.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAuditStore(t *testing.T) {
	c := newTestClient(t)
	s := NewAuditStore(c.Pool())
	ctx := context.Background()

	since := time.Now().Add(-time.Second)
	event := "test_" + uuid.NewString()
	require.NoError(t, s.Log(ctx, event, map[string]any{"index": float64(3)}))

	entries, err := s.List(ctx, domain.ListOpts{Since: &since, Limit: 100})
	require.NoError(t, err)
	var found bool
	for _, e := range entries {
		if e.Event == event {
			found = true
			assert.Equal(t, float64(3), e.Detail["index"])
		}
	}
	assert.True(t, found)
}

func TestRegistryStore(t *testing.T) {
	c := newTestClient(t)
	s := NewRegistryStore(c.Pool())
	ctx := context.Background()

	v := domain.Venue{
		Name:          "uni",
		QuoteEndpoint: common.HexToAddress("0x7a250d5630b4cf539739df2c5dacb4c659f2488d"),
		RouteEndpoint: common.HexToAddress("0x5c69bee701ef814a2b6a3edd4b1652cb9cc5aa6f"),
		FeeBps:        30,
		Active:        true,
	}
	require.NoError(t, s.InsertVenue(ctx, 0, v))
	v.FeeBps = 25
	require.NoError(t, s.InsertVenue(ctx, 0, v))
	require.NoError(t, s.SetVenueActive(ctx, 0, false))
	assert.ErrorIs(t, s.SetVenueActive(ctx, 9999, true), domain.ErrNotFound)

	venues, err := s.ListVenues(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, venues)
	assert.Equal(t, uint32(25), venues[0].FeeBps)
	assert.False(t, venues[0].Active)
	assert.Equal(t, v.QuoteEndpoint, venues[0].QuoteEndpoint)

	a := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	b := common.HexToAddress("0x00000000000000000000000000000000000000a2")
	require.NoError(t, s.ReplaceIntermediates(ctx, []domain.Asset{b, a}))
	got, err := s.ListIntermediates(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.Asset{b, a}, got)

	require.NoError(t, s.ReplaceIntermediates(ctx, nil))
	got, err = s.ListIntermediates(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}
