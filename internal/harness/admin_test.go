package harness

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/profitharness/internal/domain"
)

type memAudit struct {
	events []string
}

func (a *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.events = append(a.events, event)
	return nil
}

func (a *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

type memRegistryStore struct {
	venues        map[int]domain.Venue
	intermediates []domain.Asset
}

func (s *memRegistryStore) ListVenues(context.Context) ([]domain.Venue, error) { return nil, nil }

func (s *memRegistryStore) InsertVenue(_ context.Context, idx int, v domain.Venue) error {
	if s.venues == nil {
		s.venues = map[int]domain.Venue{}
	}
	s.venues[idx] = v
	return nil
}

func (s *memRegistryStore) SetVenueActive(_ context.Context, idx int, active bool) error {
	v := s.venues[idx]
	v.Active = active
	s.venues[idx] = v
	return nil
}

func (s *memRegistryStore) ListIntermediates(context.Context) ([]domain.Asset, error) {
	return s.intermediates, nil
}

func (s *memRegistryStore) ReplaceIntermediates(_ context.Context, assets []domain.Asset) error {
	s.intermediates = assets
	return nil
}

var stranger = common.HexToAddress("0x00000000000000000000000000000000000000ff")

func TestAdminRequiresAdmin(t *testing.T) {
	audit := &memAudit{}
	f := newFixture(t, Config{}, Deps{Audit: audit})
	ctx := context.Background()

	_, err := f.h.AddVenue(ctx, stranger, domain.Venue{Name: "x"})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.ErrorIs(t, f.h.SetVenueActive(ctx, stranger, 0, true), domain.ErrUnauthorized)
	assert.ErrorIs(t, f.h.AddIntermediateAsset(ctx, stranger, tokX), domain.ErrUnauthorized)
	assert.ErrorIs(t, f.h.ReplaceIntermediateAssets(ctx, stranger, nil), domain.ErrUnauthorized)
	assert.ErrorIs(t, f.h.AddTrackedAssets(ctx, stranger, tokX), domain.ErrUnauthorized)
	assert.ErrorIs(t, f.h.SetBaseAsset(ctx, stranger, tokX), domain.ErrUnauthorized)
	_, err = f.h.Withdraw(ctx, stranger, base, stranger, nil)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	assert.Empty(t, audit.events)
	assert.Empty(t, f.registry.Venues())
	assert.Equal(t, []domain.Asset{base}, f.h.Tracker().Assets())
}

func TestAdminMutationsPersistAndAudit(t *testing.T) {
	audit := &memAudit{}
	store := &memRegistryStore{}
	f := newFixture(t, Config{}, Deps{Audit: audit, RegistryStore: store})
	ctx := context.Background()

	idx, err := f.h.AddVenue(ctx, admin, domain.Venue{Name: "uni", QuoteEndpoint: router0, FeeBps: 30, Active: true})
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	require.NoError(t, f.h.SetVenueActive(ctx, admin, 0, false))
	assert.ErrorIs(t, f.h.SetVenueActive(ctx, admin, 4, false), domain.ErrVenueIndex)
	require.NoError(t, f.h.AddIntermediateAsset(ctx, admin, tokX))
	require.NoError(t, f.h.ReplaceIntermediateAssets(ctx, admin, []domain.Asset{tokY, tokX, tokY}))

	assert.False(t, store.venues[0].Active)
	assert.Equal(t, []domain.Asset{tokY, tokX}, store.intermediates)
	assert.Equal(t, []string{"venue_added", "venue_active_set", "intermediate_added", "intermediates_replaced"}, audit.events)
}

func TestSetBaseAsset(t *testing.T) {
	f := newFixture(t, Config{}, Deps{})
	ctx := context.Background()
	require.NoError(t, f.h.AddTrackedAssets(ctx, admin, tokX))
	require.NoError(t, f.h.SetBaseAsset(ctx, admin, tokX))
	assert.Equal(t, []domain.Asset{tokX, base}, f.h.Tracker().Assets())

	res, err := f.h.ExecuteStrategy(ctx, mint(f.ledger, tokX, 9))
	require.NoError(t, err)
	assert.Equal(t, tokX, res.BaseAsset)
	assert.Equal(t, int64(9), res.Profit.Int64())
}

func TestWithdraw(t *testing.T) {
	f := newFixture(t, Config{}, Deps{})
	ctx := context.Background()
	require.NoError(t, f.ledger.Mint(base, account, big.NewInt(100)))
	require.NoError(t, f.ledger.Mint(domain.NativeAsset, account, big.NewInt(5)))

	got, err := f.h.Withdraw(ctx, admin, base, admin, big.NewInt(30))
	require.NoError(t, err)
	assert.Equal(t, int64(30), got.Int64())

	got, err = f.h.Withdraw(ctx, admin, base, admin, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(70), got.Int64())

	got, err = f.h.Withdraw(ctx, admin, domain.NativeAsset, admin, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Int64())

	held, _ := f.ledger.BalanceOf(ctx, base, admin)
	assert.Equal(t, int64(100), held.Int64())

	_, err = f.h.Withdraw(ctx, admin, base, admin, big.NewInt(1))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
}
