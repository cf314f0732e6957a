package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/profitharness/internal/domain"
)

// RegistryStore implements domain.RegistryStore using PostgreSQL. Venues are
// keyed by their registry index so a restart rebuilds the same identities.
type RegistryStore struct {
	pool *pgxpool.Pool
}

// NewRegistryStore creates a new RegistryStore backed by the given connection pool.
func NewRegistryStore(pool *pgxpool.Pool) *RegistryStore {
	return &RegistryStore{pool: pool}
}

// ListVenues returns every persisted venue in index order.
func (s *RegistryStore) ListVenues(ctx context.Context) ([]domain.Venue, error) {
	const query = `SELECT name, router, factory, fee_bps, active FROM venues ORDER BY idx`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list venues: %w", err)
	}
	venues, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Venue, error) {
		var v domain.Venue
		var router, factory string
		var fee int32
		if err := row.Scan(&v.Name, &router, &factory, &fee, &v.Active); err != nil {
			return v, err
		}
		v.QuoteEndpoint = common.HexToAddress(router)
		v.RouteEndpoint = common.HexToAddress(factory)
		v.FeeBps = uint32(fee)
		return v, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: list venues: %w", err)
	}
	return venues, nil
}

// InsertVenue writes v at index, replacing whatever was stored there.
func (s *RegistryStore) InsertVenue(ctx context.Context, index int, v domain.Venue) error {
	const query = `
		INSERT INTO venues (idx, name, router, factory, fee_bps, active, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (idx) DO UPDATE SET
			name       = EXCLUDED.name,
			router     = EXCLUDED.router,
			factory    = EXCLUDED.factory,
			fee_bps    = EXCLUDED.fee_bps,
			active     = EXCLUDED.active,
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query, index, v.Name, v.QuoteEndpoint.Hex(), v.RouteEndpoint.Hex(), int32(v.FeeBps), v.Active)
	if err != nil {
		return fmt.Errorf("postgres: insert venue %d: %w", index, err)
	}
	return nil
}

// SetVenueActive flips the active flag of the venue at index.
func (s *RegistryStore) SetVenueActive(ctx context.Context, index int, active bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE venues SET active = $2, updated_at = NOW() WHERE idx = $1`, index, active)
	if err != nil {
		return fmt.Errorf("postgres: set venue %d active: %w", index, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListIntermediates returns the intermediate assets in their configured order.
func (s *RegistryStore) ListIntermediates(ctx context.Context) ([]domain.Asset, error) {
	rows, err := s.pool.Query(ctx, `SELECT asset FROM intermediate_assets ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list intermediates: %w", err)
	}
	hexes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres: list intermediates: %w", err)
	}
	out := make([]domain.Asset, len(hexes))
	for i, h := range hexes {
		out[i] = common.HexToAddress(h)
	}
	return out, nil
}

// ReplaceIntermediates swaps the stored list for assets in one transaction.
func (s *RegistryStore) ReplaceIntermediates(ctx context.Context, assets []domain.Asset) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM intermediate_assets`); err != nil {
		return fmt.Errorf("postgres: clear intermediates: %w", err)
	}
	rows := make([][]any, len(assets))
	for i, a := range assets {
		rows[i] = []any{i, a.Hex()}
	}
	if len(rows) > 0 {
		_, err := tx.CopyFrom(ctx, pgx.Identifier{"intermediate_assets"}, []string{"position", "asset"}, pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("postgres: insert intermediates: %w", err)
		}
	}
	return tx.Commit(ctx)
}

var _ domain.RegistryStore = (*RegistryStore)(nil)
