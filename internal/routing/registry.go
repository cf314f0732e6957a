package routing

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/profitharness/internal/domain"
)

// MaxVenues is the registry capacity.
const MaxVenues = 10

// Option configures a Registry.
type Option func(*Registry)

// WithConcurrentQuotes fans quote requests out across venues. Selection is
// unchanged: the first strictly best venue in index order wins.
func WithConcurrentQuotes(enabled bool) Option {
	return func(r *Registry) { r.concurrent = enabled }
}

// Registry holds the ordered venue list and the intermediate assets used for
// two-hop routing. It is safe for concurrent use.
type Registry struct {
	resolver   domain.BackendResolver
	logger     *slog.Logger
	concurrent bool

	mu            sync.RWMutex
	venues        []domain.Venue
	intermediates []domain.Asset
}

// NewRegistry returns an empty registry resolving backends through resolver.
func NewRegistry(resolver domain.BackendResolver, logger *slog.Logger, opts ...Option) *Registry {
	r := &Registry{
		resolver: resolver,
		logger:   logger.With(slog.String("component", "venue_registry")),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// AddVenue appends v and returns its index.
func (r *Registry) AddVenue(v domain.Venue) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.venues) >= MaxVenues {
		return -1, fmt.Errorf("routing: add venue %q: %w", v.Name, domain.ErrRegistryFull)
	}
	r.venues = append(r.venues, v)
	idx := len(r.venues) - 1
	r.logger.Info("venue added",
		slog.Int("index", idx),
		slog.String("name", v.Name),
		slog.String("router", v.QuoteEndpoint.Hex()),
		slog.Bool("active", v.Active),
	)
	return idx, nil
}

// SetVenueActive toggles whether the venue at index takes part in searches.
func (r *Registry) SetVenueActive(index int, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index < 0 || index >= len(r.venues) {
		return fmt.Errorf("routing: set venue %d active: %w", index, domain.ErrVenueIndex)
	}
	r.venues[index].Active = active
	return nil
}

// AddIntermediateAsset appends a to the intermediate list, ignoring
// duplicates.
func (r *Registry) AddIntermediateAsset(a domain.Asset) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.intermediates {
		if m == a {
			return false
		}
	}
	r.intermediates = append(r.intermediates, a)
	return true
}

// ReplaceIntermediateAssets swaps in a new intermediate list, dropping
// duplicates while keeping first-seen order.
func (r *Registry) ReplaceIntermediateAssets(assets []domain.Asset) {
	seen := make(map[domain.Asset]struct{}, len(assets))
	next := make([]domain.Asset, 0, len(assets))
	for _, a := range assets {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		next = append(next, a)
	}
	r.mu.Lock()
	r.intermediates = next
	r.mu.Unlock()
}

// Venues returns a copy of the venue list in index order.
func (r *Registry) Venues() []domain.Venue {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Venue, len(r.venues))
	copy(out, r.venues)
	return out
}

// Venue returns the venue registered at index.
func (r *Registry) Venue(index int) (domain.Venue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if index < 0 || index >= len(r.venues) {
		return domain.Venue{}, fmt.Errorf("routing: venue %d: %w", index, domain.ErrVenueIndex)
	}
	return r.venues[index], nil
}

// Backend resolves the call surface of the venue at index.
func (r *Registry) Backend(index int) (domain.Venue, domain.VenueBackend, error) {
	v, err := r.Venue(index)
	if err != nil {
		return domain.Venue{}, nil, err
	}
	b, err := r.resolver.Resolve(v)
	if err != nil {
		return v, nil, fmt.Errorf("routing: resolve venue %d: %w", index, err)
	}
	return v, b, nil
}

// Intermediates returns a copy of the intermediate asset list.
func (r *Registry) Intermediates() []domain.Asset {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Asset, len(r.intermediates))
	copy(out, r.intermediates)
	return out
}

// BestQuote returns the quote with the strictly greatest output across all
// active venues. Ties keep the lower venue index. No route yields an empty
// quote.
func (r *Registry) BestQuote(ctx context.Context, in, out domain.Asset, amountIn *big.Int) domain.Quote {
	if in == out {
		return domain.IdentityQuote(amountIn)
	}
	quotes := r.collect(ctx, func(idx int, v domain.Venue, b domain.VenueBackend, mids []domain.Asset) domain.Quote {
		return QuoteVenue(ctx, b, idx, v, in, out, amountIn, mids)
	})
	best := domain.NoRoute(amountIn)
	for _, q := range quotes {
		if !q.Found() {
			continue
		}
		if !best.Found() || q.AmountOut.Cmp(best.AmountOut) > 0 {
			best = q
		}
	}
	return best
}

// BestQuoteForExactOutput returns the quote with the strictly smallest
// required input for amountOut across all active venues.
func (r *Registry) BestQuoteForExactOutput(ctx context.Context, in, out domain.Asset, amountOut *big.Int) domain.Quote {
	if in == out {
		return domain.IdentityQuote(amountOut)
	}
	quotes := r.collect(ctx, func(idx int, v domain.Venue, b domain.VenueBackend, mids []domain.Asset) domain.Quote {
		return QuoteVenueExactOut(ctx, b, idx, v, in, out, amountOut, mids)
	})
	best := domain.NoRoute(new(big.Int))
	for _, q := range quotes {
		if !q.Found() {
			continue
		}
		if !best.Found() || q.AmountIn.Cmp(best.AmountIn) < 0 {
			best = q
		}
	}
	return best
}

type quoteFn func(idx int, v domain.Venue, b domain.VenueBackend, mids []domain.Asset) domain.Quote

// quoteSafely runs fn, turning a panicking backend into no route for
// that venue.
func (r *Registry) quoteSafely(fn quoteFn, idx int, v domain.Venue, b domain.VenueBackend, mids []domain.Asset) (q domain.Quote) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("venue call panicked",
				slog.Int("index", idx),
				slog.String("name", v.Name),
				slog.Any("panic", rec),
			)
			q = domain.NoRoute(nil)
		}
	}()
	return fn(idx, v, b, mids)
}

// collect runs fn for every active venue and returns the per-venue results
// in index order. Venues whose backend cannot be resolved yield no route.
func (r *Registry) collect(ctx context.Context, fn quoteFn) []domain.Quote {
	r.mu.RLock()
	venues := make([]domain.Venue, len(r.venues))
	copy(venues, r.venues)
	mids := make([]domain.Asset, len(r.intermediates))
	copy(mids, r.intermediates)
	r.mu.RUnlock()

	results := make([]domain.Quote, len(venues))
	run := func(i int) {
		results[i] = domain.NoRoute(nil)
		v := venues[i]
		if !v.Active {
			return
		}
		b, err := r.resolver.Resolve(v)
		if err != nil {
			r.logger.Debug("venue unreachable",
				slog.Int("index", i),
				slog.String("name", v.Name),
				slog.String("error", err.Error()),
			)
			return
		}
		results[i] = r.quoteSafely(fn, i, v, b, mids)
	}

	if !r.concurrent || len(venues) < 2 {
		for i := range venues {
			run(i)
		}
		return results
	}

	var g errgroup.Group
	for i := range venues {
		g.Go(func() error {
			run(i)
			return nil
		})
	}
	_ = g.Wait()
	return results
}
