package routing

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/profitharness/internal/domain"
)

// StaticResolver maps venues to backends by their quote endpoint.
type StaticResolver struct {
	mu       sync.RWMutex
	backends map[common.Address]domain.VenueBackend
}

// NewStaticResolver returns an empty resolver.
func NewStaticResolver() *StaticResolver {
	return &StaticResolver{backends: make(map[common.Address]domain.VenueBackend)}
}

// Bind registers b as the backend for venues quoting through endpoint.
func (s *StaticResolver) Bind(endpoint common.Address, b domain.VenueBackend) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backends[endpoint] = b
}

// Resolve returns the backend bound to v's quote endpoint.
func (s *StaticResolver) Resolve(v domain.Venue) (domain.VenueBackend, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.backends[v.QuoteEndpoint]
	if !ok {
		return nil, fmt.Errorf("venue %q (%s): %w", v.Name, v.QuoteEndpoint.Hex(), domain.ErrNotFound)
	}
	return b, nil
}

var _ domain.BackendResolver = (*StaticResolver)(nil)
