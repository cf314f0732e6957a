package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// ExecutionStore persists execution results and their balance rows.
type ExecutionStore interface {
	Create(ctx context.Context, r ExecutionResult) error
	GetByID(ctx context.Context, id string) (ExecutionResult, error)
	ListRecent(ctx context.Context, limit int) ([]ExecutionResult, error)
	Stats(ctx context.Context, since time.Time) (ExecutionStats, error)
}

// RegistryStore persists venue registry and intermediate-asset state.
type RegistryStore interface {
	ListVenues(ctx context.Context) ([]Venue, error)
	InsertVenue(ctx context.Context, index int, v Venue) error
	SetVenueActive(ctx context.Context, index int, active bool) error
	ListIntermediates(ctx context.Context) ([]Asset, error)
	ReplaceIntermediates(ctx context.Context, assets []Asset) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
