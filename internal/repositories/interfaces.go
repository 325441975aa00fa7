package repositories

import (
	"context"

	domain "github.com/evergrove/storefront/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	GuestCarts() GuestCartRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// HealthRepository aggregates dependency probes for readiness reporting.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// GuestCartRepository persists the guest cart item list for an anonymous
// session under a single versioned key.
//
// Load treats a missing or unparsable stored value as an empty cart and never
// surfaces it as an error; only genuine storage failures (unreadable backing
// store, connection loss) are returned, categorised as RepositoryError.
type GuestCartRepository interface {
	Load(ctx context.Context, sessionID string) ([]domain.CartItem, error)
	Save(ctx context.Context, sessionID string, items []domain.CartItem) error
	Delete(ctx context.Context, sessionID string) error
}
