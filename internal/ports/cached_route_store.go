package ports

import (
	"context"
	"field-route-service/internal/domain"
)

// Port: content-addressed storage for routing provider results.
type CachedRouteStore interface {
	// Return the cached route stored under hash, or (nil, nil) when absent.
	FindByHash(ctx context.Context, hash string) (*domain.CachedRoute, error)
	// Persist route and populate its CachedRouteID and CreatedAt.
	// If another writer already stored the same hash, route is overwritten with the stored row.
	Create(ctx context.Context, route *domain.CachedRoute) error
}
