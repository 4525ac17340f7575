package memory

import (
	"context"
	"field-route-service/internal/domain"
	"sync"
	"time"
)

// CachedRouteStore keeps cached routes in a map keyed by waypoint hash.
type CachedRouteStore struct {
	mu     sync.RWMutex
	byHash map[string]*domain.CachedRoute
	nextID int64
}

func NewCachedRouteStore() *CachedRouteStore {
	return &CachedRouteStore{byHash: make(map[string]*domain.CachedRoute)}
}

func (s *CachedRouteStore) FindByHash(ctx context.Context, hash string) (*domain.CachedRoute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cr, ok := s.byHash[hash]
	if !ok {
		return nil, nil
	}
	cp := *cr
	return &cp, nil
}

func (s *CachedRouteStore) Create(ctx context.Context, route *domain.CachedRoute) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byHash[route.WaypointsHash]; ok {
		*route = *existing
		return nil
	}

	s.nextID++
	route.CachedRouteID = s.nextID
	route.CreatedAt = time.Now().UTC()

	cp := *route
	s.byHash[route.WaypointsHash] = &cp
	return nil
}

func (s *CachedRouteStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byHash)
}
