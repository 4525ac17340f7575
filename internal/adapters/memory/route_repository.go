package memory

import (
	"context"
	"field-route-service/internal/domain"
	"field-route-service/internal/ports"
	"fmt"
	"slices"
	"sync"
	"time"
)

// RouteRepository stores routes and stops in memory.
// WithinTx stages writes and applies them only when fn succeeds.
type RouteRepository struct {
	mu         sync.RWMutex
	routes     map[int64]*domain.Route
	nextRoute  int64
	nextStop   int64
	cachedByID func(id int64) *domain.CachedRoute
}

func NewRouteRepository() *RouteRepository {
	return &RouteRepository{routes: make(map[int64]*domain.Route)}
}

// WithCachedRoutes lets reads attach cached route summaries from store.
func (r *RouteRepository) WithCachedRoutes(store *CachedRouteStore) *RouteRepository {
	r.cachedByID = func(id int64) *domain.CachedRoute {
		store.mu.RLock()
		defer store.mu.RUnlock()
		for _, cr := range store.byHash {
			if cr.CachedRouteID == id {
				return &domain.CachedRoute{
					CachedRouteID:       cr.CachedRouteID,
					TotalDistanceMeters: cr.TotalDistanceMeters,
					TotalDuration:       cr.TotalDuration,
					EncodedPolyline:     cr.EncodedPolyline,
				}
			}
		}
		return nil
	}
	return r
}

type txWriter struct {
	repo   *RouteRepository
	staged []*domain.Route
	byID   map[int64]*domain.Route
}

func (w *txWriter) CreateRoute(ctx context.Context, route *domain.Route) error {
	w.repo.mu.Lock()
	w.repo.nextRoute++
	route.RouteID = w.repo.nextRoute
	w.repo.mu.Unlock()

	route.CreatedAt = time.Now().UTC()

	cp := *route
	cp.Stops = nil
	w.staged = append(w.staged, &cp)
	w.byID[cp.RouteID] = &cp
	return nil
}

func (w *txWriter) CreateStops(ctx context.Context, routeID int64, stops []domain.Stop) error {
	staged, ok := w.byID[routeID]
	if !ok {
		return fmt.Errorf("create stops: route %d not created in this transaction: %w", routeID, domain.ErrPersistence)
	}

	w.repo.mu.Lock()
	for i := range stops {
		w.repo.nextStop++
		stops[i].StopID = w.repo.nextStop
		stops[i].RouteID = routeID
	}
	w.repo.mu.Unlock()

	staged.Stops = append(staged.Stops, stops...)
	return nil
}

func (r *RouteRepository) WithinTx(ctx context.Context, fn func(w ports.RouteWriter) error) error {
	w := &txWriter{repo: r, byID: make(map[int64]*domain.Route)}
	if err := fn(w); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, route := range w.staged {
		r.routes[route.RouteID] = route
	}
	return nil
}

func (r *RouteRepository) clone(route *domain.Route) *domain.Route {
	cp := *route
	cp.Stops = append([]domain.Stop(nil), route.Stops...)
	cp.StopCount = len(route.Stops)
	if r.cachedByID != nil {
		cp.CachedRoute = r.cachedByID(route.CachedRouteID)
	}
	return &cp
}

func (r *RouteRepository) sorted(match func(*domain.Route) bool) []*domain.Route {
	out := make([]*domain.Route, 0)
	for _, route := range r.routes {
		if match(route) {
			out = append(out, route)
		}
	}
	slices.SortFunc(out, func(a, b *domain.Route) int {
		return compareInt64(a.RouteID, b.RouteID)
	})
	return out
}

func (r *RouteRepository) ListByDate(
	ctx context.Context,
	date time.Time,
	page ports.Page,
) ([]*domain.Route, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := r.sorted(func(route *domain.Route) bool { return sameDay(route.RouteDate, date) })
	total := len(all)

	start := min(page.Offset(), total)
	end := min(start+page.PerPage, total)

	out := make([]*domain.Route, 0, end-start)
	for _, route := range all[start:end] {
		cp := r.clone(route)
		cp.Stops = nil
		out = append(out, cp)
	}
	return out, total, nil
}

func (r *RouteRepository) GetRoute(ctx context.Context, routeID int64) (*domain.Route, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	route, ok := r.routes[routeID]
	if !ok {
		return nil, fmt.Errorf("get route %d: %w", routeID, domain.ErrNotFound)
	}
	return r.clone(route), nil
}

func (r *RouteRepository) ListCarpool(ctx context.Context, route *domain.Route) ([]*domain.Route, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var linked []*domain.Route
	switch {
	case route.IsLead():
		linked = r.sorted(func(other *domain.Route) bool {
			return other.LeadRouteID != nil && *other.LeadRouteID == route.RouteID
		})
	case route.IsPassenger():
		if lead, ok := r.routes[*route.LeadRouteID]; ok {
			linked = []*domain.Route{lead}
		}
	}

	out := make([]*domain.Route, 0, len(linked))
	for _, l := range linked {
		cp := r.clone(l)
		cp.Stops = nil
		out = append(out, cp)
	}
	return out, nil
}

func (r *RouteRepository) FindUserRoute(
	ctx context.Context,
	userID int64,
	date time.Time,
	status domain.RouteStatus,
) (*domain.Route, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matches := r.sorted(func(route *domain.Route) bool {
		return route.UserID == userID && route.Status == status && sameDay(route.RouteDate, date)
	})
	if len(matches) == 0 {
		return nil, nil
	}
	return r.clone(matches[0]), nil
}

func (r *RouteRepository) TransitionStatus(ctx context.Context, routeID int64, status domain.RouteStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	route, ok := r.routes[routeID]
	if !ok {
		return fmt.Errorf("transition route %d: %w", routeID, domain.ErrNotFound)
	}
	if !route.Status.CanTransitionTo(status) {
		return fmt.Errorf("transition route %d from %s to %s: %w", routeID, route.Status, status, domain.ErrInvalidTransition)
	}
	route.Status = status
	return nil
}

func (r *RouteRepository) DeleteRoute(ctx context.Context, routeID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.routes[routeID]; !ok {
		return fmt.Errorf("delete route %d: %w", routeID, domain.ErrNotFound)
	}

	delete(r.routes, routeID)
	for id, route := range r.routes {
		if route.LeadRouteID != nil && *route.LeadRouteID == routeID {
			delete(r.routes, id)
		}
	}
	return nil
}

// Len returns the number of committed routes.
func (r *RouteRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.routes)
}
