package services

import (
	"context"
	"errors"
	"field-route-service/internal/domain"
	"field-route-service/internal/adapters/routing"
	"field-route-service/internal/ports"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRoutingCacheResolveIsOrderIndependent(t *testing.T) {
	e := newEngine()
	m1 := fieldMeeting(1, 1, 9, 0, 60)
	m2 := fieldMeeting(2, 1, 13, 0, 60)

	first, err := e.cache.Resolve(context.Background(), []*domain.Meeting{m1, m2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := e.cache.Resolve(context.Background(), []*domain.Meeting{m2, m1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if e.provider.Calls() != 1 {
		t.Fatalf("provider calls = %d, want 1", e.provider.Calls())
	}
	if first == nil || second == nil {
		t.Fatalf("expected cached routes, got %v and %v", first, second)
	}
	if first.CachedRouteID != second.CachedRouteID {
		t.Fatalf("cached route ids = %d and %d, want equal", first.CachedRouteID, second.CachedRouteID)
	}
	if e.cached.Len() != 1 {
		t.Fatalf("stored cached routes = %d, want 1", e.cached.Len())
	}
}

func TestRoutingCacheCallsProviderInSuppliedOrder(t *testing.T) {
	e := newEngine()
	late := fieldMeeting(1, 1, 15, 0, 30)
	early := fieldMeeting(2, 1, 9, 0, 30)

	if _, err := e.cache.Resolve(context.Background(), []*domain.Meeting{early, late}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reqs := e.provider.Requests()
	if len(reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(reqs))
	}
	req := reqs[0]
	if req.Origin != testOffice.Coordinates || req.Destination != testOffice.Coordinates {
		t.Fatalf("origin/destination = %v/%v, want office %v", req.Origin, req.Destination, testOffice.Coordinates)
	}
	if len(req.Waypoints) != 2 {
		t.Fatalf("waypoints = %d, want 2", len(req.Waypoints))
	}
	if req.Waypoints[0] != early.Location.Coordinates || req.Waypoints[1] != late.Location.Coordinates {
		t.Fatalf("waypoints = %v, want early then late", req.Waypoints)
	}
}

func TestRoutingCacheProviderFailureIsMiss(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"upstream", fmt.Errorf("compute route: status 503: %w", domain.ErrUpstreamUnavailable)},
		{"no route", fmt.Errorf("compute route: %w", domain.ErrNoRouteFound)},
		{"timeout", context.DeadlineExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine()
			e.provider.Err = tt.err

			cr, err := e.cache.Resolve(context.Background(), []*domain.Meeting{fieldMeeting(1, 1, 9, 0, 60)})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cr != nil {
				t.Fatalf("expected miss, got cached route %d", cr.CachedRouteID)
			}
			if e.cached.Len() != 0 {
				t.Fatalf("stored cached routes = %d, want 0", e.cached.Len())
			}
		})
	}
}

func TestRoutingCacheRejectsEmptyMeetings(t *testing.T) {
	e := newEngine()

	_, err := e.cache.Resolve(context.Background(), nil)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	if e.provider.Calls() != 0 {
		t.Fatalf("provider calls = %d, want 0", e.provider.Calls())
	}
}

type brokenStore struct{}

func (brokenStore) FindByHash(ctx context.Context, hash string) (*domain.CachedRoute, error) {
	return nil, errors.New("connection refused")
}

func (brokenStore) Create(ctx context.Context, route *domain.CachedRoute) error {
	return errors.New("connection refused")
}

func TestRoutingCacheStoreFailureIsPersistenceError(t *testing.T) {
	e := newEngine()
	cache := NewRoutingCache(brokenStore{}, e.provider, testOffice)

	_, err := cache.Resolve(context.Background(), []*domain.Meeting{fieldMeeting(1, 1, 9, 0, 60)})
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("err = %v, want ErrPersistence", err)
	}
}

func TestRoutingCacheConcurrentResolvesCallOnce(t *testing.T) {
	e := newEngine()
	meetings := []*domain.Meeting{fieldMeeting(1, 1, 9, 0, 60), fieldMeeting(2, 2, 11, 0, 60)}

	var wg sync.WaitGroup
	ids := make([]int64, 8)
	for i := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cr, err := e.cache.Resolve(context.Background(), meetings)
			if err != nil || cr == nil {
				return
			}
			ids[i] = cr.CachedRouteID
		}()
	}
	wg.Wait()

	if e.provider.Calls() != 1 {
		t.Fatalf("provider calls = %d, want 1", e.provider.Calls())
	}
	for i, id := range ids {
		if id != ids[0] || id == 0 {
			t.Fatalf("ids[%d] = %d, want %d", i, id, ids[0])
		}
	}
}

// gatedProvider holds every call until release is closed or the call's ctx ends.
type gatedProvider struct {
	*routing.MockRoutingProvider
	entered chan struct{}
	release chan struct{}
	calls   atomic.Int32
	once    sync.Once
}

func newGatedProvider() *gatedProvider {
	return &gatedProvider{
		MockRoutingProvider: routing.NewMockRoutingProvider(20*time.Minute, 5000),
		entered:             make(chan struct{}),
		release:             make(chan struct{}),
	}
}

func (p *gatedProvider) ComputeRoute(ctx context.Context, req ports.RouteRequest) (*ports.RouteResult, error) {
	p.calls.Add(1)
	p.once.Do(func() { close(p.entered) })

	select {
	case <-p.release:
	case <-ctx.Done():
		return nil, fmt.Errorf("gated compute route: %w: %w", domain.ErrUpstreamUnavailable, ctx.Err())
	}
	return p.MockRoutingProvider.ComputeRoute(ctx, req)
}

func TestRoutingCacheCancelledCallerDoesNotFailOthers(t *testing.T) {
	e := newEngine()
	provider := newGatedProvider()
	cache := NewRoutingCache(e.cached, provider, testOffice)
	meetings := []*domain.Meeting{fieldMeeting(1, 1, 9, 0, 60), fieldMeeting(2, 2, 11, 0, 60)}

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := cache.Resolve(firstCtx, meetings)
		firstErr <- err
	}()

	<-provider.entered
	cancel()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller err = %v, want context.Canceled", err)
	}

	type result struct {
		cr  *domain.CachedRoute
		err error
	}
	second := make(chan result, 1)
	go func() {
		cr, err := cache.Resolve(context.Background(), meetings)
		second <- result{cr, err}
	}()

	time.Sleep(20 * time.Millisecond)
	close(provider.release)

	got := <-second
	if got.err != nil {
		t.Fatalf("live caller err = %v", got.err)
	}
	if got.cr == nil {
		t.Fatalf("live caller got a miss, want the shared cached route")
	}
	if n := provider.calls.Load(); n != 1 {
		t.Fatalf("provider calls = %d, want 1", n)
	}
	if e.cached.Len() != 1 {
		t.Fatalf("stored cached routes = %d, want 1", e.cached.Len())
	}
}

func TestWaypointsHash(t *testing.T) {
	m1 := fieldMeeting(1, 1, 9, 0, 60)
	m2 := fieldMeeting(2, 1, 13, 0, 60)
	m3 := fieldMeeting(3, 1, 15, 0, 60)

	a, err := WaypointsHash([]*domain.Meeting{m1, m2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := WaypointsHash([]*domain.Meeting{m2, m1})
	c, _ := WaypointsHash([]*domain.Meeting{m1, m3})

	if a != b {
		t.Fatalf("hash depends on order: %s != %s", a, b)
	}
	if a == c {
		t.Fatalf("different waypoint sets share hash %s", a)
	}
	if len(a) != 64 {
		t.Fatalf("hash length = %d, want 64", len(a))
	}
}
