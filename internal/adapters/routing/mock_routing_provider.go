package routing

import (
	"context"
	"field-route-service/internal/domain"
	"field-route-service/internal/ports"
	"fmt"
	"sync"
	"time"
)

// MockRoutingProvider returns synthetic routes with one leg per waypoint plus a return leg.
// Leg i uses LegDurations[i] when present, otherwise LegDuration.
type MockRoutingProvider struct {
	LegDuration   time.Duration
	LegDurations  []time.Duration
	LegMeters     int
	OmitReturnLeg bool
	Err           error

	mu       sync.Mutex
	requests []ports.RouteRequest
}

func NewMockRoutingProvider(legDuration time.Duration, legMeters int) *MockRoutingProvider {
	return &MockRoutingProvider{LegDuration: legDuration, LegMeters: legMeters}
}

func (p *MockRoutingProvider) ComputeRoute(ctx context.Context, req ports.RouteRequest) (*ports.RouteResult, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	if p.Err != nil {
		return nil, p.Err
	}
	if len(req.Waypoints) == 0 {
		return nil, fmt.Errorf("mock compute route: %w", domain.ErrNoRouteFound)
	}

	n := len(req.Waypoints) + 1
	if p.OmitReturnLeg {
		n--
	}

	res := &ports.RouteResult{EncodedPolyline: "mock_polyline", RawResponse: []byte(`{"routes":[{}]}`)}
	for i := 0; i < n; i++ {
		d := p.LegDuration
		if i < len(p.LegDurations) {
			d = p.LegDurations[i]
		}
		res.Legs = append(res.Legs, domain.Leg{DistanceMeters: p.LegMeters, Duration: d})
		res.DistanceMeters += p.LegMeters
		res.Duration += d
	}

	return res, nil
}

func (p *MockRoutingProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

func (p *MockRoutingProvider) Requests() []ports.RouteRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ports.RouteRequest(nil), p.requests...)
}
