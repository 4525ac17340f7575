package ports

import (
	"context"
	"field-route-service/internal/domain"
	"time"
)

// RouteRequest describes an ordered trip: origin, then every waypoint, then destination.
type RouteRequest struct {
	Origin      domain.Coordinates
	Destination domain.Coordinates
	Waypoints   []domain.Coordinates
}

// RouteResult is a provider answer converted to domain units.
type RouteResult struct {
	DistanceMeters  int
	Duration        time.Duration
	EncodedPolyline string
	Legs            []domain.Leg
	RawResponse     []byte
}

// Contract for computing a driving route through ordered waypoints.
// Failures wrap domain.ErrUpstreamUnavailable or domain.ErrNoRouteFound.
type RoutingProvider interface {
	ComputeRoute(ctx context.Context, req RouteRequest) (*RouteResult, error)
}
