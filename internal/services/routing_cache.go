package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"field-route-service/internal/domain"
	"field-route-service/internal/platform/metrics"
	"field-route-service/internal/platform/obs"
	"field-route-service/internal/ports"
	"fmt"
	"slices"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Upper bound for one shared lookup, covering provider retries and rate limit waits.
const sharedResolveTimeout = 2 * time.Minute

// RoutingCache resolves a set of meetings to a provider route, calling the
// provider only when no route is stored for the same waypoint set.
//
// The cache key is order-independent (meetings sorted by id) while the provider
// is called with meetings in the order given. A cached route therefore carries
// the leg order of the call that created it.
type RoutingCache struct {
	store    ports.CachedRouteStore
	provider ports.RoutingProvider
	office   domain.Location
	flight   singleflight.Group
}

func NewRoutingCache(store ports.CachedRouteStore, provider ports.RoutingProvider, office domain.Location) *RoutingCache {
	return &RoutingCache{store: store, provider: provider, office: office}
}

type hashPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// WaypointsHash returns the hex SHA-256 of the meetings' coordinates taken in meeting id order.
func WaypointsHash(meetings []*domain.Meeting) (string, error) {
	sorted := slices.Clone(meetings)
	slices.SortStableFunc(sorted, func(a, b *domain.Meeting) int {
		return cmpInt64(a.MeetingID, b.MeetingID)
	})

	points := make([]hashPoint, 0, len(sorted))
	for _, m := range sorted {
		points = append(points, hashPoint{Lat: m.Location.Lat, Lng: m.Location.Lon})
	}

	b, err := json.Marshal(points)
	if err != nil {
		return "", fmt.Errorf("waypoints hash: marshal: %w", err)
	}

	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Resolve returns the cached route for meetings, fetching and storing it on a miss.
// A provider failure is a miss: (nil, nil) is returned and nothing is stored.
// Store failures are returned wrapped in domain.ErrPersistence. Concurrent resolves of one
// waypoint set share a single lookup, which keeps running when the caller that started it goes away.
func (c *RoutingCache) Resolve(ctx context.Context, meetings []*domain.Meeting) (_ *domain.CachedRoute, err error) {
	defer obs.Time(ctx, "routing_cache.Resolve")(&err)

	if len(meetings) == 0 {
		return nil, fmt.Errorf("resolve route: no meetings: %w", domain.ErrValidation)
	}

	hash, err := WaypointsHash(meetings)
	if err != nil {
		return nil, fmt.Errorf("resolve route: %w", err)
	}

	// The shared lookup is detached from the caller that started it and bounded on its own.
	ch := c.flight.DoChan(hash, func() (any, error) {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedResolveTimeout)
		defer cancel()
		return c.resolve(sctx, hash, meetings)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("resolve route: %w", ctx.Err())
	case res := <-ch:
		if res.Shared {
			metrics.RoutingCacheLookups.WithLabelValues("shared").Inc()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		cr, _ := res.Val.(*domain.CachedRoute)
		return cr, nil
	}
}

func (c *RoutingCache) resolve(ctx context.Context, hash string, meetings []*domain.Meeting) (*domain.CachedRoute, error) {
	logger := zerolog.Ctx(ctx)

	existing, err := c.store.FindByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("resolve route: find cached route: %w: %w", domain.ErrPersistence, err)
	}
	if existing != nil {
		metrics.RoutingCacheLookups.WithLabelValues("hit").Inc()
		logger.Debug().Int64("cached_route_id", existing.CachedRouteID).Str("hash", hash).Msg("reusing cached route")
		return existing, nil
	}
	metrics.RoutingCacheLookups.WithLabelValues("miss").Inc()

	req := ports.RouteRequest{
		Origin:      c.office.Coordinates,
		Destination: c.office.Coordinates,
		Waypoints:   make([]domain.Coordinates, 0, len(meetings)),
	}
	for _, m := range meetings {
		req.Waypoints = append(req.Waypoints, m.Location.Coordinates)
	}

	res, err := c.provider.ComputeRoute(ctx, req)
	if err != nil {
		if domain.IsMiss(err) || errors.Is(err, context.DeadlineExceeded) {
			logger.Warn().Err(err).Str("hash", hash).Int("waypoints", len(meetings)).Msg("routing provider miss")
			return nil, nil
		}
		return nil, fmt.Errorf("resolve route: compute route: %w", err)
	}

	cr := &domain.CachedRoute{
		WaypointsHash:       hash,
		RawResponse:         res.RawResponse,
		TotalDistanceMeters: res.DistanceMeters,
		TotalDuration:       res.Duration,
		EncodedPolyline:     res.EncodedPolyline,
		Legs:                res.Legs,
	}
	if err := c.store.Create(ctx, cr); err != nil {
		return nil, fmt.Errorf("resolve route: store cached route: %w: %w", domain.ErrPersistence, err)
	}

	logger.Info().Int64("cached_route_id", cr.CachedRouteID).Str("hash", hash).Msg("created cached route")
	return cr, nil
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
