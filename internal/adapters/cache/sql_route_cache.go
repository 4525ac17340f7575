package cache

import (
	"context"
	"database/sql"
	"errors"
	"field-route-service/internal/domain"
	"field-route-service/internal/platform/obs"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// SQLRouteCache stores routing provider results in the cached_routes table, keyed by waypoint hash.
type SQLRouteCache struct {
	DB *sql.DB
}

func NewSQLRouteCache(db *sql.DB) *SQLRouteCache {
	return &SQLRouteCache{DB: db}
}

type legRecord struct {
	DistanceMeters  int   `json:"distance_meters"`
	DurationSeconds int64 `json:"duration_seconds"`
}

const selectCachedRoute = `
	SELECT cached_route_id, waypoints_hash, raw_response, total_distance_meters,
		total_duration_seconds, encoded_polyline, legs, created_at
	FROM cached_routes
	WHERE waypoints_hash = $1;
`

// Fetch the cached route for hash, or (nil, nil) when none is stored.
func (s *SQLRouteCache) FindByHash(ctx context.Context, hash string) (_ *domain.CachedRoute, err error) {
	defer obs.Time(ctx, "route.cache.FindByHash")(&err)

	if s.DB == nil {
		return nil, errors.New("route cache: db is nil")
	}
	if strings.TrimSpace(hash) == "" {
		return nil, errors.New("find cached route: hash must not be empty")
	}

	cr, err := scanCachedRoute(s.DB.QueryRowContext(ctx, selectCachedRoute, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find cached route: %w", err)
	}
	return cr, nil
}

// Insert route. When another writer stored the same hash first, the insert is skipped
// and route is replaced with the stored row.
func (s *SQLRouteCache) Create(ctx context.Context, route *domain.CachedRoute) (err error) {
	defer obs.Time(ctx, "route.cache.Create")(&err)

	if s.DB == nil {
		return errors.New("route cache: db is nil")
	}
	if strings.TrimSpace(route.WaypointsHash) == "" {
		return errors.New("insert cached route: hash must not be empty")
	}

	legs := make([]legRecord, 0, len(route.Legs))
	for _, l := range route.Legs {
		legs = append(legs, legRecord{DistanceMeters: l.DistanceMeters, DurationSeconds: int64(l.Duration / time.Second)})
	}
	legsJSON, err := json.Marshal(legs)
	if err != nil {
		return fmt.Errorf("insert cached route: marshal legs: %w", err)
	}

	raw := route.RawResponse
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	q := `
	INSERT INTO cached_routes (waypoints_hash, raw_response, total_distance_meters,
		total_duration_seconds, encoded_polyline, legs)
	VALUES ($1, $2::jsonb, $3, $4, $5, $6::jsonb)
	ON CONFLICT (waypoints_hash) DO NOTHING
	RETURNING cached_route_id, created_at;
	`

	err = s.DB.QueryRowContext(ctx, q,
		route.WaypointsHash,
		string(raw),
		route.TotalDistanceMeters,
		int64(route.TotalDuration/time.Second),
		route.EncodedPolyline,
		string(legsJSON),
	).Scan(&route.CachedRouteID, &route.CreatedAt)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("insert cached route: %w", err)
	}

	// Lost the race for this hash; adopt the stored row.
	stored, err := scanCachedRoute(s.DB.QueryRowContext(ctx, selectCachedRoute, route.WaypointsHash))
	if err != nil {
		return fmt.Errorf("insert cached route: reselect after conflict: %w", err)
	}
	*route = *stored
	return nil
}

func scanCachedRoute(row *sql.Row) (*domain.CachedRoute, error) {
	var (
		cr       domain.CachedRoute
		seconds  int64
		legsJSON []byte
	)
	if err := row.Scan(
		&cr.CachedRouteID,
		&cr.WaypointsHash,
		&cr.RawResponse,
		&cr.TotalDistanceMeters,
		&seconds,
		&cr.EncodedPolyline,
		&legsJSON,
		&cr.CreatedAt,
	); err != nil {
		return nil, err
	}
	cr.TotalDuration = time.Duration(seconds) * time.Second

	var legs []legRecord
	if len(legsJSON) > 0 {
		if err := json.Unmarshal(legsJSON, &legs); err != nil {
			return nil, fmt.Errorf("decode legs: %w", err)
		}
	}
	for _, l := range legs {
		cr.Legs = append(cr.Legs, domain.Leg{DistanceMeters: l.DistanceMeters, Duration: time.Duration(l.DurationSeconds) * time.Second})
	}
	return &cr, nil
}
