package cache

import (
	"context"
	"errors"
	"field-route-service/internal/domain"
	"field-route-service/internal/ports"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	DefaultRouteTTL = 24 * time.Hour
	keyPrefix       = "cached_route:"
)

// RedisRouteCache is a read-through, write-through layer in front of a durable CachedRouteStore.
// Redis failures are logged and fall through to the store; the store stays the source of truth.
type RedisRouteCache struct {
	client *redis.Client
	store  ports.CachedRouteStore
	ttl    time.Duration
}

func NewRedisRouteCache(client *redis.Client, store ports.CachedRouteStore, ttl time.Duration) *RedisRouteCache {
	if ttl <= 0 {
		ttl = DefaultRouteTTL
	}
	return &RedisRouteCache{client: client, store: store, ttl: ttl}
}

// NewRedisClient parses a redis:// URL and verifies the server answers.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return client, nil
}

type cachedRouteValue struct {
	CachedRouteID       int64       `json:"id"`
	WaypointsHash       string      `json:"hash"`
	RawResponse         []byte      `json:"raw"`
	TotalDistanceMeters int         `json:"distance_meters"`
	TotalDurationSecs   int64       `json:"duration_seconds"`
	EncodedPolyline     string      `json:"polyline"`
	Legs                []legRecord `json:"legs"`
	CreatedAt           time.Time   `json:"created_at"`
}

func toValue(cr *domain.CachedRoute) cachedRouteValue {
	v := cachedRouteValue{
		CachedRouteID:       cr.CachedRouteID,
		WaypointsHash:       cr.WaypointsHash,
		RawResponse:         cr.RawResponse,
		TotalDistanceMeters: cr.TotalDistanceMeters,
		TotalDurationSecs:   int64(cr.TotalDuration / time.Second),
		EncodedPolyline:     cr.EncodedPolyline,
		CreatedAt:           cr.CreatedAt,
	}
	for _, l := range cr.Legs {
		v.Legs = append(v.Legs, legRecord{DistanceMeters: l.DistanceMeters, DurationSeconds: int64(l.Duration / time.Second)})
	}
	return v
}

func (v cachedRouteValue) route() *domain.CachedRoute {
	cr := &domain.CachedRoute{
		CachedRouteID:       v.CachedRouteID,
		WaypointsHash:       v.WaypointsHash,
		RawResponse:         v.RawResponse,
		TotalDistanceMeters: v.TotalDistanceMeters,
		TotalDuration:       time.Duration(v.TotalDurationSecs) * time.Second,
		EncodedPolyline:     v.EncodedPolyline,
		CreatedAt:           v.CreatedAt,
	}
	for _, l := range v.Legs {
		cr.Legs = append(cr.Legs, domain.Leg{DistanceMeters: l.DistanceMeters, Duration: time.Duration(l.DurationSeconds) * time.Second})
	}
	return cr
}

func (c *RedisRouteCache) FindByHash(ctx context.Context, hash string) (*domain.CachedRoute, error) {
	logger := zerolog.Ctx(ctx)

	b, err := c.client.Get(ctx, keyPrefix+hash).Bytes()
	switch {
	case err == nil:
		var v cachedRouteValue
		if err := json.Unmarshal(b, &v); err == nil {
			return v.route(), nil
		}
		logger.Warn().Str("hash", hash).Msg("discarding undecodable redis entry")
	case !errors.Is(err, redis.Nil):
		logger.Warn().Err(err).Str("hash", hash).Msg("redis get failed, falling back to store")
	}

	cr, err := c.store.FindByHash(ctx, hash)
	if err != nil || cr == nil {
		return cr, err
	}
	c.put(ctx, cr)
	return cr, nil
}

func (c *RedisRouteCache) Create(ctx context.Context, route *domain.CachedRoute) error {
	if err := c.store.Create(ctx, route); err != nil {
		return err
	}
	c.put(ctx, route)
	return nil
}

func (c *RedisRouteCache) put(ctx context.Context, cr *domain.CachedRoute) {
	b, err := json.Marshal(toValue(cr))
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("hash", cr.WaypointsHash).Msg("encode redis entry")
		return
	}
	if err := c.client.Set(ctx, keyPrefix+cr.WaypointsHash, b, c.ttl).Err(); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("hash", cr.WaypointsHash).Msg("redis set failed")
	}
}
