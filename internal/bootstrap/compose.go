// Package bootstrap is the composition root shared by the binaries.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"field-route-service/internal/adapters/cache"
	"field-route-service/internal/adapters/memory"
	"field-route-service/internal/adapters/repositories"
	"field-route-service/internal/adapters/routing"
	"field-route-service/internal/config"
	"field-route-service/internal/platform/db"
	"field-route-service/internal/ports"
	"field-route-service/internal/services"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// App holds the wired adapters and services.
type App struct {
	Config       *config.Config
	Meetings     ports.MeetingRepository
	CachedRoutes ports.CachedRouteStore
	Routes       ports.RouteRepository
	Provider     ports.RoutingProvider
	Optimizer    *services.Optimizer

	db    *sql.DB
	redis *redis.Client
}

// Compose wires adapters behind ports. An empty DATABASE_URL selects in-memory stores seeded
// from SEED_PATH. The mock routing provider is only used when neither Postgres nor Redis is
// configured, so synthetic routes never reach a shared route cache.
func Compose(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{Config: cfg}

	memoryMode := strings.TrimSpace(cfg.DatabaseURL) == ""
	sharedCache := !memoryMode || strings.TrimSpace(cfg.Redis.URL) != ""
	if sharedCache && strings.TrimSpace(cfg.Routing.APIKey) == "" {
		return nil, errors.New("compose: ROUTING_API_KEY is required when DATABASE_URL or REDIS_URL is set")
	}

	if memoryMode {
		if err := app.useMemory(); err != nil {
			return nil, err
		}
	} else {
		conn, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("compose: %w", err)
		}
		app.db = conn
		app.Meetings = repositories.NewSQLMeetingRepository(conn)
		app.CachedRoutes = cache.NewSQLRouteCache(conn)
		app.Routes = repositories.NewSQLRouteRepository(conn)
	}

	if url := strings.TrimSpace(cfg.Redis.URL); url != "" {
		client, err := cache.NewRedisClient(ctx, url)
		if err != nil {
			_ = app.Close()
			return nil, fmt.Errorf("compose: %w", err)
		}
		app.redis = client
		app.CachedRoutes = cache.NewRedisRouteCache(client, app.CachedRoutes, cfg.Redis.CachedRouteTTL)
	}

	if strings.TrimSpace(cfg.Routing.APIKey) == "" {
		log.Warn().Msg("ROUTING_API_KEY not set, using mock routing provider")
		app.Provider = routing.NewMockRoutingProvider(20*time.Minute, 8000)
	} else {
		provider, err := routing.NewGoogleRoutesProvider(cfg.Routing.APIKey, routing.GoogleRoutesOptions{
			BaseURL:     cfg.Routing.BaseURL,
			Timeout:     cfg.Routing.Timeout,
			MaxAttempts: cfg.Routing.MaxAttempts,
			RPS:         cfg.Routing.RPS,
			Burst:       cfg.Routing.Burst,
		})
		if err != nil {
			_ = app.Close()
			return nil, fmt.Errorf("compose: %w", err)
		}
		app.Provider = provider
	}

	routingCache := services.NewRoutingCache(app.CachedRoutes, app.Provider, cfg.Office.Location())
	builder := services.NewRouteBuilder(routingCache, app.Routes, services.NewStopSequencer())
	builder.Buffer = cfg.Optimize.DepartureBuffer

	app.Optimizer = services.NewOptimizer(app.Meetings, services.NewCarpoolGrouper(), builder)
	app.Optimizer.Concurrency = cfg.Optimize.Concurrency
	app.Optimizer.MaxRangeDays = cfg.Optimize.MaxRangeDays

	return app, nil
}

func (a *App) useMemory() error {
	log.Warn().Msg("DATABASE_URL not set, using in-memory stores")

	meetings, err := repositories.ParseMeetingSeeds(a.Config.SeedPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Warn().Str("seed_path", a.Config.SeedPath).Msg("seed file not found, starting without meetings")
	case err != nil:
		return fmt.Errorf("compose: %w", err)
	}

	cached := memory.NewCachedRouteStore()
	a.Meetings = memory.NewMeetingRepository(meetings...)
	a.CachedRoutes = cached
	a.Routes = memory.NewRouteRepository().WithCachedRoutes(cached)
	return nil
}

// InitSchema creates the Postgres schema when a database is configured.
func (a *App) InitSchema(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	if err := repositories.InitSchema(ctx, a.db); err != nil {
		return fmt.Errorf("compose: %w", err)
	}
	return nil
}

// Close releases the database and Redis connections.
func (a *App) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
