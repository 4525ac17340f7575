// Package config loads service configuration.
//
// Precedence, lowest first: struct defaults, .env file (if present), process environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"field-route-service/internal/domain"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Port        string `koanf:"port" validate:"required"`
	DatabaseURL string `koanf:"database_url"`
	SeedPath    string `koanf:"seed_path"`
	JWTSecret   string `koanf:"jwt_secret"`
	CORSOrigins string `koanf:"cors_allowed_origins"`

	Redis    RedisConfig    `koanf:"redis"`
	Routing  RoutingConfig  `koanf:"routing"`
	Office   OfficeConfig   `koanf:"office"`
	Optimize OptimizeConfig `koanf:"optimize"`
	Log      LogConfig      `koanf:"log"`
}

type RedisConfig struct {
	URL            string        `koanf:"url"`
	CachedRouteTTL time.Duration `koanf:"cached_route_ttl" validate:"gte=0"`
}

type RoutingConfig struct {
	APIKey      string        `koanf:"api_key"`
	BaseURL     string        `koanf:"base_url" validate:"required,url"`
	Timeout     time.Duration `koanf:"timeout" validate:"gt=0"`
	MaxAttempts int           `koanf:"max_attempts" validate:"gte=1,lte=10"`
	RPS         float64       `koanf:"rps" validate:"gt=0"`
	Burst       int           `koanf:"burst" validate:"gte=1"`
}

type OfficeConfig struct {
	Lat   float64 `koanf:"lat" validate:"gte=-90,lte=90"`
	Lon   float64 `koanf:"lon" validate:"gte=-180,lte=180"`
	Label string  `koanf:"label"`
}

func (o OfficeConfig) Location() domain.Location {
	return domain.Location{
		Coordinates: domain.Coordinates{Lon: o.Lon, Lat: o.Lat},
		Label:       o.Label,
	}
}

type OptimizeConfig struct {
	DepartureBuffer time.Duration `koanf:"departure_buffer" validate:"gte=0"`
	Concurrency     int           `koanf:"concurrency" validate:"gte=1,lte=32"`
	MaxRangeDays    int           `koanf:"max_range_days" validate:"gte=1"`
	RateLimit       int           `koanf:"rate_limit" validate:"gte=0"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format" validate:"omitempty,oneof=json console"`
}

func defaults() Config {
	return Config{
		Port:     "8080",
		SeedPath: "data/seeds/meetings.json",
		Redis: RedisConfig{
			CachedRouteTTL: 24 * time.Hour,
		},
		Routing: RoutingConfig{
			BaseURL:     "https://routes.googleapis.com",
			Timeout:     15 * time.Second,
			MaxAttempts: 3,
			RPS:         5,
			Burst:       5,
		},
		Office: OfficeConfig{
			Lat:   -1.30072,
			Lon:   36.8219,
			Label: "Office",
		},
		Optimize: OptimizeConfig{
			DepartureBuffer: 15 * time.Minute,
			Concurrency:     4,
			MaxRangeDays:    31,
			RateLimit:       10,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// envKeys maps environment variable names to config paths.
// Variables not listed here are ignored.
var envKeys = map[string]string{
	"PORT":                    "port",
	"DATABASE_URL":            "database_url",
	"SEED_PATH":               "seed_path",
	"JWT_SECRET":              "jwt_secret",
	"CORS_ALLOWED_ORIGINS":    "cors_allowed_origins",
	"REDIS_URL":               "redis.url",
	"CACHED_ROUTE_TTL":        "redis.cached_route_ttl",
	"ROUTING_API_KEY":         "routing.api_key",
	"ROUTING_BASE_URL":        "routing.base_url",
	"ROUTING_TIMEOUT":         "routing.timeout",
	"ROUTING_MAX_ATTEMPTS":    "routing.max_attempts",
	"ROUTING_RPS":             "routing.rps",
	"ROUTING_BURST":           "routing.burst",
	"OFFICE_LAT":              "office.lat",
	"OFFICE_LON":              "office.lon",
	"OFFICE_LABEL":            "office.label",
	"DEPARTURE_BUFFER":        "optimize.departure_buffer",
	"OPTIMIZE_CONCURRENCY":    "optimize.concurrency",
	"OPTIMIZE_MAX_RANGE_DAYS": "optimize.max_range_days",
	"OPTIMIZE_RATE_LIMIT":     "optimize.rate_limit",
	"LOG_LEVEL":               "log.level",
	"LOG_FORMAT":              "log.format",
}

func envTransform(key string) string {
	return envKeys[strings.ToUpper(key)]
}

// Load reads configuration from defaults, an optional .env file and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load config: read .env: %w", err)
	}

	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load config: defaults: %w", err)
	}

	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load config: environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}
