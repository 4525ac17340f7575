package api

import (
	"field-route-service/internal/api/auth"
	"field-route-service/internal/api/handlers"
	"field-route-service/internal/ports"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterConfig struct {
	JWTSecret string
	// Comma-separated list; empty leaves CORS headers off.
	CORSAllowedOrigins string
	// Optimize calls allowed per client IP per minute; 0 disables the limit.
	OptimizeRateLimit int
}

// NewRouter wires HTTP handlers with their dependencies and returns an http.Handler.
// Handlers stay unaware of concrete adapters.
func NewRouter(cfg RouterConfig, optimizer handlers.RangeOptimizer, routes ports.RouteRepository) http.Handler {
	r := chi.NewRouter()

	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware)
	r.Use(chimiddleware.Recoverer)
	if origins := splitOrigins(cfg.CORSAllowedOrigins); len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", requestIDHeader},
			ExposedHeaders: []string{requestIDHeader},
			MaxAge:         300,
		}))
	}

	verifier := auth.NewVerifier(cfg.JWTSecret)
	h := &handlers.RouteHandler{Optimizer: optimizer, Routes: routes}

	r.Get("/health", handlers.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/routes", func(r chi.Router) {
		r.Use(verifier.Middleware)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAdmin)

			optimize := http.Handler(http.HandlerFunc(h.Optimize))
			if cfg.OptimizeRateLimit > 0 {
				optimize = httprate.LimitByIP(cfg.OptimizeRateLimit, time.Minute)(optimize)
			}
			r.Method(http.MethodPost, "/optimize", optimize)

			r.Put("/{routeID}/approve", h.Approve)
			r.Get("/date/{date}", h.ListByDate)
			r.Delete("/{routeID}", h.Delete)
		})

		r.Get("/{routeID}", h.Get)
		r.Get("/user/{userID}/date/{date}", h.UserRoute)
	})

	return r
}

func splitOrigins(s string) []string {
	out := make([]string, 0)
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
