package routing

import (
	"bytes"
	"context"
	"errors"
	"field-route-service/internal/domain"
	"field-route-service/internal/platform/metrics"
	"field-route-service/internal/platform/obs"
	"field-route-service/internal/ports"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

const (
	computeRoutesPath = "/directions/v2:computeRoutes"
	fieldMask         = "routes.duration,routes.distanceMeters,routes.polyline.encodedPolyline,routes.legs"
	maxResponseBytes  = 4 << 20
	breakerName       = "google-routes"
)

type GoogleRoutesOptions struct {
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
	RPS         float64
	Burst       int
}

// GoogleRoutesProvider implements RoutingProvider using the Google Routes API (computeRoutes).
//
// It coordinates:
//   - Request rate limiting (token bucket shared by all callers)
//   - Retry with exponential backoff on 429/5xx and network errors
//   - A circuit breaker that fails fast while the API is unhealthy
//
// Every failure is reported as domain.ErrUpstreamUnavailable or domain.ErrNoRouteFound.
// The provider is safe for concurrent use.
type GoogleRoutesProvider struct {
	session     *http.Client
	apiKey      string
	baseURL     string
	maxAttempts int
	limiter     *rate.Limiter
	breaker     *gobreaker.CircuitBreaker[*ports.RouteResult]
}

func NewGoogleRoutesProvider(apiKey string, opts GoogleRoutesOptions) (*GoogleRoutesProvider, error) {
	if apiKey == "" {
		return nil, errors.New("google routes api key is empty")
	}

	if opts.BaseURL == "" {
		opts.BaseURL = "https://routes.googleapis.com"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RPS <= 0 {
		opts.RPS = 5
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}

	provider := &GoogleRoutesProvider{
		session:     &http.Client{Timeout: opts.Timeout},
		apiKey:      apiKey,
		baseURL:     opts.BaseURL,
		maxAttempts: opts.MaxAttempts,
		limiter:     rate.NewLimiter(rate.Limit(opts.RPS), opts.Burst),
		breaker:     newBreaker(),
	}

	return provider, nil
}

func newBreaker() *gobreaker.CircuitBreaker[*ports.RouteResult] {
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	return gobreaker.NewCircuitBreaker[*ports.RouteResult](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		// Opens at >= 60% failures once at least 10 calls were made in the window.
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		// An empty answer is a valid response, not an unhealthy API.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrNoRouteFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})
}

// ComputeRoute requests an office-to-office driving route through req.Waypoints in the given order.
func (g *GoogleRoutesProvider) ComputeRoute(
	ctx context.Context,
	req ports.RouteRequest,
) (_ *ports.RouteResult, err error) {
	defer obs.Time(ctx, "routing.ComputeRoute")(&err)

	if len(req.Waypoints) == 0 {
		return nil, fmt.Errorf("compute route: no waypoints: %w", domain.ErrValidation)
	}

	payload, err := json.Marshal(newComputeRoutesRequest(req))
	if err != nil {
		return nil, fmt.Errorf("compute route: marshal request: %w", err)
	}

	result, err := g.breaker.Execute(func() (*ports.RouteResult, error) {
		return g.fetch(ctx, payload)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.ProviderRequests.WithLabelValues("rejected").Inc()
			return nil, fmt.Errorf("compute route: %w: %w", domain.ErrUpstreamUnavailable, err)
		}
		return nil, err
	}

	return result, nil
}

func (g *GoogleRoutesProvider) fetch(ctx context.Context, payload []byte) (*ports.RouteResult, error) {
	endpoint := g.baseURL + computeRoutesPath

	resp, err := g.doWithRetry(ctx, func() (*http.Request, error) {
		return g.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	})
	if err != nil {
		metrics.ProviderRequests.WithLabelValues("http_error").Inc()
		return nil, fmt.Errorf("compute route request failed: %w: %w", domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		metrics.ProviderRequests.WithLabelValues("http_error").Inc()
		return nil, fmt.Errorf("read compute route response: %w: %w", domain.ErrUpstreamUnavailable, err)
	}

	result, err := parseComputeRoutesResponse(raw)
	if err != nil {
		if errors.Is(err, domain.ErrNoRouteFound) {
			metrics.ProviderRequests.WithLabelValues("no_route").Inc()
		} else {
			metrics.ProviderRequests.WithLabelValues("malformed").Inc()
		}
		return nil, err
	}

	metrics.ProviderRequests.WithLabelValues("success").Inc()
	return result, nil
}
