package routing

import (
	"field-route-service/internal/domain"
	"field-route-service/internal/ports"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

type latLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type waypointLocation struct {
	LatLng latLng `json:"latLng"`
}

type waypoint struct {
	Location waypointLocation `json:"location"`
}

type routeModifiers struct {
	AvoidTolls    bool `json:"avoidTolls"`
	AvoidHighways bool `json:"avoidHighways"`
	AvoidFerries  bool `json:"avoidFerries"`
}

type computeRoutesRequest struct {
	Origin                   waypoint       `json:"origin"`
	Destination              waypoint       `json:"destination"`
	Intermediates            []waypoint     `json:"intermediates"`
	TravelMode               string         `json:"travelMode"`
	RoutingPreference        string         `json:"routingPreference"`
	ComputeAlternativeRoutes bool           `json:"computeAlternativeRoutes"`
	RouteModifiers           routeModifiers `json:"routeModifiers"`
	LanguageCode             string         `json:"languageCode"`
	Units                    string         `json:"units"`
}

type computeRoutesResponse struct {
	Routes []struct {
		DistanceMeters *int   `json:"distanceMeters"`
		Duration       string `json:"duration"`
		Polyline       struct {
			EncodedPolyline string `json:"encodedPolyline"`
		} `json:"polyline"`
		Legs []struct {
			DistanceMeters int    `json:"distanceMeters"`
			Duration       string `json:"duration"`
		} `json:"legs"`
	} `json:"routes"`
}

func toWaypoint(c domain.Coordinates) waypoint {
	return waypoint{Location: waypointLocation{LatLng: latLng{Latitude: c.Lat, Longitude: c.Lon}}}
}

func newComputeRoutesRequest(req ports.RouteRequest) computeRoutesRequest {
	intermediates := make([]waypoint, 0, len(req.Waypoints))
	for _, c := range req.Waypoints {
		intermediates = append(intermediates, toWaypoint(c))
	}

	return computeRoutesRequest{
		Origin:                   toWaypoint(req.Origin),
		Destination:              toWaypoint(req.Destination),
		Intermediates:            intermediates,
		TravelMode:               "DRIVE",
		RoutingPreference:        "TRAFFIC_AWARE",
		ComputeAlternativeRoutes: false,
		RouteModifiers: routeModifiers{
			AvoidTolls:    false,
			AvoidHighways: false,
			AvoidFerries:  true,
		},
		LanguageCode: "en-US",
		Units:        "METRIC",
	}
}

// parseComputeRoutesResponse converts the first route of a computeRoutes answer
// into domain units. Zero routes is ErrNoRouteFound; any other unexpected shape
// is ErrUpstreamUnavailable.
func parseComputeRoutesResponse(raw []byte) (*ports.RouteResult, error) {
	var decoded computeRoutesResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode compute route response: %w: %w", domain.ErrUpstreamUnavailable, err)
	}

	if len(decoded.Routes) == 0 {
		return nil, fmt.Errorf("compute route response: %w", domain.ErrNoRouteFound)
	}

	route := decoded.Routes[0]

	if route.DistanceMeters == nil || *route.DistanceMeters < 0 {
		return nil, fmt.Errorf("compute route response: missing or negative distanceMeters: %w", domain.ErrUpstreamUnavailable)
	}

	total, err := parseSeconds(route.Duration)
	if err != nil {
		return nil, fmt.Errorf("compute route response: route duration: %w: %w", domain.ErrUpstreamUnavailable, err)
	}

	if strings.TrimSpace(route.Polyline.EncodedPolyline) == "" {
		return nil, fmt.Errorf("compute route response: missing encoded polyline: %w", domain.ErrUpstreamUnavailable)
	}

	legs := make([]domain.Leg, 0, len(route.Legs))
	for i, l := range route.Legs {
		if l.DistanceMeters < 0 {
			return nil, fmt.Errorf("compute route response: leg %d negative distance: %w", i, domain.ErrUpstreamUnavailable)
		}

		// Zero-length legs omit their duration.
		d := time.Duration(0)
		if l.Duration != "" {
			d, err = parseSeconds(l.Duration)
			if err != nil {
				return nil, fmt.Errorf("compute route response: leg %d duration: %w: %w", i, domain.ErrUpstreamUnavailable, err)
			}
		}

		legs = append(legs, domain.Leg{DistanceMeters: l.DistanceMeters, Duration: d})
	}

	return &ports.RouteResult{
		DistanceMeters:  *route.DistanceMeters,
		Duration:        total,
		EncodedPolyline: route.Polyline.EncodedPolyline,
		Legs:            legs,
		RawResponse:     raw,
	}, nil
}

// parseSeconds converts a seconds-suffixed duration string ("1234s", "12.5s")
// to a non-negative Duration rounded to whole seconds.
func parseSeconds(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if !strings.HasSuffix(s, "s") {
		return 0, fmt.Errorf("duration %q: missing seconds suffix", s)
	}

	v, err := strconv.ParseFloat(strings.TrimSuffix(s, "s"), 64)
	if err != nil {
		return 0, fmt.Errorf("duration %q: %w", s, err)
	}
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("duration %q: must be a non-negative number", s)
	}

	return time.Duration(math.Round(v)) * time.Second, nil
}
