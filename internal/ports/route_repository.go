package ports

import (
	"context"
	"field-route-service/internal/domain"
	"time"
)

// RouteWriter performs the writes of one optimization group inside a transaction.
type RouteWriter interface {
	// Insert route and populate RouteID and CreatedAt.
	CreateRoute(ctx context.Context, route *domain.Route) error
	// Insert stops for routeID; StopID and RouteID are populated in place.
	CreateStops(ctx context.Context, routeID int64, stops []domain.Stop) error
}

type Page struct {
	Page    int
	PerPage int
}

func (p Page) Offset() int { return (p.Page - 1) * p.PerPage }

// Port: durable storage for optimized routes and their stops.
type RouteRepository interface {
	// Run fn in a transaction. Any error returned by fn rolls back every write made through w.
	WithinTx(ctx context.Context, fn func(w RouteWriter) error) error

	// Return one page of routes for date (stops not loaded) and the total count.
	ListByDate(ctx context.Context, date time.Time, page Page) ([]*domain.Route, int, error)
	// Return the route with stops and cached route summary; domain.ErrNotFound when absent.
	GetRoute(ctx context.Context, routeID int64) (*domain.Route, error)
	// Return the routes linked to route through carpooling: passengers of a lead, or the lead of a passenger.
	ListCarpool(ctx context.Context, route *domain.Route) ([]*domain.Route, error)
	// Return the user's route for date in the given status, or (nil, nil).
	FindUserRoute(ctx context.Context, userID int64, date time.Time, status domain.RouteStatus) (*domain.Route, error)
	// Move route to status. domain.ErrNotFound for unknown ids,
	// domain.ErrInvalidTransition when the current status does not allow it.
	TransitionStatus(ctx context.Context, routeID int64, status domain.RouteStatus) error
	// Delete route, its stops and, for a lead route, its passengers.
	DeleteRoute(ctx context.Context, routeID int64) error
}
