package services

import (
	"context"
	"errors"
	"field-route-service/internal/domain"
	"field-route-service/internal/platform/metrics"
	"field-route-service/internal/platform/obs"
	"field-route-service/internal/ports"
	"fmt"
	"slices"
	"time"
)

const (
	DefaultDepartureBuffer = 15 * time.Minute
	// Used on either side of the day when the provider returned no matching leg.
	fallbackTravel = 30 * time.Minute
)

type routeResolver interface {
	Resolve(ctx context.Context, meetings []*domain.Meeting) (*domain.CachedRoute, error)
}

// GroupPlan is the in-memory result of planning one carpool group: a lead route carrying
// the whole stop timeline and a passenger route per additional member.
type GroupPlan struct {
	CachedRoute *domain.CachedRoute
	Lead        *domain.Route
	Passengers  []*domain.Route
}

// Routes returns the planned routes, lead first.
func (p *GroupPlan) Routes() []*domain.Route {
	out := make([]*domain.Route, 0, 1+len(p.Passengers))
	out = append(out, p.Lead)
	return append(out, p.Passengers...)
}

// SetStatus sets the status of every route in the plan.
func (p *GroupPlan) SetStatus(status domain.RouteStatus) {
	for _, r := range p.Routes() {
		r.Status = status
	}
}

type RouteBuilder struct {
	resolver  routeResolver
	routes    ports.RouteRepository
	sequencer *StopSequencer
	Buffer    time.Duration
}

func NewRouteBuilder(resolver routeResolver, routes ports.RouteRepository, sequencer *StopSequencer) *RouteBuilder {
	return &RouteBuilder{
		resolver:  resolver,
		routes:    routes,
		sequencer: sequencer,
		Buffer:    DefaultDepartureBuffer,
	}
}

// BuildIndividual plans and persists an individual route.
// It returns (nil, nil) when there are no meetings or the routing cache misses.
func (b *RouteBuilder) BuildIndividual(ctx context.Context, meetings []*domain.Meeting) (*domain.Route, error) {
	plan, err := b.PlanIndividual(ctx, meetings)
	if err != nil || plan == nil {
		return nil, err
	}

	routes, err := b.Persist(ctx, plan)
	if err != nil {
		return nil, err
	}
	return routes[0], nil
}

// BuildShared plans and persists the routes of a carpool group, lead first.
// It returns (nil, nil) when there are no meetings or the routing cache misses.
func (b *RouteBuilder) BuildShared(ctx context.Context, meetings []*domain.Meeting, userOrder []int64) ([]*domain.Route, error) {
	plan, err := b.PlanShared(ctx, meetings, userOrder)
	if err != nil || plan == nil {
		return nil, err
	}
	return b.Persist(ctx, plan)
}

// PlanIndividual resolves the route for meetings and lays out its stops without persisting anything.
func (b *RouteBuilder) PlanIndividual(ctx context.Context, meetings []*domain.Meeting) (_ *GroupPlan, err error) {
	defer obs.Time(ctx, "route_builder.PlanIndividual")(&err)

	if len(meetings) == 0 {
		return nil, nil
	}

	sorted := SortByStart(meetings)
	cr, err := b.resolver.Resolve(ctx, sorted)
	if err != nil || cr == nil {
		return nil, err
	}

	lead := b.newRoute(sorted[0].UserID, sorted, cr, domain.RouteTypeIndividual)
	if lead.Stops, err = b.sequencer.Sequence(lead, sorted, cr.Legs); err != nil {
		return nil, fmt.Errorf("plan individual route: %w", err)
	}

	return &GroupPlan{CachedRoute: cr, Lead: lead}, nil
}

// PlanShared resolves one route for the combined meetings of a group. The first user in
// userOrder leads and carries every stop; the others become passengers with their own stops.
func (b *RouteBuilder) PlanShared(ctx context.Context, meetings []*domain.Meeting, userOrder []int64) (_ *GroupPlan, err error) {
	defer obs.Time(ctx, "route_builder.PlanShared")(&err)

	if len(meetings) == 0 {
		return nil, nil
	}
	if len(userOrder) == 0 {
		return nil, fmt.Errorf("plan shared route: empty group: %w", domain.ErrValidation)
	}

	sorted := SortByStart(meetings)
	cr, err := b.resolver.Resolve(ctx, sorted)
	if err != nil || cr == nil {
		return nil, err
	}

	lead := b.newRoute(userOrder[0], sorted, cr, domain.RouteTypeShared)
	if lead.Stops, err = b.sequencer.Sequence(lead, sorted, cr.Legs); err != nil {
		return nil, fmt.Errorf("plan shared route: %w", err)
	}

	plan := &GroupPlan{CachedRoute: cr, Lead: lead}
	for _, userID := range userOrder[1:] {
		own := make(map[int64]bool)
		for _, m := range sorted {
			if m.UserID == userID {
				own[m.MeetingID] = true
			}
		}

		p := b.newRoute(userID, sorted, cr, domain.RouteTypeShared)
		p.Stops = b.sequencer.PassengerStops(lead.Stops, own)
		plan.Passengers = append(plan.Passengers, p)
	}

	return plan, nil
}

// Persist writes the plan's routes and stops in one transaction. Passengers are linked to the
// lead's new id. Any failure rolls back the whole group and is wrapped in domain.ErrPersistence.
func (b *RouteBuilder) Persist(ctx context.Context, plan *GroupPlan) (_ []*domain.Route, err error) {
	defer obs.Time(ctx, "route_builder.Persist")(&err)

	err = b.routes.WithinTx(ctx, func(w ports.RouteWriter) error {
		if err := createWithStops(ctx, w, plan.Lead); err != nil {
			return fmt.Errorf("lead route: %w", err)
		}

		leadID := plan.Lead.RouteID
		for _, p := range plan.Passengers {
			p.LeadRouteID = &leadID
			if err := createWithStops(ctx, w, p); err != nil {
				return fmt.Errorf("passenger route for user %d: %w", p.UserID, err)
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrPersistence) {
			return nil, fmt.Errorf("persist group: %w", err)
		}
		return nil, fmt.Errorf("persist group: %w: %w", domain.ErrPersistence, err)
	}

	routes := plan.Routes()
	for _, r := range routes {
		metrics.RoutesCreated.WithLabelValues(string(r.Type)).Inc()
	}
	return routes, nil
}

func createWithStops(ctx context.Context, w ports.RouteWriter, r *domain.Route) error {
	if err := w.CreateRoute(ctx, r); err != nil {
		return err
	}
	if err := w.CreateStops(ctx, r.RouteID, r.Stops); err != nil {
		return fmt.Errorf("stops: %w", err)
	}
	return nil
}

func (b *RouteBuilder) newRoute(userID int64, sorted []*domain.Meeting, cr *domain.CachedRoute, typ domain.RouteType) *domain.Route {
	return &domain.Route{
		UserID:             userID,
		RouteDate:          sorted[0].ScheduledDate,
		CachedRouteID:      cr.CachedRouteID,
		Type:               typ,
		ScheduledDeparture: b.DepartureTime(sorted, cr.Legs),
		ScheduledReturn:    ReturnTime(sorted, cr.Legs),
		Status:             domain.RouteStatusOptimized,
		CachedRoute:        cr,
	}
}

// DepartureTime is the earliest meeting start minus the first leg and the buffer,
// or minus 30 minutes when there are no legs.
func (b *RouteBuilder) DepartureTime(meetings []*domain.Meeting, legs []domain.Leg) time.Time {
	first := meetings[0]
	for _, m := range meetings[1:] {
		if m.ScheduledAt.Before(first.ScheduledAt) {
			first = m
		}
	}

	if len(legs) == 0 {
		return first.ScheduledAt.Add(-fallbackTravel)
	}
	return first.ScheduledAt.Add(-(legs[0].Duration + b.Buffer))
}

// ReturnTime is the end of the latest-starting meeting plus the return leg, or plus 30 minutes
// when the legs hold no return leg.
func ReturnTime(meetings []*domain.Meeting, legs []domain.Leg) time.Time {
	last := meetings[0]
	for _, m := range meetings[1:] {
		if m.ScheduledAt.After(last.ScheduledAt) {
			last = m
		}
	}

	if !domain.HasReturnLeg(legs, len(meetings)) {
		return last.EndsAt().Add(fallbackTravel)
	}
	return last.EndsAt().Add(legs[len(legs)-1].Duration)
}

// SortByStart returns a copy of meetings ordered by start time, ties by meeting id.
func SortByStart(meetings []*domain.Meeting) []*domain.Meeting {
	sorted := slices.Clone(meetings)
	slices.SortStableFunc(sorted, func(a, b *domain.Meeting) int {
		if c := a.ScheduledAt.Compare(b.ScheduledAt); c != 0 {
			return c
		}
		return cmpInt64(a.MeetingID, b.MeetingID)
	})
	return sorted
}
