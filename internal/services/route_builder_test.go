package services

import (
	"context"
	"errors"
	"field-route-service/internal/adapters/memory"
	"field-route-service/internal/domain"
	"field-route-service/internal/ports"
	"fmt"
	"testing"
	"time"
)

func TestBuildIndividualTiming(t *testing.T) {
	e := newEngine()

	route, err := e.builder.BuildIndividual(context.Background(), []*domain.Meeting{fieldMeeting(1, 7, 10, 0, 60)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if route == nil {
		t.Fatalf("expected route, got nil")
	}

	if !route.ScheduledDeparture.Equal(at(9, 25)) {
		t.Fatalf("departure = %s, want 09:25", route.ScheduledDeparture.Format(time.Kitchen))
	}
	if !route.ScheduledReturn.Equal(at(11, 20)) {
		t.Fatalf("return = %s, want 11:20", route.ScheduledReturn.Format(time.Kitchen))
	}
	if route.Type != domain.RouteTypeIndividual || route.Status != domain.RouteStatusOptimized {
		t.Fatalf("route = %s/%s, want individual/optimized", route.Type, route.Status)
	}
	if route.UserID != 7 || route.RouteID == 0 || route.CachedRouteID == 0 {
		t.Fatalf("route = %+v, want persisted route for user 7", route)
	}

	stored, err := e.routes.GetRoute(context.Background(), route.RouteID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stored.Stops) != 3 {
		t.Fatalf("stored stops = %d, want 3", len(stored.Stops))
	}
}

func TestTimingFallbacks(t *testing.T) {
	b := NewRouteBuilder(nil, nil, NewStopSequencer())
	meetings := []*domain.Meeting{fieldMeeting(2, 1, 14, 0, 45), fieldMeeting(1, 1, 10, 0, 60)}

	if got := b.DepartureTime(meetings, nil); !got.Equal(at(9, 30)) {
		t.Fatalf("departure without legs = %s, want 09:30", got)
	}
	if got := ReturnTime(meetings, legs(20*time.Minute, 20*time.Minute)); !got.Equal(at(15, 15)) {
		t.Fatalf("return without return leg = %s, want 15:15", got)
	}
	if got := ReturnTime(meetings, legs(20*time.Minute, 20*time.Minute, 25*time.Minute)); !got.Equal(at(15, 10)) {
		t.Fatalf("return with return leg = %s, want 15:10", got)
	}

	b.Buffer = 5 * time.Minute
	if got := b.DepartureTime(meetings, legs(20*time.Minute)); !got.Equal(at(9, 35)) {
		t.Fatalf("departure with 5m buffer = %s, want 09:35", got)
	}
}

func TestBuildIndividualSortsByStart(t *testing.T) {
	e := newEngine()
	late := fieldMeeting(1, 1, 15, 0, 30)
	early := fieldMeeting(2, 1, 9, 0, 30)

	route, err := e.builder.BuildIndividual(context.Background(), []*domain.Meeting{late, early})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if *route.Stops[1].MeetingID != 2 || *route.Stops[2].MeetingID != 1 {
		t.Fatalf("meeting stops = %d, %d, want 2, 1", *route.Stops[1].MeetingID, *route.Stops[2].MeetingID)
	}
}

func TestBuildIndividualMiss(t *testing.T) {
	e := newEngine()
	e.provider.Err = fmt.Errorf("status 500: %w", domain.ErrUpstreamUnavailable)

	route, err := e.builder.BuildIndividual(context.Background(), []*domain.Meeting{fieldMeeting(1, 1, 9, 0, 60)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if route != nil {
		t.Fatalf("expected no route, got %+v", route)
	}

	route, err = e.builder.BuildIndividual(context.Background(), nil)
	if err != nil || route != nil {
		t.Fatalf("empty meetings = %v, %v, want nil, nil", route, err)
	}
	if e.routes.Len() != 0 {
		t.Fatalf("stored routes = %d, want 0", e.routes.Len())
	}
}

func TestBuildShared(t *testing.T) {
	e := newEngine()
	meetings := []*domain.Meeting{
		fieldMeeting(1, 1, 9, 0, 60),
		fieldMeeting(2, 2, 11, 0, 60),
		fieldMeeting(3, 1, 14, 0, 60),
	}

	routes, err := e.builder.BuildShared(context.Background(), meetings, []int64{1, 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(routes) != 2 {
		t.Fatalf("routes = %d, want 2", len(routes))
	}

	lead, passenger := routes[0], routes[1]
	if !lead.IsLead() || lead.UserID != 1 {
		t.Fatalf("lead = %+v, want lead route for user 1", lead)
	}
	if !passenger.IsPassenger() || *passenger.LeadRouteID != lead.RouteID || passenger.UserID != 2 {
		t.Fatalf("passenger = %+v, want passenger of route %d for user 2", passenger, lead.RouteID)
	}
	if lead.CachedRouteID != passenger.CachedRouteID {
		t.Fatalf("cached route ids = %d and %d, want shared", lead.CachedRouteID, passenger.CachedRouteID)
	}
	if !lead.ScheduledDeparture.Equal(passenger.ScheduledDeparture) || !lead.ScheduledReturn.Equal(passenger.ScheduledReturn) {
		t.Fatalf("passenger times differ from lead")
	}
	if len(lead.Stops) != 5 {
		t.Fatalf("lead stops = %d, want 5", len(lead.Stops))
	}
	if len(passenger.Stops) != 3 || *passenger.Stops[1].MeetingID != 2 {
		t.Fatalf("passenger stops = %+v, want start, meeting 2, end", passenger.Stops)
	}
	if e.provider.Calls() != 1 {
		t.Fatalf("provider calls = %d, want 1", e.provider.Calls())
	}
}

// failingRepo fails route inserts past allowRoutes per transaction, or for failUser.
type failingRepo struct {
	*memory.RouteRepository
	allowRoutes int
	failUser    int64
}

func (f *failingRepo) WithinTx(ctx context.Context, fn func(w ports.RouteWriter) error) error {
	return f.RouteRepository.WithinTx(ctx, func(w ports.RouteWriter) error {
		return fn(&failingWriter{RouteWriter: w, allow: f.allowRoutes, failUser: f.failUser})
	})
}

type failingWriter struct {
	ports.RouteWriter
	allow    int
	failUser int64
	created  int
}

func (w *failingWriter) CreateRoute(ctx context.Context, route *domain.Route) error {
	if w.created >= w.allow || route.UserID == w.failUser {
		return errors.New("connection reset by peer")
	}
	w.created++
	return w.RouteWriter.CreateRoute(ctx, route)
}

func TestBuildSharedRollsBackGroup(t *testing.T) {
	e := newEngine()
	repo := &failingRepo{RouteRepository: e.routes, allowRoutes: 1}
	builder := NewRouteBuilder(e.cache, repo, NewStopSequencer())

	meetings := []*domain.Meeting{fieldMeeting(1, 1, 9, 0, 60), fieldMeeting(2, 2, 11, 0, 60)}
	routes, err := builder.BuildShared(context.Background(), meetings, []int64{1, 2})
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("err = %v, want ErrPersistence", err)
	}
	if routes != nil {
		t.Fatalf("routes = %v, want nil", routes)
	}
	if e.routes.Len() != 0 {
		t.Fatalf("stored routes = %d, want 0 after rollback", e.routes.Len())
	}
	if e.cached.Len() != 1 {
		t.Fatalf("stored cached routes = %d, want 1", e.cached.Len())
	}
}

func TestPlanSharedRejectsEmptyGroup(t *testing.T) {
	e := newEngine()

	_, err := e.builder.PlanShared(context.Background(), []*domain.Meeting{fieldMeeting(1, 1, 9, 0, 60)}, nil)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}
