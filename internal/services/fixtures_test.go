package services

import (
	"field-route-service/internal/adapters/memory"
	"field-route-service/internal/adapters/routing"
	"field-route-service/internal/domain"
	"time"
)

var (
	testDay    = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	testOffice = domain.Location{
		Coordinates: domain.Coordinates{Lon: 36.8219, Lat: -1.30072},
		Label:       "Office",
	}
)

func at(hour, minute int) time.Time {
	return testDay.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func fieldMeeting(id, userID int64, hour, minute, durationMinutes int) *domain.Meeting {
	return &domain.Meeting{
		MeetingID:       id,
		UserID:          userID,
		ClientID:        100 + id,
		Title:           "visit",
		ScheduledDate:   testDay,
		ScheduledAt:     at(hour, minute),
		DurationMinutes: durationMinutes,
		Location: domain.Location{
			Coordinates: domain.Coordinates{Lon: 36.80 + float64(id)/100, Lat: -1.28 - float64(id)/100},
			Label:       "client",
		},
		Kind: domain.MeetingKindField,
	}
}

type engine struct {
	provider  *routing.MockRoutingProvider
	cached    *memory.CachedRouteStore
	routes    *memory.RouteRepository
	meetings  *memory.MeetingRepository
	cache     *RoutingCache
	builder   *RouteBuilder
	optimizer *Optimizer
}

func newEngine(meetings ...*domain.Meeting) *engine {
	e := &engine{
		provider: routing.NewMockRoutingProvider(20*time.Minute, 5000),
		cached:   memory.NewCachedRouteStore(),
		meetings: memory.NewMeetingRepository(meetings...),
	}
	e.routes = memory.NewRouteRepository().WithCachedRoutes(e.cached)
	e.cache = NewRoutingCache(e.cached, e.provider, testOffice)
	e.builder = NewRouteBuilder(e.cache, e.routes, NewStopSequencer())
	e.optimizer = NewOptimizer(e.meetings, NewCarpoolGrouper(), e.builder)
	return e
}
