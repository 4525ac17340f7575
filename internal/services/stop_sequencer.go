package services

import (
	"field-route-service/internal/domain"
	"fmt"
)

// StopSequencer expands provider legs into the ordered stops of a route.
type StopSequencer struct{}

func NewStopSequencer() *StopSequencer {
	return &StopSequencer{}
}

// Sequence returns the stops of route for meetings visited in order, leg i leading to meeting i.
//
// Stop 0 is the office departure at route.ScheduledDeparture. Each meeting stop is reached by
// running the clock forward: arrival = previous departure + leg duration and departure = arrival +
// meeting duration. When legs holds more entries than meetings, an end stop is appended for the
// last (return) leg, anchored on the last meeting's scheduled end; it never precedes the previous departure.
func (s *StopSequencer) Sequence(route *domain.Route, meetings []*domain.Meeting, legs []domain.Leg) ([]domain.Stop, error) {
	if len(meetings) == 0 {
		return nil, fmt.Errorf("sequence stops: no meetings: %w", domain.ErrValidation)
	}
	if len(legs) < len(meetings) {
		return nil, fmt.Errorf("sequence stops: %d legs for %d meetings: %w", len(legs), len(meetings), domain.ErrValidation)
	}
	for i, leg := range legs {
		if leg.DistanceMeters < 0 || leg.Duration < 0 {
			return nil, fmt.Errorf("sequence stops: leg %d is negative: %w", i, domain.ErrValidation)
		}
	}

	stops := make([]domain.Stop, 0, len(meetings)+2)
	stops = append(stops, domain.Stop{
		Order:              0,
		Kind:               domain.StopKindStart,
		EstimatedArrival:   route.ScheduledDeparture,
		EstimatedDeparture: route.ScheduledDeparture,
		Status:             domain.StopStatusScheduled,
	})

	clock := route.ScheduledDeparture
	for i, m := range meetings {
		leg := legs[i]
		arrival := clock.Add(leg.Duration)
		departure := arrival.Add(m.Duration())
		meetingID := m.MeetingID

		stops = append(stops, domain.Stop{
			MeetingID:                  &meetingID,
			Order:                      len(stops),
			Kind:                       domain.StopKindMeeting,
			EstimatedArrival:           arrival,
			EstimatedDeparture:         departure,
			DistanceFromPreviousMeters: leg.DistanceMeters,
			DurationFromPrevious:       leg.Duration,
			Status:                     domain.StopStatusScheduled,
		})
		clock = departure
	}

	if domain.HasReturnLeg(legs, len(meetings)) {
		last := meetings[len(meetings)-1]
		leg := legs[len(legs)-1]

		leaveAt := last.EndsAt()
		if leaveAt.Before(clock) {
			leaveAt = clock
		}
		arrival := leaveAt.Add(leg.Duration)

		stops = append(stops, domain.Stop{
			Order:                      len(stops),
			Kind:                       domain.StopKindEnd,
			EstimatedArrival:           arrival,
			EstimatedDeparture:         arrival,
			DistanceFromPreviousMeters: leg.DistanceMeters,
			DurationFromPrevious:       leg.Duration,
			Status:                     domain.StopStatusScheduled,
		})
	}

	return stops, nil
}

// PassengerStops returns the passenger's view of a lead timeline: the start stop, the stops of the
// passenger's own meetings and the end stop, with the lead's times and leg values, renumbered from 0.
func (s *StopSequencer) PassengerStops(leadStops []domain.Stop, own map[int64]bool) []domain.Stop {
	out := make([]domain.Stop, 0, len(own)+2)
	for _, st := range leadStops {
		if st.Kind == domain.StopKindMeeting && (st.MeetingID == nil || !own[*st.MeetingID]) {
			continue
		}

		st.StopID = 0
		st.RouteID = 0
		if st.MeetingID != nil {
			id := *st.MeetingID
			st.MeetingID = &id
		}
		st.Order = len(out)
		out = append(out, st)
	}
	return out
}
