package domain

import (
	"fmt"
	"time"
)

type RouteType string

const (
	RouteTypeIndividual RouteType = "individual"
	RouteTypeShared     RouteType = "shared"
)

type RouteStatus string

const (
	RouteStatusOptimized RouteStatus = "optimized"
	RouteStatusPending   RouteStatus = "pending"
	RouteStatusAccepted  RouteStatus = "accepted"
	RouteStatusRejected  RouteStatus = "rejected"
)

// ApprovableStatuses are the states a route may be accepted or rejected from.
var ApprovableStatuses = []RouteStatus{RouteStatusOptimized, RouteStatusPending}

// CanTransitionTo reports whether the approval flow allows moving from s to next.
func (s RouteStatus) CanTransitionTo(next RouteStatus) bool {
	if next != RouteStatusAccepted && next != RouteStatusRejected {
		return false
	}
	for _, from := range ApprovableStatuses {
		if s == from {
			return true
		}
	}
	return false
}

func ParseDecision(s string) (RouteStatus, error) {
	switch RouteStatus(s) {
	case RouteStatusAccepted, RouteStatusRejected:
		return RouteStatus(s), nil
	}
	return "", fmt.Errorf("parse decision %q: %w", s, ErrValidation)
}

type StopKind string

const (
	StopKindStart   StopKind = "start"
	StopKindMeeting StopKind = "meeting"
	StopKindEnd     StopKind = "end"
)

const StopStatusScheduled = "scheduled"

// Represents a single ordered waypoint in a Route.
// Order starts at 0 for the office departure and increases by one per stop.
// Distance and duration describe the leg from the previous stop.
type Stop struct {
	StopID                     int64
	RouteID                    int64
	MeetingID                  *int64
	Order                      int
	Kind                       StopKind
	EstimatedArrival           time.Time
	EstimatedDeparture         time.Time
	DistanceFromPreviousMeters int
	DurationFromPrevious       time.Duration
	Status                     string
}

// Represents the planned day of driving for one salesperson.
// A shared group has exactly one lead Route (LeadRouteID nil) and zero or more
// passenger Routes pointing at it. All routes of a group reference the same CachedRoute.
type Route struct {
	RouteID            int64
	UserID             int64
	RouteDate          time.Time
	CachedRouteID      int64
	Type               RouteType
	LeadRouteID        *int64
	ScheduledDeparture time.Time
	ScheduledReturn    time.Time
	Status             RouteStatus
	CreatedAt          time.Time
	Stops              []Stop

	// Populated on reads; nil for routes that were only planned.
	CachedRoute *CachedRoute
	StopCount   int
}

func (r *Route) IsLead() bool {
	return r.Type == RouteTypeShared && r.LeadRouteID == nil
}

func (r *Route) IsPassenger() bool {
	return r.Type == RouteTypeShared && r.LeadRouteID != nil
}

// CarpoolRole returns "lead" or "passenger" for shared routes and "" otherwise.
func (r *Route) CarpoolRole() string {
	switch {
	case r.IsLead():
		return "lead"
	case r.IsPassenger():
		return "passenger"
	}
	return ""
}
