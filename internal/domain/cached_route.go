package domain

import "time"

// Leg is one edge of a computed path between two consecutive waypoints.
type Leg struct {
	DistanceMeters int
	Duration       time.Duration
}

// CachedRoute is a routing provider result stored under the hash of its waypoint set.
// Rows are created on the first cache miss and never mutated afterwards.
type CachedRoute struct {
	CachedRouteID       int64
	WaypointsHash       string
	RawResponse         []byte
	TotalDistanceMeters int
	TotalDuration       time.Duration
	EncodedPolyline     string
	Legs                []Leg
	CreatedAt           time.Time
}

// HasReturnLeg reports whether legs carry an extra trailing leg back to the
// office after the last of meetingCount meetings. The last leg is the return leg.
func HasReturnLeg(legs []Leg, meetingCount int) bool {
	return len(legs) > meetingCount
}
