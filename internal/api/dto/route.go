package dto

import (
	"field-route-service/internal/domain"
	"math"
	"time"
)

type OptimizeRequest struct {
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
}

type ApproveRequest struct {
	Status string `json:"status" validate:"required,oneof=accepted rejected"`
}

type RouteResponse struct {
	ID                   int64   `json:"id"`
	UserID               int64   `json:"user_id"`
	RouteDate            string  `json:"route_date"`
	RouteType            string  `json:"route_type"`
	DepartureTime        string  `json:"departure_time"`
	ReturnTime           string  `json:"return_time"`
	TotalDistanceKm      float64 `json:"total_distance_km"`
	TotalDurationMinutes int     `json:"total_duration_minutes"`
	Status               string  `json:"status"`
	StopsCount           int     `json:"stops_count"`
	CarpoolRole          string  `json:"carpool_role,omitempty"`
}

type StopResponse struct {
	ID                          int64     `json:"id"`
	Order                       int       `json:"stop_order"`
	Type                        string    `json:"stop_type"`
	MeetingID                   *int64    `json:"meeting_id"`
	EstimatedArrival            time.Time `json:"estimated_arrival"`
	EstimatedDeparture          time.Time `json:"estimated_departure"`
	DistanceFromPreviousMeters  int       `json:"distance_from_previous_meters"`
	DurationFromPreviousSeconds int64     `json:"duration_from_previous_seconds"`
	Status                      string    `json:"status"`
}

type CachedRouteResponse struct {
	ID                   int64  `json:"id"`
	TotalDistanceMeters  int    `json:"total_distance_meters"`
	TotalDurationSeconds int64  `json:"total_duration_seconds"`
	EncodedPolyline      string `json:"encoded_polyline"`
}

type CarpoolMember struct {
	RouteID int64 `json:"route_id"`
	UserID  int64 `json:"user_id"`
}

type CarpoolInfo struct {
	Role        string          `json:"role"`
	LeadRouteID *int64          `json:"lead_route_id,omitempty"`
	Lead        *CarpoolMember  `json:"lead,omitempty"`
	Passengers  []CarpoolMember `json:"passengers,omitempty"`
}

// RouteDetailResponse carries the RouteResponse fields plus stops, the cached route summary and carpool links.
type RouteDetailResponse struct {
	ID                   int64                `json:"id"`
	UserID               int64                `json:"user_id"`
	RouteDate            string               `json:"route_date"`
	RouteType            string               `json:"route_type"`
	DepartureTime        string               `json:"departure_time"`
	ReturnTime           string               `json:"return_time"`
	TotalDistanceKm      float64              `json:"total_distance_km"`
	TotalDurationMinutes int                  `json:"total_duration_minutes"`
	Status               string               `json:"status"`
	StopsCount           int                  `json:"stops_count"`
	CarpoolRole          string               `json:"carpool_role,omitempty"`
	Stops                []StopResponse       `json:"stops"`
	CachedRoute          *CachedRouteResponse `json:"google_route,omitempty"`
	CarpoolInfo          *CarpoolInfo         `json:"carpool_info,omitempty"`
}

type DateFailureResponse struct {
	Date  string `json:"date"`
	Error string `json:"error"`
}

type OptimizeResponse struct {
	Success  bool                  `json:"success"`
	Message  string                `json:"message"`
	Routes   []RouteResponse       `json:"routes"`
	Failures []DateFailureResponse `json:"failures"`
}

type Pagination struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Total   int `json:"total"`
	Pages   int `json:"pages"`
}

type ListRoutesResponse struct {
	Routes     []RouteResponse `json:"routes"`
	Pagination Pagination      `json:"pagination"`
}

// UserRouteResponse is the body for a user with an accepted route on the date.
type UserRouteResponse struct {
	Route RouteDetailResponse `json:"route"`
}

// NoUserRouteResponse is the body for a user without an accepted route: {"route": null}.
type NoUserRouteResponse struct {
	Route *struct{} `json:"route"`
}

func NewRouteResponse(r *domain.Route) RouteResponse {
	res := RouteResponse{
		ID:            r.RouteID,
		UserID:        r.UserID,
		RouteDate:     r.RouteDate.Format(time.DateOnly),
		RouteType:     string(r.Type),
		DepartureTime: r.ScheduledDeparture.Format("15:04"),
		ReturnTime:    r.ScheduledReturn.Format("15:04"),
		Status:        string(r.Status),
		StopsCount:    r.StopCount,
		CarpoolRole:   r.CarpoolRole(),
	}
	if len(r.Stops) > 0 {
		res.StopsCount = len(r.Stops)
	}
	if r.CachedRoute != nil {
		res.TotalDistanceKm = math.Round(float64(r.CachedRoute.TotalDistanceMeters)/10) / 100
		res.TotalDurationMinutes = int(r.CachedRoute.TotalDuration.Minutes())
	}
	return res
}

// NewRouteDetailResponse renders r with its stops; carpool lists the linked routes of a shared route.
func NewRouteDetailResponse(r *domain.Route, carpool []*domain.Route) RouteDetailResponse {
	base := NewRouteResponse(r)
	res := RouteDetailResponse{
		ID:                   base.ID,
		UserID:               base.UserID,
		RouteDate:            base.RouteDate,
		RouteType:            base.RouteType,
		DepartureTime:        base.DepartureTime,
		ReturnTime:           base.ReturnTime,
		TotalDistanceKm:      base.TotalDistanceKm,
		TotalDurationMinutes: base.TotalDurationMinutes,
		Status:               base.Status,
		StopsCount:           base.StopsCount,
		CarpoolRole:          base.CarpoolRole,
		Stops:                make([]StopResponse, 0, len(r.Stops)),
	}

	for _, st := range r.Stops {
		res.Stops = append(res.Stops, StopResponse{
			ID:                          st.StopID,
			Order:                       st.Order,
			Type:                        string(st.Kind),
			MeetingID:                   st.MeetingID,
			EstimatedArrival:            st.EstimatedArrival,
			EstimatedDeparture:          st.EstimatedDeparture,
			DistanceFromPreviousMeters:  st.DistanceFromPreviousMeters,
			DurationFromPreviousSeconds: int64(st.DurationFromPrevious / time.Second),
			Status:                      st.Status,
		})
	}

	if cr := r.CachedRoute; cr != nil {
		res.CachedRoute = &CachedRouteResponse{
			ID:                   r.CachedRouteID,
			TotalDistanceMeters:  cr.TotalDistanceMeters,
			TotalDurationSeconds: int64(cr.TotalDuration / time.Second),
			EncodedPolyline:      cr.EncodedPolyline,
		}
	}

	if r.Type == domain.RouteTypeShared {
		info := &CarpoolInfo{Role: r.CarpoolRole(), LeadRouteID: r.LeadRouteID}
		for _, other := range carpool {
			m := CarpoolMember{RouteID: other.RouteID, UserID: other.UserID}
			if r.IsPassenger() && other.RouteID == *r.LeadRouteID {
				info.Lead = &m
				continue
			}
			info.Passengers = append(info.Passengers, m)
		}
		res.CarpoolInfo = info
	}

	return res
}
