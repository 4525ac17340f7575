package handlers

import (
	"context"
	"field-route-service/internal/api/auth"
	"field-route-service/internal/api/dto"
	"field-route-service/internal/domain"
	"field-route-service/internal/ports"
	"field-route-service/internal/services"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

type RangeOptimizer interface {
	OptimizeForRange(ctx context.Context, start, end time.Time) (*services.RangeResult, error)
}

type RouteHandler struct {
	Optimizer RangeOptimizer
	Routes    ports.RouteRepository
}

// Optimize runs the optimizer over the requested date range. New routes are pending approval.
func (h *RouteHandler) Optimize(w http.ResponseWriter, r *http.Request) {
	var req dto.OptimizeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	start, _ := time.Parse(time.DateOnly, req.StartDate)
	end, _ := time.Parse(time.DateOnly, req.EndDate)

	res, err := h.Optimizer.OptimizeForRange(r.Context(), start, end)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := dto.OptimizeResponse{
		Success:  true,
		Message:  fmt.Sprintf("created %d routes from %s to %s", len(res.Routes), req.StartDate, req.EndDate),
		Routes:   make([]dto.RouteResponse, 0, len(res.Routes)),
		Failures: make([]dto.DateFailureResponse, 0, len(res.Failures)),
	}
	for _, route := range res.Routes {
		out.Routes = append(out.Routes, dto.NewRouteResponse(route))
	}
	for _, f := range res.Failures {
		zerolog.Ctx(r.Context()).Error().Err(f.Err).Str("date", f.Date.Format(time.DateOnly)).Msg("date optimization failed")
		out.Failures = append(out.Failures, dto.DateFailureResponse{
			Date:  f.Date.Format(time.DateOnly),
			Error: "optimization failed",
		})
	}

	writeJSON(w, r, http.StatusCreated, out)
}

// Approve accepts or rejects an optimized or pending route.
func (h *RouteHandler) Approve(w http.ResponseWriter, r *http.Request) {
	routeID, ok := pathID(w, r, "routeID")
	if !ok {
		return
	}

	var req dto.ApproveRequest
	if !decodeBody(w, r, &req) {
		return
	}

	status, err := domain.ParseDecision(req.Status)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if err := h.Routes.TransitionStatus(r.Context(), routeID, status); err != nil {
		writeServiceError(w, r, err)
		return
	}

	route, err := h.Routes.GetRoute(r.Context(), routeID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	zerolog.Ctx(r.Context()).Info().Int64("route_id", routeID).Str("status", string(status)).Msg("route status changed")
	writeJSON(w, r, http.StatusOK, map[string]any{
		"success": true,
		"message": "route " + string(status),
		"route":   dto.NewRouteResponse(route),
	})
}

// ListByDate returns one page of the routes planned for a date.
func (h *RouteHandler) ListByDate(w http.ResponseWriter, r *http.Request) {
	date, ok := pathDate(w, r)
	if !ok {
		return
	}

	page, err := queryInt(r, "page", 1)
	if err != nil || page < 1 {
		writeError(w, r, http.StatusBadRequest, "page must be a positive integer")
		return
	}
	perPage, err := queryInt(r, "per_page", defaultPerPage)
	if err != nil || perPage < 1 || perPage > maxPerPage {
		writeError(w, r, http.StatusBadRequest, fmt.Sprintf("per_page must be between 1 and %d", maxPerPage))
		return
	}

	routes, total, err := h.Routes.ListByDate(r.Context(), date, ports.Page{Page: page, PerPage: perPage})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := dto.ListRoutesResponse{
		Routes: make([]dto.RouteResponse, 0, len(routes)),
		Pagination: dto.Pagination{
			Page:    page,
			PerPage: perPage,
			Total:   total,
			Pages:   (total + perPage - 1) / perPage,
		},
	}
	for _, route := range routes {
		out.Routes = append(out.Routes, dto.NewRouteResponse(route))
	}

	writeJSON(w, r, http.StatusOK, out)
}

// Get returns a route with its stops, provider summary and carpool links.
// Salespeople may only read their own routes.
func (h *RouteHandler) Get(w http.ResponseWriter, r *http.Request) {
	routeID, ok := pathID(w, r, "routeID")
	if !ok {
		return
	}

	route, err := h.Routes.GetRoute(r.Context(), routeID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	p := auth.FromContext(r.Context())
	if p == nil || !p.CanAccessUser(route.UserID) {
		writeError(w, r, http.StatusForbidden, "not allowed to view this route")
		return
	}

	res, err := h.detail(r.Context(), route)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// Delete removes a route with its stops; deleting a lead also removes its passengers.
func (h *RouteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	routeID, ok := pathID(w, r, "routeID")
	if !ok {
		return
	}

	if err := h.Routes.DeleteRoute(r.Context(), routeID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	zerolog.Ctx(r.Context()).Info().Int64("route_id", routeID).Msg("route deleted")
	writeJSON(w, r, http.StatusOK, map[string]any{"success": true, "message": "route deleted"})
}

// UserRoute returns the user's accepted route for a date, or a null route.
func (h *RouteHandler) UserRoute(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	date, ok := pathDate(w, r)
	if !ok {
		return
	}

	p := auth.FromContext(r.Context())
	if p == nil || !p.CanAccessUser(userID) {
		writeError(w, r, http.StatusForbidden, "not allowed to view this user's route")
		return
	}

	route, err := h.Routes.FindUserRoute(r.Context(), userID, date, domain.RouteStatusAccepted)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if route == nil {
		writeJSON(w, r, http.StatusOK, dto.NoUserRouteResponse{})
		return
	}

	res, err := h.detail(r.Context(), route)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto.UserRouteResponse{Route: res})
}

func (h *RouteHandler) detail(ctx context.Context, route *domain.Route) (dto.RouteDetailResponse, error) {
	var carpool []*domain.Route
	if route.Type == domain.RouteTypeShared {
		var err error
		if carpool, err = h.Routes.ListCarpool(ctx, route); err != nil {
			return dto.RouteDetailResponse{}, fmt.Errorf("route detail: %w", err)
		}
	}
	return dto.NewRouteDetailResponse(route, carpool), nil
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusBadRequest, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

func pathDate(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	date, err := time.Parse(time.DateOnly, chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return date, true
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}
