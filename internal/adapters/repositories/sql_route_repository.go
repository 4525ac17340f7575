package repositories

import (
	"context"
	"database/sql"
	"errors"
	"field-route-service/internal/domain"
	"field-route-service/internal/platform/obs"
	"field-route-service/internal/ports"
	"fmt"
	"time"
)

// Postgres-backed implementation of the RouteRepository port.
type SQLRouteRepository struct{ DB *sql.DB }

func NewSQLRouteRepository(db *sql.DB) *SQLRouteRepository {
	return &SQLRouteRepository{DB: db}
}

type sqlRouteWriter struct{ tx *sql.Tx }

func (w *sqlRouteWriter) CreateRoute(ctx context.Context, route *domain.Route) error {
	query := `
	INSERT INTO routes (
		user_id, route_date, cached_route_id, route_type, lead_route_id,
		scheduled_departure, scheduled_return, status
	)
	VALUES ($1, $2::date, $3, $4, $5, $6, $7, $8)
	RETURNING route_id, created_at;
	`
	err := w.tx.QueryRowContext(ctx, query,
		route.UserID,
		route.RouteDate.Format(time.DateOnly),
		route.CachedRouteID,
		string(route.Type),
		route.LeadRouteID,
		route.ScheduledDeparture,
		route.ScheduledReturn,
		string(route.Status),
	).Scan(&route.RouteID, &route.CreatedAt)
	if err != nil {
		return fmt.Errorf("create route for user %d: %w", route.UserID, err)
	}
	return nil
}

func (w *sqlRouteWriter) CreateStops(ctx context.Context, routeID int64, stops []domain.Stop) error {
	stmt, err := w.tx.PrepareContext(ctx, `
	INSERT INTO route_stops (
		route_id, meeting_id, stop_order, stop_type, estimated_arrival, estimated_departure,
		distance_from_previous_meters, duration_from_previous_seconds, status
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	RETURNING stop_id;
	`)
	if err != nil {
		return fmt.Errorf("create stops: db prepare: %w", err)
	}
	defer stmt.Close()

	for i := range stops {
		st := &stops[i]
		err := stmt.QueryRowContext(ctx,
			routeID,
			st.MeetingID,
			st.Order,
			string(st.Kind),
			st.EstimatedArrival,
			st.EstimatedDeparture,
			st.DistanceFromPreviousMeters,
			int64(st.DurationFromPrevious/time.Second),
			st.Status,
		).Scan(&st.StopID)
		if err != nil {
			return fmt.Errorf("create stops: route %d order %d: %w", routeID, st.Order, err)
		}
		st.RouteID = routeID
	}
	return nil
}

// Run fn inside one database transaction.
func (s *SQLRouteRepository) WithinTx(ctx context.Context, fn func(w ports.RouteWriter) error) error {
	if s.DB == nil {
		return errors.New("sql route repository: DB is nil")
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("route tx: db begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&sqlRouteWriter{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("route tx: commit: %w", err)
	}
	return nil
}

const routeSelect = `
	SELECT
		r.route_id, r.user_id, r.route_date, r.cached_route_id, r.route_type, r.lead_route_id,
		r.scheduled_departure, r.scheduled_return, r.status, r.created_at,
		c.total_distance_meters, c.total_duration_seconds, c.encoded_polyline,
		(SELECT count(*) FROM route_stops s WHERE s.route_id = r.route_id)
	FROM routes r
	JOIN cached_routes c ON c.cached_route_id = r.cached_route_id
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoute(row rowScanner) (*domain.Route, error) {
	var (
		r        domain.Route
		cr       domain.CachedRoute
		typ      string
		status   string
		lead     sql.NullInt64
		duration int64
	)
	err := row.Scan(
		&r.RouteID, &r.UserID, &r.RouteDate, &r.CachedRouteID, &typ, &lead,
		&r.ScheduledDeparture, &r.ScheduledReturn, &status, &r.CreatedAt,
		&cr.TotalDistanceMeters, &duration, &cr.EncodedPolyline, &r.StopCount,
	)
	if err != nil {
		return nil, err
	}

	r.Type = domain.RouteType(typ)
	r.Status = domain.RouteStatus(status)
	if lead.Valid {
		id := lead.Int64
		r.LeadRouteID = &id
	}
	r.RouteDate = r.RouteDate.UTC()
	r.ScheduledDeparture = r.ScheduledDeparture.UTC()
	r.ScheduledReturn = r.ScheduledReturn.UTC()

	cr.CachedRouteID = r.CachedRouteID
	cr.TotalDuration = time.Duration(duration) * time.Second
	r.CachedRoute = &cr
	return &r, nil
}

func (s *SQLRouteRepository) queryRoutes(ctx context.Context, query string, args ...any) ([]*domain.Route, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query routes: %w", err)
	}
	defer rows.Close()

	routes := make([]*domain.Route, 0, 16)
	for rows.Next() {
		r, err := scanRoute(rows)
		if err != nil {
			return nil, fmt.Errorf("scan route: %w", err)
		}
		routes = append(routes, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("route row iteration: %w", err)
	}
	return routes, nil
}

func (s *SQLRouteRepository) loadStops(ctx context.Context, route *domain.Route) error {
	query := `
	SELECT
		stop_id, route_id, meeting_id, stop_order, stop_type, estimated_arrival, estimated_departure,
		distance_from_previous_meters, duration_from_previous_seconds, status
	FROM route_stops
	WHERE route_id = $1
	ORDER BY stop_order;
	`
	rows, err := s.DB.QueryContext(ctx, query, route.RouteID)
	if err != nil {
		return fmt.Errorf("load stops: %w", err)
	}
	defer rows.Close()

	route.Stops = make([]domain.Stop, 0, 8)
	for rows.Next() {
		var (
			st      domain.Stop
			meeting sql.NullInt64
			kind    string
			seconds int64
		)
		err := rows.Scan(
			&st.StopID, &st.RouteID, &meeting, &st.Order, &kind, &st.EstimatedArrival, &st.EstimatedDeparture,
			&st.DistanceFromPreviousMeters, &seconds, &st.Status,
		)
		if err != nil {
			return fmt.Errorf("load stops: scan row: %w", err)
		}
		if meeting.Valid {
			id := meeting.Int64
			st.MeetingID = &id
		}
		st.Kind = domain.StopKind(kind)
		st.EstimatedArrival = st.EstimatedArrival.UTC()
		st.EstimatedDeparture = st.EstimatedDeparture.UTC()
		st.DurationFromPrevious = time.Duration(seconds) * time.Second
		route.Stops = append(route.Stops, st)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load stops: row iteration: %w", err)
	}
	return nil
}

func (s *SQLRouteRepository) ListByDate(
	ctx context.Context,
	date time.Time,
	page ports.Page,
) (_ []*domain.Route, _ int, err error) {
	defer obs.Time(ctx, "routes.ListByDate")(&err)

	day := date.Format(time.DateOnly)

	var total int
	if err := s.DB.QueryRowContext(ctx, `SELECT count(*) FROM routes WHERE route_date = $1::date;`, day).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("list routes by date: count: %w", err)
	}

	routes, err := s.queryRoutes(ctx,
		routeSelect+` WHERE r.route_date = $1::date ORDER BY r.route_id LIMIT $2 OFFSET $3;`,
		day, page.PerPage, page.Offset(),
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list routes by date: %w", err)
	}
	return routes, total, nil
}

func (s *SQLRouteRepository) GetRoute(ctx context.Context, routeID int64) (_ *domain.Route, err error) {
	defer obs.Time(ctx, "routes.GetRoute")(&err)

	r, err := scanRoute(s.DB.QueryRowContext(ctx, routeSelect+` WHERE r.route_id = $1;`, routeID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get route %d: %w", routeID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get route %d: %w", routeID, err)
	}

	if err := s.loadStops(ctx, r); err != nil {
		return nil, fmt.Errorf("get route %d: %w", routeID, err)
	}
	return r, nil
}

func (s *SQLRouteRepository) ListCarpool(ctx context.Context, route *domain.Route) ([]*domain.Route, error) {
	switch {
	case route.IsLead():
		return s.queryRoutes(ctx, routeSelect+` WHERE r.lead_route_id = $1 ORDER BY r.route_id;`, route.RouteID)
	case route.IsPassenger():
		return s.queryRoutes(ctx, routeSelect+` WHERE r.route_id = $1;`, *route.LeadRouteID)
	}
	return []*domain.Route{}, nil
}

func (s *SQLRouteRepository) FindUserRoute(
	ctx context.Context,
	userID int64,
	date time.Time,
	status domain.RouteStatus,
) (_ *domain.Route, err error) {
	defer obs.Time(ctx, "routes.FindUserRoute")(&err)

	routes, err := s.queryRoutes(ctx,
		routeSelect+` WHERE r.user_id = $1 AND r.route_date = $2::date AND r.status = $3 ORDER BY r.route_id LIMIT 1;`,
		userID, date.Format(time.DateOnly), string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("find user route: %w", err)
	}
	if len(routes) == 0 {
		return nil, nil
	}

	if err := s.loadStops(ctx, routes[0]); err != nil {
		return nil, fmt.Errorf("find user route: %w", err)
	}
	return routes[0], nil
}

// Update the route status when its current status allows the move.
func (s *SQLRouteRepository) TransitionStatus(ctx context.Context, routeID int64, status domain.RouteStatus) (err error) {
	defer obs.Time(ctx, "routes.TransitionStatus")(&err)

	from := make([]string, 0, len(domain.ApprovableStatuses))
	for _, st := range domain.ApprovableStatuses {
		if st.CanTransitionTo(status) {
			from = append(from, string(st))
		}
	}

	res, err := s.DB.ExecContext(ctx,
		`UPDATE routes SET status = $2 WHERE route_id = $1 AND status = ANY($3::text[]);`,
		routeID, string(status), from,
	)
	if err != nil {
		return fmt.Errorf("transition route %d: %w", routeID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition route %d: rows affected: %w", routeID, err)
	}
	if n > 0 {
		return nil
	}

	var current string
	err = s.DB.QueryRowContext(ctx, `SELECT status FROM routes WHERE route_id = $1;`, routeID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("transition route %d: %w", routeID, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("transition route %d: read status: %w", routeID, err)
	}
	return fmt.Errorf("transition route %d from %s to %s: %w", routeID, current, status, domain.ErrInvalidTransition)
}

// Delete the route. Stops and passenger routes go with it through ON DELETE CASCADE.
func (s *SQLRouteRepository) DeleteRoute(ctx context.Context, routeID int64) (err error) {
	defer obs.Time(ctx, "routes.DeleteRoute")(&err)

	res, err := s.DB.ExecContext(ctx, `DELETE FROM routes WHERE route_id = $1;`, routeID)
	if err != nil {
		return fmt.Errorf("delete route %d: %w", routeID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete route %d: rows affected: %w", routeID, err)
	}
	if n == 0 {
		return fmt.Errorf("delete route %d: %w", routeID, domain.ErrNotFound)
	}
	return nil
}
