//go:build integration

package repositories

import (
	"context"
	"database/sql"
	"errors"
	"field-route-service/internal/adapters/cache"
	"field-route-service/internal/domain"
	"field-route-service/internal/platform/db"
	"field-route-service/internal/ports"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "routes",
			"POSTGRES_PASSWORD": "routes",
			"POSTGRES_DB":       "routes",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(90 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}

	url := fmt.Sprintf("postgres://routes:routes@%s:%s/routes?sslmode=disable", host, port.Port())
	conn, err := db.Open(ctx, url)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	if err := InitSchema(ctx, conn); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return conn
}

func writeSeed(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "meetings.json")
	seed := `[
		{"meeting_id": 1, "user_id": 1, "client_id": 10, "title": "Dairy co-op", "scheduled_at": "2026-03-02T09:00:00Z",
		 "duration_minutes": 60, "lat": -1.2864, "lon": 36.8172, "location_label": "CBD", "kind": "field"},
		{"meeting_id": 2, "user_id": 2, "client_id": 11, "title": "Pharmacy", "scheduled_at": "2026-03-02T11:00:00Z",
		 "duration_minutes": 45, "lat": -1.2633, "lon": 36.8036, "location_label": "Westlands", "kind": "field"},
		{"meeting_id": 3, "user_id": 2, "client_id": 12, "title": "Call", "scheduled_at": "2026-03-02T14:00:00Z",
		 "duration_minutes": 30, "lat": -1.2633, "lon": 36.8036, "location_label": "Westlands", "kind": "remote"}
	]`
	if err := os.WriteFile(path, []byte(seed), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	return path
}

func TestPostgresAdapters(t *testing.T) {
	conn := startPostgres(t)
	ctx := context.Background()
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	if err := SeedMeetingsFromJSON(ctx, conn, writeSeed(t)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	meetings, err := NewSQLMeetingRepository(conn).ListMeetings(ctx, day, domain.MeetingKindField)
	if err != nil {
		t.Fatalf("list meetings: %v", err)
	}
	if len(meetings) != 2 || meetings[0].MeetingID != 1 || meetings[1].MeetingID != 2 {
		t.Fatalf("meetings = %+v, want field meetings 1 and 2", meetings)
	}
	if !meetings[0].ScheduledDate.Equal(day) {
		t.Fatalf("scheduled date = %s, want %s", meetings[0].ScheduledDate, day)
	}

	store := cache.NewSQLRouteCache(conn)
	cr := &domain.CachedRoute{
		WaypointsHash:       "abc123",
		RawResponse:         []byte(`{"routes":[{"distanceMeters":9000}]}`),
		TotalDistanceMeters: 9000,
		TotalDuration:       30 * time.Minute,
		EncodedPolyline:     "poly",
		Legs:                []domain.Leg{{DistanceMeters: 4000, Duration: 12 * time.Minute}, {DistanceMeters: 5000, Duration: 18 * time.Minute}},
	}
	if err := store.Create(ctx, cr); err != nil {
		t.Fatalf("create cached route: %v", err)
	}

	dup := &domain.CachedRoute{WaypointsHash: "abc123", EncodedPolyline: "other"}
	if err := store.Create(ctx, dup); err != nil {
		t.Fatalf("create duplicate cached route: %v", err)
	}
	if dup.CachedRouteID != cr.CachedRouteID || dup.EncodedPolyline != "poly" {
		t.Fatalf("duplicate = %+v, want stored row %d", dup, cr.CachedRouteID)
	}

	found, err := store.FindByHash(ctx, "abc123")
	if err != nil || found == nil {
		t.Fatalf("find cached route = %v, %v", found, err)
	}
	if len(found.Legs) != 2 || found.Legs[1].Duration != 18*time.Minute {
		t.Fatalf("legs = %+v, want 2 legs", found.Legs)
	}

	repo := NewSQLRouteRepository(conn)
	meetingID := int64(1)
	lead := &domain.Route{
		UserID: 1, RouteDate: day, CachedRouteID: cr.CachedRouteID, Type: domain.RouteTypeShared,
		ScheduledDeparture: day.Add(8 * time.Hour), ScheduledReturn: day.Add(13 * time.Hour),
		Status: domain.RouteStatusOptimized,
		Stops: []domain.Stop{
			{Order: 0, Kind: domain.StopKindStart, EstimatedArrival: day.Add(8 * time.Hour), EstimatedDeparture: day.Add(8 * time.Hour), Status: domain.StopStatusScheduled},
			{MeetingID: &meetingID, Order: 1, Kind: domain.StopKindMeeting, EstimatedArrival: day.Add(9 * time.Hour), EstimatedDeparture: day.Add(10 * time.Hour), DistanceFromPreviousMeters: 4000, DurationFromPrevious: 12 * time.Minute, Status: domain.StopStatusScheduled},
		},
	}
	passenger := &domain.Route{
		UserID: 2, RouteDate: day, CachedRouteID: cr.CachedRouteID, Type: domain.RouteTypeShared,
		ScheduledDeparture: lead.ScheduledDeparture, ScheduledReturn: lead.ScheduledReturn,
		Status: domain.RouteStatusOptimized,
	}

	err = repo.WithinTx(ctx, func(w ports.RouteWriter) error {
		if err := w.CreateRoute(ctx, lead); err != nil {
			return err
		}
		if err := w.CreateStops(ctx, lead.RouteID, lead.Stops); err != nil {
			return err
		}
		passenger.LeadRouteID = &lead.RouteID
		return w.CreateRoute(ctx, passenger)
	})
	if err != nil {
		t.Fatalf("within tx: %v", err)
	}

	rollback := errors.New("rollback")
	err = repo.WithinTx(ctx, func(w ports.RouteWriter) error {
		r := &domain.Route{UserID: 9, RouteDate: day, CachedRouteID: cr.CachedRouteID, Type: domain.RouteTypeIndividual,
			ScheduledDeparture: day, ScheduledReturn: day, Status: domain.RouteStatusOptimized}
		if err := w.CreateRoute(ctx, r); err != nil {
			return err
		}
		return rollback
	})
	if !errors.Is(err, rollback) {
		t.Fatalf("err = %v, want rollback", err)
	}

	routes, total, err := repo.ListByDate(ctx, day, ports.Page{Page: 1, PerPage: 20})
	if err != nil {
		t.Fatalf("list by date: %v", err)
	}
	if total != 2 || len(routes) != 2 {
		t.Fatalf("list by date = %d routes, total %d, want 2, 2", len(routes), total)
	}

	got, err := repo.GetRoute(ctx, lead.RouteID)
	if err != nil {
		t.Fatalf("get route: %v", err)
	}
	if len(got.Stops) != 2 || got.Stops[1].MeetingID == nil || *got.Stops[1].MeetingID != 1 {
		t.Fatalf("stops = %+v, want start and meeting 1", got.Stops)
	}
	if got.CachedRoute == nil || got.CachedRoute.TotalDistanceMeters != 9000 {
		t.Fatalf("cached route summary = %+v, want 9000 m", got.CachedRoute)
	}

	linked, err := repo.ListCarpool(ctx, got)
	if err != nil || len(linked) != 1 || linked[0].RouteID != passenger.RouteID {
		t.Fatalf("carpool = %v, %v, want passenger %d", linked, err, passenger.RouteID)
	}

	if err := repo.TransitionStatus(ctx, lead.RouteID, domain.RouteStatusAccepted); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := repo.TransitionStatus(ctx, lead.RouteID, domain.RouteStatusRejected); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("reject accepted route err = %v, want ErrInvalidTransition", err)
	}
	if err := repo.TransitionStatus(ctx, 999999, domain.RouteStatusAccepted); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown route err = %v, want ErrNotFound", err)
	}

	accepted, err := repo.FindUserRoute(ctx, 1, day, domain.RouteStatusAccepted)
	if err != nil || accepted == nil || accepted.RouteID != lead.RouteID {
		t.Fatalf("find user route = %v, %v, want %d", accepted, err, lead.RouteID)
	}

	if err := repo.DeleteRoute(ctx, lead.RouteID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.GetRoute(ctx, passenger.RouteID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("passenger after lead delete err = %v, want ErrNotFound", err)
	}
}
