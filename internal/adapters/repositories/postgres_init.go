package repositories

import (
	"context"
	"database/sql"
	"errors"
	"field-route-service/internal/domain"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Initialize the Postgres database schema.
func InitSchema(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return errors.New("init schema: DB is nil")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("init schema: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	createMeetingsQuery := `
	CREATE TABLE IF NOT EXISTS meetings (
		meeting_id BIGINT PRIMARY KEY,
		user_id BIGINT NOT NULL,
		client_id BIGINT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		scheduled_date DATE NOT NULL,
		scheduled_at TIMESTAMPTZ NOT NULL,
		duration_minutes INTEGER NOT NULL CHECK (duration_minutes >= 0),
		lat DOUBLE PRECISION NOT NULL,
		lon DOUBLE PRECISION NOT NULL,
		location_label TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL CHECK (kind IN ('field', 'remote', 'office'))
	);
	`

	createCachedRoutesQuery := `
	CREATE TABLE IF NOT EXISTS cached_routes (
		cached_route_id BIGSERIAL PRIMARY KEY,
		waypoints_hash TEXT NOT NULL,
		raw_response JSONB NOT NULL,
		total_distance_meters INTEGER NOT NULL CHECK (total_distance_meters >= 0),
		total_duration_seconds BIGINT NOT NULL CHECK (total_duration_seconds >= 0),
		encoded_polyline TEXT NOT NULL,
		legs JSONB NOT NULL DEFAULT '[]',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	`

	createRoutesQuery := `
	CREATE TABLE IF NOT EXISTS routes (
		route_id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		route_date DATE NOT NULL,
		cached_route_id BIGINT NOT NULL REFERENCES cached_routes (cached_route_id),
		route_type TEXT NOT NULL CHECK (route_type IN ('individual', 'shared')),
		lead_route_id BIGINT REFERENCES routes (route_id) ON DELETE CASCADE,
		scheduled_departure TIMESTAMPTZ NOT NULL,
		scheduled_return TIMESTAMPTZ NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('optimized', 'pending', 'accepted', 'rejected')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	`

	createStopsQuery := `
	CREATE TABLE IF NOT EXISTS route_stops (
		stop_id BIGSERIAL PRIMARY KEY,
		route_id BIGINT NOT NULL REFERENCES routes (route_id) ON DELETE CASCADE,
		meeting_id BIGINT REFERENCES meetings (meeting_id) ON DELETE SET NULL,
		stop_order INTEGER NOT NULL CHECK (stop_order >= 0),
		stop_type TEXT NOT NULL CHECK (stop_type IN ('start', 'meeting', 'end')),
		estimated_arrival TIMESTAMPTZ NOT NULL,
		estimated_departure TIMESTAMPTZ NOT NULL,
		distance_from_previous_meters INTEGER NOT NULL DEFAULT 0,
		duration_from_previous_seconds BIGINT NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'scheduled',
		UNIQUE (route_id, stop_order)
	);
	`

	indexQueries := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_cached_routes_hash ON cached_routes (waypoints_hash);`,
		`CREATE INDEX IF NOT EXISTS idx_meetings_date_kind ON meetings (scheduled_date, kind);`,
		`CREATE INDEX IF NOT EXISTS idx_routes_date ON routes (route_date);`,
		`CREATE INDEX IF NOT EXISTS idx_routes_user_date ON routes (user_id, route_date);`,
		`CREATE INDEX IF NOT EXISTS idx_routes_lead ON routes (lead_route_id);`,
	}

	statements := append([]string{
		createMeetingsQuery,
		createCachedRoutesQuery,
		createRoutesQuery,
		createStopsQuery,
	}, indexQueries...)

	for i, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: exec statement #%d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("init schema: commit tx: %w", err)
	}

	return nil
}

type MeetingSeed struct {
	MeetingID       int64     `json:"meeting_id"`
	UserID          int64     `json:"user_id"`
	ClientID        int64     `json:"client_id"`
	Title           string    `json:"title"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	DurationMinutes int       `json:"duration_minutes"`
	Lat             float64   `json:"lat"`
	Lon             float64   `json:"lon"`
	LocationLabel   string    `json:"location_label"`
	Kind            string    `json:"kind"`
}

// ParseMeetingSeeds reads and validates a JSON array of meetings.
func ParseMeetingSeeds(jsonPath string) ([]*domain.Meeting, error) {
	bytes, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("seed meetings: read %q: %w", jsonPath, err)
	}

	var data []MeetingSeed
	if err := json.Unmarshal(bytes, &data); err != nil {
		return nil, fmt.Errorf("seed meetings: parse json: %w", err)
	}

	out := make([]*domain.Meeting, 0, len(data))
	for i, item := range data {
		if item.MeetingID <= 0 || item.UserID <= 0 {
			return nil, fmt.Errorf("seed meetings: item %d: meeting_id and user_id must be positive", i+1)
		}
		if item.ScheduledAt.IsZero() {
			return nil, fmt.Errorf("seed meetings: item %d: scheduled_at is required", i+1)
		}
		if item.DurationMinutes < 0 {
			return nil, fmt.Errorf("seed meetings: item %d: negative duration", i+1)
		}

		kind := domain.MeetingKind(strings.TrimSpace(item.Kind))
		switch kind {
		case domain.MeetingKindField, domain.MeetingKindRemote, domain.MeetingKindOffice:
		default:
			return nil, fmt.Errorf("seed meetings: item %d: unknown kind %q", i+1, item.Kind)
		}

		at := item.ScheduledAt.UTC()
		y, m, d := at.Date()
		out = append(out, &domain.Meeting{
			MeetingID:       item.MeetingID,
			UserID:          item.UserID,
			ClientID:        item.ClientID,
			Title:           strings.TrimSpace(item.Title),
			ScheduledDate:   time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
			ScheduledAt:     at,
			DurationMinutes: item.DurationMinutes,
			Location: domain.Location{
				Coordinates: domain.Coordinates{Lon: item.Lon, Lat: item.Lat},
				Label:       strings.TrimSpace(item.LocationLabel),
			},
			Kind: kind,
		})
	}

	return out, nil
}

// Populate the meetings table from a JSON file. Existing meetings with the same id are replaced.
func SeedMeetingsFromJSON(ctx context.Context, db *sql.DB, jsonPath string) error {
	meetings, err := ParseMeetingSeeds(jsonPath)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("seed meetings: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
	INSERT INTO meetings (
		meeting_id, user_id, client_id, title, scheduled_date, scheduled_at,
		duration_minutes, lat, lon, location_label, kind
	)
	VALUES ($1, $2, $3, $4, $5::date, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (meeting_id) DO UPDATE
	SET user_id = EXCLUDED.user_id,
		client_id = EXCLUDED.client_id,
		title = EXCLUDED.title,
		scheduled_date = EXCLUDED.scheduled_date,
		scheduled_at = EXCLUDED.scheduled_at,
		duration_minutes = EXCLUDED.duration_minutes,
		lat = EXCLUDED.lat,
		lon = EXCLUDED.lon,
		location_label = EXCLUDED.location_label,
		kind = EXCLUDED.kind;
	`
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("seed meetings: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range meetings {
		if _, err := stmt.ExecContext(ctx,
			m.MeetingID, m.UserID, m.ClientID, m.Title, m.ScheduledDate.Format(time.DateOnly), m.ScheduledAt,
			m.DurationMinutes, m.Location.Lat, m.Location.Lon, m.Location.Label, string(m.Kind),
		); err != nil {
			return fmt.Errorf("seed meetings: insert meeting_id=%d: %w", m.MeetingID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("seed meetings: commit tx: %w", err)
	}

	return nil
}
