package repositories

import (
	"context"
	"database/sql"
	"errors"
	"field-route-service/internal/domain"
	"field-route-service/internal/platform/obs"
	"fmt"
	"time"
)

// Postgres-backed implementation of the MeetingRepository port.
type SQLMeetingRepository struct{ DB *sql.DB }

func NewSQLMeetingRepository(db *sql.DB) *SQLMeetingRepository {
	return &SQLMeetingRepository{DB: db}
}

// Return the meetings of kind scheduled on date, ordered by meeting id.
func (s *SQLMeetingRepository) ListMeetings(
	ctx context.Context,
	date time.Time,
	kind domain.MeetingKind,
) (_ []*domain.Meeting, err error) {
	defer obs.Time(ctx, "meetings.ListMeetings")(&err)

	if s.DB == nil {
		return nil, errors.New("sql meeting repository: DB is nil")
	}

	query := `
	SELECT
		meeting_id, user_id, client_id, title, scheduled_date, scheduled_at,
		duration_minutes, lat, lon, location_label, kind
	FROM meetings
	WHERE scheduled_date = $1::date AND kind = $2
	ORDER BY meeting_id;
	`
	rows, err := s.DB.QueryContext(ctx, query, date.Format(time.DateOnly), string(kind))
	if err != nil {
		return nil, fmt.Errorf("list meetings: query meetings table: %w", err)
	}
	defer rows.Close()

	meetings := make([]*domain.Meeting, 0, 32)
	for rows.Next() {
		var (
			m        domain.Meeting
			kindText string
		)
		err := rows.Scan(
			&m.MeetingID, &m.UserID, &m.ClientID, &m.Title, &m.ScheduledDate, &m.ScheduledAt,
			&m.DurationMinutes, &m.Location.Lat, &m.Location.Lon, &m.Location.Label, &kindText,
		)
		if err != nil {
			return nil, fmt.Errorf("list meetings: scan row: %w", err)
		}
		m.Kind = domain.MeetingKind(kindText)
		m.ScheduledDate = m.ScheduledDate.UTC()
		m.ScheduledAt = m.ScheduledAt.UTC()
		meetings = append(meetings, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list meetings: row iteration: %w", err)
	}

	return meetings, nil
}
