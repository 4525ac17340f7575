package domain

import "time"

type MeetingKind string

const (
	MeetingKindField  MeetingKind = "field"
	MeetingKindRemote MeetingKind = "remote"
	MeetingKindOffice MeetingKind = "office"
)

// Meeting is a scheduled client visit owned by one salesperson.
// Only field meetings require travel and take part in route optimization.
// Meetings are read-only inputs to the optimizer.
type Meeting struct {
	MeetingID       int64
	UserID          int64
	ClientID        int64
	Title           string
	ScheduledDate   time.Time
	ScheduledAt     time.Time
	DurationMinutes int
	Location        Location
	Kind            MeetingKind
}

func (m *Meeting) Duration() time.Duration {
	return time.Duration(m.DurationMinutes) * time.Minute
}

// EndsAt returns the scheduled end of the meeting.
func (m *Meeting) EndsAt() time.Time {
	return m.ScheduledAt.Add(m.Duration())
}
