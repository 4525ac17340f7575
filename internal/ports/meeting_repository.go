package ports

import (
	"context"
	"field-route-service/internal/domain"
	"time"
)

// Port: read access to meetings created by the scheduling layer.
type MeetingRepository interface {
	// Return all meetings of the given kind scheduled on date, ordered by meeting id.
	ListMeetings(ctx context.Context, date time.Time, kind domain.MeetingKind) ([]*domain.Meeting, error)
}
