// Package memory provides in-process implementations of the storage ports.
// They back the service when no database is configured and serve as test doubles.
package memory

import (
	"context"
	"field-route-service/internal/domain"
	"slices"
	"sync"
	"time"
)

type MeetingRepository struct {
	mu       sync.RWMutex
	meetings []*domain.Meeting
	nextID   int64
}

func NewMeetingRepository(meetings ...*domain.Meeting) *MeetingRepository {
	r := &MeetingRepository{}
	for _, m := range meetings {
		r.Add(m)
	}
	return r
}

// Add stores m, assigning a MeetingID when it has none.
func (r *MeetingRepository) Add(m *domain.Meeting) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m.MeetingID == 0 {
		r.nextID++
		m.MeetingID = r.nextID
	} else if m.MeetingID > r.nextID {
		r.nextID = m.MeetingID
	}
	r.meetings = append(r.meetings, m)
}

func (r *MeetingRepository) ListMeetings(
	ctx context.Context,
	date time.Time,
	kind domain.MeetingKind,
) ([]*domain.Meeting, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Meeting, 0)
	for _, m := range r.meetings {
		if m.Kind == kind && sameDay(m.ScheduledDate, date) {
			out = append(out, m)
		}
	}

	slices.SortFunc(out, func(a, b *domain.Meeting) int {
		return compareInt64(a.MeetingID, b.MeetingID)
	})

	return out, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
