package services

import (
	"field-route-service/internal/domain"
	"slices"
	"time"
)

const (
	DefaultMaxGroupSize  = 4
	DefaultMinMeetingGap = 45 * time.Minute
)

// CarpoolGrouper partitions salespeople into groups that can share one vehicle.
type CarpoolGrouper struct {
	MaxGroupSize int
	MinGap       time.Duration
}

func NewCarpoolGrouper() *CarpoolGrouper {
	return &CarpoolGrouper{MaxGroupSize: DefaultMaxGroupSize, MinGap: DefaultMinMeetingGap}
}

// Group assigns every salesperson in order that has meetings to exactly one group.
//
// The algorithm is greedy first-fit: the next ungrouped salesperson opens a group,
// then the remaining salespeople are scanned in order and each one compatible with
// every current member joins, until the group is full. Grouping is never revisited,
// so the result depends on order; callers pass a stable order for reproducible output.
// Salespeople without meetings produce no group.
func (g *CarpoolGrouper) Group(order []int64, meetingsByUser map[int64][]*domain.Meeting) []domain.CarpoolGroup {
	maxSize := g.MaxGroupSize
	if maxSize < 1 {
		maxSize = 1
	}

	grouped := make(map[int64]bool, len(order))
	groups := make([]domain.CarpoolGroup, 0, len(order))

	for i, lead := range order {
		if grouped[lead] || len(meetingsByUser[lead]) == 0 {
			continue
		}
		grouped[lead] = true

		members := []int64{lead}
		starts := startTimes(meetingsByUser[lead])

		for _, candidate := range order[i+1:] {
			if len(members) >= maxSize {
				break
			}
			if grouped[candidate] || len(meetingsByUser[candidate]) == 0 {
				continue
			}

			merged := append(slices.Clone(starts), startTimes(meetingsByUser[candidate])...)
			if !g.separated(merged) {
				continue
			}

			grouped[candidate] = true
			members = append(members, candidate)
			starts = merged
		}

		groups = append(groups, domain.CarpoolGroup{UserIDs: members})
	}

	return groups
}

// separated reports whether every adjacent pair of sorted start times is at least MinGap apart.
// Meeting durations are not considered.
func (g *CarpoolGrouper) separated(starts []time.Time) bool {
	slices.SortFunc(starts, func(a, b time.Time) int { return a.Compare(b) })

	for i := 1; i < len(starts); i++ {
		if starts[i].Sub(starts[i-1]) < g.MinGap {
			return false
		}
	}
	return true
}

func startTimes(meetings []*domain.Meeting) []time.Time {
	out := make([]time.Time, 0, len(meetings))
	for _, m := range meetings {
		out = append(out, m.ScheduledAt)
	}
	return out
}
