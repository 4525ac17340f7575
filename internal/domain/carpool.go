package domain

// CarpoolGroup lists the salespeople sharing one vehicle for a date.
// The first member is the driver; a single member means no carpool.
type CarpoolGroup struct {
	UserIDs []int64
}

func (g CarpoolGroup) IsShared() bool { return len(g.UserIDs) > 1 }
