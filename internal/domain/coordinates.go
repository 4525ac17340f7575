package domain

// Immutable geographic coordinates (longitude, latitude).
type Coordinates struct {
	Lon float64
	Lat float64
}

// Location is a labelled point, e.g. a client site or the office.
type Location struct {
	Coordinates
	Label string
}
