package gtfs

type Trip struct {
	TripID    string
	RouteID   string
	ServiceID string
}

type StopTime struct {
	StopSequence int
	ArrivalSec   int // seconds since midnight (can exceed 24h)
	DepartureSec int // seconds since midnight (can exceed 24h)
	StopID       string
	StopName     string
	StopLat      float64
	StopLon      float64
}

// TripSchedule is one trip with its stop times ordered by stop_sequence.
// It stands for the whole route when predictions are built from a feed.
type TripSchedule struct {
	Trip
	StopTimes []StopTime
}

// FirstDeparture returns the departure of the first stop, falling back to
// its arrival.
func (t TripSchedule) FirstDeparture() int {
	if len(t.StopTimes) == 0 {
		return 0
	}
	first := t.StopTimes[0]
	if first.DepartureSec > 0 {
		return first.DepartureSec
	}
	return first.ArrivalSec
}
