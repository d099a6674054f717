package gtfs

import (
	"sort"

	"arrival-predictor/internal/route"
)

// EarliestPerRoute keeps, for every route, the trip that leaves first.
// Ties go to the lower trip id. The result is ordered by route id.
func EarliestPerRoute(trips []TripSchedule) []TripSchedule {
	best := make(map[string]TripSchedule)
	for _, t := range trips {
		if len(t.StopTimes) == 0 {
			continue
		}
		cur, ok := best[t.RouteID]
		if !ok || t.FirstDeparture() < cur.FirstDeparture() ||
			(t.FirstDeparture() == cur.FirstDeparture() && t.TripID < cur.TripID) {
			best[t.RouteID] = t
		}
	}

	out := make([]TripSchedule, 0, len(best))
	for _, t := range best {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RouteID < out[j].RouteID })
	return out
}

// Table turns trip schedules into an ingestion table. Scheduled time is the
// arrival, dwell is departure minus arrival and segment lengths are left
// to be derived from stop coordinates.
func Table(trips []TripSchedule) route.Table {
	t := route.Table{
		Columns: []string{
			route.ColRouteID,
			route.ColStopID,
			route.ColStopName,
			route.ColLatitude,
			route.ColLongitude,
			route.ColScheduledTime,
			route.ColDwellSeconds,
		},
	}
	for _, trip := range trips {
		for _, st := range trip.StopTimes {
			arrival := st.ArrivalSec
			if arrival == 0 {
				arrival = st.DepartureSec
			}
			dwell := st.DepartureSec - arrival
			if dwell < 0 {
				dwell = 0
			}
			t.Rows = append(t.Rows, route.StopRecord{
				RouteID:       trip.RouteID,
				StopID:        st.StopID,
				Name:          st.StopName,
				Latitude:      st.StopLat,
				Longitude:     st.StopLon,
				ScheduledTime: float64(arrival) / 60,
				DwellSeconds:  float64(dwell),
			})
		}
	}
	return t
}
