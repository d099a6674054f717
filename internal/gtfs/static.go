package gtfs

import (
	"fmt"
	"sort"

	"github.com/jamespfennell/gtfs"
)

// ParseStatic reads a GTFS static zip and returns every trip that has stop
// times, with stops resolved.
func ParseStatic(b []byte) ([]TripSchedule, error) {
	staticData, err := gtfs.ParseStatic(b, gtfs.ParseStaticOptions{})
	if err != nil {
		return nil, fmt.Errorf("error parsing GTFS data: %w", err)
	}

	trips := make([]TripSchedule, 0, len(staticData.Trips))
	for _, t := range staticData.Trips {
		if t.Route == nil || len(t.StopTimes) == 0 {
			continue
		}
		ts := TripSchedule{Trip: Trip{TripID: t.ID, RouteID: t.Route.Id}}
		if t.Service != nil {
			ts.ServiceID = t.Service.Id
		}
		for _, st := range t.StopTimes {
			if st.Stop == nil {
				continue
			}
			stop := StopTime{
				StopSequence: int(st.StopSequence),
				ArrivalSec:   int(st.ArrivalTime.Seconds()),
				DepartureSec: int(st.DepartureTime.Seconds()),
				StopID:       st.Stop.Id,
				StopName:     st.Stop.Name,
			}
			if st.Stop.Latitude != nil {
				stop.StopLat = *st.Stop.Latitude
			}
			if st.Stop.Longitude != nil {
				stop.StopLon = *st.Stop.Longitude
			}
			ts.StopTimes = append(ts.StopTimes, stop)
		}
		sort.SliceStable(ts.StopTimes, func(i, j int) bool {
			return ts.StopTimes[i].StopSequence < ts.StopTimes[j].StopSequence
		})
		trips = append(trips, ts)
	}
	return trips, nil
}
