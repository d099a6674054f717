package ingest

import (
	"io"

	"github.com/pkg/errors"

	"arrival-predictor/internal/gtfs"
	"arrival-predictor/internal/route"
)

// DecodeGTFS reads a GTFS static zip. Every route is represented by its
// earliest trip.
func DecodeGTFS(r io.Reader) (route.Table, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return route.Table{}, errors.Wrap(err, "reading gtfs zip")
	}

	trips, err := gtfs.ParseStatic(b)
	if err != nil {
		return route.Table{}, err
	}
	return buildFromSchedules(gtfs.EarliestPerRoute(trips))
}

// FromSchedules turns trip schedules loaded elsewhere (a GTFS database)
// into a validated table.
func FromSchedules(trips []gtfs.TripSchedule) (route.Table, error) {
	return buildFromSchedules(gtfs.EarliestPerRoute(trips))
}

func buildFromSchedules(trips []gtfs.TripSchedule) (route.Table, error) {
	t := gtfs.Table(trips)
	if err := route.ValidateColumns(t.Columns); err != nil {
		return route.Table{}, err
	}
	return t, nil
}
