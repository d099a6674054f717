package ingest

import (
	"io"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"

	"arrival-predictor/internal/route"
)

type exportRow struct {
	RouteID       string  `csv:"route_id"`
	RouteName     string  `csv:"route_name"`
	StopID        string  `csv:"stop_id"`
	StopName      string  `csv:"stop_name"`
	Latitude      float64 `csv:"latitude"`
	Longitude     float64 `csv:"longitude"`
	Sequence      int     `csv:"sequence"`
	ScheduledTime string  `csv:"scheduled_time"`
}

// EncodeCSV writes one row per stop with its predicted arrival as
// scheduled_time, so an export can be uploaded again.
func EncodeCSV(w io.Writer, routes []route.Route) error {
	rows := []*exportRow{}
	for _, r := range routes {
		for i, s := range r.Stops {
			rows = append(rows, &exportRow{
				RouteID:       r.ID,
				RouteName:     r.Name,
				StopID:        s.ID,
				StopName:      s.Name,
				Latitude:      s.Coordinates[0],
				Longitude:     s.Coordinates[1],
				Sequence:      i + 1,
				ScheduledTime: s.PredictedArrivalTime,
			})
		}
	}
	if err := gocsv.Marshal(&rows, w); err != nil {
		return errors.Wrap(err, "marshaling routes csv")
	}
	return nil
}
