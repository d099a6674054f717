// Package ingest decodes uploaded timetables into route tables.
package ingest

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"arrival-predictor/internal/route"
)

// maxProblems caps the per-row messages carried by a ValidationError.
const maxProblems = 20

// rawRow is one input row before typing. Every cell is kept as text so CSV
// and JSON sources share the same validation.
type rawRow struct {
	RouteID       string `csv:"route_id"`
	StopID        string `csv:"stop_id"`
	StopName      string `csv:"stop_name"`
	Address       string `csv:"address"`
	Latitude      string `csv:"latitude"`
	Longitude     string `csv:"longitude"`
	ScheduledTime string `csv:"scheduled_time"`
	DwellSeconds  string `csv:"dwell_time_in_seconds"`
	SegmentLength string `csv:"segment_length"`
}

func (r *rawRow) set(column, value string) {
	switch column {
	case route.ColRouteID:
		r.RouteID = value
	case route.ColStopID:
		r.StopID = value
	case route.ColStopName:
		r.StopName = value
	case route.ColAddress:
		r.Address = value
	case route.ColLatitude:
		r.Latitude = value
	case route.ColLongitude:
		r.Longitude = value
	case route.ColScheduledTime:
		r.ScheduledTime = value
	case route.ColDwellSeconds:
		r.DwellSeconds = value
	case route.ColSegmentLength:
		r.SegmentLength = value
	}
}

// buildTable validates columns first, then types every row. Malformed
// cells are collected into a single ValidationError.
func buildTable(columns []string, rows []rawRow) (route.Table, error) {
	if err := route.ValidateColumns(columns); err != nil {
		return route.Table{}, err
	}

	t := route.Table{Columns: columns, Rows: make([]route.StopRecord, 0, len(rows))}
	hasDwell := t.Has(route.ColDwellSeconds)
	hasSegment := t.Has(route.ColSegmentLength)

	verr := &route.ValidationError{}
	suppressed := 0
	report := func(row int, format string, args ...any) {
		if len(verr.Problems) >= maxProblems {
			suppressed++
			return
		}
		verr.Problems = append(verr.Problems, fmt.Sprintf("row %d: ", row)+fmt.Sprintf(format, args...))
	}

	for i, raw := range rows {
		n := i + 1
		rec := route.StopRecord{
			RouteID:       strings.TrimSpace(raw.RouteID),
			StopID:        strings.TrimSpace(raw.StopID),
			Name:          strings.TrimSpace(raw.StopName),
			ScheduledTime: route.NormalizeScheduledTime(raw.ScheduledTime),
		}
		if rec.Name == "" {
			rec.Name = strings.TrimSpace(raw.Address)
		}
		if rec.RouteID == "" {
			report(n, "route_id is empty")
		}
		if rec.StopID == "" {
			report(n, "stop_id is empty")
		}

		var ok bool
		if rec.Latitude, ok = parseNumber(raw.Latitude); !ok || rec.Latitude < -90 || rec.Latitude > 90 {
			report(n, "latitude %q is not a valid latitude", raw.Latitude)
		}
		if rec.Longitude, ok = parseNumber(raw.Longitude); !ok || rec.Longitude < -180 || rec.Longitude > 180 {
			report(n, "longitude %q is not a valid longitude", raw.Longitude)
		}
		if hasDwell {
			if rec.DwellSeconds, ok = parseNumber(raw.DwellSeconds); !ok || rec.DwellSeconds < 0 {
				report(n, "dwell_time_in_seconds %q is not a non-negative number", raw.DwellSeconds)
			}
		}
		if hasSegment {
			if rec.SegmentLength, ok = parseNumber(raw.SegmentLength); !ok || rec.SegmentLength < 0 {
				report(n, "segment_length %q is not a non-negative number", raw.SegmentLength)
			}
		}

		t.Rows = append(t.Rows, rec)
	}

	if suppressed > 0 {
		verr.Problems = append(verr.Problems, fmt.Sprintf("and %d more problems", suppressed))
	}
	if len(verr.Problems) > 0 {
		return route.Table{}, verr
	}
	return t, nil
}

func parseNumber(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
