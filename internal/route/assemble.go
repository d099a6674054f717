package route

import (
	"fmt"
	"sort"
)

// DefaultDwellSeconds is used when a table carries no dwell column.
const DefaultDwellSeconds = 30.0

type AssembleOptions struct {
	// DefaultDwellSeconds replaces DefaultDwellSeconds when positive.
	DefaultDwellSeconds float64
}

func (o AssembleOptions) dwell() float64 {
	if o.DefaultDwellSeconds > 0 {
		return o.DefaultDwellSeconds
	}
	return DefaultDwellSeconds
}

// Assembly is a table grouped into ordered per-route stop sequences.
type Assembly struct {
	Mode Mode
	// Order lists route ids ascending.
	Order  []string
	Routes map[string][]StopRecord
}

// Assemble groups a table by route, orders every route by scheduled time
// and derives the per-stop features. It fails before touching any row when
// required columns are absent.
func Assemble(t Table, opts AssembleOptions) (*Assembly, error) {
	if err := ValidateColumns(t.Columns); err != nil {
		return nil, err
	}

	a := &Assembly{
		Mode:   t.Mode(),
		Routes: make(map[string][]StopRecord),
	}
	for _, row := range t.Rows {
		if _, seen := a.Routes[row.RouteID]; !seen {
			a.Order = append(a.Order, row.RouteID)
		}
		a.Routes[row.RouteID] = append(a.Routes[row.RouteID], row)
	}
	sort.Strings(a.Order)

	fillSegments := !t.Has(ColSegmentLength)
	fillDwell := !t.Has(ColDwellSeconds)

	verr := &ValidationError{}
	for _, id := range a.Order {
		stops := OrderStops(a.Routes[id])
		DeriveFeatures(stops, fillSegments, fillDwell, opts.dwell())
		if IsMissing(stops[0].ScheduledTime) {
			verr.Problems = append(verr.Problems, fmt.Sprintf("route %q has no valid scheduled_time to start from", id))
		}
		a.Routes[id] = stops
	}
	if len(verr.Problems) > 0 {
		return nil, verr
	}

	return a, nil
}

// OrderStops returns a copy of stops sorted by scheduled time. Ties keep
// their input order and missing times sort last.
func OrderStops(stops []StopRecord) []StopRecord {
	sorted := make([]StopRecord, len(stops))
	copy(sorted, stops)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].ScheduledTime, sorted[j].ScheduledTime
		if IsMissing(a) {
			return false
		}
		if IsMissing(b) {
			return true
		}
		return a < b
	})
	return sorted
}

// DeriveFeatures fills ScheduledTravelTime for an ordered route and, when
// asked to, segment lengths from coordinates and a default dwell.
func DeriveFeatures(stops []StopRecord, fillSegments, fillDwell bool, defaultDwell float64) {
	for i := range stops {
		if fillDwell {
			stops[i].DwellSeconds = defaultDwell
		}
		if i == 0 {
			stops[i].ScheduledTravelTime = 0
			if fillSegments {
				stops[i].SegmentLength = 0
			}
			continue
		}

		prev := stops[i-1]
		stops[i].ScheduledTravelTime = stops[i].ScheduledTime - prev.ScheduledTime
		if fillSegments {
			stops[i].SegmentLength = Haversine(prev.Latitude, prev.Longitude, stops[i].Latitude, stops[i].Longitude)
		}
	}
}
