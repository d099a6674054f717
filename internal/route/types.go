package route

import (
	"math"
	"strconv"
	"strings"
)

// Input column names. These match the headers of uploaded tables.
const (
	ColRouteID       = "route_id"
	ColStopID        = "stop_id"
	ColLatitude      = "latitude"
	ColLongitude     = "longitude"
	ColScheduledTime = "scheduled_time"
	ColDwellSeconds  = "dwell_time_in_seconds"
	ColSegmentLength = "segment_length"
	ColAddress       = "address"
	ColStopName      = "stop_name"
)

// RequiredColumns lists the columns every ingested table must carry, in the
// order they are reported when missing.
var RequiredColumns = []string{
	ColRouteID,
	ColStopID,
	ColLatitude,
	ColLongitude,
	ColScheduledTime,
}

// Mode says which per-segment features a table brings along.
type Mode string

const (
	// ModePrecomputed tables carry both segment_length and
	// dwell_time_in_seconds.
	ModePrecomputed Mode = "precomputed"
	// ModeDerived tables lack at least one of them; segment_length is
	// computed from coordinates and dwell falls back to a default.
	ModeDerived Mode = "derived"
)

// Missing marks an absent numeric value (a scheduled time that could not
// be parsed, or a travel time derived from one).
func Missing() float64 { return math.NaN() }

func IsMissing(v float64) bool { return math.IsNaN(v) }

// StopRecord is one typed input row.
type StopRecord struct {
	RouteID   string
	StopID    string
	Name      string
	Latitude  float64
	Longitude float64

	// ScheduledTime is in minutes since midnight, NaN when missing.
	ScheduledTime float64
	DwellSeconds  float64
	SegmentLength float64

	// ScheduledTravelTime is filled by Assemble.
	ScheduledTravelTime float64
}

// DisplayName is the name shown for the stop in API output.
func (r StopRecord) DisplayName() string {
	if strings.TrimSpace(r.Name) != "" {
		return r.Name
	}
	return "Stop " + r.StopID
}

// Table is a decoded upload: the columns the source carried plus its rows
// in input order.
type Table struct {
	Columns []string
	Rows    []StopRecord
}

func (t Table) Has(column string) bool {
	for _, c := range t.Columns {
		if c == column {
			return true
		}
	}
	return false
}

// Mode reports the ingestion mode selected by the table's schema.
func (t Table) Mode() Mode {
	if t.Has(ColSegmentLength) && t.Has(ColDwellSeconds) {
		return ModePrecomputed
	}
	return ModeDerived
}

// FeatureNames is the canonical feature order of the travel-time model.
var FeatureNames = []string{
	"scheduled_travel_time",
	"dwell_time_in_seconds",
	"segment_length",
	"day_of_week",
	"hour_of_day",
}

// FeatureVector is the estimator input for one stop transition.
// DayOfWeek counts from Monday=0.
type FeatureVector struct {
	ScheduledTravelTime float64
	DwellTimeInSeconds  float64
	SegmentLength       float64
	DayOfWeek           int
	HourOfDay           int
}

// Values returns the features in FeatureNames order.
func (f FeatureVector) Values() []float64 {
	return []float64{
		f.ScheduledTravelTime,
		f.DwellTimeInSeconds,
		f.SegmentLength,
		float64(f.DayOfWeek),
		float64(f.HourOfDay),
	}
}

// Value looks a feature up by name.
func (f FeatureVector) Value(name string) (float64, bool) {
	for i, n := range FeatureNames {
		if n == name {
			return f.Values()[i], true
		}
	}
	return 0, false
}

// Key is a stable string form of the vector, usable as a cache key even
// when a feature is NaN.
func (f FeatureVector) Key() string {
	parts := make([]string, 0, len(FeatureNames))
	for _, v := range f.Values() {
		parts = append(parts, strconv.FormatFloat(v, 'g', -1, 64))
	}
	return strings.Join(parts, "|")
}

// Stop is a stop of a simulated route.
type Stop struct {
	ID                   string     `json:"id"`
	Name                 string     `json:"name"`
	Coordinates          [2]float64 `json:"coordinates"`
	PredictedArrivalTime string     `json:"predictedArrivalTime"`
}

// Segment connects two consecutive stops. TravelTime is in minutes.
type Segment struct {
	From       Stop    `json:"from"`
	To         Stop    `json:"to"`
	TravelTime float64 `json:"travelTime"`
}

type Route struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Stops    []Stop    `json:"stops"`
	Segments []Segment `json:"segments"`
}

// DefaultName is the display name given to routes built from uploads.
func DefaultName(routeID string) string {
	return "Route " + routeID
}

// Placeholder is the demo route served while no predictions exist.
func Placeholder() Route {
	first := Stop{ID: "1", Name: "Stop 1", Coordinates: [2]float64{51.1605, 71.4704}, PredictedArrivalTime: "10:00"}
	second := Stop{ID: "2", Name: "Stop 2", Coordinates: [2]float64{51.1705, 71.4804}, PredictedArrivalTime: "10:15"}
	return Route{
		ID:       "1",
		Name:     "Default Route",
		Stops:    []Stop{first, second},
		Segments: []Segment{{From: first, To: second, TravelTime: 15}},
	}
}
