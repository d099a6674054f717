package route

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	for _, tc := range []struct {
		in      string
		minutes float64
		ok      bool
	}{
		{"10:00", 600, true},
		{"10:15:59", 615, true},
		{"9:05", 545, true},
		{"00:00:00", 0, true},
		{"23:59", 1439, true},
		{"24:00", 0, false},
		{"10:60", 0, false},
		{"10", 0, false},
		{"10:00:00:00", 0, false},
		{"ten:00", 0, false},
		{"", 0, false},
		{"10:-1", 0, false},
	} {
		t.Run(tc.in, func(t *testing.T) {
			got, ok := ParseClock(tc.in)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.minutes, got)
			}
		})
	}
}

func TestNormalizeScheduledTime(t *testing.T) {
	assert.Equal(t, 600.0, NormalizeScheduledTime("10:00"))
	assert.Equal(t, 615.5, NormalizeScheduledTime("615.5"))
	assert.Equal(t, 42.0, NormalizeScheduledTime(" 42 "))
	assert.True(t, IsMissing(NormalizeScheduledTime("soon")))
	assert.True(t, IsMissing(NormalizeScheduledTime("")))
	assert.True(t, IsMissing(NormalizeScheduledTime("25:00")))

	for _, cell := range []string{"inf", "+Inf", "-Infinity", "Infinity"} {
		assert.True(t, IsMissing(NormalizeScheduledTime(cell)), cell)
	}
}

func TestStartOfDay(t *testing.T) {
	ref := time.Date(2024, 3, 4, 17, 45, 12, 99, time.UTC)

	got := StartOfDay(ref, 615.7)
	assert.Equal(t, time.Date(2024, 3, 4, 10, 15, 0, 0, time.UTC), got)

	// hours wrap past midnight onto the same calendar day
	got = StartOfDay(ref, 25*60+5)
	assert.Equal(t, time.Date(2024, 3, 4, 1, 5, 0, 0, time.UTC), got)

	// negative minutes wrap back into the previous hour like floor division
	assert.Equal(t, "23:50", FormatClock(StartOfDay(ref, -10)))
	assert.Equal(t, "23:59", FormatClock(StartOfDay(ref, -0.5)))
	assert.Equal(t, "22:00", FormatClock(StartOfDay(ref, -120)))
	assert.Equal(t, 4, StartOfDay(ref, -10).Day())

	assert.Equal(t, "10:15", FormatClock(StartOfDay(ref, 615)))
	assert.Equal(t, "00:05", FormatClock(StartOfDay(ref, 5)))
}

func TestWeekdayStartsMonday(t *testing.T) {
	monday := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, Weekday(monday))
	assert.Equal(t, 6, Weekday(monday.AddDate(0, 0, 6)))
	assert.Equal(t, 2, Weekday(monday.AddDate(0, 0, 2)))
}

func TestHaversine(t *testing.T) {
	assert.Equal(t, 0.0, Haversine(51.1605, 71.4704, 51.1605, 71.4704))

	// one degree of latitude along a meridian
	assert.InDelta(t, 111.195, Haversine(0, 0, 1, 0), 0.01)

	// Astana stops from the demo route
	assert.InDelta(t, 1.3125, Haversine(51.1605, 71.4704, 51.1705, 71.4804), 0.01)
}

func TestValidateColumns(t *testing.T) {
	require.NoError(t, ValidateColumns([]string{"scheduled_time", "longitude", "latitude", "stop_id", "route_id", "extra"}))

	err := ValidateColumns([]string{"stop_id", "latitude"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"route_id", "longitude", "scheduled_time"}, verr.Missing)
	assert.Equal(t, "Missing required columns: route_id, longitude, scheduled_time", err.Error())
}

func TestTableMode(t *testing.T) {
	base := []string{"route_id", "stop_id", "latitude", "longitude", "scheduled_time"}

	assert.Equal(t, ModeDerived, Table{Columns: base}.Mode())
	assert.Equal(t, ModeDerived, Table{Columns: append(base, ColSegmentLength)}.Mode())
	assert.Equal(t, ModeDerived, Table{Columns: append(base, ColDwellSeconds)}.Mode())
	assert.Equal(t, ModePrecomputed, Table{Columns: append(base, ColDwellSeconds, ColSegmentLength)}.Mode())
}

func allColumns() []string {
	return []string{"route_id", "stop_id", "latitude", "longitude", "scheduled_time", "dwell_time_in_seconds", "segment_length"}
}

func TestAssembleMissingRouteID(t *testing.T) {
	table := Table{
		Columns: []string{"stop_id", "latitude", "longitude", "scheduled_time"},
		Rows:    []StopRecord{{StopID: "a", ScheduledTime: 600}},
	}

	a, err := Assemble(table, AssembleOptions{})
	assert.Nil(t, a)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Missing, "route_id")
}

func TestAssembleGroupsAndOrders(t *testing.T) {
	table := Table{
		Columns: allColumns(),
		Rows: []StopRecord{
			{RouteID: "B", StopID: "b2", ScheduledTime: 620, DwellSeconds: 10, SegmentLength: 2},
			{RouteID: "A", StopID: "a1", ScheduledTime: 600, DwellSeconds: 20, SegmentLength: 0},
			{RouteID: "B", StopID: "b1", ScheduledTime: 610, DwellSeconds: 15, SegmentLength: 0},
			{RouteID: "A", StopID: "a3", ScheduledTime: 630, DwellSeconds: 20, SegmentLength: 1.5},
			{RouteID: "A", StopID: "a2", ScheduledTime: 612, DwellSeconds: 25, SegmentLength: 1.2},
		},
	}

	a, err := Assemble(table, AssembleOptions{})
	require.NoError(t, err)

	assert.Equal(t, ModePrecomputed, a.Mode)
	assert.Equal(t, []string{"A", "B"}, a.Order)

	var ids []string
	var travel []float64
	for _, s := range a.Routes["A"] {
		ids = append(ids, s.StopID)
		travel = append(travel, s.ScheduledTravelTime)
	}
	assert.Equal(t, []string{"a1", "a2", "a3"}, ids)
	assert.Equal(t, []float64{0, 12, 18}, travel)

	// precomputed features are kept as given
	assert.Equal(t, 25.0, a.Routes["A"][1].DwellSeconds)
	assert.Equal(t, 1.2, a.Routes["A"][1].SegmentLength)

	require.Len(t, a.Routes["B"], 2)
	assert.Equal(t, "b1", a.Routes["B"][0].StopID)
	assert.Equal(t, 10.0, a.Routes["B"][1].ScheduledTravelTime)
}

func TestAssembleStableOnTies(t *testing.T) {
	table := Table{
		Columns: allColumns(),
		Rows: []StopRecord{
			{RouteID: "1", StopID: "first", ScheduledTime: 600},
			{RouteID: "1", StopID: "second", ScheduledTime: 600},
			{RouteID: "1", StopID: "early", ScheduledTime: 590},
			{RouteID: "1", StopID: "third", ScheduledTime: 600},
		},
	}

	a, err := Assemble(table, AssembleOptions{})
	require.NoError(t, err)

	var ids []string
	for _, s := range a.Routes["1"] {
		ids = append(ids, s.StopID)
	}
	assert.Equal(t, []string{"early", "first", "second", "third"}, ids)
}

func TestAssembleDerivedMode(t *testing.T) {
	table := Table{
		Columns: []string{"route_id", "stop_id", "latitude", "longitude", "scheduled_time"},
		Rows: []StopRecord{
			{RouteID: "1", StopID: "a", Latitude: 51.1605, Longitude: 71.4704, ScheduledTime: 600},
			{RouteID: "1", StopID: "b", Latitude: 51.1705, Longitude: 71.4804, ScheduledTime: 615},
		},
	}

	a, err := Assemble(table, AssembleOptions{})
	require.NoError(t, err)
	assert.Equal(t, ModeDerived, a.Mode)

	stops := a.Routes["1"]
	assert.Equal(t, 0.0, stops[0].SegmentLength)
	assert.InDelta(t, 1.3125, stops[1].SegmentLength, 0.005)
	assert.Equal(t, DefaultDwellSeconds, stops[0].DwellSeconds)
	assert.Equal(t, DefaultDwellSeconds, stops[1].DwellSeconds)

	a, err = Assemble(table, AssembleOptions{DefaultDwellSeconds: 45})
	require.NoError(t, err)
	assert.Equal(t, 45.0, a.Routes["1"][1].DwellSeconds)
}

func TestAssembleKeepsGivenDwellInDerivedMode(t *testing.T) {
	table := Table{
		Columns: []string{"route_id", "stop_id", "latitude", "longitude", "scheduled_time", "dwell_time_in_seconds"},
		Rows: []StopRecord{
			{RouteID: "1", StopID: "a", ScheduledTime: 600, DwellSeconds: 5},
			{RouteID: "1", StopID: "b", Latitude: 1, ScheduledTime: 615, DwellSeconds: 7},
		},
	}

	a, err := Assemble(table, AssembleOptions{})
	require.NoError(t, err)
	assert.Equal(t, ModeDerived, a.Mode)
	assert.Equal(t, 7.0, a.Routes["1"][1].DwellSeconds)
	assert.InDelta(t, 111.195, a.Routes["1"][1].SegmentLength, 0.01)
}

func TestAssembleMissingTimesPropagate(t *testing.T) {
	table := Table{
		Columns: allColumns(),
		Rows: []StopRecord{
			{RouteID: "1", StopID: "broken", ScheduledTime: math.NaN()},
			{RouteID: "1", StopID: "a", ScheduledTime: 600},
			{RouteID: "1", StopID: "b", ScheduledTime: 610},
		},
	}

	a, err := Assemble(table, AssembleOptions{})
	require.NoError(t, err)

	stops := a.Routes["1"]
	assert.Equal(t, "broken", stops[2].StopID)
	assert.True(t, IsMissing(stops[2].ScheduledTravelTime))
	assert.Equal(t, 10.0, stops[1].ScheduledTravelTime)
}

func TestAssembleRejectsRouteWithoutStartTime(t *testing.T) {
	table := Table{
		Columns: allColumns(),
		Rows: []StopRecord{
			{RouteID: "ok", StopID: "a", ScheduledTime: 600},
			{RouteID: "bad", StopID: "x", ScheduledTime: math.NaN()},
		},
	}

	_, err := Assemble(table, AssembleOptions{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Empty(t, verr.Missing)
	require.Len(t, verr.Problems, 1)
	assert.Contains(t, verr.Problems[0], `"bad"`)
}

func TestAssembleRejectsInfiniteStartTime(t *testing.T) {
	table := Table{
		Columns: allColumns(),
		Rows: []StopRecord{
			{RouteID: "1", StopID: "a", ScheduledTime: NormalizeScheduledTime("inf")},
		},
	}

	a, err := Assemble(table, AssembleOptions{})
	assert.Nil(t, a)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Problems[0], `"1"`)
}

func TestAssembleDoesNotMutateInput(t *testing.T) {
	rows := []StopRecord{
		{RouteID: "1", StopID: "b", ScheduledTime: 610},
		{RouteID: "1", StopID: "a", ScheduledTime: 600},
	}
	_, err := Assemble(Table{Columns: allColumns(), Rows: rows}, AssembleOptions{})
	require.NoError(t, err)
	assert.Equal(t, "b", rows[0].StopID)
	assert.Equal(t, 0.0, rows[0].ScheduledTravelTime)
}

func TestFeatureVector(t *testing.T) {
	f := FeatureVector{ScheduledTravelTime: 5, DwellTimeInSeconds: 30, SegmentLength: 1.5, DayOfWeek: 2, HourOfDay: 10}
	assert.Equal(t, []float64{5, 30, 1.5, 2, 10}, f.Values())

	v, ok := f.Value("segment_length")
	assert.True(t, ok)
	assert.Equal(t, 1.5, v)

	_, ok = f.Value("nope")
	assert.False(t, ok)

	withNaN := f
	withNaN.ScheduledTravelTime = math.NaN()
	assert.Equal(t, withNaN.Key(), withNaN.Key())
	assert.NotEqual(t, f.Key(), withNaN.Key())
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Main St", StopRecord{StopID: "7", Name: "Main St"}.DisplayName())
	assert.Equal(t, "Stop 7", StopRecord{StopID: "7"}.DisplayName())
	assert.Equal(t, "Route 12", DefaultName("12"))
}
