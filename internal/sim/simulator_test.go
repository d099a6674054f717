package sim

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arrival-predictor/internal/estimator"
	"arrival-predictor/internal/ingest"
	"arrival-predictor/internal/route"
)

// monday is a Monday noon; only its calendar day matters to the simulation.
var monday = time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return monday }

func precomputed(rows ...route.StopRecord) route.Table {
	return route.Table{
		Columns: []string{"route_id", "stop_id", "latitude", "longitude", "scheduled_time", "dwell_time_in_seconds", "segment_length"},
		Rows:    rows,
	}
}

func stop(routeID, stopID string, minutes, dwell float64) route.StopRecord {
	return route.StopRecord{RouteID: routeID, StopID: stopID, Latitude: 51.1, Longitude: 71.4, ScheduledTime: minutes, DwellSeconds: dwell, SegmentLength: 1}
}

func arrivals(r route.Route) []string {
	out := make([]string, 0, len(r.Stops))
	for _, s := range r.Stops {
		out = append(out, s.PredictedArrivalTime)
	}
	return out
}

type recorder struct {
	mu       sync.Mutex
	features []route.FeatureVector
	minutes  float64
}

func (r *recorder) Predict(_ context.Context, f route.FeatureVector) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.features = append(r.features, f)
	return r.minutes, nil
}

func TestTwoStopRoute(t *testing.T) {
	s := NewSimulator(estimator.Constant(15), WithClock(fixedClock))

	routes, err := s.AssembleAndSimulate(context.Background(), precomputed(
		stop("1", "a", 600, 0),
		stop("1", "b", 615, 0),
	))
	require.NoError(t, err)
	require.Len(t, routes, 1)

	r := routes[0]
	assert.Equal(t, "1", r.ID)
	assert.Equal(t, "Route 1", r.Name)
	assert.Equal(t, []string{"10:00", "10:15"}, arrivals(r))
	require.Len(t, r.Segments, 1)
	assert.Equal(t, 15.0, r.Segments[0].TravelTime)
	assert.Equal(t, r.Stops[0], r.Segments[0].From)
	assert.Equal(t, r.Stops[1], r.Segments[0].To)
	assert.Equal(t, [2]float64{51.1, 71.4}, r.Stops[0].Coordinates)
	assert.Equal(t, "Stop a", r.Stops[0].Name)
}

func TestSingleStopRoutes(t *testing.T) {
	est := &recorder{minutes: 99}
	s := NewSimulator(est, WithClock(fixedClock))

	routes, err := s.AssembleAndSimulate(context.Background(), precomputed(
		stop("c", "c1", 23*60+59, 30),
		stop("a", "a1", 8*60+30, 30),
		stop("b", "b1", 9*60+45, 30),
	))
	require.NoError(t, err)
	require.Len(t, routes, 3)

	assert.Equal(t, []string{"a", "b", "c"}, []string{routes[0].ID, routes[1].ID, routes[2].ID})
	assert.Equal(t, []string{"08:30"}, arrivals(routes[0]))
	assert.Equal(t, []string{"09:45"}, arrivals(routes[1]))
	assert.Equal(t, []string{"23:59"}, arrivals(routes[2]))
	for _, r := range routes {
		assert.Empty(t, r.Segments)
		assert.NotNil(t, r.Segments)
	}
	assert.Empty(t, est.features)
}

func TestDwellDelaysFollowingDeparture(t *testing.T) {
	s := NewSimulator(estimator.Constant(5), WithClock(fixedClock))

	routes, err := s.AssembleAndSimulate(context.Background(), precomputed(
		stop("1", "a", 600, 0),
		stop("1", "b", 605, 60),
		stop("1", "c", 610, 0),
	))
	require.NoError(t, err)

	r := routes[0]
	assert.Equal(t, []string{"10:00", "10:05", "10:11"}, arrivals(r))
	assert.Equal(t, 5.0, r.Segments[0].TravelTime)
	// the second segment includes the minute spent at b
	assert.Equal(t, 6.0, r.Segments[1].TravelTime)
}

func TestFeaturesUseClockBeforeAdvancing(t *testing.T) {
	est := &recorder{minutes: 10}
	s := NewSimulator(est, WithClock(fixedClock))

	table := precomputed(
		stop("1", "a", 10*60+58, 60),
		stop("1", "b", 11*60+10, 60),
		stop("1", "c", 11*60+25, 0),
	)
	table.Rows[1].SegmentLength = 2.5

	_, err := s.AssembleAndSimulate(context.Background(), table)
	require.NoError(t, err)
	require.Len(t, est.features, 2)

	assert.Equal(t, route.FeatureVector{
		ScheduledTravelTime: 12,
		DwellTimeInSeconds:  60,
		SegmentLength:       2.5,
		DayOfWeek:           0,
		HourOfDay:           10,
	}, est.features[0])

	// departure from b is 10:59 + 10 min + 1 min dwell = 11:10
	assert.Equal(t, 11, est.features[1].HourOfDay)
	assert.Equal(t, 15.0, est.features[1].ScheduledTravelTime)
}

func TestFeaturesCrossMidnight(t *testing.T) {
	est := &recorder{minutes: 10}
	s := NewSimulator(est, WithClock(fixedClock))

	routes, err := s.AssembleAndSimulate(context.Background(), precomputed(
		stop("1", "a", 23*60+55, 0),
		stop("1", "b", 24*60+5, 0),
		stop("1", "c", 24*60+15, 0),
	))
	require.NoError(t, err)

	assert.Equal(t, []string{"23:55", "00:05", "00:15"}, arrivals(routes[0]))
	assert.Equal(t, 0, est.features[0].DayOfWeek)
	assert.Equal(t, 23, est.features[0].HourOfDay)
	assert.Equal(t, 1, est.features[1].DayOfWeek)
	assert.Equal(t, 0, est.features[1].HourOfDay)
}

func TestNegativePredictionsAreNotClamped(t *testing.T) {
	s := NewSimulator(estimator.Constant(-5), WithClock(fixedClock))

	routes, err := s.AssembleAndSimulate(context.Background(), precomputed(
		stop("1", "a", 600, 0),
		stop("1", "b", 615, 0),
	))
	require.NoError(t, err)
	assert.Equal(t, []string{"10:00", "09:55"}, arrivals(routes[0]))
	assert.Equal(t, -5.0, routes[0].Segments[0].TravelTime)
}

func TestTravelTimeRounding(t *testing.T) {
	s := NewSimulator(estimator.Constant(1.0/3.0), WithClock(fixedClock))

	routes, err := s.AssembleAndSimulate(context.Background(), precomputed(
		stop("1", "a", 600, 0),
		stop("1", "b", 601, 0),
	))
	require.NoError(t, err)
	assert.Equal(t, 0.33, routes[0].Segments[0].TravelTime)
	assert.Equal(t, "10:00", routes[0].Stops[1].PredictedArrivalTime)
}

func TestEstimatorFailure(t *testing.T) {
	boom := errors.New("model unavailable")
	s := NewSimulator(estimator.Func(func(_ context.Context, f route.FeatureVector) (float64, error) {
		if f.ScheduledTravelTime == 7 {
			return 0, boom
		}
		return 1, nil
	}), WithClock(fixedClock))

	routes, err := s.AssembleAndSimulate(context.Background(), precomputed(
		stop("1", "a", 600, 0),
		stop("1", "b", 605, 0),
		stop("2", "x", 600, 0),
		stop("2", "y", 607, 0),
	))
	assert.Nil(t, routes)

	var eerr *estimator.EstimationError
	require.ErrorAs(t, err, &eerr)
	assert.Equal(t, "2", eerr.RouteID)
	assert.Equal(t, "y", eerr.StopID)
	assert.ErrorIs(t, err, boom)
}

func TestNonFinitePrediction(t *testing.T) {
	for name, v := range map[string]float64{"nan": math.NaN(), "inf": math.Inf(1)} {
		t.Run(name, func(t *testing.T) {
			s := NewSimulator(estimator.Constant(v), WithClock(fixedClock))
			_, err := s.AssembleAndSimulate(context.Background(), precomputed(
				stop("1", "a", 600, 0),
				stop("1", "b", 615, 0),
			))
			var eerr *estimator.EstimationError
			require.ErrorAs(t, err, &eerr)
			assert.ErrorIs(t, err, estimator.ErrNonFinite)
		})
	}
}

func TestValidationBeforeSimulation(t *testing.T) {
	est := &recorder{minutes: 1}
	s := NewSimulator(est, WithClock(fixedClock))

	_, err := s.AssembleAndSimulate(context.Background(), route.Table{
		Columns: []string{"stop_id", "latitude", "longitude", "scheduled_time"},
		Rows:    []route.StopRecord{stop("", "a", 600, 0), stop("", "b", 610, 0)},
	})
	var verr *route.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"route_id"}, verr.Missing)
	assert.Empty(t, est.features)
}

func TestInfiniteStartTimeIsRejected(t *testing.T) {
	table, err := ingest.DecodeCSV(strings.NewReader("route_id,stop_id,latitude,longitude,scheduled_time\n1,a,51.1,71.4,inf\n"))
	require.NoError(t, err)

	est := &recorder{minutes: 1}
	routes, err := NewSimulator(est, WithClock(fixedClock)).AssembleAndSimulate(context.Background(), table)
	assert.Nil(t, routes)
	var verr *route.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Empty(t, est.features)
}

func TestNegativeStartTimeWrapsToPreviousHour(t *testing.T) {
	s := NewSimulator(estimator.Constant(15), WithClock(fixedClock))

	routes, err := s.AssembleAndSimulate(context.Background(), precomputed(
		stop("1", "a", -10, 0),
		stop("1", "b", 5, 0),
	))
	require.NoError(t, err)
	assert.Equal(t, []string{"23:50", "00:05"}, arrivals(routes[0]))
}

func TestInvariantsAndIdempotence(t *testing.T) {
	table := precomputed(
		stop("r2", "s3", 630, 20),
		stop("r1", "s1", 480, 0),
		stop("r2", "s1", 600, 10),
		stop("r1", "s2", 490, 45),
		stop("r2", "s2", 612, 0),
		stop("r1", "s3", 505, 30),
		stop("r1", "s4", 520, 0),
	)
	est := estimator.Func(func(_ context.Context, f route.FeatureVector) (float64, error) {
		return f.ScheduledTravelTime*0.9 + f.SegmentLength, nil
	})
	s := NewSimulator(est, WithClock(fixedClock))

	first, err := s.AssembleAndSimulate(context.Background(), table)
	require.NoError(t, err)
	second, err := s.AssembleAndSimulate(context.Background(), table)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	counts := map[string]int{"r1": 4, "r2": 3}
	for _, r := range first {
		assert.Len(t, r.Stops, counts[r.ID])
		assert.Len(t, r.Segments, len(r.Stops)-1)

		prev := ""
		for i, st := range r.Stops {
			assert.Regexp(t, `^([01]\d|2[0-3]):[0-5]\d$`, st.PredictedArrivalTime)
			if i > 0 {
				assert.GreaterOrEqual(t, st.PredictedArrivalTime, prev)
				assert.GreaterOrEqual(t, r.Segments[i-1].TravelTime, 0.0)
			}
			prev = st.PredictedArrivalTime
		}
	}
}

func TestWithClockPinsWeekday(t *testing.T) {
	est := &recorder{minutes: 1}
	sunday := func() time.Time { return time.Date(2024, 3, 10, 3, 0, 0, 0, time.UTC) }
	s := NewSimulator(est, WithClock(sunday))

	_, err := s.AssembleAndSimulate(context.Background(), precomputed(
		stop("1", "a", 600, 0),
		stop("1", "b", 615, 0),
	))
	require.NoError(t, err)
	assert.Equal(t, 6, est.features[0].DayOfWeek)
}

func TestSimulateSingleRoute(t *testing.T) {
	est := &recorder{minutes: 4}
	s := NewSimulator(est, WithClock(fixedClock), WithDefaultDwell(60))

	r, err := s.SimulateSingleRoute(context.Background(), "id-1", "Airport", []route.StopRecord{
		{RouteID: "id-1", StopID: "stop-2", Latitude: 51.1705, Longitude: 71.4804, ScheduledTime: 370},
		{RouteID: "id-1", StopID: "stop-1", Name: "Depot", Latitude: 51.1605, Longitude: 71.4704, ScheduledTime: 360},
	})
	require.NoError(t, err)

	assert.Equal(t, "id-1", r.ID)
	assert.Equal(t, "Airport", r.Name)
	assert.Equal(t, []string{"06:00", "06:05"}, arrivals(r))
	assert.Equal(t, "Depot", r.Stops[0].Name)
	// includes the minute spent at the depot
	assert.Equal(t, 5.0, r.Segments[0].TravelTime)

	require.Len(t, est.features, 1)
	assert.Equal(t, 60.0, est.features[0].DwellTimeInSeconds)
	assert.InDelta(t, 1.3125, est.features[0].SegmentLength, 0.01)
	assert.Equal(t, 10.0, est.features[0].ScheduledTravelTime)
	assert.Equal(t, 6, est.features[0].HourOfDay)
}

func TestSimulateSingleRouteNeedsStartTime(t *testing.T) {
	s := NewSimulator(estimator.Constant(1), WithClock(fixedClock))
	_, err := s.SimulateSingleRoute(context.Background(), "x", "X", []route.StopRecord{
		{StopID: "a", ScheduledTime: math.NaN()},
	})
	var verr *route.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewSimulator(estimator.Constant(1), WithClock(fixedClock))
	_, err := s.AssembleAndSimulate(ctx, precomputed(stop("1", "a", 600, 0)))
	assert.ErrorIs(t, err, context.Canceled)
}
