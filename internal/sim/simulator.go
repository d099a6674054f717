package sim

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"arrival-predictor/internal/estimator"
	"arrival-predictor/internal/logging"
	"arrival-predictor/internal/route"
)

// Simulator walks ordered stop sequences forward in time, asking the
// estimator for the travel time of every segment and carrying a running
// clock through arrivals and dwells.
type Simulator struct {
	est          estimator.Estimator
	now          func() time.Time
	logger       *slog.Logger
	defaultDwell float64
}

type Option func(*Simulator)

// WithClock sets the source of the reference date. Weekday and hour
// features depend on it, so tests pin it.
func WithClock(now func() time.Time) Option {
	return func(s *Simulator) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Simulator) { s.logger = logging.OrDiscard(logger) }
}

// WithDefaultDwell sets the dwell used when a table has no dwell column.
func WithDefaultDwell(seconds float64) Option {
	return func(s *Simulator) {
		if seconds > 0 {
			s.defaultDwell = seconds
		}
	}
}

func NewSimulator(est estimator.Estimator, opts ...Option) *Simulator {
	s := &Simulator{
		est:          est,
		now:          time.Now,
		logger:       logging.Discard(),
		defaultDwell: route.DefaultDwellSeconds,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SimulateRoute runs one ordered route whose features are already derived.
// ref supplies the calendar day the first stop is placed on.
func (s *Simulator) SimulateRoute(ctx context.Context, ref time.Time, routeID, name string, stops []route.StopRecord) (route.Route, error) {
	out := route.Route{
		ID:       routeID,
		Name:     name,
		Stops:    make([]route.Stop, 0, len(stops)),
		Segments: make([]route.Segment, 0, max(len(stops)-1, 0)),
	}
	if len(stops) == 0 {
		return out, nil
	}

	clock := route.StartOfDay(ref, stops[0].ScheduledTime)
	var prevArrival time.Time
	for i, rec := range stops {
		prediction := 0.0
		if i > 0 {
			f := route.FeatureVector{
				ScheduledTravelTime: rec.ScheduledTravelTime,
				DwellTimeInSeconds:  rec.DwellSeconds,
				SegmentLength:       rec.SegmentLength,
				DayOfWeek:           route.Weekday(clock),
				HourOfDay:           clock.Hour(),
			}
			v, err := s.est.Predict(ctx, f)
			if err == nil {
				err = estimator.CheckFinite(v)
			}
			if err != nil {
				var eerr *estimator.EstimationError
				if errors.As(err, &eerr) {
					return route.Route{}, err
				}
				return route.Route{}, &estimator.EstimationError{RouteID: routeID, StopID: rec.StopID, Err: err}
			}
			prediction = v
		}

		arrival := clock.Add(minutes(prediction))
		stop := route.Stop{
			ID:                   rec.StopID,
			Name:                 rec.DisplayName(),
			Coordinates:          [2]float64{rec.Latitude, rec.Longitude},
			PredictedArrivalTime: route.FormatClock(arrival),
		}
		if i > 0 {
			out.Segments = append(out.Segments, route.Segment{
				From:       out.Stops[i-1],
				To:         stop,
				TravelTime: round2(arrival.Sub(prevArrival).Minutes()),
			})
		}
		out.Stops = append(out.Stops, stop)

		prevArrival = arrival
		clock = arrival.Add(seconds(rec.DwellSeconds))
	}

	s.logger.Debug("route simulated",
		slog.String("route_id", routeID),
		slog.Int("stops", len(out.Stops)),
		slog.String("first_arrival", out.Stops[0].PredictedArrivalTime),
		slog.String("last_arrival", out.Stops[len(out.Stops)-1].PredictedArrivalTime))
	return out, nil
}

// SimulateSingleRoute orders and simulates the stops of one route, deriving
// segment lengths from coordinates and the default dwell.
func (s *Simulator) SimulateSingleRoute(ctx context.Context, routeID, name string, stops []route.StopRecord) (route.Route, error) {
	ordered := route.OrderStops(stops)
	if len(ordered) > 0 && route.IsMissing(ordered[0].ScheduledTime) {
		return route.Route{}, &route.ValidationError{Problems: []string{"route has no valid scheduled_time to start from"}}
	}
	route.DeriveFeatures(ordered, true, true, s.defaultDwell)
	return s.SimulateRoute(ctx, s.now(), routeID, name, ordered)
}

// AssembleAndSimulate validates and groups a table, then simulates every
// route in ascending route_id order. Any failure aborts the whole call.
func (s *Simulator) AssembleAndSimulate(ctx context.Context, t route.Table) ([]route.Route, error) {
	a, err := route.Assemble(t, route.AssembleOptions{DefaultDwellSeconds: s.defaultDwell})
	if err != nil {
		return nil, err
	}

	ref := s.now()
	routes := make([]route.Route, 0, len(a.Order))
	for _, id := range a.Order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, err := s.SimulateRoute(ctx, ref, id, route.DefaultName(id), a.Routes[id])
		if err != nil {
			return nil, err
		}
		routes = append(routes, r)
	}
	return routes, nil
}

func minutes(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
