// Package estimator provides travel-time models: the minutes a bus needs
// between two consecutive stops given a route.FeatureVector.
package estimator

import (
	"context"
	"fmt"
	"math"

	"arrival-predictor/internal/route"
)

// Estimator predicts the travel time in minutes for one stop transition.
type Estimator interface {
	Predict(ctx context.Context, f route.FeatureVector) (float64, error)
}

// Func adapts a plain function to an Estimator.
type Func func(ctx context.Context, f route.FeatureVector) (float64, error)

func (fn Func) Predict(ctx context.Context, f route.FeatureVector) (float64, error) {
	return fn(ctx, f)
}

// Constant always predicts the same travel time.
type Constant float64

func (c Constant) Predict(context.Context, route.FeatureVector) (float64, error) {
	return float64(c), nil
}

// EstimationError is returned when the estimator fails or produces a value
// that cannot be turned into an arrival time.
type EstimationError struct {
	RouteID string
	StopID  string
	Err     error
}

func (e *EstimationError) Error() string {
	return fmt.Sprintf("estimating travel time to stop %q on route %q: %v", e.StopID, e.RouteID, e.Err)
}

func (e *EstimationError) Unwrap() error { return e.Err }

// ErrNonFinite reports a NaN or infinite prediction.
var ErrNonFinite = fmt.Errorf("prediction is not a finite number")

// CheckFinite returns ErrNonFinite for NaN and ±Inf.
func CheckFinite(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %v", ErrNonFinite, v)
	}
	return nil
}
