package estimator

import (
	"context"
	"time"

	"arrival-predictor/internal/route"
)

// Metrics receives one observation per estimator call.
type Metrics interface {
	EstimatorObserve(d time.Duration, err error)
}

type instrumented struct {
	next    Estimator
	metrics Metrics
}

// Instrument reports every call of next to m. A nil m returns next.
func Instrument(next Estimator, m Metrics) Estimator {
	if m == nil {
		return next
	}
	return &instrumented{next: next, metrics: m}
}

func (i *instrumented) Predict(ctx context.Context, f route.FeatureVector) (float64, error) {
	start := time.Now()
	v, err := i.next.Predict(ctx, f)
	i.metrics.EstimatorObserve(time.Since(start), err)
	return v, err
}
