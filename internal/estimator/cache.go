package estimator

import (
	"context"

	"github.com/bluele/gcache"

	"arrival-predictor/internal/route"
)

// Cached memoizes predictions of a deterministic estimator in an LRU cache
// keyed by the feature vector. Failed predictions are not cached.
type Cached struct {
	next  Estimator
	cache gcache.Cache
}

// NewCached wraps next. A non-positive size returns next unchanged.
func NewCached(next Estimator, size int) Estimator {
	if size <= 0 {
		return next
	}
	return &Cached{
		next:  next,
		cache: gcache.New(size).LRU().Build(),
	}
}

func (c *Cached) Predict(ctx context.Context, f route.FeatureVector) (float64, error) {
	key := f.Key()
	if v, err := c.cache.Get(key); err == nil {
		if minutes, ok := v.(float64); ok {
			return minutes, nil
		}
	}

	minutes, err := c.next.Predict(ctx, f)
	if err != nil {
		return 0, err
	}
	_ = c.cache.Set(key, minutes)
	return minutes, nil
}

// Len reports the number of cached predictions.
func (c *Cached) Len() int { return c.cache.Len(false) }
