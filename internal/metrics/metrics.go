package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	Ingestions     *prometheus.CounterVec // labels: source, result
	IngestDuration prometheus.Histogram
	RoutesCurrent  prometheus.Gauge
	StopsSimulated prometheus.Counter
	RoutesDeleted  prometheus.Counter

	EstimatorCalls    prometheus.Counter
	EstimatorErrors   prometheus.Counter
	EstimatorDuration prometheus.Histogram

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram

	DefaultDwell prometheus.Gauge // seconds
}

func NewCollector(defaultDwellSeconds float64) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Ingestions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "predictor_ingestions_total",
			Help: "Ingestion calls by source and result.",
		}, []string{"source", "result"}),
		IngestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "predictor_ingest_duration_seconds",
			Help:    "Duration of an ingestion call from decoded table to commit.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		RoutesCurrent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "predictor_routes_current",
			Help: "Number of routes currently served.",
		}),
		StopsSimulated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "predictor_stops_simulated_total",
			Help: "Total stops given a predicted arrival time.",
		}),
		RoutesDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "predictor_routes_deleted_total",
			Help: "Total routes removed by deletion.",
		}),
		EstimatorCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "predictor_estimator_calls_total",
			Help: "Total travel-time estimator calls.",
		}),
		EstimatorErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "predictor_estimator_errors_total",
			Help: "Total failed travel-time estimator calls.",
		}),
		EstimatorDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "predictor_estimator_duration_seconds",
			Help:    "Duration of a single estimator call.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 18),
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "predictor_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "predictor_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "predictor_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "predictor_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		DefaultDwell: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "predictor_default_dwell_seconds",
			Help: "Dwell time assumed when an upload has no dwell column.",
		}),
	}

	reg.MustRegister(
		c.Ingestions, c.IngestDuration, c.RoutesCurrent, c.StopsSimulated, c.RoutesDeleted,
		c.EstimatorCalls, c.EstimatorErrors, c.EstimatorDuration,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
		c.DefaultDwell,
	)

	c.DefaultDwell.Set(defaultDwellSeconds)

	return c
}

// EstimatorObserve records one estimator call.
func (c *Collector) EstimatorObserve(d time.Duration, err error) {
	c.EstimatorCalls.Inc()
	c.EstimatorDuration.Observe(d.Seconds())
	if err != nil {
		c.EstimatorErrors.Inc()
	}
}

// IngestObserve records the outcome of an ingestion call. result is one
// of ok, invalid, estimation_failed or error.
func (c *Collector) IngestObserve(source, result string, d time.Duration) {
	c.Ingestions.WithLabelValues(source, result).Inc()
	c.IngestDuration.Observe(d.Seconds())
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", slog.String("error", err.Error()))
		}
	}()
	logger.Info("metrics listening", slog.String("addr", addr))
	return srv
}
