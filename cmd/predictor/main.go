package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"arrival-predictor/internal/config"
	"arrival-predictor/internal/estimator"
	"arrival-predictor/internal/logging"
	"arrival-predictor/internal/metrics"
	"arrival-predictor/internal/publisher"
)

var rootCmd = &cobra.Command{
	Use:          "predictor",
	Short:        "Bus arrival predictor",
	Long:         "Predicts stop arrival times for uploaded bus routes and serves them over HTTP",
	SilenceUsage: true,
	RunE:         serve,
}

var (
	listenAddr string
	modelPath  string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&listenAddr, "listen", "", "", "API listen address (overrides LISTEN_ADDR)")
	rootCmd.PersistentFlags().StringVarP(&modelPath, "model", "", "", "XGBoost JSON model (overrides MODEL_PATH)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(predictCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the environment and applies command line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}
	if modelPath != "" {
		cfg.ModelPath = modelPath
		cfg.EstimatorURL = ""
	}
	return cfg, nil
}

// buildEstimator picks the remote model server when configured, otherwise
// the local tree ensemble. Only cache misses reach the metrics.
func buildEstimator(cfg *config.Config, mcol *metrics.Collector, logger *slog.Logger) (estimator.Estimator, error) {
	var est estimator.Estimator
	if cfg.EstimatorURL != "" {
		est = estimator.NewRemote(cfg.EstimatorURL, cfg.EstimatorTimeout)
		logger.Info("using remote estimator", slog.String("url", cfg.EstimatorURL))
	} else {
		model, err := estimator.LoadTreeEnsemble(cfg.ModelPath)
		if err != nil {
			return nil, err
		}
		est = model
		logger.Info("model loaded",
			slog.String("path", cfg.ModelPath),
			slog.Any("features", model.Features()))
	}

	if mcol != nil {
		est = estimator.Instrument(est, mcol)
	}
	return estimator.NewCached(est, cfg.EstimatorCacheSize), nil
}

// wrapPublisherMetrics adapts our Collector to the PublisherMetrics interface.
func wrapPublisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return &pubMetrics{c: c}
}

type pubMetrics struct{ c *metrics.Collector }

func (p *pubMetrics) NATSPublishedInc()              { p.c.NATSPublished.Inc() }
func (p *pubMetrics) NATSPublishErrInc()             { p.c.NATSPublishErrs.Inc() }
func (p *pubMetrics) PublishObserve(d time.Duration) { p.c.PublishDuration.Observe(d.Seconds()) }
func (p *pubMetrics) NATSSetConnected(b bool) {
	if b {
		p.c.NATSConnected.Set(1)
	} else {
		p.c.NATSConnected.Set(0)
	}
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	logger := logging.New(w, cfg.LogLevel)
	slog.SetDefault(logger)
	return logger
}
