package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"arrival-predictor/internal/api"
	"arrival-predictor/internal/config"
	"arrival-predictor/internal/db"
	"arrival-predictor/internal/logging"
	"arrival-predictor/internal/metrics"
	"arrival-predictor/internal/publisher"
	"arrival-predictor/internal/sim"
	"arrival-predictor/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves the prediction API (default)",
	Args:  cobra.NoArgs,
	RunE:  serve,
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stdout)

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	mcol := metrics.NewCollector(cfg.DefaultDwellSeconds)
	if cfg.MetricsAddr != "" {
		srv := mcol.Serve(cfg.MetricsAddr, logger)
		defer shutdown(srv, logger)
	}

	est, err := buildEstimator(cfg, mcol, logger)
	if err != nil {
		return err
	}
	simulator := sim.NewSimulator(est,
		sim.WithClock(cfg.Clock()),
		sim.WithLogger(logger),
		sim.WithDefaultDwell(cfg.DefaultDwellSeconds))

	var pub sim.Publisher
	if cfg.NATSURL != "" {
		np, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, cfg.LogNATSSubjects, wrapPublisherMetrics(mcol), logger)
		if err != nil {
			return err
		}
		defer np.Close()
		pub = np
	}

	opts := api.Options{
		MaxUploadBytes: cfg.MaxUploadBytes,
		Placeholder:    cfg.PlaceholderRoute,
		Clock:          cfg.Clock(),
		Metrics:        mcol.Handler(),
	}
	if src := connectSource(ctx, cfg, logger); src != nil {
		defer src.Close()
		opts.Source = src
	}

	mgr := sim.NewManager(simulator, store.NewRoutes(), pub, mcol, logger)
	srv := api.NewServer(mgr, opts, logger).NewHTTPServer(cfg.ListenAddr)

	errc := make(chan error, 1)
	go func() {
		logger.Info("api listening", slog.String("addr", cfg.ListenAddr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		shutdown(srv, logger)
	}
	logger.Info("shutdown complete")
	return nil
}

// connectSource opens the GTFS database when one is configured. A database
// that cannot be reached only disables the import endpoint.
func connectSource(ctx context.Context, cfg *config.Config, logger *slog.Logger) *db.Source {
	if cfg.DatabaseURL == "" {
		return nil
	}
	src, err := db.Connect(ctx, cfg.DatabaseURL, cfg.City, logger)
	if err != nil {
		logging.LogError(logger, "gtfs database unavailable, import disabled", err, slog.String("city", cfg.City))
		return nil
	}
	return src
}

func shutdown(srv *http.Server, logger *slog.Logger) {
	// Shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logging.LogError(logger, "server shutdown", err, slog.String("addr", srv.Addr))
	}
}
