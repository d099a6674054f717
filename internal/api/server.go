// Package api serves predicted routes over HTTP and accepts the uploads
// and edits that replace them.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"arrival-predictor/internal/gtfs"
	"arrival-predictor/internal/logging"
	"arrival-predictor/internal/sim"
)

// DefaultMaxUploadBytes bounds an uploaded file when Options leaves it unset.
const DefaultMaxUploadBytes = 32 << 20

// ImportSource loads GTFS trip schedules for a service day, for example
// from a Postgres import.
type ImportSource interface {
	RouteSchedules(ctx context.Context, day time.Time, routeIDs []string) ([]gtfs.TripSchedule, error)
}

type Options struct {
	MaxUploadBytes int64
	// Placeholder serves the demo route while the set is empty.
	Placeholder bool
	// Source is nil when no database is configured.
	Source ImportSource
	// Clock supplies the default service day for database imports.
	Clock func() time.Time
	// Metrics is mounted on /metrics when set.
	Metrics http.Handler
}

type Server struct {
	mgr    *sim.Manager
	opts   Options
	logger *slog.Logger
}

func NewServer(mgr *sim.Manager, opts Options, logger *slog.Logger) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Server{mgr: mgr, opts: opts, logger: logging.OrDiscard(logger)}
}

// Handler returns the router wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	router := httprouter.New()
	router.HandleMethodNotAllowed = true
	router.NotFound = http.HandlerFunc(s.notFound)
	router.MethodNotAllowed = http.HandlerFunc(s.methodNotAllowed)
	router.PanicHandler = s.panicked

	router.HandlerFunc(http.MethodGet, "/healthz", s.healthz)
	router.HandlerFunc(http.MethodGet, "/api/routes", s.listRoutes)
	router.HandlerFunc(http.MethodGet, "/api/routes/:id", s.getRoute)
	router.HandlerFunc(http.MethodDelete, "/api/routes/:id", s.deleteRoute)
	router.HandlerFunc(http.MethodPost, "/api/routes/create", s.createRoute)
	router.HandlerFunc(http.MethodPost, "/api/upload", s.upload)
	router.HandlerFunc(http.MethodPost, "/api/import/database", s.importDatabase)
	router.HandlerFunc(http.MethodGet, "/api/export/routes.csv", s.exportCSV)
	if s.opts.Metrics != nil {
		router.Handler(http.MethodGet, "/metrics", s.opts.Metrics)
	}

	var h http.Handler = router
	h = withCORS(h)
	h = withGzip(h)
	h = newRequestLoggingMiddleware(s.logger)(h)
	return h
}

// NewHTTPServer wraps Handler in an http.Server listening on addr.
func (s *Server) NewHTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       time.Minute,
	}
}
