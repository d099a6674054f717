package sim

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"arrival-predictor/internal/estimator"
	"arrival-predictor/internal/ingest"
	"arrival-predictor/internal/logging"
	mmetrics "arrival-predictor/internal/metrics"
	"arrival-predictor/internal/route"
	"arrival-predictor/internal/store"
)

// Publisher announces committed changes of the route set.
type Publisher interface {
	PublishRoute(r route.Route) error
	PublishDeleted(routeID string) error
}

// Manager runs ingestion calls against the route store. Each call is
// simulated completely before anything is committed, and calls are
// serialized so a slow upload cannot interleave with a manual creation.
type Manager struct {
	sim     *Simulator
	routes  *store.Routes
	pub     Publisher
	metrics *mmetrics.Collector
	logger  *slog.Logger
	newID   func() string

	mu sync.Mutex
}

func NewManager(simulator *Simulator, routes *store.Routes, pub Publisher, metrics *mmetrics.Collector, logger *slog.Logger) *Manager {
	return &Manager{
		sim:     simulator,
		routes:  routes,
		pub:     pub,
		metrics: metrics,
		logger:  logging.OrDiscard(logger),
		newID:   uuid.NewString,
	}
}

// Upload replaces the route set with the simulation of t. On any error the
// set keeps its previous value.
func (m *Manager) Upload(ctx context.Context, t route.Table, source string) ([]route.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	routes, err := m.sim.AssembleAndSimulate(ctx, t)
	m.observe(source, time.Since(start), err)
	if err != nil {
		logging.LogError(m.logger, "ingestion rejected", err,
			slog.String("source", source),
			slog.Int("rows", len(t.Rows)))
		return nil, err
	}

	m.routes.Replace(routes)
	m.committed(routes...)

	logging.LogOperation(m.logger, "routes_replaced",
		slog.String("source", source),
		slog.String("mode", string(t.Mode())),
		slog.Int("rows", len(t.Rows)),
		slog.Int("routes", len(routes)),
		slog.Duration("duration", time.Since(start)))
	for _, r := range routes {
		m.publish(r)
	}
	return routes, nil
}

// Create simulates a hand-drawn route under a fresh id and adds it to the
// set.
func (m *Manager) Create(ctx context.Context, req ingest.ManualRoute) (route.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	id := m.newID()
	records, err := req.Records(id)
	var r route.Route
	if err == nil {
		r, err = m.sim.SimulateSingleRoute(ctx, id, req.Name, records)
	}
	m.observe(ingest.SourceManual, time.Since(start), err)
	if err != nil {
		logging.LogError(m.logger, "route creation rejected", err, slog.String("name", req.Name))
		return route.Route{}, err
	}

	m.routes.Upsert(r)
	m.committed(r)

	logging.LogOperation(m.logger, "route_created",
		slog.String("route_id", r.ID),
		slog.String("name", r.Name),
		slog.Int("stops", len(r.Stops)))
	m.publish(r)
	return r, nil
}

// Delete removes a route. Unknown ids are a successful no-op.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := m.routes.Delete(id)
	if !removed {
		return false
	}
	if m.metrics != nil {
		m.metrics.RoutesDeleted.Inc()
		m.metrics.RoutesCurrent.Set(float64(m.routes.Len()))
	}
	logging.LogOperation(m.logger, "route_deleted", slog.String("route_id", id))
	if m.pub != nil {
		if err := m.pub.PublishDeleted(id); err != nil {
			logging.LogError(m.logger, "publish error", err, slog.String("route_id", id))
		}
	}
	return true
}

// SourceUnknown labels uploads rejected before their format was known.
const SourceUnknown = "unknown"

// Reject records an ingestion whose input was refused before reaching the
// simulator, such as an upload that could not be decoded. It counts as
// invalid and leaves the route set untouched.
func (m *Manager) Reject(source string, err error) {
	if source == "" {
		source = SourceUnknown
	}
	if m.metrics != nil {
		m.metrics.IngestObserve(source, "invalid", 0)
	}
	logging.LogError(m.logger, "ingestion rejected", err, slog.String("source", source))
}

func (m *Manager) Routes() []route.Route { return m.routes.All() }

func (m *Manager) Route(id string) (route.Route, bool) { return m.routes.Get(id) }

func (m *Manager) committed(routes ...route.Route) {
	if m.metrics == nil {
		return
	}
	stops := 0
	for _, r := range routes {
		stops += len(r.Stops)
	}
	m.metrics.StopsSimulated.Add(float64(stops))
	m.metrics.RoutesCurrent.Set(float64(m.routes.Len()))
}

func (m *Manager) publish(r route.Route) {
	if m.pub == nil {
		return
	}
	if err := m.pub.PublishRoute(r); err != nil {
		logging.LogError(m.logger, "publish error", err, slog.String("route_id", r.ID))
	}
}

func (m *Manager) observe(source string, d time.Duration, err error) {
	if m.metrics == nil {
		return
	}
	m.metrics.IngestObserve(source, Result(err), d)
}

// Result classifies an ingestion error for metrics.
func Result(err error) string {
	var verr *route.ValidationError
	var eerr *estimator.EstimationError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &verr):
		return "invalid"
	case errors.As(err, &eerr):
		return "estimation_failed"
	default:
		return "error"
	}
}
