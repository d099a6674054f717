package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"

	"arrival-predictor/internal/ingest"
	"arrival-predictor/internal/route"
)

type routesResponse struct {
	Routes []route.Route `json:"routes"`
}

type routeResponse struct {
	Route route.Route `json:"route"`
}

type deleteResponse struct {
	Deleted bool `json:"deleted"`
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listRoutes(w http.ResponseWriter, r *http.Request) {
	routes := s.mgr.Routes()
	if len(routes) == 0 && s.opts.Placeholder {
		routes = []route.Route{route.Placeholder()}
	}
	s.writeJSON(w, http.StatusOK, routesResponse{Routes: routes})
}

func (s *Server) getRoute(w http.ResponseWriter, r *http.Request) {
	id := httprouter.ParamsFromContext(r.Context()).ByName("id")
	rt, ok := s.mgr.Route(id)
	if !ok {
		s.errorMessage(w, http.StatusNotFound, fmt.Sprintf("route %q not found", id))
		return
	}
	s.writeJSON(w, http.StatusOK, routeResponse{Route: rt})
}

func (s *Server) deleteRoute(w http.ResponseWriter, r *http.Request) {
	id := httprouter.ParamsFromContext(r.Context()).ByName("id")
	s.writeJSON(w, http.StatusOK, deleteResponse{Deleted: s.mgr.Delete(id)})
}

func (s *Server) createRoute(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)

	var req ingest.ManualRoute
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			s.errorResponse(w, r, err)
			return
		}
		s.mgr.Reject(ingest.SourceManual, err)
		s.errorMessage(w, http.StatusBadRequest, "invalid route body: "+err.Error())
		return
	}

	rt, err := s.mgr.Create(r.Context(), req)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, routeResponse{Route: rt})
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			s.errorResponse(w, r, err)
			return
		}
		s.errorMessage(w, http.StatusBadRequest, "a multipart field named \"file\" is required")
		return
	}
	defer file.Close()

	table, source, err := ingest.Decode(header.Filename, file)
	if err != nil {
		s.mgr.Reject(source, err)
		s.errorResponse(w, r, err)
		return
	}

	routes, err := s.mgr.Upload(r.Context(), table, source)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, routesResponse{Routes: routes})
}

// importDatabase replaces the route set with the first trip of every route
// active on ?date= (default today), optionally narrowed by repeated
// ?route_id= parameters.
func (s *Server) importDatabase(w http.ResponseWriter, r *http.Request) {
	if s.opts.Source == nil {
		s.errorMessage(w, http.StatusServiceUnavailable, "no GTFS database is configured")
		return
	}

	now := s.opts.Clock()
	day := now
	q := r.URL.Query()
	if v := strings.TrimSpace(q.Get("date")); v != "" {
		d, err := time.ParseInLocation(time.DateOnly, v, now.Location())
		if err != nil {
			s.errorMessage(w, http.StatusBadRequest, fmt.Sprintf("invalid date %q, want YYYY-MM-DD", v))
			return
		}
		day = d
	}

	var routeIDs []string
	for _, id := range q["route_id"] {
		if id = strings.TrimSpace(id); id != "" {
			routeIDs = append(routeIDs, id)
		}
	}

	trips, err := s.opts.Source.RouteSchedules(r.Context(), day, routeIDs)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	if len(trips) == 0 {
		s.errorMessage(w, http.StatusNotFound, "no active trips on "+day.Format(time.DateOnly))
		return
	}

	table, err := ingest.FromSchedules(trips)
	if err != nil {
		s.mgr.Reject(ingest.SourceDatabase, err)
		s.errorResponse(w, r, err)
		return
	}
	routes, err := s.mgr.Upload(r.Context(), table, ingest.SourceDatabase)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, routesResponse{Routes: routes})
}

func (s *Server) exportCSV(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="routes.csv"`)
	if err := ingest.EncodeCSV(w, s.mgr.Routes()); err != nil {
		s.logger.Error("failed to write csv export", "error", err)
	}
}
