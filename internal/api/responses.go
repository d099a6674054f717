package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"arrival-predictor/internal/estimator"
	"arrival-predictor/internal/ingest"
	"arrival-predictor/internal/logging"
	"arrival-predictor/internal/route"
)

type errorBody struct {
	Error          string   `json:"error"`
	MissingColumns []string `json:"missingColumns,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) errorMessage(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorBody{Error: msg})
}

// errorResponse maps a failed ingestion to its status code. Validation
// problems are the client's (400), unusable estimator output is 422 and
// anything unexpected is a 500.
func (s *Server) errorResponse(w http.ResponseWriter, r *http.Request, err error) {
	var verr *route.ValidationError
	var eerr *estimator.EstimationError
	var mbe *http.MaxBytesError

	switch {
	case errors.As(err, &verr):
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: verr.Error(), MissingColumns: verr.Missing})
	case errors.Is(err, ingest.ErrUnsupportedFormat):
		s.errorMessage(w, http.StatusUnsupportedMediaType, ingest.ErrUnsupportedFormat.Error())
	case errors.As(err, &mbe):
		s.errorMessage(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", mbe.Limit))
	case errors.As(err, &eerr):
		s.errorMessage(w, http.StatusUnprocessableEntity, eerr.Error())
	default:
		logging.LogError(s.logger, "request failed", err,
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path))
		s.errorMessage(w, http.StatusInternalServerError, "An error occurred: "+err.Error())
	}
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	s.errorMessage(w, http.StatusNotFound, "not found")
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.errorMessage(w, http.StatusMethodNotAllowed, r.Method+" is not allowed on "+r.URL.Path)
}

func (s *Server) panicked(w http.ResponseWriter, r *http.Request, v any) {
	s.logger.Error("handler panic",
		slog.Any("panic", v),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path))
	s.errorMessage(w, http.StatusInternalServerError, "internal server error")
}
