package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/orneryd/conduit/pkg/storage"
)

// =============================================================================
// Helper Functions
// =============================================================================

// parseIntQuery returns the integer value of key. ok is false when the key is
// absent; a present but malformed value is an error.
func parseIntQuery(r *http.Request, key string) (val int, ok bool, err error) {
	valStr := r.URL.Query().Get(key)
	if valStr == "" {
		return 0, false, nil
	}
	val, err = strconv.Atoi(valStr)
	if err != nil {
		return 0, true, fmt.Errorf("%w: %s must be an integer", ErrBadRequest, key)
	}
	return val, true, nil
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// JSON helpers

func (s *Server) readJSON(r *http.Request, v interface{}) error {
	body := io.LimitReader(r.Body, s.config.MaxRequestSize)
	return json.NewDecoder(body).Decode(v)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string, err error) {
	s.errorCount.Add(1)

	response := map[string]interface{}{
		"error":   true,
		"message": message,
		"code":    status,
	}

	s.writeJSON(w, status, response)
}

// writeStorageError maps storage errors to HTTP statuses.
func (s *Server) writeStorageError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error(), ErrNotFound)
	case errors.Is(err, storage.ErrInvalidID), errors.Is(err, storage.ErrInvalidData), errors.Is(err, ErrBadRequest):
		s.writeError(w, http.StatusBadRequest, err.Error(), ErrBadRequest)
	case errors.Is(err, storage.ErrStorageClosed):
		s.writeError(w, http.StatusServiceUnavailable, err.Error(), ErrServerClosed)
	default:
		s.writeError(w, http.StatusInternalServerError, "internal server error", ErrInternalError)
	}
}

// Logging helpers

func (s *Server) logRequest(r *http.Request, status int, duration time.Duration) {
	fmt.Printf("[HTTP] %s %s %d %v\n", r.Method, r.URL.Path, status, duration)
}
