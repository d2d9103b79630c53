package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/orneryd/conduit/pkg/storage"
)

// =============================================================================
// Middleware
// =============================================================================

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.EnableCORS {
			origin := r.Header.Get("Origin")

			allowed := false
			isWildcard := false
			for _, o := range s.config.CORSOrigins {
				if o == "*" {
					allowed = true
					isWildcard = true
					break
				}
				if o == origin {
					allowed = true
					break
				}
			}

			if allowed {
				// Never send credentials with a wildcard origin.
				if isWildcard {
					w.Header().Set("Access-Control-Allow-Origin", "*")
				} else if origin != "" {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
				w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		// Skip health checks for noise reduction
		if s.config.LogRequests && r.URL.Path != "/health" {
			s.logRequest(r, wrapped.status, time.Since(start))
		}
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("PANIC: %v", err)
				if os.Getenv("CONDUIT_DEBUG") == "true" {
					buf := make([]byte, 4096)
					n := runtime.Stack(buf, false)
					log.Printf("Stack trace:\n%s", buf[:n])
				}
				s.writeError(w, http.StatusInternalServerError, "internal server error", ErrInternalError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requestCount.Add(1)
		s.activeRequests.Add(1)
		defer s.activeRequests.Add(-1)

		next.ServeHTTP(w, r)
	})
}

// withAudit records the request as an audit event under route before
// calling handler. Recording never blocks the request.
func (s *Server) withAudit(route string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.auditCh == nil {
			handler(w, r)
			return
		}

		ev := &storage.AuditEvent{
			Timestamp:  time.Now().UTC(),
			Route:      route,
			URL:        r.URL.String(),
			PathParams: pathParams(r),
		}
		if q := r.URL.Query(); len(q) > 0 {
			ev.QueryParams = q
		}

		if (r.Method == http.MethodPut || r.Method == http.MethodPost) &&
			strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
			body, err := io.ReadAll(io.LimitReader(r.Body, s.config.MaxRequestSize))
			if err == nil {
				r.Body = io.NopCloser(bytes.NewReader(body))
				if json.Valid(body) {
					ev.Body = body
				}
			}
		}

		s.enqueueAudit(ev)
		handler(w, r)
	}
}

// pathParams extracts the {name} wildcards of the matched pattern.
func pathParams(r *http.Request) map[string]string {
	var params map[string]string
	for _, part := range strings.Split(r.Pattern, "/") {
		if !strings.HasPrefix(part, "{") || !strings.HasSuffix(part, "}") {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(part, "{"), "}")
		name = strings.TrimSuffix(name, "...")
		if params == nil {
			params = make(map[string]string)
		}
		params[name] = r.PathValue(name)
	}
	return params
}
