package server

import (
	"net/http"
)

// =============================================================================
// Router Setup
// =============================================================================

func (s *Server) buildRouter() http.Handler {
	mux := http.NewServeMux()

	s.registerHealthRoutes(mux)
	s.registerSegmentRoutes(mux)
	s.registerAnnotatorRoutes(mux)

	return s.wrapWithMiddleware(mux)
}

func (s *Server) registerHealthRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
}

func (s *Server) registerSegmentRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/segments", s.withAudit("list_segments", s.handleListSegments))
	mux.HandleFunc("GET /api/segments/count", s.withAudit("count_segments", s.handleCountSegments))
	mux.HandleFunc("GET /api/segments/{id}", s.withAudit("get_segment", s.handleGetSegment))
	mux.HandleFunc("PUT /api/segments/{id}/annotations/{annotator}",
		s.withAudit("update_segment_annotations", s.handleUpdateAnnotation))
}

func (s *Server) registerAnnotatorRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/annotators", s.withAudit("list_annotators", s.handleListAnnotators))
	mux.HandleFunc("GET /api/annotators/{username}", s.withAudit("get_annotator", s.handleGetAnnotator))
	mux.HandleFunc("GET /api/classes", s.withAudit("get_classes", s.handleClasses))
}

func (s *Server) wrapWithMiddleware(next http.Handler) http.Handler {
	// Order matters: the last wrapper runs first.
	handler := s.corsMiddleware(next)
	handler = s.loggingMiddleware(handler)
	handler = s.recoveryMiddleware(handler)
	handler = s.metricsMiddleware(handler)
	return handler
}
