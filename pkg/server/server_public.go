package server

import (
	"fmt"
	"net/http"
	"strings"
)

// =============================================================================
// Health & Status Handlers
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats := s.Stats()
	dbStats := s.db.Stats()

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "running",
		"server": map[string]interface{}{
			"uptime_seconds": stats.Uptime.Seconds(),
			"requests":       stats.RequestCount,
			"errors":         stats.ErrorCount,
			"active":         stats.ActiveRequests,
			"audit_dropped":  stats.AuditDropped,
		},
		"database": dbStats,
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	stats := s.Stats()
	dbStats := s.db.Stats()

	var sb strings.Builder
	metric := func(name, kind, help string, value interface{}) {
		fmt.Fprintf(&sb, "# HELP conduit_%s %s\n", name, help)
		fmt.Fprintf(&sb, "# TYPE conduit_%s %s\n", name, kind)
		fmt.Fprintf(&sb, "conduit_%s %v\n", name, value)
	}

	metric("uptime_seconds", "gauge", "Server uptime in seconds", fmt.Sprintf("%.2f", stats.Uptime.Seconds()))
	metric("requests_total", "counter", "Total HTTP requests", stats.RequestCount)
	metric("errors_total", "counter", "Total request errors", stats.ErrorCount)
	metric("active_requests", "gauge", "Currently active requests", stats.ActiveRequests)
	metric("audit_dropped_total", "counter", "Audit events dropped because the queue was full", stats.AuditDropped)
	metric("segments_total", "gauge", "Stored segments", dbStats.Segments)
	metric("annotators_total", "gauge", "Stored annotators", dbStats.Annotators)
	metric("audit_events_total", "gauge", "Stored audit events", dbStats.AuditEvents)
	metric("segment_cache_hits_total", "counter", "Hot segment cache hits", dbStats.CacheHits)
	metric("segment_cache_misses_total", "counter", "Hot segment cache misses", dbStats.CacheMisses)

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(sb.String()))
}
