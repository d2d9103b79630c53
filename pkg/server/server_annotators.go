package server

import (
	"fmt"
	"net/http"

	"github.com/orneryd/conduit/pkg/segment"
)

// =============================================================================
// Annotator & Class Handlers
// =============================================================================

func (s *Server) handleListAnnotators(w http.ResponseWriter, r *http.Request) {
	annotators, err := s.db.ListAnnotators()
	if err != nil {
		s.writeStorageError(w, err)
		return
	}
	if annotators == nil {
		annotators = []*segment.Annotator{}
	}
	s.writeJSON(w, http.StatusOK, annotators)
}

func (s *Server) handleGetAnnotator(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	a, err := s.db.GetAnnotator(username)
	if err != nil {
		s.writeStorageError(w, fmt.Errorf("annotator %s: %w", username, err))
		return
	}
	s.writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleClasses(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.config.Classes)
}
