package server

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/orneryd/conduit/pkg/segment"
	"github.com/orneryd/conduit/pkg/storage"
)

// =============================================================================
// Segment Handlers
// =============================================================================

// SegmentResponse is the body of GET /api/segments/{id}.
type SegmentResponse struct {
	Signals    map[string][]float64 `json:"signals"`
	Annotation *segment.Annotation  `json:"annotation"`
}

// AnnotationResponse is the body of a successful annotation PUT.
type AnnotationResponse struct {
	SegmentID  string             `json:"_id"`
	Annotator  string             `json:"annotator"`
	Annotation segment.Annotation `json:"annotation"`
	// LastAnnotated is true when the segment became the annotator's resume
	// point in their current campaign.
	LastAnnotated bool `json:"last_annotated"`
}

func (s *Server) handleListSegments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var find []string
	for _, v := range q["find"] {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				find = append(find, id)
			}
		}
	}
	if len(find) > 0 {
		segs, err := s.db.FindSegments(find)
		if err != nil {
			s.writeStorageError(w, err)
			return
		}
		s.writeSegments(w, segs)
		return
	}

	limit, hasLimit, err := parseIntQuery(r, "limit")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error(), ErrBadRequest)
		return
	}
	after, before := q.Get("after"), q.Get("before")
	if !hasLimit && after == "" && before == "" {
		s.writeError(w, http.StatusBadRequest, "search criteria always returns no results", ErrBadRequest)
		return
	}
	if !hasLimit {
		limit = DefaultPageLimit
	}
	if limit <= 0 {
		s.writeError(w, http.StatusBadRequest, "search criteria always returns no results", ErrBadRequest)
		return
	}
	if after != "" && before != "" {
		s.writeError(w, http.StatusBadRequest, "only one of before and after is permitted", ErrBadRequest)
		return
	}

	segs, err := s.db.ListSegments(after, before, limit)
	if err != nil {
		s.writeStorageError(w, err)
		return
	}
	s.writeSegments(w, segs)
}

func (s *Server) writeSegments(w http.ResponseWriter, segs []*segment.Segment) {
	if segs == nil {
		segs = []*segment.Segment{}
	}
	s.writeJSON(w, http.StatusOK, segs)
}

func (s *Server) handleCountSegments(w http.ResponseWriter, r *http.Request) {
	total, err := s.db.CountSegments()
	if err != nil {
		s.writeStorageError(w, err)
		return
	}

	var index int64
	if start := r.URL.Query().Get("start"); start != "" {
		index, err = s.db.SegmentPosition(start)
		if err != nil {
			s.writeStorageError(w, fmt.Errorf("start segment %s: %w", start, err))
			return
		}
	}
	s.writeJSON(w, http.StatusOK, [2]int64{index, total})
}

func (s *Server) handleGetSegment(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	seg, err := s.db.GetSegment(id)
	if err != nil {
		s.writeStorageError(w, fmt.Errorf("segment %s: %w", id, err))
		return
	}

	resp := SegmentResponse{Signals: seg.Signals}
	if a, ok := seg.Annotation(r.URL.Query().Get("annotator")); ok {
		resp.Annotation = &a
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpdateAnnotation(w http.ResponseWriter, r *http.Request) {
	id, annotator := r.PathValue("id"), r.PathValue("annotator")

	var a segment.Annotation
	if err := s.readJSON(r, &a); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid annotation body", ErrBadRequest)
		return
	}

	updated, err := s.db.UpdateAnnotation(id, annotator, a)
	if err != nil {
		s.writeStorageError(w, err)
		return
	}

	last, err := s.db.SetLastAnnotated(annotator, id)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		log.Printf("⚠️  failed to record last annotated segment for %s: %v", annotator, err)
	}

	stored, _ := updated.Annotation(annotator)
	s.writeJSON(w, http.StatusOK, AnnotationResponse{
		SegmentID:     id,
		Annotator:     annotator,
		Annotation:    stored,
		LastAnnotated: last,
	})
}
