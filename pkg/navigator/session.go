package navigator

import (
	"context"
	"sync"

	"github.com/orneryd/conduit/pkg/segment"
)

// Session tracks an annotator's position over a Cache.
//
// Position is -1 until the first record is loaded and otherwise always in
// [0, Len()-1]. A move only takes effect once the target record has been
// fetched, so a failed fetch leaves the session where it was.
type Session struct {
	cache *Cache

	mu       sync.Mutex
	position int
	current  *segment.Segment
}

// NewSession creates a session positioned at start. Values outside
// [-1, Len()-1] are clamped.
func NewSession(cache *Cache, start int) *Session {
	n := cache.Index().Len()
	if start > n-1 {
		start = n - 1
	}
	if start < -1 {
		start = -1
	}
	return &Session{cache: cache, position: start}
}

// StartPosition returns where an annotator resumes a campaign: the last
// annotated segment, but never past the second-to-last one so that the first
// Next still has somewhere to go. It is -1 when nothing was annotated yet.
func StartPosition(c *segment.Campaign) int {
	if c == nil {
		return -1
	}
	pos := c.IndexOf(c.LastAnnotatedSegment)
	if last := len(c.Segments) - 2; last < pos {
		pos = last
	}
	if pos < -1 {
		pos = -1
	}
	return pos
}

// Cache returns the underlying cache.
func (s *Session) Cache() *Cache { return s.cache }

// Len returns the number of positions.
func (s *Session) Len() int { return s.cache.Index().Len() }

// Position returns the current position (-1 before the first load).
func (s *Session) Position() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

// Current returns the record at the current position, or nil.
func (s *Session) Current() *segment.Segment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// HasNext reports whether Next can move.
func (s *Session) HasNext() bool { return s.Position() < s.Len()-1 }

// HasPrevious reports whether Previous can move.
func (s *Session) HasPrevious() bool { return s.Position() > 0 }

// Next moves one position forward.
func (s *Session) Next(ctx context.Context) (*segment.Segment, error) {
	pos := s.Position()
	if pos >= s.Len()-1 {
		return nil, ErrNoFurtherRecord
	}
	return s.move(ctx, pos+1, Forward)
}

// Previous moves one position backward.
func (s *Session) Previous(ctx context.Context) (*segment.Segment, error) {
	pos := s.Position()
	if pos <= 0 {
		return nil, ErrNoFurtherRecord
	}
	return s.move(ctx, pos-1, Backward)
}

// Seek jumps to position i. The prefetch direction follows the jump.
func (s *Session) Seek(ctx context.Context, i int) (*segment.Segment, error) {
	dir := Forward
	if i < s.Position() {
		dir = Backward
	}
	return s.move(ctx, i, dir)
}

// Reload re-reads the current position through the cache.
func (s *Session) Reload(ctx context.Context) (*segment.Segment, error) {
	pos := s.Position()
	if pos < 0 {
		return nil, ErrNoFurtherRecord
	}
	return s.move(ctx, pos, Forward)
}

// Replace installs an updated copy of a record in the cache and, when it is
// the current record, in the session.
func (s *Session) Replace(seg *segment.Segment) {
	s.cache.Replace(seg)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil && seg != nil && s.current.ID == seg.ID {
		s.current = seg
	}
}

func (s *Session) move(ctx context.Context, i int, dir Direction) (*segment.Segment, error) {
	seg, err := s.cache.Fetch(ctx, i, dir)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.position = i
	s.current = seg
	s.mu.Unlock()
	return seg, nil
}
