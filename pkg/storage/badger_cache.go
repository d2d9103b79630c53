package storage

// =============================================================================
// SEGMENT CACHE INVARIANTS
// =============================================================================
//
//   - The hot cache stores private deep copies (segment.Clone) and every read
//     returns another copy, so callers cannot mutate cached state.
//   - Reads fill the cache; writes only invalidate it, after the badger
//     transaction committed.
//   - cacheStoreSegment / cacheDeleteSegment are the only writers.

import "github.com/orneryd/conduit/pkg/segment"

func (b *BadgerEngine) cacheStoreSegment(seg *segment.Segment) {
	if seg == nil {
		return
	}
	b.segmentCache.Add(seg.ID, seg.Clone())
}

func (b *BadgerEngine) cacheDeleteSegment(id string) {
	b.segmentCache.Remove(id)
}

func (b *BadgerEngine) cacheLookupSegment(id string) (*segment.Segment, bool) {
	if seg, ok := b.segmentCache.Get(id); ok {
		b.cacheHits.Add(1)
		return seg.Clone(), true
	}
	b.cacheMisses.Add(1)
	return nil, false
}
