package storage

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/orneryd/conduit/pkg/segment"
)

// ============================================================================
// Segment Operations
// ============================================================================

// PutSegment creates or replaces a segment.
func (b *BadgerEngine) PutSegment(seg *segment.Segment) error {
	if seg == nil {
		return ErrInvalidData
	}
	if seg.ID == "" {
		return ErrInvalidID
	}
	data, err := encode(seg)
	if err != nil {
		return fmt.Errorf("failed to encode segment %s: %w", seg.ID, err)
	}

	var existed bool
	err = b.withUpdate(func(txn *badger.Txn) error {
		key := segmentKey(seg.ID)
		ok, err := exists(txn, key)
		if err != nil {
			return err
		}
		existed = ok
		return txn.Set(key, data)
	})
	if err != nil {
		return err
	}

	if !existed {
		b.segmentCount.Add(1)
	}
	b.cacheDeleteSegment(seg.ID)
	return nil
}

// PutSegments writes many segments through a badger WriteBatch, which splits
// the work over as many transactions as needed.
func (b *BadgerEngine) PutSegments(segs []*segment.Segment) error {
	if err := b.ensureOpen(); err != nil {
		return err
	}
	for _, seg := range segs {
		if seg == nil {
			return ErrInvalidData
		}
		if seg.ID == "" {
			return ErrInvalidID
		}
	}

	var created int64
	err := b.db.View(func(txn *badger.Txn) error {
		for _, seg := range segs {
			ok, err := exists(txn, segmentKey(seg.ID))
			if err != nil {
				return err
			}
			if !ok {
				created++
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for _, seg := range segs {
		data, err := encode(seg)
		if err != nil {
			return fmt.Errorf("failed to encode segment %s: %w", seg.ID, err)
		}
		if err := wb.Set(segmentKey(seg.ID), data); err != nil {
			return err
		}
	}
	if err := wb.Flush(); err != nil {
		return err
	}

	b.segmentCount.Add(created)
	for _, seg := range segs {
		b.cacheDeleteSegment(seg.ID)
	}
	return nil
}

// GetSegment retrieves a segment by id.
func (b *BadgerEngine) GetSegment(id string) (*segment.Segment, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	if err := b.ensureOpen(); err != nil {
		return nil, err
	}
	if seg, ok := b.cacheLookupSegment(id); ok {
		return seg, nil
	}

	var seg segment.Segment
	err := b.db.View(func(txn *badger.Txn) error {
		return getItem(txn, segmentKey(id), &seg)
	})
	if err != nil {
		return nil, err
	}
	b.cacheStoreSegment(&seg)
	return &seg, nil
}

// FindSegments returns the segments for ids in request order. Unknown ids are
// skipped, so the result may be shorter than ids.
func (b *BadgerEngine) FindSegments(ids []string) ([]*segment.Segment, error) {
	if err := b.ensureOpen(); err != nil {
		return nil, err
	}

	found := make(map[string]*segment.Segment, len(ids))
	var misses []string
	for _, id := range ids {
		if id == "" {
			continue
		}
		if seg, ok := b.cacheLookupSegment(id); ok {
			found[id] = seg
		} else {
			misses = append(misses, id)
		}
	}

	if len(misses) > 0 {
		err := b.db.View(func(txn *badger.Txn) error {
			for _, id := range misses {
				var seg segment.Segment
				err := getItem(txn, segmentKey(id), &seg)
				if errors.Is(err, ErrNotFound) {
					continue
				}
				if err != nil {
					return err
				}
				found[id] = &seg
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		for _, id := range misses {
			if seg, ok := found[id]; ok {
				b.cacheStoreSegment(seg)
			}
		}
	}

	out := make([]*segment.Segment, 0, len(found))
	seen := make(map[string]bool, len(found))
	for _, id := range ids {
		if seg, ok := found[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, seg)
		}
	}
	return out, nil
}

// ListSegments pages through segments in ascending id order. With after set it
// returns up to limit segments whose id is greater than after; with before set
// it returns the limit segments immediately preceding before, still ascending.
// Setting both is an error.
func (b *BadgerEngine) ListSegments(after, before string, limit int) ([]*segment.Segment, error) {
	if after != "" && before != "" {
		return nil, fmt.Errorf("%w: only one of before and after is permitted", ErrInvalidData)
	}
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", ErrInvalidData)
	}

	prefix := []byte{prefixSegment}
	var out []*segment.Segment
	err := b.withView(func(txn *badger.Txn) error {
		reverse := before != ""
		it := txn.NewIterator(iterOptsValues(prefix, limit, reverse))
		defer it.Close()

		var start, skip []byte
		switch {
		case reverse:
			start, skip = segmentKey(before), segmentKey(before)
		case after != "":
			start, skip = segmentKey(after), segmentKey(after)
		default:
			start = prefix
		}

		for it.Seek(start); it.Valid() && len(out) < limit; it.Next() {
			item := it.Item()
			if skip != nil && bytes.Equal(item.Key(), skip) {
				continue
			}
			var seg segment.Segment
			if err := item.Value(func(val []byte) error { return decode(val, &seg) }); err != nil {
				return err
			}
			out = append(out, &seg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if before != "" {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

// CountSegments returns the number of stored segments.
func (b *BadgerEngine) CountSegments() (int64, error) {
	if err := b.ensureOpen(); err != nil {
		return 0, err
	}
	return b.segmentCount.Load(), nil
}

// SegmentPosition returns the 1-based position of id in ascending id order.
func (b *BadgerEngine) SegmentPosition(id string) (int64, error) {
	if id == "" {
		return 0, ErrInvalidID
	}
	target := segmentKey(id)
	var pos int64
	err := b.withView(func(txn *badger.Txn) error {
		if ok, err := exists(txn, target); err != nil {
			return err
		} else if !ok {
			return ErrNotFound
		}
		it := txn.NewIterator(iterOptsKeyOnly([]byte{prefixSegment}))
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			pos++
			if bytes.Equal(it.Item().Key(), target) {
				break
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return pos, nil
}

// UpdateAnnotation stores annotation a from annotator on segment id and
// returns the updated segment. The annotation is validated (and its
// confidence defaulted) first.
func (b *BadgerEngine) UpdateAnnotation(id, annotator string, a segment.Annotation) (*segment.Segment, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	if annotator == "" {
		return nil, fmt.Errorf("%w: no annotator specified", ErrInvalidData)
	}
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidData, err)
	}

	var updated *segment.Segment
	err := b.withUpdate(func(txn *badger.Txn) error {
		var seg segment.Segment
		if err := getItem(txn, segmentKey(id), &seg); err != nil {
			return err
		}
		updated = seg.WithAnnotation(annotator, a)
		data, err := encode(updated)
		if err != nil {
			return err
		}
		return txn.Set(segmentKey(id), data)
	})
	if err != nil {
		return nil, err
	}

	b.cacheDeleteSegment(id)
	return updated, nil
}
