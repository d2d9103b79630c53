package navigator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/orneryd/conduit/pkg/segment"
)

func testIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("seg-%03d", i)
	}
	return ids
}

func testSegment(id string) *segment.Segment {
	return &segment.Segment{
		ID:          id,
		CaseID:      "case-" + id,
		Signals:     map[string][]float64{"I": {0, 1, 0, -1}},
		Annotations: map[string]segment.Annotation{},
	}
}

// fakeFetcher records every batch. When gate is set, Find blocks until the
// gate is closed (or ctx ends). Segments are returned in reverse order to
// make sure the cache does not depend on response order.
type fakeFetcher struct {
	mu    sync.Mutex
	calls [][]string
	gate  chan struct{}
	err   error
	omit  map[string]bool
}

func (f *fakeFetcher) Find(ctx context.Context, ids []string) ([]*segment.Segment, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), ids...))
	gate, err := f.gate, f.err
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	out := make([]*segment.Segment, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		if f.omit[ids[i]] {
			continue
		}
		out = append(out, testSegment(ids[i]))
	}
	return out, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeFetcher) call(i int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

func (f *fakeFetcher) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeFetcher) setGate(gate chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = gate
}

func newTestCache(t *testing.T, n, chunk, factor int) (*Cache, *fakeFetcher, []string) {
	t.Helper()
	ids := testIDs(n)
	f := &fakeFetcher{}
	c := NewCache(NewIndex(ids), f, Config{ChunkSize: chunk, CacheFactor: factor})
	return c, f, ids
}

// span returns ids[lo:hi] sorted, for comparing with a recorded batch.
func span(ids []string, lo, hi int) []string {
	out := append([]string(nil), ids[lo:hi]...)
	sort.Strings(out)
	return out
}

func sorted(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return out
}

// fakePager serves a sorted id list with the REST paging semantics.
type fakePager struct {
	ids   []string
	pages int
	err   error
}

func (p *fakePager) Count(ctx context.Context, startID string) (int, int, error) {
	if p.err != nil {
		return 0, 0, p.err
	}
	if startID == "" {
		return 0, len(p.ids), nil
	}
	n := 0
	for _, id := range p.ids {
		if id <= startID {
			n++
		}
	}
	return n, len(p.ids), nil
}

func (p *fakePager) Page(ctx context.Context, req PageRequest) ([]*segment.Segment, error) {
	p.pages++
	if p.err != nil {
		return nil, p.err
	}
	var out []*segment.Segment
	switch {
	case req.Before != "":
		var before []string
		for _, id := range p.ids {
			if id < req.Before {
				before = append(before, id)
			}
		}
		if len(before) > req.Limit {
			before = before[len(before)-req.Limit:]
		}
		for _, id := range before {
			out = append(out, testSegment(id))
		}
	default:
		for _, id := range p.ids {
			if id > req.After && len(out) < req.Limit {
				out = append(out, testSegment(id))
			}
		}
	}
	return out, nil
}
