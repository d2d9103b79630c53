package navigator

import (
	"context"

	"github.com/orneryd/conduit/pkg/segment"
)

// Future is the pending or settled result of fetching one segment.
// A Future settles exactly once; its value never changes afterwards.
type Future struct {
	id   string
	done chan struct{}
	seg  *segment.Segment
	err  error
}

func newFuture(id string) *Future {
	return &Future{id: id, done: make(chan struct{})}
}

func resolvedFuture(seg *segment.Segment) *Future {
	f := newFuture(seg.ID)
	f.settle(seg, nil)
	return f
}

// settle must be called exactly once.
func (f *Future) settle(seg *segment.Segment, err error) {
	f.seg, f.err = seg, err
	close(f.done)
}

// ID returns the segment identifier this future resolves.
func (f *Future) ID() string { return f.id }

// Done is closed once the future has settled.
func (f *Future) Done() <-chan struct{} { return f.done }

// Settled reports whether the future has a value or error.
func (f *Future) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the future settles or ctx is done. Giving up on ctx does
// not cancel the underlying fetch.
func (f *Future) Wait(ctx context.Context) (*segment.Segment, error) {
	select {
	case <-f.done:
		return f.seg, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the settled value without blocking. ok is false while the
// fetch is still in flight.
func (f *Future) Result() (seg *segment.Segment, ok bool, err error) {
	if !f.Settled() {
		return nil, false, nil
	}
	return f.seg, true, f.err
}
