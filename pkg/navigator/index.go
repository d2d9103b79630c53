// Package navigator provides index-based, bidirectional access over a fixed,
// server-paginated sequence of segments.
//
// Two pieces cooperate:
//
//   - Index resolves a logical position (0..N-1) to a segment identifier. It
//     owns the ordered identifier list of a campaign and never changes.
//   - Cache guarantees the segment at a position is available, fetching it if
//     needed, and prefetches a window of identifiers ahead in the direction of
//     travel with a single batched call. Entries are bounded by an LRU that
//     never evicts in-flight fetches.
//
// Session layers a movable position on top of a Cache, and Cursor is the
// older sequential variant that walks fixed chunks with next/previous only.
//
// Example:
//
//	idx := navigator.NewIndex(campaign.Segments)
//	cache := navigator.NewCache(idx, apiClient, navigator.DefaultConfig())
//
//	fut, err := cache.Get(10, navigator.Forward) // fetches positions 10-19 in one call
//	if err != nil {
//		return err
//	}
//	seg, err := fut.Wait(ctx)
package navigator

// Direction is the caller's direction of travel through the sequence.
type Direction int

const (
	// Forward moves towards higher positions.
	Forward Direction = 1
	// Backward moves towards lower positions.
	Backward Direction = -1
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	default:
		return "unknown"
	}
}

// Index is the immutable ordered list of identifiers for a session.
type Index struct {
	ids []string
}

// NewIndex creates an Index over a copy of ids.
func NewIndex(ids []string) *Index {
	return &Index{ids: append([]string(nil), ids...)}
}

// Len returns the number of identifiers.
func (x *Index) Len() int {
	return len(x.ids)
}

// Resolve maps position i to its identifier.
func (x *Index) Resolve(i int) (string, error) {
	if i < 0 || i >= len(x.ids) {
		return "", outOfRange(i, len(x.ids))
	}
	return x.ids[i], nil
}

// Position returns the first position holding id, or -1.
func (x *Index) Position(id string) int {
	for i, v := range x.ids {
		if v == id {
			return i
		}
	}
	return -1
}

// Window returns the half-open span [lo, hi) of positions prefetched for a
// request at pivot moving in dir. Forward covers [pivot, pivot+size) and
// Backward covers (pivot-size, pivot]; both are clamped to [0, Len()).
// The pivot is always inside its own window when it is in range.
func (x *Index) Window(pivot int, dir Direction, size int) (lo, hi int) {
	if size < 1 {
		size = 1
	}
	if dir == Backward {
		lo, hi = pivot-size+1, pivot+1
	} else {
		lo, hi = pivot, pivot+size
	}
	if lo < 0 {
		lo = 0
	}
	if hi > len(x.ids) {
		hi = len(x.ids)
	}
	if hi < lo {
		hi = lo
	}
	return lo, hi
}
