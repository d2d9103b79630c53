package navigator

import (
	"context"
	"fmt"

	"github.com/orneryd/conduit/pkg/segment"
)

// PageRequest selects up to Limit segments immediately after After or
// immediately before Before, in ascending order. At most one of After and
// Before may be set; neither means "from the start".
type PageRequest struct {
	After  string
	Before string
	Limit  int
}

// Pager is the sequential paging contract used by Cursor.
type Pager interface {
	// Count returns the 1-based position of startID (0 when startID is empty)
	// and the total number of segments.
	Count(ctx context.Context, startID string) (index, total int, err error)
	// Page returns a page of segments.
	Page(ctx context.Context, req PageRequest) ([]*segment.Segment, error)
}

// CursorState is the direction of the last move made by a Cursor.
type CursorState int

const (
	Idle CursorState = iota
	Advancing
	Retreating
)

func (s CursorState) String() string {
	switch s {
	case Advancing:
		return "advancing"
	case Retreating:
		return "retreating"
	default:
		return "idle"
	}
}

// Cursor is the sequential variant of the navigator: it keeps three chunks in
// memory (previous, current, next) and only supports unit steps. Crossing a
// chunk edge slides the window and fetches the new adjacent chunk before the
// value is returned.
//
// A Cursor is not safe for concurrent use.
type Cursor struct {
	pager     Pager
	chunkSize int

	prev, cur, next []*segment.Segment

	// chunkIndex is the offset of position within cur. It may be negative
	// right after opening, when position refers to the tail of prev.
	chunkIndex int
	position   int
	total      int
	state      CursorState
}

// OpenCursor positions a cursor just after startID (or before the first
// segment when startID is empty) and loads the surrounding chunks. Chunk
// sizes below 2 are raised to 2.
func OpenCursor(ctx context.Context, pager Pager, startID string, chunkSize int) (*Cursor, error) {
	if chunkSize < 2 {
		chunkSize = 2
	}
	c := &Cursor{pager: pager, chunkSize: chunkSize, chunkIndex: -1}

	index, total, err := pager.Count(ctx, startID)
	if err != nil {
		return nil, fmt.Errorf("%w: count: %w", ErrFetchFailed, err)
	}
	c.position = index - 1
	c.total = total

	if c.cur, err = c.page(ctx, PageRequest{After: startID}); err != nil {
		return nil, err
	}
	if len(c.cur) == 0 {
		return c, nil
	}
	if c.prev, err = c.page(ctx, PageRequest{Before: c.cur[0].ID}); err != nil {
		return nil, err
	}
	if c.next, err = c.page(ctx, PageRequest{After: c.cur[len(c.cur)-1].ID}); err != nil {
		return nil, err
	}
	return c, nil
}

// Position returns the current position (-1 before the first record).
func (c *Cursor) Position() int { return c.position }

// Len returns the total number of segments.
func (c *Cursor) Len() int { return c.total }

// State returns the direction of the last move.
func (c *Cursor) State() CursorState { return c.state }

// Next advances one position.
func (c *Cursor) Next(ctx context.Context) (*segment.Segment, error) {
	if c.position+1 >= c.total || len(c.cur) == 0 {
		c.state = Idle
		return nil, ErrNoFurtherRecord
	}

	idx := c.chunkIndex + 1
	if idx >= len(c.cur) {
		if len(c.next) == 0 {
			c.state = Idle
			return nil, ErrNoFurtherRecord
		}
		after, err := c.page(ctx, PageRequest{After: c.next[len(c.next)-1].ID})
		if err != nil {
			return nil, err
		}
		c.prev, c.cur, c.next = c.cur, c.next, after
		idx = 0
	}

	c.chunkIndex = idx
	c.position++
	c.state = Advancing
	return c.cur[idx], nil
}

// Previous moves back one position.
func (c *Cursor) Previous(ctx context.Context) (*segment.Segment, error) {
	if c.position < 1 || len(c.cur) == 0 {
		c.state = Idle
		return nil, ErrNoFurtherRecord
	}

	idx := c.chunkIndex - 1
	if idx < 0 {
		// idx is -1 after a normal crossing, or -2 when the cursor was
		// opened on the tail of prev.
		if len(c.prev)+idx < 0 {
			c.state = Idle
			return nil, ErrNoFurtherRecord
		}
		before, err := c.page(ctx, PageRequest{Before: c.prev[0].ID})
		if err != nil {
			return nil, err
		}
		c.prev, c.cur, c.next = before, c.prev, c.cur
		idx += len(c.cur)
	}

	c.chunkIndex = idx
	c.position--
	c.state = Retreating
	return c.cur[idx], nil
}

func (c *Cursor) page(ctx context.Context, req PageRequest) ([]*segment.Segment, error) {
	req.Limit = c.chunkSize
	segs, err := c.pager.Page(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: page: %w", ErrFetchFailed, err)
	}
	return segs, nil
}
