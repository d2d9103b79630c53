package navigator

// =============================================================================
// WINDOWED CACHE INVARIANTS
// =============================================================================
//
//   - Every identifier maps to at most one entry, and every entry owns exactly
//     one Future. A Future is installed before its fetch starts, so concurrent
//     Get calls for the same identifier join the pending fetch.
//   - Entries are only created by a miss in Get (window prefetch) and only
//     destroyed by eviction or by a failed fetch.
//   - Eviction walks the recency list from the least recently touched end and
//     skips in-flight entries and the pinned entry (the identifier most
//     recently handed to a caller).
//   - All map/list mutations happen under mu. The fetch goroutine takes mu
//     only to settle its futures and run deferred eviction.

import (
	"container/list"
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/orneryd/conduit/pkg/segment"
)

// Fetcher is the batched network primitive the cache depends on. Find must
// accept any subset and count of identifiers and may return segments in any
// order. Identifiers absent from the result are reported as missing.
type Fetcher interface {
	Find(ctx context.Context, ids []string) ([]*segment.Segment, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, ids []string) ([]*segment.Segment, error)

// Find calls f.
func (f FetcherFunc) Find(ctx context.Context, ids []string) ([]*segment.Segment, error) {
	return f(ctx, ids)
}

// Config controls window size and capacity.
type Config struct {
	// ChunkSize is the number of positions prefetched per miss (default: 10).
	ChunkSize int
	// CacheFactor bounds the cache to CacheFactor*ChunkSize entries (default: 2).
	CacheFactor int
	// FetchTimeout bounds each batch fetch. Zero disables the timeout.
	FetchTimeout time.Duration
	// Logger receives one line per batch. Nil discards.
	Logger *log.Logger
}

// DefaultConfig returns a chunk size of 10, a cache of 20 entries and a 30s
// fetch timeout.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    10,
		CacheFactor:  2,
		FetchTimeout: 30 * time.Second,
	}
}

// CacheStats is a snapshot of cache counters.
type CacheStats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Batches   int64 `json:"batches"`
	Evictions int64 `json:"evictions"`
	Failures  int64 `json:"failures"`
	Entries   int   `json:"entries"`
	InFlight  int   `json:"in_flight"`
}

type cacheEntry struct {
	id     string
	future *Future
	elem   *list.Element
}

// Cache is the windowed, direction-aware segment cache.
//
// Thread-safe: Get, Replace and the query methods may be called concurrently.
type Cache struct {
	index     *Index
	fetcher   Fetcher
	chunkSize int
	capacity  int
	timeout   time.Duration
	logger    *log.Logger

	mu      sync.Mutex
	entries map[string]*cacheEntry
	recency *list.List // front = most recently touched
	pinned  string
	stats   CacheStats
}

// NewCache creates a cache over index that loads segments through fetcher.
// Non-positive ChunkSize or CacheFactor fall back to the defaults.
func NewCache(index *Index, fetcher Fetcher, cfg Config) *Cache {
	def := DefaultConfig()
	if cfg.ChunkSize < 1 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.CacheFactor < 1 {
		cfg.CacheFactor = def.CacheFactor
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Cache{
		index:     index,
		fetcher:   fetcher,
		chunkSize: cfg.ChunkSize,
		capacity:  cfg.ChunkSize * cfg.CacheFactor,
		timeout:   cfg.FetchTimeout,
		logger:    logger,
		entries:   make(map[string]*cacheEntry, cfg.ChunkSize*cfg.CacheFactor),
		recency:   list.New(),
	}
}

// Index returns the resolver the cache was built on.
func (c *Cache) Index() *Index { return c.index }

// Get returns the future for the segment at position i.
//
// A hit only refreshes recency. On a miss the window of ChunkSize positions
// starting at i in direction dir is computed, a placeholder future is
// installed for every identifier in it that is not cached yet, and a single
// batch fetch is started for those identifiers. Calls made before the fetch
// resolves receive the same future.
func (c *Cache) Get(i int, dir Direction) (*Future, error) {
	id, err := c.index.Resolve(i)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.pinned = id
	if e, ok := c.entries[id]; ok {
		c.stats.Hits++
		c.recency.MoveToFront(e.elem)
		return e.future, nil
	}
	c.stats.Misses++

	lo, hi := c.index.Window(i, dir, c.chunkSize)
	ids := make([]string, 0, hi-lo)
	batch := make([]*Future, 0, hi-lo)
	for p := lo; p < hi; p++ {
		pid := c.index.ids[p]
		if _, ok := c.entries[pid]; ok {
			continue
		}
		f := newFuture(pid)
		c.insertLocked(pid, f)
		ids = append(ids, pid)
		batch = append(batch, f)
	}

	target := c.entries[id]
	c.recency.MoveToFront(target.elem)
	c.evictLocked()

	c.stats.Batches++
	c.logger.Printf("[NAV] fetching %d segments for position %d (%s, window [%d, %d))", len(ids), i, dir, lo, hi)
	go c.runBatch(ids, batch)

	return target.future, nil
}

// Fetch is Get followed by Wait.
func (c *Cache) Fetch(ctx context.Context, i int, dir Direction) (*segment.Segment, error) {
	f, err := c.Get(i, dir)
	if err != nil {
		return nil, err
	}
	return f.Wait(ctx)
}

// Replace swaps the cached value for seg.ID with seg, typically after the
// annotation on it was persisted. It returns false when the identifier is not
// cached or its fetch has not settled yet. Futures already handed out keep
// their original value.
func (c *Cache) Replace(seg *segment.Segment) bool {
	if seg == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[seg.ID]
	if !ok || !e.future.Settled() {
		return false
	}
	e.future = resolvedFuture(seg)
	return true
}

// Contains reports whether id has an entry, pending or settled.
func (c *Cache) Contains(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[id]
	return ok
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Cap returns the entry bound.
func (c *Cache) Cap() int { return c.capacity }

// ChunkSize returns the window size.
func (c *Cache) ChunkSize() int { return c.chunkSize }

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = len(c.entries)
	for _, e := range c.entries {
		if !e.future.Settled() {
			s.InFlight++
		}
	}
	return s
}

func (c *Cache) runBatch(ids []string, batch []*Future) {
	ctx := context.Background()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	segs, err := c.fetcher.Find(ctx, ids)

	byID := make(map[string]*segment.Segment, len(segs))
	for _, s := range segs {
		if s != nil {
			byID[s.ID] = s
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.stats.Failures++
		c.logger.Printf("[NAV] batch of %d segments failed: %v", len(ids), err)
	}
	for _, f := range batch {
		switch seg := byID[f.id]; {
		case err != nil:
			c.dropLocked(f)
			f.settle(nil, fmt.Errorf("%w: %s: %w", ErrFetchFailed, f.id, err))
		case seg == nil:
			c.dropLocked(f)
			f.settle(nil, fmt.Errorf("%w: %s", ErrMissingIdentifier, f.id))
		default:
			f.settle(seg, nil)
		}
	}
	// Eviction may have been deferred while every candidate was in flight.
	c.evictLocked()
}

func (c *Cache) insertLocked(id string, f *Future) {
	e := &cacheEntry{id: id, future: f}
	e.elem = c.recency.PushFront(e)
	c.entries[id] = e
}

func (c *Cache) removeLocked(e *cacheEntry) {
	c.recency.Remove(e.elem)
	delete(c.entries, e.id)
}

// dropLocked removes the entry for f if it still owns it.
func (c *Cache) dropLocked(f *Future) {
	if e, ok := c.entries[f.id]; ok && e.future == f {
		c.removeLocked(e)
	}
}

func (c *Cache) evictLocked() {
	el := c.recency.Back()
	for el != nil && len(c.entries) > c.capacity {
		prev := el.Prev()
		e := el.Value.(*cacheEntry)
		if e.id != c.pinned && e.future.Settled() {
			c.removeLocked(e)
			c.stats.Evictions++
		}
		el = prev
	}
}
