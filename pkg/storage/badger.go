// Package storage provides the persistent store behind the Conduit REST API.
//
// BadgerEngine keeps segments, annotators and audit events in BadgerDB. Keys
// are single-byte prefixes followed by the record identifier, so a prefix scan
// over segments yields them in ascending identifier order, which is the order
// the paging endpoints expose.
//
// Example:
//
//	engine, err := storage.NewBadgerEngine("/path/to/data")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer engine.Close()
//
//	err = engine.PutSegment(&segment.Segment{ID: "seg-1", Signals: signals})
package storage

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/orneryd/conduit/pkg/segment"
)

// Key prefixes for BadgerDB storage organization
const (
	prefixSegment   = byte(0x01) // segment:id -> Segment
	prefixAnnotator = byte(0x02) // annotator:username -> Annotator
	prefixAudit     = byte(0x03) // audit:timestamp:uuid -> AuditEvent
)

// DefaultSegmentCacheSize is the number of decoded segments kept hot.
const DefaultSegmentCacheSize = 1024

var (
	ErrNotFound      = errors.New("not found")
	ErrStorageClosed = errors.New("storage closed")
	ErrInvalidID     = errors.New("invalid id")
	ErrInvalidData   = errors.New("invalid data")
)

// BadgerEngine provides persistent storage using BadgerDB.
//
// Key Structure:
//   - Segments: 0x01 + segmentID -> gob(Segment)
//   - Annotators: 0x02 + username -> gob(Annotator)
//   - Audit events: 0x03 + big-endian UnixNano + uuid -> gob(AuditEvent)
type BadgerEngine struct {
	db       *badger.DB
	mu       sync.RWMutex
	closed   bool
	inMemory bool

	// Decoded segments, keyed by id. Values are private copies.
	segmentCache *lru.Cache[string, *segment.Segment]
	cacheHits    atomic.Int64
	cacheMisses  atomic.Int64

	segmentCount   atomic.Int64
	annotatorCount atomic.Int64
	auditCount     atomic.Int64
}

// BadgerOptions configures the BadgerDB engine.
type BadgerOptions struct {
	// DataDir is the directory for storing data files.
	// Required unless InMemory is set.
	DataDir string

	// InMemory runs BadgerDB in memory-only mode.
	// Useful for testing. Data is not persisted.
	InMemory bool

	// SyncWrites forces fsync after each write.
	SyncWrites bool

	// Logger for BadgerDB internal logging. If nil, BadgerDB stays quiet.
	Logger badger.Logger

	// LowMemory enables memory-constrained settings.
	LowMemory bool

	// SegmentCacheSize bounds the hot segment cache (default: 1024).
	SegmentCacheSize int
}

// NewBadgerEngine creates a persistent engine in dataDir with default settings.
func NewBadgerEngine(dataDir string) (*BadgerEngine, error) {
	return NewBadgerEngineWithOptions(BadgerOptions{
		DataDir: dataDir,
	})
}

// NewBadgerEngineInMemory creates an engine that keeps everything in RAM.
// Intended for tests.
func NewBadgerEngineInMemory() (*BadgerEngine, error) {
	return NewBadgerEngineWithOptions(BadgerOptions{
		InMemory: true,
	})
}

// NewBadgerEngineWithOptions creates an engine with explicit options.
func NewBadgerEngineWithOptions(opts BadgerOptions) (*BadgerEngine, error) {
	if !opts.InMemory && opts.DataDir == "" {
		return nil, fmt.Errorf("%w: data directory is required", ErrInvalidData)
	}

	badgerOpts := badger.DefaultOptions(opts.DataDir)
	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	if opts.SyncWrites {
		badgerOpts = badgerOpts.WithSyncWrites(true)
	}
	// A nil logger silences badger.
	badgerOpts = badgerOpts.WithLogger(opts.Logger)

	if opts.LowMemory {
		badgerOpts = badgerOpts.
			WithMemTableSize(8 << 20).
			WithValueLogFileSize(32 << 20).
			WithNumMemtables(1).
			WithNumLevelZeroTables(1).
			WithNumLevelZeroTablesStall(2).
			WithBlockCacheSize(8 << 20).
			WithIndexCacheSize(4 << 20)
	} else {
		badgerOpts = badgerOpts.
			WithMemTableSize(64 << 20).
			WithNumMemtables(3).
			WithValueThreshold(64 << 10). // segments carry several KB of samples
			WithBlockCacheSize(64 << 20).
			WithIndexCacheSize(32 << 20)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	size := opts.SegmentCacheSize
	if size <= 0 {
		size = DefaultSegmentCacheSize
	}
	cache, err := lru.New[string, *segment.Segment](size)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create segment cache: %w", err)
	}

	engine := &BadgerEngine{
		db:           db,
		inMemory:     opts.InMemory,
		segmentCache: cache,
	}

	if err := engine.initializeCounts(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize counts: %w", err)
	}

	return engine, nil
}

// IsInMemory returns true if the engine is running in memory-only mode.
func (b *BadgerEngine) IsInMemory() bool {
	return b.inMemory
}

// Close closes the underlying database. It is safe to call more than once.
func (b *BadgerEngine) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	b.segmentCache.Purge()
	return b.db.Close()
}

// Stats is a snapshot of engine counters.
type Stats struct {
	Segments    int64 `json:"segments"`
	Annotators  int64 `json:"annotators"`
	AuditEvents int64 `json:"audit_events"`
	CacheHits   int64 `json:"cache_hits"`
	CacheMisses int64 `json:"cache_misses"`
	CacheLen    int   `json:"cache_len"`
}

// Stats returns record counts and hot cache counters.
func (b *BadgerEngine) Stats() Stats {
	return Stats{
		Segments:    b.segmentCount.Load(),
		Annotators:  b.annotatorCount.Load(),
		AuditEvents: b.auditCount.Load(),
		CacheHits:   b.cacheHits.Load(),
		CacheMisses: b.cacheMisses.Load(),
		CacheLen:    b.segmentCache.Len(),
	}
}

// initializeCounts scans the key space once so Stats stays O(1).
func (b *BadgerEngine) initializeCounts() error {
	var segments, annotators, audits int64
	err := b.db.View(func(txn *badger.Txn) error {
		segments = countPrefix(txn, []byte{prefixSegment})
		annotators = countPrefix(txn, []byte{prefixAnnotator})
		audits = countPrefix(txn, []byte{prefixAudit})
		return nil
	})
	if err != nil {
		return err
	}
	b.segmentCount.Store(segments)
	b.annotatorCount.Store(annotators)
	b.auditCount.Store(audits)
	return nil
}

// ============================================================================
// Transaction and iterator helpers
// ============================================================================

func (b *BadgerEngine) ensureOpen() error {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrStorageClosed
	}
	return nil
}

func (b *BadgerEngine) withView(fn func(txn *badger.Txn) error) error {
	if err := b.ensureOpen(); err != nil {
		return err
	}
	return b.db.View(fn)
}

func (b *BadgerEngine) withUpdate(fn func(txn *badger.Txn) error) error {
	if err := b.ensureOpen(); err != nil {
		return err
	}
	return b.db.Update(fn)
}

func iterOptsKeyOnly(prefix []byte) badger.IteratorOptions {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	return opts
}

func iterOptsValues(prefix []byte, prefetchSize int, reverse bool) badger.IteratorOptions {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = true
	if prefetchSize > 0 {
		opts.PrefetchSize = prefetchSize
	}
	opts.Prefix = prefix
	opts.Reverse = reverse
	return opts
}

func countPrefix(txn *badger.Txn, prefix []byte) int64 {
	it := txn.NewIterator(iterOptsKeyOnly(prefix))
	defer it.Close()
	var n int64
	for it.Rewind(); it.Valid(); it.Next() {
		n++
	}
	return n
}

// ============================================================================
// Keys and serialization
// ============================================================================

func segmentKey(id string) []byte {
	return append([]byte{prefixSegment}, id...)
}

func annotatorKey(username string) []byte {
	return append([]byte{prefixAnnotator}, username...)
}

func idFromKey(key []byte) string {
	return string(key[1:])
}

// encode serializes v using gob (keeps float64 samples exact).
func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func getItem(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return decode(val, v)
	})
}

func exists(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}
