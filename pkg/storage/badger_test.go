package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/conduit/pkg/segment"
)

// ============================================================================
// Test Helpers
// ============================================================================

// createTestBadgerEngine creates an in-memory BadgerEngine for testing.
func createTestBadgerEngine(t *testing.T) *BadgerEngine {
	t.Helper()
	engine, err := NewBadgerEngineInMemory()
	require.NoError(t, err)
	t.Cleanup(func() {
		engine.Close()
	})
	return engine
}

func testSegment(id string) *segment.Segment {
	return &segment.Segment{
		ID:      id,
		CaseID:  "case-" + id,
		StopIdx: 2400,
		Signals: map[string][]float64{
			"I":  {0.1, 0.2, 0.3},
			"II": {-0.1, 0, 0.1},
		},
	}
}

func seedSegments(t *testing.T, engine *BadgerEngine, n int) []string {
	t.Helper()
	ids := make([]string, n)
	segs := make([]*segment.Segment, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("seg-%03d", i)
		segs[i] = testSegment(ids[i])
	}
	require.NoError(t, engine.PutSegments(segs))
	return ids
}

func segmentIDs(segs []*segment.Segment) []string {
	out := make([]string, len(segs))
	for i, s := range segs {
		out[i] = s.ID
	}
	return out
}

// ============================================================================
// Engine lifecycle
// ============================================================================

func TestBadgerEngine_InMemory(t *testing.T) {
	engine := createTestBadgerEngine(t)
	assert.True(t, engine.IsInMemory())

	count, err := engine.CountSegments()
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestBadgerEngine_RequiresDataDir(t *testing.T) {
	_, err := NewBadgerEngineWithOptions(BadgerOptions{})
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestBadgerEngine_Persistence(t *testing.T) {
	dir := t.TempDir()

	engine, err := NewBadgerEngine(dir)
	require.NoError(t, err)
	require.NoError(t, engine.PutSegment(testSegment("seg-1")))
	require.NoError(t, engine.PutAnnotator(&segment.Annotator{Username: "bfoo", Name: "Brian Foo"}))
	require.NoError(t, engine.AddAuditEvent(&AuditEvent{Route: "get_segment"}))
	require.NoError(t, engine.Close())

	engine, err = NewBadgerEngine(dir)
	require.NoError(t, err)
	defer engine.Close()

	seg, err := engine.GetSegment("seg-1")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, seg.Signals["I"])

	st := engine.Stats()
	assert.Equal(t, int64(1), st.Segments)
	assert.Equal(t, int64(1), st.Annotators)
	assert.Equal(t, int64(1), st.AuditEvents)
}

func TestBadgerEngine_Closed(t *testing.T) {
	engine, err := NewBadgerEngineInMemory()
	require.NoError(t, err)
	require.NoError(t, engine.Close())
	require.NoError(t, engine.Close())

	_, err = engine.GetSegment("x")
	assert.ErrorIs(t, err, ErrStorageClosed)
	assert.ErrorIs(t, engine.PutSegment(testSegment("x")), ErrStorageClosed)
	_, err = engine.ListSegments("", "", 10)
	assert.ErrorIs(t, err, ErrStorageClosed)
	_, err = engine.ListAnnotators()
	assert.ErrorIs(t, err, ErrStorageClosed)
}

// ============================================================================
// Segments
// ============================================================================

func TestBadgerEngine_PutGetSegment(t *testing.T) {
	engine := createTestBadgerEngine(t)

	require.NoError(t, engine.PutSegment(testSegment("seg-1")))
	require.NoError(t, engine.PutSegment(testSegment("seg-1")))

	seg, err := engine.GetSegment("seg-1")
	require.NoError(t, err)
	assert.Equal(t, "case-seg-1", seg.CaseID)
	assert.Equal(t, 2400, seg.StopIdx)

	count, err := engine.CountSegments()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "upsert must not double count")

	_, err = engine.GetSegment("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = engine.GetSegment("")
	assert.ErrorIs(t, err, ErrInvalidID)

	assert.ErrorIs(t, engine.PutSegment(nil), ErrInvalidData)
	assert.ErrorIs(t, engine.PutSegment(&segment.Segment{}), ErrInvalidID)
}

func TestBadgerEngine_CachedSegmentsAreCopies(t *testing.T) {
	engine := createTestBadgerEngine(t)
	require.NoError(t, engine.PutSegment(testSegment("seg-1")))

	first, err := engine.GetSegment("seg-1")
	require.NoError(t, err)
	first.Signals["I"][0] = 99
	first.CaseID = "mutated"

	second, err := engine.GetSegment("seg-1")
	require.NoError(t, err)
	assert.Equal(t, 0.1, second.Signals["I"][0])
	assert.Equal(t, "case-seg-1", second.CaseID)

	st := engine.Stats()
	assert.Greater(t, st.CacheHits, int64(0))
}

func TestBadgerEngine_PutSegmentsBulk(t *testing.T) {
	engine := createTestBadgerEngine(t)
	ids := seedSegments(t, engine, 50)

	count, err := engine.CountSegments()
	require.NoError(t, err)
	assert.Equal(t, int64(50), count)

	// Re-putting the same ids keeps the count.
	seedSegments(t, engine, 50)
	count, err = engine.CountSegments()
	require.NoError(t, err)
	assert.Equal(t, int64(50), count)

	seg, err := engine.GetSegment(ids[49])
	require.NoError(t, err)
	assert.Equal(t, ids[49], seg.ID)

	assert.ErrorIs(t, engine.PutSegments([]*segment.Segment{nil}), ErrInvalidData)
}

func TestBadgerEngine_FindSegments(t *testing.T) {
	engine := createTestBadgerEngine(t)
	ids := seedSegments(t, engine, 10)

	// Warm one entry so the result mixes cache hits and reads.
	_, err := engine.GetSegment(ids[4])
	require.NoError(t, err)

	got, err := engine.FindSegments([]string{ids[7], "missing", ids[4], ids[1], ids[7]})
	require.NoError(t, err)
	assert.Equal(t, []string{ids[7], ids[4], ids[1]}, segmentIDs(got))

	got, err = engine.FindSegments(nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBadgerEngine_ListSegments(t *testing.T) {
	engine := createTestBadgerEngine(t)
	ids := seedSegments(t, engine, 25)

	tests := []struct {
		name   string
		after  string
		before string
		limit  int
		want   []string
	}{
		{"from start", "", "", 5, ids[0:5]},
		{"after", ids[9], "", 5, ids[10:15]},
		{"after near end", ids[22], "", 5, ids[23:25]},
		{"after last", ids[24], "", 5, nil},
		{"before", "", ids[10], 5, ids[5:10]},
		{"before near start", "", ids[2], 5, ids[0:2]},
		{"before first", "", ids[0], 5, nil},
		{"after unknown id", "seg-009x", "", 3, ids[10:13]},
		{"limit beyond total", "", "", 100, ids},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := engine.ListSegments(tt.after, tt.before, tt.limit)
			require.NoError(t, err)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, segmentIDs(got))
		})
	}

	_, err := engine.ListSegments(ids[1], ids[5], 5)
	assert.ErrorIs(t, err, ErrInvalidData)
	_, err = engine.ListSegments("", "", 0)
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestBadgerEngine_SegmentPosition(t *testing.T) {
	engine := createTestBadgerEngine(t)
	ids := seedSegments(t, engine, 12)

	pos, err := engine.SegmentPosition(ids[0])
	require.NoError(t, err)
	assert.Equal(t, int64(1), pos)

	pos, err = engine.SegmentPosition(ids[11])
	require.NoError(t, err)
	assert.Equal(t, int64(12), pos)

	_, err = engine.SegmentPosition("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBadgerEngine_UpdateAnnotation(t *testing.T) {
	engine := createTestBadgerEngine(t)
	require.NoError(t, engine.PutSegment(testSegment("seg-1")))

	updated, err := engine.UpdateAnnotation("seg-1", "bfoo", segment.Annotation{Label: "AFIB"})
	require.NoError(t, err)
	a, ok := updated.Annotation("bfoo")
	require.True(t, ok)
	assert.Equal(t, "AFIB", a.Label)
	assert.Equal(t, segment.DefaultConfidence, a.Confidence)

	_, err = engine.UpdateAnnotation("seg-1", "bbar", segment.Annotation{Label: "SR", Confidence: 0.5})
	require.NoError(t, err)

	seg, err := engine.GetSegment("seg-1")
	require.NoError(t, err)
	assert.Len(t, seg.Annotations, 2)

	_, err = engine.UpdateAnnotation("seg-1", "", segment.Annotation{Label: "SR"})
	assert.ErrorIs(t, err, ErrInvalidData)
	_, err = engine.UpdateAnnotation("seg-1", "bfoo", segment.Annotation{})
	assert.ErrorIs(t, err, ErrInvalidData)
	assert.ErrorIs(t, err, segment.ErrMissingLabel)
	_, err = engine.UpdateAnnotation("seg-1", "bfoo", segment.Annotation{Label: segment.LabelAbstain})
	assert.ErrorIs(t, err, segment.ErrMissingComment)
	_, err = engine.UpdateAnnotation("missing", "bfoo", segment.Annotation{Label: "SR"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBadgerEngine_ConcurrentAnnotations(t *testing.T) {
	engine := createTestBadgerEngine(t)
	require.NoError(t, engine.PutSegment(testSegment("seg-1")))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("user-%d", i)
			// Conflicting transactions are retried until they land.
			for {
				_, err := engine.UpdateAnnotation("seg-1", user, segment.Annotation{Label: "SR"})
				if err == nil {
					return
				}
			}
		}(i)
	}
	wg.Wait()

	seg, err := engine.GetSegment("seg-1")
	require.NoError(t, err)
	assert.Len(t, seg.Annotations, 10)
}

// ============================================================================
// Annotators
// ============================================================================

func TestBadgerEngine_Annotators(t *testing.T) {
	engine := createTestBadgerEngine(t)

	bfoo := &segment.Annotator{Name: "Brian Foo", Username: "bfoo", Designation: "MD"}
	require.NoError(t, engine.PutAnnotator(bfoo))
	assert.NotEmpty(t, bfoo.ID)
	require.NoError(t, engine.PutAnnotator(&segment.Annotator{Name: "Bob Bar", Username: "bbar", Designation: "Student"}))

	got, err := engine.GetAnnotator("bfoo")
	require.NoError(t, err)
	assert.Equal(t, "Brian Foo", got.Name)
	assert.Equal(t, bfoo.ID, got.ID)

	all, err := engine.ListAnnotators()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "bbar", all[0].Username)
	assert.Equal(t, "bfoo", all[1].Username)

	_, err = engine.GetAnnotator("nobody")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, engine.PutAnnotator(&segment.Annotator{}), ErrInvalidID)
}

func TestBadgerEngine_Campaigns(t *testing.T) {
	engine := createTestBadgerEngine(t)
	require.NoError(t, engine.PutAnnotator(&segment.Annotator{Username: "bfoo"}))

	require.NoError(t, engine.NewCampaign("bfoo", "first", "seg-1"))
	require.NoError(t, engine.AppendCampaignSegment("bfoo", "seg-2"))
	require.NoError(t, engine.NewCampaign("bfoo", "second", "seg-3"))
	require.NoError(t, engine.AppendCampaignSegment("bfoo", "seg-4"))

	a, err := engine.GetAnnotator("bfoo")
	require.NoError(t, err)
	require.NotNil(t, a.CurrentCampaign)
	assert.Equal(t, "second", a.CurrentCampaign.Name)
	assert.Equal(t, []string{"seg-3", "seg-4"}, a.CurrentCampaign.Segments)
	require.Len(t, a.PreviousCampaigns, 1)
	assert.Equal(t, []string{"seg-1", "seg-2"}, a.PreviousCampaigns[0].Segments)

	ok, err := engine.SetLastAnnotated("bfoo", "seg-4")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = engine.SetLastAnnotated("bfoo", "seg-1")
	require.NoError(t, err)
	assert.False(t, ok, "segment outside the current campaign")

	a, err = engine.GetAnnotator("bfoo")
	require.NoError(t, err)
	assert.Equal(t, "seg-4", a.CurrentCampaign.LastAnnotatedSegment)

	assert.ErrorIs(t, engine.NewCampaign("nobody", "x", "seg-1"), ErrNotFound)
}

func TestBadgerEngine_AppendWithoutCampaign(t *testing.T) {
	engine := createTestBadgerEngine(t)
	require.NoError(t, engine.PutAnnotator(&segment.Annotator{Username: "bbar"}))

	err := engine.AppendCampaignSegment("bbar", "seg-1")
	assert.ErrorIs(t, err, ErrInvalidData)
}

// ============================================================================
// Audit events
// ============================================================================

func TestBadgerEngine_AuditEvents(t *testing.T) {
	engine := createTestBadgerEngine(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, engine.AddAuditEvent(&AuditEvent{
			Timestamp:   base.Add(time.Duration(i) * time.Second),
			Route:       fmt.Sprintf("route-%d", i),
			URL:         "/api/segments",
			QueryParams: map[string][]string{"limit": {"10"}},
			Body:        json.RawMessage(`{"label":"SR"}`),
		}))
	}

	events, err := engine.ListAuditEvents(3)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "route-4", events[0].Route)
	assert.Equal(t, "route-2", events[2].Route)
	assert.NotEmpty(t, events[0].ID)
	assert.JSONEq(t, `{"label":"SR"}`, string(events[0].Body))
	assert.Equal(t, []string{"10"}, events[0].QueryParams["limit"])

	all, err := engine.ListAuditEvents(0)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	ev := &AuditEvent{Route: "now"}
	require.NoError(t, engine.AddAuditEvent(ev))
	assert.False(t, ev.Timestamp.IsZero())
	assert.ErrorIs(t, engine.AddAuditEvent(nil), ErrInvalidData)
}

func TestStdLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	l := NewStdLogger(log.New(&buf, "", 0), "warn")

	l.Debugf("compaction %d", 1)
	l.Infof("opened %s\n", "db")
	l.Warningf("slow write %dms", 12)
	l.Errorf("value log gc: %v", "boom")

	assert.Equal(t, "[STORAGE] WARN slow write 12ms\n[STORAGE] ERROR value log gc: boom\n", buf.String())

	buf.Reset()
	NewStdLogger(log.New(&buf, "", 0), "").Infof("opened %s\n", "db")
	assert.Equal(t, "[STORAGE] INFO opened db\n", buf.String())

	engine, err := NewBadgerEngineWithOptions(BadgerOptions{InMemory: true, Logger: NewStdLogger(log.New(&buf, "", 0), "ERROR")})
	require.NoError(t, err)
	require.NoError(t, engine.Close())
}
