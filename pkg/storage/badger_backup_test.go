package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/conduit/pkg/segment"
)

func TestBadgerEngine_Backup(t *testing.T) {
	t.Run("backup empty database", func(t *testing.T) {
		backupPath := filepath.Join(t.TempDir(), "backup.bin")

		engine, err := NewBadgerEngine(t.TempDir())
		require.NoError(t, err)
		defer engine.Close()

		require.NoError(t, engine.Backup(backupPath))

		_, err = os.Stat(backupPath)
		require.NoError(t, err)
	})

	t.Run("backup and restore round trip", func(t *testing.T) {
		backupPath := filepath.Join(t.TempDir(), "backup.bin")

		source, err := NewBadgerEngine(t.TempDir())
		require.NoError(t, err)
		defer source.Close()

		for i := 0; i < 20; i++ {
			require.NoError(t, source.PutSegment(testSegment(fmt.Sprintf("seg-%03d", i))))
		}
		require.NoError(t, source.PutAnnotator(&segment.Annotator{Username: "bfoo", Designation: "MD"}))
		require.NoError(t, source.NewCampaign("bfoo", "c1", "seg-004"))
		_, err = source.UpdateAnnotation("seg-004", "bfoo", segment.Annotation{Label: "AFIB"})
		require.NoError(t, err)
		require.NoError(t, source.AddAuditEvent(&AuditEvent{Route: "/api/segments"}))

		require.NoError(t, source.Backup(backupPath))

		target, err := NewBadgerEngine(t.TempDir())
		require.NoError(t, err)
		defer target.Close()

		require.NoError(t, target.Restore(backupPath))

		stats := target.Stats()
		assert.Equal(t, int64(20), stats.Segments)
		assert.Equal(t, int64(1), stats.Annotators)
		assert.Equal(t, int64(1), stats.AuditEvents)

		seg, err := target.GetSegment("seg-004")
		require.NoError(t, err)
		a, ok := seg.Annotation("bfoo")
		require.True(t, ok)
		assert.Equal(t, "AFIB", a.Label)

		annotator, err := target.GetAnnotator("bfoo")
		require.NoError(t, err)
		assert.Equal(t, []string{"seg-004"}, annotator.CurrentCampaign.Segments)
	})

	t.Run("closed engine", func(t *testing.T) {
		engine, err := NewBadgerEngine(t.TempDir())
		require.NoError(t, err)
		require.NoError(t, engine.Close())

		path := filepath.Join(t.TempDir(), "backup.bin")
		assert.ErrorIs(t, engine.Backup(path), ErrStorageClosed)
		assert.ErrorIs(t, engine.Restore(path), ErrStorageClosed)
	})

	t.Run("restore missing file", func(t *testing.T) {
		engine := createTestBadgerEngine(t)
		err := engine.Restore(filepath.Join(t.TempDir(), "absent.bin"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to open backup file")
	})
}

func TestBadgerEngine_PruneAuditEvents(t *testing.T) {
	engine := createTestBadgerEngine(t)
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 6; i++ {
		require.NoError(t, engine.AddAuditEvent(&AuditEvent{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Route:     fmt.Sprintf("route-%d", i),
		}))
	}

	pruned, err := engine.PruneAuditEvents(base.Add(4 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(4), pruned)
	assert.Equal(t, int64(2), engine.Stats().AuditEvents)

	events, err := engine.ListAuditEvents(0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "route-5", events[0].Route)
	assert.Equal(t, "route-4", events[1].Route)

	pruned, err = engine.PruneAuditEvents(base)
	require.NoError(t, err)
	assert.Zero(t, pruned)
}
