package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/conduit/pkg/config"
	"github.com/orneryd/conduit/pkg/storage"
)

// execute runs the CLI with args and returns its output. A missing config
// file keeps the host's config files out of the test.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	missing := filepath.Join(t.TempDir(), "none.yaml")
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--config", missing))
	err := root.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Conduit v"+version)
}

func TestLoadConfig_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("CONDUIT_PORT", "9001")
	t.Setenv("CONDUIT_ADDRESS", "0.0.0.0")
	t.Setenv("CONDUIT_CHUNK_SIZE", "7")

	root := newRootCmd()
	serveCmd, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)
	require.NoError(t, serveCmd.ParseFlags([]string{"--port", "9100", "--no-audit", "--config", filepath.Join(t.TempDir(), "none.yaml")}))

	cfg, err := loadConfig(serveCmd)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port, "flag beats env")
	assert.Equal(t, "0.0.0.0", cfg.Server.Address, "env beats default")
	assert.False(t, cfg.Server.AuditEnabled)
	assert.Equal(t, 7, cfg.Navigator.ChunkSize)
}

func TestLoadConfig_Invalid(t *testing.T) {
	root := newRootCmd()
	annotateCmd, _, err := root.Find([]string{"annotate"})
	require.NoError(t, err)
	require.NoError(t, annotateCmd.ParseFlags([]string{"--chunk-size", "0", "--config", filepath.Join(t.TempDir(), "none.yaml")}))

	_, err = loadConfig(annotateCmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid chunk size")
}

func TestInitCommand(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")

	out, err := execute(t, "init", "--data-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Database initialized successfully")

	configPath := filepath.Join(dir, "conduit.yaml")
	cfg, err := config.LoadFromFile(configPath)
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.Database.DataDir)
	assert.Equal(t, 10, cfg.Navigator.ChunkSize)
	assert.NoError(t, cfg.Validate())

	_, err = execute(t, "init", "--data-dir", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config already exists")
}

func TestSeedAndImportCommands(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, "seed", "--data-dir", dir, "--segments", "6", "--seed", "11", "--campaign", "warmup")
	require.NoError(t, err)
	assert.Contains(t, out, "Stored 6 segments and 3 annotators")

	csvPath := filepath.Join(t.TempDir(), "campaigns.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("User Name,Campaign,Segment Id\nbbar,review,a\nbbar,review,b\n"), 0o644))

	out, err = execute(t, "import-campaigns", csvPath, "--data-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "2 rows, 1 campaigns")

	engine, err := storage.NewBadgerEngine(dir)
	require.NoError(t, err)
	defer engine.Close()

	count, err := engine.CountSegments()
	require.NoError(t, err)
	assert.Equal(t, int64(6), count)

	bbar, err := engine.GetAnnotator("bbar")
	require.NoError(t, err)
	assert.Equal(t, "review", bbar.CurrentCampaign.Name)
	assert.Equal(t, []string{"a", "b"}, bbar.CurrentCampaign.Segments)
	require.Len(t, bbar.PreviousCampaigns, 1)
	assert.Equal(t, "warmup", bbar.PreviousCampaigns[0].Name)
}

func TestImportCommand_MissingFile(t *testing.T) {
	_, err := execute(t, "import-campaigns", filepath.Join(t.TempDir(), "absent.csv"), "--in-memory")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opening")
}

func TestBackupRestoreAndPruneCommands(t *testing.T) {
	source := t.TempDir()
	backup := filepath.Join(t.TempDir(), "conduit.bak")

	_, err := execute(t, "seed", "--data-dir", source, "--segments", "4", "--seed", "5")
	require.NoError(t, err)

	out, err := execute(t, "backup", backup, "--data-dir", source)
	require.NoError(t, err)
	assert.Contains(t, out, "Backed up 4 segments and 3 annotators")

	target := t.TempDir()
	out, err = execute(t, "restore", backup, "--data-dir", target)
	require.NoError(t, err)
	assert.Contains(t, out, "4 segments, 3 annotators")

	out, err = execute(t, "prune-audit", "--data-dir", target, "--older-than", "1h")
	require.NoError(t, err)
	assert.Contains(t, out, "Pruned 0 audit events")
}

func TestAuditCommand(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, "audit", "--data-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "No audit events recorded")

	engine, err := storage.NewBadgerEngine(dir)
	require.NoError(t, err)
	now := time.Now().UTC()
	require.NoError(t, engine.AddAuditEvent(&storage.AuditEvent{Timestamp: now.Add(-2 * time.Minute), Route: "get_classes", URL: "/api/classes"}))
	require.NoError(t, engine.AddAuditEvent(&storage.AuditEvent{Timestamp: now.Add(-time.Minute), Route: "list_annotators", URL: "/api/annotators"}))
	require.NoError(t, engine.Close())

	out, err = execute(t, "audit", "--data-dir", dir, "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "/api/annotators")
	assert.NotContains(t, out, "/api/classes")

	out, err = execute(t, "prune-audit", "--data-dir", dir, "--older-than", "0s")
	require.NoError(t, err)
	assert.Contains(t, out, "Pruned 2 audit events")
}
