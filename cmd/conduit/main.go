// Package main provides the Conduit CLI entry point.
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/orneryd/conduit/pkg/config"
	"github.com/orneryd/conduit/pkg/seed"
	"github.com/orneryd/conduit/pkg/server"
	"github.com/orneryd/conduit/pkg/storage"
)

var (
	version   = "0.1.0"
	commit    = "dev"
	buildTime = "unknown" // Set via ldflags: -X main.buildTime=$(date +%Y%m%d-%H%M%S)
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "conduit",
		Short: "Conduit - segment annotation server and client",
		Long: `Conduit serves signal segments to annotators and walks them through
their campaigns with windowed prefetching.

Features:
  • Badger-backed segment, annotator and audit storage
  • REST API with batched lookups and after/before paging
  • Terminal annotator with chunked prefetch and an LRU window cache
  • Campaign import from CSV`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", "", "Config file (default: search standard locations)")

	// Version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "Conduit v%s (%s) built %s\n", version, commit, buildTime)
		},
	})

	// Serve command
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start Conduit server",
		Long:  "Start the Conduit REST API over a badger database",
		RunE:  runServe,
	}
	serveCmd.Flags().String("address", "", "Bind address (127.0.0.1 for localhost only, 0.0.0.0 for all interfaces)")
	serveCmd.Flags().Int("port", 0, "HTTP API port")
	addDatabaseFlags(serveCmd)
	serveCmd.Flags().Bool("no-audit", false, "Do not record API requests as audit events")
	serveCmd.Flags().Bool("quiet", false, "Do not log each HTTP request")
	rootCmd.AddCommand(serveCmd)

	// Init command
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new Conduit data directory",
		RunE:  runInit,
	}
	initCmd.Flags().String("data-dir", "", "Data directory")
	rootCmd.AddCommand(initCmd)

	// Seed command
	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill the database with synthetic segments and sample annotators",
		RunE:  runSeed,
	}
	addDatabaseFlags(seedCmd)
	seedCmd.Flags().Int("segments", seed.DefaultOptions().Segments, "Number of segments to generate")
	seedCmd.Flags().Uint64("seed", 0, "Random seed (0 = time based)")
	seedCmd.Flags().String("campaign", seed.DefaultOptions().Campaign, "Campaign name given to the sample annotators")
	rootCmd.AddCommand(seedCmd)

	// Import campaigns command
	importCmd := &cobra.Command{
		Use:   "import-campaigns <file.csv>",
		Short: "Assign annotator campaigns from a CSV file",
		Long: `Assign annotator campaigns from a CSV file with the columns
"User Name", "Campaign" and "Segment Id". A row whose user differs from the
previous row starts a new campaign for that user; following rows append.`,
		Args: cobra.ExactArgs(1),
		RunE: runImportCampaigns,
	}
	addDatabaseFlags(importCmd)
	rootCmd.AddCommand(importCmd)

	// Backup / restore commands
	backupCmd := &cobra.Command{
		Use:   "backup <file>",
		Short: "Write a consistent snapshot of the database to a file",
		Args:  cobra.ExactArgs(1),
		RunE:  runBackup,
	}
	addDatabaseFlags(backupCmd)
	rootCmd.AddCommand(backupCmd)

	restoreCmd := &cobra.Command{
		Use:   "restore <file>",
		Short: "Load a snapshot written by backup into the database",
		Args:  cobra.ExactArgs(1),
		RunE:  runRestore,
	}
	addDatabaseFlags(restoreCmd)
	rootCmd.AddCommand(restoreCmd)

	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "List the most recent API audit events",
		RunE:  runAudit,
	}
	addDatabaseFlags(auditCmd)
	auditCmd.Flags().Int("limit", 20, "Maximum number of events to show (0 for all)")
	rootCmd.AddCommand(auditCmd)

	pruneCmd := &cobra.Command{
		Use:   "prune-audit",
		Short: "Delete audit events older than a retention window",
		RunE:  runPruneAudit,
	}
	addDatabaseFlags(pruneCmd)
	pruneCmd.Flags().Duration("older-than", 30*24*time.Hour, "Retention window")
	rootCmd.AddCommand(pruneCmd)

	// Annotate command
	annotateCmd := &cobra.Command{
		Use:   "annotate",
		Short: "Annotate segments from the terminal",
		Long: `Walk the annotator's current campaign from the terminal.

Commands:
  n                 next segment
  p                 previous segment
  g <position>      go to a position (1-based)
  l <LABEL> [text]  label the current segment and advance (ABSTAIN needs text)
  s                 show the current segment
  c                 list classes
  q                 quit

Students advance by labelling only.`,
		RunE: runAnnotate,
	}
	annotateCmd.Flags().String("url", "", "Conduit server URL")
	annotateCmd.Flags().StringP("user", "u", "", "Annotator username")
	annotateCmd.Flags().Int("chunk-size", 0, "Segments prefetched per miss")
	annotateCmd.Flags().Int("cache-factor", 0, "Cache holds cache-factor x chunk-size segments")
	annotateCmd.Flags().Bool("verbose", false, "Log prefetch batches")
	rootCmd.AddCommand(annotateCmd)

	return rootCmd
}

func addDatabaseFlags(cmd *cobra.Command) {
	cmd.Flags().String("data-dir", "", "Data directory")
	cmd.Flags().Bool("in-memory", false, "Run without persisting data")
	cmd.Flags().Bool("low-memory", false, "Use minimal RAM (for resource constrained environments)")
}

// loadConfig applies defaults, the config file, env vars and finally any
// flags the user set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = config.FindConfigFile()
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("address") {
		cfg.Server.Address, _ = flags.GetString("address")
	}
	if flags.Changed("port") {
		cfg.Server.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("no-audit") {
		noAudit, _ := flags.GetBool("no-audit")
		cfg.Server.AuditEnabled = !noAudit
	}
	if flags.Changed("quiet") {
		quiet, _ := flags.GetBool("quiet")
		cfg.Logging.LogRequests = !quiet
	}
	if flags.Changed("data-dir") {
		cfg.Database.DataDir, _ = flags.GetString("data-dir")
	}
	if flags.Changed("in-memory") {
		cfg.Database.InMemory, _ = flags.GetBool("in-memory")
	}
	if flags.Changed("low-memory") {
		cfg.Database.LowMemory, _ = flags.GetBool("low-memory")
	}
	if flags.Changed("url") {
		cfg.Client.BaseURL, _ = flags.GetString("url")
	}
	if flags.Changed("user") {
		cfg.Client.Annotator, _ = flags.GetString("user")
	}
	if flags.Changed("chunk-size") {
		cfg.Navigator.ChunkSize, _ = flags.GetInt("chunk-size")
	}
	if flags.Changed("cache-factor") {
		cfg.Navigator.CacheFactor, _ = flags.GetInt("cache-factor")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func openEngine(cfg *config.Config) (*storage.BadgerEngine, error) {
	opts := storage.BadgerOptions{
		DataDir:          cfg.Database.DataDir,
		InMemory:         cfg.Database.InMemory,
		SyncWrites:       cfg.Database.SyncWrites,
		LowMemory:        cfg.Database.LowMemory,
		SegmentCacheSize: cfg.Database.SegmentCacheSize,
	}
	if cfg.Logging.Level == "DEBUG" || cfg.Logging.Level == "WARN" || cfg.Logging.Level == "ERROR" {
		opts.Logger = storage.NewStdLogger(log.New(os.Stderr, "", log.LstdFlags), cfg.Logging.Level)
	}
	engine, err := storage.NewBadgerEngineWithOptions(opts)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return engine, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	fmt.Printf("🚀 Starting Conduit v%s\n", version)
	fmt.Printf("   %s\n", cfg)

	engine, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	stats := engine.Stats()
	fmt.Printf("📂 Database ready: %d segments, %d annotators\n", stats.Segments, stats.Annotators)

	serverConfig := server.DefaultConfig()
	serverConfig.Address = cfg.Server.Address
	serverConfig.Port = cfg.Server.Port
	serverConfig.ReadTimeout = cfg.Server.ReadTimeout
	serverConfig.WriteTimeout = cfg.Server.WriteTimeout
	serverConfig.IdleTimeout = cfg.Server.IdleTimeout
	serverConfig.MaxRequestSize = cfg.Server.MaxRequestSize
	serverConfig.EnableCORS = cfg.Server.EnableCORS
	serverConfig.CORSOrigins = cfg.Server.CORSOrigins
	serverConfig.AuditEnabled = cfg.Server.AuditEnabled
	serverConfig.AuditBufferSize = cfg.Server.AuditBufferSize
	serverConfig.LogRequests = cfg.Logging.LogRequests

	httpServer, err := server.New(engine, serverConfig)
	if err != nil {
		return fmt.Errorf("creating HTTP server: %w", err)
	}
	if err := httpServer.Start(); err != nil {
		return fmt.Errorf("starting HTTP server: %w", err)
	}

	displayAddr := cfg.Server.Address
	if displayAddr == "0.0.0.0" {
		displayAddr = "localhost"
	}
	_, port, _ := net.SplitHostPort(httpServer.Addr())
	fmt.Println()
	fmt.Println("✅ Conduit is ready!")
	fmt.Println()
	fmt.Println("Endpoints:")
	fmt.Printf("  • HTTP API:     http://%s:%s/api/segments\n", displayAddr, port)
	fmt.Printf("  • Health:       http://%s:%s/health\n", displayAddr, port)
	fmt.Printf("  • Metrics:      http://%s:%s/metrics\n", displayAddr, port)
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	// Block until shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\n🛑 Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Stop(ctx); err != nil {
		return fmt.Errorf("stopping HTTP server: %w", err)
	}

	fmt.Println("✅ Server stopped gracefully")
	return nil
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	dataDir := cfg.Database.DataDir
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "📂 Initializing Conduit database in %s\n", dataDir)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", dataDir, err)
	}

	configPath := filepath.Join(dataDir, "conduit.yaml")
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config already exists: %s", configPath)
	}
	if err := os.WriteFile(configPath, []byte(initialConfig(dataDir)), 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Fprintln(out, "✅ Database initialized successfully")
	fmt.Fprintf(out, "   Config: %s\n", configPath)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Next steps:")
	fmt.Fprintln(out, "  1. Load demo data:    conduit seed --config", configPath)
	fmt.Fprintln(out, "  2. Start the server:  conduit serve --config", configPath)
	fmt.Fprintln(out, "  3. Annotate:          conduit annotate -u bfoo")
	return nil
}

func initialConfig(dataDir string) string {
	return fmt.Sprintf(`# Conduit Configuration

server:
  address: 127.0.0.1
  port: 8000
  cors: true
  audit: true

database:
  data_dir: %q
  segment_cache_size: 1024

navigator:
  chunk_size: 10
  cache_factor: 2
  fetch_timeout: 30s

client:
  url: http://127.0.0.1:8000

logging:
  level: INFO
  log_requests: true
`, dataDir)
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	opts := seed.DefaultOptions()
	opts.Segments, _ = cmd.Flags().GetInt("segments")
	opts.Seed, _ = cmd.Flags().GetUint64("seed")
	opts.Campaign, _ = cmd.Flags().GetString("campaign")

	engine, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	fmt.Fprintf(out, "🌱 Generating %d segments...\n", opts.Segments)
	res, err := seed.Generate(engine, opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "✅ Stored %d segments and %d annotators in %v\n",
		len(res.Segments), len(res.Annotators), res.Duration.Round(time.Millisecond))
	for _, username := range res.Annotators {
		fmt.Fprintf(out, "   • %s (campaign %q)\n", username, opts.Campaign)
	}
	return nil
}

func runImportCampaigns(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("opening %s: %w", args[0], err)
	}
	defer f.Close()

	engine, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	fmt.Fprintf(out, "📥 Importing campaigns from %s\n", args[0])
	stats, err := seed.ImportCampaigns(engine, f)
	if err != nil {
		fmt.Fprintf(out, "⚠️  Stopped after %d rows\n", stats.Rows)
		return err
	}
	fmt.Fprintf(out, "✅ Annotator campaigns have been updated: %d rows, %d campaigns\n", stats.Rows, stats.Campaigns)
	return nil
}

func runBackup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	engine, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	start := time.Now()
	if err := engine.Backup(args[0]); err != nil {
		return err
	}
	stats := engine.Stats()
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Backed up %d segments and %d annotators to %s in %v\n",
		stats.Segments, stats.Annotators, args[0], time.Since(start).Round(time.Millisecond))
	return nil
}

func runRestore(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	engine, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := engine.Restore(args[0]); err != nil {
		return err
	}
	stats := engine.Stats()
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Restored %s: %d segments, %d annotators, %d audit events\n",
		args[0], stats.Segments, stats.Annotators, stats.AuditEvents)
	return nil
}

func runAudit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")

	engine, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	events, err := engine.ListAuditEvents(limit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(events) == 0 {
		fmt.Fprintln(out, "No audit events recorded")
		return nil
	}
	for _, ev := range events {
		fmt.Fprintf(out, "%s  %-28s %s\n", ev.Timestamp.Format(time.RFC3339), ev.Route, ev.URL)
	}
	return nil
}

func runPruneAudit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	olderThan, _ := cmd.Flags().GetDuration("older-than")

	engine, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	cutoff := time.Now().Add(-olderThan)
	pruned, err := engine.PruneAuditEvents(cutoff)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "🧹 Pruned %d audit events older than %s\n", pruned, cutoff.Format(time.RFC3339))
	return nil
}
