// Package config handles Conduit configuration via YAML files and environment variables.
//
// Configuration Precedence (highest to lowest):
//  1. Command-line flags (--port, --data-dir, etc.)
//  2. Environment variables (CONDUIT_*)
//  3. Config file (conduit.yaml)
//  4. Built-in defaults
//
// Example Usage:
//
//	cfg, err := config.LoadFromFile(config.FindConfigFile())
//	if err != nil {
//		log.Fatalf("Invalid config: %v", err)
//	}
//
//	fmt.Printf("HTTP server: %s:%d\n", cfg.Server.Address, cfg.Server.Port)
//
// Environment Variables (all use CONDUIT_ prefix):
//
// Server:
//   - CONDUIT_ADDRESS="127.0.0.1"
//   - CONDUIT_PORT=8000
//   - CONDUIT_CORS_ORIGINS="*"
//   - CONDUIT_AUDIT_ENABLED=true
//
// Database:
//   - CONDUIT_DATA_DIR="./data"
//   - CONDUIT_IN_MEMORY=false
//   - CONDUIT_SEGMENT_CACHE_SIZE=1024
//
// Navigator:
//   - CONDUIT_CHUNK_SIZE=10
//   - CONDUIT_CACHE_FACTOR=2
//   - CONDUIT_FETCH_TIMEOUT=30s
//
// Client:
//   - CONDUIT_URL="http://127.0.0.1:8000"
//   - CONDUIT_ANNOTATOR="bfoo"
//
// Logging:
//   - CONDUIT_LOG_LEVEL="INFO"
//   - CONDUIT_LOG_REQUESTS=true
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all Conduit configuration.
//
// Use LoadFromFile() to build a Config with the full precedence chain, or
// LoadFromEnv() when there is no config file.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Navigator NavigatorConfig
	Client    ClientConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP API server settings.
type ServerConfig struct {
	// Address to bind to
	Address string
	// Port for HTTP connections (default 8000)
	Port int
	// ReadTimeout for whole requests
	ReadTimeout time.Duration
	// WriteTimeout for whole responses
	WriteTimeout time.Duration
	// IdleTimeout for keep-alive connections
	IdleTimeout time.Duration
	// MaxRequestSize in bytes for request bodies
	MaxRequestSize int64
	// EnableCORS adds CORS headers to every response
	EnableCORS bool
	// CORSOrigins allowed by the CORS middleware
	CORSOrigins []string
	// AuditEnabled records every /api/ request as an audit event
	AuditEnabled bool
	// AuditBufferSize is the queue length in front of the audit writer
	AuditBufferSize int
}

// DatabaseConfig holds storage settings.
type DatabaseConfig struct {
	// DataDir is the directory for data storage
	DataDir string
	// InMemory runs badger without touching disk (tests, demos)
	InMemory bool
	// SyncWrites fsyncs every write
	SyncWrites bool
	// LowMemory shrinks badger's tables and caches
	LowMemory bool
	// SegmentCacheSize is the number of decoded segments kept hot in memory
	SegmentCacheSize int
}

// NavigatorConfig holds the client-side prefetch settings.
type NavigatorConfig struct {
	// ChunkSize is the number of positions prefetched per miss
	ChunkSize int
	// CacheFactor bounds the cache to CacheFactor*ChunkSize entries
	CacheFactor int
	// FetchTimeout bounds each batch fetch
	FetchTimeout time.Duration
}

// ClientConfig holds settings for the terminal annotator.
type ClientConfig struct {
	// BaseURL of the Conduit server
	BaseURL string
	// Timeout for each HTTP request
	Timeout time.Duration
	// Annotator username to annotate as
	Annotator string
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level (DEBUG, INFO, WARN, ERROR)
	Level string
	// LogRequests logs one line per HTTP request
	LogRequests bool
}

// LoadDefaults returns a Config populated with built-in defaults only.
func LoadDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         "127.0.0.1",
			Port:            8000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     120 * time.Second,
			MaxRequestSize:  1 << 20,
			EnableCORS:      true,
			CORSOrigins:     []string{"*"},
			AuditEnabled:    true,
			AuditBufferSize: 1024,
		},
		Database: DatabaseConfig{
			DataDir:          "./data",
			SegmentCacheSize: 1024,
		},
		Navigator: NavigatorConfig{
			ChunkSize:    10,
			CacheFactor:  2,
			FetchTimeout: 30 * time.Second,
		},
		Client: ClientConfig{
			BaseURL: "http://127.0.0.1:8000",
			Timeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:       "INFO",
			LogRequests: true,
		},
	}
}

// LoadFromEnv returns defaults overridden by CONDUIT_* environment variables.
func LoadFromEnv() *Config {
	config := LoadDefaults()
	applyEnvVars(config)
	return config
}

func applyEnvVars(config *Config) {
	// Server
	config.Server.Address = getEnv("CONDUIT_ADDRESS", config.Server.Address)
	config.Server.Port = getEnvInt("CONDUIT_PORT", config.Server.Port)
	config.Server.ReadTimeout = getEnvDuration("CONDUIT_READ_TIMEOUT", config.Server.ReadTimeout)
	config.Server.WriteTimeout = getEnvDuration("CONDUIT_WRITE_TIMEOUT", config.Server.WriteTimeout)
	config.Server.IdleTimeout = getEnvDuration("CONDUIT_IDLE_TIMEOUT", config.Server.IdleTimeout)
	config.Server.MaxRequestSize = int64(getEnvInt("CONDUIT_MAX_REQUEST_SIZE", int(config.Server.MaxRequestSize)))
	config.Server.EnableCORS = getEnvBool("CONDUIT_CORS_ENABLED", config.Server.EnableCORS)
	config.Server.CORSOrigins = getEnvStringSlice("CONDUIT_CORS_ORIGINS", config.Server.CORSOrigins)
	config.Server.AuditEnabled = getEnvBool("CONDUIT_AUDIT_ENABLED", config.Server.AuditEnabled)
	config.Server.AuditBufferSize = getEnvInt("CONDUIT_AUDIT_BUFFER_SIZE", config.Server.AuditBufferSize)

	// Database
	config.Database.DataDir = getEnv("CONDUIT_DATA_DIR", config.Database.DataDir)
	config.Database.InMemory = getEnvBool("CONDUIT_IN_MEMORY", config.Database.InMemory)
	config.Database.SyncWrites = getEnvBool("CONDUIT_SYNC_WRITES", config.Database.SyncWrites)
	config.Database.LowMemory = getEnvBool("CONDUIT_LOW_MEMORY", config.Database.LowMemory)
	config.Database.SegmentCacheSize = getEnvInt("CONDUIT_SEGMENT_CACHE_SIZE", config.Database.SegmentCacheSize)

	// Navigator
	config.Navigator.ChunkSize = getEnvInt("CONDUIT_CHUNK_SIZE", config.Navigator.ChunkSize)
	config.Navigator.CacheFactor = getEnvInt("CONDUIT_CACHE_FACTOR", config.Navigator.CacheFactor)
	config.Navigator.FetchTimeout = getEnvDuration("CONDUIT_FETCH_TIMEOUT", config.Navigator.FetchTimeout)

	// Client
	config.Client.BaseURL = getEnv("CONDUIT_URL", config.Client.BaseURL)
	config.Client.Timeout = getEnvDuration("CONDUIT_CLIENT_TIMEOUT", config.Client.Timeout)
	config.Client.Annotator = getEnv("CONDUIT_ANNOTATOR", config.Client.Annotator)

	// Logging
	config.Logging.Level = strings.ToUpper(getEnv("CONDUIT_LOG_LEVEL", config.Logging.Level))
	config.Logging.LogRequests = getEnvBool("CONDUIT_LOG_REQUESTS", config.Logging.LogRequests)
}

// Validate checks the configuration for errors.
//
// Returns nil if configuration is valid, or an error describing the problem.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid http port: %d", c.Server.Port)
	}
	if c.Server.MaxRequestSize <= 0 {
		return fmt.Errorf("invalid max request size: %d", c.Server.MaxRequestSize)
	}
	if !c.Database.InMemory && c.Database.DataDir == "" {
		return fmt.Errorf("data dir required unless running in memory")
	}
	if c.Navigator.ChunkSize < 1 {
		return fmt.Errorf("invalid chunk size: %d", c.Navigator.ChunkSize)
	}
	if c.Navigator.CacheFactor < 1 {
		return fmt.Errorf("invalid cache factor: %d", c.Navigator.CacheFactor)
	}
	if c.Navigator.FetchTimeout < 0 {
		return fmt.Errorf("invalid fetch timeout: %v", c.Navigator.FetchTimeout)
	}
	switch c.Logging.Level {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("invalid log level: %q", c.Logging.Level)
	}
	return nil
}

// String returns a representation of the Config suitable for logging.
func (c *Config) String() string {
	dataDir := c.Database.DataDir
	if c.Database.InMemory {
		dataDir = "(in-memory)"
	}
	return fmt.Sprintf(
		"Config{HTTP: %s:%d, DataDir: %s, Chunk: %d x%d, Client: %s}",
		c.Server.Address, c.Server.Port,
		dataDir,
		c.Navigator.ChunkSize, c.Navigator.CacheFactor,
		c.Client.BaseURL,
	)
}

// YAMLConfig represents the YAML configuration file structure.
// Durations are strings accepted by time.ParseDuration.
type YAMLConfig struct {
	Server struct {
		Address         string   `yaml:"address"`
		Host            string   `yaml:"host"` // Alias for address
		Port            int      `yaml:"port"`
		ReadTimeout     string   `yaml:"read_timeout"`
		WriteTimeout    string   `yaml:"write_timeout"`
		IdleTimeout     string   `yaml:"idle_timeout"`
		MaxRequestSize  int64    `yaml:"max_request_size"`
		CORS            *bool    `yaml:"cors"`
		CORSOrigins     []string `yaml:"cors_origins"`
		Audit           *bool    `yaml:"audit"`
		AuditBufferSize int      `yaml:"audit_buffer_size"`
	} `yaml:"server"`

	Database struct {
		DataDir          string `yaml:"data_dir"`
		InMemory         bool   `yaml:"in_memory"`
		SyncWrites       bool   `yaml:"sync_writes"`
		LowMemory        bool   `yaml:"low_memory"`
		SegmentCacheSize int    `yaml:"segment_cache_size"`
	} `yaml:"database"`

	Navigator struct {
		ChunkSize    int    `yaml:"chunk_size"`
		CacheFactor  int    `yaml:"cache_factor"`
		FetchTimeout string `yaml:"fetch_timeout"`
	} `yaml:"navigator"`

	Client struct {
		URL       string `yaml:"url"`
		Timeout   string `yaml:"timeout"`
		Annotator string `yaml:"annotator"`
	} `yaml:"client"`

	Logging struct {
		Level       string `yaml:"level"`
		LogRequests *bool  `yaml:"log_requests"`
	} `yaml:"logging"`
}

// LoadFromFile loads configuration with precedence defaults -> config file -> env vars.
// A missing file is not an error: defaults and env vars still apply.
func LoadFromFile(configPath string) (*Config, error) {
	config := LoadDefaults()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case err == nil:
			if err := applyYAML(config, data); err != nil {
				return nil, err
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	applyEnvVars(config)
	return config, nil
}

func applyYAML(config *Config, data []byte) error {
	var yamlCfg YAMLConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	// === Server Settings ===
	if yamlCfg.Server.Host != "" {
		config.Server.Address = yamlCfg.Server.Host
	}
	if yamlCfg.Server.Address != "" {
		config.Server.Address = yamlCfg.Server.Address
	}
	if yamlCfg.Server.Port > 0 {
		config.Server.Port = yamlCfg.Server.Port
	}
	if err := parseYAMLDuration("server.read_timeout", yamlCfg.Server.ReadTimeout, &config.Server.ReadTimeout); err != nil {
		return err
	}
	if err := parseYAMLDuration("server.write_timeout", yamlCfg.Server.WriteTimeout, &config.Server.WriteTimeout); err != nil {
		return err
	}
	if err := parseYAMLDuration("server.idle_timeout", yamlCfg.Server.IdleTimeout, &config.Server.IdleTimeout); err != nil {
		return err
	}
	if yamlCfg.Server.MaxRequestSize > 0 {
		config.Server.MaxRequestSize = yamlCfg.Server.MaxRequestSize
	}
	if yamlCfg.Server.CORS != nil {
		config.Server.EnableCORS = *yamlCfg.Server.CORS
	}
	if len(yamlCfg.Server.CORSOrigins) > 0 {
		config.Server.CORSOrigins = yamlCfg.Server.CORSOrigins
	}
	if yamlCfg.Server.Audit != nil {
		config.Server.AuditEnabled = *yamlCfg.Server.Audit
	}
	if yamlCfg.Server.AuditBufferSize > 0 {
		config.Server.AuditBufferSize = yamlCfg.Server.AuditBufferSize
	}

	// === Database Settings ===
	if yamlCfg.Database.DataDir != "" {
		config.Database.DataDir = yamlCfg.Database.DataDir
	}
	if yamlCfg.Database.InMemory {
		config.Database.InMemory = true
	}
	if yamlCfg.Database.SyncWrites {
		config.Database.SyncWrites = true
	}
	if yamlCfg.Database.LowMemory {
		config.Database.LowMemory = true
	}
	if yamlCfg.Database.SegmentCacheSize > 0 {
		config.Database.SegmentCacheSize = yamlCfg.Database.SegmentCacheSize
	}

	// === Navigator Settings ===
	if yamlCfg.Navigator.ChunkSize > 0 {
		config.Navigator.ChunkSize = yamlCfg.Navigator.ChunkSize
	}
	if yamlCfg.Navigator.CacheFactor > 0 {
		config.Navigator.CacheFactor = yamlCfg.Navigator.CacheFactor
	}
	if err := parseYAMLDuration("navigator.fetch_timeout", yamlCfg.Navigator.FetchTimeout, &config.Navigator.FetchTimeout); err != nil {
		return err
	}

	// === Client Settings ===
	if yamlCfg.Client.URL != "" {
		config.Client.BaseURL = yamlCfg.Client.URL
	}
	if err := parseYAMLDuration("client.timeout", yamlCfg.Client.Timeout, &config.Client.Timeout); err != nil {
		return err
	}
	if yamlCfg.Client.Annotator != "" {
		config.Client.Annotator = yamlCfg.Client.Annotator
	}

	// === Logging Settings ===
	if yamlCfg.Logging.Level != "" {
		config.Logging.Level = strings.ToUpper(yamlCfg.Logging.Level)
	}
	if yamlCfg.Logging.LogRequests != nil {
		config.Logging.LogRequests = *yamlCfg.Logging.LogRequests
	}

	return nil
}

func parseYAMLDuration(field, val string, dst *time.Duration) error {
	if val == "" {
		return nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", field, val, err)
	}
	*dst = d
	return nil
}

// FindConfigFile searches for a config file in standard locations.
// Returns the path to the first config file found, or empty string if none found.
// Search order:
//  1. ~/.conduit/config.yaml
//  2. Same directory as the binary (conduit.yaml)
//  3. Current working directory (conduit.yaml, config.yaml)
//  4. ~/.config/conduit/config.yaml (XDG)
func FindConfigFile() string {
	var candidates []string

	home, homeErr := os.UserHomeDir()
	if homeErr == nil {
		candidates = append(candidates, filepath.Join(home, ".conduit", "config.yaml"))
	}

	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), "conduit.yaml"))
	}

	candidates = append(candidates, "conduit.yaml", "config.yaml")

	if homeErr == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "conduit", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// Helper functions for environment variable parsing

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(val)
		return val == "true" || val == "1" || val == "yes" || val == "on"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		// Try parsing as seconds
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultVal
}

func getEnvStringSlice(key string, defaultVal []string) []string {
	if val := os.Getenv(key); val != "" {
		parts := strings.Split(val, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultVal
}
