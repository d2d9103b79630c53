// Package server provides the Conduit REST API.
//
// The server is the backend half of the segment navigation contract: it
// serves batched segment lookups by identifier, ascending id paging with
// after/before cursors, single segment reads and annotation writes, plus the
// annotator and class lists the annotation client needs.
//
// Endpoints:
//
//	GET  /health                                          liveness probe
//	GET  /status                                          JSON runtime stats
//	GET  /metrics                                         Prometheus text format
//	GET  /api/segments?find=<id>&find=<id>                batched lookup
//	GET  /api/segments?limit=<n>[&after=<id>|&before=<id>]  paging
//	GET  /api/segments/count[?start=<id>]                 [index, total]
//	GET  /api/segments/{id}[?annotator=<username>]        {signals, annotation}
//	PUT  /api/segments/{id}/annotations/{annotator}       store an annotation
//	GET  /api/annotators                                  all annotators
//	GET  /api/annotators/{username}                       one annotator
//	GET  /api/classes                                     rhythm classes
//
// Every /api/ request is recorded as an audit event in storage
// asynchronously.
//
// Example:
//
//	engine, _ := storage.NewBadgerEngine("./data")
//	srv, err := server.New(engine, server.DefaultConfig())
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := srv.Start(); err != nil {
//		log.Fatal(err)
//	}
//	defer srv.Stop(context.Background())
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/orneryd/conduit/pkg/segment"
	"github.com/orneryd/conduit/pkg/storage"
)

// Errors for HTTP operations.
var (
	ErrServerClosed  = fmt.Errorf("server closed")
	ErrBadRequest    = fmt.Errorf("bad request")
	ErrNotFound      = fmt.Errorf("not found")
	ErrInternalError = fmt.Errorf("internal server error")
)

// DefaultPageLimit is the page size used when a paging request has no limit.
const DefaultPageLimit = 10

// Config holds HTTP server configuration options.
//
// Example:
//
//	config := server.DefaultConfig()
//	config.Address = "0.0.0.0"
//	config.Port = 9000
//	config.CORSOrigins = []string{"http://localhost:3000"}
type Config struct {
	// Address to bind to (default: "127.0.0.1").
	Address string
	// Port to listen on (default: 8000). Zero picks a free port.
	Port int
	// ReadTimeout for requests
	ReadTimeout time.Duration
	// WriteTimeout for responses
	WriteTimeout time.Duration
	// IdleTimeout for keep-alive connections
	IdleTimeout time.Duration
	// MaxRequestSize in bytes (default: 1MB)
	MaxRequestSize int64
	// EnableCORS for the browser annotator (default: true)
	EnableCORS bool
	// CORSOrigins allowed origins (default: "*")
	CORSOrigins []string
	// LogRequests prints one [HTTP] line per request (default: true)
	LogRequests bool

	// AuditEnabled records every /api/ request (default: true)
	AuditEnabled bool
	// AuditBufferSize is the number of audit events queued before new ones
	// are dropped (default: 1024)
	AuditBufferSize int

	// Classes served by /api/classes (default: segment.DefaultClasses)
	Classes []segment.Class
}

// DefaultConfig returns a localhost configuration on port 8000.
func DefaultConfig() *Config {
	return &Config{
		Address:         "127.0.0.1",
		Port:            8000,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		IdleTimeout:     120 * time.Second,
		MaxRequestSize:  1 << 20,
		EnableCORS:      true,
		CORSOrigins:     []string{"*"},
		LogRequests:     true,
		AuditEnabled:    true,
		AuditBufferSize: 1024,
		Classes:         segment.DefaultClasses,
	}
}

// Server is the HTTP API server.
//
// Thread-safe: handlers run concurrently; Start and Stop may be called from
// any goroutine.
type Server struct {
	config *Config
	db     *storage.BadgerEngine

	httpServer *http.Server
	listener   net.Listener
	handler    http.Handler

	// Audit events are written by a single worker.
	auditCh   chan *storage.AuditEvent
	auditMu   sync.RWMutex
	auditDone chan struct{}

	closed  atomic.Bool
	started time.Time

	// Metrics
	requestCount   atomic.Int64
	errorCount     atomic.Int64
	activeRequests atomic.Int64
	auditDropped   atomic.Int64
}

// New creates a server over db. A nil config uses DefaultConfig.
func New(db *storage.BadgerEngine, config *Config) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if db == nil {
		return nil, fmt.Errorf("database required")
	}
	if len(config.Classes) == 0 {
		config.Classes = segment.DefaultClasses
	}
	if config.MaxRequestSize <= 0 {
		config.MaxRequestSize = DefaultConfig().MaxRequestSize
	}

	s := &Server{
		config:  config,
		db:      db,
		started: time.Now(),
	}
	if config.AuditEnabled {
		size := config.AuditBufferSize
		if size <= 0 {
			size = DefaultConfig().AuditBufferSize
		}
		s.auditCh = make(chan *storage.AuditEvent, size)
		s.auditDone = make(chan struct{})
		go s.runAuditWorker()
	}
	s.handler = s.buildRouter()
	return s, nil
}

// Handler returns the fully wrapped HTTP handler. Useful with httptest.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins listening for HTTP connections in the background.
func (s *Server) Start() error {
	if s.closed.Load() {
		return ErrServerClosed
	}

	addr := fmt.Sprintf("%s:%d", s.config.Address, s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.listener = listener
	s.started = time.Now()

	s.httpServer = &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the server and flushes pending audit events.
func (s *Server) Stop(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}

	if s.auditCh != nil {
		s.auditMu.Lock()
		close(s.auditCh)
		s.auditMu.Unlock()
		select {
		case <-s.auditDone:
		case <-ctx.Done():
			if err == nil {
				err = ctx.Err()
			}
		}
	}
	return err
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// Stats returns current server runtime statistics.
//
// Thread-safe: Can be called concurrently from multiple goroutines.
func (s *Server) Stats() ServerStats {
	return ServerStats{
		Uptime:         time.Since(s.started),
		RequestCount:   s.requestCount.Load(),
		ErrorCount:     s.errorCount.Load(),
		ActiveRequests: s.activeRequests.Load(),
		AuditDropped:   s.auditDropped.Load(),
	}
}

// ServerStats holds server metrics.
type ServerStats struct {
	Uptime         time.Duration `json:"uptime"`
	RequestCount   int64         `json:"request_count"`
	ErrorCount     int64         `json:"error_count"`
	ActiveRequests int64         `json:"active_requests"`
	AuditDropped   int64         `json:"audit_dropped"`
}
