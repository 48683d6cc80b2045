package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hannes/yaak-anonymizer/config"
	"github.com/hannes/yaak-anonymizer/pii"
)

const cleanupInterval = time.Hour

// Server represents the HTTP server
type Server struct {
	config     *config.Config
	handler    *Handler
	limiter    *rate.Limiter
	httpServer *http.Server

	stopCleanup chan struct{}
	cleanupDone sync.WaitGroup
}

// NewServer creates a new server instance, loading the configured detector and audit store
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	detectorManager := pii.NewDetectorManager(cfg.Analyzer.DetectorName, cfg.DetectorSettings())
	auditDB := pii.OpenAuditDB(ctx, cfg.Database.Enabled, cfg.AuditDatabaseConfig())

	return NewServerWithComponents(cfg, detectorManager, auditDB), nil
}

// NewServerWithComponents creates a server around existing components
func NewServerWithComponents(cfg *config.Config, detectorManager *pii.DetectorManager, auditDB pii.AuditDB) *Server {
	var limiter *rate.Limiter
	if cfg.RateLimit.Enabled {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.Burst)
	}

	s := &Server{
		config:      cfg,
		handler:     NewHandler(cfg, detectorManager, auditDB),
		limiter:     limiter,
		stopCleanup: make(chan struct{}),
	}

	// Create server with timeout configuration
	s.httpServer = &http.Server{
		Addr:         cfg.ServerPort,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the full middleware chain around the routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthCheck)
	mux.HandleFunc("/v1/analyze", s.handler.HandleAnalyze)
	mux.HandleFunc("/v1/anonymize", s.handler.HandleAnonymize)
	mux.HandleFunc("/v1/audit", s.handler.HandleAudit)

	var h http.Handler = mux
	h = withRateLimit(s.limiter, h)
	h = withRequestLogging(s.config.Logging.LogRequests, h)
	return withRequestID(h)
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	log.Printf("Starting anonymizer service on port %s", s.config.ServerPort)

	if s.handler.detectorManager.IsHealthy() {
		log.Printf("PII detection enabled with detector: %s", s.config.Analyzer.DetectorName)
	} else {
		log.Printf("⚠️  Detector %s is not available: %v", s.config.Analyzer.DetectorName, s.handler.detectorManager.GetLastError())
	}

	if s.config.Database.Enabled {
		log.Println("Database storage enabled")
	} else {
		log.Println("Using in-memory storage")
	}

	if s.config.RateLimit.Enabled {
		log.Printf("Rate limit: %.1f req/s, burst %d", s.config.RateLimit.RequestsPerSecond, s.config.RateLimit.Burst)
	}

	s.startAuditCleanup()

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// startAuditCleanup periodically removes audit records older than Database.CleanupHours
func (s *Server) startAuditCleanup() {
	if s.config.Database.CleanupHours <= 0 {
		return
	}
	retention := time.Duration(s.config.Database.CleanupHours) * time.Hour

	s.cleanupDone.Add(1)
	go func() {
		defer s.cleanupDone.Done()
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()

		for {
			s.cleanupAudits(retention)
			select {
			case <-ticker.C:
			case <-s.stopCleanup:
				return
			}
		}
	}()
}

func (s *Server) cleanupAudits(retention time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	removed, err := s.handler.auditDB.CleanupOldAudits(ctx, retention)
	if err != nil {
		log.Printf("[AuditDB] ⚠️  Cleanup failed: %v", err)
		return
	}
	if removed > 0 || s.config.Logging.DebugMode {
		log.Printf("[AuditDB] Removed %d audit records older than %s", removed, retention)
	}
}

// healthCheck reports service status and the detector state
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	status, code := "healthy", http.StatusOK
	if !s.handler.detectorManager.IsHealthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}

	respondJSON(w, code, map[string]interface{}{
		"status":   status,
		"service":  "Yaak Anonymizer Service",
		"detector": s.handler.detectorManager.GetInfo(),
	})
}

// StartWithErrorHandling starts the server with proper error handling
func (s *Server) StartWithErrorHandling() {
	if err := s.Start(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// Shutdown stops accepting requests and waits for in-flight ones until ctx expires
func (s *Server) Shutdown(ctx context.Context) error {
	select {
	case <-s.stopCleanup:
	default:
		close(s.stopCleanup)
	}
	s.cleanupDone.Wait()

	return s.httpServer.Shutdown(ctx)
}

// Close closes the server and cleans up resources
func (s *Server) Close() error {
	if s.handler != nil {
		return s.handler.Close()
	}
	return nil
}
