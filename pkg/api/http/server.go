package http

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aescanero/docgen/internal/application/orchestrator"
	"github.com/aescanero/docgen/internal/application/workers"
	"github.com/aescanero/docgen/pkg/ports"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RunStreamer serves live run events on an upgraded connection
type RunStreamer interface {
	HandleRunStream(c *gin.Context)
}

// Server represents the HTTP API server
type Server struct {
	router    *gin.Engine
	server    *http.Server
	manager   *orchestrator.Manager
	documents ports.DocumentStore
	pool      *workers.Pool
	logger    *zap.Logger
}

// Config holds HTTP server configuration
type Config struct {
	Port      int
	Manager   *orchestrator.Manager
	Documents ports.DocumentStore // optional, enables the document endpoints
	Pool      *workers.Pool
	Logger    *zap.Logger
}

// NewServer creates a new HTTP server
func NewServer(cfg *Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestID())
	router.Use(corsMiddleware())
	router.Use(requestLogger(cfg.Logger))

	s := &Server{
		router:    router,
		manager:   cfg.Manager,
		documents: cfg.Documents,
		pool:      cfg.Pool,
		logger:    cfg.Logger,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	return s
}

// setupRoutes configures API routes
func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/health", s.handleHealth)

	// Metrics
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1
	v1 := s.router.Group("/api/v1")
	{
		// Run endpoints
		v1.POST("/runs", s.handleSubmitRun)
		v1.GET("/runs", s.handleListRuns)
		v1.GET("/runs/:id", s.handleGetRun)
		v1.GET("/runs/:id/status", s.handleGetStatus)
		v1.GET("/runs/:id/artifact", s.handleGetArtifact)
		v1.GET("/runs/:id/history", s.handleGetHistory)
		v1.POST("/runs/:id/cancel", s.handleCancelRun)

		// Catalogue and workers
		v1.GET("/workflows", s.handleListWorkflows)
		v1.GET("/workers", s.handleListWorkers)

		if s.documents != nil {
			v1.GET("/documents", s.handleListDocuments)
			v1.GET("/documents/:id", s.handleGetDocument)
			v1.GET("/repositories/:owner/:name/documents/latest", s.handleLatestDocument)
		}
	}
}

// SetupWebSocket adds the run event stream endpoint
func (s *Server) SetupWebSocket(streamer RunStreamer) {
	s.router.GET("/api/v1/runs/:id/ws", streamer.HandleRunStream)
}

// Handler returns the root handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	s.logger.Info("HTTP server shut down complete")
	return nil
}
