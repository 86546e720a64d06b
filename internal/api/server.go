// Package api provides the HTTP API server for the ushadow orchestrator.
// It uses Echo framework to serve REST endpoints and a WebSocket feed
// for real-time service, environment, and cluster state.
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/ushadow/orchestrator/internal/cluster"
	"github.com/ushadow/orchestrator/internal/config"
	"github.com/ushadow/orchestrator/internal/environments"
	"github.com/ushadow/orchestrator/internal/lifecycle"
	"github.com/ushadow/orchestrator/internal/registry"
	"github.com/ushadow/orchestrator/internal/settings"
	"github.com/ushadow/orchestrator/internal/setup"
)

// Server is the orchestrator HTTP API server.
type Server struct {
	echo         *echo.Echo
	config       *config.Config
	registry     *registry.Registry
	lifecycle    *lifecycle.Manager
	environments *environments.Manager
	secrets      *settings.Secrets
	phases       *setup.PhaseTracker
	levels       setup.LevelTable
	issuer       *cluster.Issuer
	roster       *cluster.Roster
	hub          *Hub
}

// Deps carries the assembled components the server exposes.
type Deps struct {
	Registry     *registry.Registry
	Lifecycle    *lifecycle.Manager
	Environments *environments.Manager
	Secrets      *settings.Secrets
	Phases       *setup.PhaseTracker
	Levels       setup.LevelTable
	Issuer       *cluster.Issuer
	Roster       *cluster.Roster
	Hub          *Hub
}

// NewServer creates a new API server instance
func NewServer(cfg *config.Config, deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	hub := deps.Hub
	if hub == nil {
		hub = NewHub()
	}

	s := &Server{
		echo:         e,
		config:       cfg,
		registry:     deps.Registry,
		lifecycle:    deps.Lifecycle,
		environments: deps.Environments,
		secrets:      deps.Secrets,
		phases:       deps.Phases,
		levels:       deps.Levels,
		issuer:       deps.Issuer,
		roster:       deps.Roster,
		hub:          hub,
	}

	e.Debug = cfg.Server.Debug
	e.Validator = NewValidator()
	e.HTTPErrorHandler = HTTPErrorHandler

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Hub exposes the event hub so components can broadcast changes.
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Logger())
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())
	s.echo.Use(SecurityHeaders)

	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: s.config.Security.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))

	if s.config.Security.RateLimit > 0 {
		s.echo.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(
			rate.Limit(s.config.Security.RateLimit),
		)))
	}

	s.echo.Use(ValidateContentType)
	s.echo.Use(ValidateAcceptHeader)
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/ws", s.handleWebSocket)

	v1 := s.echo.Group("/api/v1")

	// Services
	v1.GET("/services", s.listServices)
	v1.GET("/services/config", s.getEffectiveConfig)
	v1.GET("/services/:id/status", s.getServiceStatus)
	v1.POST("/services/:id/preflight", s.preflightService)
	v1.POST("/services/:id/start", s.startService)
	v1.POST("/services/:id/stop/confirm", s.confirmStopService)
	v1.POST("/services/:id/stop/cancel", s.cancelStopService)
	v1.POST("/services/:id/stop", s.stopService)
	v1.POST("/services/:id/enabled", s.setServiceEnabled)
	v1.POST("/services/:id/port-override", s.overrideServicePort)
	v1.GET("/services/:id/config", s.getServiceConfig)
	v1.PUT("/services/:id/config", s.saveServiceConfig)

	// Environments
	v1.GET("/environments", s.listEnvironments)
	v1.POST("/environments", s.createEnvironment)
	v1.GET("/environments/creations", s.listCreations)
	v1.DELETE("/environments/creations/:name", s.dismissCreation)
	v1.POST("/environments/:name/start", s.startEnvironment)
	v1.POST("/environments/:name/stop", s.stopEnvironment)
	v1.POST("/environments/:name/open", s.openEnvironment)

	// Cluster
	v1.GET("/cluster/nodes", s.listNodes)
	v1.POST("/cluster/nodes/refresh", s.refreshNodes)
	v1.DELETE("/cluster/nodes/:hostname", s.removeNode)
	v1.POST("/cluster/token", s.createToken)
	v1.POST("/cluster/token/validate", s.validateToken)
	v1.DELETE("/cluster/token/:id", s.revokeToken)

	// Setup wizard
	v1.GET("/setup/status", s.getSetupStatus)
	v1.POST("/setup/phases/:phase", s.completePhase)
	v1.GET("/wizard/api-keys", s.getAPIKeys)
	v1.PUT("/wizard/api-keys", s.saveAPIKeys)
}

// Start starts the API server
func (s *Server) Start() error {
	go s.hub.Run()

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	log.Printf("Starting orchestrator API server on %s", addr)

	s.echo.Server.ReadTimeout = s.config.Server.ReadTimeout
	s.echo.Server.WriteTimeout = s.config.Server.WriteTimeout

	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.config.Server.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
		defer cancel()
	}
	return s.echo.Shutdown(ctx)
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"services":  len(s.registry.Services()),
		"observers": s.hub.ClientCount(),
	})
}
