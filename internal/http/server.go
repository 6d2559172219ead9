// Package http provides HTTP server implementation and request handlers.
package http

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/bowerbird-app/captain-hook-sub004/internal/config"
	"github.com/bowerbird-app/captain-hook-sub004/internal/metrics"
	webhookHTTP "github.com/bowerbird-app/captain-hook-sub004/internal/webhook/http"
)

// Server represents the HTTP server
type Server struct {
	db     *sql.DB
	router *gin.Engine
	server *http.Server
	logger *slog.Logger
}

// NewServer creates a new HTTP server
func NewServer(
	db *sql.DB,
	host string,
	port int,
	logger *slog.Logger,
) *Server {
	return &Server{
		db:     db,
		logger: logger,
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", host, port),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// RouteHandlers groups the handlers mounted by SetupRouter.
type RouteHandlers struct {
	Intake   *webhookHTTP.IntakeHandler
	Events   *webhookHTTP.EventHandler
	Provider *webhookHTTP.ProviderHandler
}

// SetupRouter configures the Gin router with all routes and middleware.
// ctx bounds background goroutines started by middleware.
func (s *Server) SetupRouter(
	ctx context.Context,
	cfg *config.Config,
	handlers RouteHandlers,
	metricsProvider *metrics.Provider,
) {
	gin.SetMode(cfg.GetGinMode())

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestid.New(requestid.WithGenerator(func() string {
		return uuid.Must(uuid.NewV7()).String()
	})))
	router.Use(CustomLoggerMiddleware(s.logger))

	if corsMiddleware := createCORSMiddleware(cfg.CORSEnabled, cfg.CORSAllowOrigins, s.logger); corsMiddleware != nil {
		router.Use(corsMiddleware)
	}

	if metricsProvider != nil {
		router.Use(metrics.HTTPMetricsMiddleware(metricsProvider.MeterProvider(), cfg.MetricsNamespace))
	}

	router.GET("/health", s.healthHandler)
	router.GET("/ready", s.readinessHandler)

	// Inbound webhooks authenticate with the per-provider path token
	if handlers.Intake != nil {
		router.POST(cfg.WebhookPathPrefix+"/:provider/:token", handlers.Intake.ReceiveHandler)
	}

	if cfg.AdminAPIToken == "" {
		s.logger.Warn("ADMIN_API_TOKEN not set - admin API disabled")
		s.router = router
		return
	}

	v1 := router.Group("/v1")
	v1.Use(webhookHTTP.AdminAuthMiddleware(cfg.AdminAPIToken, s.logger))
	if cfg.AdminRateLimitEnabled {
		v1.Use(webhookHTTP.AdminRateLimitMiddleware(
			ctx,
			cfg.AdminRateLimitRequestsPerSec,
			cfg.AdminRateLimitBurst,
			s.logger,
		))
	}

	if handlers.Events != nil {
		incoming := v1.Group("/incoming-events")
		{
			incoming.GET("", handlers.Events.ListIncomingHandler)
			incoming.GET("/:id", handlers.Events.GetIncomingHandler)
			incoming.POST("/:id/replay", handlers.Events.ReplayHandler)
		}

		outgoing := v1.Group("/outgoing-events")
		{
			outgoing.POST("", handlers.Events.CreateOutgoingHandler)
			outgoing.GET("", handlers.Events.ListOutgoingHandler)
			outgoing.GET("/:id", handlers.Events.GetOutgoingHandler)
		}
	}

	if handlers.Provider != nil {
		providers := v1.Group("/providers")
		{
			providers.GET("", handlers.Provider.ListHandler)
			providers.PATCH("/:name", handlers.Provider.UpdateHandler)
		}
	}

	s.router = router
}

// GetHandler returns the http.Handler for testing purposes.
func (s *Server) GetHandler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	if s.router == nil {
		return fmt.Errorf("router not configured: call SetupRouter first")
	}

	s.server.Handler = s.router

	s.logger.Info("starting http server", slog.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.server.Shutdown(ctx)
}

// healthHandler reports process liveness.
func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// readinessHandler reports whether the database is reachable.
func (s *Server) readinessHandler(c *gin.Context) {
	components := gin.H{"database": "ok"}

	if s.db == nil {
		components["database"] = "error"
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "components": components})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Warn("readiness check failed", slog.Any("error", err))
		components["database"] = "error"
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "components": components})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready", "components": components})
}
