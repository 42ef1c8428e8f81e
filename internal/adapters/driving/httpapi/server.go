// Package httpapi is the engine's HTTP surface: the OAuth authorize and
// callback endpoints, provider webhooks, and the connection API. Handlers
// only call core services; sync runs are always enqueued, never run inline.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/custodia-labs/syncengine/internal/core/ports/driven"
	"github.com/custodia-labs/syncengine/internal/core/ports/driving"
	"github.com/custodia-labs/syncengine/internal/logger"
)

// Config configures the HTTP API.
type Config struct {
	// Addr is the listen address.
	Addr string

	// WebhookDeadline bounds webhook handling so providers get a prompt
	// acknowledgement.
	WebhookDeadline time.Duration

	// MaxWebhookBytes caps the accepted webhook body size.
	MaxWebhookBytes int64

	// Debug enables gin's debug mode.
	Debug bool
}

// DefaultConfig returns the standard HTTP settings.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		WebhookDeadline: 5 * time.Second,
		MaxWebhookBytes: 1 << 20,
	}
}

// Services are the core services the API drives.
type Services struct {
	Auth        driving.AuthManager
	Connections driving.ConnectionService
	Sync        driving.SyncManager
	Queue       driving.SyncQueue
	Webhooks    driving.WebhookGateway
	Users       driven.UserDirectory

	// Ready reports whether backing stores are reachable. Optional.
	Ready func(ctx context.Context) error
}

// Server serves the HTTP API.
type Server struct {
	cfg    Config
	svc    Services
	engine *gin.Engine
}

// NewServer creates the server and registers all routes.
func NewServer(cfg Config, svc Services) *Server {
	defaults := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = defaults.Addr
	}
	if cfg.WebhookDeadline <= 0 {
		cfg.WebhookDeadline = defaults.WebhookDeadline
	}
	if cfg.MaxWebhookBytes <= 0 {
		cfg.MaxWebhookBytes = defaults.MaxWebhookBytes
	}

	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger())

	s := &Server{cfg: cfg, svc: svc, engine: engine}
	s.register()
	return s
}

func (s *Server) register() {
	s.engine.GET("/health", s.health)

	integrations := s.engine.Group("/integrations")

	// State binds the callback to the user; providers call webhooks unauthenticated.
	integrations.GET("/:provider/callback", s.callback)
	integrations.GET("/:provider/webhook", s.verifySubscription)
	integrations.POST("/:provider/webhook", s.webhook)

	authed := integrations.Group("", requireUser(s.svc.Users))
	authed.GET("/:provider/authorize", s.authorize)

	conns := authed.Group("/connections")
	conns.GET("", s.listConnections)
	conns.GET("/:id", s.getConnection)
	conns.GET("/:id/status", s.connectionStatus)
	conns.GET("/:id/history", s.connectionHistory)
	conns.POST("/:id/sync", s.triggerSync)
	conns.DELETE("/:id", s.revokeConnection)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP API listening on %s", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) health(c *gin.Context) {
	if s.svc.Ready != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.svc.Ready(ctx); err != nil {
			logger.Warn("health check: %v", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
