package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/deskmate/internal/config"
)

// Server represents the API server
type Server struct {
	echo *echo.Echo
	cfg  *config.Config
}

// NewServer creates a new API server over the given handlers.
func NewServer(cfg *config.Config, handlers *Handlers) *Server {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	server := &Server{
		echo: e,
		cfg:  cfg,
	}

	server.setupRoutes(handlers)

	return server
}

// setupRoutes configures all API endpoints
func (s *Server) setupRoutes(h *Handlers) {
	s.echo.GET("/health", h.HandleHealth)

	v1 := s.echo.Group("/api/v1", RequireAuth(s.cfg.Auth.JWTSecret))

	v1.POST("/chat", h.HandleChat, RateLimitPerUser(s.cfg.Chat.RequestsPerMin))

	v1.GET("/conversations", h.HandleListConversations)
	v1.GET("/conversations/:threadId/messages", h.HandleListMessages)
	v1.DELETE("/conversations/:threadId", h.HandleDeleteConversation)

	v1.GET("/apps", h.HandleListApps)
	v1.POST("/apps/disconnect", h.HandleDisconnectApp)
}

// Start begins the API server and blocks until an interrupt, then
// shuts down gracefully.
func (s *Server) Start() error {
	go func() {
		if err := s.echo.Start(fmt.Sprintf(":%d", s.cfg.Server.Port)); err != nil && err != http.ErrServerClosed {
			s.echo.Logger.Fatal("shutting down the server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.echo.Shutdown(ctx)
}
