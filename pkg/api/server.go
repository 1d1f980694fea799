// Package api provides the HTTP surface for the core: a chat endpoint that
// drives pkg/router.Router, session admin endpoints over pkg/session.Manager,
// and a health endpoint, built on gin.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/coretask-core/coretask/pkg/config"
	"github.com/coretask-core/coretask/pkg/database"
	"github.com/coretask-core/coretask/pkg/router"
	"github.com/coretask-core/coretask/pkg/session"
)

// Server is the HTTP API server.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server

	cfg      *config.Config
	dbClient *database.Client
	sessions *session.Manager
	router   *router.Router
}

// NewServer creates a new API server and registers its routes.
func NewServer(cfg *config.Config, dbClient *database.Client, sessions *session.Manager, rt *router.Router) *Server {
	e := gin.New()
	e.Use(gin.Recovery(), securityHeaders())

	s := &Server{
		engine:   e,
		cfg:      cfg,
		dbClient: dbClient,
		sessions: sessions,
		router:   rt,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.healthHandler)

	v1 := s.engine.Group("/api/v1")
	v1.POST("/chat", s.chatHandler)
	v1.GET("/sessions/stats", s.sessionStatsHandler)
	v1.POST("/sessions/:id/cancel", s.cancelSessionHandler)
}

// Handler returns the server's http.Handler, for tests that want to drive
// it over httptest.NewServer or httptest.NewRecorder without binding a
// real port.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start starts the HTTP server on the given address (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.engine,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// healthTimeout bounds the database ping a health check performs.
const healthTimeout = 5 * time.Second
