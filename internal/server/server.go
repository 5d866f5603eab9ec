// Package server exposes the hub over JSON HTTP: the feed, single
// articles, the action endpoint, the topology overview, the source fleet
// and the manual collection trigger.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/japanese-wolf/brain-stream/internal/collector"
	"github.com/japanese-wolf/brain-stream/internal/config"
	"github.com/japanese-wolf/brain-stream/internal/cooccur"
	"github.com/japanese-wolf/brain-stream/internal/feed"
	"github.com/japanese-wolf/brain-stream/internal/plugins"
	"github.com/japanese-wolf/brain-stream/internal/scheduler"
	"github.com/japanese-wolf/brain-stream/internal/state"
	"github.com/japanese-wolf/brain-stream/internal/topology"
)

// Deps are the subsystems the API serves. Scheduler may be nil when the
// background collector is disabled.
type Deps struct {
	Topology  *topology.Engine
	Selector  *feed.Selector
	Collector *collector.Collector
	Registry  *plugins.Registry
	State     *state.Store
	Trending  *cooccur.Analyzer
	Scheduler *scheduler.Scheduler
	TechStack []string
}

// Server is the HTTP front of the hub.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	deps       Deps
	feedCfg    config.Feed
}

// New creates the server and wires its routes.
func New(cfg config.Server, feedCfg config.Feed, deps Deps) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		deps:    deps,
		feedCfg: feedCfg,
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // manual collection runs answer inline
	}

	return s
}

// setupMiddleware configures the middleware stack
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(5 * time.Minute))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))
}

// setupRoutes configures the endpoint set
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/feed", s.handleFeed)
		r.Route("/articles/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetArticle)
			r.Post("/action", s.handleAction)
		})
		r.Get("/topology", s.handleTopology)
		r.Get("/sources", s.handleSources)
		r.Post("/collect", s.handleCollect)
		r.Get("/trending", s.handleTrending)
	})
}

// Router exposes the handler for tests and embedding.
func (s *Server) Router() http.Handler {
	return s.router
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start serves until Shutdown. http.ErrServerClosed is swallowed: it is
// the normal shutdown signal.
func (s *Server) Start() error {
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
