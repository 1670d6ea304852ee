package web

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/routedb/internal/config"
	"github.com/saltyorg/routedb/internal/dbrouter"
	"github.com/saltyorg/routedb/internal/web/handlers"
	"github.com/saltyorg/routedb/internal/web/middleware"
)

var (
	reads  = dbrouter.On(dbrouter.Replica)
	writes = dbrouter.On(dbrouter.Primary)
	// unset target, the selector's Replica default applies
	defaultSelector = &dbrouter.Selector{}
)

// Server represents the web server
type Server struct {
	port       int
	bind       string
	allowedNet *net.IPNet
	timeouts   config.TimeoutConfig
	router     *chi.Mux
	handlers   *handlers.Handlers
	metrics    http.Handler
}

// NewServer creates a new web server. metrics serves /metrics when non-nil.
func NewServer(h *handlers.Handlers, cfg config.ServerConfig, timeouts config.TimeoutConfig, allowedNet *net.IPNet, metrics http.Handler) *Server {
	h.SetPingTimeout(timeouts.Ping)

	s := &Server{
		port:       cfg.Port,
		bind:       cfg.Bind,
		allowedNet: allowedNet,
		timeouts:   timeouts,
		router:     chi.NewRouter(),
		handlers:   h,
		metrics:    metrics,
	}

	s.setupRoutes()
	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	r := s.router
	h := s.handlers

	r.Use(chimiddleware.RequestID)
	// AllowSubnet must come BEFORE RealIP so we check the actual connection source
	r.Use(middleware.AllowSubnet(s.allowedNet))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(s.timeouts.Request))

	// Operational endpoints, no pool selection
	r.Get("/healthz", h.Healthz)
	r.Get("/version", h.Version)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	// Endpoints kept from the first version of the service
	r.With(middleware.Route(defaultSelector)).Get("/list", h.List)
	r.With(middleware.Route(writes)).Get("/create", h.Create)

	r.Route("/api", func(r chi.Router) {
		r.Get("/pools", h.Pools)

		r.Route("/tutorials", func(r chi.Router) {
			r.With(middleware.Route(reads)).Get("/", h.TutorialsList)
			r.With(middleware.Route(writes)).Post("/", h.TutorialCreate)

			r.Route("/{id}", func(r chi.Router) {
				r.With(middleware.Route(reads)).Get("/", h.TutorialGet)
				r.With(middleware.Route(writes)).Put("/", h.TutorialUpdate)
				r.With(middleware.Route(writes)).Delete("/", h.TutorialDelete)
				r.With(middleware.Route(writes)).Post("/publish", h.TutorialPublish)
			})
		})
	})
}

// Start starts the web server and shuts it down when ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	var addr string
	if s.bind != "" {
		addr = fmt.Sprintf("%s:%d", s.bind, s.port)
	} else {
		addr = fmt.Sprintf(":%d", s.port)
	}

	server := &http.Server{
		Addr:    addr,
		Handler: s.router,
		// ReadTimeout is for reading request body
		ReadTimeout: 15 * time.Second,
		// Chi middleware timeout protects handlers; leave headroom for the write
		WriteTimeout: s.timeouts.Request + 5*time.Second,
		// IdleTimeout for keep-alive connections between requests
		IdleTimeout: 120 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.timeouts.Shutdown)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}
