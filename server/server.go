// Package server exposes the discovery pipeline over HTTP: source registration and inspection,
// client keywords and flags, on-demand ingestion runs and prometheus metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/rest/logger"
	"github.com/go-pkgz/routegroup"

	"github.com/umputun/discovery/pkg/domain"
	"github.com/umputun/discovery/pkg/events"
	"github.com/umputun/discovery/pkg/scheduler"
)

//go:generate moq -out mocks/config.go -pkg mocks -skip-ensure -fmt goimports . ConfigProvider
//go:generate moq -out mocks/store.go -pkg mocks -skip-ensure -fmt goimports . Store
//go:generate moq -out mocks/scheduler.go -pkg mocks -skip-ensure -fmt goimports . Scheduler

// Server represents HTTP server instance
type Server struct {
	config    ConfigProvider
	store     Store
	scheduler Scheduler
	events    Publisher
	metrics   http.Handler
	version   string
	debug     bool

	lock       sync.Mutex
	httpServer *http.Server
	router     *routegroup.Bundle
}

// Store is the persistence used by the API, RepositoryAdapter in production
type Store interface {
	CreateSource(ctx context.Context, src *domain.Source) error
	GetSource(ctx context.Context, id int64) (*domain.Source, error)
	ListRuns(ctx context.Context, sourceID int64, limit int) ([]domain.IngestRun, error)
	SetKeywords(ctx context.Context, clientID string, keywords []string) ([]string, error)
	SetFlag(ctx context.Context, clientID, flag string, enabled bool) error
}

// Scheduler interface for on-demand ingestion
type Scheduler interface {
	RunNow(ctx context.Context, opts scheduler.RunOptions) (scheduler.RunStats, error)
}

// Publisher accepts events
type Publisher interface {
	Publish(evt events.Event)
}

// ConfigProvider provides server configuration
type ConfigProvider interface {
	GetServerConfig() (listen string, timeout time.Duration)
}

// Options holds optional server parts
type Options struct {
	Events  Publisher    // keyword updates are published here
	Metrics http.Handler // served on /metrics if set
	Version string
	Debug   bool
}

// New initializes a new server instance
func New(cfg ConfigProvider, store Store, sched Scheduler, opts Options) *Server {
	s := &Server{
		config:    cfg,
		store:     store,
		scheduler: sched,
		events:    opts.Events,
		metrics:   opts.Metrics,
		version:   opts.Version,
		debug:     opts.Debug,
		router:    routegroup.New(http.NewServeMux()),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Run starts the HTTP server and handles graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	listen, timeout := s.config.GetServerConfig()
	log.Printf("[INFO] starting server on %s", listen)

	s.lock.Lock()
	s.httpServer = &http.Server{
		Addr:              listen,
		Handler:           s.router,
		ReadHeaderTimeout: timeout,
		ReadTimeout:       timeout,
		// ingestion runs triggered over the api may take a while
		WriteTimeout: 10 * timeout,
	}
	s.lock.Unlock()

	go func() {
		<-ctx.Done()
		log.Printf("[INFO] shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		s.lock.Lock()
		defer s.lock.Unlock()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] server shutdown error: %v", err)
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}

	return nil
}

// setupMiddleware configures standard middleware for the server
func (s *Server) setupMiddleware() {
	s.router.Use(rest.AppInfo("discovery", "umputun", s.version))
	s.router.Use(rest.Ping)

	if s.debug {
		s.router.Use(logger.New(logger.Log(lgr.Default()), logger.Prefix("[DEBUG]")).Handler)
	}

	s.router.Use(rest.Recoverer(lgr.Default()))
	s.router.Use(rest.Throttle(100))
	s.router.Use(rest.SizeLimit(1024 * 1024)) // 1MB
}

// setupRoutes configures application routes
func (s *Server) setupRoutes() {
	s.router.Mount("/api/v1").Route(func(r *routegroup.Bundle) {
		r.HandleFunc("GET /status", s.statusHandler)
		r.HandleFunc("POST /ingest/run", s.runIngestionHandler)
		r.HandleFunc("POST /sources", s.createSourceHandler)
		r.HandleFunc("GET /sources/{id}", s.getSourceHandler)
		r.HandleFunc("POST /clients/{client}/keywords", s.setKeywordsHandler)
		r.HandleFunc("PUT /clients/{client}/flags/{flag}", s.setFlagHandler)
	})

	if s.metrics != nil {
		s.router.Handle("GET /metrics", s.metrics)
	}
}
