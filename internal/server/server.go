// Package server provides the HTTP API for kusari.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/kusari/internal/chain"
	"github.com/hyperjump/kusari/internal/config"
	"github.com/hyperjump/kusari/internal/lexical"
	"github.com/hyperjump/kusari/internal/search"
	"github.com/hyperjump/kusari/internal/store"
	"github.com/hyperjump/kusari/pkg/utils"
)

// WatchService manages watched directories at runtime.
type WatchService interface {
	Directories() []string
	AddDirectory(path string, syncExisting bool) error
	RemoveDirectory(path string) error
}

// Deps are the components the API serves. Lexical and Watch may be nil.
type Deps struct {
	Store   *store.Store
	Search  *search.Service
	Chain   *chain.Reasoner
	Lexical *lexical.BleveIndex
	Watch   WatchService
	Config  *config.Config

	// ConfigPath, when set, is rewritten after watch directory changes.
	ConfigPath string
}

// Server is the HTTP server for the kusari API.
type Server struct {
	deps   Deps
	logger *zap.Logger
	server *http.Server

	configMu sync.Mutex
}

// NewServer creates a server with the given dependencies.
func NewServer(deps Deps, logger *zap.Logger) *Server {
	return &Server{deps: deps, logger: utils.LoggerOrNop(logger)}
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/items", s.handleListItems)
		r.Post("/items", s.handleInsertItem)
		r.Post("/items/batch", s.handleInsertBatch)
		r.Get("/items/{id}", s.handleGetItem)
		r.Delete("/items/{id}", s.handleDeleteItem)
		r.Post("/rebuild", s.handleRebuild)
		r.Post("/search", s.handleSearch)
		r.Post("/chain", s.handleChain)
		r.Get("/find", s.handleFind)
		r.Get("/watch/directories", s.handleWatchDirectoriesList)
		r.Post("/watch/directories", s.handleWatchDirectoriesAdd)
		r.Delete("/watch/directories", s.handleWatchDirectoriesRemove)
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func (s *Server) addr() string {
	cfg := s.deps.Config.Server
	return fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
}

func (s *Server) prepare() *http.Server {
	s.server = &http.Server{
		Addr:              s.addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.server
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	srv := s.prepare()
	s.logger.Info("starting server", zap.String("addr", srv.Addr))
	return srv.ListenAndServe()
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := s.prepare()
	s.logger.Info("starting server", zap.String("addr", srv.Addr))
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Stop(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
