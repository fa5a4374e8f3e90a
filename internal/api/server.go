// Copyright (c) 2026 ToeiRei
// cachesweep - remote cache purge orchestrator
// This source code is licensed under the MIT license found in the LICENSE file.

package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/toeirei/cachesweep/internal/api/handler"
	mw "github.com/toeirei/cachesweep/internal/api/middleware"
	"github.com/toeirei/cachesweep/internal/api/response"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Options configures a Server.
type Options struct {
	// AdminPIN guards host mutations when non-empty.
	AdminPIN string
	// Logger defaults to log.Default().
	Logger *log.Logger
	// Metrics serves /metrics; promhttp.Handler() when nil.
	Metrics http.Handler
	// DB backs /readyz; the check is skipped when nil.
	DB Pinger
}

type Server struct {
	router chi.Router
	logger *log.Logger
	hosts  handler.HostService
	opts   Options
}

// NewServer wires the routes onto svc.
func NewServer(svc handler.HostService, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = promhttp.Handler()
	}
	s := &Server{
		router: chi.NewRouter(),
		logger: opts.Logger,
		hosts:  svc,
		opts:   opts,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.Metrics)
}

func (s *Server) setupRoutes() {
	s.router.Handle("/metrics", s.opts.Metrics)
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)

	hosts := handler.NewHosts(s.hosts, s.logger)
	admin := mw.RequireAdmin(s.opts.AdminPIN)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/admin-required", handler.AdminRequired(s.opts.AdminPIN))

		r.Get("/hosts", hosts.List)
		r.Get("/hosts/{id}", hosts.Get)
		r.With(admin).Post("/hosts", hosts.Create)
		r.With(admin).Put("/hosts/{id}", hosts.Update)
		r.With(admin).Delete("/hosts/{id}", hosts.Delete)

		r.Post("/test/{id}", hosts.Test)
		r.Post("/clear/{id}", hosts.Clear)
		r.Get("/history", hosts.History)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	response.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.opts.DB == nil {
		response.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	if err := s.opts.DB.PingContext(ctx); err != nil {
		response.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "db": err.Error()})
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "db": "ok"})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Serve answers on ln until ctx ends, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.Info("http server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}
