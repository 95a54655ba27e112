// Package server exposes the schema registry over a read-only JSON API.
package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"atlas/internal/config"
	"atlas/internal/schema"
	"atlas/pkg/dbmanager"
	"atlas/pkg/logger"
	"atlas/pkg/metrics"
	"atlas/pkg/middleware"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	cfg      *config.Config
	db       *dbmanager.DBManager
	registry *schema.Registry
	blocked  *middleware.IPBlockList
}

func New(cfg *config.Config, db *dbmanager.DBManager, registry *schema.Registry) *Server {
	return &Server{
		cfg:      cfg,
		db:       db,
		registry: registry,
		blocked:  middleware.NewIPBlockList(cfg.BlockedIPs...),
	}
}

// BlockList is the live deny list used by the IP blocker.
func (s *Server) BlockList() *middleware.IPBlockList { return s.blocked }

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(logger.Middleware)
	r.Use(metrics.Middleware)
	r.Use(middleware.Recoverer(s.cfg.Env))
	r.Use(middleware.IPBlocker(s.blocked))

	if s.cfg.RateRequests > 0 {
		window := time.Duration(s.cfg.RateWindowSec) * time.Second
		r.Use(httprate.LimitByIP(s.cfg.RateRequests, window))
	} else {
		slog.Info("rate limiting disabled")
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
	}))

	r.Get("/health", s.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		if s.cfg.JWTSecret != "" {
			r.Use(middleware.JWTAuth(s.cfg.JWTSecret))
		}
		r.Get("/", s.listMappers)
		r.Get("/{mapper}", s.fetch)
		r.Get("/{mapper}/{id}", s.find)
		r.Get("/{mapper}/{id}/{relation}", s.related)
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	db, _ := s.db.GetDefault()
	if db == nil || db.PingContext(r.Context()) != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("DOWN: Database Error"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// Run serves until ctx is cancelled and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := s.cfg.Port
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = ":" + addr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server ready", "addr", addr)
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
