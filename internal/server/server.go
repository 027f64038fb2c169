// Package server exposes script execution and the schema catalog over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/c4pt0r/sqlground/internal/catalog"
	"github.com/c4pt0r/sqlground/internal/config"
	"github.com/c4pt0r/sqlground/internal/runner"
	"github.com/c4pt0r/sqlground/internal/telemetry"
)

// Runner runs one script request. *runner.Runner satisfies it.
type Runner interface {
	Run(ctx context.Context, req runner.Request) (*runner.Result, error)
}

// Catalog serves schema trees. *catalog.Catalog satisfies it.
type Catalog interface {
	Tree(ctx context.Context, current string) (catalog.Tree, error)
	Invalidate()
}

// Server is the HTTP API.
type Server struct {
	runner   Runner
	catalog  Catalog
	cfg      config.Server
	database string
}

// New creates a server. database is the default schema for requests that do
// not name one.
func New(r Runner, c Catalog, cfg config.Server, database string) *Server {
	return &Server{runner: r, catalog: c, cfg: cfg, database: database}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewMux()
	r.Use(
		requestID,
		accessLog,
		middleware.Recoverer,
		cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type"},
			ExposedHeaders: []string{requestIDHeader},
			MaxAge:         300,
		}),
	)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/schema", s.handleSchema)
		r.With(middleware.RequestSize(s.cfg.MaxBodyBytes)).Post("/execute", s.handleExecute)
	})
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())
	return r
}

// Serve listens on the configured address until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.Routes(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		log.Info().Str("addr", s.cfg.Addr).Msg("sqlground server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		log.Debug().Msg("shutting down server")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}
