// Package control exposes the session registry over a local HTTP JSON API:
// starting and inspecting sessions, single-stepping the decision loop, and
// executing operator-supplied plans. With an auth secret configured every
// API route requires an HS256 bearer token; without one the API is open and
// belongs on loopback.
package control

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wingman-cli/internal/config"
	"github.com/xkilldash9x/wingman-cli/internal/session"
)

const (
	requestTimeout  = 120 * time.Second
	shutdownTimeout = 30 * time.Second
)

// Server hosts the control API over one session registry.
type Server struct {
	cfg      config.ControlConfig
	registry *session.Registry
	handlers *Handlers
	httpSrv  *http.Server
	logger   *zap.Logger
}

// NewServer wires the control server. The factory builds sessions for
// POST /sessions; pass nil for a read-only server over pre-registered
// sessions.
func NewServer(cfg config.ControlConfig, registry *session.Registry, factory SessionFactory, logger *zap.Logger) *Server {
	log := logger.Named("control")
	return &Server{
		cfg:      cfg,
		registry: registry,
		handlers: NewHandlers(registry, factory, log),
		logger:   log,
	}
}

// Router assembles the HTTP mux. The health probe is always public; the
// /api/v1 group takes bearer auth when a secret is configured.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		if s.cfg.AuthSecret != "" {
			r.Use(bearerAuth(s.cfg.AuthSecret, s.logger))
		}
		s.handlers.RegisterRoutes(r)
	})
	return r
}

// Start serves the control API until ctx is canceled, then drains in-flight
// requests and closes every registered session. The listen error, if any,
// is returned after shutdown completes.
func (s *Server) Start(ctx context.Context) error {
	if s.cfg.AuthSecret == "" {
		s.logger.Warn("Control API is unauthenticated; keep the listener on loopback",
			zap.String("listen_addr", s.cfg.ListenAddr))
	}
	s.httpSrv = &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Control API listening", zap.String("listen_addr", s.cfg.ListenAddr))
		err := s.httpSrv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		// Listener died before shutdown was requested.
		s.closeSessions()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Control API shutdown error", zap.Error(err))
	}
	s.closeSessions()
	s.logger.Info("Control API stopped")
	return <-errCh
}

func (s *Server) closeSessions() {
	if err := s.registry.CloseAll(); err != nil {
		s.logger.Error("Session shutdown error", zap.Error(err))
	}
}
