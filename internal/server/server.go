// Package server exposes the daemon's HTTP control surface: session
// commands, the job collection, retention settings, and the worker bridge.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	apperrors "github.com/jobforge/huntd/internal/errors"
	"github.com/jobforge/huntd/internal/server/handlers"
	ownmw "github.com/jobforge/huntd/internal/server/middleware"
	"github.com/jobforge/huntd/pkg/jobstore"
	"github.com/jobforge/huntd/pkg/session"
)

// Deps are the collaborators the HTTP surface drives.
type Deps struct {
	Session *session.Session
	Store   *jobstore.Store
	Mutator *jobstore.Mutator
	Bridge  *Bridge
	Log     *zap.Logger
	Version string
	// BaseProviders is merged into every start request so provider toggles
	// from configuration apply without the client knowing about them.
	BaseProviders map[string]bool
}

type Server struct {
	host   string
	port   int
	router chi.Router
	deps   Deps
	httpd  *http.Server
}

func New(host string, port int, deps Deps) *Server {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Bridge == nil {
		deps.Bridge = NewBridge(deps.Log)
	}

	s := &Server{host: host, port: port, deps: deps}
	s.router = s.buildRouter()
	return s
}

func (s *Server) Host() string { return s.host }

func (s *Server) Port() int { return s.port }

// Handler returns the root handler, exposed for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	ownmw.SetLogger(s.deps.Log)
	r.Use(ownmw.RequestID)
	r.Use(ownmw.Recovery)
	r.Use(middleware.RealIP)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		apperrors.WriteError(w, http.StatusNotFound, "NOT_FOUND", "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		apperrors.WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})

	r.Get("/health", handlers.HealthHandler)
	r.Get("/health/live", handlers.LivenessHandler)
	r.Get("/health/ready", handlers.ReadinessHandler)
	r.Get("/health/startup", handlers.StartupHandler)
	r.Get("/version", s.handleVersion)

	r.Route("/session", func(r chi.Router) {
		r.Get("/", s.handleSessionGet)
		r.Get("/log", s.handleSessionLog)
		r.Post("/start", s.handleSessionStart)
		r.Post("/selection", s.handleSessionSelection)
		r.Post("/approval", s.handleSessionApproval)
		r.Post("/cancel", s.handleSessionCancel)
		r.Post("/reset", s.handleSessionReset)
	})

	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", s.handleJobsList)
		r.Post("/{id}/hide", s.jobMutation(s.deps.Mutator.Hide))
		r.Post("/{id}/unhide", s.jobMutation(s.deps.Mutator.Unhide))
		r.Post("/{id}/applied", s.jobMutation(s.deps.Mutator.MarkApplied))
		r.Delete("/{id}", s.jobMutation(s.deps.Mutator.Delete))
	})

	r.Route("/confirmations", func(r chi.Router) {
		r.Get("/", s.handleConfirmationsList)
		r.Post("/", s.handleConfirmationCreate)
		r.Post("/{id}/confirm", s.handleConfirmationConfirm)
		r.Delete("/{id}", s.handleConfirmationDismiss)
	})

	r.Route("/storage", func(r chi.Router) {
		r.Get("/retention", s.handleRetentionGet)
		r.Put("/retention", s.handleRetentionPut)
	})

	// Worker-facing bridge slots: the daemon posts, the worker polls.
	r.Route("/job-selection", func(r chi.Router) {
		r.Post("/", s.deps.Bridge.postHandler(slotSelection))
		r.Get("/", s.deps.Bridge.getHandler(slotSelection))
	})
	r.Route("/application-approval", func(r chi.Router) {
		r.Post("/", s.deps.Bridge.postHandler(slotApproval))
		r.Get("/", s.deps.Bridge.getHandler(slotApproval))
	})

	return r
}

const (
	slotSelection = "job_selection"
	slotApproval  = "application_approval"
)

// Timeouts applied when none are configured.
const (
	defaultReadTimeout  = 30 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 120 * time.Second
)

// Start runs the HTTP server until the context is cancelled, then drains
// with the given shutdown timeout.
func (s *Server) Start(ctx context.Context, shutdownTimeout time.Duration) error {
	s.httpd = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.host, s.port),
		Handler:      s.router,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		IdleTimeout:  defaultIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.deps.Log.Info("HTTP server listening", zap.String("addr", s.httpd.Addr))
		if err := s.httpd.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpd.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return <-errCh
}
