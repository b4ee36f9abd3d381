// Package ops exposes the notifier daemon's operational HTTP surface:
// health, task status, and manual task triggers. It is deliberately small
// and unauthenticated; it binds to an internal port and is not the product
// API.
package ops

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"cinelog/internal/scheduler"
	"cinelog/internal/types"
)

// healthTimeout bounds the database ping on /healthz so a hung pool cannot
// hang the probe.
const healthTimeout = 5 * time.Second

// TaskRunner abstracts the scheduler runner operations the ops API needs.
type TaskRunner interface {
	// Status returns a snapshot of every registered task.
	Status() []scheduler.TaskStatus
	// RunNow triggers an immediate execution of the named task.
	RunNow(name string) error
}

// Pinger abstracts database liveness. Satisfied by pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the ops HTTP server.
type Server struct {
	runner TaskRunner
	db     Pinger
	logger *slog.Logger
	router *chi.Mux
}

// ServerConfig holds the configuration for creating an ops Server.
type ServerConfig struct {
	Runner TaskRunner
	DB     Pinger
	Logger *slog.Logger
}

// NewServer creates the ops server and mounts its routes.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		runner: cfg.Runner,
		db:     cfg.DB,
		logger: logger,
		router: chi.NewRouter(),
	}

	s.router.Use(middleware.Recoverer)
	s.router.Use(s.requestLogger)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/tasks", s.handleTasks)
	s.router.Post("/tasks/{name}/run", s.handleRunTask)

	return s
}

// Handler returns the http.Handler for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// requestLogger logs each request with method, path, status, and duration.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.InfoContext(r.Context(), "ops request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).String(),
		)
	})
}

// handleHealth answers GET /healthz. Healthy means the database responds to
// a ping within the timeout.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := s.db.Ping(ctx); err != nil {
		s.logger.ErrorContext(r.Context(), "health check failed",
			"error", err,
		)
		Error(w, types.NewAppError(types.ErrCodeInternalDB, "database unreachable", err))
		return
	}

	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleTasks answers GET /tasks with the runner's task snapshots.
func (s *Server) handleTasks(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, APIResponse{Data: s.runner.Status()})
}

// handleRunTask answers POST /tasks/{name}/run. A successful trigger is
// asynchronous: 202 means the run started, not that it finished.
func (s *Server) handleRunTask(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := s.runner.RunNow(name); err != nil {
		Error(w, err)
		return
	}

	s.logger.InfoContext(r.Context(), "manual task trigger accepted",
		"task", name,
	)
	JSON(w, http.StatusAccepted, APIResponse{Data: map[string]string{
		"task":   name,
		"status": "triggered",
	}})
}
