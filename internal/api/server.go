package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/auditsnap/internal/audit"
	"github.com/JakeFAU/auditsnap/internal/auth"
	"github.com/JakeFAU/auditsnap/internal/lifecycle"
	"github.com/JakeFAU/auditsnap/internal/metrics"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultMaxWatchWait   = time.Minute
)

// Lifecycle is the controller surface the handlers drive.
type Lifecycle interface {
	Submit(ctx context.Context, sess *audit.Session, rawURL string) (audit.Handle, error)
	Advance(ctx context.Context, reportID string, to audit.Status, data *audit.ReportData) error
	Fail(ctx context.Context, reportID, reason string) error
	FetchOwned(ctx context.Context, sess *audit.Session, reportID string) (audit.Report, error)
	History(ctx context.Context, sess *audit.Session, limit, offset int) ([]audit.Snapshot, error)
	Subscription(ctx context.Context, sess *audit.Session) (audit.Subscription, error)
	Await(ctx context.Context, reportID string, opts lifecycle.WatchOptions) (audit.Snapshot, error)
}

// Config wires the server's collaborators.
type Config struct {
	Lifecycle Lifecycle
	// Sessions resolves bearer tokens into request sessions.
	Sessions func(http.Handler) http.Handler
	// CallbackAPIKey guards the generator callback. Empty disables the route.
	CallbackAPIKey string
	// Ready reports downstream health for /readyz. Nil means always ready.
	Ready          func(ctx context.Context) error
	Clock          audit.Clock
	RequestTimeout time.Duration
	MaxWatchWait   time.Duration
	Logger         *zap.Logger
}

// Server wires HTTP handlers to the lifecycle controller.
type Server struct {
	router       chi.Router
	lifecycle    Lifecycle
	ready        func(ctx context.Context) error
	clock        audit.Clock
	maxWatchWait time.Duration
	logger       *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Lifecycle == nil {
		return nil, errors.New("api requires a lifecycle controller")
	}
	if cfg.Clock == nil {
		return nil, errors.New("api requires a clock")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("api requires a session middleware")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.MaxWatchWait <= 0 {
		cfg.MaxWatchWait = defaultMaxWatchWait
	}
	s := &Server{
		lifecycle:    cfg.Lifecycle,
		ready:        cfg.Ready,
		clock:        cfg.Clock,
		maxWatchWait: cfg.MaxWatchWait,
		logger:       cfg.Logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(cfg.Logger))
	r.Use(recoverMiddleware(cfg.Logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(cfg.Sessions)
		// Long-polls are bounded by maxWatchWait rather than the request timeout.
		r.Get("/reports/{report_id}/watch", s.watchReport)
		r.Group(func(r chi.Router) {
			r.Use(timeoutMiddleware(cfg.RequestTimeout))
			r.Post("/reports", s.submitReport)
			r.Get("/reports", s.listReports)
			r.Get("/reports/{report_id}", s.getReport)
			r.Get("/reports/{report_id}/download", s.downloadReport)
			r.Get("/subscription", s.getSubscription)
		})
	})

	if cfg.CallbackAPIKey != "" {
		r.Route("/internal/v1", func(r chi.Router) {
			r.Use(auth.RequireAPIKey(cfg.CallbackAPIKey))
			r.Use(timeoutMiddleware(cfg.RequestTimeout))
			r.Post("/reports/{report_id}/advance", s.advanceReport)
		})
	}

	s.router = r
	return s, nil
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			s.writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
