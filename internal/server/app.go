// Package server builds the application's dependency graph from config and
// runs the HTTP server alongside the in-process generator workers.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/auditsnap/internal/api"
	"github.com/JakeFAU/auditsnap/internal/audit"
	"github.com/JakeFAU/auditsnap/internal/auth"
	"github.com/JakeFAU/auditsnap/internal/clock/system"
	"github.com/JakeFAU/auditsnap/internal/config"
	"github.com/JakeFAU/auditsnap/internal/dispatcher"
	headlessfetcher "github.com/JakeFAU/auditsnap/internal/fetcher/headless"
	"github.com/JakeFAU/auditsnap/internal/id/uuid"
	"github.com/JakeFAU/auditsnap/internal/lifecycle"
	"github.com/JakeFAU/auditsnap/internal/logging"
	"github.com/JakeFAU/auditsnap/internal/metrics"
	"github.com/JakeFAU/auditsnap/internal/progress"
	queuememory "github.com/JakeFAU/auditsnap/internal/queue/memory"
	"github.com/JakeFAU/auditsnap/internal/telemetry"
)

// Version is reported as the service.version resource attribute.
var Version = "dev"

const shutdownTimeout = 15 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	clock  audit.Clock

	apiServer *api.Server
	local     *dispatcher.Local
	hub       *progress.Hub
	queue     *queuememory.Queue

	pool         *pgxpool.Pool
	redis        *goredis.Client
	pubsubClient *pubsub.Client
	topic        *pubsub.Topic
	closers      []func() error
	headless     *headlessfetcher.Fetcher

	tracerShutdown func(context.Context) error
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)

	shutdown, err := telemetry.Init(ctx, logging.ServiceName, Version)
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}
	metrics.Init()

	app, err := build(ctx, cfg, logger, prometheus.DefaultRegisterer)
	if err != nil {
		_ = shutdown(ctx)
		return nil, err
	}
	app.tracerShutdown = shutdown
	return app, nil
}

func build(ctx context.Context, cfg config.Config, logger *zap.Logger, reg prometheus.Registerer) (app *App, err error) {
	app = &App{cfg: cfg, logger: logger, clock: system.New()}
	defer func() {
		if err != nil {
			app.closeInfrastructure(context.Background())
		}
	}()

	logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("store", cfg.Store.Driver),
		zap.String("quota", cfg.Quota.Driver),
		zap.String("dispatch", cfg.Dispatch.Driver),
		zap.String("generator", cfg.Generator.Driver),
		zap.String("archive", cfg.Archive.Driver),
	)

	reports, quota, err := setupStores(ctx, app)
	if err != nil {
		return nil, err
	}
	blobs, err := setupArchive(ctx, app)
	if err != nil {
		return nil, err
	}
	events, err := setupProgress(app, reports, blobs, reg)
	if err != nil {
		return nil, err
	}
	dispatch, err := setupDispatch(ctx, app)
	if err != nil {
		return nil, err
	}

	ctrl, err := lifecycle.New(lifecycle.Config{
		Reports:       reports,
		Quota:         quota,
		Dispatcher:    dispatch,
		Clock:         app.clock,
		IDs:           uuid.New(),
		Events:        events,
		Logger:        logger.Named("lifecycle"),
		AutoProvision: cfg.Quota.AutoProvision,
		StarterAudits: cfg.Quota.StarterAudits,
		Watch: lifecycle.WatchOptions{
			Interval: cfg.WatchInterval(),
			MaxWait:  cfg.WatchMaxWait(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("lifecycle init failed: %w", err)
	}

	if app.local != nil {
		if err := setupWorkers(app, ctrl); err != nil {
			return nil, err
		}
	}

	tokens, err := auth.NewTokens(cfg.Auth.JWTSecret, time.Hour)
	if err != nil {
		return nil, fmt.Errorf("auth init failed: %w", err)
	}
	app.apiServer, err = api.NewServer(api.Config{
		Lifecycle:      ctrl,
		Sessions:       tokens.Middleware,
		CallbackAPIKey: cfg.Auth.CallbackAPIKey,
		Ready:          app.ready,
		Clock:          app.clock,
		RequestTimeout: time.Duration(cfg.Server.RequestTimeoutSeconds) * time.Second,
		MaxWatchWait:   cfg.WatchMaxWait(),
		Logger:         logger.Named("api"),
	})
	if err != nil {
		return nil, fmt.Errorf("api init failed: %w", err)
	}
	return app, nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// ready pings the stateful backends.
func (a *App) ready(ctx context.Context) error {
	var errs []error
	if a.pool != nil {
		if err := a.pool.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("postgres: %w", err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Run starts the application and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workersDone := make(chan struct{})
	if a.local != nil {
		go func() {
			defer close(workersDone)
			a.logger.Info("dispatcher started", zap.Int("workers", a.cfg.Dispatch.Concurrency))
			a.local.Run(ctx)
		}()
	} else {
		close(workersDone)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	if a.queue != nil {
		a.queue.Close()
	}
	select {
	case <-workersDone:
	case <-shutdownCtx.Done():
		a.logger.Warn("workers did not stop before the shutdown deadline")
	}

	return a.Close(shutdownCtx)
}

// Close gracefully shuts down the application.
func (a *App) Close(ctx context.Context) error {
	a.closeInfrastructure(ctx)
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.headless != nil {
		a.headless.Close()
	}
	if a.topic != nil {
		a.topic.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			a.logger.Warn("client close failed", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("redis client close failed", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
}
