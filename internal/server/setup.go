package server

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/auditsnap/internal/audit"
	"github.com/JakeFAU/auditsnap/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/auditsnap/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/auditsnap/internal/fetcher/headless"
	"github.com/JakeFAU/auditsnap/internal/generator/heuristic"
	"github.com/JakeFAU/auditsnap/internal/generator/llm"
	"github.com/JakeFAU/auditsnap/internal/hash/sha256"
	"github.com/JakeFAU/auditsnap/internal/headless/detector"
	"github.com/JakeFAU/auditsnap/internal/lifecycle"
	"github.com/JakeFAU/auditsnap/internal/policy/blocklist"
	"github.com/JakeFAU/auditsnap/internal/policy/ratelimit"
	"github.com/JakeFAU/auditsnap/internal/progress"
	progresssinks "github.com/JakeFAU/auditsnap/internal/progress/sinks"
	gcppublisher "github.com/JakeFAU/auditsnap/internal/publisher/pubsub"
	queuememory "github.com/JakeFAU/auditsnap/internal/queue/memory"
	gcsstorage "github.com/JakeFAU/auditsnap/internal/storage/gcs"
	localstorage "github.com/JakeFAU/auditsnap/internal/storage/local"
	memorystorage "github.com/JakeFAU/auditsnap/internal/storage/memory"
	pgstore "github.com/JakeFAU/auditsnap/internal/storage/postgres"
	redisstore "github.com/JakeFAU/auditsnap/internal/storage/redis"
	"github.com/JakeFAU/auditsnap/internal/worker"
)

func setupStores(ctx context.Context, app *App) (audit.ReportStore, audit.QuotaStore, error) {
	cfg := app.cfg
	if cfg.Store.Driver == "postgres" || cfg.Quota.Driver == "postgres" {
		pool, err := pgstore.NewPool(ctx, pgstore.PoolConfig{
			DSN:      cfg.DB.DSN,
			MaxConns: cfg.DB.MaxConns,
			MinConns: cfg.DB.MinConns,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("postgres init failed: %w", err)
		}
		app.pool = pool
		if cfg.DB.Migrate {
			if err := pgstore.Migrate(pool); err != nil {
				return nil, nil, fmt.Errorf("postgres migrate failed: %w", err)
			}
			app.logger.Info("postgres schema migrated")
		}
	}

	var reports audit.ReportStore
	switch cfg.Store.Driver {
	case "postgres":
		store, err := pgstore.NewReportStore(app.pool)
		if err != nil {
			return nil, nil, fmt.Errorf("report store init failed: %w", err)
		}
		reports = store
		app.logger.Info("using postgres report store")
	default:
		reports = memorystorage.NewReportStore()
		app.logger.Info("using in-memory report store")
	}

	var quota audit.QuotaStore
	switch cfg.Quota.Driver {
	case "postgres":
		store, err := pgstore.NewQuotaStore(app.pool)
		if err != nil {
			return nil, nil, fmt.Errorf("quota store init failed: %w", err)
		}
		quota = store
		app.logger.Info("using postgres quota store")
	case "redis":
		client, err := redisstore.NewClient(ctx, redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("redis init failed: %w", err)
		}
		app.redis = client
		store, err := redisstore.NewQuotaStore(client)
		if err != nil {
			return nil, nil, fmt.Errorf("quota store init failed: %w", err)
		}
		quota = store
		app.logger.Info("using redis quota store", zap.String("addr", cfg.Redis.Addr))
	default:
		quota = memorystorage.NewQuotaStore()
		app.logger.Info("using in-memory quota store")
	}
	return reports, quota, nil
}

func setupArchive(ctx context.Context, app *App) (audit.BlobStore, error) {
	cfg := app.cfg.Archive
	switch cfg.Driver {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		app.closers = append(app.closers, client.Close)
		blobs, err := gcsstorage.New(client, gcsstorage.Config{Bucket: cfg.Bucket, Prefix: cfg.Prefix})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		app.logger.Info("archiving reports to GCS", zap.String("bucket", cfg.Bucket))
		return blobs, nil
	case "local":
		blobs, err := localstorage.New(localstorage.Config{BaseDir: cfg.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		app.logger.Info("archiving reports to local disk", zap.String("path", cfg.BaseDir))
		return blobs, nil
	case "memory":
		app.logger.Info("archiving reports in memory")
		return memorystorage.NewBlobStore(), nil
	default:
		app.logger.Info("report archive disabled")
		return nil, nil
	}
}

func setupProgress(
	app *App,
	reports audit.ReportStore,
	blobs audit.BlobStore,
	reg prometheus.Registerer,
) (progress.Emitter, error) {
	cfg := app.cfg.Progress
	var sinkList []progress.Sink
	if cfg.LogEnabled {
		sinkList = append(sinkList, progresssinks.NewLogSink(app.logger.Named("lifecycle_log")))
	}
	promSink, err := progresssinks.NewPrometheusSink(reg)
	if err != nil {
		return nil, fmt.Errorf("prometheus sink init failed: %w", err)
	}
	sinkList = append(sinkList, promSink)
	if blobs != nil {
		archive, err := progresssinks.NewArchiveSink(reports, blobs, sha256.New(), app.logger.Named("archive"))
		if err != nil {
			return nil, fmt.Errorf("archive sink init failed: %w", err)
		}
		sinkList = append(sinkList, archive)
	}

	hubCfg := progress.Config{
		BufferSize:     cfg.BufferSize,
		MaxBatchEvents: cfg.MaxBatchEvents,
		MaxBatchWait:   time.Duration(cfg.MaxBatchWaitMs) * time.Millisecond,
		SinkTimeout:    time.Duration(cfg.SinkTimeoutMs) * time.Millisecond,
		Logger:         app.logger.Named("lifecycle_hub"),
	}
	app.hub = progress.NewHub(hubCfg, sinkList...)
	app.logger.Info("lifecycle hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
	)
	return app.hub, nil
}

func setupDispatch(ctx context.Context, app *App) (audit.Dispatcher, error) {
	cfg := app.cfg
	if cfg.Dispatch.Driver == "pubsub" {
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client init failed: %w", err)
		}
		app.pubsubClient = client
		app.topic = client.Topic(cfg.PubSub.Topic)
		disp, err := dispatcher.NewPublishing(gcppublisher.New(app.topic), cfg.PubSub.Topic)
		if err != nil {
			return nil, fmt.Errorf("publishing dispatcher init failed: %w", err)
		}
		app.logger.Info("dispatching to Pub/Sub",
			zap.String("project", cfg.PubSub.ProjectID),
			zap.String("topic", cfg.PubSub.Topic),
		)
		return disp, nil
	}
	app.queue = queuememory.NewQueue(cfg.Dispatch.QueueDepth)
	app.local = dispatcher.New(app.queue, nil, time.Duration(cfg.Dispatch.EnqueueTimeoutMs)*time.Millisecond)
	app.logger.Info("dispatching to local workers",
		zap.Int("queue_depth", cfg.Dispatch.QueueDepth),
		zap.Int("concurrency", cfg.Dispatch.Concurrency),
	)
	return app.local, nil
}

func setupGenerator(app *App) (audit.Generator, error) {
	cfg := app.cfg
	if cfg.Generator.Driver == "llm" {
		gen, err := llm.New(llm.Config{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
		}, app.clock, app.logger.Named("llm"))
		if err != nil {
			return nil, fmt.Errorf("llm generator init failed: %w", err)
		}
		app.logger.Info("using llm generator", zap.String("model", cfg.LLM.Model))
		return gen, nil
	}

	gc := cfg.Generator
	opts := heuristic.Options{
		Fetcher: collyfetcher.New(collyfetcher.Config{
			UserAgent:     gc.UserAgent,
			RespectRobots: gc.RespectRobots,
			Timeout:       time.Duration(gc.FetchTimeoutSec) * time.Second,

			AllowPrivateNetworks: gc.AllowPrivateNetworks,
		}),
		Detector: detector.NewHeuristic(gc.RenderThreshold),
		Limiter: ratelimit.New(ratelimit.Config{
			DefaultRPS:   gc.DomainRPS,
			DefaultBurst: gc.DomainBurst,
		}),
		Blocklist: blocklist.New(gc.BlockedDomains),
		Clock:     app.clock,
		Logger:    app.logger.Named("heuristic"),

		AllowPrivateNetworks: gc.AllowPrivateNetworks,
	}
	if gc.HeadlessEnabled {
		headless, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       gc.HeadlessMax,
			UserAgent:         gc.UserAgent,
			NavigationTimeout: time.Duration(gc.HeadlessNavSec) * time.Second,
		})
		if err != nil {
			app.logger.Warn("headless fetcher init failed, continuing without it", zap.Error(err))
		} else {
			app.headless = headless
			opts.Headless = headless
			app.logger.Info("headless fetcher enabled", zap.Int("max_parallel", gc.HeadlessMax))
		}
	}
	gen, err := heuristic.New(opts)
	if err != nil {
		return nil, fmt.Errorf("heuristic generator init failed: %w", err)
	}
	app.logger.Info("using heuristic generator",
		zap.String("user_agent", gc.UserAgent),
		zap.Bool("respect_robots", gc.RespectRobots),
		zap.Float64("domain_rps", gc.DomainRPS),
	)
	return gen, nil
}

func setupWorkers(app *App, ctrl *lifecycle.Controller) error {
	gen, err := setupGenerator(app)
	if err != nil {
		return err
	}
	workerCfg := worker.Config{
		Timeout: app.cfg.GeneratorTimeout(),
		Retry:   audit.NewExponentialRetryPolicy(app.cfg.Dispatch.CallbackMaxAttempts),
	}
	for i := range app.cfg.Dispatch.Concurrency {
		app.local.Attach(worker.New(
			app.queue,
			ctrl,
			gen,
			workerCfg,
			app.logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	return nil
}
