package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/framekeep/framekeep/internal/asset"
	"github.com/framekeep/framekeep/internal/config"
	"github.com/framekeep/framekeep/internal/enrich"
	"github.com/framekeep/framekeep/internal/health"
	"github.com/framekeep/framekeep/internal/jobqueue"
	"github.com/framekeep/framekeep/internal/logger"
	"github.com/framekeep/framekeep/internal/metrics"
	"github.com/framekeep/framekeep/internal/processor"
	"github.com/framekeep/framekeep/internal/processor/image"
	"github.com/framekeep/framekeep/internal/processor/video"
	"github.com/framekeep/framekeep/internal/search"
	"github.com/framekeep/framekeep/internal/storage"
	"github.com/framekeep/framekeep/internal/tracing"
	"github.com/framekeep/framekeep/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the background worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func serve() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(cfg.LogLevel)
	log := logger.Default()
	log.Info("configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zerologger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	shutdownTracing, err := tracing.Init(ctx, &tracing.Config{
		ServiceName:    "framekeep-worker",
		ServiceVersion: version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.TracingEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	log.Info("connecting to database")
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	log.Info("database connected")

	log.Info("connecting to object storage")
	store, err := storage.NewMinIOStorage(&storage.Config{
		Endpoint:  cfg.MinIOEndpoint,
		AccessKey: cfg.MinIOAccessKey,
		SecretKey: cfg.MinIOSecretKey,
		UseSSL:    cfg.MinIOUseSSL,
		Region:    cfg.MinIORegion,
	})
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	instrumentedStore := metrics.NewInstrumentedStorage(store)
	log.Info("object storage connected")

	log.Info("connecting to redis")
	redisOpt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to parse redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOpt)
	defer func() { _ = redisClient.Close() }()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	log.Info("redis connected")

	workerID := workerIdentity()
	metrics.SetAppInfo(version, cfg.Environment, "worker")

	log.Info("registering processors")
	procCfg := processor.DefaultConfig()
	procCfg.TempDir = cfg.TempDir
	procRegistry := processor.NewRegistry()
	procRegistry.Register("thumbnail", image.NewThumbnailProcessor(procCfg))
	procRegistry.Register("preview", image.NewPreviewProcessor(procCfg))
	procRegistry.Register("metadata", image.NewMetadataProcessor(procCfg))
	procRegistry.Register("first_frame", image.NewFirstFrameProcessor(procCfg))
	log.Info("processor registry ready", "count", len(procRegistry.List()))

	extractor := video.NewFFmpegExtractor(&video.Config{
		FFmpegPath:  cfg.FFmpegPath,
		FFprobePath: cfg.FFprobePath,
		TempDir:     cfg.TempDir,
	})
	if !extractor.IsAvailable() {
		log.Warn("ffmpeg not found, video jobs will fail until it is installed")
	}

	jobStore := jobqueue.NewPGStore(pool, jobqueue.RetryPolicy{
		BaseDelay: cfg.RetryBaseDelay,
		CapDelay:  cfg.RetryCapDelay,
	})
	guard := jobqueue.NewEnqueueGuard(redisClient, cfg.EnqueueGuardTTL)

	deps := &worker.Dependencies{
		Assets:           asset.NewPGRepo(pool),
		Storage:          instrumentedStore,
		Registry:         procRegistry,
		Video:            extractor,
		Geocoder:         enrich.NewGeocodeClient(cfg.GeocodeBaseURL, cfg.GeocodeTimeout),
		Vision:           enrich.NewVisionClient(cfg.VisionBaseURL, cfg.VisionTimeout),
		Indexer:          search.NewIndexer(redisClient),
		Planner:          worker.NewPlanner(jobStore, guard),
		DerivativeBucket: cfg.DerivativeBucket,
		MinConfidence:    cfg.MinConfidence,
	}

	router := worker.NewRouter(zerologger)
	worker.RegisterHandlers(router, deps)
	log.Info("handlers registered", "count", len(router.Types()))

	checker := health.NewChecker(5 * time.Second)
	checker.Register("database", func(ctx context.Context) error { return pool.Ping(ctx) })
	checker.Register("storage", store.HealthCheck)
	checker.Register("redis", func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })

	policies, err := config.LoadQueuePolicies(cfg.QueuesFile)
	if err != nil {
		return fmt.Errorf("failed to load queue policies: %w", err)
	}
	queueCfgs := make([]worker.PollerConfig, 0, len(policies))
	for _, p := range policies {
		queueCfgs = append(queueCfgs, worker.PollerConfig{
			Queue:        jobqueue.Queue(p.Name),
			Concurrency:  p.Concurrency,
			PollInterval: p.PollInterval,
			JobTimeout:   p.JobTimeout,
		})
	}

	orch := worker.NewOrchestrator(jobStore, router, checker, worker.OrchestratorConfig{
		WorkerID:        workerID,
		Queues:          queueCfgs,
		ShutdownTimeout: cfg.ShutdownTimeout,
		StuckJobWindow:  cfg.StuckJobWindow,
	}, zerologger)

	if err := orch.Start(ctx); err != nil {
		return fmt.Errorf("failed to start orchestrator: %w", err)
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsMux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		results := orch.CheckHealth(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if !health.Healthy(results) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(results)
	})
	metricsMux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(orch.GetStatus())
	})

	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: metricsMux,
	}
	go func() {
		log.Info("metrics server starting", "port", cfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server error", "error", err)
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	sig := <-shutdown
	log.Info("shutdown signal received", "signal", sig.String())

	stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout+5*time.Second)
	defer stopCancel()
	if err := orch.Stop(stopCtx); err != nil {
		log.Error("orchestrator stop error", "error", err)
	}
	if err := metricsServer.Shutdown(stopCtx); err != nil {
		log.Error("metrics server shutdown error", "error", err)
	}
	log.Info("worker stopped")
	return nil
}

func workerIdentity() string {
	host, err := os.Hostname()
	if err != nil {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
