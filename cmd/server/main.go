package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/interhealth/syncengine/internal/application/service"
	"github.com/interhealth/syncengine/internal/domain/repository"
	"github.com/interhealth/syncengine/internal/infrastructure/config"
	"github.com/interhealth/syncengine/internal/infrastructure/crypto"
	"github.com/interhealth/syncengine/internal/infrastructure/extractor"
	"github.com/interhealth/syncengine/internal/infrastructure/logging"
	"github.com/interhealth/syncengine/internal/infrastructure/persistence"
	"github.com/interhealth/syncengine/internal/infrastructure/persistence/postgres"
	"github.com/interhealth/syncengine/internal/infrastructure/pubsub"
	"github.com/interhealth/syncengine/internal/infrastructure/storage"
	"github.com/interhealth/syncengine/internal/infrastructure/worker"
	"github.com/interhealth/syncengine/internal/terminology"
	"github.com/interhealth/syncengine/internal/transform/generator"
	presentationhttp "github.com/interhealth/syncengine/internal/presentation/http"

	"github.com/redis/go-redis/v9"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func main() {
	logger := logging.New(os.Getenv("LOG_LEVEL"))
	logger.Info("starting sync engine")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := persistence.Migrate("file://migrations", cfg.DatabaseURL); err != nil {
		logger.Error("failed to apply catalog migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("catalog migrations applied")

	db, err := postgres.NewDB(cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("failed to connect to catalog database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("connected to catalog database")

	connectionRepo := postgres.NewConnectionRepository(db.DB)
	integrationRepo := postgres.NewIntegrationRepository(db.DB)
	mappingRepo := postgres.NewMappingRepository(db.DB)
	jobRepo := postgres.NewJobRepository(db.DB)
	metricsRepo := postgres.NewMetricsRepository(db.DB)
	terminologyModelRepo := postgres.NewTerminologyModelRepository(db.DB)
	terminologyValueRepo := postgres.NewTerminologyValueRepository(db.DB)

	terminologyStore := terminology.New(terminologyModelRepo, terminologyValueRepo)

	var baseStorage storage.StorageAdapter
	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		s3Storage, err := storage.NewS3Storage(context.Background(), storage.S3Config{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			BasePath:        cfg.S3BasePath,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
		})
		if err != nil {
			logger.Error("failed to initialize S3 stage storage", "error", err)
			os.Exit(1)
		}
		baseStorage = s3Storage
		logger.Info("using S3/MinIO stage storage", "endpoint", cfg.S3Endpoint, "bucket", cfg.S3Bucket)
	} else {
		baseStorage = storage.NewLocalStorage(cfg.LocalStagePath)
		logger.Warn("S3 credentials not configured, staging output to local filesystem", "path", cfg.LocalStagePath)
	}

	var encryptor crypto.Encryptor
	if cfg.EncryptionKey != "" {
		aesEncryptor, err := crypto.NewAESEncryptor(cfg.EncryptionKey)
		if err != nil {
			logger.Error("failed to initialize credential encryptor", "error", err)
			os.Exit(1)
		}
		encryptor = aesEncryptor
		logger.Info("connection credential encryption configured")
	} else {
		encryptor = crypto.NoOpEncryptor{}
		logger.Warn("ENCRYPTION_KEY not configured, connection passwords stored unencrypted")
	}

	redisAddr := strings.TrimPrefix(strings.TrimPrefix(cfg.RedisURL, "redis://"), "rediss://")

	var metricsPublisher pubsub.Publisher
	var metricsSubscriber pubsub.Subscriber
	if cfg.RedisURL != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Warn("failed to reach redis, metrics streaming disabled", "error", err)
			metricsPublisher = pubsub.NoOpPubSub{}
			metricsSubscriber = pubsub.NoOpPubSub{}
		} else {
			redisPubSub := pubsub.NewRedisPubSub(redisClient)
			metricsPublisher = redisPubSub
			metricsSubscriber = redisPubSub
			logger.Info("redis pub/sub initialized for metrics streaming")
		}
	} else {
		metricsPublisher = pubsub.NoOpPubSub{}
		metricsSubscriber = pubsub.NoOpPubSub{}
		logger.Warn("REDIS_URL not configured, metrics streaming disabled")
	}

	oracleExtractor := extractor.New(
		extractor.WithQueryRateLimit(20, 5),
	)

	registry := service.NewRegistry()

	syncWorker := service.NewSyncWorker(service.WorkerDeps{
		Integrations: integrationRepo,
		Connections:  connectionRepo,
		Mappings:     mappingRepo,
		Jobs:         jobRepo,
		Registry:     registry,
		Extractor:    oracleExtractor,
		Generator:    generator.New(),
		Lookup:       terminologyStore,
		Stage:        baseStorage,
		Encryptor:    encryptor,
		Clock:        repository.SystemClock{},
		Logger:       logger,
		InterPageBackoff:     time.Duration(cfg.InterPageBackoffMs) * time.Millisecond,
		SimulatedFailureRate: cfg.SimulatedFailureRate,
	})

	manager := service.NewManager(service.ManagerDeps{
		Integrations:      integrationRepo,
		Connections:       connectionRepo,
		Jobs:              jobRepo,
		Registry:          registry,
		Worker:            syncWorker,
		Clock:             repository.SystemClock{},
		Logger:            logger,
		MaxConcurrentJobs: cfg.MaxConcurrentJobs,
		DefaultPageSize:   cfg.DefaultPageSize,
	})

	if err := manager.Recover(context.Background()); err != nil {
		logger.Error("startup recovery failed", "error", err)
	}

	metricsAggregator := service.NewMetricsAggregator(service.MetricsAggregatorDeps{
		Connections:  connectionRepo,
		Integrations: integrationRepo,
		Jobs:         jobRepo,
		Metrics:      metricsRepo,
		Registry:     registry,
		Clock:        repository.SystemClock{},
		Publisher:    metricsPublisher,
		Logger:       logger,
	})

	recoveryScheduler, err := worker.NewScheduler(redisAddr, "@every 30s", manager, logger)
	if err != nil {
		logger.Error("failed to initialize recovery heartbeat scheduler", "error", err)
		os.Exit(1)
	}
	recoveryScheduler.Run()
	logger.Info("recovery heartbeat scheduler started")

	httpServer := presentationhttp.NewServer(presentationhttp.Deps{
		Manager:               manager,
		Metrics:               metricsAggregator,
		Extractor:              oracleExtractor,
		Connections:           connectionRepo,
		Encryptor:             encryptor,
		Subscriber:            metricsSubscriber,
		Logger:                logger,
		DefaultStreamInterval: time.Duration(cfg.MetricsUpdateIntervalSec) * time.Second,
	})

	// EnableH2C lets integrations running extraction connectors over gRPC/h2c
	// on the same port skip TLS termination in local/on-prem deployments;
	// disabled, the server speaks plain HTTP/1.1 as usual.
	var handler http.Handler = httpServer.Handler()
	if cfg.EnableH2C {
		handler = h2c.NewHandler(handler, &http2.Server{})
		logger.Info("h2c cleartext HTTP/2 enabled")
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // disabled for metrics/stream's chunked push
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	recoveryScheduler.Shutdown()
	logger.Info("recovery heartbeat scheduler stopped")

	manager.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
