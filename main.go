package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"ingest-service/archive"
	"ingest-service/common/auth"
	apperrors "ingest-service/common/errors"
	"ingest-service/common/logger"
	"ingest-service/common/middleware"
	"ingest-service/controllers"
	awspkg "ingest-service/pkg/aws"
	"ingest-service/repository"
	"ingest-service/routes"
	"ingest-service/services"
	"ingest-service/storage"
	"ingest-service/telemetry"
	"ingest-service/upload"
)

const serviceName = "ingest-service"

func main() {
	// Load .env file (optional, falls back to system env)
	_ = godotenv.Load()

	cfg, err := LoadConfig()
	if err != nil {
		logger.Initialize("development")
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	// --- 1. Initialization ---
	awsCfg, err := awspkg.LoadAWSConfig(context.Background(), cfg.AWS)
	if err != nil {
		logger.Initialize(cfg.Env)
		zap.L().Fatal("Failed to load AWS config", zap.Error(err))
	}

	cwLogs, err := awspkg.NewCloudWatchLogsClient(context.Background(), awsCfg, cfg.CloudWatchLogGroup, serviceName, cfg.CloudWatchLogs)
	if err != nil || !cwLogs.IsEnabled() {
		logger.Initialize(cfg.Env)
		if err != nil {
			zap.L().Warn("CloudWatch Logs unavailable, logging to console only", zap.Error(err))
		}
	} else {
		logger.InitializeWithWriter(cfg.Env, cwLogs)
	}
	defer logger.Log.Sync()

	zap.L().Info("AWS Configuration",
		zap.String("AWS_ENDPOINT", cfg.AWS.Endpoint),
		zap.String("AWS_S3_ENDPOINT", cfg.AWS.S3Endpoint),
		zap.String("AWS_REGION", cfg.AWS.Region),
	)

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		zap.L().Warn("Failed to parse REDIS_URL, falling back to default", zap.Error(err))
		redisOpts = &redis.Options{Addr: "redis:6379", DB: 0}
	}
	rdb := redis.NewClient(redisOpts)

	s3Client := awspkg.NewS3Client(awsCfg, cfg.AWS)
	ddbClient := awspkg.NewDynamoClient(awsCfg, cfg.AWS)
	cloudWatch := awspkg.NewMetricsClient(awsCfg, cfg.CloudWatchNS, cfg.CloudWatchEnabled)
	publisher := awspkg.NewEventPublisher(awspkg.NewSNSClient(awsCfg), cfg.BundleEventsTopic)
	metrics := telemetry.NewMetrics(nil)
	recorder := services.Recorders{metrics, cloudWatch}

	// --- 2. Dependency Injection (Wiring the layers together) ---
	store := storage.NewS3Store(s3Client, cfg.Bucket, cfg.AWS.S3Endpoint, cfg.CloudFrontDomain)
	productRepo := repository.NewDynamoProductAdapter(ddbClient, cfg.ProductsTable)
	collectionRepo := repository.NewDynamoCollectionAdapter(ddbClient, cfg.CollectionsTable, cfg.GroupsTable, cfg.AssignmentsTable)
	cache := controllers.NewCacheManager(rdb, controllers.DefaultCacheTTL)

	var strategy upload.Strategy = upload.CountStrategy{Size: cfg.BatchSize}
	if cfg.BatchStrategy == "size" {
		strategy = upload.SizeStrategy{MaxBytes: cfg.BatchMaxBytes}
	}
	coordinator := upload.NewCoordinator(store, strategy, cfg.BatchDelay,
		upload.WithRequireAssets(cfg.RequireAssets),
		upload.WithObserver(metrics),
	)

	classifier := archive.DefaultClassifierConfig()
	classifier.ConfigExtension = cfg.ConfigDocExtension
	classifier.ReservedPrefix = cfg.ConfigDocReservedPrefix

	productService := services.NewProductService(productRepo, store, cache)
	ingestService := services.NewIngestService(productRepo, store, coordinator, services.IngestConfig{
		Classifier:              classifier,
		MaxUncompressedBytes:    cfg.MaxUncompressedBytes,
		CleanupOnPersistFailure: cfg.CleanupOnPersistFailure,
	}, publisher, cache, recorder)
	orchestrator := services.NewOrchestrator(collectionRepo, productService, ingestService, publisher, recorder)
	collectionService := services.NewCollectionService(collectionRepo, productRepo)
	jobs := services.NewJobQueue(rdb, cfg.JobDir)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	services.NewIngestWorker(jobs, ingestService).Start(workerCtx)

	validator := controllers.NewRequestValidator(cfg.MaxBundleBytes)
	handlers := routes.Handlers{
		Products:            controllers.NewProductController(productService, cache, validator),
		Ingest:              controllers.NewIngestHandler(ingestService, jobs, validator),
		Collections:         controllers.NewCollectionController(orchestrator, collectionService, validator),
		Metrics:             metrics,
		Validator:           auth.NewTokenValidator(cfg.JWTSecret),
		IngestRatePerMinute: cfg.IngestRatePerMinute,
		IngestBurst:         cfg.IngestBurst,
	}

	// --- 3. HTTP Server & Middleware ---
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.RequestID())
	r.Use(middleware.RequestLogger(zap.L()))
	r.Use(middleware.MetricsMiddleware(cloudWatch, serviceName))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))
	r.Use(apperrors.ErrorMiddleware())
	r.MaxMultipartMemory = 32 << 20

	// --- 4. Route Registration ---
	routes.RegisterRoutes(r, handlers)

	// --- 5. Graceful Shutdown ---
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zap.L().Info("Ingest Service starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.L().Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zap.L().Info("Shutting down Ingest Service...")

	stopWorker()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("Server forced to shutdown", zap.Error(err))
	}
	if err := rdb.Close(); err != nil {
		zap.L().Error("Failed to close Redis", zap.Error(err))
	}

	zap.L().Info("Ingest Service stopped gracefully")
}
