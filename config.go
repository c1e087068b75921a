package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	awspkg "ingest-service/pkg/aws"
)

// Config holds all environment variables for the ingest-service.
type Config struct {
	Env       string
	Port      string
	JWTSecret string
	RedisURL  string

	AWS                awspkg.Settings
	Bucket             string
	CloudFrontDomain   string
	ProductsTable      string
	CollectionsTable   string
	GroupsTable        string
	AssignmentsTable   string
	BundleEventsTopic  string
	CloudWatchEnabled  bool
	CloudWatchLogs     bool
	CloudWatchNS       string
	CloudWatchLogGroup string
	AllowedOrigins     string

	BatchStrategy           string
	BatchSize               int
	BatchMaxBytes           int64
	BatchDelay              time.Duration
	MaxBundleBytes          int64
	MaxUncompressedBytes    int64
	ConfigDocExtension      string
	ConfigDocReservedPrefix string
	CleanupOnPersistFailure bool
	RequireAssets           bool
	JobDir                  string
	IngestRatePerMinute     int
	IngestBurst             int
}

// LoadConfig reads the environment into Config and validates it.
// If AWS_USE_SECRETS=true the JWT secret is read from Secrets Manager and
// the env var is only a fallback.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Env:       getEnv("APP_ENV", "development"),
		Port:      getEnv("PORT", "8085"),
		JWTSecret: os.Getenv("JWT_SECRET"),
		RedisURL:  getEnv("REDIS_URL", "redis://redis:6379"),

		AWS: awspkg.Settings{
			Region:    getEnv("AWS_REGION", "us-east-1"),
			AccessKey: os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			Endpoint:  os.Getenv("AWS_ENDPOINT"),
		},
		Bucket:             getEnv("AWS_S3_BUCKET", "bundle-assets"),
		CloudFrontDomain:   os.Getenv("AWS_CLOUDFRONT_DOMAIN"),
		ProductsTable:      getEnv("DDB_TABLE_PRODUCTS", "Products"),
		CollectionsTable:   getEnv("DDB_TABLE_COLLECTIONS", "Collections"),
		GroupsTable:        getEnv("DDB_TABLE_GROUPS", "ProductGroups"),
		AssignmentsTable:   getEnv("DDB_TABLE_ASSIGNMENTS", "GroupAssignments"),
		BundleEventsTopic:  os.Getenv("SNS_TOPIC_BUNDLE_EVENTS"),
		CloudWatchEnabled:  getBool("CLOUDWATCH_ENABLED", false),
		CloudWatchLogs:     getBool("CLOUDWATCH_LOGS_ENABLED", false),
		CloudWatchNS:       getEnv("CLOUDWATCH_NAMESPACE", "BundleIngest"),
		CloudWatchLogGroup: getEnv("CLOUDWATCH_LOG_GROUP", "/bundle-ingest/services"),
		AllowedOrigins:     getEnv("ALLOWED_ORIGINS", "http://localhost:3000"),

		BatchStrategy:           strings.ToLower(getEnv("UPLOAD_BATCH_STRATEGY", "count")),
		BatchSize:               getInt("UPLOAD_BATCH_SIZE", 3),
		BatchMaxBytes:           int64(getInt("UPLOAD_BATCH_MAX_BYTES", 512*1024)),
		BatchDelay:              time.Duration(getInt("UPLOAD_BATCH_DELAY_MS", 300)) * time.Millisecond,
		MaxBundleBytes:          int64(getInt("MAX_BUNDLE_SIZE_MB", 200)) << 20,
		MaxUncompressedBytes:    int64(getInt("MAX_UNCOMPRESSED_SIZE_MB", 1024)) << 20,
		ConfigDocExtension:      getEnv("CONFIG_DOC_EXTENSION", ".html"),
		ConfigDocReservedPrefix: getEnv("CONFIG_DOC_RESERVED_PREFIX", "instructions"),
		CleanupOnPersistFailure: getBool("CLEANUP_ON_PERSIST_FAILURE", true),
		RequireAssets:           getBool("REQUIRE_ASSETS", false),
		JobDir:                  getEnv("INGEST_STORAGE_DIR", "./data/ingest_jobs"),
		IngestRatePerMinute:     getInt("INGEST_RATE_PER_MINUTE", 20),
		IngestBurst:             getInt("INGEST_RATE_BURST", 5),
	}
	cfg.AWS.S3Endpoint = getEnv("AWS_S3_ENDPOINT", cfg.AWS.Endpoint)

	if os.Getenv("AWS_USE_SECRETS") == "true" {
		if awsCfg, err := awspkg.LoadAWSConfig(context.Background(), cfg.AWS); err == nil {
			sm := awspkg.NewSecretsClient(awsCfg)
			if jwt, err := sm.GetSecret(context.Background(), "ingest/JWT_SECRET"); err == nil && jwt != "" {
				cfg.JWTSecret = jwt
			}
		}
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.BatchStrategy != "count" && cfg.BatchStrategy != "size" {
		return nil, fmt.Errorf("UPLOAD_BATCH_STRATEGY must be count or size, got %q", cfg.BatchStrategy)
	}
	if cfg.BatchSize < 1 || cfg.BatchMaxBytes < 1 {
		return nil, fmt.Errorf("upload batch limits must be positive")
	}
	if cfg.IngestRatePerMinute < 1 {
		cfg.IngestRatePerMinute = 1
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key))); err == nil {
		return v
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key))); err == nil {
		return v
	}
	return def
}
