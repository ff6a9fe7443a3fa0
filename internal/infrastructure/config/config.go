package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds application configuration, loaded from environment
// variables the same way the teacher's config.go does: flat struct,
// getEnv/getEnvInt helpers, no external env-parsing library.
type Config struct {
	// Server
	Port      string
	EnableH2C bool // Enable HTTP/2 cleartext for local dev

	// Catalog store (Postgres)
	DatabaseURL string

	// Redis (task queue broker + metrics pub/sub)
	RedisURL string

	// Object storage (stage sink): MinIO/S3 or local filesystem fallback
	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3BasePath  string
	S3AccessKey string
	S3SecretKey string
	LocalStagePath string // used when S3AccessKey/S3SecretKey are empty

	// Encryption
	EncryptionKey string // secret of any length; the AES-256-GCM key (connection passwords at rest) is derived from it via HKDF-SHA256

	// Sync engine tuning (§6 Configuration)
	MaxConcurrentJobs       int     // semaphore size, default 5
	DefaultPageSize         int     // default 100
	InterPageBackoffMs      int     // delay between pages
	SimulatedFailureRate    float64 // fault injection for testing metrics, [0,1]
	MetricsUpdateIntervalSec int    // push cadence, default 3

	LogLevel string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	databaseURL := getEnv("DATABASE_URL", "")
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	return &Config{
		Port:      getEnv("PORT", "8080"),
		EnableH2C: getEnv("ENABLE_H2C", "false") == "true",

		DatabaseURL: databaseURL,
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379"),

		S3Endpoint:     getEnv("S3_ENDPOINT", ""),
		S3Region:       getEnv("S3_REGION", "us-east-1"),
		S3Bucket:       getEnv("S3_BUCKET", "syncengine"),
		S3BasePath:     getEnv("S3_BASE_PATH", ""),
		S3AccessKey:    getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:    getEnv("S3_SECRET_KEY", ""),
		LocalStagePath: getEnv("LOCAL_STAGE_PATH", "./stage_data"),

		EncryptionKey: getEnv("ENCRYPTION_KEY", ""),

		MaxConcurrentJobs:        getEnvInt("MAX_CONCURRENT_JOBS", 5),
		DefaultPageSize:          getEnvInt("DEFAULT_PAGE_SIZE", 100),
		InterPageBackoffMs:       getEnvInt("SYNC_INTER_PAGE_BACKOFF_MS", 5000),
		SimulatedFailureRate:     getEnvFloat("SIMULATED_FAILURE_RATE", 0),
		MetricsUpdateIntervalSec: getEnvInt("METRICS_UPDATE_INTERVAL_SEC", 3),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
