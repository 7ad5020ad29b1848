package config

import (
	"os"
	"strconv"
)

// Config centralizes runtime settings for the API and workers.
type Config struct {
	Port        string
	Service     string
	Environment string
	LogLevel    string

	AuthToken string

	DatabaseURL      string
	AdminDatabaseURL string

	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	RedisStream          string
	RedisDLQ             string
	RedisGroup           string
	RedisConsumer        string
	QueueVisibilitySecs  int
	LocalQueueBufferSize int

	GatewayMaxAttempts    int
	GatewayBackoffBaseMS  int
	GatewayTotalTimeoutMS int

	WorkerEnabled        bool
	WorkerPoolSize       int
	WorkerDequeueTimeout int
	WorkerDrainGraceSecs int

	RateLimitRPS   float64
	RateLimitBurst int

	// StaticTenants seeds the in-process registry when no database is
	// configured: "id|name|base_url|authtoken" entries joined by ";".
	StaticTenants string
}

func Load() Config {
	return Config{
		Port:        getEnv("PORT", "8080"),
		Service:     getEnv("SERVICE_NAME", "ticket-enrich-back"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		AuthToken: getEnv("API_AUTH_TOKEN", ""),

		DatabaseURL:      getEnv("DATABASE_URL", ""),
		AdminDatabaseURL: getEnv("ADMIN_DATABASE_URL", ""),

		RedisAddr:            getEnv("REDIS_ADDR", ""),
		RedisPassword:        getEnv("REDIS_PASSWORD", ""),
		RedisDB:              getEnvInt("REDIS_DB", 0),
		RedisStream:          getEnv("REDIS_STREAM", "enrich_jobs"),
		RedisDLQ:             getEnv("REDIS_DLQ_STREAM", "enrich_jobs_dlq"),
		RedisGroup:           getEnv("REDIS_GROUP", "enrich_workers"),
		RedisConsumer:        getEnv("REDIS_CONSUMER", "api-1"),
		QueueVisibilitySecs:  getEnvInt("QUEUE_VISIBILITY_SECONDS", 90),
		LocalQueueBufferSize: getEnvInt("LOCAL_QUEUE_BUFFER_SIZE", 512),

		GatewayMaxAttempts:    getEnvInt("GATEWAY_MAX_ATTEMPTS", 3),
		GatewayBackoffBaseMS:  getEnvInt("GATEWAY_BACKOFF_BASE_MS", 2000),
		GatewayTotalTimeoutMS: getEnvInt("GATEWAY_TOTAL_TIMEOUT_MS", 30000),

		WorkerEnabled:        getEnvBool("WORKER_ENABLED", true),
		WorkerPoolSize:       getEnvInt("WORKER_POOL_SIZE", 4),
		WorkerDequeueTimeout: getEnvInt("WORKER_DEQUEUE_TIMEOUT_SECONDS", 5),
		WorkerDrainGraceSecs: getEnvInt("WORKER_DRAIN_GRACE_SECONDS", 90),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 40),

		StaticTenants: getEnv("STATIC_TENANTS", ""),
	}
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
