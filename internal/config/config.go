package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnv               = "development"
	defaultHTTPHost          = "0.0.0.0"
	defaultHTTPPort          = 8080
	defaultLogLevel          = "info"
	defaultWorkerCommand     = "python3"
	defaultWorkerScript      = "analysis/worker.py"
	defaultReadyMarker       = "ANALYSIS_ENGINE_READY"
	defaultRestartDelay      = 5 * time.Second
	defaultHeartbeatInterval = 30 * time.Second
	defaultStopTimeout       = 5 * time.Second
	defaultAnalysisTimeout   = 30 * time.Second
	defaultResultCacheSize   = 256
	defaultSendBuffer        = 64
	defaultPingInterval      = 25 * time.Second
	defaultRecordTTLSeconds  = 300
	defaultRedisDB           = 0
	defaultRawExchange       = "telemetry.raw"
	defaultPrefetch          = 32
	defaultBatchSize         = 100
	defaultBatchTimeout      = 2 * time.Second
)

var defaultAnalysisTypes = []string{
	"market_analysis",
	"orderflow_analysis",
	"strategy_optimization",
	"risk_assessment",
	"pattern_recognition",
	"performance_analysis",
}

// Config keeps the runtime configuration for the service.
type Config struct {
	Env      string
	LogLevel string
	HTTP     HTTPConfig
	Worker   WorkerConfig
	Analysis AnalysisConfig
	Hub      HubConfig
	Cache    CacheConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	RabbitMQ RabbitMQConfig
}

// HTTPConfig holds HTTP server related settings.
type HTTPConfig struct {
	Host string
	Port int
}

// Addr renders the listen address in host:port form.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// WorkerConfig describes how the external analysis worker is launched and supervised.
type WorkerConfig struct {
	Command           string
	Args              []string
	Dir               string
	ReadyMarker       string
	RestartDelay      time.Duration
	HeartbeatInterval time.Duration
	StopTimeout       time.Duration
}

// AnalysisConfig controls request correlation and the result cache.
type AnalysisConfig struct {
	Timeout         time.Duration
	Types           []string
	ResultCacheSize int
	ResultCacheTTL  time.Duration
}

// HubConfig tunes subscriber connections.
type HubConfig struct {
	SendBuffer   int
	PingInterval time.Duration
}

// CacheConfig stores per-source record cache behavior.
type CacheConfig struct {
	StrictOrder      bool
	RecordTTLSeconds int
}

// PostgresConfig stores database connection parameters. Empty DSN disables the result archive.
type PostgresConfig struct {
	DSN          string
	BatchSize    int
	BatchTimeout time.Duration
}

// RedisConfig stores Redis connection parameters. Empty Addr disables the record mirror.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RabbitMQConfig stores the raw feed consumer settings. Empty URL disables the consumer.
type RabbitMQConfig struct {
	URL         string
	RawExchange string
	Prefetch    int
}

// Load builds Config from environment variables, reading an optional .env file first.
func Load() (*Config, error) {
	_ = godotenv.Load()

	port, err := getInt("HTTP_PORT", defaultHTTPPort)
	if err != nil {
		return nil, fmt.Errorf("parse HTTP_PORT: %w", err)
	}

	worker, err := loadWorker()
	if err != nil {
		return nil, err
	}

	analysis, err := loadAnalysis()
	if err != nil {
		return nil, err
	}

	sendBuffer, err := getInt("HUB_SEND_BUFFER", defaultSendBuffer)
	if err != nil {
		return nil, fmt.Errorf("parse HUB_SEND_BUFFER: %w", err)
	}
	pingInterval, err := getDuration("HUB_PING_INTERVAL", defaultPingInterval)
	if err != nil {
		return nil, fmt.Errorf("parse HUB_PING_INTERVAL: %w", err)
	}

	strictOrder, err := getBool("RECORD_CACHE_STRICT_ORDER", false)
	if err != nil {
		return nil, fmt.Errorf("parse RECORD_CACHE_STRICT_ORDER: %w", err)
	}
	recordTTL, err := getInt("RECORD_TTL_SECONDS", defaultRecordTTLSeconds)
	if err != nil {
		return nil, fmt.Errorf("parse RECORD_TTL_SECONDS: %w", err)
	}

	redisDB, err := getInt("REDIS_DB", defaultRedisDB)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_DB: %w", err)
	}

	batchSize, err := getInt("ARCHIVE_BATCH_SIZE", defaultBatchSize)
	if err != nil {
		return nil, fmt.Errorf("parse ARCHIVE_BATCH_SIZE: %w", err)
	}
	batchTimeout, err := getDuration("ARCHIVE_BATCH_TIMEOUT", defaultBatchTimeout)
	if err != nil {
		return nil, fmt.Errorf("parse ARCHIVE_BATCH_TIMEOUT: %w", err)
	}

	prefetch, err := getInt("RABBITMQ_PREFETCH", defaultPrefetch)
	if err != nil {
		return nil, fmt.Errorf("parse RABBITMQ_PREFETCH: %w", err)
	}

	return &Config{
		Env:      getString("APP_ENV", defaultEnv),
		LogLevel: getString("LOG_LEVEL", defaultLogLevel),
		HTTP: HTTPConfig{
			Host: getString("HTTP_HOST", defaultHTTPHost),
			Port: port,
		},
		Worker:   worker,
		Analysis: analysis,
		Hub: HubConfig{
			SendBuffer:   sendBuffer,
			PingInterval: pingInterval,
		},
		Cache: CacheConfig{
			StrictOrder:      strictOrder,
			RecordTTLSeconds: recordTTL,
		},
		Postgres: PostgresConfig{
			DSN:          os.Getenv("DATABASE_DSN"),
			BatchSize:    batchSize,
			BatchTimeout: batchTimeout,
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		RabbitMQ: RabbitMQConfig{
			URL:         os.Getenv("RABBITMQ_URL"),
			RawExchange: getString("RABBITMQ_RAW_EXCHANGE", defaultRawExchange),
			Prefetch:    prefetch,
		},
	}, nil
}

func loadWorker() (WorkerConfig, error) {
	restartDelay, err := getDuration("WORKER_RESTART_DELAY", defaultRestartDelay)
	if err != nil {
		return WorkerConfig{}, fmt.Errorf("parse WORKER_RESTART_DELAY: %w", err)
	}
	if restartDelay <= 0 {
		return WorkerConfig{}, fmt.Errorf("WORKER_RESTART_DELAY must be positive")
	}
	heartbeat, err := getDuration("WORKER_HEARTBEAT_INTERVAL", defaultHeartbeatInterval)
	if err != nil {
		return WorkerConfig{}, fmt.Errorf("parse WORKER_HEARTBEAT_INTERVAL: %w", err)
	}
	stopTimeout, err := getDuration("WORKER_STOP_TIMEOUT", defaultStopTimeout)
	if err != nil {
		return WorkerConfig{}, fmt.Errorf("parse WORKER_STOP_TIMEOUT: %w", err)
	}
	args := getList("WORKER_ARGS", nil)
	if _, ok := os.LookupEnv("WORKER_ARGS"); !ok {
		args = []string{"-u", defaultWorkerScript}
	}
	return WorkerConfig{
		Command:           getString("WORKER_COMMAND", defaultWorkerCommand),
		Args:              args,
		Dir:               os.Getenv("WORKER_DIR"),
		ReadyMarker:       getString("WORKER_READY_MARKER", defaultReadyMarker),
		RestartDelay:      restartDelay,
		HeartbeatInterval: heartbeat,
		StopTimeout:       stopTimeout,
	}, nil
}

func loadAnalysis() (AnalysisConfig, error) {
	timeout, err := getDuration("ANALYSIS_TIMEOUT", defaultAnalysisTimeout)
	if err != nil {
		return AnalysisConfig{}, fmt.Errorf("parse ANALYSIS_TIMEOUT: %w", err)
	}
	if timeout <= 0 {
		return AnalysisConfig{}, fmt.Errorf("ANALYSIS_TIMEOUT must be positive")
	}
	size, err := getInt("RESULT_CACHE_SIZE", defaultResultCacheSize)
	if err != nil {
		return AnalysisConfig{}, fmt.Errorf("parse RESULT_CACHE_SIZE: %w", err)
	}
	if size <= 0 {
		return AnalysisConfig{}, fmt.Errorf("RESULT_CACHE_SIZE must be positive")
	}
	ttl, err := getDuration("RESULT_CACHE_TTL", 0)
	if err != nil {
		return AnalysisConfig{}, fmt.Errorf("parse RESULT_CACHE_TTL: %w", err)
	}
	return AnalysisConfig{
		Timeout:         timeout,
		Types:           getList("ANALYSIS_TYPES", defaultAnalysisTypes),
		ResultCacheSize: size,
		ResultCacheTTL:  ttl,
	}, nil
}

func getString(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	return value
}

func getInt(key string, fallback int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("convert %s value %q to int: %w", key, value, err)
	}
	return parsed, nil
}

func getBool(key string, fallback bool) (bool, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("convert %s value %q to bool: %w", key, value, err)
	}
	return parsed, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("convert %s value %q to duration: %w", key, value, err)
	}
	return parsed, nil
}

// getList splits a comma separated value, dropping blanks.
func getList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
