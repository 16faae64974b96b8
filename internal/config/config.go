package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Queue     QueueConfig
	Storage   StorageConfig
	Scheduler SchedulerConfig
	Worker    WorkerConfig
	Extract   ExtractConfig
	Telemetry TelemetryConfig
	Auth      AuthConfig
	Intake    IntakeConfig
	LogLevel  string
}

type ServerConfig struct {
	Host string
	Port int
}

type DatabaseConfig struct {
	URL            string
	MaxConns       int
	MinConns       int
	MigrationsPath string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// CacheTTL bounds how long the API caches terminal document records.
	CacheTTL time.Duration
}

type QueueConfig struct {
	Backend        string // "redis" or "asynq"
	Name           string
	ReceiveTimeout time.Duration
}

type StorageConfig struct {
	Backend            string // "s3", "gcs" or "supabase"
	Bucket             string
	QuarantineBucket   string
	AWSRegion          string
	AWSEndpoint        string
	AWSAccessKey       string
	AWSSecretKey       string
	SupabaseURL        string
	SupabaseKey        string
	GCSEndpoint        string
	GCSCredentialsFile string
	FetchTimeout       time.Duration
}

type SchedulerConfig struct {
	BatchSize    int
	Interval     time.Duration
	ReclaimAfter time.Duration // 0 disables the stale-claim sweep
}

type WorkerConfig struct {
	Concurrency       int
	MaxRetries        int
	MinContentLength  int
	ClassifyPages     int
	QuarantineCopyTry int
	DBTimeout         time.Duration
}

type ExtractConfig struct {
	LocalEngine      string // "pdf" or "docconv"
	LocalTextTimeout time.Duration
	TikaURL          string
	TikaTimeout      time.Duration
	PaddleOCRURL     string
	PaddleOCRTimeout time.Duration
	TesseractCmd     string
	TesseractTimeout time.Duration
}

type TelemetryConfig struct {
	// MetricsAddr serves the worker; the scheduler has its own listener so
	// both can run on one host.
	MetricsAddr          string
	SchedulerMetricsAddr string
	SentryDSN            string
	Environment          string
}

type AuthConfig struct {
	JWTSecret string
}

type IntakeConfig struct {
	MaxFileSize int64
	MaxFiles    int
}

func Load() (*Config, error) {
	// A missing .env file is the normal case in deployed environments.
	_ = godotenv.Load()

	var errs []string
	intVar := func(key string, fallback int) int {
		v, err := getEnvInt(key, fallback)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s: %v", key, err))
		}
		return v
	}
	durVar := func(key string, fallback time.Duration) time.Duration {
		v, err := getEnvDuration(key, fallback)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s: %v", key, err))
		}
		return v
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: intVar("SERVER_PORT", 8080),
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConns:       intVar("DB_MAX_CONNS", 20),
			MinConns:       intVar("DB_MIN_CONNS", 2),
			MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       intVar("REDIS_DB", 0),
			CacheTTL: durVar("CACHE_TTL", 10*time.Minute),
		},
		Queue: QueueConfig{
			Backend:        getEnv("QUEUE_BACKEND", "redis"),
			Name:           getEnv("QUEUE_NAME", "document_parse_queue"),
			ReceiveTimeout: durVar("QUEUE_RECEIVE_TIMEOUT", 5*time.Second),
		},
		Storage: StorageConfig{
			Backend:            getEnv("STORAGE_BACKEND", "s3"),
			Bucket:             getEnv("S3_BUCKET", "app-uploads"),
			QuarantineBucket:   getEnv("S3_QUARANTINE_BUCKET", "app-quarantine"),
			AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
			AWSEndpoint:        getEnv("AWS_ENDPOINT", ""),
			AWSAccessKey:       getEnv("AWS_ACCESS_KEY_ID", ""),
			AWSSecretKey:       getEnv("AWS_SECRET_ACCESS_KEY", ""),
			SupabaseURL:        getEnv("SUPABASE_URL", ""),
			SupabaseKey:        getEnv("SUPABASE_SERVICE_KEY", ""),
			GCSEndpoint:        getEnv("GCS_ENDPOINT", ""),
			GCSCredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
			FetchTimeout:       durVar("STORAGE_FETCH_TIMEOUT", 30*time.Second),
		},
		Scheduler: SchedulerConfig{
			BatchSize:    intVar("SCHEDULER_BATCH_SIZE", 50),
			Interval:     durVar("SCHEDULER_INTERVAL", 10*time.Second),
			ReclaimAfter: durVar("SCHEDULER_RECLAIM_AFTER", 0),
		},
		Worker: WorkerConfig{
			Concurrency:       intVar("WORKER_CONCURRENCY", 1),
			MaxRetries:        intVar("MAX_RETRIES", 3),
			MinContentLength:  intVar("MIN_CONTENT_LENGTH", 40),
			ClassifyPages:     intVar("CLASSIFY_PAGES", 1),
			QuarantineCopyTry: intVar("QUARANTINE_COPY_ATTEMPTS", 3),
			DBTimeout:         durVar("WORKER_DB_TIMEOUT", 10*time.Second),
		},
		Extract: ExtractConfig{
			LocalEngine:      getEnv("TEXT_LOCAL_ENGINE", "pdf"),
			LocalTextTimeout: durVar("LOCAL_TEXT_TIMEOUT", 15*time.Second),
			TikaURL:          getEnv("TIKA_SERVER_URL", "http://localhost:9998"),
			TikaTimeout:      durVar("TIKA_TIMEOUT", 30*time.Second),
			PaddleOCRURL:     getEnv("PADDLE_OCR_URL", "http://localhost:8000/ocr"),
			PaddleOCRTimeout: durVar("PADDLE_OCR_TIMEOUT", 60*time.Second),
			TesseractCmd:     getEnv("TESSERACT_CMD", "tesseract"),
			TesseractTimeout: durVar("TESSERACT_TIMEOUT", 30*time.Second),
		},
		Telemetry: TelemetryConfig{
			MetricsAddr:          getEnv("METRICS_ADDR", ":8001"),
			SchedulerMetricsAddr: getEnv("SCHEDULER_METRICS_ADDR", ":8002"),
			SentryDSN:            getEnv("SENTRY_DSN", ""),
			Environment:          getEnv("ENVIRONMENT", "development"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
		},
		Intake: IntakeConfig{
			MaxFileSize: int64(intVar("INTAKE_MAX_FILE_SIZE", 50<<20)),
			MaxFiles:    intVar("INTAKE_MAX_FILES", 10),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("load config: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) Validate() error {
	var missing []string
	if c.Database.URL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	switch c.Storage.Backend {
	case "s3":
		if c.Storage.AWSAccessKey == "" || c.Storage.AWSSecretKey == "" {
			missing = append(missing, "AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY")
		}
	case "supabase":
		if c.Storage.SupabaseURL == "" || c.Storage.SupabaseKey == "" {
			missing = append(missing, "SUPABASE_URL/SUPABASE_SERVICE_KEY")
		}
	case "gcs":
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage.Backend)
	}
	if c.Queue.Backend != "redis" && c.Queue.Backend != "asynq" {
		return fmt.Errorf("unknown QUEUE_BACKEND %q", c.Queue.Backend)
	}
	if c.Worker.MaxRetries < 1 {
		return fmt.Errorf("MAX_RETRIES must be at least 1, got %d", c.Worker.MaxRetries)
	}
	if c.Scheduler.BatchSize < 1 {
		return fmt.Errorf("SCHEDULER_BATCH_SIZE must be at least 1, got %d", c.Scheduler.BatchSize)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}
