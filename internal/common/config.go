package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database   DatabaseConfig
	Server     ServerConfig
	LLM        LLMConfig
	Worker     WorkerConfig
	Regression RegressionConfig
	Cache      CacheConfig
	OCR        OCRConfig
	Ingest     IngestConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr    string
	MetricsAddr string
}

// LLMConfig holds configuration for the AI-assisted extraction collaborator
type LLMConfig struct {
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32
	Timeout     time.Duration
}

// WorkerConfig sizes the regression task pool
type WorkerConfig struct {
	PoolSize    int
	QueueSize   int
	TaskTimeout time.Duration
	// Parallelism is the number of documents processed concurrently inside one task.
	Parallelism int
}

// RegressionConfig holds the recommendation thresholds and corpus limits
type RegressionConfig struct {
	MaxRegressionRate         float64
	MaxRegressionRateForAdopt float64
	MaxDocuments              int
}

// CacheConfig controls the in-process document view cache
type CacheConfig struct {
	DocumentTTL     time.Duration
	CleanupInterval time.Duration
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Binary      string
	TessdataDir string
	Language    string
}

// IngestConfig controls the optional directory watch in the daemon
type IngestConfig struct {
	WatchDir string
	Debounce time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			GRPCAddr:    getEnv("GRPC_ADDR", ":8080"),
			MetricsAddr: getEnv("METRICS_ADDR", ":9090"),
		},
		LLM: LLMConfig{
			Model:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			BaseURL:     getEnv("OPENAI_BASE_URL", ""),
			Temperature: getEnvAsFloat32("OPENAI_TEMPERATURE", 0.0),
			Timeout:     getEnvAsDuration("OPENAI_TIMEOUT", 45*time.Second),
		},
		Worker: WorkerConfig{
			PoolSize:    getEnvAsInt("WORKER_POOL_SIZE", 2),
			QueueSize:   getEnvAsInt("WORKER_QUEUE_SIZE", 64),
			TaskTimeout: getEnvAsDuration("WORKER_TASK_TIMEOUT", 30*time.Minute),
			Parallelism: getEnvAsInt("TASK_PARALLELISM", 1),
		},
		Regression: RegressionConfig{
			MaxRegressionRate:         getEnvAsFloat64("MAX_REGRESSION_RATE", 0.05),
			MaxRegressionRateForAdopt: getEnvAsFloat64("MAX_REGRESSION_RATE_FOR_ADOPT", 0.02),
			MaxDocuments:              getEnvAsInt("CORPUS_MAX_DOCUMENTS", 500),
		},
		Cache: CacheConfig{
			DocumentTTL:     getEnvAsDuration("DOCUMENT_CACHE_TTL", 10*time.Minute),
			CleanupInterval: getEnvAsDuration("DOCUMENT_CACHE_CLEANUP", 15*time.Minute),
		},
		OCR: OCRConfig{
			Binary:      getEnv("TESSERACT_BIN", "tesseract"),
			TessdataDir: getEnv("TESSDATA_PREFIX", ""),
			Language:    getEnv("OCR_LANG", "eng"),
		},
		Ingest: IngestConfig{
			WatchDir: getEnv("INGEST_WATCH_DIR", ""),
			Debounce: getEnvAsDuration("INGEST_DEBOUNCE", 2*time.Second),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate checks the settings every binary needs.
func (c *Config) Validate() error {
	if c.Server.GRPCAddr == "" {
		return NewAppError("CONFIG_ERROR", "GRPC_ADDR is required", ErrInvalidInput)
	}
	if c.Worker.PoolSize < 1 {
		return NewAppError("CONFIG_ERROR", "WORKER_POOL_SIZE must be at least 1", ErrInvalidInput)
	}
	if c.Worker.Parallelism < 1 {
		return NewAppError("CONFIG_ERROR", "TASK_PARALLELISM must be at least 1", ErrInvalidInput)
	}
	r := c.Regression
	if r.MaxRegressionRate < 0 || r.MaxRegressionRate > 1 || r.MaxRegressionRateForAdopt < 0 || r.MaxRegressionRateForAdopt > 1 {
		return NewAppError("CONFIG_ERROR", "regression thresholds must be within [0,1]", ErrInvalidInput)
	}
	if r.MaxRegressionRateForAdopt > r.MaxRegressionRate {
		return NewAppError("CONFIG_ERROR", "MAX_REGRESSION_RATE_FOR_ADOPT must not exceed MAX_REGRESSION_RATE", ErrInvalidInput)
	}
	if r.MaxDocuments < 1 {
		return NewAppError("CONFIG_ERROR", "CORPUS_MAX_DOCUMENTS must be at least 1", ErrInvalidInput)
	}
	return nil
}

// ValidateServer adds the requirements of the long-running daemon.
func (c *Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	return nil
}
