package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Storage drivers
const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

// Config holds all configuration for the service
type Config struct {
	Environment string
	Port        string
	LogLevel    string

	StorageDriver        string
	DatabaseURL          string
	StorageTimeout       time.Duration
	StorageMaxRetries    int
	StorageRetryInterval time.Duration

	NATSURL string

	RedisHost        string
	RedisPort        int
	RedisPassword    string
	RedisDB          int
	WorkflowCacheTTL time.Duration

	SLAScanSchedule  string
	SLAScanBatchSize int
	MaxEscalations   int

	// WorkflowSeedFile is a JSON array of workflow drafts published at
	// startup for categories that have none
	WorkflowSeedFile string

	JWTSecret       string
	CreateRateLimit float64
	CreateRateBurst int
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Port:        getEnv("PORT", "8080"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		StorageDriver:        getEnv("STORAGE_DRIVER", StorageDriverPostgres),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		StorageTimeout:       getEnvDuration("STORAGE_TIMEOUT", 5*time.Second),
		StorageMaxRetries:    getEnvInt("STORAGE_MAX_RETRIES", 3),
		StorageRetryInterval: getEnvDuration("STORAGE_RETRY_INTERVAL", 100*time.Millisecond),

		NATSURL: getEnv("NATS_URL", ""),

		RedisHost:        getEnv("REDIS_HOST", ""),
		RedisPort:        getEnvInt("REDIS_PORT", 6379),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:          getEnvInt("REDIS_DB", 0),
		WorkflowCacheTTL: getEnvDuration("WORKFLOW_CACHE_TTL", 10*time.Minute),

		SLAScanSchedule:  getEnv("SLA_SCAN_SCHEDULE", "@every 1m"),
		SLAScanBatchSize: getEnvInt("SLA_SCAN_BATCH_SIZE", 100),
		MaxEscalations:   getEnvInt("MAX_ESCALATIONS", 3),

		WorkflowSeedFile: getEnv("WORKFLOW_SEED_FILE", ""),

		JWTSecret:       getEnv("JWT_SECRET", ""),
		CreateRateLimit: getEnvFloat("CREATE_RATE_LIMIT", 1),
		CreateRateBurst: getEnvInt("CREATE_RATE_BURST", 5),
	}
}

// Validate rejects settings the service cannot run with
func (c *Config) Validate() error {
	var errs []error
	switch c.StorageDriver {
	case StorageDriverPostgres, StorageDriverMemory:
	default:
		errs = append(errs, fmt.Errorf("STORAGE_DRIVER must be %q or %q, got %q", StorageDriverPostgres, StorageDriverMemory, c.StorageDriver))
	}
	if c.MaxEscalations < 1 {
		errs = append(errs, errors.New("MAX_ESCALATIONS must be at least 1"))
	}
	if c.StorageTimeout <= 0 {
		errs = append(errs, errors.New("STORAGE_TIMEOUT must be positive"))
	}
	if c.StorageMaxRetries < 0 {
		errs = append(errs, errors.New("STORAGE_MAX_RETRIES must not be negative"))
	}
	// five-field cron expressions or descriptors such as @every 1m
	if _, err := cron.ParseStandard(c.SLAScanSchedule); err != nil {
		errs = append(errs, fmt.Errorf("SLA_SCAN_SCHEDULE is not a valid cron expression: %w", err))
	}
	if c.SLAScanBatchSize < 1 {
		errs = append(errs, errors.New("SLA_SCAN_BATCH_SIZE must be at least 1"))
	}
	if c.CreateRateLimit < 0 {
		errs = append(errs, errors.New("CREATE_RATE_LIMIT must not be negative"))
	}
	if c.Environment == "production" && c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required in production"))
	}
	return errors.Join(errs...)
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// InitDB initializes the database connection
func InitDB(cfg *Config) (*gorm.DB, error) {
	dsn := cfg.DatabaseURL
	if dsn == "" {
		// Build DSN from individual components if DATABASE_URL not set
		dsn = fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			getEnv("DB_HOST", "localhost"),
			getEnv("DB_PORT", "5432"),
			getEnv("DB_USER", "postgres"),
			getEnv("DB_PASSWORD", ""),
			getEnv("DB_NAME", "complaints_db"),
			getEnv("DB_SSLMODE", "disable"),
		)
	}

	logLevel := logger.Silent
	if cfg.Environment == "development" {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}
