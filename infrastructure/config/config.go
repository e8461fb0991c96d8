package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage backend names accepted by STORAGE_BACKEND
const (
	StorageMemory   = "memory"
	StorageRedis    = "redis"
	StorageDynamoDB = "dynamodb"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress string
	Environment   string

	// Storage configuration
	StorageBackend string
	RedisURL       string
	AWSRegion      string
	DynamoDBTable  string

	// Snapshot write tuning
	SnapshotQuietPeriod     time.Duration
	SnapshotMaxPendingAge   time.Duration
	SnapshotVerifyChecksums bool
	FlushMaxRetries         int
	FlushRetryBackoff       time.Duration
	FlushWriteTimeout       time.Duration

	// Domain rules file watched for hot reload; empty disables watching
	DomainRulesPath string

	// Logging and metrics
	LogLevel         string
	MetricsNamespace string

	// HTTP surface
	CORSAllowedOrigins []string
	EnableCORS         bool
	EnableMetrics      bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		ServerAddress: getEnv("SERVER_ADDRESS", ":8080"),
		Environment:   getEnv("ENVIRONMENT", "development"),

		StorageBackend: getEnv("STORAGE_BACKEND", StorageMemory),
		RedisURL:       getEnv("REDIS_URL", "redis://localhost:6379/0"),
		AWSRegion:      getEnv("AWS_REGION", "us-west-2"),
		DynamoDBTable:  getEnv("TABLE_NAME", getEnv("DYNAMODB_TABLE", "atelier-snapshots")),

		SnapshotQuietPeriod:     getEnvDuration("SNAPSHOT_QUIET_PERIOD", 500*time.Millisecond),
		SnapshotMaxPendingAge:   getEnvDuration("SNAPSHOT_MAX_PENDING_AGE", 5*time.Second),
		SnapshotVerifyChecksums: getEnvBool("SNAPSHOT_VERIFY_CHECKSUMS", true),
		FlushMaxRetries:         getEnvInt("FLUSH_MAX_RETRIES", 3),
		FlushRetryBackoff:       getEnvDuration("FLUSH_RETRY_BACKOFF", 200*time.Millisecond),
		FlushWriteTimeout:       getEnvDuration("FLUSH_WRITE_TIMEOUT", 5*time.Second),

		DomainRulesPath: getEnv("DOMAIN_RULES_PATH", ""),

		LogLevel:         getEnv("LOG_LEVEL", "info"),
		MetricsNamespace: getEnv("METRICS_NAMESPACE", "atelier"),

		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		EnableCORS:         getEnvBool("ENABLE_CORS", true),
		EnableMetrics:      getEnvBool("ENABLE_METRICS", true),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case StorageMemory, StorageRedis, StorageDynamoDB:
	default:
		return fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}

	if c.StorageBackend == StorageRedis && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required for the redis backend")
	}
	if c.StorageBackend == StorageDynamoDB {
		if c.DynamoDBTable == "" {
			return fmt.Errorf("DYNAMODB_TABLE is required for the dynamodb backend")
		}
		if c.AWSRegion == "" {
			return fmt.Errorf("AWS_REGION is required for the dynamodb backend")
		}
	}

	if c.IsProduction() && c.StorageBackend == StorageMemory {
		return fmt.Errorf("the memory backend loses all state on restart and cannot be used in production")
	}

	if c.SnapshotQuietPeriod <= 0 {
		return fmt.Errorf("snapshot quiet period must be positive, got %s", c.SnapshotQuietPeriod)
	}
	if c.SnapshotMaxPendingAge < c.SnapshotQuietPeriod {
		return fmt.Errorf("snapshot max pending age %s is shorter than the quiet period %s",
			c.SnapshotMaxPendingAge, c.SnapshotQuietPeriod)
	}
	if c.FlushMaxRetries < 0 {
		return fmt.Errorf("flush max retries cannot be negative, got %d", c.FlushMaxRetries)
	}

	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration gets a duration environment variable with a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList gets a comma-separated environment variable with a default value
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
