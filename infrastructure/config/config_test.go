package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"SERVER_ADDRESS", "ENVIRONMENT", "STORAGE_BACKEND", "REDIS_URL",
		"AWS_REGION", "TABLE_NAME", "DYNAMODB_TABLE",
		"SNAPSHOT_QUIET_PERIOD", "SNAPSHOT_MAX_PENDING_AGE", "SNAPSHOT_VERIFY_CHECKSUMS",
		"FLUSH_MAX_RETRIES", "FLUSH_RETRY_BACKOFF", "FLUSH_WRITE_TIMEOUT",
		"DOMAIN_RULES_PATH", "LOG_LEVEL", "METRICS_NAMESPACE",
		"CORS_ALLOWED_ORIGINS", "ENABLE_CORS", "ENABLE_METRICS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ServerAddress)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, StorageMemory, cfg.StorageBackend)
	assert.Equal(t, 500*time.Millisecond, cfg.SnapshotQuietPeriod)
	assert.Equal(t, 5*time.Second, cfg.SnapshotMaxPendingAge)
	assert.True(t, cfg.SnapshotVerifyChecksums)
	assert.Equal(t, 3, cfg.FlushMaxRetries)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, "atelier", cfg.MetricsNamespace)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("SERVER_ADDRESS", ":9000")
	t.Setenv("STORAGE_BACKEND", "redis")
	t.Setenv("REDIS_URL", "redis://cache.internal:6379/2")
	t.Setenv("SNAPSHOT_QUIET_PERIOD", "250ms")
	t.Setenv("SNAPSHOT_MAX_PENDING_AGE", "2s")
	t.Setenv("FLUSH_MAX_RETRIES", "5")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://studio.example, https://admin.example")
	t.Setenv("ENABLE_METRICS", "false")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.ServerAddress)
	assert.Equal(t, StorageRedis, cfg.StorageBackend)
	assert.Equal(t, "redis://cache.internal:6379/2", cfg.RedisURL)
	assert.Equal(t, 250*time.Millisecond, cfg.SnapshotQuietPeriod)
	assert.Equal(t, 2*time.Second, cfg.SnapshotMaxPendingAge)
	assert.Equal(t, 5, cfg.FlushMaxRetries)
	assert.Equal(t, []string{"https://studio.example", "https://admin.example"}, cfg.CORSAllowedOrigins)
	assert.False(t, cfg.EnableMetrics)
}

func TestLoadConfigRejectsUnknownBackend(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("STORAGE_BACKEND", "postgres")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown storage backend")
}

func TestLoadConfigRejectsMemoryInProduction(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("STORAGE_BACKEND", "memory")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be used in production")
}

func TestLoadConfigRejectsInvertedFlushWindows(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("SNAPSHOT_QUIET_PERIOD", "10s")
	t.Setenv("SNAPSHOT_MAX_PENDING_AGE", "1s")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shorter than the quiet period")
}

func TestValidateDynamoRequirements(t *testing.T) {
	cfg := &Config{
		Environment:           "development",
		StorageBackend:        StorageDynamoDB,
		AWSRegion:             "eu-west-1",
		SnapshotQuietPeriod:   time.Second,
		SnapshotMaxPendingAge: time.Second,
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DYNAMODB_TABLE")

	cfg.DynamoDBTable = "atelier-snapshots"
	cfg.AWSRegion = ""
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AWS_REGION")

	cfg.AWSRegion = "eu-west-1"
	assert.NoError(t, cfg.Validate())
}
