package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 30, cfg.Decision.NearExpiryWindowDays)
	assert.False(t, cfg.Decision.StrictJurisdictions)
	assert.Equal(t, StoreMemory, cfg.Submission.Store)
	assert.True(t, cfg.Submission.EnforceStatusTransitions)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, "compliancelab.audit", cfg.Kafka.AuditTopic)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("LAB_ADDR", ":9090")
	t.Setenv("LAB_NEAR_EXPIRY_WINDOW_DAYS", "7")
	t.Setenv("LAB_STRICT_JURISDICTIONS", "true")
	t.Setenv("LAB_ENFORCE_STATUS_TRANSITIONS", "false")
	t.Setenv("LAB_STORE", "Redis")
	t.Setenv("LAB_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("LAB_KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("LAB_SHUTDOWN_TIMEOUT", "3s")

	cfg, err := load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 7, cfg.Decision.NearExpiryWindowDays)
	assert.True(t, cfg.Decision.StrictJurisdictions)
	assert.False(t, cfg.Submission.EnforceStatusTransitions)
	assert.Equal(t, StoreRedis, cfg.Submission.Store)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lab.yaml")
	require.NoError(t, os.WriteFile(path, []byte("near_expiry_window_days: 14\nlog_format: text\n"), 0o600))
	t.Setenv("LAB_CONFIG_FILE", path)
	t.Setenv("LAB_LOG_FORMAT", "json")

	cfg, err := load(viper.New())
	require.NoError(t, err)
	assert.Equal(t, 14, cfg.Decision.NearExpiryWindowDays)
	assert.Equal(t, "json", cfg.Logging.Format, "environment overrides the file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"redis without url", map[string]string{"LAB_STORE": "redis"}, "redis_url is required"},
		{"postgres without url", map[string]string{"LAB_STORE": "postgres"}, "database_url is required"},
		{"unknown store", map[string]string{"LAB_STORE": "sqlite"}, `unknown store "sqlite"`},
		{"negative window", map[string]string{"LAB_NEAR_EXPIRY_WINDOW_DAYS": "-1"}, "must be non-negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := load(viper.New())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
