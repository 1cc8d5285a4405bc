package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "http://localhost:8000", cfg.BackendURL)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, "checkout-outbox", cfg.KafkaTopic)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSOrigins)
	assert.Equal(t, uint32(5), cfg.BreakerFailures)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("CART_SYNC_HTTP_PORT", "9090")
	t.Setenv("CART_SYNC_KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("CART_SYNC_REQUEST_TIMEOUT", "3s")
	t.Setenv("CART_SYNC_DEVELOPMENT", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout)
	assert.True(t, cfg.Development)
}

func TestLoad_DotEnvDoesNotOverrideEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("CART_SYNC_HTTP_PORT=7000\nCART_SYNC_LOG_LEVEL=debug\n"), 0o600))
	t.Setenv("CART_SYNC_HTTP_PORT", "9090")
	// godotenv sets variables directly; register them for cleanup
	t.Setenv("CART_SYNC_LOG_LEVEL", "")
	require.NoError(t, os.Unsetenv("CART_SYNC_LOG_LEVEL"))

	cfg, err := Load(path, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"backend url without host", "CART_SYNC_BACKEND_URL", "localhost"},
		{"zero engines", "CART_SYNC_MAX_ENGINES", "0"},
		{"bad duration", "CART_SYNC_REQUEST_TIMEOUT", "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
