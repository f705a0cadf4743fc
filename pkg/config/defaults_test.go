package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORAGE_DRIVER", StorageSQLite)
	t.Setenv("ATTRIBUTION_LOOKBACK_DAYS", "14")
	t.Setenv("SLOW_QUERY_THRESHOLD_MS", "250")
	t.Setenv("SERVER_READ_TIMEOUT", "3s")
	t.Setenv("SERVER_SHUTDOWN_TIMEOUT", "10s")
	t.Setenv("SERVER_MAX_HEADER_BYTES", "4096")
	t.Setenv("LOG_TO_FILE", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")

	Load()

	assert.Equal(t, "9090", Port)
	assert.Equal(t, StorageSQLite, StorageDriver)
	assert.Equal(t, 14, LookbackDays)
	assert.Equal(t, 250*time.Millisecond, SlowQueryThreshold)
	assert.Equal(t, 3*time.Second, ServerReadTimeout)
	assert.Equal(t, 10*time.Second, ServerShutdownTimeout)
	assert.Equal(t, 4096, ServerMaxHeaderBytes)
	assert.True(t, LogToFile)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, CORSAllowedOrigins)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("ATTRIBUTION_LOOKBACK_DAYS", "thirty")
	t.Setenv("SERVER_IDLE_TIMEOUT", "forever")
	t.Setenv("LOG_JSON", "maybe")

	Load()

	assert.Equal(t, 30, LookbackDays)
	assert.Equal(t, 60*time.Second, ServerIdleTimeout)
	assert.True(t, LogJSON)
}

func TestRedactHidesSecrets(t *testing.T) {
	assert.Equal(t, "****", redact("ATTRIBUTION_JWT_SECRET", "abc"))
	assert.Equal(t, "****", redact("TURSO_AUTH_TOKEN", "abc"))
	assert.Equal(t, "8080", redact("PORT", "8080"))
}
