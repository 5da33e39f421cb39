package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("FLOWLENS_AUTH_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "memory", cfg.Source.Backend)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 100.0, cfg.RateLimit.RPS)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.False(t, cfg.Similarity.Enabled)
	assert.Equal(t, 5, cfg.Data.KeepPerFlow)
	assert.Equal(t, 10, cfg.Data.DefaultTopN)
	assert.Equal(t, int64(256)<<20, cfg.Data.MaxUploadBytes)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("FLOWLENS_AUTH_ENABLED", "true")
	t.Setenv("FLOWLENS_API_KEY_MASTER", "secret")
	t.Setenv("FLOWLENS_HTTP_ADDR", ":9090")
	t.Setenv("FLOWLENS_ENV", "production")
	t.Setenv("FLOWLENS_SOURCE", "clickhouse")
	t.Setenv("FLOWLENS_CLICKHOUSE_TIMEOUT", "10s")
	t.Setenv("FLOWLENS_RATE_LIMIT_RPS", "2.5")
	t.Setenv("FLOWLENS_KEEP_PER_FLOW", "3")
	t.Setenv("FLOWLENS_AUTH_SKIP_PATHS", "/health, /metrics ,/debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "clickhouse", cfg.Source.Backend)
	assert.Equal(t, 10*time.Second, cfg.ClickHouse.Timeout)
	assert.Equal(t, 2.5, cfg.RateLimit.RPS)
	assert.Equal(t, 3, cfg.Data.KeepPerFlow)
	assert.Equal(t, []string{"/health", "/metrics", "/debug"}, cfg.Auth.SkipPaths)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("FLOWLENS_AUTH_ENABLED", "false")
	t.Setenv("FLOWLENS_DB_PORT", "not-a-number")
	t.Setenv("FLOWLENS_SHUTDOWN_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
}

func TestValidateAuthRequiresKey(t *testing.T) {
	t.Setenv("FLOWLENS_AUTH_ENABLED", "true")
	t.Setenv("FLOWLENS_API_KEY_MASTER", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FLOWLENS_API_KEY_MASTER")
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	t.Setenv("FLOWLENS_AUTH_ENABLED", "false")
	t.Setenv("FLOWLENS_SOURCE", "oracle")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FLOWLENS_SOURCE")
}

func TestValidateSimilarityRequiresKey(t *testing.T) {
	t.Setenv("FLOWLENS_AUTH_ENABLED", "false")
	t.Setenv("FLOWLENS_SIMILARITY_ENABLED", "true")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FLOWLENS_SIMILARITY_API_KEY")
}
