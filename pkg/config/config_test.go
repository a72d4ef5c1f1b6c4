package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("SHULE_POSTGRES_URL", "postgres://localhost/shule_test")
	t.Setenv("SHULE_JWT_SECRET", "test-secret")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, 25, cfg.Database.MaxConns)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTTL)
	assert.Equal(t, 14*24*time.Hour, cfg.Auth.RefreshTTL)
	assert.Equal(t, 1024, cfg.Audit.QueueSize)
	assert.True(t, cfg.Observability.MetricsEnabled)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("SHULE_POSTGRES_URL", "postgres://localhost/shule_test")
	t.Setenv("SHULE_JWT_SECRET", "test-secret")
	t.Setenv("SHULE_ACCESS_TTL", "5m")
	t.Setenv("SHULE_POSTGRES_MAX_CONNS", "50")
	t.Setenv("SHULE_REDIS_ENABLED", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.Auth.AccessTTL)
	assert.Equal(t, 50, cfg.Database.MaxConns)
	assert.True(t, cfg.Redis.Enabled)
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("database:\n  url: postgres://file-host/shule\nauth:\n  jwt_secret: from-file\n  access_ttl: 10m\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	t.Setenv("SHULE_CONFIG_FILE", path)
	t.Setenv("SHULE_JWT_SECRET", "from-env")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	// env wins over file
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	// file wins over defaults
	assert.Equal(t, "postgres://file-host/shule", cfg.Database.URL)
	assert.Equal(t, 10*time.Minute, cfg.Auth.AccessTTL)
}

func TestValidate_MissingSecret(t *testing.T) {
	t.Setenv("SHULE_POSTGRES_URL", "postgres://localhost/shule_test")
	t.Setenv("SHULE_JWT_SECRET", "")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT secret")
}

func TestValidate_AccessTTLShorterThanRefresh(t *testing.T) {
	t.Setenv("SHULE_POSTGRES_URL", "postgres://localhost/shule_test")
	t.Setenv("SHULE_JWT_SECRET", "s")
	t.Setenv("SHULE_ACCESS_TTL", "48h")
	t.Setenv("SHULE_REFRESH_TTL", "24h")

	_, err := LoadConfig()
	require.Error(t, err)
}
