package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0644))
	return dir
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func TestLoadConfig_Defaults(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, "https://pulscore.org/api", cfg.Gateway.BackendURL)
	assert.Equal(t, cfg.Gateway.BackendURL, cfg.Gateway.LegacyURL)
	assert.Equal(t, 30*time.Second, cfg.Gateway.Timeout)
	assert.False(t, cfg.Gateway.LoginFallback)
	assert.Equal(t, "local", cfg.Storage.Type)
	assert.Equal(t, "memory", cfg.Session.Backend)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := writeConfig(t, `
server:
  port: "8081"
  mode: debug
gateway:
  backend_url: http://backend.local/api/
  timeout: 5s
  login_fallback: true
storage:
  type: minio
  minio_bucket: media
session:
  backend: redis
  ttl: 1h
`)
	t.Setenv("MINIO_ENDPOINT", "minio:9000")
	t.Setenv("REDIS_HOST", "redis.local")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "8081", cfg.Server.Port)
	assert.Equal(t, "http://backend.local/api", cfg.Gateway.BackendURL)
	assert.Equal(t, "http://backend.local/api", cfg.Gateway.LegacyURL, "legacy url falls back to backend url")
	assert.Equal(t, 5*time.Second, cfg.Gateway.Timeout)
	assert.True(t, cfg.Gateway.LoginFallback)
	assert.Equal(t, "minio:9000", cfg.Storage.MinioEndpoint)
	assert.Equal(t, "media", cfg.Storage.MinioBucket)
	assert.Equal(t, "redis", cfg.Session.Backend)
	assert.Equal(t, time.Hour, cfg.Session.TTL)
	assert.Equal(t, "redis.local", cfg.Redis.Host)
	assert.Equal(t, 6379, cfg.Redis.Port)
}

func TestLoadConfig_EnvOnly(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	t.Run("backend override moves legacy upstream", func(t *testing.T) {
		t.Setenv("BACKEND_URL", "http://staging.local/api/")

		cfg, err := LoadConfig(dir)
		require.NoError(t, err)
		assert.Equal(t, "http://staging.local/api", cfg.Gateway.BackendURL)
		assert.Equal(t, "http://staging.local/api", cfg.Gateway.LegacyURL)
	})

	t.Run("explicit legacy upstream", func(t *testing.T) {
		t.Setenv("BACKEND_URL", "http://staging.local/api")
		t.Setenv("LEGACY_BACKEND_URL", "http://legacy.local:5005/api/")

		cfg, err := LoadConfig(dir)
		require.NoError(t, err)
		assert.Equal(t, "http://staging.local/api", cfg.Gateway.BackendURL)
		assert.Equal(t, "http://legacy.local:5005/api", cfg.Gateway.LegacyURL)
	})
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Server:  ServerConfig{Mode: "debug"},
			Gateway: GatewayConfig{BackendURL: "http://b"},
			Storage: StorageConfig{Type: "local"},
			Session: SessionConfig{Backend: "memory"},
		}
	}

	t.Run("unknown storage", func(t *testing.T) {
		c := base()
		c.Storage.Type = "ftp"
		assert.Error(t, c.Validate())
	})

	t.Run("unknown session backend", func(t *testing.T) {
		c := base()
		c.Session.Backend = "cookie"
		assert.Error(t, c.Validate())
	})

	t.Run("login fallback rejected in release", func(t *testing.T) {
		c := base()
		c.Server.Mode = "release"
		c.Gateway.LoginFallback = true
		assert.Error(t, c.Validate())
	})

	t.Run("missing backend", func(t *testing.T) {
		c := base()
		c.Gateway.BackendURL = ""
		assert.Error(t, c.Validate())
	})
}
