package auth_service_config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goodSecret = "0123456789abcdef0123456789abcdef"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", goodSecret)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, time.Hour, cfg.Auth.AccessTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.Auth.RefreshTTL)
	assert.Equal(t, 100, cfg.RateLimit.Max)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window())
	assert.Equal(t, "memory", cfg.RateLimit.Driver)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, "none", cfg.Events.Driver)
	assert.Equal(t, "refresh_token", cfg.Auth.CookieName)
	assert.NotEmpty(t, cfg.DB.DSN)
	assert.Equal(t, 2*time.Second, cfg.DB.QueryTimeout)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "auth-service.yaml")
	yaml := strings.Join([]string{
		"auth:",
		"  secret: " + goodSecret,
		"  access_ttl: 15m",
		"  refresh_ttl: 7d",
		"ratelimit:",
		"  max: 0",
		"storage:",
		"  driver: memory",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("RATELIMIT_WINDOW_MS", "1500")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.RefreshTTL)
	assert.Equal(t, 0, cfg.RateLimit.Max)
	assert.Equal(t, 1500*time.Millisecond, cfg.RateLimit.Window())
	assert.Equal(t, "memory", cfg.Storage.Driver)
}

func TestLoad_FailsFast(t *testing.T) {
	cases := map[string]map[string]string{
		"missing secret": {},
		"short secret":   {"AUTH_SECRET": "short"},
		"bad access ttl": {"AUTH_SECRET": goodSecret, "AUTH_ACCESS_TTL": "soon"},
		"zero refresh":   {"AUTH_SECRET": goodSecret, "AUTH_REFRESH_TTL": "0d"},
		"negative max":   {"AUTH_SECRET": goodSecret, "RATELIMIT_MAX": "-1"},
		"bad limiter":    {"AUTH_SECRET": goodSecret, "RATELIMIT_DRIVER": "memcached"},
		"bad storage":    {"AUTH_SECRET": goodSecret, "STORAGE_DRIVER": "sqlite"},
		"bad events":     {"AUTH_SECRET": goodSecret, "EVENTS_DRIVER": "sqs"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("AUTH_SECRET", "")
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			require.Error(t, err)
		})
	}
}

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	t.Setenv("AUTH_SECRET", goodSecret)
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
}
