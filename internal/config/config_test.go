package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimalYAML = `
storage:
  dsn: "postgres://localhost/knock"
jwt:
  secret: "0123456789abcdef0123456789abcdef"
magic_link:
  base_url: "https://app.example.com/auth/verify"
`

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeYAML(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, "knock", cfg.JWT.Issuer)
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL())
	assert.Equal(t, 720*time.Hour, cfg.RefreshTTL())
	assert.Equal(t, 15*time.Minute, cfg.MagicLinkTTL())
	assert.Equal(t, 32, cfg.MagicLink.TokenBytes)
	assert.Equal(t, 1, cfg.TOTP.Skew)
	assert.Equal(t, 5*time.Minute, cfg.ChallengeTTL())
	assert.Equal(t, 5*time.Second, cfg.PollInterval())
	assert.Equal(t, time.Minute, cfg.BackoffBase())
	assert.Equal(t, time.Hour, cfg.MaxBackoff())
	assert.Equal(t, 0, cfg.EmailWorker.MaxAttempts)
	assert.Equal(t, "memory", cfg.Rate.Backend)
	assert.True(t, cfg.RevokeOnRotate(), "revoke_on_rotate default debe ser true")
}

func TestLoadRevokeOnRotateExplicitFalse(t *testing.T) {
	cfg, err := Load(writeYAML(t, `
storage:
  dsn: "postgres://localhost/knock"
jwt:
  secret: "0123456789abcdef0123456789abcdef"
  revoke_on_rotate: false
magic_link:
  base_url: "https://app.example.com/auth/verify"
`))
	require.NoError(t, err)
	assert.False(t, cfg.RevokeOnRotate())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":9090")
	t.Setenv("JWT_ACCESS_TTL", "5m")
	t.Setenv("RATE_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("EMAIL_WORKER_MAX_ATTEMPTS", "8")

	cfg, err := Load(writeYAML(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 5*time.Minute, cfg.AccessTTL())
	assert.Equal(t, "redis", cfg.Rate.Backend)
	assert.Equal(t, "redis:6379", cfg.Rate.Redis.Addr)
	assert.Equal(t, 8, cfg.EmailWorker.MaxAttempts)
}

func TestLoadRejectsShortSecret(t *testing.T) {
	_, err := Load(writeYAML(t, `
storage:
  dsn: "postgres://localhost/knock"
jwt:
  secret: "too-short"
magic_link:
  base_url: "https://app.example.com/auth/verify"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt.secret")
}

func TestLoadRejectsMissingDSN(t *testing.T) {
	_, err := Load(writeYAML(t, `
jwt:
  secret: "0123456789abcdef0123456789abcdef"
magic_link:
  base_url: "https://app.example.com/auth/verify"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.dsn")
}

func TestLoadRejectsBadDuration(t *testing.T) {
	_, err := Load(writeYAML(t, minimalYAML+`
webauthn:
  challenge_ttl: "cinco minutos"
`))
	require.Error(t, err)
}

func TestLoadRejectsRedisWithoutAddr(t *testing.T) {
	_, err := Load(writeYAML(t, minimalYAML+`
rate:
  backend: redis
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate.redis.addr")
}

func TestProdForcesRateLimiting(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	cfg, err := Load(writeYAML(t, minimalYAML))
	require.NoError(t, err)
	assert.True(t, cfg.Rate.Enabled)
}
