package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "pgx", cfg.DatabaseDriver)
	assert.Equal(t, 15*time.Second, cfg.ERPTimeout)
	assert.True(t, cfg.RosterCache)
	assert.Equal(t, time.Minute, cfg.RosterCacheTTL)
	assert.False(t, cfg.Production())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("ERP_TIMEOUT", "3s")
	t.Setenv("ROSTER_CACHE", "false")
	t.Setenv("RATE_LIMIT_PER_MIN", "30")
	t.Setenv("SESSION_IDLE_TTL", "soon")

	cfg := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.True(t, cfg.Production())
	assert.Equal(t, 3*time.Second, cfg.ERPTimeout)
	assert.False(t, cfg.RosterCache)
	assert.Equal(t, 30, cfg.RateLimitPerMin)
	assert.Equal(t, 2*time.Hour, cfg.SessionIdleTTL, "invalid durations fall back")
}

func TestLoadDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("ERP_BASE_URL=https://erp.example.edu\nHTTP_PORT=9000\n"), 0o600))
	t.Setenv("HTTP_PORT", "7000")
	// Setenv registers the restore; the variable itself must be absent for the file to apply.
	t.Setenv("ERP_BASE_URL", "unused")
	require.NoError(t, os.Unsetenv("ERP_BASE_URL"))

	cfg := Load(path)
	assert.Equal(t, "7000", cfg.HTTPPort)
	assert.Equal(t, "https://erp.example.edu", cfg.ERPBaseURL)
}
