package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, 10, cfg.Matching.DefaultBatchSize)
	assert.Equal(t, 10, cfg.Matching.DefaultWaitMinutes)
	assert.Equal(t, 5*time.Minute, cfg.Matching.CacheTTL)
	assert.Equal(t, 3, cfg.Escalation.MaxRetries)
	assert.Equal(t, 5*time.Minute, cfg.Escalation.SweepInterval)
	assert.Equal(t, "substitutes", cfg.Notifications.ChannelPrefix)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("MATCHING_DEFAULT_BATCH_SIZE", "4")
	t.Setenv("ESCALATION_RETRY_DELAY", "250ms")
	t.Setenv("ESCALATION_SWEEP_INTERVAL", "30s")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example ,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Matching.DefaultBatchSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Escalation.RetryDelay)
	assert.Equal(t, 30*time.Second, cfg.Escalation.SweepInterval)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}

func TestLoadFallsBackOnInvalidValues(t *testing.T) {
	t.Setenv("MATCHING_DEFAULT_WAIT_MINUTES", "0")
	t.Setenv("JWT_EXPIRATION", "soon")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Matching.DefaultWaitMinutes)
	assert.Equal(t, 24*time.Hour, cfg.JWT.Expiration)
}
