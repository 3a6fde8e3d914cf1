package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "0123456789abcdef")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", c.Port)
	assert.Equal(t, []string{"http://localhost:3000"}, c.CORSAllowedOrigins)
	assert.Equal(t, 30*time.Minute, c.PendingDepositTTL)
	assert.True(t, c.RunMigrations)

	s := c.DefaultSettings()
	assert.Equal(t, 10.0, s.CommissionPercentage)
	assert.True(t, s.RunnerStakeRequired)
	assert.Equal(t, "0.0.0.0:8080", c.Addr())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "0123456789abcdef")
	t.Setenv("PORT", "9090")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("DEFAULT_RUNNER_STAKE_REQUIRED", "false")
	t.Setenv("RECONCILE_INTERVAL", "90s")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", c.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, c.CORSAllowedOrigins)
	assert.False(t, c.DefaultSettings().RunnerStakeRequired)
	assert.Equal(t, 90*time.Second, c.ReconcileInterval)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("JWT_SECRET", "short")
	t.Setenv("CHECKOUT_URL", "https://pay.example.com")
	t.Setenv("DEFAULT_COMMISSION_PERCENTAGE", "150")
	t.Setenv("DEFAULT_MAX_TASK_AMOUNT", "9000000000000000000")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DEFAULT_MAX_TASK_AMOUNT")
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.Contains(t, err.Error(), "CHECKOUT_SECRET")
	assert.Contains(t, err.Error(), "DEFAULT_COMMISSION_PERCENTAGE")
}

func TestLoad_BadDuration(t *testing.T) {
	t.Setenv("JWT_SECRET", "0123456789abcdef")
	t.Setenv("PENDING_DEPOSIT_TTL", "soon")

	_, err := Load()
	assert.Error(t, err)
}
