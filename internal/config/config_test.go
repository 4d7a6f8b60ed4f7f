package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 60, cfg.Idempotency.InProgressTTLSec)
	assert.Equal(t, 256, cfg.Realtime.ChannelCapacity)
	assert.Equal(t, 3, cfg.Markov.RetryMaxAttempts)
}

func TestEnvOverrideAppliedWhenFileMissing(t *testing.T) {
	t.Setenv("PORT", "9090")
	old := os.Getenv("PORT")
	defer os.Setenv("PORT", old)

	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
}
