package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/bill-engine/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "billengine.db", cfg.Database.Path)
	assert.Equal(t, 3, cfg.Schedule.HorizonMonths)
	assert.Equal(t, "@hourly", cfg.Schedule.Cron)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BILLENGINE_PORT", "9090")
	t.Setenv("BILLENGINE_SCHEDULE_HORIZON_MONTHS", "6")
	t.Setenv("BILLENGINE_DATABASE_PATH", ":memory:")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 6, cfg.Schedule.HorizonMonths)
	assert.Equal(t, ":memory:", cfg.Database.Path)
}

func TestLoad_RejectsNonPositiveHorizon(t *testing.T) {
	t.Setenv("BILLENGINE_SCHEDULE_HORIZON_MONTHS", "0")

	_, err := config.Load()
	assert.Error(t, err)
}
