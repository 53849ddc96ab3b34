package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("RISKPILOT_DATA_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.PolicyPath)
	assert.Equal(t, filepath.Join(dir, "feeds", "indicators.json"), cfg.IndicatorFeed)
	assert.Equal(t, filepath.Join(dir, "feeds", "prices", "SPY.csv"), cfg.BenchmarkFeed)
	assert.Equal(t, 30*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 30*time.Minute, cfg.LockTimeout)
	assert.Equal(t, filepath.Join(dir, "ledger.db"), cfg.LedgerPath())
	assert.Equal(t, filepath.Join(dir, "cycle.lock"), cfg.LockPath())
	assert.False(t, cfg.Archive.Enabled())
}

func TestLoad_Overrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("RISKPILOT_DATA_DIR", dir)
	t.Setenv("PORT", "9100")
	t.Setenv("FETCH_TIMEOUT_SECONDS", "5")
	t.Setenv("PRICE_FEED_DIR", "/srv/prices")
	t.Setenv("ARCHIVE_BUCKET", "ledger")
	t.Setenv("ARCHIVE_RETENTION_DAYS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.FetchTimeout)
	assert.Equal(t, "/srv/prices", cfg.PriceFeedDir)
	assert.Equal(t, filepath.Join("/srv/prices", "SPY.csv"), cfg.BenchmarkFeed)
	assert.True(t, cfg.Archive.Enabled())
	// Unparsable numbers fall back to the default
	assert.Equal(t, 90, cfg.Archive.RetentionDays)
}

func TestLoad_InvalidSchedule(t *testing.T) {
	t.Setenv("RISKPILOT_DATA_DIR", t.TempDir())
	t.Setenv("CYCLE_SCHEDULE", "every day")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CYCLE_SCHEDULE")
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	cfg := &Config{
		Port:          0,
		FetchTimeout:  0,
		LockTimeout:   time.Minute,
		CycleSchedule: "0 22 * * 1-5",
		Archive:       ArchiveConfig{AccessKeyID: "key", RetentionDays: -1},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT")
	assert.Contains(t, err.Error(), "FETCH_TIMEOUT_SECONDS")
	assert.Contains(t, err.Error(), "ARCHIVE_RETENTION_DAYS")
	assert.Contains(t, err.Error(), "ARCHIVE_SECRET_ACCESS_KEY")
}
