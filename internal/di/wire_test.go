package di

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/aristath/riskpilot/internal/config"
	"github.com/aristath/riskpilot/internal/scheduler"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		DataDir:        dir,
		IndicatorFeed:  filepath.Join(dir, "feeds", "indicators.json"),
		PriceFeedDir:   filepath.Join(dir, "feeds", "prices"),
		PositionFeed:   filepath.Join(dir, "feeds", "positions.csv"),
		BenchmarkFeed:  filepath.Join(dir, "feeds", "prices", "SPY.csv"),
		CycleSchedule:  "0 22 * * 1-5",
		ValidationCron: "0 8 * * 6",
		ArchiveCron:    "30 3 * * *",
		FetchTimeout:   time.Second,
		LockTimeout:    time.Minute,
		Port:           8080,
	}
}

func TestWire(t *testing.T) {
	cfg := testConfig(t)

	c, err := Wire(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer c.Close()

	assert.NotNil(t, c.LedgerDB)
	assert.NotNil(t, c.Policy)
	assert.NotNil(t, c.Cycle)
	assert.NotNil(t, c.Validation)
	assert.NotNil(t, c.Allocation)
	assert.Nil(t, c.Archive)
	assert.FileExists(t, cfg.LedgerPath())
}

func TestWire_ArchiveEnabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Archive.Bucket = "riskpilot-archive"
	cfg.Archive.Region = "auto"
	cfg.Archive.Endpoint = "http://127.0.0.1:9000"
	cfg.Archive.AccessKeyID = "key"
	cfg.Archive.SecretAccessKey = "secret"
	cfg.Archive.RetentionDays = 30

	c, err := Wire(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer c.Close()

	assert.NotNil(t, c.Archive)
}

func TestWire_MissingPolicy(t *testing.T) {
	cfg := testConfig(t)
	cfg.PolicyPath = filepath.Join(cfg.DataDir, "missing.yaml")

	_, err := Wire(context.Background(), cfg, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load policy")
}

func TestRegisterJobs(t *testing.T) {
	cfg := testConfig(t)
	c, err := Wire(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer c.Close()

	sched := scheduler.New(zerolog.Nop())
	jobs, err := RegisterJobs(sched, c, cfg, zerolog.Nop())
	require.NoError(t, err)

	assert.Nil(t, jobs.Archive)
	registered := sched.Jobs()
	assert.Len(t, registered, 3)
	assert.Contains(t, registered, "cycle")
	assert.Contains(t, registered, "validation")
	assert.Contains(t, registered, jobs.Maintenance.Name())
}

func TestRegisterJobs_DisabledSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.ValidationCron = ""
	c, err := Wire(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer c.Close()

	sched := scheduler.New(zerolog.Nop())
	_, err = RegisterJobs(sched, c, cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.NotContains(t, sched.Jobs(), "validation")
}
