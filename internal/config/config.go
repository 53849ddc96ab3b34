// Package config provides configuration management functionality.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds runtime configuration. Engine tuning lives in the policy file.
type Config struct {
	DataDir        string // Base directory for the ledger, lock and reports (always absolute)
	LogLevel       string
	PolicyPath     string // Empty means the embedded default policy
	IndicatorFeed  string
	PriceFeedDir   string
	PositionFeed   string
	BenchmarkFeed  string
	CycleSchedule  string
	ValidationCron string
	ArchiveCron    string
	FetchTimeout   time.Duration
	LockTimeout    time.Duration
	Port           int
	LogPretty      bool
	Archive        ArchiveConfig
}

// ArchiveConfig configures the S3-compatible ledger archive
type ArchiveConfig struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	RetentionDays   int
}

// Enabled reports whether an archive bucket is configured
func (a ArchiveConfig) Enabled() bool {
	return a.Bucket != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("RISKPILOT_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	feedDir := filepath.Join(absDataDir, "feeds")
	priceDir := getEnv("PRICE_FEED_DIR", filepath.Join(feedDir, "prices"))

	cfg := &Config{
		DataDir:        absDataDir,
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogPretty:      getEnvAsBool("LOG_PRETTY", false),
		Port:           getEnvAsInt("PORT", 8080),
		PolicyPath:     getEnv("POLICY_PATH", ""),
		IndicatorFeed:  getEnv("INDICATOR_FEED_PATH", filepath.Join(feedDir, "indicators.json")),
		PriceFeedDir:   priceDir,
		PositionFeed:   getEnv("POSITION_FEED_PATH", filepath.Join(feedDir, "positions.csv")),
		BenchmarkFeed:  getEnv("BENCHMARK_PRICES_PATH", filepath.Join(priceDir, "SPY.csv")),
		CycleSchedule:  getEnv("CYCLE_SCHEDULE", "0 22 * * 1-5"),
		ValidationCron: getEnv("VALIDATION_SCHEDULE", "0 8 * * 6"),
		ArchiveCron:    getEnv("ARCHIVE_SCHEDULE", "30 3 * * *"),
		FetchTimeout:   time.Duration(getEnvAsInt("FETCH_TIMEOUT_SECONDS", 30)) * time.Second,
		LockTimeout:    time.Duration(getEnvAsInt("LOCK_TIMEOUT_SECONDS", 1800)) * time.Second,
		Archive: ArchiveConfig{
			Endpoint:        getEnv("ARCHIVE_ENDPOINT", ""),
			Region:          getEnv("ARCHIVE_REGION", "auto"),
			Bucket:          getEnv("ARCHIVE_BUCKET", ""),
			AccessKeyID:     getEnv("ARCHIVE_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("ARCHIVE_SECRET_ACCESS_KEY", ""),
			RetentionDays:   getEnvAsInt("ARCHIVE_RETENTION_DAYS", 90),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LedgerPath returns the ledger database file
func (c *Config) LedgerPath() string {
	return filepath.Join(c.DataDir, "ledger.db")
}

// LockPath returns the cycle lock file
func (c *Config) LockPath() string {
	return filepath.Join(c.DataDir, "cycle.lock")
}

// Validate checks schedules, timeouts and archive credentials
func (c *Config) Validate() error {
	var errs []error

	for name, spec := range map[string]string{
		"CYCLE_SCHEDULE":      c.CycleSchedule,
		"VALIDATION_SCHEDULE": c.ValidationCron,
		"ARCHIVE_SCHEDULE":    c.ArchiveCron,
	} {
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			errs = append(errs, fmt.Errorf("%s: invalid cron expression %q: %w", name, spec, err))
		}
	}

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT: out of range: %d", c.Port))
	}
	if c.FetchTimeout <= 0 {
		errs = append(errs, errors.New("FETCH_TIMEOUT_SECONDS: must be positive"))
	}
	if c.LockTimeout <= 0 {
		errs = append(errs, errors.New("LOCK_TIMEOUT_SECONDS: must be positive"))
	}
	if c.Archive.RetentionDays < 0 {
		errs = append(errs, errors.New("ARCHIVE_RETENTION_DAYS: must not be negative"))
	}
	if (c.Archive.AccessKeyID == "") != (c.Archive.SecretAccessKey == "") {
		errs = append(errs, errors.New("ARCHIVE_ACCESS_KEY_ID and ARCHIVE_SECRET_ACCESS_KEY must be set together"))
	}

	return errors.Join(errs...)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
