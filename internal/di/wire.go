package di

import (
	"context"
	"fmt"

	"github.com/aristath/riskpilot/internal/config"
	"github.com/aristath/riskpilot/internal/database"
	"github.com/aristath/riskpilot/internal/metrics"
	"github.com/aristath/riskpilot/internal/modules/allocation"
	"github.com/aristath/riskpilot/internal/modules/feeds"
	"github.com/aristath/riskpilot/internal/modules/policy"
	"github.com/aristath/riskpilot/internal/reliability"
	"github.com/aristath/riskpilot/internal/services"
	"github.com/rs/zerolog"
)

// Wire initializes all dependencies and returns a fully configured container.
// Order of operations:
// 1. Load the policy
// 2. Open and migrate the ledger
// 3. Build the feeds
// 4. Build the services
func Wire(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Container, error) {
	p, err := policy.LoadOrDefault(cfg.PolicyPath, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy: %w", err)
	}

	ledgerDB, err := database.New(database.Config{
		Path:    cfg.LedgerPath(),
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ledger database: %w", err)
	}
	if err := ledgerDB.Migrate(); err != nil {
		ledgerDB.Close()
		return nil, fmt.Errorf("failed to migrate ledger database: %w", err)
	}

	container := &Container{
		LedgerDB: ledgerDB,
		Policy:   p,
		Metrics:  metrics.New(),
	}

	if err := initializeServices(ctx, container, cfg, log); err != nil {
		ledgerDB.Close()
		return nil, err
	}

	log.Info().
		Str("ledger", cfg.LedgerPath()).
		Bool("archive", container.Archive != nil).
		Msg("Dependency injection wiring completed successfully")

	return container, nil
}

func initializeServices(ctx context.Context, c *Container, cfg *config.Config, log zerolog.Logger) error {
	engine, err := allocation.NewEngine(c.Policy)
	if err != nil {
		return fmt.Errorf("failed to build allocation table: %w", err)
	}
	c.Allocation = engine

	// Trend indicators are derived from local price files, the rest come
	// from the indicator feed
	trend := feeds.NewTrendSource(c.Policy, feeds.NewCSVPriceSource(cfg.PriceFeedDir), log)
	router := feeds.NewRouter(feeds.NewJSONFileSource(cfg.IndicatorFeed, log), trend)
	fetcher := feeds.NewFetcher(router, cfg.FetchTimeout, log)

	lock := reliability.NewRunLock(cfg.LockPath(), cfg.LockTimeout, log)

	c.Cycle, err = services.NewCycleService(
		c.Policy,
		c.LedgerDB,
		fetcher,
		feeds.NewCSVPositionSource(cfg.PositionFeed, log),
		lock,
		c.Metrics,
		cfg.DataDir,
		log,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize cycle service: %w", err)
	}

	c.Validation = services.NewValidationService(c.Policy, c.LedgerDB, cfg.BenchmarkFeed, c.Metrics, log)

	if cfg.Archive.Enabled() {
		store, err := reliability.NewS3Client(ctx, reliability.S3Config{
			Endpoint:        cfg.Archive.Endpoint,
			Region:          cfg.Archive.Region,
			Bucket:          cfg.Archive.Bucket,
			AccessKeyID:     cfg.Archive.AccessKeyID,
			SecretAccessKey: cfg.Archive.SecretAccessKey,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize archive store: %w", err)
		}
		c.Archive = reliability.NewArchiveService(store, c.LedgerDB, cfg.DataDir, cfg.Archive.RetentionDays, log)
	}

	return nil
}
