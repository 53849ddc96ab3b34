package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/aristath/riskpilot/internal/database"
	"github.com/aristath/riskpilot/internal/modules/validation"
	"github.com/aristath/riskpilot/internal/reliability"
	"github.com/aristath/riskpilot/internal/services"
	"github.com/rs/zerolog"
)

// CycleRunner runs one scoring cycle
type CycleRunner interface {
	Run(ctx context.Context) (*services.CycleResult, error)
}

// Validator runs the validation pass
type Validator interface {
	Validate(ctx context.Context) (*validation.Report, error)
}

// Archiver uploads and rotates ledger archives
type Archiver interface {
	Archive(ctx context.Context) (*reliability.ArchiveResult, error)
	Rotate(ctx context.Context) (int, error)
}

// CycleJob runs the scoring cycle
type CycleJob struct {
	cycle CycleRunner
	log   zerolog.Logger
}

// NewCycleJob creates a new CycleJob
func NewCycleJob(cycle CycleRunner, log zerolog.Logger) *CycleJob {
	return &CycleJob{cycle: cycle, log: log.With().Str("job", "cycle").Logger()}
}

// Name returns the job name
func (j *CycleJob) Name() string {
	return "cycle"
}

// Run executes the cycle. An overlapping cycle is a skip, not a failure.
func (j *CycleJob) Run(ctx context.Context) error {
	res, err := j.cycle.Run(ctx)
	if errors.Is(err, reliability.ErrCycleInProgress) {
		return nil
	}
	if err != nil {
		return err
	}
	j.log.Info().
		Float64("score", res.Record.Score).
		Str("regime", string(res.Record.Regime)).
		Str("report", res.ReportPath).
		Msg("Scheduled cycle finished")
	return nil
}

// ValidationJob refreshes the validation report
type ValidationJob struct {
	validator Validator
	log       zerolog.Logger
}

// NewValidationJob creates a new ValidationJob
func NewValidationJob(v Validator, log zerolog.Logger) *ValidationJob {
	return &ValidationJob{validator: v, log: log.With().Str("job", "validation").Logger()}
}

// Name returns the job name
func (j *ValidationJob) Name() string {
	return "validation"
}

// Run executes the validation pass. A short ledger is expected early on.
func (j *ValidationJob) Run(ctx context.Context) error {
	rep, err := j.validator.Validate(ctx)
	if errors.Is(err, validation.ErrInsufficientData) {
		j.log.Info().Err(err).Msg("Not enough history to validate yet")
		return nil
	}
	if err != nil {
		return err
	}
	j.log.Info().
		Int("records", rep.Records).
		Int("regime_changes", len(rep.RegimeChanges)).
		Msg("Validation refreshed")
	return nil
}

// ArchiveJob uploads a ledger archive and rotates old ones
type ArchiveJob struct {
	archiver Archiver
	log      zerolog.Logger
}

// NewArchiveJob creates a new ArchiveJob
func NewArchiveJob(a Archiver, log zerolog.Logger) *ArchiveJob {
	return &ArchiveJob{archiver: a, log: log.With().Str("job", "archive").Logger()}
}

// Name returns the job name
func (j *ArchiveJob) Name() string {
	return "archive"
}

// Run uploads first; rotation only runs after a successful upload
func (j *ArchiveJob) Run(ctx context.Context) error {
	if _, err := j.archiver.Archive(ctx); err != nil {
		return err
	}
	if _, err := j.archiver.Rotate(ctx); err != nil {
		return fmt.Errorf("archive uploaded but rotation failed: %w", err)
	}
	return nil
}

// MaintenanceJob checks ledger integrity and truncates the WAL
type MaintenanceJob struct {
	ledgerDB *database.DB
	log      zerolog.Logger
}

// NewMaintenanceJob creates a new MaintenanceJob
func NewMaintenanceJob(ledgerDB *database.DB, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{ledgerDB: ledgerDB, log: log.With().Str("job", "maintenance").Logger()}
}

// Name returns the job name
func (j *MaintenanceJob) Name() string {
	return "maintenance"
}

// Run executes the maintenance job
func (j *MaintenanceJob) Run(ctx context.Context) error {
	if err := j.ledgerDB.HealthCheck(ctx); err != nil {
		j.log.Error().Err(err).Msg("Ledger integrity check failed")
		return err
	}

	if err := j.ledgerDB.WALCheckpoint("TRUNCATE"); err != nil {
		// Not critical, the next checkpoint catches up
		j.log.Warn().Err(err).Msg("WAL checkpoint failed")
	}

	stats, err := j.ledgerDB.GetStats()
	if err != nil {
		return err
	}
	j.log.Info().
		Int64("size_bytes", stats.SizeBytes).
		Int64("wal_size_bytes", stats.WALSizeBytes).
		Int64("freelist_count", stats.FreelistCount).
		Msg("Ledger maintenance completed")
	return nil
}
