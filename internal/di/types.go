/**
 * Package di provides dependency injection wiring for riskpilot.
 *
 * The Container is the single source of truth for service instances. It is
 * built by Wire() and handed to the CLI commands and the HTTP server.
 */
package di

import (
	"github.com/aristath/riskpilot/internal/database"
	"github.com/aristath/riskpilot/internal/metrics"
	"github.com/aristath/riskpilot/internal/modules/allocation"
	"github.com/aristath/riskpilot/internal/modules/policy"
	"github.com/aristath/riskpilot/internal/reliability"
	"github.com/aristath/riskpilot/internal/scheduler"
	"github.com/aristath/riskpilot/internal/services"
)

// Container holds all dependencies for the application
type Container struct {
	LedgerDB *database.DB
	Policy   *policy.Policy
	Metrics  *metrics.Recorder

	Allocation *allocation.Engine
	Cycle      *services.CycleService
	Validation *services.ValidationService

	// Archive is nil when no archive bucket is configured
	Archive *reliability.ArchiveService
}

// Close releases the container's resources
func (c *Container) Close() error {
	if c.LedgerDB == nil {
		return nil
	}
	return c.LedgerDB.Close()
}

// JobInstances holds the registered scheduler jobs
type JobInstances struct {
	Cycle       scheduler.Job
	Validation  scheduler.Job
	Archive     scheduler.Job // nil when archiving is disabled
	Maintenance scheduler.Job
}
