package di

import (
	"fmt"

	"github.com/aristath/riskpilot/internal/config"
	"github.com/aristath/riskpilot/internal/scheduler"
	"github.com/rs/zerolog"
)

// maintenanceSchedule runs the ledger health check and WAL checkpoint
const maintenanceSchedule = "0 4 * * *"

type scheduledJob struct {
	job      scheduler.Job
	schedule string
}

// RegisterJobs registers every background job with the scheduler
func RegisterJobs(sched *scheduler.Scheduler, c *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	instances := &JobInstances{
		Cycle:       scheduler.NewCycleJob(c.Cycle, log),
		Validation:  scheduler.NewValidationJob(c.Validation, log),
		Maintenance: scheduler.NewMaintenanceJob(c.LedgerDB, log),
	}
	if c.Archive != nil {
		instances.Archive = scheduler.NewArchiveJob(c.Archive, log)
	}

	register := []scheduledJob{
		{instances.Cycle, cfg.CycleSchedule},
		{instances.Validation, cfg.ValidationCron},
		{instances.Maintenance, maintenanceSchedule},
	}
	if instances.Archive != nil {
		register = append(register, scheduledJob{instances.Archive, cfg.ArchiveCron})
	}

	for _, r := range register {
		if err := sched.AddJob(r.schedule, r.job); err != nil {
			return nil, fmt.Errorf("failed to register %s job: %w", r.job.Name(), err)
		}
	}

	log.Info().Int("jobs", len(register)).Msg("Background jobs registered")
	return instances, nil
}
