package di

import (
	"context"

	"github.com/aristath/finreport/internal/config"
	"github.com/aristath/finreport/internal/reliability"
	"github.com/aristath/finreport/internal/scheduler"
	"github.com/rs/zerolog"
)

// Schedules of the maintenance jobs (cron with seconds)
const (
	DailyMaintenanceSchedule   = "0 30 2 * * *"
	WeeklyMaintenanceSchedule  = "@weekly"
	PublishedRetentionSchedule = "0 0 3 * * *"
)

// reportsToKeep is how many stored reports each portfolio retains
const reportsToKeep = 30

// RegisterJobs creates the jobs and adds them to a new scheduler. The
// scheduler is not started. Failed runs are emitted as error events.
func RegisterJobs(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	var emitter scheduler.ErrorEmitter
	if container.EventManager != nil {
		emitter = container.EventManager
	}
	container.Scheduler = scheduler.New(emitter, log)

	// A nil *ReportPublisher must not become a non-nil interface
	var publisher scheduler.Publisher
	if container.Publisher != nil {
		publisher = container.Publisher
	}

	container.ReportJob = scheduler.NewReportJob(
		ctx,
		cfg.PortfoliosFile,
		container.Engine,
		container.ReportsRepo,
		publisher,
		log,
	)
	container.DailyMaintenance = reliability.NewDailyMaintenanceJob(
		container.Databases(),
		container.ReportsRepo,
		reportsToKeep,
		cfg.DataDir,
		log,
	)
	container.WeeklyMaintenance = reliability.NewWeeklyMaintenanceJob(container.Databases(), log)

	entries := []scheduler.Entry{
		{Schedule: cfg.ReportSchedule, Job: container.ReportJob},
		{Schedule: DailyMaintenanceSchedule, Job: container.DailyMaintenance},
		{Schedule: WeeklyMaintenanceSchedule, Job: container.WeeklyMaintenance},
	}
	if container.Publisher != nil {
		container.PublishedRetention = reliability.NewPublishedRetentionJob(
			container.Publisher,
			container.ReportJob,
			cfg.R2.RetentionDays,
			log,
		)
		entries = append(entries, scheduler.Entry{Schedule: PublishedRetentionSchedule, Job: container.PublishedRetention})
	}
	return container.Scheduler.Register(entries...)
}
