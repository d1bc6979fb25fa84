package reliability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/finreport/internal/config"
	"github.com/aristath/finreport/internal/database"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
)

// ReportPruner trims locally stored reports
type ReportPruner interface {
	Prune(ctx context.Context, keep int) (int64, error)
}

// DailyMaintenanceJob checks database integrity, checkpoints WAL files,
// watches free disk space and prunes old reports
type DailyMaintenanceJob struct {
	databases map[string]*database.DB
	pruner    ReportPruner
	keep      int
	dataDir   string
	minFreeGB float64
	diskUsage func(path string) (*disk.UsageStat, error)
	log       zerolog.Logger
}

// NewDailyMaintenanceJob creates the daily maintenance job. pruner may be nil.
func NewDailyMaintenanceJob(
	databases map[string]*database.DB,
	pruner ReportPruner,
	keep int,
	dataDir string,
	log zerolog.Logger,
) *DailyMaintenanceJob {
	return &DailyMaintenanceJob{
		databases: databases,
		pruner:    pruner,
		keep:      keep,
		dataDir:   dataDir,
		minFreeGB: 0.5,
		diskUsage: disk.Usage,
		log:       log.With().Str("job", "daily_maintenance").Logger(),
	}
}

// Name returns the job name for scheduler
func (j *DailyMaintenanceJob) Name() string {
	return "daily_maintenance"
}

// Run executes the daily maintenance job
func (j *DailyMaintenanceJob) Run() error {
	j.log.Info().Msg("Starting daily maintenance")
	startTime := time.Now()

	for name, db := range j.databases {
		var result string
		if err := db.Conn().QueryRow("PRAGMA quick_check").Scan(&result); err != nil {
			return fmt.Errorf("integrity check of %s failed: %w", name, err)
		}
		if result != "ok" {
			j.log.Error().Str("database", name).Str("result", result).Msg("Database integrity check failed")
			return fmt.Errorf("database %s is corrupt: %s", name, result)
		}

		if _, err := db.Conn().Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			// Not critical, the next run retries
			j.log.Warn().Str("database", name).Err(err).Msg("WAL checkpoint failed")
		}
	}

	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	if j.pruner != nil && j.keep > 0 {
		removed, err := j.pruner.Prune(context.Background(), j.keep)
		if err != nil {
			j.log.Error().Err(err).Msg("Report pruning failed")
		} else {
			j.log.Debug().Int64("removed", removed).Msg("Reports pruned")
		}
	}

	j.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Msg("Daily maintenance completed successfully")
	return nil
}

// checkDiskSpace fails when the data directory's filesystem is nearly full
func (j *DailyMaintenanceJob) checkDiskSpace() error {
	usage, err := j.diskUsage(j.dataDir)
	if err != nil {
		return fmt.Errorf("failed to stat filesystem: %w", err)
	}

	availableGB := float64(usage.Free) / 1e9
	j.log.Debug().Float64("available_gb", availableGB).Float64("used_pct", usage.UsedPercent).Msg("Disk space check")

	if availableGB < j.minFreeGB {
		j.log.Error().Float64("available_gb", availableGB).Msg("CRITICAL: Insufficient disk space")
		return fmt.Errorf("only %.2f GB free on %s", availableGB, j.dataDir)
	}
	if availableGB < 5.0 {
		j.log.Warn().Float64("available_gb", availableGB).Msg("Disk space running low")
	}
	return nil
}

// WeeklyMaintenanceJob vacuums and analyzes the regenerable databases
type WeeklyMaintenanceJob struct {
	databases map[string]*database.DB
	log       zerolog.Logger
}

// NewWeeklyMaintenanceJob creates the weekly maintenance job
func NewWeeklyMaintenanceJob(databases map[string]*database.DB, log zerolog.Logger) *WeeklyMaintenanceJob {
	return &WeeklyMaintenanceJob{
		databases: databases,
		log:       log.With().Str("job", "weekly_maintenance").Logger(),
	}
}

// Name returns the job name for scheduler
func (j *WeeklyMaintenanceJob) Name() string {
	return "weekly_maintenance"
}

// Run executes the weekly maintenance job
func (j *WeeklyMaintenanceJob) Run() error {
	j.log.Info().Msg("Starting weekly maintenance")

	for name, db := range j.databases {
		start := time.Now()
		if _, err := db.Conn().Exec("VACUUM"); err != nil {
			return fmt.Errorf("failed to vacuum %s: %w", name, err)
		}
		if _, err := db.Conn().Exec("ANALYZE"); err != nil {
			j.log.Warn().Str("database", name).Err(err).Msg("ANALYZE failed")
		}
		j.log.Debug().Str("database", name).Dur("duration_ms", time.Since(start)).Msg("Database vacuumed")
	}

	j.log.Info().Msg("Weekly maintenance completed")
	return nil
}

// ReportRotator deletes expired published reports
type ReportRotator interface {
	Rotate(ctx context.Context, portfolio string, retentionDays int) (int, error)
}

// PortfolioLister returns the configured portfolios
type PortfolioLister interface {
	Portfolios() ([]config.PortfolioConfig, error)
}

// PublishedRetentionJob rotates published reports of every configured portfolio
type PublishedRetentionJob struct {
	rotator       ReportRotator
	portfolios    PortfolioLister
	retentionDays int
	log           zerolog.Logger
}

// NewPublishedRetentionJob creates the retention job
func NewPublishedRetentionJob(rotator ReportRotator, portfolios PortfolioLister, retentionDays int, log zerolog.Logger) *PublishedRetentionJob {
	return &PublishedRetentionJob{
		rotator:       rotator,
		portfolios:    portfolios,
		retentionDays: retentionDays,
		log:           log.With().Str("job", "published_retention").Logger(),
	}
}

// Name returns the job name for scheduler
func (j *PublishedRetentionJob) Name() string {
	return "published_retention"
}

// Run rotates each portfolio independently; failures are joined
func (j *PublishedRetentionJob) Run() error {
	cfgs, err := j.portfolios.Portfolios()
	if err != nil {
		return fmt.Errorf("failed to load portfolios: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	var errs []error
	total := 0
	for _, cfg := range cfgs {
		deleted, err := j.rotator.Rotate(ctx, cfg.Name, j.retentionDays)
		if err != nil {
			errs = append(errs, fmt.Errorf("rotate %s: %w", cfg.Name, err))
			continue
		}
		total += deleted
	}

	j.log.Info().Int("deleted", total).Int("retention_days", j.retentionDays).Msg("Published report rotation completed")
	return errors.Join(errs...)
}
