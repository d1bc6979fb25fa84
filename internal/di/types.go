// Package di provides dependency injection type definitions.
package di

import (
	"github.com/aristath/finreport/internal/analysis"
	"github.com/aristath/finreport/internal/database"
	"github.com/aristath/finreport/internal/events"
	"github.com/aristath/finreport/internal/modules/historical"
	"github.com/aristath/finreport/internal/modules/ledger"
	"github.com/aristath/finreport/internal/modules/optimization"
	"github.com/aristath/finreport/internal/modules/reports"
	"github.com/aristath/finreport/internal/reliability"
	"github.com/aristath/finreport/internal/scheduler"
)

// Container holds all application dependencies
type Container struct {
	// Databases
	LedgerDB  *database.DB
	HistoryDB *database.DB
	ReportsDB *database.DB

	// Events
	EventBus     *events.Bus
	EventManager *events.Manager

	// Repositories
	LedgerRepo  *ledger.Repository
	HistoryRepo *historical.Repository
	ReportsRepo *reports.Repository

	// Services
	WorkerPool *optimization.WorkerPool
	Engine     *analysis.Engine
	R2Client   *reliability.R2Client        // nil when publishing is disabled
	Publisher  *reliability.ReportPublisher // nil when publishing is disabled

	// Jobs
	Scheduler          *scheduler.Scheduler
	ReportJob          *scheduler.ReportJob
	DailyMaintenance   *reliability.DailyMaintenanceJob
	WeeklyMaintenance  *reliability.WeeklyMaintenanceJob
	PublishedRetention *reliability.PublishedRetentionJob // nil when publishing is disabled
}

// Databases returns the open databases keyed by name
func (c *Container) Databases() map[string]*database.DB {
	return map[string]*database.DB{
		c.LedgerDB.Name():  c.LedgerDB,
		c.HistoryDB.Name(): c.HistoryDB,
		c.ReportsDB.Name(): c.ReportsDB,
	}
}

// Close closes every database, returning the first error
func (c *Container) Close() error {
	var first error
	for _, db := range []*database.DB{c.LedgerDB, c.HistoryDB, c.ReportsDB} {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
