package di

import (
	"context"
	"fmt"

	"github.com/aristath/finreport/internal/analysis"
	"github.com/aristath/finreport/internal/config"
	"github.com/aristath/finreport/internal/events"
	"github.com/aristath/finreport/internal/modules/optimization"
	"github.com/aristath/finreport/internal/reliability"
	"github.com/rs/zerolog"
)

// InitializeServices creates the event bus, the analysis engine and the
// optional report publisher
func InitializeServices(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	container.EventBus = events.NewBus(log)
	container.EventManager = events.NewManager(container.EventBus, log)

	workers := cfg.SimulationWorkers
	if workers <= 0 {
		workers = optimization.DefaultWorkers()
	}
	container.WorkerPool = optimization.NewWorkerPool(workers)

	container.Engine = analysis.NewEngine(
		container.LedgerRepo,
		container.HistoryRepo,
		container.WorkerPool,
		container.EventManager,
		analysis.Options{
			MaxSimulations:  cfg.MaxSimulations,
			DefaultRiskFree: cfg.DefaultRiskFree,
		},
		log,
	)

	if !cfg.R2.Enabled() {
		log.Info().Msg("R2 publishing disabled")
		return nil
	}

	client, err := reliability.NewR2Client(ctx, cfg.R2, log)
	if err != nil {
		return fmt.Errorf("failed to create R2 client: %w", err)
	}
	container.R2Client = client
	container.Publisher = reliability.NewReportPublisher(client, container.EventManager, log)
	log.Info().Str("bucket", cfg.R2.Bucket).Msg("R2 publishing enabled")

	return nil
}
