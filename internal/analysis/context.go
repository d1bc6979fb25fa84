package analysis

import (
	"time"

	"github.com/aristath/finreport/internal/config"
	"github.com/aristath/finreport/internal/domain"
	"github.com/aristath/finreport/internal/events"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const eventModule = "analysis"

// runContext carries per-run identity, warnings and event emission.
type runContext struct {
	runID     string
	cfg       config.PortfolioConfig
	startedAt time.Time
	warnings  *domain.Warnings
	emitter   Emitter
	log       zerolog.Logger
}

func newRunContext(cfg config.PortfolioConfig, emitter Emitter, log zerolog.Logger) *runContext {
	runID := uuid.NewString()
	runLog := log.With().
		Str("run_id", runID).
		Str("portfolio", cfg.Name).
		Logger()
	return &runContext{
		runID:     runID,
		cfg:       cfg,
		startedAt: time.Now().UTC(),
		warnings:  domain.NewWarnings(runLog),
		emitter:   emitter,
		log:       runLog,
	}
}

func (rc *runContext) emit(data events.EventData) {
	if rc.emitter != nil {
		rc.emitter.EmitTyped(eventModule, data)
	}
}

func (rc *runContext) started() {
	rc.log.Info().Msg("Analysis started")
	rc.emit(&events.RunStartedData{RunID: rc.runID, Portfolio: rc.cfg.Name})
}

func (rc *runContext) stage(name string) {
	rc.log.Debug().Str("stage", name).Msg("Analysis stage")
	rc.emit(&events.RunStageData{RunID: rc.runID, Portfolio: rc.cfg.Name, Stage: name})
}

func (rc *runContext) completed(warnings int) {
	elapsed := time.Since(rc.startedAt)
	rc.log.Info().
		Int("warnings", warnings).
		Dur("elapsed", elapsed).
		Msg("Analysis completed")
	rc.emit(&events.RunCompletedData{
		RunID:     rc.runID,
		Portfolio: rc.cfg.Name,
		Warnings:  warnings,
		Elapsed:   elapsed.String(),
	})
}

func (rc *runContext) failed(err error) {
	rc.log.Error().Err(err).Msg("Analysis failed")
	rc.emit(&events.RunFailedData{RunID: rc.runID, Portfolio: rc.cfg.Name, Error: err.Error()})
}
