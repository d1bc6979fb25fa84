package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aristath/finreport/internal/analysis"
	"github.com/aristath/finreport/internal/config"
	"github.com/rs/zerolog"
)

// ErrUnknownPortfolio is returned for a portfolio missing from the portfolios file
var ErrUnknownPortfolio = errors.New("unknown portfolio")

// BatchRunner analyses portfolios
type BatchRunner interface {
	RunBatch(ctx context.Context, cfgs []config.PortfolioConfig) []analysis.BatchResult
}

// ReportStore persists finished reports
type ReportStore interface {
	Save(ctx context.Context, report *analysis.Report) error
}

// Publisher ships finished reports off-box
type Publisher interface {
	Publish(ctx context.Context, report *analysis.Report) (string, error)
}

// ReportJob runs every configured portfolio and stores the reports. Runs are
// serialized; a scheduled run waits for a manual one to finish.
type ReportJob struct {
	ctx            context.Context
	portfoliosFile string
	runner         BatchRunner
	store          ReportStore
	publisher      Publisher
	mu             sync.Mutex
	log            zerolog.Logger
}

// NewReportJob creates the report job. publisher may be nil.
func NewReportJob(
	ctx context.Context,
	portfoliosFile string,
	runner BatchRunner,
	store ReportStore,
	publisher Publisher,
	log zerolog.Logger,
) *ReportJob {
	return &ReportJob{
		ctx:            ctx,
		portfoliosFile: portfoliosFile,
		runner:         runner,
		store:          store,
		publisher:      publisher,
		log:            log.With().Str("job", "report_batch").Logger(),
	}
}

// Name returns the job name for scheduler
func (j *ReportJob) Name() string {
	return "report_batch"
}

// Run executes the batch for the scheduler
func (j *ReportJob) Run() error {
	_, err := j.RunAll(j.ctx)
	return err
}

// Portfolios reads the portfolios file
func (j *ReportJob) Portfolios() ([]config.PortfolioConfig, error) {
	return config.LoadPortfolios(j.portfoliosFile)
}

// RunAll analyses every portfolio. The returned error joins the failures;
// successful reports are stored regardless.
func (j *ReportJob) RunAll(ctx context.Context) ([]analysis.BatchResult, error) {
	cfgs, err := j.Portfolios()
	if err != nil {
		return nil, err
	}
	return j.run(ctx, cfgs)
}

// RunPortfolio analyses a single portfolio by name
func (j *ReportJob) RunPortfolio(ctx context.Context, name string) (*analysis.Report, error) {
	cfgs, err := j.Portfolios()
	if err != nil {
		return nil, err
	}
	cfg, ok := config.FindPortfolio(cfgs, name)
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrUnknownPortfolio)
	}

	results, err := j.run(ctx, []config.PortfolioConfig{*cfg})
	if err != nil {
		return nil, err
	}
	return results[0].Report, nil
}

func (j *ReportJob) run(ctx context.Context, cfgs []config.PortfolioConfig) ([]analysis.BatchResult, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.log.Info().Int("portfolios", len(cfgs)).Msg("Starting report batch")

	results := j.runner.RunBatch(ctx, cfgs)
	var errs []error
	stored := 0
	for i := range results {
		res := &results[i]
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.Portfolio, res.Err))
			continue
		}
		if err := j.store.Save(ctx, res.Report); err != nil {
			res.Err = err
			errs = append(errs, fmt.Errorf("%s: %w", res.Portfolio, err))
			continue
		}
		stored++

		if j.publisher != nil {
			if _, err := j.publisher.Publish(ctx, res.Report); err != nil {
				// The local copy is authoritative
				j.log.Error().Err(err).Str("portfolio", res.Portfolio).Msg("Failed to publish report")
			}
		}
	}

	j.log.Info().
		Int("stored", stored).
		Int("failed", len(errs)).
		Msg("Report batch completed")

	return results, errors.Join(errs...)
}
