// Package analysis runs the full portfolio pipeline: ledger replay, market
// valuation, alignment, statistics, frontier simulation and report assembly.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/finreport/internal/config"
	"github.com/aristath/finreport/internal/domain"
	"github.com/aristath/finreport/internal/events"
	"github.com/aristath/finreport/internal/modules/alignment"
	"github.com/aristath/finreport/internal/modules/allocation"
	"github.com/aristath/finreport/internal/modules/optimization"
	"github.com/aristath/finreport/internal/modules/performance"
	"github.com/aristath/finreport/internal/modules/portfolio"
	"github.com/aristath/finreport/internal/modules/statistics"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// SeriesProvider supplies raw price and exchange-rate history
type SeriesProvider interface {
	PriceSeries(ctx context.Context, symbol string, from, to time.Time) (domain.Series, error)
	RateSeries(ctx context.Context, base, quote string, from, to time.Time) (domain.Series, error)
}

// LedgerSource supplies a portfolio's transaction records
type LedgerSource interface {
	List(ctx context.Context, portfolio string) ([]domain.TransactionRecord, error)
}

// Emitter publishes run events
type Emitter interface {
	EmitTyped(module string, data events.EventData)
}

// Options tune the engine
type Options struct {
	MaxSimulations  int
	DefaultRiskFree float64
	CloudSize       int
}

// Engine runs portfolio analyses
type Engine struct {
	ledger      LedgerSource
	series      SeriesProvider
	emitter     Emitter
	aggregator  *portfolio.Aggregator
	aligner     *alignment.Aligner
	calculator  *statistics.Calculator
	simulator   *optimization.Simulator
	performance *performance.Service
	opts        Options
	log         zerolog.Logger
}

// NewEngine creates an engine. emitter may be nil.
func NewEngine(
	ledger LedgerSource,
	series SeriesProvider,
	pool *optimization.WorkerPool,
	emitter Emitter,
	opts Options,
	log zerolog.Logger,
) *Engine {
	if opts.CloudSize <= 0 {
		opts.CloudSize = 2000
	}
	return &Engine{
		ledger:      ledger,
		series:      series,
		emitter:     emitter,
		aggregator:  portfolio.NewAggregator(log),
		aligner:     alignment.NewAligner(log),
		calculator:  statistics.NewCalculator(log),
		simulator:   optimization.NewSimulator(pool, log),
		performance: performance.NewService(log),
		opts:        opts,
		log:         log.With().Str("component", "analysis_engine").Logger(),
	}
}

// Run analyses one portfolio. Data-quality problems become warnings on the
// report; only an unreadable or empty ledger, or cancellation, fails the run.
func (e *Engine) Run(ctx context.Context, cfg config.PortfolioConfig) (*Report, error) {
	rc := newRunContext(cfg, e.emitter, e.log)
	rc.started()

	report, err := e.run(ctx, rc)
	if err != nil {
		rc.failed(err)
		return nil, err
	}

	rc.completed(len(report.Warnings))
	return report, nil
}

func (e *Engine) run(ctx context.Context, rc *runContext) (*Report, error) {
	cfg := rc.cfg
	start, end, cutoff := cfg.Start(), cfg.End(), cfg.Cutoff()

	rc.stage("ledger")
	records, err := e.ledger.List(ctx, cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("portfolio %s: %w", cfg.Name, domain.ErrEmptyLedger)
	}

	book, err := e.aggregator.Aggregate(records, cutoff, rc.warnings)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate ledger: %w", err)
	}

	rc.stage("market_data")
	from := start
	if cutoff.Before(from) {
		from = cutoff
	}
	// Snapshots are valued at the last close on or before their date
	from = from.AddDate(0, 0, -priceLookbackDays)
	market := e.loadMarketData(ctx, rc, book, from, end)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ledgerRates := lastLedgerRates(records)
	market.value(&book.Current, end, ledgerRates, rc.warnings)
	if book.Past != nil {
		market.value(book.Past, cutoff, ledgerRates, rc.warnings)
	}
	weights := book.Current.Weights()

	report := &Report{
		RunID:             rc.runID,
		Portfolio:         cfg.Name,
		ReportingCurrency: cfg.ReportingCurrency,
		GeneratedAt:       rc.startedAt,
		PeriodStart:       start,
		PeriodEnd:         end,
		PastCutoff:        cutoff,
		Current:           snapshotView(&book.Current),
		Past:              snapshotView(book.Past),
		Excluded:          book.Excluded,
		Monthly:           monthlyView(book.Monthly),
	}
	if cfg.Benchmark != nil {
		report.Benchmark = cfg.Benchmark.Code
	}

	rc.stage("allocation")
	included := includedRecords(records, book.Excluded)
	report.Allocation = allocation.CalculateAll(book.Current.Positions)
	report.TotalFees = allocation.TotalFees(included)
	for _, v := range allocation.Variables() {
		report.Fees = append(report.Fees, allocation.CalculateFeesByVariable(included, v))
	}
	report.DividendYields = allocation.DividendYields(book.Current.Positions, end)
	report.Style = allocation.SplitByStyle(book.Current.Positions)

	rc.stage("alignment")
	set, err := e.aligner.Align(market.alignInput(cfg, book.Current.Positions, start, end), rc.warnings)
	if err != nil {
		if !errors.Is(err, domain.ErrDataGap) {
			return nil, fmt.Errorf("failed to align series: %w", err)
		}
		rc.warnings.AddError(domain.WarningDataGap, err)
		rc.warnings.Add(domain.WarningSimulationUnavailable, "", "no aligned return series, risk analysis skipped")
		return e.finish(rc, report), nil
	}

	rc.stage("statistics")
	stats, err := e.calculator.Compute(set, weights, rc.warnings)
	if err != nil {
		rc.warnings.Add(domain.WarningDataGap, "", "statistics unavailable: %v", err)
	} else {
		report.Statistics = stats
	}

	riskFree := cfg.RiskFreeRate(e.opts.DefaultRiskFree)
	simCfg := optimization.Config{
		Trials:    cfg.NumSim,
		Horizon:   cfg.TimeSim,
		RiskFree:  riskFree,
		Bins:      cfg.FrontierBins,
		Seed:      cfg.Seed,
		MaxTrials: e.opts.MaxSimulations,
		CloudSize: e.opts.CloudSize,
		MinWeight: cfg.MinWeightOr(optimization.DefaultMinWeight),
	}

	rc.stage("frontier")
	frontier, err := e.simulator.Simulate(ctx, set, weights, simCfg, rc.warnings)
	switch {
	case err == nil:
		report.Frontier = frontier
		report.OptimalAllocation = frontier.OptimalWeights()
	case errors.Is(err, domain.ErrSimulationUnavailable):
		rc.warnings.AddError(domain.WarningSimulationUnavailable, err)
	default:
		return nil, err
	}

	rc.stage("projection")
	if daily, err := statistics.PortfolioReturns(set, weights); err == nil {
		projection, err := e.simulator.Project(ctx, daily, simCfg)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			rc.warnings.Add(domain.WarningSimulationUnavailable, "", "projection unavailable: %v", err)
		} else {
			report.Projection = projection
		}
	}

	rc.stage("history")
	history, err := e.performance.Build(set, weights, performance.Options{RiskFree: riskFree})
	if err != nil {
		rc.warnings.Add(domain.WarningDataGap, "", "price history unavailable: %v", err)
	} else {
		report.History = history
	}

	return e.finish(rc, report), nil
}

func (e *Engine) finish(rc *runContext, report *Report) *Report {
	report.Warnings = rc.warnings.Items()
	if report.Warnings == nil {
		report.Warnings = []domain.Warning{}
	}
	report.Elapsed = time.Since(rc.startedAt).String()
	return report
}

// BatchResult is the outcome of one portfolio in a batch
type BatchResult struct {
	Portfolio string
	Report    *Report
	Err       error
}

// RunBatch runs every portfolio in order. A failed portfolio does not stop
// the others; cancellation stops the batch.
func (e *Engine) RunBatch(ctx context.Context, cfgs []config.PortfolioConfig) []BatchResult {
	results := make([]BatchResult, 0, len(cfgs))
	for _, cfg := range cfgs {
		if err := ctx.Err(); err != nil {
			results = append(results, BatchResult{Portfolio: cfg.Name, Err: err})
			continue
		}
		report, err := e.Run(ctx, cfg)
		if err != nil {
			e.log.Error().Err(err).Str("portfolio", cfg.Name).Msg("Portfolio analysis failed")
		}
		results = append(results, BatchResult{Portfolio: cfg.Name, Report: report, Err: err})
	}
	return results
}

func includedRecords(records []domain.TransactionRecord, excluded []string) []domain.TransactionRecord {
	if len(excluded) == 0 {
		return records
	}
	skip := make(map[string]bool, len(excluded))
	for _, code := range excluded {
		skip[code] = true
	}
	out := make([]domain.TransactionRecord, 0, len(records))
	for _, rec := range records {
		if !skip[rec.Code] {
			out = append(out, rec)
		}
	}
	return out
}

// lastLedgerRates maps each security to the exchange rate on its latest record.
func lastLedgerRates(records []domain.TransactionRecord) map[string]decimal.Decimal {
	rates := make(map[string]decimal.Decimal)
	for _, rec := range portfolio.SortRecords(records) {
		rates[rec.Code] = rec.ExchangeRate
	}
	return rates
}

func sameCurrency(a, b string) bool {
	return strings.EqualFold(a, b)
}
