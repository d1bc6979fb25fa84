package statistics

import (
	"errors"
	"math"

	"github.com/aristath/finreport/internal/domain"
	"github.com/aristath/finreport/internal/modules/alignment"
	"github.com/aristath/finreport/pkg/formulas"
	"github.com/rs/zerolog"
)

// SecurityStats holds annualized figures for one security
type SecurityStats struct {
	Code       string  `json:"code"`
	Return     float64 `json:"annual_return"`
	Volatility float64 `json:"annual_volatility"`
}

// Result is the statistics section of a report
type Result struct {
	Codes       []string        `json:"codes"`
	Covariance  [][]float64     `json:"covariance"`
	Correlation [][]float64     `json:"correlation"`
	Securities  []SecurityStats `json:"securities"`
	// Beta is nil when the benchmark is missing or degenerate
	Beta       *float64    `json:"beta"`
	AssetBetas []AssetBeta `json:"asset_betas,omitempty"`

	PortfolioReturn     float64 `json:"portfolio_annual_return"`
	PortfolioVolatility float64 `json:"portfolio_annual_volatility"`
}

// Calculator computes the statistics section
type Calculator struct {
	log zerolog.Logger
}

// NewCalculator creates a statistics calculator
func NewCalculator(log zerolog.Logger) *Calculator {
	return &Calculator{
		log: log.With().Str("component", "statistics").Logger(),
	}
}

// Compute derives covariance, correlation and beta. Beta problems are recorded
// as warnings and leave Beta nil; they never fail the computation.
func (c *Calculator) Compute(set *alignment.AlignedSet, weights map[string]float64, warnings *domain.Warnings) (*Result, error) {
	if warnings == nil {
		warnings = domain.NewWarnings(c.log)
	}
	codes := set.Codes

	cov, err := SampleCovariance(set, codes)
	if err != nil {
		return nil, err
	}
	corr, flat := CorrelationFromCovariance(cov, codes)
	for _, code := range flat {
		warnings.Add(domain.WarningZeroVariance, code,
			"zero return variance, correlation set to 0 against other securities")
	}

	result := &Result{
		Codes:       codes,
		Covariance:  ToRows(cov),
		Correlation: ToRows(corr),
	}
	for i, code := range codes {
		result.Securities = append(result.Securities, SecurityStats{
			Code:       code,
			Return:     formulas.AnnualizedReturn(formulas.Mean(set.Returns[code])),
			Volatility: math.Sqrt(cov.At(i, i) * formulas.TradingDaysPerYear),
		})
	}

	portfolio, err := PortfolioReturns(set, weights)
	if err != nil {
		warnings.Add(domain.WarningDataGap, "", "portfolio returns unavailable: %v", err)
		return result, nil
	}
	result.PortfolioReturn = formulas.AnnualizedReturn(formulas.Mean(portfolio))
	result.PortfolioVolatility = formulas.AnnualizedVolatility(portfolio)

	if !set.HasBenchmark() {
		warnings.Add(domain.WarningDataGap, "", "no benchmark series, beta unavailable")
		return result, nil
	}

	beta, err := Beta(portfolio, set.Benchmark)
	switch {
	case errors.Is(err, domain.ErrDegenerateBenchmark):
		warnings.Add(domain.WarningDegenerateBenchmark, "", "%v", err)
	case err != nil:
		warnings.Add(domain.WarningDataGap, "", "beta unavailable: %v", err)
	default:
		result.Beta = &beta
		if assetBetas, err := RegressionBetas(set, weights); err == nil {
			result.AssetBetas = assetBetas
		}
	}

	c.log.Debug().
		Int("securities", len(codes)).
		Int("observations", set.Len()).
		Bool("beta_available", result.Beta != nil).
		Msg("Statistics computed")

	return result, nil
}
