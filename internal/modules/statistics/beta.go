package statistics

import (
	"fmt"
	"math"

	"github.com/aristath/finreport/internal/domain"
	"github.com/aristath/finreport/internal/modules/alignment"
	"gonum.org/v1/gonum/stat"
)

// PortfolioReturns is the fixed-weight daily return series sum_i w_i * r_i,t.
// Weights are taken for codes present in the set and renormalized to sum to 1.
func PortfolioReturns(set *alignment.AlignedSet, weights map[string]float64) ([]float64, error) {
	total := 0.0
	for _, code := range set.Codes {
		total += weights[code]
	}
	if total <= 0 {
		return nil, fmt.Errorf("no positive weight on aligned securities")
	}

	out := make([]float64, set.Len())
	for _, code := range set.Codes {
		w := weights[code] / total
		if w == 0 {
			continue
		}
		for t, r := range set.Returns[code] {
			out[t] += w * r
		}
	}
	return out, nil
}

// Beta returns Cov(p, b) / Var(b) using sample moments.
// A benchmark with zero variance yields ErrDegenerateBenchmark.
func Beta(returns, benchmark []float64) (float64, error) {
	if len(returns) != len(benchmark) {
		return 0, fmt.Errorf("length mismatch: %d returns vs %d benchmark", len(returns), len(benchmark))
	}
	if len(returns) < 2 {
		return 0, fmt.Errorf("%w: need at least 2 observations", domain.ErrDataGap)
	}

	variance := stat.Variance(benchmark, nil)
	if variance == 0 || math.IsNaN(variance) {
		return 0, fmt.Errorf("%w: benchmark return variance is zero", domain.ErrDegenerateBenchmark)
	}
	return stat.Covariance(returns, benchmark, nil) / variance, nil
}

// AssetBeta is one security's regression against the benchmark.
type AssetBeta struct {
	Code         string  `json:"code"`
	Weight       float64 `json:"weight"`
	Alpha        float64 `json:"alpha"`
	Beta         float64 `json:"beta"`
	WeightedBeta float64 `json:"weighted_beta"`
	RSquared     float64 `json:"r_squared"`
}

// RegressionBetas fits r_i = alpha + beta * r_b by least squares for every
// aligned security.
func RegressionBetas(set *alignment.AlignedSet, weights map[string]float64) ([]AssetBeta, error) {
	if !set.HasBenchmark() {
		return nil, fmt.Errorf("%w: no benchmark series", domain.ErrDataGap)
	}
	if v := stat.Variance(set.Benchmark, nil); v == 0 || math.IsNaN(v) {
		return nil, fmt.Errorf("%w: benchmark return variance is zero", domain.ErrDegenerateBenchmark)
	}

	total := 0.0
	for _, code := range set.Codes {
		total += weights[code]
	}

	betas := make([]AssetBeta, 0, len(set.Codes))
	for _, code := range set.Codes {
		y := set.Returns[code]
		alpha, beta := stat.LinearRegression(set.Benchmark, y, nil, false)
		w := 0.0
		if total > 0 {
			w = weights[code] / total
		}
		betas = append(betas, AssetBeta{
			Code:         code,
			Weight:       w,
			Alpha:        alpha,
			Beta:         beta,
			WeightedBeta: w * beta,
			RSquared:     stat.RSquared(set.Benchmark, y, nil, alpha, beta),
		})
	}
	return betas, nil
}
