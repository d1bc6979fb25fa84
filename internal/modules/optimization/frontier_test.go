package optimization

import (
	"context"
	"math"
	"testing"

	"github.com/aristath/finreport/internal/domain"
	"github.com/aristath/finreport/internal/modules/alignment"
	testutil "github.com/aristath/finreport/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// oscillating returns drift + amp*sin(freq*t + phase); distinct frequencies
// keep the covariance matrix full rank.
func oscillating(n int, drift, amp, freq, phase float64) []float64 {
	out := make([]float64, n)
	for t := range out {
		out[t] = drift + amp*math.Sin(freq*float64(t)+phase)
	}
	return out
}

func testSet(returns map[string][]float64, codes ...string) *alignment.AlignedSet {
	n := len(returns[codes[0]])
	return &alignment.AlignedSet{
		Codes:   codes,
		Dates:   testutil.BusinessDays(testutil.Day("2023-01-02"), n),
		Returns: returns,
	}
}

func threeAssetSet() *alignment.AlignedSet {
	return testSet(map[string][]float64{
		"A": oscillating(120, 0.0008, 0.010, 0.7, 0),
		"B": oscillating(120, 0.0004, 0.006, 1.3, 0.5),
		"C": oscillating(120, 0.0002, 0.003, 2.1, 1.0),
	}, "A", "B", "C")
}

func newSimulator(workers int) *Simulator {
	return NewSimulator(NewWorkerPool(workers), zerolog.Nop())
}

func TestSimulate_WeightsOnSimplex(t *testing.T) {
	result, err := newSimulator(4).Simulate(context.Background(), threeAssetSet(), nil,
		Config{Trials: 2000, RiskFree: 0.0021, Bins: 20, Seed: 7}, nil)
	require.NoError(t, err)

	assert.Equal(t, 2000, result.Trials)
	check := func(tr Trial) {
		sum := 0.0
		for _, w := range tr.Weights {
			assert.GreaterOrEqual(t, w, 0.0)
			sum += w
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
	}
	check(result.Optimal)
	check(result.MinVolatility)
	for _, tr := range result.Frontier {
		check(tr)
	}
}

func TestSimulate_ReductionInvariants(t *testing.T) {
	result, err := newSimulator(3).Simulate(context.Background(), threeAssetSet(), nil,
		Config{Trials: 3000, RiskFree: 0.0021, Bins: 25, Seed: 11}, nil)
	require.NoError(t, err)

	require.NotEmpty(t, result.Frontier)
	assert.LessOrEqual(t, len(result.Frontier), 25)
	for i, tr := range result.Frontier {
		assert.LessOrEqual(t, tr.Sharpe, result.Optimal.Sharpe)
		assert.GreaterOrEqual(t, tr.Volatility, result.MinVolatility.Volatility)
		if i > 0 {
			assert.Greater(t, tr.Volatility, result.Frontier[i-1].Volatility)
		}
	}

	expectedSharpe := (result.Optimal.Return - 0.0021) / result.Optimal.Volatility
	assert.InDelta(t, expectedSharpe, result.Optimal.Sharpe, 1e-12)
	assert.LessOrEqual(t, len(result.Cloud), 2000)
}

func TestSimulate_IndependentOfWorkerCount(t *testing.T) {
	cfg := Config{Trials: 1500, RiskFree: 0.01, Bins: 30, Seed: 42}
	set := threeAssetSet()

	one, err := newSimulator(1).Simulate(context.Background(), set, nil, cfg, nil)
	require.NoError(t, err)
	many, err := newSimulator(8).Simulate(context.Background(), set, nil, cfg, nil)
	require.NoError(t, err)

	assert.Equal(t, one.Optimal, many.Optimal)
	assert.Equal(t, one.MinVolatility, many.MinVolatility)
	assert.Equal(t, one.Frontier, many.Frontier)
	assert.Equal(t, one.Cloud, many.Cloud)

	other, err := newSimulator(8).Simulate(context.Background(), set, nil, Config{Trials: 1500, RiskFree: 0.01, Bins: 30, Seed: 43}, nil)
	require.NoError(t, err)
	assert.NotEqual(t, one.Cloud, other.Cloud)
}

func TestSimulate_CurrentPortfolioPoint(t *testing.T) {
	result, err := newSimulator(2).Simulate(context.Background(), threeAssetSet(),
		map[string]float64{"A": 2, "B": 1, "C": 1, "GONE": 5},
		Config{Trials: 100, Seed: 1}, nil)
	require.NoError(t, err)

	require.NotNil(t, result.Current)
	assert.Equal(t, []float64{0.5, 0.25, 0.25}, result.Current.Weights)
	assert.Equal(t, -1, result.Current.Index)

	weights := result.OptimalWeights()
	assert.Len(t, weights, 3)
}

func TestSimulate_ConstrainedOptima(t *testing.T) {
	result, err := newSimulator(3).Simulate(context.Background(), threeAssetSet(), nil,
		Config{Trials: 3000, RiskFree: 0.0021, Seed: 5, MinWeight: DefaultMinWeight}, nil)
	require.NoError(t, err)

	require.NotNil(t, result.ConstrainedOptimal)
	require.NotNil(t, result.ConstrainedMinVolatility)
	assert.Positive(t, result.Qualifying)
	assert.Less(t, result.Qualifying, result.Trials)
	assert.Equal(t, DefaultMinWeight, result.MinWeight)

	for _, tr := range []*Trial{result.ConstrainedOptimal, result.ConstrainedMinVolatility} {
		for _, w := range tr.Weights {
			assert.GreaterOrEqual(t, w, DefaultMinWeight)
		}
	}
	assert.LessOrEqual(t, result.ConstrainedOptimal.Sharpe, result.Optimal.Sharpe)
	assert.GreaterOrEqual(t, result.ConstrainedMinVolatility.Volatility, result.MinVolatility.Volatility)
	assert.GreaterOrEqual(t, result.ConstrainedOptimal.Sharpe, result.ConstrainedMinVolatility.Sharpe)
}

func TestSimulate_ConstrainedOptimaUnavailable(t *testing.T) {
	warnings := domain.NewWarnings(zerolog.Nop())
	// three securities cannot each hold 40%
	result, err := newSimulator(2).Simulate(context.Background(), threeAssetSet(), nil,
		Config{Trials: 500, Seed: 5, MinWeight: 0.4}, warnings)
	require.NoError(t, err)

	assert.Nil(t, result.ConstrainedOptimal)
	assert.Nil(t, result.ConstrainedMinVolatility)
	assert.Zero(t, result.Qualifying)
	assert.Equal(t, 1, warnings.Count(domain.WarningSimulationUnavailable))
}

func TestSimulate_NoFloorSkipsConstrainedOptima(t *testing.T) {
	warnings := domain.NewWarnings(zerolog.Nop())
	result, err := newSimulator(2).Simulate(context.Background(), threeAssetSet(), nil,
		Config{Trials: 200, Seed: 5}, warnings)
	require.NoError(t, err)

	assert.Nil(t, result.ConstrainedOptimal)
	assert.Empty(t, warnings.Items())
}

func TestSimulate_UnavailableCases(t *testing.T) {
	sim := newSimulator(2)
	cfg := Config{Trials: 100, Seed: 1}

	single := testSet(map[string][]float64{"A": oscillating(30, 0.001, 0.01, 0.7, 0)}, "A")
	_, err := sim.Simulate(context.Background(), single, nil, cfg, nil)
	assert.ErrorIs(t, err, domain.ErrSimulationUnavailable)

	flat := testSet(map[string][]float64{
		"A": make([]float64, 30),
		"B": make([]float64, 30),
	}, "A", "B")
	_, err = sim.Simulate(context.Background(), flat, nil, cfg, nil)
	assert.ErrorIs(t, err, domain.ErrSimulationUnavailable)

	a := oscillating(30, 0.001, 0.01, 0.7, 0)
	duplicate := testSet(map[string][]float64{"A": a, "B": a}, "A", "B")
	_, err = sim.Simulate(context.Background(), duplicate, nil, cfg, nil)
	assert.ErrorIs(t, err, domain.ErrSimulationUnavailable)
}

func TestSimulate_CapRecordsWarning(t *testing.T) {
	warnings := domain.NewWarnings(zerolog.Nop())
	result, err := newSimulator(2).Simulate(context.Background(), threeAssetSet(), nil,
		Config{Trials: 5000, MaxTrials: 500, Seed: 3}, warnings)
	require.NoError(t, err)

	assert.Equal(t, 500, result.Trials)
	assert.Equal(t, 1, warnings.Count(domain.WarningSimulationCapped))
}

func TestSimulate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newSimulator(2).Simulate(ctx, threeAssetSet(), nil, Config{Trials: 100000, Seed: 3}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSimulate_RejectsNonPositiveTrials(t *testing.T) {
	_, err := newSimulator(2).Simulate(context.Background(), threeAssetSet(), nil, Config{}, nil)
	assert.Error(t, err)
}
