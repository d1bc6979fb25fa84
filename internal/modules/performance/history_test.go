package performance

import (
	"testing"

	"github.com/aristath/finreport/internal/domain"
	"github.com/aristath/finreport/internal/modules/alignment"
	testutil "github.com/aristath/finreport/internal/testing"
	"github.com/aristath/finreport/pkg/formulas"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alignedSet(t *testing.T, withBenchmark bool) *alignment.AlignedSet {
	t.Helper()
	const n = 60
	dates := testutil.BusinessDays(testutil.Day("2024-01-01"), n)
	prices := map[string][]float64{
		"AAA": testutil.Wave(100, n, 0.001, 0.01, 0),
		"BBB": testutil.Wave(50, n, 0.0005, 0.02, 1.3),
	}
	set := &alignment.AlignedSet{
		Codes:      []string{"AAA", "BBB"},
		PriceDates: dates,
		Dates:      dates[1:],
		Prices:     prices,
		Returns: map[string][]float64{
			"AAA": formulas.CalculateReturns(prices["AAA"]),
			"BBB": formulas.CalculateReturns(prices["BBB"]),
		},
	}
	if withBenchmark {
		set.BenchmarkPrices = testutil.Wave(4000, n, 0.0007, 0.008, 0.4)
		set.Benchmark = formulas.CalculateReturns(set.BenchmarkPrices)
	}
	return set
}

func TestBuild_NormalizedCurvesStartAtOne(t *testing.T) {
	set := alignedSet(t, false)
	h, err := NewService(zerolog.Nop()).Build(set, nil, Options{})
	require.NoError(t, err)

	require.Len(t, h.Normalized, 2)
	for _, c := range h.Normalized {
		require.Len(t, c.Points, len(set.PriceDates))
		assert.Equal(t, 1.0, c.Points[0].Value)
		assert.Equal(t, set.PriceDates[0].Format(domain.DateLayout), c.Points[0].Time)
	}
	aaa := set.Prices["AAA"]
	assert.InDelta(t, aaa[len(aaa)-1]/aaa[0], h.Normalized[0].Last(), 1e-12)

	assert.Nil(t, h.CurrentWeight)
	assert.Nil(t, h.Benchmark)
	assert.Nil(t, h.RollingVolatility)
	require.Len(t, h.Summaries, 1)
}

func TestBuild_EqualWeightCompoundsMeanReturn(t *testing.T) {
	set := alignedSet(t, false)
	h, err := NewService(zerolog.Nop()).Build(set, nil, Options{})
	require.NoError(t, err)

	expected := 1.0
	for i := 0; i < set.Len(); i++ {
		expected *= 1 + (set.Returns["AAA"][i]+set.Returns["BBB"][i])/2
	}
	require.Len(t, h.EqualWeight.Points, len(set.PriceDates))
	assert.InDelta(t, expected, h.EqualWeight.Last(), 1e-12)
}

func TestBuild_CurrentWeightAndBenchmark(t *testing.T) {
	set := alignedSet(t, true)
	weights := map[string]float64{"AAA": 1, "ZZZ": 5}

	h, err := NewService(zerolog.Nop()).Build(set, weights, Options{VolatilityWindow: 10, RiskFree: 0.01})
	require.NoError(t, err)

	require.NotNil(t, h.CurrentWeight)
	// Only AAA is aligned, so the current-weight curve tracks AAA's price.
	assert.InDelta(t, h.Normalized[0].Last(), h.CurrentWeight.Last(), 1e-9)

	require.NotNil(t, h.Benchmark)
	bench := set.BenchmarkPrices
	assert.InDelta(t, bench[len(bench)-1]/bench[0], h.Benchmark.Last(), 1e-9)

	require.NotNil(t, h.RollingVolatility)
	assert.Len(t, h.RollingVolatility.Points, set.Len()-9)
	for _, p := range h.RollingVolatility.Points {
		assert.Greater(t, p.Value, 0.0)
	}

	require.Len(t, h.Summaries, 3)
	for i := 1; i < len(h.Summaries); i++ {
		assert.GreaterOrEqual(t, h.Summaries[i-1].AnnualizedReturn, h.Summaries[i].AnnualizedReturn)
	}
}

func TestBuild_MovingAverageOfCurrentWeightCurve(t *testing.T) {
	set := alignedSet(t, false)
	h, err := NewService(zerolog.Nop()).Build(set, map[string]float64{"AAA": 1, "BBB": 1},
		Options{MovingAverageWindow: 5})
	require.NoError(t, err)

	require.NotNil(t, h.CurrentWeight)
	require.NotNil(t, h.MovingAverage)
	curve := h.CurrentWeight.Points
	require.Len(t, h.MovingAverage.Points, len(curve)-4)

	first := h.MovingAverage.Points[0]
	assert.Equal(t, curve[4].Time, first.Time)
	sum := 0.0
	for _, p := range curve[:5] {
		sum += p.Value
	}
	assert.InDelta(t, sum/5, first.Value, 1e-12)

	last := h.MovingAverage.Points[len(h.MovingAverage.Points)-1]
	assert.Equal(t, curve[len(curve)-1].Time, last.Time)
}

func TestBuild_MovingAverageNeedsFullWindow(t *testing.T) {
	set := alignedSet(t, false)
	h, err := NewService(zerolog.Nop()).Build(set, map[string]float64{"AAA": 1},
		Options{MovingAverageWindow: 500})
	require.NoError(t, err)

	require.NotNil(t, h.CurrentWeight)
	assert.Nil(t, h.MovingAverage)
}

func TestBuild_EmptySet(t *testing.T) {
	_, err := NewService(zerolog.Nop()).Build(&alignment.AlignedSet{}, nil, Options{})
	assert.ErrorIs(t, err, domain.ErrDataGap)
}

func TestSummarize_Drawdown(t *testing.T) {
	s := summarize("x", []float64{0.1, -0.5, 0.2}, 0)
	assert.InDelta(t, 0.5, s.MaxDrawdown, 1e-12)
	assert.InDelta(t, 1.1*0.5*1.2-1, s.TotalReturn, 1e-12)
}
