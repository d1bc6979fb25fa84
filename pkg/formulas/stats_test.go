package formulas

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateReturns(t *testing.T) {
	returns := CalculateReturns([]float64{100, 110, 99})

	require.Len(t, returns, 2)
	assert.InDelta(t, 0.10, returns[0], 1e-12)
	assert.InDelta(t, -0.10, returns[1], 1e-12)

	assert.Empty(t, CalculateReturns([]float64{100}))
}

func TestSampleStatisticsUseNMinusOne(t *testing.T) {
	data := []float64{1, 2, 3, 4}

	// Sum of squared deviations is 5, divided by N-1 = 3
	assert.InDelta(t, 5.0/3.0, Variance(data), 1e-12)
	assert.InDelta(t, math.Sqrt(5.0/3.0), StdDev(data), 1e-12)
	assert.InDelta(t, 5.0/3.0, Covariance(data, data), 1e-12)
	assert.InDelta(t, 1.0, Correlation(data, []float64{2, 4, 6, 8}), 1e-12)
}

func TestDegenerateInputs(t *testing.T) {
	assert.Equal(t, 0.0, Mean(nil))
	assert.Equal(t, 0.0, Variance([]float64{3}))
	assert.Equal(t, 0.0, Covariance([]float64{1, 2}, []float64{1}))
}

func TestCumulativeReturns(t *testing.T) {
	curve := CumulativeReturns([]float64{0.1, -0.1})

	require.Len(t, curve, 3)
	assert.Equal(t, 1.0, curve[0])
	assert.InDelta(t, 1.1, curve[1], 1e-12)
	assert.InDelta(t, 0.99, curve[2], 1e-12)
}

func TestSharpeRatio(t *testing.T) {
	sharpe := SharpeRatio(0.12, 0.2, 0.02)
	require.NotNil(t, sharpe)
	assert.InDelta(t, 0.5, *sharpe, 1e-12)

	assert.Nil(t, SharpeRatio(0.12, 0, 0.02))
}

func TestAnnualizedVolatility(t *testing.T) {
	returns := []float64{0.01, -0.01, 0.01, -0.01}
	expected := StdDev(returns) * math.Sqrt(252)
	assert.InDelta(t, expected, AnnualizedVolatility(returns), 1e-12)
}

func TestRollingVolatility_ShortInput(t *testing.T) {
	out := RollingVolatility([]float64{0.01, 0.02}, 5)
	assert.Equal(t, []float64{0, 0}, out)
}

func TestRollingVolatility_ConstantReturns(t *testing.T) {
	returns := []float64{0.01, 0.01, 0.01, 0.01, 0.01, 0.01}
	out := RollingVolatility(returns, 3)

	require.Len(t, out, len(returns))
	for _, v := range out[2:] {
		assert.InDelta(t, 0.0, v, 1e-9)
	}
}

func TestRollingVolatility_MatchesSampleStdDev(t *testing.T) {
	returns := []float64{0.01, -0.02, 0.015, 0.003, -0.007, 0.02, -0.011}
	const window = 4
	out := RollingVolatility(returns, window)

	require.Len(t, out, len(returns))
	for i := window - 1; i < len(returns); i++ {
		expected := AnnualizedVolatility(returns[i-window+1 : i+1])
		assert.InDelta(t, expected, out[i], 1e-9, "window ending at %d", i)
	}
}

func TestMovingAverage(t *testing.T) {
	out := MovingAverage([]float64{1, 2, 3, 4, 5}, 3)
	require.Len(t, out, 5)
	assert.InDelta(t, 2.0, out[2], 1e-12)
	assert.InDelta(t, 4.0, out[4], 1e-12)
	assert.Equal(t, []float64{0, 0}, MovingAverage([]float64{1, 2}, 3))
}

func TestCalculateDrawdownMetrics(t *testing.T) {
	assert.Nil(t, CalculateDrawdownMetrics([]float64{1}))

	m := CalculateDrawdownMetrics([]float64{100, 120, 90, 110, 60, 80})
	require.NotNil(t, m)
	assert.InDelta(t, 0.5, m.MaxDrawdown, 1e-12)
	assert.InDelta(t, 1.0/3.0, m.CurrentDrawdown, 1e-12)
	assert.Equal(t, 4, m.PeriodsInDrawdown)

	dd := CalculateMaxDrawdown([]float64{1, 2, 3})
	require.NotNil(t, dd)
	assert.Zero(t, *dd)
}
