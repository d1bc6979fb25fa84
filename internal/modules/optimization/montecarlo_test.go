package optimization

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProject_Deterministic(t *testing.T) {
	returns := oscillating(200, 0.0005, 0.01, 0.9, 0)
	cfg := Config{Trials: 300, Horizon: 260, Seed: 5}

	a, err := newSimulator(1).Project(context.Background(), returns, cfg)
	require.NoError(t, err)
	b, err := newSimulator(6).Project(context.Background(), returns, cfg)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, 300, a.Paths)
	assert.LessOrEqual(t, a.Min, a.Median)
	assert.LessOrEqual(t, a.Median, a.Max)
	assert.InDelta(t, 1.0, a.ProbLoss+a.ProbGain, 1e-12)

	require.NotEmpty(t, a.Bands)
	last := a.Bands[len(a.Bands)-1]
	assert.Equal(t, 260, last.Day)
	assert.LessOrEqual(t, last.P5, last.Median)
	assert.LessOrEqual(t, last.Median, last.P95)
	assert.LessOrEqual(t, len(a.Bands), maxBandPoints+1)
}

func TestProject_ZeroVolatilityCompoundsMean(t *testing.T) {
	returns := []float64{0.001, 0.001, 0.001, 0.001}

	p, err := newSimulator(2).Project(context.Background(), returns, Config{Trials: 10, Horizon: 100, Seed: 1})
	require.NoError(t, err)

	expected := math.Pow(1.001, 100)
	assert.InDelta(t, expected, p.Min, 1e-9)
	assert.InDelta(t, expected, p.Max, 1e-9)
	assert.Equal(t, 1.0, p.ProbGain)
	assert.Equal(t, 0.0, p.ProbLoss)
}

func TestProject_InvalidInput(t *testing.T) {
	sim := newSimulator(1)

	_, err := sim.Project(context.Background(), []float64{0.1}, Config{Trials: 10, Horizon: 10})
	assert.Error(t, err)

	_, err = sim.Project(context.Background(), []float64{0.1, 0.2}, Config{Trials: 10})
	assert.Error(t, err)
}
