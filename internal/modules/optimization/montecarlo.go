package optimization

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/aristath/finreport/pkg/formulas"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// projectionSalt separates projection streams from frontier streams for the same seed.
const projectionSalt = 0x9e3779b97f4a7c15

// maxBandPoints bounds the number of horizon checkpoints kept for the fan chart.
const maxBandPoints = 100

// Band is the distribution of simulated value at one horizon day.
type Band struct {
	Day    int     `json:"day"`
	P5     float64 `json:"p5"`
	Median float64 `json:"median"`
	P95    float64 `json:"p95"`
}

// Projection summarizes simulated growth of one unit invested in the current portfolio.
type Projection struct {
	Paths       int     `json:"paths"`
	Horizon     int     `json:"horizon"`
	DailyMean   float64 `json:"daily_mean"`
	DailyStdDev float64 `json:"daily_std_dev"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Mean        float64 `json:"mean"`
	Median      float64 `json:"median"`
	ProbLoss    float64 `json:"prob_loss"` // P(final value < 1)
	ProbGain    float64 `json:"prob_gain"` // P(final value > 1)
	Bands       []Band  `json:"bands"`
}

type pathResult struct {
	final       float64
	checkpoints []float64
}

// Project simulates paths of Horizon normal daily returns drawn with the mean
// and standard deviation of dailyReturns, compounding from 1.
func (s *Simulator) Project(ctx context.Context, dailyReturns []float64, cfg Config) (*Projection, error) {
	if cfg.Trials <= 0 || cfg.Horizon <= 0 {
		return nil, fmt.Errorf("paths and horizon must be positive, got %d and %d", cfg.Trials, cfg.Horizon)
	}
	if len(dailyReturns) < 2 {
		return nil, fmt.Errorf("need at least 2 daily returns, got %d", len(dailyReturns))
	}
	paths := cfg.Trials
	if cfg.MaxTrials > 0 && paths > cfg.MaxTrials {
		paths = cfg.MaxTrials
	}

	mean := formulas.Mean(dailyReturns)
	sd := formulas.StdDev(dailyReturns)

	step := cfg.Horizon / maxBandPoints
	if step < 1 {
		step = 1
	}
	var days []int
	for d := step; d <= cfg.Horizon; d += step {
		days = append(days, d)
	}
	if days[len(days)-1] != cfg.Horizon {
		days = append(days, cfg.Horizon)
	}

	results, err := runIndexed(ctx, s.pool, paths, func(i int) pathResult {
		dist := distuv.Normal{Mu: mean, Sigma: sd, Src: rand.NewPCG(cfg.Seed^projectionSalt, uint64(i))}
		checkpoints := make([]float64, 0, len(days))
		value := 1.0
		next := 0
		for d := 1; d <= cfg.Horizon; d++ {
			value *= 1 + dist.Rand()
			if next < len(days) && days[next] == d {
				checkpoints = append(checkpoints, value)
				next++
			}
		}
		return pathResult{final: value, checkpoints: checkpoints}
	})
	if err != nil {
		return nil, fmt.Errorf("projection interrupted: %w", err)
	}

	finals := make([]float64, paths)
	var loss, gain int
	for i, r := range results {
		finals[i] = r.final
		switch {
		case r.final < 1:
			loss++
		case r.final > 1:
			gain++
		}
	}
	sort.Float64s(finals)

	p := &Projection{
		Paths:       paths,
		Horizon:     cfg.Horizon,
		DailyMean:   mean,
		DailyStdDev: sd,
		Min:         finals[0],
		Max:         finals[len(finals)-1],
		Mean:        stat.Mean(finals, nil),
		Median:      stat.Quantile(0.5, stat.Empirical, finals, nil),
		ProbLoss:    float64(loss) / float64(paths),
		ProbGain:    float64(gain) / float64(paths),
	}

	column := make([]float64, paths)
	for k, day := range days {
		for i, r := range results {
			column[i] = r.checkpoints[k]
		}
		sort.Float64s(column)
		p.Bands = append(p.Bands, Band{
			Day:    day,
			P5:     stat.Quantile(0.05, stat.Empirical, column, nil),
			Median: stat.Quantile(0.5, stat.Empirical, column, nil),
			P95:    stat.Quantile(0.95, stat.Empirical, column, nil),
		})
	}

	s.log.Debug().
		Int("paths", paths).
		Int("horizon", cfg.Horizon).
		Float64("median", p.Median).
		Float64("prob_loss", p.ProbLoss).
		Msg("Value projection simulated")

	return p, nil
}
