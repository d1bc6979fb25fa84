// Package optimization simulates random long-only portfolios to trace the
// efficient frontier and projects portfolio value by Monte Carlo.
package optimization

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/aristath/finreport/internal/domain"
	"github.com/aristath/finreport/internal/modules/alignment"
	"github.com/aristath/finreport/internal/modules/statistics"
	"github.com/aristath/finreport/pkg/formulas"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// Config controls one simulation run
type Config struct {
	Trials    int     // number of random portfolios (N)
	Horizon   int     // projection horizon in trading days (T)
	RiskFree  float64 // annual risk-free rate
	Bins      int     // volatility buckets for the frontier
	Seed      uint64
	MaxTrials int // cap on Trials; 0 disables the cap
	CloudSize int // max trials kept for the scatter plot
	// MinWeight is the per-security floor for the constrained optima; 0 skips them.
	MinWeight float64
}

// DefaultMinWeight is the allocation floor for the constrained optima.
const DefaultMinWeight = 0.05

// Trial is one simulated portfolio
type Trial struct {
	Index      int       `json:"index"`
	Weights    []float64 `json:"weights"`
	Return     float64   `json:"annual_return"`
	Volatility float64   `json:"annual_volatility"`
	Sharpe     float64   `json:"sharpe"`
}

// CloudPoint is a trial reduced to its risk/return coordinates
type CloudPoint struct {
	Return     float64 `json:"r"`
	Volatility float64 `json:"v"`
	Sharpe     float64 `json:"s"`
}

// Result is the simulator output. Weights are ordered like Codes.
type Result struct {
	Codes         []string     `json:"codes"`
	Trials        int          `json:"trials"`
	Workers       int          `json:"workers"`
	Frontier      []Trial      `json:"frontier"`
	Optimal       Trial        `json:"optimal"`
	MinVolatility Trial        `json:"min_volatility"`
	Current       *Trial       `json:"current,omitempty"`
	Cloud         []CloudPoint `json:"cloud"`
	Elapsed       string       `json:"elapsed"`

	// Optima among trials that give every security at least MinWeight.
	// Nil when no trial qualifies.
	MinWeight                float64 `json:"min_weight,omitempty"`
	Qualifying               int     `json:"qualifying_trials"`
	ConstrainedOptimal       *Trial  `json:"constrained_optimal,omitempty"`
	ConstrainedMinVolatility *Trial  `json:"constrained_min_volatility,omitempty"`
}

// OptimalWeights maps codes to the max-Sharpe weights
func (r *Result) OptimalWeights() map[string]float64 {
	out := make(map[string]float64, len(r.Codes))
	for i, code := range r.Codes {
		out[code] = r.Optimal.Weights[i]
	}
	return out
}

// Simulator runs frontier simulations on a worker pool
type Simulator struct {
	pool *WorkerPool
	log  zerolog.Logger
}

// NewSimulator creates a simulator
func NewSimulator(pool *WorkerPool, log zerolog.Logger) *Simulator {
	return &Simulator{
		pool: pool,
		log:  log.With().Str("component", "frontier_simulator").Logger(),
	}
}

type model struct {
	codes []string
	mu    []float64 // mean daily return
	cov   *mat.SymDense
}

func (m *model) evaluate(w []float64, riskFree float64) (ret, vol, sharpe float64) {
	for i, wi := range w {
		ret += wi * m.mu[i]
	}
	ret *= formulas.TradingDaysPerYear

	wv := mat.NewVecDense(len(w), w)
	variance := mat.Inner(wv, m.cov, wv) * formulas.TradingDaysPerYear
	vol = math.Sqrt(math.Max(variance, 0))
	if vol > 0 {
		sharpe = (ret - riskFree) / vol
	}
	return ret, vol, sharpe
}

// Simulate draws N uniform-simplex weight vectors, scores each, and reduces
// them to the frontier, the max-Sharpe and the min-volatility portfolios.
//
// Trial i draws from its own PCG stream seeded with (Seed, i), so the result
// is identical for any worker count.
func (s *Simulator) Simulate(
	ctx context.Context,
	set *alignment.AlignedSet,
	current map[string]float64,
	cfg Config,
	warnings *domain.Warnings,
) (*Result, error) {
	if warnings == nil {
		warnings = domain.NewWarnings(s.log)
	}
	if cfg.Trials <= 0 {
		return nil, fmt.Errorf("trials must be positive, got %d", cfg.Trials)
	}
	if cfg.Bins <= 0 {
		cfg.Bins = 50
	}
	if cfg.MaxTrials > 0 && cfg.Trials > cfg.MaxTrials {
		warnings.Add(domain.WarningSimulationCapped, "",
			"requested %d simulations, capped at %d", cfg.Trials, cfg.MaxTrials)
		cfg.Trials = cfg.MaxTrials
	}

	m, err := buildModel(set)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	n := len(m.codes)
	alpha := make([]float64, n)
	for i := range alpha {
		alpha[i] = 1
	}

	trials, err := runIndexed(ctx, s.pool, cfg.Trials, func(i int) Trial {
		dir := distmv.NewDirichlet(alpha, rand.NewPCG(cfg.Seed, uint64(i)))
		w := dir.Rand(nil)
		ret, vol, sharpe := m.evaluate(w, cfg.RiskFree)
		return Trial{Index: i, Weights: w, Return: ret, Volatility: vol, Sharpe: sharpe}
	})
	if err != nil {
		return nil, fmt.Errorf("simulation interrupted: %w", err)
	}

	result := &Result{
		Codes:         m.codes,
		Trials:        len(trials),
		Workers:       s.pool.Workers(),
		Frontier:      frontier(trials, cfg.Bins),
		Optimal:       best(trials, func(a, b Trial) bool { return a.Sharpe > b.Sharpe }),
		MinVolatility: best(trials, func(a, b Trial) bool { return a.Volatility < b.Volatility }),
		Cloud:         cloud(trials, cfg.CloudSize),
	}

	if cfg.MinWeight > 0 {
		result.MinWeight = cfg.MinWeight
		s.constrain(result, trials, cfg.MinWeight, warnings)
	}

	if w, ok := currentWeights(m.codes, current); ok {
		ret, vol, sharpe := m.evaluate(w, cfg.RiskFree)
		result.Current = &Trial{Index: -1, Weights: w, Return: ret, Volatility: vol, Sharpe: sharpe}
	}

	result.Elapsed = time.Since(start).String()
	s.log.Info().
		Int("trials", result.Trials).
		Int("securities", n).
		Int("workers", result.Workers).
		Float64("optimal_sharpe", result.Optimal.Sharpe).
		Dur("elapsed", time.Since(start)).
		Msg("Frontier simulated")

	return result, nil
}

// constrain fills the constrained optima from the trials holding at least
// floor of every security.
func (s *Simulator) constrain(result *Result, trials []Trial, floor float64, warnings *domain.Warnings) {
	var qualifying []Trial
	for _, t := range trials {
		if minOf(t.Weights) >= floor {
			qualifying = append(qualifying, t)
		}
	}
	result.Qualifying = len(qualifying)
	if len(qualifying) == 0 {
		warnings.Add(domain.WarningSimulationUnavailable, "",
			"no simulated portfolio holds at least %.0f%% of each of %d securities, constrained optima unavailable",
			floor*100, len(result.Codes))
		return
	}

	optimal := best(qualifying, func(a, b Trial) bool { return a.Sharpe > b.Sharpe })
	minVol := best(qualifying, func(a, b Trial) bool { return a.Volatility < b.Volatility })
	result.ConstrainedOptimal = &optimal
	result.ConstrainedMinVolatility = &minVol

	s.log.Debug().
		Int("qualifying", len(qualifying)).
		Float64("min_weight", floor).
		Float64("constrained_sharpe", optimal.Sharpe).
		Msg("Constrained optima selected")
}

func minOf(values []float64) float64 {
	lo := math.Inf(1)
	for _, v := range values {
		lo = math.Min(lo, v)
	}
	return lo
}

// buildModel estimates mean returns and covariance, refusing degenerate inputs.
func buildModel(set *alignment.AlignedSet) (*model, error) {
	if set == nil || len(set.Codes) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 securities", domain.ErrSimulationUnavailable)
	}

	cov, err := statistics.SampleCovariance(set, set.Codes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSimulationUnavailable, err)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(cov); !ok {
		return nil, fmt.Errorf("%w: covariance matrix is singular", domain.ErrSimulationUnavailable)
	}

	mu := make([]float64, len(set.Codes))
	for i, code := range set.Codes {
		mu[i] = formulas.Mean(set.Returns[code])
	}
	return &model{codes: set.Codes, mu: mu, cov: cov}, nil
}

// frontier keeps the highest-return trial in each volatility bucket, ordered by volatility.
func frontier(trials []Trial, bins int) []Trial {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, t := range trials {
		lo = math.Min(lo, t.Volatility)
		hi = math.Max(hi, t.Volatility)
	}
	width := (hi - lo) / float64(bins)

	buckets := make([]int, bins)
	for i := range buckets {
		buckets[i] = -1
	}
	for i, t := range trials {
		b := 0
		if width > 0 {
			b = int((t.Volatility - lo) / width)
			if b >= bins {
				b = bins - 1
			}
		}
		// Ties keep the lower trial index
		if cur := buckets[b]; cur == -1 || t.Return > trials[cur].Return {
			buckets[b] = i
		}
	}

	out := make([]Trial, 0, bins)
	for _, idx := range buckets {
		if idx >= 0 {
			out = append(out, trials[idx])
		}
	}
	return out
}

// best returns the first trial that no later trial beats under better.
func best(trials []Trial, better func(a, b Trial) bool) Trial {
	winner := trials[0]
	for _, t := range trials[1:] {
		if better(t, winner) {
			winner = t
		}
	}
	return winner
}

func cloud(trials []Trial, size int) []CloudPoint {
	if size <= 0 {
		size = 2000
	}
	step := 1
	if len(trials) > size {
		step = (len(trials) + size - 1) / size
	}
	out := make([]CloudPoint, 0, len(trials)/step+1)
	for i := 0; i < len(trials); i += step {
		t := trials[i]
		out = append(out, CloudPoint{Return: t.Return, Volatility: t.Volatility, Sharpe: t.Sharpe})
	}
	return out
}

func currentWeights(codes []string, current map[string]float64) ([]float64, bool) {
	w := make([]float64, len(codes))
	total := 0.0
	for i, code := range codes {
		w[i] = current[code]
		total += w[i]
	}
	if total <= 0 {
		return nil, false
	}
	for i := range w {
		w[i] /= total
	}
	return w, true
}
