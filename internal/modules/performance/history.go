// Package performance builds chart-ready price and growth histories from an
// aligned return set.
package performance

import (
	"fmt"
	"sort"
	"time"

	"github.com/aristath/finreport/internal/domain"
	"github.com/aristath/finreport/internal/modules/alignment"
	"github.com/aristath/finreport/internal/modules/statistics"
	"github.com/aristath/finreport/pkg/formulas"
	"github.com/rs/zerolog"
)

// DefaultVolatilityWindow is one trading month
const DefaultVolatilityWindow = 21

// DefaultMovingAverageWindow smooths the portfolio curve over a trading month
const DefaultMovingAverageWindow = 21

// ChartPoint is a single point on a chart
type ChartPoint struct {
	Time  string  `json:"time"` // YYYY-MM-DD
	Value float64 `json:"value"`
}

// Curve is a named series of chart points
type Curve struct {
	ID     string       `json:"id"`
	Points []ChartPoint `json:"points"`
}

// Last returns the final value, or 0 for an empty curve
func (c Curve) Last() float64 {
	if len(c.Points) == 0 {
		return 0
	}
	return c.Points[len(c.Points)-1].Value
}

// Summary describes one growth curve.
type Summary struct {
	ID                   string   `json:"id"`
	TotalReturn          float64  `json:"total_return"`
	AnnualizedReturn     float64  `json:"annualized_return"`
	AnnualizedVolatility float64  `json:"annualized_volatility"`
	Sharpe               *float64 `json:"sharpe,omitempty"`
	MaxDrawdown          float64  `json:"max_drawdown"`
}

// History is the price-history section of a report.
type History struct {
	Normalized        []Curve `json:"normalized"`
	EqualWeight       Curve   `json:"equal_weight"`
	CurrentWeight     *Curve  `json:"current_weight,omitempty"`
	Benchmark         *Curve  `json:"benchmark,omitempty"`
	RollingVolatility *Curve  `json:"rolling_volatility,omitempty"`

	// MovingAverage smooths the current-weight growth curve.
	MovingAverage *Curve    `json:"moving_average,omitempty"`
	Summaries     []Summary `json:"summaries"`
}

// Options tune the history build
type Options struct {
	RiskFree            float64
	VolatilityWindow    int
	MovingAverageWindow int
}

// Service builds histories
type Service struct {
	log zerolog.Logger
}

// NewService creates a new performance service
func NewService(log zerolog.Logger) *Service {
	return &Service{
		log: log.With().Str("service", "performance").Logger(),
	}
}

// Build normalizes each security's price to 1 on the first aligned date and
// compounds equal-weight, current-weight and benchmark returns into growth
// curves on the same calendar. weights may be nil.
func (s *Service) Build(set *alignment.AlignedSet, weights map[string]float64, opts Options) (*History, error) {
	if set == nil || set.Len() == 0 {
		return nil, fmt.Errorf("%w: no aligned returns", domain.ErrDataGap)
	}
	if opts.VolatilityWindow <= 0 {
		opts.VolatilityWindow = DefaultVolatilityWindow
	}
	if opts.MovingAverageWindow <= 0 {
		opts.MovingAverageWindow = DefaultMovingAverageWindow
	}

	h := &History{Normalized: make([]Curve, 0, len(set.Codes))}
	for _, code := range set.Codes {
		h.Normalized = append(h.Normalized, normalized(code, set.PriceDates, set.Prices[code]))
	}

	equal := equalWeightReturns(set)
	h.EqualWeight = growth("equal_weight", set.PriceDates, equal)
	h.Summaries = append(h.Summaries, summarize("equal_weight", equal, opts.RiskFree))

	if len(weights) > 0 {
		current, err := statistics.PortfolioReturns(set, weights)
		if err != nil {
			s.log.Warn().Err(err).Msg("Skipping current-weight curve")
		} else {
			c := growth("current_weight", set.PriceDates, current)
			h.CurrentWeight = &c
			h.Summaries = append(h.Summaries, summarize("current_weight", current, opts.RiskFree))

			vol := rolling("rolling_volatility", set.Dates, current, opts.VolatilityWindow)
			if len(vol.Points) > 0 {
				h.RollingVolatility = &vol
			}

			ma := movingAverage("moving_average", c, opts.MovingAverageWindow)
			if len(ma.Points) > 0 {
				h.MovingAverage = &ma
			}
		}
	}

	if set.HasBenchmark() {
		b := growth("benchmark", set.PriceDates, set.Benchmark)
		h.Benchmark = &b
		h.Summaries = append(h.Summaries, summarize("benchmark", set.Benchmark, opts.RiskFree))
	}

	sort.SliceStable(h.Summaries, func(i, j int) bool {
		return h.Summaries[i].AnnualizedReturn > h.Summaries[j].AnnualizedReturn
	})

	s.log.Debug().
		Int("securities", len(h.Normalized)).
		Int("observations", set.Len()).
		Msg("Built price history")
	return h, nil
}

func equalWeightReturns(set *alignment.AlignedSet) []float64 {
	out := make([]float64, set.Len())
	if len(set.Codes) == 0 {
		return out
	}
	w := 1 / float64(len(set.Codes))
	for _, code := range set.Codes {
		for t, r := range set.Returns[code] {
			out[t] += w * r
		}
	}
	return out
}

func normalized(id string, dates []time.Time, prices []float64) Curve {
	c := Curve{ID: id, Points: make([]ChartPoint, 0, len(prices))}
	if len(prices) == 0 || prices[0] == 0 {
		return c
	}
	base := prices[0]
	for i, p := range prices {
		if i >= len(dates) {
			break
		}
		c.Points = append(c.Points, point(dates[i], p/base))
	}
	return c
}

// growth compounds returns into a curve that starts at 1 on dates[0].
func growth(id string, dates []time.Time, returns []float64) Curve {
	values := formulas.CumulativeReturns(returns)
	c := Curve{ID: id, Points: make([]ChartPoint, 0, len(values))}
	for i, v := range values {
		if i >= len(dates) {
			break
		}
		c.Points = append(c.Points, point(dates[i], v))
	}
	return c
}

// rolling emits annualized rolling volatility once a full window is available.
func rolling(id string, dates []time.Time, returns []float64, window int) Curve {
	c := Curve{ID: id}
	if len(returns) < window {
		return c
	}
	vol := formulas.RollingVolatility(returns, window)
	for i := window - 1; i < len(vol) && i < len(dates); i++ {
		c.Points = append(c.Points, point(dates[i], vol[i]))
	}
	return c
}

// movingAverage smooths a curve, starting at its first full window.
func movingAverage(id string, c Curve, window int) Curve {
	out := Curve{ID: id}
	if len(c.Points) < window {
		return out
	}
	values := make([]float64, len(c.Points))
	for i, p := range c.Points {
		values[i] = p.Value
	}
	avg := formulas.MovingAverage(values, window)
	for i := window - 1; i < len(avg); i++ {
		out.Points = append(out.Points, ChartPoint{Time: c.Points[i].Time, Value: avg[i]})
	}
	return out
}

func summarize(id string, returns []float64, riskFree float64) Summary {
	curve := formulas.CumulativeReturns(returns)
	annRet := formulas.AnnualizedReturn(formulas.Mean(returns))
	annVol := formulas.AnnualizedVolatility(returns)
	s := Summary{
		ID:                   id,
		TotalReturn:          curve[len(curve)-1] - 1,
		AnnualizedReturn:     annRet,
		AnnualizedVolatility: annVol,
		Sharpe:               formulas.SharpeRatio(annRet, annVol, riskFree),
	}
	if dd := formulas.CalculateMaxDrawdown(curve); dd != nil {
		s.MaxDrawdown = *dd
	}
	return s
}

func point(date time.Time, v float64) ChartPoint {
	return ChartPoint{Time: date.Format(domain.DateLayout), Value: v}
}
