// Package alignment puts raw price and exchange-rate series onto one trading
// calendar in the reporting currency and turns them into daily returns.
package alignment

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/aristath/finreport/internal/domain"
	"github.com/aristath/finreport/pkg/formulas"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
)

// SecurityInput is one security's raw price series.
type SecurityInput struct {
	Code     string
	Currency string
	Prices   domain.Series
	// Shift applies the configured day shift to this series.
	Shift bool
}

// Input is everything the aligner needs for one portfolio.
type Input struct {
	ReportingCurrency string
	Securities        []SecurityInput
	// Rates maps a security currency to units of reporting currency per unit.
	Rates     map[string]domain.Series
	Benchmark *domain.Series
	Start     time.Time
	End       time.Time
	// DayShift is -1, 0 or +1. -1 pairs each security observation with the
	// previous calendar day's benchmark observation.
	DayShift int
	// MinCoverage is the share of the reference window a security must span
	// to take part. Zero means DefaultMinCoverage.
	MinCoverage float64
}

// DefaultMinCoverage is used when Input.MinCoverage is unset.
const DefaultMinCoverage = 0.5

// AlignedSet holds per-security return series on a shared calendar.
//
// PriceDates has one more entry than Dates: Dates[i] is the date of the
// return from PriceDates[i] to PriceDates[i+1].
type AlignedSet struct {
	Codes           []string             `json:"codes"`
	PriceDates      []time.Time          `json:"price_dates"`
	Dates           []time.Time          `json:"dates"`
	Prices          map[string][]float64 `json:"prices"`
	Returns         map[string][]float64 `json:"returns"`
	BenchmarkPrices []float64            `json:"benchmark_prices,omitempty"`
	Benchmark       []float64            `json:"benchmark,omitempty"`
	ForwardFilled   map[string]int       `json:"forward_filled"`
}

// Len is the number of return observations
func (a *AlignedSet) Len() int { return len(a.Dates) }

// HasBenchmark reports whether benchmark returns are available
func (a *AlignedSet) HasBenchmark() bool { return len(a.Benchmark) > 0 }

// Contains reports whether code survived alignment
func (a *AlignedSet) Contains(code string) bool {
	_, ok := a.Returns[code]
	return ok
}

// Matrix returns the T x n return matrix for codes, in that column order.
func (a *AlignedSet) Matrix(codes []string) *mat.Dense {
	m := mat.NewDense(a.Len(), len(codes), nil)
	for j, code := range codes {
		m.SetCol(j, a.Returns[code])
	}
	return m
}

// Aligner converts raw series into an AlignedSet
type Aligner struct {
	log zerolog.Logger
}

// NewAligner creates an aligner
func NewAligner(log zerolog.Logger) *Aligner {
	return &Aligner{
		log: log.With().Str("component", "aligner").Logger(),
	}
}

type prepared struct {
	code   string
	shift  bool
	prices domain.Series
	pair   string
	rates  *domain.Series
}

// Align builds the shared calendar, forward-fills gaps (never back-fills),
// converts to the reporting currency, applies the day shift and computes
// simple returns. Securities with fewer than two observations, without a
// needed exchange-rate series, or spanning too little of the reference window
// are excluded with a data-gap warning.
func (a *Aligner) Align(in Input, warnings *domain.Warnings) (*AlignedSet, error) {
	if in.DayShift < -1 || in.DayShift > 1 {
		return nil, fmt.Errorf("day shift must be -1, 0 or 1, got %d", in.DayShift)
	}
	if warnings == nil {
		warnings = domain.NewWarnings(a.log)
	}

	var secs []prepared
	for _, s := range in.Securities {
		prices := s.Prices.Normalize().Between(in.Start, in.End)
		if prices.Len() < 2 {
			warnings.Add(domain.WarningDataGap, s.Code,
				"only %d price observations in period, need at least 2", prices.Len())
			continue
		}

		p := prepared{code: s.Code, shift: s.Shift, prices: prices}
		if !strings.EqualFold(s.Currency, in.ReportingCurrency) {
			rates, ok := in.Rates[strings.ToUpper(s.Currency)]
			if !ok || rates.Len() == 0 {
				warnings.Add(domain.WarningDataGap, s.Code,
					"no %s/%s exchange rates", strings.ToUpper(s.Currency), in.ReportingCurrency)
				continue
			}
			normalized := rates.Normalize()
			p.rates = &normalized
			p.pair = strings.ToUpper(s.Currency) + strings.ToUpper(in.ReportingCurrency)
		}
		secs = append(secs, p)
	}
	if len(secs) == 0 {
		return nil, fmt.Errorf("%w: no security has enough price history", domain.ErrDataGap)
	}

	var bench *domain.Series
	if in.Benchmark != nil {
		b := in.Benchmark.Normalize().Between(in.Start, in.End)
		if b.Len() >= 2 {
			bench = &b
		} else {
			warnings.Add(domain.WarningDataGap, in.Benchmark.ID,
				"benchmark has %d observations in period, beta unavailable", b.Len())
		}
	}

	secs = excludeStale(secs, bench, in.MinCoverage, warnings)
	if len(secs) == 0 {
		return nil, fmt.Errorf("%w: no security covers enough of the analysis window", domain.ErrDataGap)
	}

	calendar := buildCalendar(secs, bench)
	if len(calendar) < 2 {
		return nil, fmt.Errorf("%w: price series share fewer than 2 dates", domain.ErrDataGap)
	}
	warnNarrowed(secs, bench, calendar, warnings)

	// Forward-fill every series onto the calendar and convert to reporting currency
	converted := make(map[string][]float64, len(secs))
	filled := make(map[string]int, len(secs))
	for _, s := range secs {
		values, n := alignToCalendar(s.prices, calendar)
		if s.rates != nil {
			rates, nr := alignToCalendar(*s.rates, calendar)
			for i := range values {
				values[i] *= rates[i]
			}
			filled[s.pair] = nr
		}
		if s.shift {
			values = ShiftValues(values, in.DayShift)
		}
		converted[s.code] = values
		filled[s.code] = n
	}

	var benchValues []float64
	if bench != nil {
		benchValues, filled[bench.ID] = alignToCalendar(*bench, calendar)
	}

	// Keep only rows valid for every series
	first, last := validWindow(converted, benchValues, len(calendar))
	if last-first+1 < 2 {
		return nil, fmt.Errorf("%w: fewer than 2 aligned observations after shift", domain.ErrDataGap)
	}

	set := &AlignedSet{
		PriceDates:    calendar[first : last+1],
		Dates:         calendar[first+1 : last+1],
		Prices:        make(map[string][]float64, len(secs)),
		Returns:       make(map[string][]float64, len(secs)),
		ForwardFilled: make(map[string]int, len(filled)),
	}
	for _, s := range secs {
		prices := converted[s.code][first : last+1]
		set.Codes = append(set.Codes, s.code)
		set.Prices[s.code] = prices
		set.Returns[s.code] = formulas.CalculateReturns(prices)
	}
	if benchValues != nil {
		set.BenchmarkPrices = benchValues[first : last+1]
		set.Benchmark = formulas.CalculateReturns(set.BenchmarkPrices)
	}

	for id, n := range filled {
		if n == 0 {
			continue
		}
		set.ForwardFilled[id] = n
		warnings.Add(domain.WarningForwardFill, id, "forward-filled %d of %d calendar days", n, len(calendar))
	}

	a.log.Debug().
		Int("securities", len(set.Codes)).
		Int("observations", set.Len()).
		Int("day_shift", in.DayShift).
		Bool("benchmark", set.HasBenchmark()).
		Msg("Series aligned")

	return set, nil
}

// excludeStale drops securities whose span covers fewer than two reference
// dates or less than minCoverage of them. The reference window is the
// benchmark span when there is one, else the union of security spans.
func excludeStale(secs []prepared, bench *domain.Series, minCoverage float64, warnings *domain.Warnings) []prepared {
	if minCoverage <= 0 {
		minCoverage = DefaultMinCoverage
	}

	var refStart, refEnd time.Time
	if bench != nil {
		refStart = bench.First()
		last, _ := bench.Last()
		refEnd = last.Date
	} else {
		for i, s := range secs {
			first := s.prices.First()
			last, _ := s.prices.Last()
			if i == 0 || first.Before(refStart) {
				refStart = first
			}
			if i == 0 || last.Date.After(refEnd) {
				refEnd = last.Date
			}
		}
	}

	all := make([]domain.Series, 0, len(secs)+1)
	for _, s := range secs {
		all = append(all, s.prices)
	}
	if bench != nil {
		all = append(all, *bench)
	}
	ref := unionDates(all, refStart, refEnd)
	if len(ref) == 0 {
		return secs
	}

	kept := secs[:0]
	for _, s := range secs {
		first := s.prices.First()
		last, _ := s.prices.Last()
		shared := 0
		for _, d := range ref {
			if !d.Before(first) && !d.After(last.Date) {
				shared++
			}
		}
		coverage := float64(shared) / float64(len(ref))
		if shared < 2 || coverage < minCoverage {
			warnings.Add(domain.WarningDataGap, s.code,
				"prices %s to %s cover %.0f%% of the analysis window %s to %s, excluded",
				first.Format(domain.DateLayout), last.Date.Format(domain.DateLayout), coverage*100,
				refStart.Format(domain.DateLayout), refEnd.Format(domain.DateLayout))
			continue
		}
		kept = append(kept, s)
	}
	return kept
}

// warnNarrowed notes each series whose late start or early end trims the
// calendar below the span of the other series.
func warnNarrowed(secs []prepared, bench *domain.Series, calendar []time.Time, warnings *domain.Warnings) {
	type span struct {
		id          string
		first, last time.Time
	}
	spans := make([]span, 0, len(secs)+1)
	for _, s := range secs {
		last, _ := s.prices.Last()
		spans = append(spans, span{s.code, s.prices.First(), last.Date})
	}
	if bench != nil {
		last, _ := bench.Last()
		spans = append(spans, span{bench.ID, bench.First(), last.Date})
	}

	var earliest, latest time.Time
	for i, sp := range spans {
		if i == 0 || sp.first.Before(earliest) {
			earliest = sp.first
		}
		if i == 0 || sp.last.After(latest) {
			latest = sp.last
		}
	}

	start, end := calendar[0], calendar[len(calendar)-1]
	for _, sp := range spans {
		if start.After(earliest) && sp.first.Equal(start) {
			warnings.Add(domain.WarningWindowNarrowed, sp.id,
				"no data before %s, analysis window starts there instead of %s",
				start.Format(domain.DateLayout), earliest.Format(domain.DateLayout))
		}
		if end.Before(latest) && sp.last.Equal(end) {
			warnings.Add(domain.WarningWindowNarrowed, sp.id,
				"no data after %s, analysis window ends there instead of %s",
				end.Format(domain.DateLayout), latest.Format(domain.DateLayout))
		}
	}
}

func unionDates(all []domain.Series, start, end time.Time) []time.Time {
	seen := make(map[time.Time]bool)
	var dates []time.Time
	for _, s := range all {
		for _, p := range s.Points {
			if p.Date.Before(start) || p.Date.After(end) || seen[p.Date] {
				continue
			}
			seen[p.Date] = true
			dates = append(dates, p.Date)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// buildCalendar returns the union of trading dates restricted to the window
// where every price series has started and none has ended.
func buildCalendar(secs []prepared, bench *domain.Series) []time.Time {
	all := make([]domain.Series, 0, len(secs)+1)
	for _, s := range secs {
		all = append(all, s.prices)
	}
	if bench != nil {
		all = append(all, *bench)
	}

	var start, end time.Time
	for i, s := range all {
		first := s.First()
		lastPoint, _ := s.Last()
		if i == 0 || first.After(start) {
			start = first
		}
		if i == 0 || lastPoint.Date.Before(end) {
			end = lastPoint.Date
		}
	}

	return unionDates(all, start, end)
}

// alignToCalendar takes the latest observation on or before each calendar date.
// Dates before the first observation are NaN. The count excludes exact matches.
func alignToCalendar(s domain.Series, calendar []time.Time) ([]float64, int) {
	out := make([]float64, len(calendar))
	filled := 0
	j := 0
	for i, d := range calendar {
		for j < len(s.Points) && !s.Points[j].Date.After(d) {
			j++
		}
		if j == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = s.Points[j-1].Value
		if !s.Points[j-1].Date.Equal(d) {
			filled++
		}
	}
	return out, filled
}

// ShiftValues moves observations k positions along the calendar:
// out[i] = values[i-k]. Positions without a source value are NaN.
func ShiftValues(values []float64, k int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		src := i - k
		if src < 0 || src >= len(values) {
			out[i] = math.NaN()
			continue
		}
		out[i] = values[src]
	}
	return out
}

// validWindow returns the first and last row index where all series are defined.
func validWindow(series map[string][]float64, bench []float64, n int) (int, int) {
	valid := func(i int) bool {
		for _, v := range series {
			if math.IsNaN(v[i]) {
				return false
			}
		}
		return bench == nil || !math.IsNaN(bench[i])
	}

	first := 0
	for first < n && !valid(first) {
		first++
	}
	last := n - 1
	for last >= first && !valid(last) {
		last--
	}
	return first, last
}
