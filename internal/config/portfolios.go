package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aristath/finreport/internal/domain"
)

// BenchmarkConfig names the index a portfolio is measured against.
type BenchmarkConfig struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
}

// PeriodConfig bounds the analysis window (YYYY-MM-DD, inclusive).
type PeriodConfig struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// PortfolioConfig describes one portfolio report
type PortfolioConfig struct {
	Name              string           `json:"name"`
	ReportingCurrency string           `json:"reporting_currency"`
	Benchmark         *BenchmarkConfig `json:"benchmark,omitempty"`
	DayShift          int              `json:"day_shift"`
	// ShiftMarkets limits the day shift to securities listed on these markets.
	// Empty shifts every security.
	ShiftMarkets []string     `json:"shift_markets,omitempty"`
	Period       PeriodConfig `json:"period"`
	// PastCutoff is the past-snapshot boundary; defaults to the period start.
	PastCutoff   string   `json:"past_cutoff,omitempty"`
	NumSim       int      `json:"num_sim"`
	TimeSim      int      `json:"time_sim"`
	RiskFree     *float64 `json:"risk_free,omitempty"`
	FrontierBins int      `json:"frontier_bins,omitempty"`
	Seed         uint64   `json:"seed,omitempty"`
	// MinWeight is the allocation floor for the constrained frontier optima.
	// Nil uses the default, 0 disables them.
	MinWeight *float64 `json:"min_weight,omitempty"`
	// MinCoverage is the share of the analysis window a price series must span.
	MinCoverage float64 `json:"min_coverage,omitempty"`
}

// Start returns the parsed period start
func (p *PortfolioConfig) Start() time.Time { return mustDate(p.Period.Start) }

// End returns the parsed period end
func (p *PortfolioConfig) End() time.Time { return mustDate(p.Period.End) }

// Cutoff returns the past-snapshot boundary date
func (p *PortfolioConfig) Cutoff() time.Time {
	if p.PastCutoff == "" {
		return p.Start()
	}
	return mustDate(p.PastCutoff)
}

// RiskFreeRate returns the configured annual risk-free rate or fallback
func (p *PortfolioConfig) RiskFreeRate(fallback float64) float64 {
	if p.RiskFree == nil {
		return fallback
	}
	return *p.RiskFree
}

// MinWeightOr returns the configured allocation floor or fallback
func (p *PortfolioConfig) MinWeightOr(fallback float64) float64 {
	if p.MinWeight == nil {
		return fallback
	}
	return *p.MinWeight
}

// ShiftsMarket reports whether securities on market get the day shift.
func (p *PortfolioConfig) ShiftsMarket(market string) bool {
	if p.DayShift == 0 {
		return false
	}
	if len(p.ShiftMarkets) == 0 {
		return true
	}
	for _, m := range p.ShiftMarkets {
		if strings.EqualFold(m, market) {
			return true
		}
	}
	return false
}

// Validate checks the portfolio settings and normalizes currency codes.
func (p *PortfolioConfig) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("portfolio name is required")
	}
	p.ReportingCurrency = strings.ToUpper(strings.TrimSpace(p.ReportingCurrency))
	if !domain.IsKnownCurrency(p.ReportingCurrency) {
		return fmt.Errorf("portfolio %s: unknown reporting currency %q", p.Name, p.ReportingCurrency)
	}
	if p.Benchmark != nil {
		if p.Benchmark.Code == "" {
			return fmt.Errorf("portfolio %s: benchmark code is required", p.Name)
		}
		if p.Benchmark.Currency != "" {
			p.Benchmark.Currency = strings.ToUpper(p.Benchmark.Currency)
			if !domain.IsKnownCurrency(p.Benchmark.Currency) {
				return fmt.Errorf("portfolio %s: unknown benchmark currency %q", p.Name, p.Benchmark.Currency)
			}
		}
	}
	if p.DayShift < -1 || p.DayShift > 1 {
		return fmt.Errorf("portfolio %s: day_shift must be -1, 0 or 1, got %d", p.Name, p.DayShift)
	}

	start, err := parseDate(p.Period.Start)
	if err != nil {
		return fmt.Errorf("portfolio %s: period start: %w", p.Name, err)
	}
	end, err := parseDate(p.Period.End)
	if err != nil {
		return fmt.Errorf("portfolio %s: period end: %w", p.Name, err)
	}
	if !start.Before(end) {
		return fmt.Errorf("portfolio %s: period start %s must be before end %s", p.Name, p.Period.Start, p.Period.End)
	}
	if p.PastCutoff != "" {
		if _, err := parseDate(p.PastCutoff); err != nil {
			return fmt.Errorf("portfolio %s: past_cutoff: %w", p.Name, err)
		}
	}

	if p.NumSim <= 0 {
		return fmt.Errorf("portfolio %s: num_sim must be positive, got %d", p.Name, p.NumSim)
	}
	if p.TimeSim <= 0 {
		return fmt.Errorf("portfolio %s: time_sim must be positive, got %d", p.Name, p.TimeSim)
	}
	if p.FrontierBins < 0 {
		return fmt.Errorf("portfolio %s: frontier_bins must be >= 0, got %d", p.Name, p.FrontierBins)
	}
	if p.MinWeight != nil && (*p.MinWeight < 0 || *p.MinWeight >= 1) {
		return fmt.Errorf("portfolio %s: min_weight must be in [0, 1), got %v", p.Name, *p.MinWeight)
	}
	if p.MinCoverage < 0 || p.MinCoverage > 1 {
		return fmt.Errorf("portfolio %s: min_coverage must be in [0, 1], got %v", p.Name, p.MinCoverage)
	}
	return nil
}

// LoadPortfolios reads and validates a JSON array of portfolio configs.
func LoadPortfolios(path string) ([]PortfolioConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read portfolios file: %w", err)
	}
	return ParsePortfolios(data)
}

// ParsePortfolios decodes and validates portfolio configs. Names must be unique.
func ParsePortfolios(data []byte) ([]PortfolioConfig, error) {
	var portfolios []PortfolioConfig
	if err := json.Unmarshal(data, &portfolios); err != nil {
		return nil, fmt.Errorf("failed to parse portfolios: %w", err)
	}

	seen := make(map[string]bool, len(portfolios))
	var errs []error
	for i := range portfolios {
		p := &portfolios[i]
		if err := p.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if seen[p.Name] {
			errs = append(errs, fmt.Errorf("duplicate portfolio name %q", p.Name))
		}
		seen[p.Name] = true
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return portfolios, nil
}

// FindPortfolio returns the config with the given name
func FindPortfolio(portfolios []PortfolioConfig, name string) (*PortfolioConfig, bool) {
	for i := range portfolios {
		if portfolios[i].Name == name {
			return &portfolios[i], true
		}
	}
	return nil, false
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(domain.DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// mustDate is only called on validated fields
func mustDate(s string) time.Time {
	t, _ := parseDate(s)
	return t
}
