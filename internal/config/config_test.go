package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePortfolios = `[
  {
    "name": "growth",
    "reporting_currency": "eur",
    "benchmark": {"code": "^STOXX50E", "name": "Euro Stoxx 50", "currency": "eur"},
    "day_shift": -1,
    "shift_markets": ["NYSE", "NASDAQ"],
    "period": {"start": "2023-01-01", "end": "2024-06-30"},
    "past_cutoff": "2023-12-31",
    "num_sim": 5000,
    "time_sim": 252,
    "risk_free": 0.02,
    "seed": 7
  },
  {
    "name": "income",
    "reporting_currency": "USD",
    "day_shift": 0,
    "period": {"start": "2022-01-01", "end": "2024-06-30"},
    "num_sim": 1000,
    "time_sim": 126
  }
]`

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("FINREPORT_DATA_DIR", dir)
	t.Setenv("GO_PORT", "")
	t.Setenv("REPORT_SCHEDULE", "")
	t.Setenv("MAX_SIMULATIONS", "")
	t.Setenv("R2_ENDPOINT", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, 8001, cfg.Port)
	assert.Equal(t, DefaultReportSchedule, cfg.ReportSchedule)
	assert.Equal(t, 200000, cfg.MaxSimulations)
	assert.Equal(t, filepath.Join(dir, "portfolios.json"), cfg.PortfoliosFile)
	assert.False(t, cfg.R2.Enabled())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("FINREPORT_DATA_DIR", t.TempDir())
	t.Setenv("GO_PORT", "9090")
	t.Setenv("DEV_MODE", "true")
	t.Setenv("SIMULATION_WORKERS", "3")
	t.Setenv("DEFAULT_RISK_FREE", "0.035")
	t.Setenv("R2_ENDPOINT", "https://example.r2.cloudflarestorage.com")
	t.Setenv("R2_BUCKET", "reports")
	t.Setenv("R2_ACCESS_KEY_ID", "id")
	t.Setenv("R2_SECRET_ACCESS_KEY", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, 3, cfg.SimulationWorkers)
	assert.InDelta(t, 0.035, cfg.DefaultRiskFree, 1e-12)
	assert.True(t, cfg.R2.Enabled())
	assert.Equal(t, "auto", cfg.R2.Region)
	assert.Equal(t, 90, cfg.R2.RetentionDays)
}

func TestLoad_InvalidSchedule(t *testing.T) {
	t.Setenv("FINREPORT_DATA_DIR", t.TempDir())
	t.Setenv("REPORT_SCHEDULE", "every tuesday")

	_, err := Load()
	assert.Error(t, err)
}

func TestGetEnvHelpers_FallBackOnMalformedValues(t *testing.T) {
	t.Setenv("FINREPORT_TEST_INT", "abc")
	t.Setenv("FINREPORT_TEST_BOOL", "maybe")
	t.Setenv("FINREPORT_TEST_FLOAT", "1,5")

	assert.Equal(t, 7, getEnvAsInt("FINREPORT_TEST_INT", 7))
	assert.True(t, getEnvAsBool("FINREPORT_TEST_BOOL", true))
	assert.Equal(t, 2.5, getEnvAsFloat("FINREPORT_TEST_FLOAT", 2.5))
}

func TestParsePortfolios(t *testing.T) {
	portfolios, err := ParsePortfolios([]byte(samplePortfolios))
	require.NoError(t, err)
	require.Len(t, portfolios, 2)

	growth := portfolios[0]
	assert.Equal(t, "EUR", growth.ReportingCurrency)
	assert.Equal(t, "EUR", growth.Benchmark.Currency)
	assert.Equal(t, "2023-12-31", growth.Cutoff().Format("2006-01-02"))
	assert.InDelta(t, 0.02, growth.RiskFreeRate(0.05), 1e-12)
	assert.True(t, growth.ShiftsMarket("nyse"))
	assert.False(t, growth.ShiftsMarket("XETRA"))
	assert.Equal(t, uint64(7), growth.Seed)

	income := portfolios[1]
	assert.Nil(t, income.Benchmark)
	assert.Equal(t, income.Start(), income.Cutoff())
	assert.InDelta(t, 0.05, income.RiskFreeRate(0.05), 1e-12)
	assert.False(t, income.ShiftsMarket("NYSE"))

	found, ok := FindPortfolio(portfolios, "income")
	require.True(t, ok)
	assert.Equal(t, 126, found.TimeSim)
	_, ok = FindPortfolio(portfolios, "missing")
	assert.False(t, ok)
}

func TestPortfolioConfig_Validate(t *testing.T) {
	valid := func() PortfolioConfig {
		return PortfolioConfig{
			Name:              "p",
			ReportingCurrency: "USD",
			Period:            PeriodConfig{Start: "2023-01-01", End: "2024-01-01"},
			NumSim:            10,
			TimeSim:           10,
		}
	}

	tests := []struct {
		name   string
		mutate func(p *PortfolioConfig)
	}{
		{"missing name", func(p *PortfolioConfig) { p.Name = " " }},
		{"unknown currency", func(p *PortfolioConfig) { p.ReportingCurrency = "XYZ" }},
		{"day shift out of range", func(p *PortfolioConfig) { p.DayShift = 2 }},
		{"start after end", func(p *PortfolioConfig) { p.Period.Start = "2025-01-01" }},
		{"malformed end", func(p *PortfolioConfig) { p.Period.End = "01/01/2024" }},
		{"malformed cutoff", func(p *PortfolioConfig) { p.PastCutoff = "soon" }},
		{"zero simulations", func(p *PortfolioConfig) { p.NumSim = 0 }},
		{"zero horizon", func(p *PortfolioConfig) { p.TimeSim = 0 }},
		{"benchmark without code", func(p *PortfolioConfig) { p.Benchmark = &BenchmarkConfig{Name: "x"} }},
		{"min weight of one", func(p *PortfolioConfig) { w := 1.0; p.MinWeight = &w }},
		{"coverage above one", func(p *PortfolioConfig) { p.MinCoverage = 1.5 }},
	}

	base := valid()
	require.NoError(t, base.Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid()
			tt.mutate(&p)
			assert.Error(t, p.Validate())
		})
	}
}

func TestPortfolioConfig_MinWeightOr(t *testing.T) {
	p := PortfolioConfig{}
	assert.Equal(t, 0.05, p.MinWeightOr(0.05))

	zero := 0.0
	p.MinWeight = &zero
	assert.Equal(t, 0.0, p.MinWeightOr(0.05), "explicit zero disables the floor")
}

func TestParsePortfolios_DuplicateNames(t *testing.T) {
	data := `[
	  {"name": "a", "reporting_currency": "USD", "period": {"start": "2023-01-01", "end": "2024-01-01"}, "num_sim": 1, "time_sim": 1},
	  {"name": "a", "reporting_currency": "USD", "period": {"start": "2023-01-01", "end": "2024-01-01"}, "num_sim": 1, "time_sim": 1}
	]`
	_, err := ParsePortfolios([]byte(data))
	assert.ErrorContains(t, err, "duplicate")
}

func TestLoadPortfolios_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portfolios.json")
	require.NoError(t, os.WriteFile(path, []byte(samplePortfolios), 0644))

	portfolios, err := LoadPortfolios(path)
	require.NoError(t, err)
	assert.Len(t, portfolios, 2)

	_, err = LoadPortfolios(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
