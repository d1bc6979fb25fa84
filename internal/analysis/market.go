package analysis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/aristath/finreport/internal/config"
	"github.com/aristath/finreport/internal/domain"
	"github.com/aristath/finreport/internal/modules/alignment"
	"github.com/aristath/finreport/internal/modules/portfolio"
	"github.com/shopspring/decimal"
)

// priceLookbackDays covers weekends and market holidays before a valuation date.
const priceLookbackDays = 14

// marketData holds the raw series loaded for one run
type marketData struct {
	reporting string
	prices    map[string]domain.Series // by position code
	rates     map[string]domain.Series // by security currency
	benchmark *domain.Series
}

// loadMarketData fetches prices for every held security (current and past),
// exchange rates for every foreign currency and the benchmark. Missing data
// is recorded as warnings.
func (e *Engine) loadMarketData(ctx context.Context, rc *runContext, book *portfolio.Result, from, to time.Time) *marketData {
	md := &marketData{
		reporting: rc.cfg.ReportingCurrency,
		prices:    make(map[string]domain.Series),
		rates:     make(map[string]domain.Series),
	}

	positions := append([]*portfolio.Position(nil), book.Current.Positions...)
	if book.Past != nil {
		positions = append(positions, book.Past.Positions...)
	}

	for _, p := range positions {
		if ctx.Err() != nil {
			return md
		}
		if _, done := md.prices[p.Code]; done {
			continue
		}
		series, err := e.priceSeries(ctx, p, from, to)
		if err != nil {
			rc.warnings.AddError(domain.WarningDataGap, asSecurityError(p.Code, err))
			continue
		}
		md.prices[p.Code] = series

		currency := strings.ToUpper(p.Currency)
		if sameCurrency(currency, md.reporting) {
			continue
		}
		if _, done := md.rates[currency]; done {
			continue
		}
		rates, err := e.series.RateSeries(ctx, currency, md.reporting, time.Time{}, to)
		if err != nil {
			rc.warnings.AddError(domain.WarningDataGap, asSecurityError(currency+md.reporting, err))
			// Remember the miss so the pair is not queried again
			md.rates[currency] = domain.Series{ID: currency + md.reporting}
			continue
		}
		md.rates[currency] = rates
	}

	if b := rc.cfg.Benchmark; b != nil && ctx.Err() == nil {
		series, err := e.series.PriceSeries(ctx, b.Code, from, to)
		if err != nil {
			rc.warnings.AddError(domain.WarningDataGap, asSecurityError(b.Code, err))
			rc.warnings.Add(domain.WarningDegenerateBenchmark, b.Code, "benchmark history unavailable, beta not computed")
		} else {
			series.ID = b.Code
			md.benchmark = &series
		}
	}

	return md
}

// priceSeries looks a security up by its primary code, then its fallback code.
func (e *Engine) priceSeries(ctx context.Context, p *portfolio.Position, from, to time.Time) (domain.Series, error) {
	series, err := e.series.PriceSeries(ctx, p.Code, from, to)
	if err == nil || p.Code2 == "" || !errors.Is(err, domain.ErrDataGap) {
		if err == nil {
			series.ID = p.Code
		}
		return series, err
	}

	e.log.Debug().Str("security", p.Code).Str("fallback", p.Code2).Msg("Trying fallback code")
	series, err2 := e.series.PriceSeries(ctx, p.Code2, from, to)
	if err2 != nil {
		return series, err
	}
	series.ID = p.Code
	return series, nil
}

// value applies the latest price on or before asOf to each position,
// converting with the market rate on the price date. When no market rate is
// available the security's last ledger rate is used and a warning recorded.
// Held positions left unpriced keep their cost basis and get a data-gap warning.
func (md *marketData) value(snap *portfolio.Snapshot, asOf time.Time, ledgerRates map[string]decimal.Decimal, warnings *domain.Warnings) {
	for _, p := range snap.Positions {
		if !md.price(p, asOf, ledgerRates, warnings) && !p.Quantity.IsZero() {
			warnings.Add(domain.WarningDataGap, p.Code,
				"no price on or before %s, valued at cost basis", asOf.Format(domain.DateLayout))
		}
	}
}

func (md *marketData) price(p *portfolio.Position, asOf time.Time, ledgerRates map[string]decimal.Decimal, warnings *domain.Warnings) bool {
	series, ok := md.prices[p.Code]
	if !ok {
		return false
	}
	last, ok := series.Normalize().Between(time.Time{}, asOf).Last()
	if !ok {
		return false
	}

	rate := decimal.NewFromInt(1)
	if !sameCurrency(p.Currency, md.reporting) {
		rates := md.rates[strings.ToUpper(p.Currency)]
		if r, ok := rates.Normalize().ValueAt(last.Date); ok {
			rate = decimal.NewFromFloat(r)
		} else if lr, ok := ledgerRates[p.Code]; ok {
			rate = lr
			warnings.Add(domain.WarningCurrencyFallback, p.Code,
				"no %s/%s rate on %s, using last ledger rate %s",
				strings.ToUpper(p.Currency), md.reporting, last.Date.Format(domain.DateLayout), lr)
		} else {
			return false
		}
	}
	p.ApplyMarketPrice(decimal.NewFromFloat(last.Value), rate, last.Date)
	return true
}

// alignInput builds the aligner input for the open positions that have prices.
func (md *marketData) alignInput(cfg config.PortfolioConfig, positions []*portfolio.Position, start, end time.Time) alignment.Input {
	in := alignment.Input{
		ReportingCurrency: md.reporting,
		Rates:             make(map[string]domain.Series),
		Benchmark:         md.benchmark,
		Start:             start,
		End:               end,
		DayShift:          cfg.DayShift,
		MinCoverage:       cfg.MinCoverage,
	}
	for _, p := range positions {
		series, ok := md.prices[p.Code]
		if !ok {
			continue
		}
		in.Securities = append(in.Securities, alignment.SecurityInput{
			Code:     p.Code,
			Currency: p.Currency,
			Prices:   series,
			Shift:    cfg.ShiftsMarket(p.Market),
		})
	}
	for currency, rates := range md.rates {
		if rates.Len() > 0 {
			in.Rates[currency] = rates
		}
	}
	return in
}

func asSecurityError(security string, err error) error {
	var se *domain.SecurityError
	if errors.As(err, &se) {
		return err
	}
	return domain.NewSecurityError(security, domain.ErrDataGap, "%v", err)
}
