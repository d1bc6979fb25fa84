package analysis

import (
	"time"

	"github.com/aristath/finreport/internal/domain"
	"github.com/aristath/finreport/internal/modules/allocation"
	"github.com/aristath/finreport/internal/modules/optimization"
	"github.com/aristath/finreport/internal/modules/performance"
	"github.com/aristath/finreport/internal/modules/portfolio"
	"github.com/aristath/finreport/internal/modules/statistics"
)

// Report is the full analysis of one portfolio run. Monetary values are in
// the reporting currency and flattened to float64 for storage and rendering.
type Report struct {
	RunID             string    `json:"run_id"`
	Portfolio         string    `json:"portfolio"`
	ReportingCurrency string    `json:"reporting_currency"`
	Benchmark         string    `json:"benchmark,omitempty"`
	GeneratedAt       time.Time `json:"generated_at"`
	PeriodStart       time.Time `json:"period_start"`
	PeriodEnd         time.Time `json:"period_end"`
	PastCutoff        time.Time `json:"past_cutoff"`

	Current  SnapshotView  `json:"current"`
	Past     SnapshotView  `json:"past"`
	Excluded []string      `json:"excluded,omitempty"`
	Monthly  []MonthlyView `json:"monthly"`

	Allocation     []allocation.ByVariable     `json:"allocation"`
	Fees           []allocation.FeesByVariable `json:"fees"`
	TotalFees      allocation.FeeItem          `json:"total_fees"`
	DividendYields []allocation.DividendYield  `json:"dividend_yields"`
	Style          allocation.StyleSplit       `json:"style"`

	Statistics *statistics.Result       `json:"statistics,omitempty"`
	Frontier   *optimization.Result     `json:"frontier,omitempty"`
	Projection *optimization.Projection `json:"projection,omitempty"`
	History    *performance.History     `json:"history,omitempty"`

	// OptimalAllocation is the max-Sharpe weight per security code.
	OptimalAllocation map[string]float64 `json:"optimal_allocation,omitempty"`

	Warnings []domain.Warning `json:"warnings"`
	Elapsed  string           `json:"elapsed"`
}

// PositionView is an open position as reported
type PositionView struct {
	Code           string    `json:"code"`
	Name           string    `json:"name"`
	Type           string    `json:"type"`
	Industry       string    `json:"industry"`
	Market         string    `json:"market"`
	Currency       string    `json:"currency"`
	Quantity       float64   `json:"quantity"`
	AverageCost    float64   `json:"average_cost"`
	CostBasis      float64   `json:"cost_basis"`
	LastPrice      float64   `json:"last_price"`
	PriceDate      time.Time `json:"price_date"`
	MarketValue    float64   `json:"market_value"`
	UnrealizedGain float64   `json:"unrealized_gain"`
	RealizedGain   float64   `json:"realized_gain"`
	Dividends      float64   `json:"dividends"`
	Fees           float64   `json:"fees"`
	Weight         float64   `json:"weight"`
}

// ClosedView is a fully liquidated position
type ClosedView struct {
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	Quantity     float64   `json:"quantity"`
	AverageBuy   float64   `json:"average_buy"`
	AverageSell  float64   `json:"average_sell"`
	RealizedGain float64   `json:"realized_gain"`
	Dividends    float64   `json:"dividends"`
	Fees         float64   `json:"fees"`
	ReturnPct    float64   `json:"return_pct"`
	ClosedAt     time.Time `json:"closed_at"`
}

// TotalsView aggregates a snapshot
type TotalsView struct {
	Invested       float64 `json:"invested"`
	CostBasis      float64 `json:"cost_basis"`
	MarketValue    float64 `json:"market_value"`
	UnrealizedGain float64 `json:"unrealized_gain"`
	RealizedGain   float64 `json:"realized_gain"`
	Dividends      float64 `json:"dividends"`
	Fees           float64 `json:"fees"`
	TotalGain      float64 `json:"total_gain"`

	// UnrealizedReturnPct excludes realized gains and dividends
	UnrealizedReturnPct float64 `json:"unrealized_return_pct"`
}

// SnapshotView is a portfolio snapshot as reported
type SnapshotView struct {
	AsOf       time.Time      `json:"as_of"`
	Positions  []PositionView `json:"positions"`
	Closed     []ClosedView   `json:"closed"`
	IncomeOnly []ClosedView   `json:"income_only"`
	Totals     TotalsView     `json:"totals"`
}

// MonthlyView is one month of capital flows
type MonthlyView struct {
	Month              string  `json:"month"`
	NetInvested        float64 `json:"net_invested"`
	CumulativeInvested float64 `json:"cumulative_invested"`
	Fees               float64 `json:"fees"`
	CumulativeFees     float64 `json:"cumulative_fees"`
}

// Position looks up an open position by code
func (s SnapshotView) Position(code string) (PositionView, bool) {
	for _, p := range s.Positions {
		if p.Code == code {
			return p, true
		}
	}
	return PositionView{}, false
}

func snapshotView(s *portfolio.Snapshot) SnapshotView {
	if s == nil {
		return SnapshotView{Positions: []PositionView{}, Closed: []ClosedView{}, IncomeOnly: []ClosedView{}}
	}
	weights := s.Weights()
	view := SnapshotView{
		AsOf:       s.AsOf,
		Positions:  make([]PositionView, 0, len(s.Positions)),
		Closed:     closedViews(s.Closed),
		IncomeOnly: closedViews(s.IncomeOnly),
	}
	for _, p := range s.Positions {
		view.Positions = append(view.Positions, PositionView{
			Code:           p.Code,
			Name:           p.Name,
			Type:           string(p.Type),
			Industry:       p.Industry,
			Market:         p.Market,
			Currency:       p.Currency,
			Quantity:       p.Quantity.InexactFloat64(),
			AverageCost:    p.AverageCost.InexactFloat64(),
			CostBasis:      p.CostBasis().InexactFloat64(),
			LastPrice:      p.LastPrice.InexactFloat64(),
			PriceDate:      p.PriceDate,
			MarketValue:    p.ValueOrCost().InexactFloat64(),
			UnrealizedGain: p.UnrealizedGain().InexactFloat64(),
			RealizedGain:   p.RealizedGain.InexactFloat64(),
			Dividends:      p.Dividends.InexactFloat64(),
			Fees:           p.Fees().InexactFloat64(),
			Weight:         weights[p.Code],
		})
	}

	t := s.Totals()
	view.Totals = TotalsView{
		Invested:       t.Invested.InexactFloat64(),
		CostBasis:      t.CostBasis.InexactFloat64(),
		MarketValue:    t.MarketValue.InexactFloat64(),
		UnrealizedGain: t.UnrealizedGain.InexactFloat64(),
		RealizedGain:   t.RealizedGain.InexactFloat64(),
		Dividends:      t.Dividends.InexactFloat64(),
		Fees:           t.Fees.InexactFloat64(),
		TotalGain:      t.TotalGain.InexactFloat64(),

		UnrealizedReturnPct: t.UnrealizedReturnPct.InexactFloat64(),
	}
	return view
}

func closedViews(closed []portfolio.ClosedPosition) []ClosedView {
	out := make([]ClosedView, 0, len(closed))
	for _, c := range closed {
		out = append(out, ClosedView{
			Code:         c.Code,
			Name:         c.Name,
			Type:         c.Type,
			Quantity:     c.Quantity.InexactFloat64(),
			AverageBuy:   c.AverageBuy.InexactFloat64(),
			AverageSell:  c.AverageSell.InexactFloat64(),
			RealizedGain: c.RealizedGain.InexactFloat64(),
			Dividends:    c.Dividends.InexactFloat64(),
			Fees:         c.Fees.InexactFloat64(),
			ReturnPct:    c.ReturnPct.InexactFloat64(),
			ClosedAt:     c.ClosedAt,
		})
	}
	return out
}

func monthlyView(flows []portfolio.MonthlyFlow) []MonthlyView {
	out := make([]MonthlyView, 0, len(flows))
	for _, f := range flows {
		out = append(out, MonthlyView{
			Month:              f.Month,
			NetInvested:        f.NetInvested.InexactFloat64(),
			CumulativeInvested: f.CumulativeInvested.InexactFloat64(),
			Fees:               f.Fees.InexactFloat64(),
			CumulativeFees:     f.CumulativeFees.InexactFloat64(),
		})
	}
	return out
}
