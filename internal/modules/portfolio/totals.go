package portfolio

import (
	"sort"

	"github.com/aristath/finreport/internal/domain"
	"github.com/shopspring/decimal"
)

// Totals aggregates a snapshot in reporting currency.
type Totals struct {
	Invested       decimal.Decimal `json:"invested"`
	CostBasis      decimal.Decimal `json:"cost_basis"`
	MarketValue    decimal.Decimal `json:"market_value"`
	UnrealizedGain decimal.Decimal `json:"unrealized_gain"`
	RealizedGain   decimal.Decimal `json:"realized_gain"`
	Dividends      decimal.Decimal `json:"dividends"`
	Fees           decimal.Decimal `json:"fees"`
	TotalGain      decimal.Decimal `json:"total_gain"`

	// UnrealizedReturnPct is unrealized gain over the cost basis of open positions.
	UnrealizedReturnPct decimal.Decimal `json:"unrealized_return_pct"`
}

// Totals sums open positions and folds in realized results of closed ones
// and the income of income-only ones.
func (s Snapshot) Totals() Totals {
	var t Totals
	for _, p := range s.Positions {
		t.Invested = t.Invested.Add(p.Invested)
		t.CostBasis = t.CostBasis.Add(p.CostBasis())
		t.MarketValue = t.MarketValue.Add(p.ValueOrCost())
		t.UnrealizedGain = t.UnrealizedGain.Add(p.UnrealizedGain())
		t.RealizedGain = t.RealizedGain.Add(p.RealizedGain)
		t.Dividends = t.Dividends.Add(p.Dividends)
		t.Fees = t.Fees.Add(p.Fees())
	}
	for _, list := range [][]ClosedPosition{s.Closed, s.IncomeOnly} {
		for _, c := range list {
			t.RealizedGain = t.RealizedGain.Add(c.RealizedGain)
			t.Dividends = t.Dividends.Add(c.Dividends)
			t.Fees = t.Fees.Add(c.Fees)
		}
	}
	t.TotalGain = t.RealizedGain.Add(t.UnrealizedGain).Add(t.Dividends)
	if t.CostBasis.IsPositive() {
		t.UnrealizedReturnPct = t.UnrealizedGain.Div(t.CostBasis).Mul(decimal.NewFromInt(100))
	}
	return t
}

// Weights returns each open position's share of total value (market value, or
// cost basis when unpriced), keyed by code. Empty when the total is zero.
func (s Snapshot) Weights() map[string]float64 {
	total := decimal.Zero
	for _, p := range s.Positions {
		total = total.Add(p.ValueOrCost())
	}
	weights := make(map[string]float64, len(s.Positions))
	if !total.IsPositive() {
		return weights
	}
	for _, p := range s.Positions {
		weights[p.Code] = p.ValueOrCost().Div(total).InexactFloat64()
	}
	return weights
}

// MonthlyFlow is the net capital deployed and fees paid in one calendar month.
type MonthlyFlow struct {
	Month              string          `json:"month"` // YYYY-MM
	NetInvested        decimal.Decimal `json:"net_invested"`
	CumulativeInvested decimal.Decimal `json:"cumulative_invested"`
	Fees               decimal.Decimal `json:"fees"`
	CumulativeFees     decimal.Decimal `json:"cumulative_fees"`
}

type monthlyAccumulator struct {
	invested map[string]decimal.Decimal
	fees     map[string]decimal.Decimal
}

func newMonthlyAccumulator() *monthlyAccumulator {
	return &monthlyAccumulator{
		invested: make(map[string]decimal.Decimal),
		fees:     make(map[string]decimal.Decimal),
	}
}

func (m *monthlyAccumulator) add(rec domain.TransactionRecord) {
	month := rec.Timestamp.Format("2006-01")
	amount := rec.ToReporting(rec.Quantity.Mul(rec.UnitPrice))
	switch rec.Operation {
	case domain.OperationBuy:
		m.invested[month] = m.invested[month].Add(amount)
	case domain.OperationSell:
		m.invested[month] = m.invested[month].Sub(amount)
	default:
		if _, ok := m.invested[month]; !ok {
			m.invested[month] = decimal.Zero
		}
	}
	m.fees[month] = m.fees[month].Add(rec.ToReporting(rec.Fees()))
}

func (m *monthlyAccumulator) flows() []MonthlyFlow {
	months := make([]string, 0, len(m.invested))
	for month := range m.invested {
		months = append(months, month)
	}
	sort.Strings(months)

	flows := make([]MonthlyFlow, 0, len(months))
	cumInvested, cumFees := decimal.Zero, decimal.Zero
	for _, month := range months {
		cumInvested = cumInvested.Add(m.invested[month])
		cumFees = cumFees.Add(m.fees[month])
		flows = append(flows, MonthlyFlow{
			Month:              month,
			NetInvested:        m.invested[month],
			CumulativeInvested: cumInvested,
			Fees:               m.fees[month],
			CumulativeFees:     cumFees,
		})
	}
	return flows
}
