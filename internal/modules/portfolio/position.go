package portfolio

import (
	"time"

	"github.com/aristath/finreport/internal/domain"
	"github.com/shopspring/decimal"
)

// Position is the running aggregate for one security, in reporting currency.
type Position struct {
	Code     string              `json:"code"`
	Code2    string              `json:"code2,omitempty"`
	Name     string              `json:"name"`
	Type     domain.SecurityType `json:"type"`
	Industry string              `json:"industry"`
	Market   string              `json:"market"`
	Currency string              `json:"currency"`

	Quantity     decimal.Decimal `json:"quantity"`
	AverageCost  decimal.Decimal `json:"average_cost"`
	Dividends    decimal.Decimal `json:"dividends"`
	BrokerFees   decimal.Decimal `json:"broker_fees"`
	TaxFees      decimal.Decimal `json:"tax_fees"`
	RealizedGain decimal.Decimal `json:"realized_gain"`

	// Gross flows used for closed-position and allocation reporting
	Invested       decimal.Decimal `json:"invested"`
	Proceeds       decimal.Decimal `json:"proceeds"`
	BoughtQuantity decimal.Decimal `json:"bought_quantity"`
	SoldQuantity   decimal.Decimal `json:"sold_quantity"`
	TradedAmount   decimal.Decimal `json:"traded_amount"`

	FirstBuy     time.Time `json:"first_buy"`
	LastActivity time.Time `json:"last_activity"`

	// Set from market data after replay
	LastPrice   decimal.Decimal `json:"last_price"`
	PriceDate   time.Time       `json:"price_date"`
	MarketValue decimal.Decimal `json:"market_value"`

	DividendEvents []DividendEvent `json:"dividend_events,omitempty"`
}

// DividendEvent is one dividend payment converted to reporting currency.
type DividendEvent struct {
	Date     time.Time       `json:"date"`
	Quantity decimal.Decimal `json:"quantity"`
	Gross    decimal.Decimal `json:"gross"`
	Tax      decimal.Decimal `json:"tax"`
}

// Net returns the dividend after withholding tax
func (e DividendEvent) Net() decimal.Decimal {
	return e.Gross.Sub(e.Tax)
}

// Fees returns broker plus tax fees
func (p *Position) Fees() decimal.Decimal {
	return p.BrokerFees.Add(p.TaxFees)
}

// CostBasis is quantity x average cost
func (p *Position) CostBasis() decimal.Decimal {
	return p.Quantity.Mul(p.AverageCost)
}

// UnrealizedGain is market value minus cost basis; zero until a price is applied.
func (p *Position) UnrealizedGain() decimal.Decimal {
	if p.PriceDate.IsZero() {
		return decimal.Zero
	}
	return p.MarketValue.Sub(p.CostBasis())
}

// IsOpen reports whether the position still holds units
func (p *Position) IsOpen() bool {
	return p.Quantity.IsPositive()
}

// ApplyMarketPrice values the position at price (security currency) times rate.
func (p *Position) ApplyMarketPrice(price, rate decimal.Decimal, date time.Time) {
	p.LastPrice = price
	p.PriceDate = date
	p.MarketValue = p.Quantity.Mul(price).Mul(rate)
}

// ValueOrCost returns market value when priced, otherwise cost basis.
func (p *Position) ValueOrCost() decimal.Decimal {
	if p.PriceDate.IsZero() {
		return p.CostBasis()
	}
	return p.MarketValue
}

func (p *Position) clone() *Position {
	c := *p
	c.DividendEvents = append([]DividendEvent(nil), p.DividendEvents...)
	return &c
}

// ClosedPosition summarizes a fully liquidated holding.
type ClosedPosition struct {
	Code         string          `json:"code"`
	Name         string          `json:"name"`
	Type         string          `json:"type"`
	AverageBuy   decimal.Decimal `json:"average_buy"`
	AverageSell  decimal.Decimal `json:"average_sell"`
	Quantity     decimal.Decimal `json:"quantity"`
	RealizedGain decimal.Decimal `json:"realized_gain"`
	Dividends    decimal.Decimal `json:"dividends"`
	Fees         decimal.Decimal `json:"fees"`
	ReturnPct    decimal.Decimal `json:"return_pct"`
	ClosedAt     time.Time       `json:"closed_at"`
}

func closedFrom(p *Position) ClosedPosition {
	cp := ClosedPosition{
		Code:         p.Code,
		Name:         p.Name,
		Type:         string(p.Type),
		Quantity:     p.SoldQuantity,
		RealizedGain: p.RealizedGain,
		Dividends:    p.Dividends,
		Fees:         p.Fees(),
		ClosedAt:     p.LastActivity,
	}
	if p.BoughtQuantity.IsPositive() {
		cp.AverageBuy = p.Invested.Div(p.BoughtQuantity)
	}
	if p.SoldQuantity.IsPositive() {
		cp.AverageSell = p.Proceeds.Div(p.SoldQuantity)
	}
	if p.Invested.IsPositive() {
		cp.ReturnPct = p.RealizedGain.Add(p.Dividends).Div(p.Invested).Mul(decimal.NewFromInt(100))
	}
	return cp
}
