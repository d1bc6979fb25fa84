package testing

import (
	"math"
	"time"

	"github.com/aristath/finreport/internal/domain"
	"github.com/shopspring/decimal"
)

// Day parses a YYYY-MM-DD date and panics on malformed input.
func Day(s string) time.Time {
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

// Record builds a valid ledger row in USD at rate 1.
func Record(date, code string, op domain.Operation, qty, price float64) domain.TransactionRecord {
	return domain.TransactionRecord{
		Timestamp:    Day(date),
		Code:         code,
		Name:         code + " Inc",
		Type:         domain.SecurityTypeStock,
		Industry:     "Technology",
		Market:       "NASDAQ",
		Operation:    op,
		Quantity:     decimal.NewFromFloat(qty),
		Currency:     "USD",
		UnitPrice:    decimal.NewFromFloat(price),
		ExchangeRate: decimal.NewFromInt(1),
	}
}

// BusinessDays returns n consecutive weekdays starting at start (inclusive).
func BusinessDays(start time.Time, n int) []time.Time {
	days := make([]time.Time, 0, n)
	for d := start; len(days) < n; d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		days = append(days, d)
	}
	return days
}

// Series zips dates and values into a domain series.
func Series(id string, dates []time.Time, values []float64) domain.Series {
	s := domain.Series{ID: id, Points: make([]domain.Point, 0, len(values))}
	for i, v := range values {
		if i >= len(dates) {
			break
		}
		s.Points = append(s.Points, domain.Point{Date: dates[i], Value: v})
	}
	return s
}

// Wave produces a deterministic price path: start compounded by a sine-modulated drift.
func Wave(start float64, n int, drift, amplitude, phase float64) []float64 {
	prices := make([]float64, n)
	p := start
	for i := 0; i < n; i++ {
		prices[i] = p
		p *= 1 + drift + amplitude*math.Sin(float64(i)*0.7+phase)
	}
	return prices
}

// Constant returns n copies of v.
func Constant(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
