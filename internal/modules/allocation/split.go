package allocation

import (
	"github.com/aristath/finreport/internal/domain"
	"github.com/aristath/finreport/internal/modules/portfolio"
)

// StyleSplit divides the portfolio into passive (funds) and active (stocks) holdings.
type StyleSplit struct {
	Passive      []string `json:"passive"`
	Active       []string `json:"active"`
	PassiveValue float64  `json:"passive_value"`
	ActiveValue  float64  `json:"active_value"`
	PassivePct   float64  `json:"passive_pct"`
	ActivePct    float64  `json:"active_pct"`
}

// SplitByStyle classifies open positions by security type.
func SplitByStyle(positions []*portfolio.Position) StyleSplit {
	split := StyleSplit{Passive: []string{}, Active: []string{}}
	for _, p := range positions {
		value := p.ValueOrCost().InexactFloat64()
		if p.Type == domain.SecurityTypeFund {
			split.Passive = append(split.Passive, p.Code)
			split.PassiveValue += value
			continue
		}
		split.Active = append(split.Active, p.Code)
		split.ActiveValue += value
	}

	if total := split.PassiveValue + split.ActiveValue; total > 0 {
		split.PassivePct = round(100*split.PassiveValue/total, 4)
		split.ActivePct = round(100*split.ActiveValue/total, 4)
	}
	split.PassiveValue = round(split.PassiveValue, 2)
	split.ActiveValue = round(split.ActiveValue, 2)
	return split
}
