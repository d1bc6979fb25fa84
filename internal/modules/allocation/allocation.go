// Package allocation breaks the current portfolio down by descriptive variables.
package allocation

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/aristath/finreport/internal/domain"
	"github.com/aristath/finreport/internal/modules/portfolio"
)

// Variable is a descriptive ledger column positions can be grouped by.
type Variable string

const (
	VariableType     Variable = "type"
	VariableIndustry Variable = "industry"
	VariableMarket   Variable = "market"
	VariableName     Variable = "name"
	VariableCurrency Variable = "currency"
)

// OtherLabel collects small items once more than one falls below the threshold.
const OtherLabel = "Other"

// MinAllocationPct is the share below which allocation items are merged into Other.
const MinAllocationPct = 5.0

// Variables lists every supported grouping in report order.
func Variables() []Variable {
	return []Variable{VariableType, VariableIndustry, VariableMarket, VariableName, VariableCurrency}
}

// ParseVariable accepts a variable name case-insensitively.
func ParseVariable(s string) (Variable, error) {
	v := Variable(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Variables() {
		if v == known {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown allocation variable %q", s)
}

// Item is one group's share of the portfolio
type Item struct {
	Label    string  `json:"label"`
	Quantity float64 `json:"quantity"`
	Value    float64 `json:"value"`
	Percent  float64 `json:"percent"`
	Members  int     `json:"members"`
}

// ByVariable is the allocation table and its grouped chart view for one variable.
type ByVariable struct {
	Variable Variable `json:"variable"`
	Items    []Item   `json:"items"`
	Grouped  []Item   `json:"grouped"`
}

func labelOf(v Variable, typ domain.SecurityType, industry, market, name, currency string) string {
	var label string
	switch v {
	case VariableType:
		label = string(typ)
	case VariableIndustry:
		label = industry
	case VariableMarket:
		label = market
	case VariableName:
		label = name
	case VariableCurrency:
		label = currency
	}
	if label == "" {
		return "Unknown"
	}
	return label
}

func positionLabel(v Variable, p *portfolio.Position) string {
	name := p.Name
	if name == "" {
		name = p.Code
	}
	return labelOf(v, p.Type, p.Industry, p.Market, name, p.Currency)
}

// CalculateByVariable groups open positions by v and returns each group's share
// of total value (market value, or cost basis when unpriced).
func CalculateByVariable(positions []*portfolio.Position, v Variable) ByVariable {
	values := make(map[string]*Item)
	var total float64
	for _, p := range positions {
		label := positionLabel(v, p)
		item, ok := values[label]
		if !ok {
			item = &Item{Label: label}
			values[label] = item
		}
		value := p.ValueOrCost().InexactFloat64()
		item.Quantity += p.Quantity.InexactFloat64()
		item.Value += value
		item.Members++
		total += value
	}

	items := make([]Item, 0, len(values))
	for _, item := range values {
		if total > 0 {
			item.Percent = 100 * item.Value / total
		}
		items = append(items, *item)
	}
	sortItems(items)
	grouped := groupSmall(items, MinAllocationPct)

	return ByVariable{
		Variable: v,
		Items:    roundItems(items),
		Grouped:  roundItems(grouped),
	}
}

// CalculateAll returns allocations for every supported variable.
func CalculateAll(positions []*portfolio.Position) []ByVariable {
	out := make([]ByVariable, 0, len(Variables()))
	for _, v := range Variables() {
		out = append(out, CalculateByVariable(positions, v))
	}
	return out
}

// groupSmall merges items under threshold into Other, but only when at least
// two items qualify. A lone small item keeps its own label.
func groupSmall(items []Item, threshold float64) []Item {
	small := 0
	for _, item := range items {
		if item.Percent < threshold {
			small++
		}
	}
	if small < 2 {
		return append([]Item(nil), items...)
	}

	out := make([]Item, 0, len(items)-small+1)
	other := Item{Label: OtherLabel}
	for _, item := range items {
		if item.Percent < threshold {
			other.Quantity += item.Quantity
			other.Value += item.Value
			other.Percent += item.Percent
			other.Members += item.Members
			continue
		}
		out = append(out, item)
	}
	out = append(out, other)
	sortItems(out)
	return out
}

// sortItems orders by descending percent, then label
func sortItems(items []Item) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].Percent != items[j].Percent {
			return items[i].Percent > items[j].Percent
		}
		return items[i].Label < items[j].Label
	})
}

func roundItems(items []Item) []Item {
	for i := range items {
		items[i].Value = round(items[i].Value, 2)
		items[i].Percent = round(items[i].Percent, 4)
	}
	return items
}

// round rounds a float64 to n decimal places
func round(val float64, decimals int) float64 {
	multiplier := math.Pow(10, float64(decimals))
	return math.Round(val*multiplier) / multiplier
}
