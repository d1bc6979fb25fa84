package allocation

import (
	"sort"
	"time"

	"github.com/aristath/finreport/internal/modules/portfolio"
	"github.com/shopspring/decimal"
)

// DividendYield is a security's trailing twelve-month dividend return on cost.
type DividendYield struct {
	Code        string  `json:"code"`
	Name        string  `json:"name"`
	Payments    int     `json:"payments"`
	NetPerShare float64 `json:"net_per_share"`
	NetTotal    float64 `json:"net_total"`
	AverageCost float64 `json:"average_cost"`
	YieldPct    float64 `json:"yield_pct"`
}

// DividendYields computes, for each open position that paid in the year ending
// at asOf, the net dividend per share divided by average cost.
func DividendYields(positions []*portfolio.Position, asOf time.Time) []DividendYield {
	from := asOf.AddDate(-1, 0, 0)
	hundred := decimal.NewFromInt(100)

	var out []DividendYield
	for _, p := range positions {
		var perShare, total decimal.Decimal
		payments := 0
		for _, ev := range p.DividendEvents {
			if !ev.Date.After(from) || ev.Date.After(asOf) {
				continue
			}
			net := ev.Net()
			total = total.Add(net)
			if ev.Quantity.IsPositive() {
				perShare = perShare.Add(net.Div(ev.Quantity))
			}
			payments++
		}
		if payments == 0 {
			continue
		}

		dy := DividendYield{
			Code:        p.Code,
			Name:        p.Name,
			Payments:    payments,
			NetPerShare: round(perShare.InexactFloat64(), 4),
			NetTotal:    round(total.InexactFloat64(), 2),
			AverageCost: round(p.AverageCost.InexactFloat64(), 4),
		}
		if p.AverageCost.IsPositive() {
			dy.YieldPct = round(perShare.Div(p.AverageCost).Mul(hundred).InexactFloat64(), 4)
		}
		out = append(out, dy)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].YieldPct != out[j].YieldPct {
			return out[i].YieldPct > out[j].YieldPct
		}
		return out[i].Code < out[j].Code
	})
	return out
}
