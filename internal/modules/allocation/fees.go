package allocation

import (
	"sort"

	"github.com/aristath/finreport/internal/domain"
	"github.com/shopspring/decimal"
)

// MinFeePct is the fee ratio below which fee items are merged into Other.
const MinFeePct = 0.15

// FeeItem sums the fees paid on a group's traded amount, in reporting currency.
type FeeItem struct {
	Label     string  `json:"label"`
	Amount    float64 `json:"amount"`
	BrokerFee float64 `json:"broker_fee"`
	TaxFee    float64 `json:"tax_fee"`
	TotalFee  float64 `json:"total_fee"`
	FeePct    float64 `json:"fee_pct"`
}

// FeesByVariable is the fee table and its grouped chart view for one variable.
type FeesByVariable struct {
	Variable Variable  `json:"variable"`
	Items    []FeeItem `json:"items"`
	Grouped  []FeeItem `json:"grouped"`
}

type feeSums struct {
	amount, broker, tax decimal.Decimal
}

func (s feeSums) item(label string) FeeItem {
	total := s.broker.Add(s.tax)
	item := FeeItem{
		Label:     label,
		Amount:    s.amount.InexactFloat64(),
		BrokerFee: s.broker.InexactFloat64(),
		TaxFee:    s.tax.InexactFloat64(),
		TotalFee:  total.InexactFloat64(),
	}
	if s.amount.IsPositive() {
		item.FeePct = total.Div(s.amount).Mul(decimal.NewFromInt(100)).InexactFloat64()
	}
	return item
}

func (s *feeSums) add(rec domain.TransactionRecord) {
	s.amount = s.amount.Add(rec.ToReporting(rec.Gross()))
	s.broker = s.broker.Add(rec.ToReporting(rec.BrokerFee))
	s.tax = s.tax.Add(rec.ToReporting(rec.TaxFee))
}

func recordLabel(v Variable, rec domain.TransactionRecord) string {
	name := rec.Name
	if name == "" {
		name = rec.Code
	}
	return labelOf(v, rec.Type, rec.Industry, rec.Market, name, rec.Currency)
}

// TotalFees sums every ledger row's amount and fees.
func TotalFees(records []domain.TransactionRecord) FeeItem {
	var sums feeSums
	for _, rec := range records {
		sums.add(rec)
	}
	return roundFee(sums.item("Total"))
}

// CalculateFeesByVariable groups every ledger row by v. Groups whose fee ratio
// falls under MinFeePct are merged into Other when more than one qualifies.
func CalculateFeesByVariable(records []domain.TransactionRecord, v Variable) FeesByVariable {
	groups := make(map[string]*feeSums)
	for _, rec := range records {
		label := recordLabel(v, rec)
		sums, ok := groups[label]
		if !ok {
			sums = &feeSums{}
			groups[label] = sums
		}
		sums.add(rec)
	}

	items := make([]FeeItem, 0, len(groups))
	small := 0
	var other feeSums
	grouped := make([]FeeItem, 0, len(groups))
	for label, sums := range groups {
		item := sums.item(label)
		items = append(items, item)
		if item.FeePct < MinFeePct {
			small++
			other.amount = other.amount.Add(sums.amount)
			other.broker = other.broker.Add(sums.broker)
			other.tax = other.tax.Add(sums.tax)
			continue
		}
		grouped = append(grouped, item)
	}
	if small > 1 {
		grouped = append(grouped, other.item(OtherLabel))
	} else {
		grouped = append([]FeeItem(nil), items...)
	}

	sortFees(items)
	sortFees(grouped)
	for i := range items {
		items[i] = roundFee(items[i])
	}
	for i := range grouped {
		grouped[i] = roundFee(grouped[i])
	}
	return FeesByVariable{Variable: v, Items: items, Grouped: grouped}
}

func sortFees(items []FeeItem) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].FeePct != items[j].FeePct {
			return items[i].FeePct > items[j].FeePct
		}
		return items[i].Label < items[j].Label
	})
}

func roundFee(f FeeItem) FeeItem {
	f.Amount = round(f.Amount, 2)
	f.BrokerFee = round(f.BrokerFee, 2)
	f.TaxFee = round(f.TaxFee, 2)
	f.TotalFee = round(f.TotalFee, 2)
	f.FeePct = round(f.FeePct, 4)
	return f
}
