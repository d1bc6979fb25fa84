// Package portfolio replays the transaction ledger into position snapshots.
package portfolio

import (
	"fmt"
	"sort"
	"time"

	"github.com/aristath/finreport/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Snapshot is the state of the book at a point in time. Immutable once built.
type Snapshot struct {
	AsOf      time.Time        `json:"as_of"`
	Positions []*Position      `json:"positions"`
	Closed    []ClosedPosition `json:"closed"`
	// IncomeOnly holds securities that paid dividends or fees without ever
	// holding units by AsOf, e.g. a dividend booked before the first buy.
	IncomeOnly []ClosedPosition `json:"income_only"`
}

// Result is the outcome of replaying a full ledger.
type Result struct {
	Current  Snapshot      `json:"current"`
	Past     *Snapshot     `json:"past,omitempty"`
	Excluded []string      `json:"excluded,omitempty"`
	Monthly  []MonthlyFlow `json:"monthly"`
}

// Position looks up an open position in the current snapshot.
func (r *Result) Position(code string) (*Position, bool) {
	for _, p := range r.Current.Positions {
		if p.Code == code {
			return p, true
		}
	}
	return nil, false
}

// Aggregator converts ledger records into positions using weighted-average cost.
type Aggregator struct {
	log zerolog.Logger
}

// NewAggregator creates a ledger aggregator
func NewAggregator(log zerolog.Logger) *Aggregator {
	return &Aggregator{
		log: log.With().Str("component", "ledger_aggregator").Logger(),
	}
}

// Aggregate replays records in (timestamp, file order) and returns the current book
// and, when pastCutoff is non-zero, the book as of the end of that day.
//
// A sell exceeding the held quantity excludes that security from both snapshots
// and is recorded in warnings; other securities are unaffected.
func (a *Aggregator) Aggregate(records []domain.TransactionRecord, pastCutoff time.Time, warnings *domain.Warnings) (*Result, error) {
	if len(records) == 0 {
		return nil, domain.ErrEmptyLedger
	}
	if warnings == nil {
		warnings = domain.NewWarnings(a.log)
	}

	sorted := SortRecords(records)
	b := newBook()
	monthly := newMonthlyAccumulator()

	var past *book
	cutoff := domain.Day(pastCutoff)

	for _, rec := range sorted {
		if !pastCutoff.IsZero() && past == nil && domain.Day(rec.Timestamp).After(cutoff) {
			past = b.clone()
		}
		if b.isExcluded(rec.Code) {
			continue
		}
		if err := b.apply(rec); err != nil {
			b.exclude(rec.Code)
			warnings.AddError(domain.WarningLedgerInconsistency, err)
			a.log.Warn().Err(err).Str("security", rec.Code).Msg("Security excluded from analysis")
			continue
		}
		monthly.add(rec)
	}
	if !pastCutoff.IsZero() && past == nil {
		past = b.clone()
	}

	result := &Result{
		Current:  b.snapshot(sorted[len(sorted)-1].Timestamp, b.excluded),
		Excluded: b.excludedCodes(),
		Monthly:  monthly.flows(),
	}
	if past != nil {
		snap := past.snapshot(cutoff, b.excluded)
		result.Past = &snap
	}

	a.log.Debug().
		Int("records", len(sorted)).
		Int("open_positions", len(result.Current.Positions)).
		Int("closed_positions", len(result.Current.Closed)).
		Int("excluded", len(result.Excluded)).
		Msg("Ledger replayed")

	return result, nil
}

// SortRecords returns a copy ordered by timestamp, ties broken by file order.
func SortRecords(records []domain.TransactionRecord) []domain.TransactionRecord {
	sorted := make([]domain.TransactionRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		}
		return sorted[i].Seq < sorted[j].Seq
	})
	return sorted
}

type book struct {
	positions map[string]*Position
	order     []string
	excluded  map[string]bool
}

func newBook() *book {
	return &book{
		positions: make(map[string]*Position),
		excluded:  make(map[string]bool),
	}
}

func (b *book) isExcluded(code string) bool { return b.excluded[code] }

func (b *book) exclude(code string) {
	b.excluded[code] = true
	delete(b.positions, code)
}

func (b *book) excludedCodes() []string {
	codes := make([]string, 0, len(b.excluded))
	for code := range b.excluded {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

func (b *book) position(rec domain.TransactionRecord) *Position {
	p, ok := b.positions[rec.Code]
	if !ok {
		p = &Position{
			Code:     rec.Code,
			Code2:    rec.Code2,
			Name:     rec.Name,
			Type:     rec.Type,
			Industry: rec.Industry,
			Market:   rec.Market,
			Currency: rec.Currency,
		}
		b.positions[rec.Code] = p
		b.order = append(b.order, rec.Code)
	}
	return p
}

func (b *book) apply(rec domain.TransactionRecord) error {
	if rec.Operation == domain.OperationSell {
		held := decimal.Zero
		if p, ok := b.positions[rec.Code]; ok {
			held = p.Quantity
		}
		if rec.Quantity.GreaterThan(held) {
			return domain.NewSecurityError(rec.Code, domain.ErrLedgerInconsistency,
				"sell of %s on %s exceeds held quantity %s",
				rec.Quantity, rec.Timestamp.Format(domain.DateLayout), held)
		}
	}

	p := b.position(rec)
	fees := rec.ToReporting(rec.Fees())
	p.BrokerFees = p.BrokerFees.Add(rec.ToReporting(rec.BrokerFee))
	p.TaxFees = p.TaxFees.Add(rec.ToReporting(rec.TaxFee))
	p.LastActivity = rec.Timestamp

	switch rec.Operation {
	case domain.OperationBuy:
		cost := rec.ToReporting(rec.Quantity.Mul(rec.UnitPrice))
		newQty := p.Quantity.Add(rec.Quantity)
		p.AverageCost = p.Quantity.Mul(p.AverageCost).Add(cost).Add(fees).Div(newQty)
		p.Quantity = newQty
		p.Invested = p.Invested.Add(cost)
		p.BoughtQuantity = p.BoughtQuantity.Add(rec.Quantity)
		p.TradedAmount = p.TradedAmount.Add(cost)
		if p.FirstBuy.IsZero() {
			p.FirstBuy = rec.Timestamp
		}

	case domain.OperationSell:
		proceeds := rec.ToReporting(rec.Quantity.Mul(rec.UnitPrice))
		p.RealizedGain = p.RealizedGain.
			Add(proceeds.Sub(rec.Quantity.Mul(p.AverageCost))).
			Sub(fees)
		p.Quantity = p.Quantity.Sub(rec.Quantity)
		p.Proceeds = p.Proceeds.Add(proceeds)
		p.SoldQuantity = p.SoldQuantity.Add(rec.Quantity)
		p.TradedAmount = p.TradedAmount.Add(proceeds)

	case domain.OperationDividend:
		gross := rec.ToReporting(rec.Gross())
		p.Dividends = p.Dividends.Add(gross)
		p.DividendEvents = append(p.DividendEvents, DividendEvent{
			Date:     rec.Timestamp,
			Quantity: rec.Quantity,
			Gross:    gross,
			Tax:      rec.ToReporting(rec.TaxFee),
		})

	default:
		return fmt.Errorf("%w: unknown operation %q", domain.ErrInvalidRecord, rec.Operation)
	}

	return nil
}

func (b *book) clone() *book {
	c := newBook()
	for code, p := range b.positions {
		c.positions[code] = p.clone()
	}
	c.order = append(c.order, b.order...)
	for code := range b.excluded {
		c.excluded[code] = true
	}
	return c
}

// snapshot lists open, closed and income-only positions in first-seen order,
// skipping excluded codes.
func (b *book) snapshot(asOf time.Time, excluded map[string]bool) Snapshot {
	snap := Snapshot{
		AsOf:       asOf,
		Positions:  []*Position{},
		Closed:     []ClosedPosition{},
		IncomeOnly: []ClosedPosition{},
	}
	for _, code := range b.order {
		p, ok := b.positions[code]
		if !ok || excluded[code] {
			continue
		}
		switch {
		case p.IsOpen():
			snap.Positions = append(snap.Positions, p.clone())
		case p.SoldQuantity.IsPositive():
			snap.Closed = append(snap.Closed, closedFrom(p))
		case !p.Dividends.IsZero() || !p.Fees().IsZero():
			snap.IncomeOnly = append(snap.IncomeOnly, closedFrom(p))
		}
	}
	return snap
}
