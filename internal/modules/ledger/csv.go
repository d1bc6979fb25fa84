// Package ledger is the ingestion boundary for transaction ledgers: it turns
// spreadsheet exports into validated records and persists them per portfolio.
package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aristath/finreport/internal/domain"
	"github.com/shopspring/decimal"
)

// Column headers of the ledger template, matched case-insensitively.
const (
	colDate         = "date"
	colTime         = "time"
	colType         = "type"
	colIndustry     = "industry"
	colMarket       = "market"
	colCode         = "code"
	colCode2        = "code 2"
	colName         = "name"
	colOperation    = "operation"
	colQuantity     = "qty."
	colCurrency     = "currency"
	colUnitPrice    = "unit price"
	colAmount       = "amount"
	colBrokerFee    = "broker fee"
	colTaxFee       = "tax fee"
	colExchangeRate = "exchange rate"
)

var requiredColumns = []string{colDate, colType, colCode, colOperation, colQuantity, colCurrency, colUnitPrice}

// ParseOptions tunes CSV parsing
type ParseOptions struct {
	// ReportingCurrency lets rows in that currency omit the exchange rate (implied 1).
	ReportingCurrency string
	// Location interprets Date/Time columns; defaults to UTC.
	Location *time.Location
}

// RowError reports a rejected row by its 1-based line number in the file.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// ParseCSV reads a ledger export. Every row is validated; if any row fails,
// the returned error joins all row errors and no records are returned.
func ParseCSV(r io.Reader, opts ParseOptions) ([]domain.TransactionRecord, error) {
	if opts.Location == nil {
		opts.Location = time.UTC
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty ledger file", domain.ErrInvalidRecord)
		}
		return nil, fmt.Errorf("failed to read ledger header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", domain.ErrInvalidRecord, col)
		}
	}

	var (
		records []domain.TransactionRecord
		errs    []error
	)
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				errs = append(errs, &RowError{Line: parseErr.Line, Err: parseErr.Err})
				continue
			}
			return nil, fmt.Errorf("failed to read ledger: %w", err)
		}
		line, _ := reader.FieldPos(0)
		if isBlank(row) {
			continue
		}

		rec, err := parseRow(row, index, opts)
		if err != nil {
			errs = append(errs, &RowError{Line: line, Err: err})
			continue
		}
		rec.Seq = len(records)
		records = append(records, rec)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return records, nil
}

func parseRow(row []string, index map[string]int, opts ParseOptions) (domain.TransactionRecord, error) {
	get := func(col string) string {
		i, ok := index[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var rec domain.TransactionRecord
	var err error

	if rec.Timestamp, err = parseTimestamp(get(colDate), get(colTime), opts.Location); err != nil {
		return rec, err
	}
	if rec.Type, err = domain.ParseSecurityType(get(colType)); err != nil {
		return rec, err
	}
	if rec.Operation, err = domain.ParseOperation(get(colOperation)); err != nil {
		return rec, err
	}

	rec.Code = get(colCode)
	rec.Code2 = get(colCode2)
	rec.Name = get(colName)
	rec.Industry = get(colIndustry)
	rec.Market = get(colMarket)
	rec.Currency = strings.ToUpper(get(colCurrency))

	fields := []struct {
		col      string
		dst      *decimal.Decimal
		optional bool
	}{
		{colQuantity, &rec.Quantity, false},
		{colUnitPrice, &rec.UnitPrice, rec.Operation == domain.OperationDividend},
		{colAmount, &rec.Amount, true},
		{colBrokerFee, &rec.BrokerFee, true},
		{colTaxFee, &rec.TaxFee, true},
	}
	for _, f := range fields {
		if *f.dst, err = parseDecimal(get(f.col), f.optional); err != nil {
			return rec, fmt.Errorf("%s: %w", f.col, err)
		}
	}

	rate := get(colExchangeRate)
	if rate == "" && strings.EqualFold(rec.Currency, opts.ReportingCurrency) {
		rec.ExchangeRate = decimal.NewFromInt(1)
	} else if rec.ExchangeRate, err = parseDecimal(rate, false); err != nil {
		return rec, fmt.Errorf("%s: %w", colExchangeRate, err)
	}

	if err := rec.Validate(); err != nil {
		return rec, err
	}
	return rec, nil
}

func parseTimestamp(date, clock string, loc *time.Location) (time.Time, error) {
	if date == "" {
		return time.Time{}, fmt.Errorf("%w: missing date", domain.ErrInvalidRecord)
	}
	if clock == "" {
		clock = "00:00:00"
	}
	if strings.Count(clock, ":") == 1 {
		clock += ":00"
	}

	for _, layout := range []string{"2006-01-02", "2006/01/02", "2006.01.02"} {
		if t, err := time.ParseInLocation(layout+" 15:04:05", date+" "+clock, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: invalid date/time %q %q", domain.ErrInvalidRecord, date, clock)
}

// parseDecimal accepts thousands separators and blank optional cells.
func parseDecimal(s string, optional bool) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" || s == "-" {
		if optional {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("%w: missing value", domain.ErrInvalidRecord)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: invalid number %q", domain.ErrInvalidRecord, s)
	}
	return d, nil
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
