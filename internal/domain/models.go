// Package domain provides the core ledger and series types shared by the analytics modules.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// SecurityType distinguishes directly held stocks from pooled funds (ETFs, mutual funds).
type SecurityType string

const (
	SecurityTypeStock SecurityType = "stock"
	SecurityTypeFund  SecurityType = "fund"
)

// ParseSecurityType accepts the ledger spellings (Stock, ETF, Fund, Mutual Fund).
func ParseSecurityType(s string) (SecurityType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "stock", "equity", "share":
		return SecurityTypeStock, nil
	case "fund", "etf", "mutual fund", "mutualfund":
		return SecurityTypeFund, nil
	default:
		return "", fmt.Errorf("%w: unknown security type %q", ErrInvalidRecord, s)
	}
}

// Operation is the kind of ledger event
type Operation string

const (
	OperationBuy      Operation = "buy"
	OperationSell     Operation = "sell"
	OperationDividend Operation = "dividend"
)

// ParseOperation is case-insensitive.
func ParseOperation(s string) (Operation, error) {
	switch op := Operation(strings.ToLower(strings.TrimSpace(s))); op {
	case OperationBuy, OperationSell, OperationDividend:
		return op, nil
	default:
		return "", fmt.Errorf("%w: unknown operation %q", ErrInvalidRecord, s)
	}
}

// TransactionRecord is one immutable row of the ledger.
//
// Monetary fields are in the security's currency; ExchangeRate converts them
// into the portfolio's reporting currency by multiplication.
type TransactionRecord struct {
	Timestamp    time.Time       `json:"timestamp"`
	Seq          int             `json:"seq"` // File order, breaks timestamp ties
	Code         string          `json:"code"`
	Code2        string          `json:"code2,omitempty"` // Fallback identifier for price retrieval
	Name         string          `json:"name"`
	Type         SecurityType    `json:"type"`
	Industry     string          `json:"industry"`
	Market       string          `json:"market"`
	Operation    Operation       `json:"operation"`
	Quantity     decimal.Decimal `json:"quantity"`
	Currency     string          `json:"currency"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Amount       decimal.Decimal `json:"amount"`
	BrokerFee    decimal.Decimal `json:"broker_fee"`
	TaxFee       decimal.Decimal `json:"tax_fee"`
	ExchangeRate decimal.Decimal `json:"exchange_rate"`
}

// Validate checks the record-level invariants.
func (r TransactionRecord) Validate() error {
	if r.Timestamp.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidRecord)
	}
	if strings.TrimSpace(r.Code) == "" {
		return fmt.Errorf("%w: missing security code", ErrInvalidRecord)
	}
	switch r.Operation {
	case OperationBuy, OperationSell, OperationDividend:
	default:
		return fmt.Errorf("%w: %s: unknown operation %q", ErrInvalidRecord, r.Code, r.Operation)
	}
	if r.Type != SecurityTypeStock && r.Type != SecurityTypeFund {
		return fmt.Errorf("%w: %s: unknown security type %q", ErrInvalidRecord, r.Code, r.Type)
	}
	if !r.Quantity.IsPositive() {
		return fmt.Errorf("%w: %s: quantity must be positive, got %s", ErrInvalidRecord, r.Code, r.Quantity)
	}
	if r.UnitPrice.IsNegative() {
		return fmt.Errorf("%w: %s: negative unit price", ErrInvalidRecord, r.Code)
	}
	if r.UnitPrice.IsZero() && r.Operation != OperationDividend {
		return fmt.Errorf("%w: %s: zero unit price on %s", ErrInvalidRecord, r.Code, r.Operation)
	}
	if r.BrokerFee.IsNegative() || r.TaxFee.IsNegative() || r.Amount.IsNegative() {
		return fmt.Errorf("%w: %s: negative amount or fee", ErrInvalidRecord, r.Code)
	}
	if !r.ExchangeRate.IsPositive() {
		return fmt.Errorf("%w: %s: exchange rate must be positive", ErrInvalidRecord, r.Code)
	}
	if !IsKnownCurrency(r.Currency) {
		return fmt.Errorf("%w: %s: unknown currency %q", ErrInvalidRecord, r.Code, r.Currency)
	}
	return nil
}

// Fees is broker plus tax fee in the security's currency.
func (r TransactionRecord) Fees() decimal.Decimal {
	return r.BrokerFee.Add(r.TaxFee)
}

// Gross returns the stated amount, or quantity x unit price when the amount is blank.
func (r TransactionRecord) Gross() decimal.Decimal {
	if r.Amount.IsPositive() {
		return r.Amount
	}
	return r.Quantity.Mul(r.UnitPrice)
}

// ToReporting converts an amount in the record's currency into the reporting currency.
func (r TransactionRecord) ToReporting(v decimal.Decimal) decimal.Decimal {
	return v.Mul(r.ExchangeRate)
}

// IsKnownCurrency reports whether code is an ISO 4217 code known to go-money.
func IsKnownCurrency(code string) bool {
	if len(code) != 3 {
		return false
	}
	return money.GetCurrency(strings.ToUpper(code)) != nil
}

// FormatAmount renders v in the given currency using its symbol and grouping.
func FormatAmount(v float64, currency string) string {
	c := money.GetCurrency(strings.ToUpper(currency))
	if c == nil {
		return fmt.Sprintf("%.2f %s", v, currency)
	}
	return money.NewFromFloat(v, c.Code).Display()
}
