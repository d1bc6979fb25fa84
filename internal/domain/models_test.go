package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRecord() TransactionRecord {
	return TransactionRecord{
		Timestamp:    time.Date(2023, 3, 1, 10, 0, 0, 0, time.UTC),
		Code:         "AAPL",
		Name:         "Apple",
		Type:         SecurityTypeStock,
		Operation:    OperationBuy,
		Quantity:     decimal.NewFromInt(10),
		Currency:     "USD",
		UnitPrice:    decimal.NewFromInt(100),
		ExchangeRate: decimal.NewFromInt(1),
	}
}

func TestTransactionRecord_Validate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(r *TransactionRecord)
		valid  bool
	}{
		{"valid buy", func(r *TransactionRecord) {}, true},
		{"dividend with zero unit price", func(r *TransactionRecord) {
			r.Operation = OperationDividend
			r.UnitPrice = decimal.Zero
			r.Amount = decimal.NewFromInt(5)
		}, true},
		{"zero quantity", func(r *TransactionRecord) { r.Quantity = decimal.Zero }, false},
		{"negative quantity", func(r *TransactionRecord) { r.Quantity = decimal.NewFromInt(-1) }, false},
		{"unknown operation", func(r *TransactionRecord) { r.Operation = "transfer" }, false},
		{"zero price on buy", func(r *TransactionRecord) { r.UnitPrice = decimal.Zero }, false},
		{"missing code", func(r *TransactionRecord) { r.Code = " " }, false},
		{"unknown currency", func(r *TransactionRecord) { r.Currency = "XYZ" }, false},
		{"zero exchange rate", func(r *TransactionRecord) { r.ExchangeRate = decimal.Zero }, false},
		{"negative fee", func(r *TransactionRecord) { r.BrokerFee = decimal.NewFromInt(-1) }, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := validRecord()
			tc.mutate(&r)
			err := r.Validate()
			if tc.valid {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidRecord))
			}
		})
	}
}

func TestTransactionRecord_GrossFallsBackToQuantityTimesPrice(t *testing.T) {
	r := validRecord()
	assert.True(t, r.Gross().Equal(decimal.NewFromInt(1000)))

	r.Amount = decimal.NewFromInt(990)
	assert.True(t, r.Gross().Equal(decimal.NewFromInt(990)))
}

func TestTransactionRecord_ToReporting(t *testing.T) {
	r := validRecord()
	r.ExchangeRate = decimal.RequireFromString("1300.5")
	assert.Equal(t, "13005", r.ToReporting(decimal.NewFromInt(10)).String())
}

func TestParseOperationAndType(t *testing.T) {
	op, err := ParseOperation(" Sell ")
	require.NoError(t, err)
	assert.Equal(t, OperationSell, op)

	_, err = ParseOperation("split")
	assert.ErrorIs(t, err, ErrInvalidRecord)

	typ, err := ParseSecurityType("ETF")
	require.NoError(t, err)
	assert.Equal(t, SecurityTypeFund, typ)

	typ, err = ParseSecurityType("Stock")
	require.NoError(t, err)
	assert.Equal(t, SecurityTypeStock, typ)
}

func TestIsKnownCurrency(t *testing.T) {
	assert.True(t, IsKnownCurrency("KRW"))
	assert.True(t, IsKnownCurrency("usd"))
	assert.False(t, IsKnownCurrency("ZZZ"))
	assert.False(t, IsKnownCurrency(""))
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "$1,050.00", FormatAmount(1050, "usd"))
	assert.Equal(t, "1.50 XYZ", FormatAmount(1.5, "XYZ"))
}
