package ledger

import (
	"errors"
	"strings"
	"testing"

	"github.com/aristath/finreport/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLedger = `Date,Time,Type,Industry,Market,Code,Code 2,Name,Operation,QTY.,Currency,Unit Price,Amount,Broker Fee,Tax Fee,Exchange Rate
2023-01-05,09:30,Stock,Technology,KOSPI,005930.KS,005930,Samsung Electronics,Buy,10,KRW,"61,000","610,000",150,0,
2023-01-06,,ETF,Index,NYSE,SPY,,SPDR S&P 500,Buy,2.5,USD,380.10,950.25,1.5,0,"1,270.5"

2023-04-20,15:00:00,Stock,Technology,KOSPI,005930.KS,005930,Samsung Electronics,Dividend,10,KRW,,3610,0,556,
`

func TestParseCSV(t *testing.T) {
	records, err := ParseCSV(strings.NewReader(sampleLedger), ParseOptions{ReportingCurrency: "KRW"})
	require.NoError(t, err)
	require.Len(t, records, 3)

	samsung := records[0]
	assert.Equal(t, "005930.KS", samsung.Code)
	assert.Equal(t, "005930", samsung.Code2)
	assert.Equal(t, domain.SecurityTypeStock, samsung.Type)
	assert.Equal(t, domain.OperationBuy, samsung.Operation)
	assert.Equal(t, "61000", samsung.UnitPrice.String())
	assert.Equal(t, "1", samsung.ExchangeRate.String(), "reporting currency implies rate 1")
	assert.Equal(t, 9, samsung.Timestamp.Hour())
	assert.Equal(t, 0, samsung.Seq)

	spy := records[1]
	assert.Equal(t, domain.SecurityTypeFund, spy.Type)
	assert.Equal(t, "2.5", spy.Quantity.String())
	assert.Equal(t, "1270.5", spy.ExchangeRate.String())
	assert.Equal(t, 1, spy.Seq)

	div := records[2]
	assert.Equal(t, domain.OperationDividend, div.Operation)
	assert.True(t, div.UnitPrice.IsZero())
	assert.Equal(t, "556", div.TaxFee.String())
	assert.Equal(t, 2, div.Seq)
}

func TestParseCSV_RejectsInvalidRows(t *testing.T) {
	input := `Date,Type,Code,Operation,QTY.,Currency,Unit Price,Exchange Rate
2023-01-05,Stock,AAA,Buy,0,USD,10,1
2023-01-06,Stock,BBB,Transfer,1,USD,10,1
2023-01-07,Stock,CCC,Buy,1,USD,10,1
2023-01-08,Stock,DDD,Buy,1,USD,10,
`
	records, err := ParseCSV(strings.NewReader(input), ParseOptions{ReportingCurrency: "EUR"})
	require.Error(t, err)
	assert.Nil(t, records)
	assert.True(t, errors.Is(err, domain.ErrInvalidRecord))
	assert.Contains(t, err.Error(), "line 2")
	assert.Contains(t, err.Error(), "line 3")
	assert.Contains(t, err.Error(), "line 5")
	assert.NotContains(t, err.Error(), "line 4")

	var rowErr *RowError
	require.True(t, errors.As(err, &rowErr))
	assert.Equal(t, 2, rowErr.Line)
}

func TestParseCSV_MissingColumn(t *testing.T) {
	_, err := ParseCSV(strings.NewReader("Date,Code\n2023-01-01,AAA\n"), ParseOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing column "type"`)
}

func TestParseCSV_Empty(t *testing.T) {
	_, err := ParseCSV(strings.NewReader(""), ParseOptions{})
	assert.ErrorIs(t, err, domain.ErrInvalidRecord)
}
