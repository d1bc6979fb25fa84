package ledger

import (
	"context"
	"strings"
	"testing"

	testutil "github.com/aristath/finreport/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepository_ReplaceAndList(t *testing.T) {
	db, cleanup := testutil.NewTestDB(t, "ledger")
	defer cleanup()

	repo := NewRepository(db.Conn(), zerolog.Nop())
	ctx := context.Background()

	records, err := ParseCSV(strings.NewReader(sampleLedger), ParseOptions{ReportingCurrency: "KRW"})
	require.NoError(t, err)

	require.NoError(t, repo.ReplaceAll(ctx, "korea", records))
	require.NoError(t, repo.ReplaceAll(ctx, "other", records[:1]))

	loaded, err := repo.List(ctx, "korea")
	require.NoError(t, err)
	require.Len(t, loaded, 3)
	for i := range records {
		assert.Equal(t, records[i].Code, loaded[i].Code)
		assert.True(t, records[i].Quantity.Equal(loaded[i].Quantity))
		assert.True(t, records[i].ExchangeRate.Equal(loaded[i].ExchangeRate))
		assert.True(t, records[i].Timestamp.Equal(loaded[i].Timestamp))
		assert.Equal(t, records[i].Operation, loaded[i].Operation)
	}

	// Replacing drops old rows
	require.NoError(t, repo.ReplaceAll(ctx, "korea", records[1:2]))
	loaded, err = repo.List(ctx, "korea")
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "SPY", loaded[0].Code)

	names, err := repo.Portfolios(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"korea", "other"}, names)
}

func TestRepository_ReplaceAllValidates(t *testing.T) {
	db, cleanup := testutil.NewTestDB(t, "ledger")
	defer cleanup()

	repo := NewRepository(db.Conn(), zerolog.Nop())
	records, err := ParseCSV(strings.NewReader(sampleLedger), ParseOptions{ReportingCurrency: "KRW"})
	require.NoError(t, err)

	records[1].Currency = "???"
	assert.Error(t, repo.ReplaceAll(context.Background(), "korea", records))

	loaded, err := repo.List(context.Background(), "korea")
	require.NoError(t, err)
	assert.Empty(t, loaded)
}
