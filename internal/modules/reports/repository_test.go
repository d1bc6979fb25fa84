package reports

import (
	"context"
	"testing"
	"time"

	"github.com/aristath/finreport/internal/analysis"
	"github.com/aristath/finreport/internal/domain"
	"github.com/aristath/finreport/internal/modules/statistics"
	testutil "github.com/aristath/finreport/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepo(t *testing.T) *Repository {
	db, cleanup := testutil.NewTestDB(t, "reports")
	t.Cleanup(cleanup)
	return NewRepository(db.Conn(), zerolog.Nop())
}

func sampleReport(runID, portfolio string, generated time.Time) *analysis.Report {
	beta := 0.87
	return &analysis.Report{
		RunID:             runID,
		Portfolio:         portfolio,
		ReportingCurrency: "EUR",
		GeneratedAt:       generated,
		PeriodStart:       testutil.Day("2024-01-01"),
		PeriodEnd:         testutil.Day("2024-06-30"),
		Current: analysis.SnapshotView{
			Positions: []analysis.PositionView{
				{Code: "AAA", Quantity: 10, MarketValue: 1234.5, Weight: 1},
			},
			Closed: []analysis.ClosedView{},
		},
		Statistics: &statistics.Result{
			Codes: []string{"AAA"},
			Beta:  &beta,
		},
		Warnings: []domain.Warning{
			{Kind: domain.WarningDataGap, Security: "BBB", Message: "no prices"},
		},
	}
}

func TestRepository_SaveAndGet(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	generated := time.Date(2024, 7, 1, 18, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Save(ctx, sampleReport("run-1", "growth", generated)))

	got, err := repo.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "growth", got.Portfolio)
	assert.True(t, got.GeneratedAt.Equal(generated))
	require.Len(t, got.Current.Positions, 1)
	assert.Equal(t, 1234.5, got.Current.Positions[0].MarketValue)
	require.NotNil(t, got.Statistics)
	require.NotNil(t, got.Statistics.Beta)
	assert.Equal(t, 0.87, *got.Statistics.Beta)
	assert.Nil(t, got.Frontier)
	require.Len(t, got.Warnings, 1)
	assert.Equal(t, domain.WarningDataGap, got.Warnings[0].Kind)

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepository_LatestAndList(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	base := time.Date(2024, 7, 1, 18, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Save(ctx, sampleReport("old", "growth", base)))
	require.NoError(t, repo.Save(ctx, sampleReport("new", "growth", base.Add(24*time.Hour))))
	require.NoError(t, repo.Save(ctx, sampleReport("other", "income", base.Add(48*time.Hour))))

	latest, err := repo.Latest(ctx, "growth")
	require.NoError(t, err)
	assert.Equal(t, "new", latest.RunID)

	_, err = repo.Latest(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	metas, err := repo.List(ctx, "growth")
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Equal(t, "new", metas[0].RunID)
	assert.Equal(t, 1, metas[0].Warnings)
	assert.Positive(t, metas[0].Size)
	assert.True(t, metas[1].GeneratedAt.Equal(base))

	all, err := repo.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, "other", all[0].RunID)
}

func TestRepository_Prune(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	base := time.Date(2024, 7, 1, 18, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Save(ctx, sampleReport(id, "growth", base.Add(time.Duration(i)*time.Hour))))
	}
	require.NoError(t, repo.Save(ctx, sampleReport("z", "income", base)))

	removed, err := repo.Prune(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	metas, err := repo.List(ctx, "")
	require.NoError(t, err)
	ids := []string{}
	for _, m := range metas {
		ids = append(ids, m.RunID)
	}
	assert.ElementsMatch(t, []string{"c", "z"}, ids)

	_, err = repo.Prune(ctx, 0)
	assert.Error(t, err)
}

func TestRepository_SaveRejectsMissingRunID(t *testing.T) {
	repo := newRepo(t)
	assert.Error(t, repo.Save(context.Background(), &analysis.Report{}))
}
