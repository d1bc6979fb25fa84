package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/aristath/finreport/internal/analysis"
	"github.com/aristath/finreport/internal/config"
	"github.com/aristath/finreport/internal/database"
	"github.com/aristath/finreport/internal/events"
	"github.com/aristath/finreport/internal/modules/reports"
	testutil "github.com/aristath/finreport/internal/testing"
)

type fakeReports struct {
	byID map[string]*analysis.Report
}

func (f *fakeReports) Get(_ context.Context, runID string) (*analysis.Report, error) {
	if r, ok := f.byID[runID]; ok {
		return r, nil
	}
	return nil, fmt.Errorf("run %s: %w", runID, reports.ErrNotFound)
}

func (f *fakeReports) Latest(_ context.Context, portfolio string) (*analysis.Report, error) {
	var latest *analysis.Report
	for _, r := range f.byID {
		if r.Portfolio == portfolio && (latest == nil || r.GeneratedAt.After(latest.GeneratedAt)) {
			latest = r
		}
	}
	if latest == nil {
		return nil, reports.ErrNotFound
	}
	return latest, nil
}

func (f *fakeReports) List(_ context.Context, portfolio string) ([]reports.Meta, error) {
	metas := []reports.Meta{}
	for _, r := range f.byID {
		if portfolio == "" || r.Portfolio == portfolio {
			metas = append(metas, reports.Meta{RunID: r.RunID, Portfolio: r.Portfolio, GeneratedAt: r.GeneratedAt})
		}
	}
	return metas, nil
}

type fakeRunner struct {
	ran chan string
}

func (f *fakeRunner) Portfolios() ([]config.PortfolioConfig, error) {
	return []config.PortfolioConfig{{
		Name:              "growth",
		ReportingCurrency: "EUR",
		Benchmark:         &config.BenchmarkConfig{Code: "^STOXX50E"},
		Period:            config.PeriodConfig{Start: "2023-01-01", End: "2024-01-01"},
		NumSim:            100,
		TimeSim:           20,
	}}, nil
}

func (f *fakeRunner) RunPortfolio(_ context.Context, name string) (*analysis.Report, error) {
	f.ran <- name
	return &analysis.Report{RunID: "new-run", Portfolio: name}, nil
}

func newTestServer(t *testing.T, bus *events.Bus) (*Server, *fakeRunner) {
	base := time.Date(2024, 7, 1, 18, 0, 0, 0, time.UTC)
	store := &fakeReports{byID: map[string]*analysis.Report{
		"r1": {RunID: "r1", Portfolio: "growth", GeneratedAt: base},
		"r2": {RunID: "r2", Portfolio: "growth", GeneratedAt: base.Add(time.Hour)},
	}}
	runner := &fakeRunner{ran: make(chan string, 1)}

	db, cleanup := testutil.NewTestDB(t, "reports")
	t.Cleanup(cleanup)

	srv := New(Config{
		Log:       zerolog.Nop(),
		Port:      0,
		DataDir:   t.TempDir(),
		Reports:   store,
		Runner:    runner,
		Bus:       bus,
		Databases: map[string]*database.DB{"reports": db},
	})
	return srv, runner
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := get(t, srv.Handler(), "/api/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
}

func TestServer_Portfolios(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := get(t, srv.Handler(), "/api/portfolios")
	require.Equal(t, http.StatusOK, rec.Code)

	var body []PortfolioSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, "growth", body[0].Name)
	assert.Equal(t, "^STOXX50E", body[0].Benchmark)
}

func TestServer_Reports(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	h := srv.Handler()

	rec := get(t, h, "/api/portfolios/growth/reports")
	require.Equal(t, http.StatusOK, rec.Code)
	var metas []reports.Meta
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &metas))
	assert.Len(t, metas, 2)

	rec = get(t, h, "/api/portfolios/growth/reports/latest")
	require.Equal(t, http.StatusOK, rec.Code)
	var latest analysis.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &latest))
	assert.Equal(t, "r2", latest.RunID)

	rec = get(t, h, "/api/reports/r1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"run_id":"r1"`)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/reports/nope").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/portfolios/income/reports/latest").Code)

	rec = get(t, h, "/api/reports")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &metas))
	assert.Len(t, metas, 2)
}

func TestServer_TriggerRun(t *testing.T) {
	srv, runner := newTestServer(t, nil)
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodPost, "/api/portfolios/growth/runs", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	select {
	case name := <-runner.ran:
		assert.Equal(t, "growth", name)
	case <-time.After(2 * time.Second):
		t.Fatal("run was not started")
	}

	req = httptest.NewRequest(http.MethodPost, "/api/portfolios/missing/runs", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, srv.Shutdown(ctx))
}

func TestServer_SystemStatus(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := get(t, srv.Handler(), "/api/system/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var status SystemStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
	require.Len(t, status.Databases, 1)
	assert.Equal(t, "reports", status.Databases[0].Name)

	rec = get(t, srv.Handler(), "/api/system/disk")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "data_dir_mb")
}

func TestServer_EventsWebSocket(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	srv, _ := newTestServer(t, bus)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events/ws?types=RUN_STARTED"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool {
		return bus.SubscriberCount(events.RunStarted) > 0
	}, 2*time.Second, 10*time.Millisecond)

	bus.Emit(events.RunCompleted, "analysis", map[string]interface{}{"run_id": "skip"})
	bus.Emit(events.RunStarted, "analysis", map[string]interface{}{"run_id": "abc"})

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, string(events.RunStarted), msg["type"])
	assert.Equal(t, "analysis", msg["module"])
	assert.Equal(t, "abc", msg["data"].(map[string]interface{})["run_id"])
}
