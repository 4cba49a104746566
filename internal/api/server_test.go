package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-pattern/internal/config"
	apperrors "stock-pattern/internal/errors"
	"stock-pattern/internal/models"
	"stock-pattern/internal/notify"
	"stock-pattern/internal/reports"
	"stock-pattern/internal/scanner"
	"stock-pattern/internal/store"
)

type fakeRunner struct {
	got    scanner.Request
	result *scanner.Result
	err    error
}

func (f *fakeRunner) Run(_ context.Context, req scanner.Request) (*scanner.Result, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newTestServer(t *testing.T, runner Runner) (*Server, *store.SQLStore) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := config.ServerConfig{CORSOrigins: []string{"*"}, Metrics: true}
	return NewServer(cfg, runner, st, []string{"AAPL", "MSFT"}, zerolog.Nop()), st
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func seedSetup(t *testing.T, st *store.SQLStore, ticker string, date time.Time, entry float64) models.Setup {
	t.Helper()
	saved, err := st.SaveSetups(context.Background(), []models.Setup{{
		Ticker: ticker, Date: date, Close: entry - 0.5, High: entry, Low: entry - 2, Volume: 1000,
		Signal: "A+ Wedge Breakout", Pattern: "Wedge", BreakoutPrice: entry, BrokeOut: true,
		Trend: true, Setup: true,
	}})
	require.NoError(t, err)
	return saved[0]
}

func TestHealthAndMetrics(t *testing.T) {
	s, _ := newTestServer(t, &fakeRunner{})

	rec := do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = do(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestGetStockSetups(t *testing.T) {
	day := time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)
	runner := &fakeRunner{result: &scanner.Result{
		RunID:  "run-1",
		Setups: []models.Setup{{ID: 7, Ticker: "NVDA", Date: day, Signal: "A+ Wedge Setup"}},
	}}
	s, _ := newTestServer(t, runner)

	rec := do(t, s, http.MethodGet, "/api/Stock/getStockSetups?tickers=nvda&tickers=amd&lookback=12", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"nvda", "amd"}, runner.got.Tickers)
	assert.Equal(t, 12, runner.got.Lookback)
	assert.Equal(t, "run-1", rec.Header().Get("X-Scan-Run-Id"))

	var items []notify.TickerSetup
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "NVDA", items[0].Ticker)
	assert.Equal(t, int64(7), items[0].Setup.ID)
}

func TestGetStockSetupsDefaultsAndErrors(t *testing.T) {
	runner := &fakeRunner{result: &scanner.Result{RunID: "run-2"}}
	s, _ := newTestServer(t, runner)

	rec := do(t, s, http.MethodGet, "/api/Stock/getStockSetups", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, []string{"AAPL", "MSFT"}, runner.got.Tickers)

	rec = do(t, s, http.MethodGet, "/api/Stock/getStockSetups?lookback=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	runner.err = apperrors.NewValidationError("lookback", 2, "must be at least 4")
	rec = do(t, s, http.MethodGet, "/api/Stock/getStockSetups?lookback=2", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	runner.err = apperrors.ErrFetchFailed
	rec = do(t, s, http.MethodGet, "/api/Stock/getStockSetups", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestExistingSetupsAndFinalize(t *testing.T) {
	s, st := newTestServer(t, &fakeRunner{})

	rec := do(t, s, http.MethodGet, "/api/Stock/getAllExistingSetups", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	setup := seedSetup(t, st, "AAPL", time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC), 100)

	rec = do(t, s, http.MethodGet, "/api/Stock/getAllExistingSetups", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var open []models.Setup
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &open))
	require.Len(t, open, 1)
	assert.Equal(t, setup.ID, open[0].ID)

	body := `{"StockSetupId": ` + itoa(setup.ID) + `, "IsActive": true, "PriceSoldAt": 110}`
	rec = do(t, s, http.MethodPost, "/api/Stock/saveToFinalResults", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, s, http.MethodPost, "/api/Stock/saveToFinalResults", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "already finalized")

	rec = do(t, s, http.MethodPost, "/api/Stock/saveToFinalResults", `{"stockSetupId": 9999, "isActive": false}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/Stock/saveToFinalResults", `{"stockSetupId": 0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/Stock/getAllExistingSetups", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "finalized setups are no longer open")

	rec = do(t, s, http.MethodGet, "/api/Stock/getSetups?ticker=aapl", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var all []models.Setup
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.Len(t, all, 1)
	assert.True(t, all[0].IsFinalized)

	rec = do(t, s, http.MethodGet, "/api/Stock/getSetups?from=March", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReports(t *testing.T) {
	s, st := newTestServer(t, &fakeRunner{})
	ctx := context.Background()
	day := time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)

	a := seedSetup(t, st, "AAPL", day, 100)
	b := seedSetup(t, st, "MSFT", day, 200)
	c := seedSetup(t, st, "NVDA", day, 50)
	require.NoError(t, st.FinalizeSetup(ctx, &models.FinalResult{StockSetupID: a.ID, IsActive: true, PriceSoldAt: 110, DateUpdated: day.AddDate(0, 0, 1)}))
	require.NoError(t, st.FinalizeSetup(ctx, &models.FinalResult{StockSetupID: b.ID, IsActive: true, PriceSoldAt: 190, DateUpdated: day.AddDate(0, 0, 2)}))
	require.NoError(t, st.FinalizeSetup(ctx, &models.FinalResult{StockSetupID: c.ID, IsActive: false, IsFalsePositive: true}))

	rec := do(t, s, http.MethodGet, "/api/Stock/getFinalResultsReport", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []reports.FinalResultRow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "MSFT", rows[0].Ticker)
	assert.Equal(t, reports.Red, rows[0].GreenOrRedDay)

	rec = do(t, s, http.MethodGet, "/api/Stock/getAggregatedSummaryReport", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var summary reports.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 2, summary.TotalTrades)
	assert.Equal(t, 1, summary.GreenCount)
	assert.Equal(t, 50.0, summary.SuccessRate)
	assert.Equal(t, 2.5, summary.AvgReturnPct)
	assert.Equal(t, 10.0, summary.BestTradePct)
	assert.Equal(t, -5.0, summary.WorstTradePct)

	rec = do(t, s, http.MethodGet, "/api/Stock/getAggregatedSummaryReport?ticker=aapl", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 1, summary.TotalTrades)
}

func TestJournal(t *testing.T) {
	s, _ := newTestServer(t, &fakeRunner{})

	rec := do(t, s, http.MethodPost, "/api/Stock/saveToJournalEntries",
		`{"Date": "2024-03-08T14:30:00.000Z", "EntrySubject": "NVDA wedge", "EntryBody": "Waiting for volume."}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var saved models.JournalEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saved))
	assert.NotZero(t, saved.ID)
	assert.True(t, saved.IsActive)

	rec = do(t, s, http.MethodPost, "/api/Stock/saveToJournalEntries", `{"EntrySubject": "  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/Stock/getAllJournalEntries", "")
	var entries []models.JournalEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "NVDA wedge", entries[0].EntrySubject)

	rec = do(t, s, http.MethodDelete, "/api/Stock/journalEntries/"+itoa(saved.ID), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, s, http.MethodDelete, "/api/Stock/journalEntries/"+itoa(saved.ID+100), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, s, http.MethodDelete, "/api/Stock/journalEntries/x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/Stock/getAllJournalEntries", "")
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t, &fakeRunner{})
	req := httptest.NewRequest(http.MethodOptions, "/api/Stock/getAllJournalEntries", nil)
	req.Header.Set("Origin", "http://localhost:5500")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
