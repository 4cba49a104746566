package marketdata

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "stock-pattern/internal/errors"
	"stock-pattern/internal/models"
	"stock-pattern/pkg/utils"
)

func fastRetry() utils.RetryConfig {
	return utils.RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1}
}

func marketDay(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, utils.MarketLocation)
}

func sampleBars() []models.Bar {
	return []models.Bar{
		{Date: marketDay(2024, 3, 1), Open: 100, High: 101.5, Low: 99.25, Close: 101, Volume: 1_000_000},
		{Date: marketDay(2024, 3, 4), Open: 101, High: 102.75, Low: 100.5, Close: 102.5, Volume: 1_250_000},
		{Date: marketDay(2024, 3, 5), Open: 102.5, High: 103, Low: 101, Close: 101.75, Volume: 900_000},
	}
}

const avDaily = `{
  "Meta Data": {"2. Symbol": "AAPL"},
  "Time Series (Daily)": {
    "2024-03-04": {"1. open": "101.0", "2. high": "102.75", "3. low": "100.5", "4. close": "102.5", "5. volume": "1250000"},
    "2024-03-01": {"1. open": "100.0", "2. high": "101.5", "3. low": "99.25", "4. close": "101.0", "5. volume": "1000000"},
    "2024-03-05": {"1. open": "102.5", "2. high": "103.0", "3. low": "101.0", "4. close": "101.75", "5. volume": "900000"}
  }
}`

func TestAlphaVantageFetchBars(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "TIME_SERIES_DAILY", r.URL.Query().Get("function"))
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		assert.Equal(t, "key", r.URL.Query().Get("apikey"))
		fmt.Fprint(w, avDaily)
	}))
	defer srv.Close()

	av, err := NewAlphaVantage(AlphaVantageConfig{
		APIKey: "key", BaseURL: srv.URL, RequestsPerMinute: 6000, Retry: fastRetry(),
	}, zerolog.Nop())
	require.NoError(t, err)

	bars, err := av.FetchBars(context.Background(), "AAPL", marketDay(2024, 3, 2), marketDay(2024, 3, 5))
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.True(t, bars[0].Date.Equal(marketDay(2024, 3, 4)))
	assert.Equal(t, 102.5, bars[0].Close)
	assert.Equal(t, int64(900_000), bars[1].Volume)
}

func TestAlphaVantageErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
		calls  int
	}{
		{"unknown symbol", http.StatusOK, `{"Error Message": "Invalid API call."}`, apperrors.ErrDataNotFound, 1},
		{"throttled note", http.StatusOK, `{"Note": "Thank you for using Alpha Vantage!"}`, apperrors.ErrRateLimited, 2},
		{"server error", http.StatusBadGateway, ``, apperrors.ErrFetchFailed, 2},
		{"bad payload", http.StatusOK, `not json`, apperrors.ErrInvalidInput, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var mu sync.Mutex
			calls := 0
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				mu.Lock()
				calls++
				mu.Unlock()
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			av, err := NewAlphaVantage(AlphaVantageConfig{
				APIKey: "key", BaseURL: srv.URL, RequestsPerMinute: 6000, Retry: fastRetry(),
			}, zerolog.Nop())
			require.NoError(t, err)

			_, err = av.FetchBars(context.Background(), "ZZZZ", time.Time{}, time.Time{})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var dataErr *apperrors.DataError
			assert.ErrorAs(t, err, &dataErr)
			assert.Equal(t, tt.calls, calls)
		})
	}
}

func TestAlphaVantageIntradayParsesInMarketTime(t *testing.T) {
	body := []byte(`{"Time Series (5min)": {
		"2024-03-01 09:35:00": {"1. open": "1", "2. high": "2", "3. low": "0.5", "4. close": "1.5", "5. volume": "10"}
	}}`)
	bars, err := parseAlphaVantage(body, "Time Series (5min)", utils.MarketLocation)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.True(t, bars[0].Date.Equal(time.Date(2024, 3, 1, 9, 35, 0, 0, utils.MarketLocation)))
}

func TestNewAlphaVantageValidation(t *testing.T) {
	_, err := NewAlphaVantage(AlphaVantageConfig{}, zerolog.Nop())
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = NewAlphaVantage(AlphaVantageConfig{APIKey: "k", Interval: "2min"}, zerolog.Nop())
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestPolygonFollowsNextURL(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.URL.Query().Get("apiKey"))
		if strings.HasPrefix(r.URL.Path, "/v2/aggs/ticker/NVDA/range/1/day/") {
			fmt.Fprintf(w, `{"status":"OK","results":[{"t":%d,"o":1,"h":2,"l":0.5,"c":1.5,"v":1000.0}],"next_url":"%s/v2/aggs/cursor/abc"}`,
				marketDay(2024, 3, 1).UnixMilli(), srv.URL)
			return
		}
		assert.Equal(t, "/v2/aggs/cursor/abc", r.URL.Path)
		fmt.Fprintf(w, `{"status":"OK","results":[{"t":%d,"o":1.5,"h":2.5,"l":1,"c":2,"v":"2500"}]}`,
			marketDay(2024, 3, 4).UnixMilli())
	}))
	defer srv.Close()

	p, err := NewPolygon(PolygonConfig{APIKey: "k", BaseURL: srv.URL, RequestsPerMinute: 6000, Retry: fastRetry()}, zerolog.Nop())
	require.NoError(t, err)

	bars, err := p.FetchBars(context.Background(), "NVDA", marketDay(2024, 3, 1), marketDay(2024, 3, 4))
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.True(t, bars[0].Date.Equal(marketDay(2024, 3, 1)))
	assert.Equal(t, int64(1000), bars[0].Volume)
	assert.Equal(t, int64(2500), bars[1].Volume)
}

func TestPolygonEmptyResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"OK","results":[]}`)
	}))
	defer srv.Close()

	p, err := NewPolygon(PolygonConfig{APIKey: "k", BaseURL: srv.URL, RequestsPerMinute: 6000, Retry: fastRetry()}, zerolog.Nop())
	require.NoError(t, err)

	_, err = p.FetchBars(context.Background(), "NONE", marketDay(2024, 3, 1), marketDay(2024, 3, 4))
	assert.ErrorIs(t, err, apperrors.ErrDataNotFound)
}

func TestCSVRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleBars()))
	assert.True(t, strings.HasPrefix(buf.String(), "date,open,high,low,close,volume"))

	got, err := ReadCSV(&buf)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, want := range sampleBars() {
		assert.True(t, got[i].Date.Equal(want.Date), "bar %d date", i)
		assert.Equal(t, want.Close, got[i].Close)
		assert.Equal(t, want.Volume, got[i].Volume)
	}
}

func TestReadCSVRejectsBadDates(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("date,open,high,low,close,volume\nyesterday,1,2,0.5,1,10\n"))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestFileProviderFormats(t *testing.T) {
	for _, format := range []string{"csv", "parquet"} {
		t.Run(format, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "snapshots")
			fp, err := NewFileProvider(dir, format)
			require.NoError(t, err)
			require.NoError(t, fp.Save("msft", sampleBars()))
			assert.Equal(t, filepath.Join(dir, "MSFT."+format), fp.Path("msft"))

			bars, err := fp.FetchBars(context.Background(), "MSFT", marketDay(2024, 3, 4), time.Time{})
			require.NoError(t, err)
			require.Len(t, bars, 2)
			assert.True(t, bars[0].Date.Equal(marketDay(2024, 3, 4)))
			assert.Equal(t, 101.75, bars[1].Close)

			_, err = fp.FetchBars(context.Background(), "MISSING", time.Time{}, time.Time{})
			assert.ErrorIs(t, err, apperrors.ErrDataNotFound)
		})
	}

	_, err := NewFileProvider(t.TempDir(), "xlsx")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func intradayBars() []models.Bar {
	return []models.Bar{
		{Date: time.Date(2024, 3, 4, 15, 55, 0, 0, utils.MarketLocation), Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10},
		{Date: time.Date(2024, 3, 5, 9, 30, 0, 0, utils.MarketLocation), Open: 1.5, High: 2, Low: 1, Close: 1.75, Volume: 20},
		{Date: time.Date(2024, 3, 5, 15, 55, 0, 0, utils.MarketLocation), Open: 1.75, High: 2.5, Low: 1.5, Close: 2, Volume: 30},
		{Date: time.Date(2024, 3, 6, 9, 30, 0, 0, utils.MarketLocation), Open: 2, High: 2.5, Low: 1.5, Close: 2.25, Volume: 40},
	}
}

func TestFilterRangeKeepsWholeEndDay(t *testing.T) {
	tests := []struct {
		name string
		to   time.Time
		want []int64
	}{
		{"midnight bound", marketDay(2024, 3, 5), []int64{10, 20, 30}},
		{"midday bound", time.Date(2024, 3, 5, 12, 0, 0, 0, utils.MarketLocation), []int64{10, 20, 30}},
		{"open bound", time.Time{}, []int64{10, 20, 30, 40}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := filterRange(intradayBars(), marketDay(2024, 3, 4), tt.to)
			vols := make([]int64, len(got))
			for i, b := range got {
				vols[i] = b.Volume
			}
			assert.Equal(t, tt.want, vols)
		})
	}
}

func TestFileProviderIntradayEndDay(t *testing.T) {
	fp, err := NewFileProvider(t.TempDir(), "csv")
	require.NoError(t, err)
	require.NoError(t, fp.Save("SPY", intradayBars()))

	bars, err := fp.FetchBars(context.Background(), "SPY", marketDay(2024, 3, 5), marketDay(2024, 3, 5))
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, int64(20), bars[0].Volume)
	assert.Equal(t, int64(30), bars[1].Volume)
}

type countingProvider struct {
	mu    sync.Mutex
	calls int
	bars  []models.Bar
	err   error
}

func (c *countingProvider) Name() string { return "fake" }

func (c *countingProvider) FetchBars(ctx context.Context, ticker string, from, to time.Time) ([]models.Bar, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return filterRange(append([]models.Bar(nil), c.bars...), from, to), nil
}

func TestCachedProvider(t *testing.T) {
	up := &countingProvider{bars: sampleBars()}
	cache := NewMemoryCache()
	cp := NewCachedProvider(up, cache, time.Hour, zerolog.Nop())
	ctx := context.Background()
	from, to := marketDay(2024, 3, 1), marketDay(2024, 3, 5)

	first, err := cp.FetchBars(ctx, "AAPL", from, to)
	require.NoError(t, err)
	second, err := cp.FetchBars(ctx, "AAPL", from, to)
	require.NoError(t, err)

	assert.Equal(t, 1, up.calls)
	require.Len(t, second, len(first))
	assert.True(t, second[2].Date.Equal(first[2].Date))

	_, err = cp.FetchBars(ctx, "AAPL", from, marketDay(2024, 3, 4))
	require.NoError(t, err)
	assert.Equal(t, 2, up.calls, "different range is a different key")
}

func TestMemoryCacheExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	v, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	now = now.Add(time.Minute)
	_, ok, _ = c.Get(ctx, "k")
	assert.False(t, ok)
}

type memBarStore struct {
	bars  map[string][]models.Bar
	syncs map[string]time.Time
}

func newMemBarStore() *memBarStore {
	return &memBarStore{bars: map[string][]models.Bar{}, syncs: map[string]time.Time{}}
}

func (m *memBarStore) SaveBars(_ context.Context, ticker string, bars []models.Bar) error {
	m.bars[ticker] = append([]models.Bar(nil), bars...)
	return nil
}

func (m *memBarStore) GetBars(_ context.Context, ticker string, from, to time.Time) ([]models.Bar, error) {
	return filterRange(m.bars[ticker], from, to), nil
}

func (m *memBarStore) GetLastSync(key string) time.Time { return m.syncs[key] }

func (m *memBarStore) SetLastSync(key string, t time.Time) error {
	m.syncs[key] = t
	return nil
}

func TestStoredProviderRefreshesWhenStale(t *testing.T) {
	up := &countingProvider{bars: sampleBars()}
	st := newMemBarStore()
	now := time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC)
	sp := NewStoredProvider(up, st, 6*time.Hour, zerolog.Nop())
	sp.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := sp.FetchBars(ctx, "AAPL", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, up.calls)
	assert.Equal(t, now, st.syncs["bars:fake:AAPL"])

	now = now.Add(time.Hour)
	bars, err := sp.FetchBars(ctx, "AAPL", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, bars, 3)
	assert.Equal(t, 1, up.calls, "fresh sync served from store")

	now = now.Add(6 * time.Hour)
	_, err = sp.FetchBars(ctx, "AAPL", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 2, up.calls)
}

func TestStoredProviderPropagatesUpstreamErrors(t *testing.T) {
	up := &countingProvider{err: apperrors.ErrFetchFailed}
	sp := NewStoredProvider(up, newMemBarStore(), time.Hour, zerolog.Nop())
	_, err := sp.FetchBars(context.Background(), "AAPL", time.Time{}, time.Time{})
	assert.ErrorIs(t, err, apperrors.ErrFetchFailed)
}
