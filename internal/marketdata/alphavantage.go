package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	apperrors "stock-pattern/internal/errors"
	"stock-pattern/internal/logging"
	"stock-pattern/internal/models"
	"stock-pattern/pkg/utils"
)

// DefaultAlphaVantageURL is the production query endpoint.
const DefaultAlphaVantageURL = "https://www.alphavantage.co/query"

// AlphaVantageConfig holds configuration for the Alpha Vantage client.
type AlphaVantageConfig struct {
	APIKey            string
	BaseURL           string
	Interval          string // "daily" or an intraday interval such as "5min"
	OutputSize        string
	RequestsPerMinute int
	Timeout           time.Duration
	Retry             utils.RetryConfig
}

// AlphaVantage fetches bars from the Alpha Vantage TIME_SERIES APIs.
type AlphaVantage struct {
	cfg     AlphaVantageConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewAlphaVantage creates a client. Missing settings fall back to the
// free-tier defaults.
func NewAlphaVantage(cfg AlphaVantageConfig, logger zerolog.Logger) (*AlphaVantage, error) {
	if cfg.APIKey == "" {
		return nil, apperrors.NewValidationError("alphavantage.api_key", "", "must be set")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultAlphaVantageURL
	}
	if cfg.Interval == "" {
		cfg.Interval = "daily"
	}
	if !validInterval(cfg.Interval) {
		return nil, apperrors.NewValidationError("alphavantage.interval", cfg.Interval, "must be daily, 1min, 5min, 15min, 30min or 60min")
	}
	if cfg.OutputSize == "" {
		cfg.OutputSize = "full"
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = utils.DefaultRetryConfig()
	}
	cfg.Retry.Retryable = retryableFetchError

	return &AlphaVantage{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1),
		logger:  logger.With().Str("provider", "alphavantage").Logger(),
	}, nil
}

func validInterval(iv string) bool {
	switch iv {
	case "daily", "1min", "5min", "15min", "30min", "60min":
		return true
	}
	return false
}

// retryableFetchError retries transport failures and rate limiting but not
// unknown symbols or malformed payloads.
func retryableFetchError(err error) bool {
	return apperrors.Is(err, apperrors.ErrRateLimited) || apperrors.Is(err, apperrors.ErrFetchFailed)
}

// Name returns the provider name.
func (a *AlphaVantage) Name() string {
	return "alphavantage"
}

// FetchBars downloads the full series and returns bars within [from, to].
func (a *AlphaVantage) FetchBars(ctx context.Context, ticker string, from, to time.Time) ([]models.Bar, error) {
	start := time.Now()
	bars, err := utils.RetryWithResult(ctx, a.cfg.Retry, func() ([]models.Bar, error) {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return a.fetchOnce(ctx, ticker)
	})
	if err != nil {
		a.logger.Error().Err(err).Str("ticker", ticker).Dur("duration", time.Since(start)).Msg("Historical data fetch failed")
		return nil, apperrors.NewDataError("bars", ticker, "alphavantage fetch failed", err)
	}

	bars = filterRange(bars, from, to)
	a.logger.Debug().Str("ticker", ticker).Int("bars", len(bars)).Dur("duration", time.Since(start)).Msg("Fetched bars")
	return bars, nil
}

func (a *AlphaVantage) requestURL(ticker string) string {
	q := url.Values{}
	q.Set("symbol", ticker)
	q.Set("outputsize", a.cfg.OutputSize)
	q.Set("apikey", a.cfg.APIKey)
	if a.cfg.Interval == "daily" {
		q.Set("function", "TIME_SERIES_DAILY")
	} else {
		q.Set("function", "TIME_SERIES_INTRADAY")
		q.Set("interval", a.cfg.Interval)
	}
	return a.cfg.BaseURL + "?" + q.Encode()
}

func (a *AlphaVantage) seriesKey() string {
	if a.cfg.Interval == "daily" {
		return "Time Series (Daily)"
	}
	return "Time Series (" + a.cfg.Interval + ")"
}

func (a *AlphaVantage) fetchOnce(ctx context.Context, ticker string) (bars []models.Bar, err error) {
	start := time.Now()
	defer func() { logging.LogAPICall(a.logger, http.MethodGet, a.seriesKey(), time.Since(start), err) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.requestURL(ticker), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", apperrors.ErrFetchFailed, err)
	}
	if err := statusError(resp.StatusCode, body); err != nil {
		return nil, err
	}

	return parseAlphaVantage(body, a.seriesKey(), utils.MarketLocation)
}

type avBar struct {
	Open   string `json:"1. open"`
	High   string `json:"2. high"`
	Low    string `json:"3. low"`
	Close  string `json:"4. close"`
	Volume string `json:"5. volume"`
}

// parseAlphaVantage decodes a TIME_SERIES payload into ascending bars.
// Intraday timestamps are interpreted in loc.
func parseAlphaVantage(body []byte, seriesKey string, loc *time.Location) ([]models.Bar, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: invalid response from Alpha Vantage: %v", apperrors.ErrInvalidInput, err)
	}

	if msg, ok := payload["Error Message"]; ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrDataNotFound, unquote(msg))
	}
	for _, key := range []string{"Note", "Information"} {
		if msg, ok := payload[key]; ok {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrRateLimited, unquote(msg))
		}
	}

	raw, ok := payload[seriesKey]
	if !ok {
		return nil, fmt.Errorf("%w: response missing %q", apperrors.ErrInvalidInput, seriesKey)
	}

	var series map[string]avBar
	if err := json.Unmarshal(raw, &series); err != nil {
		return nil, fmt.Errorf("%w: decode series: %v", apperrors.ErrInvalidInput, err)
	}

	bars := make([]models.Bar, 0, len(series))
	for stamp, v := range series {
		b, err := v.toBar(stamp, loc)
		if err != nil {
			return nil, fmt.Errorf("%w: bar %s: %v", apperrors.ErrInvalidInput, stamp, err)
		}
		bars = append(bars, b)
	}
	return sortBars(bars), nil
}

func (v avBar) toBar(stamp string, loc *time.Location) (models.Bar, error) {
	layout := "2006-01-02"
	if strings.Contains(stamp, " ") {
		layout = "2006-01-02 15:04:05"
	}
	date, err := time.ParseInLocation(layout, stamp, loc)
	if err != nil {
		return models.Bar{}, err
	}

	var b models.Bar
	b.Date = date
	fields := []struct {
		raw string
		dst *float64
	}{{v.Open, &b.Open}, {v.High, &b.High}, {v.Low, &b.Low}, {v.Close, &b.Close}}
	for _, f := range fields {
		if *f.dst, err = strconv.ParseFloat(f.raw, 64); err != nil {
			return models.Bar{}, err
		}
	}
	if b.Volume, err = strconv.ParseInt(v.Volume, 10, 64); err != nil {
		return models.Bar{}, err
	}
	return b, nil
}

func unquote(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return string(raw)
	}
	return s
}
