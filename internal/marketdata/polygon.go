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

// DefaultPolygonURL is the production aggregates host.
const DefaultPolygonURL = "https://api.polygon.io"

const polygonMaxLimit = 50000

// PolygonConfig holds configuration for the Polygon aggregates client.
type PolygonConfig struct {
	APIKey            string
	BaseURL           string
	Multiplier        int
	Timespan          string // minute, hour or day
	RequestsPerMinute int
	Timeout           time.Duration
	Retry             utils.RetryConfig
}

// Polygon fetches aggregate bars from the Polygon v2 API, following
// next_url pagination.
type Polygon struct {
	cfg     PolygonConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewPolygon creates a client.
func NewPolygon(cfg PolygonConfig, logger zerolog.Logger) (*Polygon, error) {
	if cfg.APIKey == "" {
		return nil, apperrors.NewValidationError("polygon.api_key", "", "must be set")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultPolygonURL
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 1
	}
	switch cfg.Timespan {
	case "":
		cfg.Timespan = "day"
	case "minute", "hour", "day":
	default:
		return nil, apperrors.NewValidationError("polygon.timespan", cfg.Timespan, "must be minute, hour or day")
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = utils.DefaultRetryConfig()
	}
	cfg.Retry.Retryable = retryableFetchError

	return &Polygon{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1),
		logger:  logger.With().Str("provider", "polygon").Logger(),
	}, nil
}

// Name returns the provider name.
func (p *Polygon) Name() string {
	return "polygon"
}

type polygonResponse struct {
	Status  string       `json:"status"`
	Error   string       `json:"error"`
	Message string       `json:"message"`
	Results []polygonBar `json:"results"`
	NextURL string       `json:"next_url"`
}

type polygonBar struct {
	Timestamp int64         `json:"t"`
	Open      float64       `json:"o"`
	High      float64       `json:"h"`
	Low       float64       `json:"l"`
	Close     float64       `json:"c"`
	Volume    flexibleInt64 `json:"v"`
}

// flexibleInt64 accepts volume encoded as an integer, a float or a string.
type flexibleInt64 int64

func (f *flexibleInt64) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parse volume %s: %w", string(data), err)
	}
	*f = flexibleInt64(int64(v))
	return nil
}

// FetchBars pages through aggregates for [from, to].
func (p *Polygon) FetchBars(ctx context.Context, ticker string, from, to time.Time) ([]models.Bar, error) {
	if to.IsZero() {
		to = time.Now()
	}
	next := fmt.Sprintf("%s/v2/aggs/ticker/%s/range/%d/%s/%s/%s?adjusted=true&sort=asc&limit=%d",
		p.cfg.BaseURL, url.PathEscape(ticker), p.cfg.Multiplier, p.cfg.Timespan,
		from.Format("2006-01-02"), to.Format("2006-01-02"), polygonMaxLimit)

	var bars []models.Bar
	for page := 0; next != ""; page++ {
		pageURL := next
		resp, err := utils.RetryWithResult(ctx, p.cfg.Retry, func() (*polygonResponse, error) {
			if err := p.limiter.Wait(ctx); err != nil {
				return nil, err
			}
			return p.fetchPage(ctx, pageURL)
		})
		if err != nil {
			return nil, apperrors.NewDataError("bars", ticker, "polygon fetch failed", err)
		}

		for _, r := range resp.Results {
			bars = append(bars, models.Bar{
				Date:   p.barTime(r.Timestamp),
				Open:   r.Open,
				High:   r.High,
				Low:    r.Low,
				Close:  r.Close,
				Volume: int64(r.Volume),
			})
		}
		next = resp.NextURL
		p.logger.Debug().Str("ticker", ticker).Int("page", page).Int("results", len(resp.Results)).Msg("Fetched aggregates page")
	}

	if len(bars) == 0 {
		return nil, apperrors.NewDataError("bars", ticker, "no aggregates returned", apperrors.ErrDataNotFound)
	}
	return filterRange(sortBars(bars), from, to), nil
}

// barTime converts a millisecond timestamp. Daily aggregates are stamped at
// the session date in exchange time.
func (p *Polygon) barTime(ms int64) time.Time {
	t := time.UnixMilli(ms).In(utils.MarketLocation)
	if p.cfg.Timespan == "day" {
		return utils.CalendarDate(t)
	}
	return t
}

func (p *Polygon) fetchPage(ctx context.Context, pageURL string) (out *polygonResponse, err error) {
	start := time.Now()
	defer func() { logging.LogAPICall(p.logger, http.MethodGet, "aggs", time.Since(start), err) }()

	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: bad page url: %v", apperrors.ErrInvalidInput, err)
	}
	q := u.Query()
	q.Set("apiKey", p.cfg.APIKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := p.client.Do(req)
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

	out = &polygonResponse{}
	if err := json.Unmarshal(body, out); err != nil {
		return nil, fmt.Errorf("%w: decode aggregates: %v", apperrors.ErrInvalidInput, err)
	}
	if out.Status == "ERROR" {
		return nil, fmt.Errorf("%w: %s%s", apperrors.ErrFetchFailed, out.Error, out.Message)
	}
	return out, nil
}
