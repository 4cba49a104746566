// Package marketdata fetches OHLCV bar history from remote APIs and local
// files.
package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	apperrors "stock-pattern/internal/errors"
	"stock-pattern/internal/models"
)

// Provider supplies ascending bar history for a ticker.
type Provider interface {
	Name() string
	FetchBars(ctx context.Context, ticker string, from, to time.Time) ([]models.Bar, error)
}

// filterRange keeps bars dated within [from, to]. The upper bound covers the
// whole calendar day of to, so intraday bars on that day are kept. A zero
// bound is open.
func filterRange(bars []models.Bar, from, to time.Time) []models.Bar {
	if !to.IsZero() {
		to = endOfDay(to)
	}
	out := bars[:0:0]
	for _, b := range bars {
		if !from.IsZero() && b.Date.Before(from) {
			continue
		}
		if !to.IsZero() && b.Date.After(to) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// endOfDay returns the last instant of t's calendar day in t's location.
func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location()).Add(-time.Nanosecond)
}

// sortBars orders bars by date and drops exact-timestamp duplicates, keeping
// the last occurrence.
func sortBars(bars []models.Bar) []models.Bar {
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	out := bars[:0]
	for i, b := range bars {
		if i+1 < len(bars) && bars[i+1].Date.Equal(b.Date) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// statusError maps a non-200 upstream response onto the error sentinels.
// It returns nil for 200.
func statusError(code int, body []byte) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusTooManyRequests:
		return apperrors.ErrRateLimited
	case code == http.StatusNotFound:
		return apperrors.ErrDataNotFound
	case code >= 500:
		return fmt.Errorf("%w: status %d", apperrors.ErrFetchFailed, code)
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return fmt.Errorf("%w: status %d: %s", apperrors.ErrInvalidInput, code, msg)
}
