package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"stock-pattern/internal/models"
	"stock-pattern/internal/store"
)

// BarStore is the persistence StoredProvider needs.
type BarStore interface {
	SaveBars(ctx context.Context, ticker string, bars []models.Bar) error
	GetBars(ctx context.Context, ticker string, from, to time.Time) ([]models.Bar, error)
	GetLastSync(dataType string) time.Time
	SetLastSync(dataType string, t time.Time) error
}

// StoredProvider persists upstream bars and serves them from the store
// while the last sync is younger than maxAge.
type StoredProvider struct {
	upstream Provider
	bars     BarStore
	maxAge   time.Duration
	logger   zerolog.Logger
	now      func() time.Time
}

// NewStoredProvider wraps upstream with store-backed persistence.
func NewStoredProvider(upstream Provider, bars BarStore, maxAge time.Duration, logger zerolog.Logger) *StoredProvider {
	return &StoredProvider{
		upstream: upstream,
		bars:     bars,
		maxAge:   maxAge,
		logger:   logger.With().Str("component", "bar_store").Logger(),
		now:      time.Now,
	}
}

// Name reports the upstream provider name.
func (s *StoredProvider) Name() string {
	return s.upstream.Name()
}

// FetchBars returns stored bars when fresh, otherwise refreshes from upstream.
func (s *StoredProvider) FetchBars(ctx context.Context, ticker string, from, to time.Time) ([]models.Bar, error) {
	key := store.BarSyncKey(s.upstream.Name(), ticker)
	last := s.bars.GetLastSync(key)

	if !last.IsZero() && s.now().Sub(last) < s.maxAge {
		bars, err := s.bars.GetBars(ctx, ticker, from, to)
		if err == nil && len(bars) > 0 {
			s.logger.Debug().Str("ticker", ticker).Time("last_sync", last).Int("bars", len(bars)).Msg("Serving stored bars")
			return bars, nil
		}
		if err != nil {
			s.logger.Warn().Err(err).Str("ticker", ticker).Msg("Stored bars unreadable, refetching")
		}
	}

	bars, err := s.upstream.FetchBars(ctx, ticker, from, to)
	if err != nil {
		return nil, err
	}
	if err := s.bars.SaveBars(ctx, ticker, bars); err != nil {
		return nil, fmt.Errorf("persist bars for %s: %w", ticker, err)
	}
	if err := s.bars.SetLastSync(key, s.now()); err != nil {
		s.logger.Warn().Err(err).Str("ticker", ticker).Msg("Failed to record sync time")
	}
	return bars, nil
}
