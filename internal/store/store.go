// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"stock-pattern/internal/models"
)

// DataStore defines the interface for data persistence.
type DataStore interface {
	// Bars
	SaveBars(ctx context.Context, ticker string, bars []models.Bar) error
	GetBars(ctx context.Context, ticker string, from, to time.Time) ([]models.Bar, error)
	GetBarsFreshness(ctx context.Context, ticker string) (time.Time, error)

	// Setups
	SaveSetups(ctx context.Context, setups []models.Setup) ([]models.Setup, error)
	GetSetups(ctx context.Context, filter SetupFilter) ([]models.Setup, error)
	GetOpenSetups(ctx context.Context) ([]models.Setup, error)
	GetSetupByID(ctx context.Context, id int64) (*models.Setup, error)
	GetSetupDates(ctx context.Context, ticker string, g models.DateGranularity) (models.DateSet, error)

	// Final results
	FinalizeSetup(ctx context.Context, result *models.FinalResult) error
	GetResolvedSetups(ctx context.Context, filter ResultFilter) ([]models.ResolvedSetup, error)

	// Journal
	SaveJournalEntry(ctx context.Context, entry *models.JournalEntry) error
	GetJournal(ctx context.Context, filter JournalFilter) ([]models.JournalEntry, error)
	DeactivateJournalEntry(ctx context.Context, id int64) error

	// Sync
	GetLastSync(dataType string) time.Time
	SetLastSync(dataType string, t time.Time) error

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}

// SetupFilter represents filters for querying setups.
type SetupFilter struct {
	Ticker    string
	StartDate time.Time
	EndDate   time.Time
	OpenOnly  bool
	Limit     int
}

// ResultFilter represents filters for querying resolved setups.
type ResultFilter struct {
	Ticker     string
	ActiveOnly bool
	StartDate  time.Time
	EndDate    time.Time
}

// JournalFilter represents filters for querying journal entries.
type JournalFilter struct {
	StartDate  time.Time
	EndDate    time.Time
	ActiveOnly bool
	Limit      int
}

// BarSyncKey is the sync-status key tracking bar freshness for a ticker.
func BarSyncKey(provider, ticker string) string {
	return "bars:" + provider + ":" + ticker
}
