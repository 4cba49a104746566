// Package analysis provides technical analysis functionality including
// indicators and consolidation pattern detection.
package analysis

import (
	"stock-pattern/internal/models"
)

// PatternDetector scans one ticker's bar history for setups.
//
// Detect must be safe to call concurrently for different tickers; it never
// mutates bars or existing.
type PatternDetector interface {
	Name() string
	Detect(ticker string, bars []models.Bar, existing models.DateSet) ([]models.Setup, error)
	MinBars() int
}

// Quality ranks a setup by how tightly its range compressed.
type Quality string

const (
	QualityAPlus Quality = "A+"
	QualityGood  Quality = "Good"
	QualityOK    Quality = "OK"
)
