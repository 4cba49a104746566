// Package models provides domain models for the stock pattern scanner.
package models

import (
	"time"
)

// Bar represents OHLCV data for one trading interval.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Range returns the high-low span of the bar.
func (b Bar) Range() float64 {
	return b.High - b.Low
}

// PatternKind identifies a consolidation pattern.
type PatternKind string

const (
	PatternWedge   PatternKind = "Wedge"
	PatternPennant PatternKind = "Pennant"
	PatternFlag    PatternKind = "Flag"
)

// Setup is a detected pattern setup for a single bar.
type Setup struct {
	ID              int64     `json:"id"`
	Ticker          string    `json:"ticker"`
	Date            time.Time `json:"date"`
	Close           float64   `json:"close"`
	High            float64   `json:"high"`
	Low             float64   `json:"low"`
	Volume          int64     `json:"volume"`
	VolMA           float64   `json:"volMA"`
	Trend           bool      `json:"trend"`
	Setup           bool      `json:"setup"`
	Signal          string    `json:"signal"`
	Pattern         string    `json:"pattern"`
	ResistanceLevel float64   `json:"resistanceLevel"`
	BreakoutPrice   float64   `json:"breakoutPrice"`
	BrokeOut        bool      `json:"brokeOut"`
	IsFinalized     bool      `json:"isFinalized"`
	Compression     float64   `json:"compression"`
	HighSlope       float64   `json:"highSlope"`
	LowSlope        float64   `json:"lowSlope"`
	SmoothedATR     float64   `json:"smoothedATR"`
	StopLoss        float64   `json:"stopLoss"`
	TakeProfit      float64   `json:"takeProfit"`
	RiskPerShare    float64   `json:"riskPerShare"`
	RewardPerShare  float64   `json:"rewardPerShare"`
	RewardToRisk    float64   `json:"rewardToRisk"`
}

// FinalResult records how a setup was resolved. IsActive marks a setup that
// was actually traded; PriceSoldAt is only meaningful then.
type FinalResult struct {
	ID              int64     `json:"id"`
	StockSetupID    int64     `json:"stockSetupId"`
	DateUpdated     time.Time `json:"dateUpdated"`
	PriceSoldAt     float64   `json:"priceSoldAt"`
	IsActive        bool      `json:"isActive"`
	IsFalsePositive bool      `json:"isFalsePositive"`
}

// ResolvedSetup pairs a finalized setup with its result.
type ResolvedSetup struct {
	Setup  Setup       `json:"setup"`
	Result FinalResult `json:"result"`
}

// JournalEntry is a free-form trading journal note.
type JournalEntry struct {
	ID           int64     `json:"id"`
	Date         time.Time `json:"date"`
	EntrySubject string    `json:"entrySubject"`
	EntryBody    string    `json:"entryBody"`
	IsActive     bool      `json:"isActive"`
}
