// Package reports summarises finalized setups into per-trade and aggregate
// performance views.
package reports

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"stock-pattern/internal/models"
	"stock-pattern/pkg/utils"
)

// Day colours for a closed trade.
const (
	Green = "Green"
	Red   = "Red"
)

// FinalResultRow is one traded setup in the final results report.
type FinalResultRow struct {
	SetupID              int64     `json:"stockSetupId"`
	Ticker               string    `json:"ticker"`
	Signal               string    `json:"signal"`
	SetupDate            time.Time `json:"setupDate"`
	BreakoutPrice        float64   `json:"breakoutPrice"`
	PriceSoldAt          float64   `json:"priceSoldAt"`
	PercentageDifference float64   `json:"percentageDifference"`
	GreenOrRedDay        string    `json:"greenOrRedDay"`
	DateUpdated          string    `json:"dateUpdated"`
}

// Summary aggregates closed trades.
type Summary struct {
	TotalTrades   int     `json:"totalTrades"`
	GreenCount    int     `json:"greenCount"`
	RedCount      int     `json:"redCount"`
	SuccessRate   float64 `json:"successRate"`
	AvgReturnPct  float64 `json:"avgReturnPct"`
	BestTradePct  float64 `json:"bestTradePct"`
	WorstTradePct float64 `json:"worstTradePct"`
}

// ReturnPct is the percentage move from entry to exit. A non-positive entry
// yields zero.
func ReturnPct(entry, exit float64) float64 {
	if entry <= 0 {
		return 0
	}
	return (exit - entry) / entry * 100
}

// FinalResults builds report rows for traded setups, newest update first.
// Setups closed as false positives or never traded are skipped.
func FinalResults(resolved []models.ResolvedSetup) []FinalResultRow {
	ordered := append([]models.ResolvedSetup(nil), resolved...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Result.DateUpdated.After(ordered[j].Result.DateUpdated)
	})

	rows := make([]FinalResultRow, 0, len(ordered))
	for _, r := range ordered {
		if !r.Result.IsActive || r.Result.IsFalsePositive {
			continue
		}
		pct := ReturnPct(r.Setup.BreakoutPrice, r.Result.PriceSoldAt)
		colour := Red
		if pct > 0 {
			colour = Green
		}
		rows = append(rows, FinalResultRow{
			SetupID:              r.Setup.ID,
			Ticker:               r.Setup.Ticker,
			Signal:               r.Setup.Signal,
			SetupDate:            r.Setup.Date,
			BreakoutPrice:        r.Setup.BreakoutPrice,
			PriceSoldAt:          r.Result.PriceSoldAt,
			PercentageDifference: utils.Round(pct, 2),
			GreenOrRedDay:        colour,
			DateUpdated:          utils.FormatMDY(r.Result.DateUpdated),
		})
	}

	return rows
}

// Summarize aggregates report rows. An empty input yields a zero Summary.
func Summarize(rows []FinalResultRow) Summary {
	var s Summary
	if len(rows) == 0 {
		return s
	}

	returns := make([]float64, len(rows))
	s.BestTradePct = math.Inf(-1)
	s.WorstTradePct = math.Inf(1)
	for i, r := range rows {
		returns[i] = r.PercentageDifference
		if r.GreenOrRedDay == Green {
			s.GreenCount++
		} else {
			s.RedCount++
		}
		s.BestTradePct = math.Max(s.BestTradePct, r.PercentageDifference)
		s.WorstTradePct = math.Min(s.WorstTradePct, r.PercentageDifference)
	}

	s.TotalTrades = len(rows)
	s.SuccessRate = utils.Round(float64(s.GreenCount)/float64(s.TotalTrades)*100, 2)
	s.AvgReturnPct = utils.Round(stat.Mean(returns, nil), 2)
	return s
}
