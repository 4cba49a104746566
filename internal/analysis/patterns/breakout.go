package patterns

import (
	"stock-pattern/internal/analysis/indicators"
	"stock-pattern/pkg/utils"
)

// tradePlan is the breakout and risk/reward evaluation of a candidate.
type tradePlan struct {
	resistance   float64
	atr          float64
	volMA        float64
	entry        float64
	strongVolume bool
	priceBreak   bool
	closeStrong  bool
	brokeOut     bool
	stopLoss     float64
	takeProfit   float64
	risk         float64
	reward       float64
	rr           float64
}

func evaluateBreakout(s *series, i int, vp volumeProfile, p Params) tradePlan {
	lo, hi := window(i, p.Lookback)
	highs := s.highs[lo:hi]
	bar := s.bars[i]

	tp := tradePlan{
		resistance: indicators.ProjectAt(highs, float64(p.Lookback-1)),
		atr:        s.atrAt(i, p),
		volMA:      s.volMA[i],
	}

	tp.entry = tp.resistance + max(p.TickSize, p.BreakoutATRFrac*tp.atr)

	volume := float64(bar.Volume)
	tp.strongVolume = volume >= max(tp.volMA*p.RecentVolumeMult, vp.firstMean*p.BaseVolumeMult)
	tp.priceBreak = bar.Close >= tp.entry
	tp.closeStrong = closingStrength(s, i, p)
	tp.brokeOut = tp.priceBreak && tp.strongVolume && tp.closeStrong

	_, secondLows := splitHalves(s.lows[lo:hi])
	tp.stopLoss = indicators.Lowest(secondLows) - max(p.StopATRFrac*tp.atr, p.StopTickMultiple*p.TickSize)

	if pivot, ok := findPivotTarget(s.highs, i, tp.resistance, p); ok {
		tp.takeProfit = pivot
	} else {
		tp.takeProfit = indicators.Highest(highs) + p.TargetATRMult*tp.atr
	}

	tp.risk = utils.Round(max(p.TickSize, tp.entry-tp.stopLoss), 4)
	tp.reward = utils.Round(max(p.TickSize, tp.takeProfit-tp.entry), 4)
	tp.rr = utils.Round(tp.reward/tp.risk, 4)
	return tp
}

// closingStrength requires the close in the upper part of its bar and above
// the previous close.
func closingStrength(s *series, i int, p Params) bool {
	bar := s.bars[i]
	rng := bar.Range()
	if rng <= 0 {
		return false
	}
	pos := (bar.Close - bar.Low) / rng
	return pos >= 0.5 && pos >= p.MinCloseStrength && bar.Close > s.closes[i-1]
}

// findPivotTarget scans backward from the candidate for the nearest pivot
// high above resistance. A pivot high exceeds every high within PivotRadius
// bars on both sides.
func findPivotTarget(highs []float64, i int, resistance float64, p Params) (float64, bool) {
	r := p.PivotRadius
	floor := max(r, i-p.PivotLookback)
	for j := i - r; j >= floor; j-- {
		if highs[j] <= resistance {
			continue
		}
		if isPivotHigh(highs, j, r) {
			return highs[j], true
		}
	}
	return 0, false
}

func isPivotHigh(highs []float64, j, r int) bool {
	for k := 1; k <= r; k++ {
		if highs[j] <= highs[j-k] || highs[j] <= highs[j+k] {
			return false
		}
	}
	return true
}
