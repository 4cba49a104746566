package patterns

import (
	"stock-pattern/internal/analysis/indicators"

	"gonum.org/v1/gonum/stat"
)

// trendContext is the outcome of the uptrend filter.
type trendContext struct {
	slope float64
	sma   float64
}

// checkTrend requires a rising close regression over UptrendLookback bars
// and a close at or above the trailing SMA.
func checkTrend(s *series, i int, p Params) (trendContext, bool) {
	lo, hi := window(i, p.UptrendLookback)
	tc := trendContext{
		slope: indicators.SlopeOf(s.closes[lo:hi]),
		sma:   s.sma[i],
	}
	if tc.slope < p.MinUptrendSlope {
		return tc, false
	}
	return tc, s.closes[i] >= tc.sma
}

// volumeProfile describes volume inside the pattern window.
type volumeProfile struct {
	firstMean  float64
	secondMean float64
	secondCV   float64
	last       float64
}

// splitHalves splits a window so the second half holds the later bars. For
// odd lengths the extra bar goes to the second half.
func splitHalves(values []float64) ([]float64, []float64) {
	mid := len(values) / 2
	return values[:mid], values[mid:]
}

// checkVolumeTaper requires steadily declining volume without a final spike.
func checkVolumeTaper(s *series, i int, p Params) (volumeProfile, bool) {
	lo, hi := window(i, p.Lookback)
	first, second := splitHalves(s.volumes[lo:hi])

	vp := volumeProfile{
		firstMean:  stat.Mean(first, nil),
		secondMean: stat.Mean(second, nil),
		secondCV:   indicators.CoefficientOfVariation(second),
		last:       s.volumes[i],
	}

	if vp.firstMean <= 0 {
		return vp, false
	}
	if vp.secondMean > vp.firstMean*p.VolumeDropFactor {
		return vp, false
	}
	if vp.secondCV > p.VolumeCVMax {
		return vp, false
	}
	if vp.last > vp.firstMean*p.VolumeSpikeFactor {
		return vp, false
	}
	return vp, true
}
