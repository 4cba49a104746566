package patterns

import (
	"stock-pattern/internal/analysis/indicators"
	"stock-pattern/internal/models"
)

// series holds per-invocation precomputed indicators. It is built once per
// Detect call and discarded afterwards.
type series struct {
	bars     []models.Bar
	closes   []float64
	highs    []float64
	lows     []float64
	volumes  []float64
	sma      []float64
	volMA    []float64
	rawATR   []float64
	smoothed []float64
	seed     int
}

func precompute(bars []models.Bar, p Params) (*series, error) {
	satr := indicators.NewSmoothedATR(p.ATRPeriod, p.EMAPeriod)
	raw, smoothed, err := satr.Calculate(bars)
	if err != nil {
		return nil, err
	}

	closes := indicators.ClosePrices(bars)
	return &series{
		bars:     bars,
		closes:   closes,
		highs:    indicators.HighPrices(bars),
		lows:     indicators.LowPrices(bars),
		volumes:  indicators.Volumes(bars),
		sma:      indicators.TrailingMean(closes, p.SMAPeriod),
		volMA:    indicators.TrailingVolumeMean(bars, p.VolumeWindow),
		rawATR:   raw,
		smoothed: smoothed,
		seed:     satr.SeedIndex(),
	}, nil
}

// window returns the half-open index range [i-n+1, i+1).
func window(i, n int) (int, int) {
	return i - n + 1, i + 1
}

// atrAt returns smoothed ATR at i, substituting a range-derived positive
// value when the smoothed series is not usable there.
func (s *series) atrAt(i int, p Params) float64 {
	if atr := s.smoothed[i]; atr > 0 {
		return atr
	}
	lo, hi := window(i, p.Lookback)
	return max(p.TickSize, indicators.MeanRange(s.bars[lo:hi]))
}
