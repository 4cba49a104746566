package patterns

import (
	"math"

	"stock-pattern/internal/analysis/indicators"
	"stock-pattern/internal/models"
)

// shape is the geometry of a pattern window.
type shape struct {
	highSlope   float64
	lowSlope    float64
	rangeStart  float64
	rangeEnd    float64
	compression float64
	lowerHighs  bool
	higherLows  bool
	matches     []models.PatternKind
}

// Kind returns the display label, the highest-priority match.
func (sh shape) Kind() models.PatternKind {
	if len(sh.matches) == 0 {
		return ""
	}
	return sh.matches[0]
}

// classifyShape fits lines to the window's highs and lows and tests the
// wedge, pennant and flag variants in label priority order.
func classifyShape(s *series, i int, p Params) (shape, bool) {
	lo, hi := window(i, p.Lookback)
	highs := s.highs[lo:hi]
	lows := s.lows[lo:hi]
	last := len(highs) - 1

	sh := shape{
		highSlope: indicators.SlopeOf(highs),
		lowSlope:  indicators.SlopeOf(lows),
	}
	if sh.highSlope > 0 && sh.lowSlope > 0 {
		return sh, false
	}

	sh.rangeStart = highs[0] - lows[0]
	sh.rangeEnd = highs[last] - lows[last]
	if sh.rangeStart <= 0 {
		return sh, false
	}
	sh.compression = 1 - sh.rangeEnd/sh.rangeStart
	sh.lowerHighs = highs[last] < highs[0]
	sh.higherLows = lows[last] > lows[0]
	converging := sh.lowerHighs && sh.higherLows

	if converging &&
		sh.highSlope < p.HighSlopeMax &&
		sh.lowSlope > p.LowSlopeMin &&
		sh.compression >= p.WedgeMinCompression {
		sh.matches = append(sh.matches, models.PatternWedge)
	}

	if converging &&
		sh.highSlope < 0 &&
		sh.lowSlope > 0 &&
		sh.compression >= p.WedgeMinCompression+p.PennantExtraCompression {
		sh.matches = append(sh.matches, models.PatternPennant)
	}

	if math.Abs(sh.highSlope) < p.FlagSlopeMax &&
		math.Abs(sh.lowSlope) < p.FlagSlopeMax &&
		sh.compression >= p.FlagMinCompression &&
		s.closes[i] <= indicators.Highest(s.closes[lo:i]) {
		sh.matches = append(sh.matches, models.PatternFlag)
	}

	return sh, len(sh.matches) > 0
}
