package patterns

import (
	"math"
	"time"

	"stock-pattern/internal/models"
)

var fixtureStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func day(i int) time.Time {
	return fixtureStart.AddDate(0, 0, i)
}

// uptrendBars returns n bars climbing half a point per bar on flat volume.
func uptrendBars(n int) []models.Bar {
	bars := make([]models.Bar, n)
	for i := range bars {
		c := 100 + 0.5*float64(i)
		bars[i] = models.Bar{Date: day(i), Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 1_000_000}
	}
	return bars
}

// appendWindow adds a ten-bar consolidation built by shape to the series.
func appendWindow(bars []models.Bar, shape func(k int) models.Bar) []models.Bar {
	start := len(bars)
	for k := 0; k < 10; k++ {
		b := shape(k)
		b.Date = day(start + k)
		if b.Open == 0 {
			b.Open = b.Close
		}
		bars = append(bars, b)
	}
	return bars
}

// wedgeBars is a 100-bar uptrend ending in a converging wedge whose last bar
// is the only candidate.
func wedgeBars() []models.Bar {
	taper := []int64{700_000, 650_000, 600_000, 550_000, 600_000}
	return appendWindow(uptrendBars(90), func(k int) models.Bar {
		h := 147 - 0.15*float64(k)
		l := 143 + 0.15*float64(k)
		v := int64(1_000_000)
		if k >= 5 {
			v = taper[k-5]
		}
		return models.Bar{High: h, Low: l, Close: (h + l) / 2, Volume: v}
	})
}

// wedgeBreakoutBars is wedgeBars with a quiet second half and a final bar
// that closes above resistance on heavy volume.
func wedgeBreakoutBars() []models.Bar {
	base := uptrendBars(90)
	base[88].High = 147.5
	base[89].High = 147.5
	taper := []int64{400_000, 400_000, 400_000, 400_000, 1_300_000}
	bars := appendWindow(base, func(k int) models.Bar {
		h := 147 - 0.15*float64(k)
		l := 143 + 0.15*float64(k)
		v := int64(1_000_000)
		if k >= 5 {
			v = taper[k-5]
		}
		return models.Bar{High: h, Low: l, Close: (h + l) / 2, Volume: v}
	})
	last := &bars[len(bars)-1]
	last.High, last.Low, last.Close = 146.2, 145.0, 146.18
	return bars
}

// withSecondHalfVolume overwrites the volumes of the last five bars.
func withSecondHalfVolume(bars []models.Bar, vols ...int64) []models.Bar {
	start := len(bars) - len(vols)
	for k, v := range vols {
		bars[start+k].Volume = v
	}
	return bars
}

// highBaseWedgeBars is wedgeBars with a falling stretch before the final
// climb, so the 50-bar average sits above the last close while the 20-bar
// slope stays positive.
func highBaseWedgeBars() []models.Bar {
	bars := wedgeBars()
	for i := 50; i < 80; i++ {
		c := 140 + 2*float64(80-i)
		bars[i].Open, bars[i].High, bars[i].Low, bars[i].Close = c, c+1, c-1, c
	}
	return bars
}

func pennantBars() []models.Bar {
	return appendWindow(uptrendBars(90), func(k int) models.Bar {
		h := 145.4 - 0.04*float64(k)
		l := 144.6 + 0.016*float64(k)
		v := int64(1_000_000)
		if k >= 5 {
			v = 600_000
		}
		return models.Bar{High: h, Low: l, Close: (h + l) / 2, Volume: v}
	})
}

func flagBars() []models.Bar {
	return appendWindow(uptrendBars(90), func(k int) models.Bar {
		b := models.Bar{High: 146, Low: 144, Close: 144.8, Volume: 1_000_000}
		if k%2 == 1 {
			b.Close = 145.2
		}
		if k >= 5 {
			b.Volume = 600_000
		}
		if k == 9 {
			b.High, b.Low, b.Close = 145.8, 143.95, 145.0
		}
		return b
	})
}

func flatBars(n int) []models.Bar {
	bars := make([]models.Bar, n)
	for i := range bars {
		bars[i] = models.Bar{Date: day(i), Open: 100, High: 100, Low: 100, Close: 100, Volume: 1000}
	}
	return bars
}

func approx(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}
