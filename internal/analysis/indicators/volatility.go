package indicators

import (
	"fmt"

	"stock-pattern/internal/models"
)

// TrueRanges returns the true range of every bar. The first bar has no prior
// close, so its true range is its high-low span.
func TrueRanges(bars []models.Bar) []float64 {
	tr := make([]float64, len(bars))
	if len(bars) == 0 {
		return tr
	}
	tr[0] = bars[0].High - bars[0].Low
	for i := 1; i < len(bars); i++ {
		tr[i] = trueRange(bars[i], bars[i-1])
	}
	return tr
}

// ATR calculates the Average True Range with Wilder smoothing.
type ATR struct {
	period int
}

// NewATR creates a new ATR indicator.
func NewATR(period int) *ATR {
	return &ATR{period: period}
}

func (a *ATR) Name() string {
	return fmt.Sprintf("ATR_%d", a.period)
}

func (a *ATR) Period() int {
	return a.period
}

// Calculate returns raw ATR per bar. Values before index period-1 are zero.
func (a *ATR) Calculate(bars []models.Bar) ([]float64, error) {
	if a.period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(bars) < a.period {
		return nil, ErrInsufficientData
	}

	n := len(bars)
	result := make([]float64, n)
	tr := TrueRanges(bars)

	// First ATR is SMA of TR
	var seed float64
	for _, v := range tr[:a.period] {
		seed += v
	}
	result[a.period-1] = seed / float64(a.period)

	// Subsequent ATR using Wilder smoothing
	for i := a.period; i < n; i++ {
		result[i] = (result[i-1]*float64(a.period-1) + tr[i]) / float64(a.period)
	}

	return result, nil
}

// SmoothedATR is an exponential moving average of ATR, seeded with the first
// raw ATR value.
type SmoothedATR struct {
	atr       *ATR
	emaPeriod int
}

// NewSmoothedATR creates an EMA-smoothed ATR indicator.
func NewSmoothedATR(atrPeriod, emaPeriod int) *SmoothedATR {
	return &SmoothedATR{atr: NewATR(atrPeriod), emaPeriod: emaPeriod}
}

func (s *SmoothedATR) Name() string {
	return fmt.Sprintf("SmoothedATR_%d_%d", s.atr.period, s.emaPeriod)
}

func (s *SmoothedATR) Period() int {
	return s.atr.period
}

// SeedIndex is the first index with a defined value.
func (s *SmoothedATR) SeedIndex() int {
	return s.atr.period - 1
}

// Calculate returns the raw and smoothed ATR series.
func (s *SmoothedATR) Calculate(bars []models.Bar) (raw, smoothed []float64, err error) {
	if s.emaPeriod <= 0 {
		return nil, nil, ErrInvalidPeriod
	}
	raw, err = s.atr.Calculate(bars)
	if err != nil {
		return nil, nil, err
	}
	return raw, EMASeeded(raw, s.emaPeriod, s.SeedIndex()), nil
}

// MeanRange returns the mean high-low span of bars.
func MeanRange(bars []models.Bar) float64 {
	if len(bars) == 0 {
		return 0
	}
	var total float64
	for _, b := range bars {
		total += b.High - b.Low
	}
	return total / float64(len(bars))
}
