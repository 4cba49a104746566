package indicators

import (
	"math"
	"testing"

	"stock-pattern/internal/models"
)

func TestTrueRanges(t *testing.T) {
	bars := []models.Bar{
		{High: 10, Low: 8, Close: 9},
		{High: 12, Low: 10.5, Close: 11}, // gap up: |high - prevClose| = 3
		{High: 11, Low: 7, Close: 8},     // wide bar: high - low = 4
		{High: 8.5, Low: 8, Close: 8.2},  // |low - prevClose| = 0
	}
	want := []float64{2, 3, 4, 0.5}
	got := TrueRanges(bars)
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Errorf("TR[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestATR_WilderSmoothing(t *testing.T) {
	bars := []models.Bar{
		{High: 10, Low: 8, Close: 9},
		{High: 10, Low: 8, Close: 9},
		{High: 13, Low: 9, Close: 12},
	}
	values, err := NewATR(2).Calculate(bars)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if values[0] != 0 {
		t.Errorf("expected zero before seed, got %v", values[0])
	}
	if values[1] != 2 {
		t.Errorf("seed ATR = %v, want 2", values[1])
	}
	// (2*1 + 4) / 2
	if values[2] != 3 {
		t.Errorf("ATR[2] = %v, want 3", values[2])
	}
}

func TestATR_Errors(t *testing.T) {
	if _, err := NewATR(0).Calculate([]models.Bar{{}}); err != ErrInvalidPeriod {
		t.Errorf("expected ErrInvalidPeriod, got %v", err)
	}
	if _, err := NewATR(5).Calculate([]models.Bar{{}, {}}); err != ErrInsufficientData {
		t.Errorf("expected ErrInsufficientData, got %v", err)
	}
	if _, _, err := NewSmoothedATR(2, 0).Calculate([]models.Bar{{}, {}}); err != ErrInvalidPeriod {
		t.Errorf("expected ErrInvalidPeriod, got %v", err)
	}
}

func TestEMASeeded(t *testing.T) {
	values := []float64{0, 0, 10, 16, 16}
	got := EMASeeded(values, 2, 2)
	want := []float64{0, 0, 10, 14, 15.333333333333334}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Errorf("EMA[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	if out := EMASeeded(values, 2, 10); out[4] != 0 {
		t.Error("out-of-range seed should produce an all-zero series")
	}
}

func TestLinearFit(t *testing.T) {
	intercept, slope := LinearFit(OrdinalPoints([]float64{1, 3, 5, 7}))
	if math.Abs(intercept-1) > 1e-9 || math.Abs(slope-2) > 1e-9 {
		t.Errorf("fit = (%v, %v), want (1, 2)", intercept, slope)
	}

	if got := ProjectAt([]float64{1, 3, 5, 7}, 4); math.Abs(got-9) > 1e-9 {
		t.Errorf("ProjectAt = %v, want 9", got)
	}

	// All points share one x: slope is undefined and reported as zero.
	same := []SlopePoint{{Index: 2, Value: 1}, {Index: 2, Value: 5}}
	if _, s := LinearFit(same); s != 0 {
		t.Errorf("expected zero slope for vertical points, got %v", s)
	}

	if i, s := LinearFit(nil); i != 0 || s != 0 {
		t.Errorf("expected zero fit for no points, got (%v, %v)", i, s)
	}
}

func TestTrailingMean(t *testing.T) {
	got := TrailingMean([]float64{2, 4, 6, 8}, 3)
	want := []float64{2, 3, 4, 6}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Errorf("mean[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestVolumeWindow(t *testing.T) {
	w := NewVolumeWindow(3)
	for _, v := range []int64{10, 20, 30} {
		w.Push(v)
	}
	if !w.Full() || w.Mean() != 20 {
		t.Fatalf("expected full window with mean 20, got full=%v mean=%v", w.Full(), w.Mean())
	}

	w.Push(60)
	if w.Mean() != (20+30+60)/3.0 {
		t.Errorf("expected eviction of oldest sample, mean=%v", w.Mean())
	}

	w.Reset()
	if w.Len() != 0 || w.Mean() != 0 {
		t.Errorf("expected empty window after reset, len=%d mean=%v", w.Len(), w.Mean())
	}
}

func TestCoefficientOfVariation(t *testing.T) {
	if cv := CoefficientOfVariation([]float64{5, 5, 5}); cv != 0 {
		t.Errorf("constant series CV = %v, want 0", cv)
	}
	if cv := CoefficientOfVariation([]float64{0, 0}); !math.IsInf(cv, 1) {
		t.Errorf("zero-mean CV = %v, want +Inf", cv)
	}
	// sample stddev of {2, 4} is sqrt(2); mean 3
	if cv := CoefficientOfVariation([]float64{2, 4}); math.Abs(cv-math.Sqrt2/3) > 1e-9 {
		t.Errorf("CV = %v, want %v", cv, math.Sqrt2/3)
	}
}

func TestHighestLowest(t *testing.T) {
	values := []float64{3, 9, -1, 4}
	if Highest(values) != 9 || Lowest(values) != -1 {
		t.Errorf("Highest/Lowest = %v/%v", Highest(values), Lowest(values))
	}
	if Highest(nil) != 0 || Lowest(nil) != 0 {
		t.Error("empty input should return 0")
	}
}
