package indicators

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"stock-pattern/internal/models"
)

// VolumeWindow keeps a running sum over the most recent size volumes in a
// circular buffer.
type VolumeWindow struct {
	buf   []int64
	next  int
	count int
	sum   int64
}

// NewVolumeWindow creates a window holding size samples.
func NewVolumeWindow(size int) *VolumeWindow {
	if size <= 0 {
		size = 1
	}
	return &VolumeWindow{buf: make([]int64, size)}
}

// Push adds v, evicting the oldest sample once the window is full.
func (w *VolumeWindow) Push(v int64) {
	if w.count == len(w.buf) {
		w.sum -= w.buf[w.next]
	} else {
		w.count++
	}
	w.buf[w.next] = v
	w.sum += v
	w.next = (w.next + 1) % len(w.buf)
}

// Full reports whether size samples have been pushed.
func (w *VolumeWindow) Full() bool {
	return w.count == len(w.buf)
}

// Len returns the number of samples currently held.
func (w *VolumeWindow) Len() int {
	return w.count
}

// Mean returns the mean of the held samples.
func (w *VolumeWindow) Mean() float64 {
	if w.count == 0 {
		return 0
	}
	return float64(w.sum) / float64(w.count)
}

// Reset empties the window.
func (w *VolumeWindow) Reset() {
	for i := range w.buf {
		w.buf[i] = 0
	}
	w.next, w.count, w.sum = 0, 0, 0
}

// TrailingVolumeMean returns, for each index i, the mean volume of the window
// bars preceding i. Indices without a full window are zero.
func TrailingVolumeMean(bars []models.Bar, window int) []float64 {
	result := make([]float64, len(bars))
	if window <= 0 {
		return result
	}
	w := NewVolumeWindow(window)
	for i, b := range bars {
		if w.Full() {
			result[i] = w.Mean()
		}
		w.Push(b.Volume)
	}
	return result
}

// CoefficientOfVariation returns stddev/mean of values using the sample
// standard deviation. A non-positive mean yields +Inf.
func CoefficientOfVariation(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean, std := stat.MeanStdDev(values, nil)
	if mean <= 0 {
		return math.Inf(1)
	}
	return std / mean
}
