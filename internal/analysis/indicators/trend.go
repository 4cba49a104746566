package indicators

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// SlopePoint is one (x, y) sample for a least-squares fit.
type SlopePoint struct {
	Index float64
	Value float64
}

// OrdinalPoints pairs each value with its position 0..n-1.
func OrdinalPoints(values []float64) []SlopePoint {
	points := make([]SlopePoint, len(values))
	for i, v := range values {
		points[i] = SlopePoint{Index: float64(i), Value: v}
	}
	return points
}

// LinearFit returns the intercept and slope of the least-squares line through
// points. Fewer than two points, or points sharing one x, yield a zero slope.
func LinearFit(points []SlopePoint) (intercept, slope float64) {
	switch len(points) {
	case 0:
		return 0, 0
	case 1:
		return points[0].Value, 0
	}

	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i] = p.Index
		ys[i] = p.Value
	}

	if stat.Variance(xs, nil) == 0 {
		return stat.Mean(ys, nil), 0
	}

	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	if math.IsNaN(beta) || math.IsInf(beta, 0) {
		return stat.Mean(ys, nil), 0
	}
	return alpha, beta
}

// Slope returns the least-squares slope through points.
func Slope(points []SlopePoint) float64 {
	_, slope := LinearFit(points)
	return slope
}

// SlopeOf returns the least-squares slope of values against their ordinal position.
func SlopeOf(values []float64) float64 {
	return Slope(OrdinalPoints(values))
}

// ProjectAt fits values against their ordinal position and evaluates the
// fitted line at x.
func ProjectAt(values []float64, x float64) float64 {
	intercept, slope := LinearFit(OrdinalPoints(values))
	return intercept + slope*x
}

// TrailingMean returns, for each index i, the mean of the up-to-period values
// ending at i. Early indices average whatever history exists.
func TrailingMean(values []float64, period int) []float64 {
	result := make([]float64, len(values))
	if period <= 0 {
		return result
	}

	var sum float64
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		n := min(i+1, period)
		result[i] = sum / float64(n)
	}
	return result
}

// EMASeeded computes an exponential moving average of values that starts at
// index seed with values[seed]. Entries before seed are zero.
func EMASeeded(values []float64, period, seed int) []float64 {
	result := make([]float64, len(values))
	if period <= 0 || seed < 0 || seed >= len(values) {
		return result
	}

	multiplier := 2.0 / float64(period+1)
	result[seed] = values[seed]
	for i := seed + 1; i < len(values); i++ {
		result[i] = (values[i]-result[i-1])*multiplier + result[i-1]
	}
	return result
}
