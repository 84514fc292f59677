package common

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Basic statistical functions used across algorithms using gonum for robustness

// Epsilon is the floor below which energies and variances count as zero
const Epsilon = 1e-10

// Mean calculates the arithmetic mean of a slice using gonum
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return stat.Mean(data, nil)
}

// Sum returns the sum of data
func Sum(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return floats.Sum(data)
}

// RemoveMean returns a zero-mean copy of data
func RemoveMean(data []float64) []float64 {
	centered := make([]float64, len(data))
	if len(data) == 0 {
		return centered
	}
	copy(centered, data)
	floats.AddConst(-Mean(data), centered)
	return centered
}

// RMS calculates root mean square
func RMS(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return floats.Norm(data, 2) / math.Sqrt(float64(len(data)))
}

// Correlation calculates the Pearson correlation coefficient between two
// series. Series with (near) zero variance correlate as 0 instead of NaN.
func Correlation(x, y []float64) float64 {
	if len(x) != len(y) || len(x) < 2 {
		return 0.0
	}

	if stat.Variance(x, nil) < Epsilon || stat.Variance(y, nil) < Epsilon {
		return 0.0
	}

	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) {
		return 0.0
	}
	return r
}

// L2Normalize scales data in place to unit Euclidean norm and returns the
// original norm. Data with norm below Epsilon is left untouched.
func L2Normalize(data []float64) float64 {
	norm := floats.Norm(data, 2)
	if norm < Epsilon {
		return norm
	}
	floats.Scale(1/norm, data)
	return norm
}

// Clamp restricts value to [min, max]
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// ParabolicPeak refines the position of a local maximum at index i using the
// parabola through data[i-1], data[i], data[i+1]. The returned offset lies in
// [-0.5, 0.5]; edges and flat neighbourhoods return 0.
func ParabolicPeak(data []float64, i int) float64 {
	if i <= 0 || i >= len(data)-1 {
		return 0.0
	}

	left, center, right := data[i-1], data[i], data[i+1]
	denom := left - 2*center + right
	if math.Abs(denom) < Epsilon {
		return 0.0
	}

	return Clamp(0.5*(left-right)/denom, -0.5, 0.5)
}
