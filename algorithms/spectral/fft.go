package spectral

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// FFT provides Fast Fourier Transform functionality
type FFT struct{}

// NewFFT creates a new FFT calculator
func NewFFT() *FFT {
	return &FFT{}
}

// Compute computes the FFT of a real frame using mjibson/go-dsp
func (f *FFT) Compute(x []float64) []complex128 {
	if len(x) == 0 {
		return []complex128{}
	}

	// mjibson/go-dsp handles all sizes, including non-power-of-2
	return fft.FFTReal(x)
}

// MagnitudeInto writes |X[k]| for the positive-frequency bins of x into dst.
// len(dst) bins are filled; dst must not exceed len(x)/2+1.
func (f *FFT) MagnitudeInto(x []float64, dst []float64) {
	spectrum := f.Compute(x)
	for k := range dst {
		dst[k] = cmplx.Abs(spectrum[k])
	}
}
