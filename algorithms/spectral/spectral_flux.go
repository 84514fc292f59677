package spectral

// SpectralFlux computes the half-wave rectified spectral flux of a
// magnitude spectrogram
type SpectralFlux struct{}

// NewSpectralFlux creates a new spectral flux calculator
func NewSpectralFlux() *SpectralFlux {
	return &SpectralFlux{}
}

// Compute returns one value per frame: the sum over bins of the positive
// magnitude increase from the previous frame. Frame 0 has no predecessor and
// is 0, so the output has the same length as the spectrogram.
func (sf *SpectralFlux) Compute(spectrogram [][]float64) []float64 {
	flux := make([]float64, len(spectrogram))

	for t := 1; t < len(spectrogram); t++ {
		prev, cur := spectrogram[t-1], spectrogram[t]
		sum := 0.0
		for f := range cur {
			if diff := cur[f] - prev[f]; diff > 0 {
				sum += diff
			}
		}
		flux[t] = sum
	}

	return flux
}
