package common

// Resampler converts signals between sample rates with linear interpolation
type Resampler struct{}

// NewResampler creates a new resampler
func NewResampler() *Resampler {
	return &Resampler{}
}

// Resample returns a new slice holding signal resampled from originalRate to
// targetRate. The input is never modified; equal rates return a copy.
func (r *Resampler) Resample(signal []float64, originalRate, targetRate int) []float64 {
	if len(signal) == 0 || originalRate <= 0 || targetRate <= 0 {
		return []float64{}
	}

	if originalRate == targetRate {
		out := make([]float64, len(signal))
		copy(out, signal)
		return out
	}

	ratio := float64(originalRate) / float64(targetRate)
	newLength := int(float64(len(signal)) / ratio)

	if newLength <= 0 {
		return []float64{}
	}

	resampled := make([]float64, newLength)
	for i := range resampled {
		resampled[i] = linearAt(signal, float64(i)*ratio)
	}

	return resampled
}

// linearAt performs linear interpolation at fractional index
func linearAt(data []float64, index float64) float64 {
	if index <= 0 {
		return data[0]
	}
	if index >= float64(len(data)-1) {
		return data[len(data)-1]
	}

	i := int(index)
	frac := index - float64(i)

	return data[i] + frac*(data[i+1]-data[i])
}
