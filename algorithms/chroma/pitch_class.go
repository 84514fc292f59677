package chroma

import (
	"math"
)

var pitchClassNames = [NumPitchClasses]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// PitchClassName returns the label for pc, wrapping out-of-range values
func PitchClassName(pc int) string {
	return pitchClassNames[Wrap(pc)]
}

// Wrap folds any integer onto 0..11
func Wrap(pc int) int {
	return ((pc % NumPitchClasses) + NumPitchClasses) % NumPitchClasses
}

// Rotate returns template shifted so that template[0] lands on tonic:
// out[i] = template[(i - tonic) mod 12]
func Rotate(template [NumPitchClasses]float64, tonic int) [NumPitchClasses]float64 {
	var out [NumPitchClasses]float64
	for i := range NumPitchClasses {
		out[i] = template[Wrap(i-tonic)]
	}
	return out
}

// Entropy returns the Shannon entropy (bits) of the profile treated as a
// distribution. A flat profile gives log2(12), a single class gives 0.
func Entropy(profile [NumPitchClasses]float64) float64 {
	total := 0.0
	for _, v := range profile {
		total += v
	}
	if total <= 0 {
		return 0
	}

	entropy := 0.0
	for _, v := range profile {
		if v > 0 {
			p := v / total
			entropy -= p * math.Log2(p)
		}
	}
	return entropy
}
