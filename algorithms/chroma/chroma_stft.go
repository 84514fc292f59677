package chroma

import (
	"context"
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-analyzer/algorithms/common"
	"github.com/RyanBlaney/sonido-analyzer/algorithms/spectral"
	"github.com/RyanBlaney/sonido-analyzer/algorithms/windowing"
	aerrors "github.com/RyanBlaney/sonido-analyzer/errors"
	"github.com/RyanBlaney/sonido-analyzer/logging"
)

// NumPitchClasses is the number of chroma bins, index 0 = C
const NumPitchClasses = 12

// Chromagram is the aggregate pitch-class energy of a signal
type Chromagram struct {
	Vector       [NumPitchClasses]float64 `json:"vector"`        // Unit L2 norm
	Frames       int                      `json:"frames"`        // STFT frames analyzed
	VoicedFrames int                      `json:"voiced_frames"` // Frames above the voicing threshold
}

// Dominant returns the pitch class with the most energy
func (c *Chromagram) Dominant() int {
	best := 0
	for pc := 1; pc < NumPitchClasses; pc++ {
		if c.Vector[pc] > c.Vector[best] {
			best = pc
		}
	}
	return best
}

// ChromaParams configures the chroma extractor
type ChromaParams struct {
	FrameSize        int     `json:"frame_size" yaml:"frame_size"`
	HopSize          int     `json:"hop_size" yaml:"hop_size"`
	MinFreq          float64 `json:"min_freq" yaml:"min_freq"`                   // Lowest bin frequency folded in
	MaxFreq          float64 `json:"max_freq" yaml:"max_freq"`                   // Highest bin frequency folded in
	TuningFreq       float64 `json:"tuning_freq" yaml:"tuning_freq"`             // A4 reference
	VoicingThreshold float64 `json:"voicing_threshold" yaml:"voicing_threshold"` // Minimum frame RMS
}

// DefaultChromaParams returns 4096/2048 framing over 55-5000 Hz with A4=440
func DefaultChromaParams() ChromaParams {
	return ChromaParams{
		FrameSize:        4096,
		HopSize:          2048,
		MinFreq:          55.0,   // A1
		MaxFreq:          5000.0, // Upper harmonics of the melody range
		TuningFreq:       440.0,
		VoicingThreshold: 1e-3, // -60 dBFS
	}
}

// ChromaExtractor folds an STFT into a single octave-independent profile.
// Unlike spectral.STFT it works in musical pitch: every bin maps to the
// nearest equal-tempered semitone relative to the tuning frequency.
type ChromaExtractor struct {
	params ChromaParams
	window *windowing.Hann
	stft   *spectral.STFT
	logger logging.Logger
}

// NewChromaExtractor creates a new chroma extractor
func NewChromaExtractor(params ChromaParams, logger logging.Logger) *ChromaExtractor {
	if logger == nil {
		logger = &logging.NoOpLogger{}
	}

	return &ChromaExtractor{
		params: params,
		window: windowing.NewHann(params.FrameSize, false),
		stft:   spectral.NewSTFT(),
		logger: logger.WithFields(logging.Fields{
			"component": "chroma_extractor",
		}),
	}
}

// Extract computes the aggregate chromagram of a mono signal. Silent or
// unpitched input returns ErrDegenerateSignal.
func (ce *ChromaExtractor) Extract(ctx context.Context, signal []float64, sampleRate int) (*Chromagram, error) {
	if len(signal) == 0 {
		return nil, fmt.Errorf("no samples: %w", aerrors.ErrEmptyAudio)
	}

	// Zero-pad short buffers to a single frame
	if len(signal) < ce.params.FrameSize {
		padded := make([]float64, ce.params.FrameSize)
		copy(padded, signal)
		signal = padded
	}

	stftResult, err := ce.stft.ComputeMagnitude(ctx, signal, ce.params.FrameSize, ce.params.HopSize, sampleRate, ce.window)
	if err != nil {
		return nil, err
	}

	mapping := ce.calculateChromaMapping(stftResult.FreqBins, stftResult.FreqResolution)

	chroma := &Chromagram{Frames: stftResult.TimeFrames}
	for t, mags := range stftResult.Magnitude {
		if stftResult.FrameRMS[t] < ce.params.VoicingThreshold {
			continue
		}
		chroma.VoicedFrames++

		for f, magnitude := range mags {
			if pc := mapping[f]; pc >= 0 {
				chroma.Vector[pc] += magnitude * magnitude
			}
		}
	}

	if norm := common.L2Normalize(chroma.Vector[:]); norm < common.Epsilon {
		return nil, fmt.Errorf("no pitched energy in %d frames (%d voiced): %w",
			chroma.Frames, chroma.VoicedFrames, aerrors.ErrDegenerateSignal)
	}

	ce.logger.Debug("Chromagram extracted", logging.Fields{
		"frames":        chroma.Frames,
		"voiced_frames": chroma.VoicedFrames,
		"dominant":      PitchClassName(chroma.Dominant()),
		"entropy":       Entropy(chroma.Vector),
	})

	return chroma, nil
}

// calculateChromaMapping maps FFT bins to pitch classes, -1 outside the
// frequency range
func (ce *ChromaExtractor) calculateChromaMapping(freqBins int, freqResolution float64) []int {
	mapping := make([]int, freqBins)

	for f := range freqBins {
		frequency := float64(f) * freqResolution

		if frequency < ce.params.MinFreq || frequency > ce.params.MaxFreq || frequency <= 0 {
			mapping[f] = -1
			continue
		}

		midiNote := int(math.Round(ce.frequencyToMIDI(frequency)))
		mapping[f] = Wrap(midiNote)
	}

	return mapping
}

// frequencyToMIDI converts frequency to MIDI note number (A4 = 69)
func (ce *ChromaExtractor) frequencyToMIDI(frequency float64) float64 {
	return 69.0 + 12.0*math.Log2(frequency/ce.params.TuningFreq)
}
