package temporal

import (
	"context"
	"fmt"

	"github.com/RyanBlaney/sonido-analyzer/algorithms/spectral"
	"github.com/RyanBlaney/sonido-analyzer/algorithms/windowing"
	aerrors "github.com/RyanBlaney/sonido-analyzer/errors"
	"github.com/RyanBlaney/sonido-analyzer/logging"
)

// OnsetMethod selects the per-frame transient measure
type OnsetMethod int

const (
	// OnsetSpectralFlux measures positive frame-to-frame magnitude change
	OnsetSpectralFlux OnsetMethod = iota
	// OnsetEnergy measures frame energy (sum of squared samples)
	OnsetEnergy
)

func (m OnsetMethod) String() string {
	switch m {
	case OnsetSpectralFlux:
		return "flux"
	case OnsetEnergy:
		return "energy"
	default:
		return "unknown"
	}
}

// ParseOnsetMethod converts "flux" or "energy" to an OnsetMethod
func ParseOnsetMethod(s string) (OnsetMethod, error) {
	switch s {
	case "", "flux", "spectral_flux":
		return OnsetSpectralFlux, nil
	case "energy":
		return OnsetEnergy, nil
	default:
		return OnsetSpectralFlux, fmt.Errorf("unknown onset method %q", s)
	}
}

// OnsetEnvelope is a series of non-negative transient strengths, one per hop
type OnsetEnvelope struct {
	Values     []float64 `json:"values"`
	FrameSize  int       `json:"frame_size"`
	HopSize    int       `json:"hop_size"`
	SampleRate int       `json:"sample_rate"`
}

// HopDuration returns the time between envelope values in seconds
func (e *OnsetEnvelope) HopDuration() float64 {
	if e.SampleRate <= 0 {
		return 0
	}
	return float64(e.HopSize) / float64(e.SampleRate)
}

// OnsetEnvelopeExtractor turns a mono signal into an onset envelope
type OnsetEnvelopeExtractor struct {
	frameSize int
	hopSize   int
	method    OnsetMethod
	window    *windowing.Hann
	stft      *spectral.STFT
	flux      *spectral.SpectralFlux
	logger    logging.Logger
}

// NewOnsetEnvelopeExtractor creates an extractor with the given framing
func NewOnsetEnvelopeExtractor(frameSize, hopSize int, method OnsetMethod, logger logging.Logger) *OnsetEnvelopeExtractor {
	if logger == nil {
		logger = &logging.NoOpLogger{}
	}

	return &OnsetEnvelopeExtractor{
		frameSize: frameSize,
		hopSize:   hopSize,
		method:    method,
		window:    windowing.NewHann(frameSize, false),
		stft:      spectral.NewSTFT(),
		flux:      spectral.NewSpectralFlux(),
		logger: logger.WithFields(logging.Fields{
			"component": "onset_envelope",
		}),
	}
}

// Extract computes the onset envelope. A signal shorter than one frame
// returns ErrEmptyAudio.
func (oe *OnsetEnvelopeExtractor) Extract(ctx context.Context, signal []float64, sampleRate int) (*OnsetEnvelope, error) {
	if len(signal) < oe.frameSize {
		return nil, fmt.Errorf("%d samples, need at least %d: %w", len(signal), oe.frameSize, aerrors.ErrEmptyAudio)
	}

	var (
		values []float64
		err    error
	)

	switch oe.method {
	case OnsetEnergy:
		values, err = oe.energyEnvelope(ctx, signal)
	default:
		values, err = oe.fluxEnvelope(ctx, signal, sampleRate)
	}
	if err != nil {
		return nil, err
	}

	oe.logger.Debug("Onset envelope extracted", logging.Fields{
		"method":  oe.method.String(),
		"frames":  len(values),
		"samples": len(signal),
	})

	return &OnsetEnvelope{
		Values:     values,
		FrameSize:  oe.frameSize,
		HopSize:    oe.hopSize,
		SampleRate: sampleRate,
	}, nil
}

func (oe *OnsetEnvelopeExtractor) fluxEnvelope(ctx context.Context, signal []float64, sampleRate int) ([]float64, error) {
	stftResult, err := oe.stft.ComputeMagnitude(ctx, signal, oe.frameSize, oe.hopSize, sampleRate, oe.window)
	if err != nil {
		return nil, err
	}

	return oe.flux.Compute(stftResult.Magnitude), nil
}

func (oe *OnsetEnvelopeExtractor) energyEnvelope(ctx context.Context, signal []float64) ([]float64, error) {
	numFrames := spectral.FrameCount(len(signal), oe.frameSize, oe.hopSize)
	envelope := make([]float64, numFrames)

	for i := range numFrames {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		start := i * oe.hopSize
		sum := 0.0
		for _, s := range signal[start : start+oe.frameSize] {
			sum += s * s
		}
		envelope[i] = sum
	}

	return envelope, nil
}
