package temporal

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/RyanBlaney/sonido-analyzer/algorithms/common"
	aerrors "github.com/RyanBlaney/sonido-analyzer/errors"
	"github.com/RyanBlaney/sonido-analyzer/logging"
)

// acfSmoothRadius is the half-width of the box filter applied to the
// autocorrelation before peak picking. Pulse spread and fractional beat
// periods put the energy of one beat period across neighbouring lags.
const acfSmoothRadius = 2

// TempoParams configures the tempo search
type TempoParams struct {
	MinBPM          float64 `json:"min_bpm" yaml:"min_bpm"`                   // Slowest tempo searched
	MaxBPM          float64 `json:"max_bpm" yaml:"max_bpm"`                   // Fastest tempo searched
	MusicalMinBPM   float64 `json:"musical_min_bpm" yaml:"musical_min_bpm"`   // Preferred range lower bound
	MusicalMaxBPM   float64 `json:"musical_max_bpm" yaml:"musical_max_bpm"`   // Preferred range upper bound
	ReferenceBPM    float64 `json:"reference_bpm" yaml:"reference_bpm"`       // Octave tie-break target
	OctaveTolerance float64 `json:"octave_tolerance" yaml:"octave_tolerance"` // Relative strength slack for octave candidates
}

// DefaultTempoParams returns the default search configuration
func DefaultTempoParams() TempoParams {
	return TempoParams{
		MinBPM:          40,
		MaxBPM:          208,
		MusicalMinBPM:   60,
		MusicalMaxBPM:   180,
		ReferenceBPM:    120,
		OctaveTolerance: 0.10,
	}
}

// TempoEstimate is the outcome of a tempo search
type TempoEstimate struct {
	BPM        int     `json:"bpm"`        // Rounded tempo
	RawBPM     float64 `json:"raw_bpm"`    // Tempo before rounding
	Lag        float64 `json:"lag"`        // Beat period in envelope frames
	Confidence float64 `json:"confidence"` // r(lag)/r(0), clamped to [0, 1]
}

// tempoCandidate is one octave alternative considered by the estimator
type tempoCandidate struct {
	lag      float64
	bpm      float64
	strength float64
}

// TempoEstimator finds the dominant periodicity of an onset envelope
type TempoEstimator struct {
	params TempoParams
	logger logging.Logger
}

// NewTempoEstimator creates a new tempo estimator
func NewTempoEstimator(params TempoParams, logger logging.Logger) *TempoEstimator {
	if logger == nil {
		logger = &logging.NoOpLogger{}
	}

	return &TempoEstimator{
		params: params,
		logger: logger.WithFields(logging.Fields{
			"component": "tempo_estimator",
		}),
	}
}

// Estimate returns the global tempo of the envelope
func (te *TempoEstimator) Estimate(ctx context.Context, envelope *OnsetEnvelope) (*TempoEstimate, error) {
	hop := envelope.HopDuration()
	if hop <= 0 {
		return nil, fmt.Errorf("invalid hop duration %f", hop)
	}

	minLag := int(math.Ceil(60.0 / (te.params.MaxBPM * hop)))
	maxLag := int(math.Floor(60.0 / (te.params.MinBPM * hop)))

	// Autocorrelation is needed a few lags past the search range for the
	// smoothing and parabolic refinement
	acfLen := min(len(envelope.Values), maxLag+acfSmoothRadius+2)
	lo := max(minLag, acfSmoothRadius+1)
	hi := min(maxLag, acfLen-acfSmoothRadius-2)
	if lo > hi {
		return te.fallback(len(envelope.Values)), nil
	}

	if common.Sum(envelope.Values) <= common.Epsilon {
		return nil, fmt.Errorf("onset envelope is silent: %w", aerrors.ErrDegenerateSignal)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	acf := te.autocorrelation(envelope.Values, acfLen)
	if acf[0] <= common.Epsilon {
		return nil, fmt.Errorf("onset envelope has no variation: %w", aerrors.ErrDegenerateSignal)
	}

	smoothed := te.smooth(acf)

	peakLag := te.findPeak(smoothed, lo, hi)
	top := te.candidateAt(smoothed, peakLag, hop)

	chosen := top
	eligible := []tempoCandidate{top}
	for _, target := range []float64{top.lag / 2, top.lag * 2} {
		alt, ok := te.candidateNear(smoothed, target, lo, hi, hop)
		if ok && alt.strength >= (1-te.params.OctaveTolerance)*top.strength {
			eligible = append(eligible, alt)
		}
	}

	bestDist := math.Inf(1)
	for _, c := range eligible {
		if c.bpm < te.params.MusicalMinBPM || c.bpm > te.params.MusicalMaxBPM {
			continue
		}
		if dist := math.Abs(math.Log2(c.bpm / te.params.ReferenceBPM)); dist < bestDist {
			bestDist = dist
			chosen = c
		}
	}

	confLag := min(max(int(math.Round(chosen.lag)), 0), len(acf)-1)
	estimate := &TempoEstimate{
		BPM:        int(math.Round(chosen.bpm)),
		RawBPM:     chosen.bpm,
		Lag:        chosen.lag,
		Confidence: common.Clamp(acf[confLag]/acf[0], 0, 1),
	}

	te.logger.Debug("Tempo estimated", logging.Fields{
		"peak_bpm":   top.bpm,
		"chosen_bpm": chosen.bpm,
		"candidates": len(eligible),
		"confidence": estimate.Confidence,
	})

	return estimate, nil
}

// fallback reports the reference tempo with zero confidence for envelopes
// too short to hold a single period of the slowest searched tempo
func (te *TempoEstimator) fallback(frames int) *TempoEstimate {
	te.logger.Debug("Onset envelope too short for tempo search, using reference tempo", logging.Fields{
		"frames":        frames,
		"min_bpm":       te.params.MinBPM,
		"max_bpm":       te.params.MaxBPM,
		"reference_bpm": te.params.ReferenceBPM,
	})

	return &TempoEstimate{
		BPM:        int(math.Round(te.params.ReferenceBPM)),
		RawBPM:     te.params.ReferenceBPM,
		Confidence: 0,
	}
}

// autocorrelation computes the biased autocorrelation of the mean-removed
// envelope for lags [0, maxLag)
func (te *TempoEstimator) autocorrelation(values []float64, maxLag int) []float64 {
	centered := common.RemoveMean(values)
	n := len(centered)

	acf := make([]float64, maxLag)
	for lag := range maxLag {
		acf[lag] = floats.Dot(centered[:n-lag], centered[lag:]) / float64(n)
	}

	return acf
}

// smooth applies a centered box sum; lags without a full neighbourhood stay 0
func (te *TempoEstimator) smooth(acf []float64) []float64 {
	smoothed := make([]float64, len(acf))
	for l := acfSmoothRadius; l < len(acf)-acfSmoothRadius; l++ {
		smoothed[l] = floats.Sum(acf[l-acfSmoothRadius : l+acfSmoothRadius+1])
	}
	return smoothed
}

// findPeak returns the strongest local maximum in [lo, hi], falling back to
// the plain maximum when the range is monotonic
func (te *TempoEstimator) findPeak(smoothed []float64, lo, hi int) int {
	best, bestLocal := lo, -1
	for l := lo; l <= hi; l++ {
		if smoothed[l] > smoothed[best] {
			best = l
		}
		if smoothed[l] >= smoothed[l-1] && smoothed[l] >= smoothed[l+1] {
			if bestLocal < 0 || smoothed[l] > smoothed[bestLocal] {
				bestLocal = l
			}
		}
	}

	if bestLocal >= 0 {
		return bestLocal
	}
	return best
}

// candidateNear looks for the strongest lag within one frame of target
func (te *TempoEstimator) candidateNear(smoothed []float64, target float64, lo, hi int, hop float64) (tempoCandidate, bool) {
	center := int(math.Round(target))
	from, to := max(center-1, lo), min(center+1, hi)
	if from > to {
		return tempoCandidate{}, false
	}

	best := from
	for l := from + 1; l <= to; l++ {
		if smoothed[l] > smoothed[best] {
			best = l
		}
	}

	return te.candidateAt(smoothed, best, hop), true
}

func (te *TempoEstimator) candidateAt(smoothed []float64, lag int, hop float64) tempoCandidate {
	refined := float64(lag) + common.ParabolicPeak(smoothed, lag)
	return tempoCandidate{
		lag:      refined,
		bpm:      60.0 / (refined * hop),
		strength: smoothed[lag],
	}
}
