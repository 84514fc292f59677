package analyzer

import (
	"github.com/RyanBlaney/sonido-analyzer/algorithms/chroma"
	"github.com/RyanBlaney/sonido-analyzer/algorithms/temporal"
	"github.com/RyanBlaney/sonido-analyzer/algorithms/tonal"
	aerrors "github.com/RyanBlaney/sonido-analyzer/errors"
)

// Params holds every tunable of the analysis pipeline
type Params struct {
	SampleRate int `json:"sample_rate" yaml:"sample_rate"` // Internal processing rate

	// Onset / tempo path
	OnsetFrameSize  int     `json:"onset_frame_size" yaml:"onset_frame_size"`
	OnsetHopSize    int     `json:"onset_hop_size" yaml:"onset_hop_size"`
	OnsetMethod     string  `json:"onset_method" yaml:"onset_method"` // "flux" or "energy"
	MinBPM          float64 `json:"min_bpm" yaml:"min_bpm"`
	MaxBPM          float64 `json:"max_bpm" yaml:"max_bpm"`
	MusicalMinBPM   float64 `json:"musical_min_bpm" yaml:"musical_min_bpm"`
	MusicalMaxBPM   float64 `json:"musical_max_bpm" yaml:"musical_max_bpm"`
	ReferenceBPM    float64 `json:"reference_bpm" yaml:"reference_bpm"`
	OctaveTolerance float64 `json:"octave_tolerance" yaml:"octave_tolerance"`

	// Chroma / key path
	ChromaFrameSize  int     `json:"chroma_frame_size" yaml:"chroma_frame_size"`
	ChromaHopSize    int     `json:"chroma_hop_size" yaml:"chroma_hop_size"`
	VoicingThreshold float64 `json:"voicing_threshold" yaml:"voicing_threshold"`
	MinFreq          float64 `json:"min_freq" yaml:"min_freq"`
	MaxFreq          float64 `json:"max_freq" yaml:"max_freq"`
	TuningFreq       float64 `json:"tuning_freq" yaml:"tuning_freq"`
	KeyProfile       string  `json:"key_profile" yaml:"key_profile"` // "krumhansl" or "temperley"
}

// DefaultParams returns the standard 22.05 kHz configuration
func DefaultParams() Params {
	tempo := temporal.DefaultTempoParams()
	chromaParams := chroma.DefaultChromaParams()

	return Params{
		SampleRate:       22050,
		OnsetFrameSize:   1024,
		OnsetHopSize:     256,
		OnsetMethod:      temporal.OnsetSpectralFlux.String(),
		MinBPM:           tempo.MinBPM,
		MaxBPM:           tempo.MaxBPM,
		MusicalMinBPM:    tempo.MusicalMinBPM,
		MusicalMaxBPM:    tempo.MusicalMaxBPM,
		ReferenceBPM:     tempo.ReferenceBPM,
		OctaveTolerance:  tempo.OctaveTolerance,
		ChromaFrameSize:  chromaParams.FrameSize,
		ChromaHopSize:    chromaParams.HopSize,
		VoicingThreshold: chromaParams.VoicingThreshold,
		MinFreq:          chromaParams.MinFreq,
		MaxFreq:          chromaParams.MaxFreq,
		TuningFreq:       chromaParams.TuningFreq,
		KeyProfile:       tonal.KeyProfileKrumhansl.String(),
	}
}

// Validate returns a *errors.ParamError for the first unusable field
func (p Params) Validate() error {
	switch {
	case p.SampleRate <= 0:
		return &aerrors.ParamError{Field: "sample_rate", Reason: "must be positive"}
	case p.OnsetFrameSize <= 0:
		return &aerrors.ParamError{Field: "onset_frame_size", Reason: "must be positive"}
	case p.OnsetHopSize <= 0 || p.OnsetHopSize > p.OnsetFrameSize:
		return &aerrors.ParamError{Field: "onset_hop_size", Reason: "must be in (0, onset_frame_size]"}
	case p.ChromaFrameSize <= 0:
		return &aerrors.ParamError{Field: "chroma_frame_size", Reason: "must be positive"}
	case p.ChromaHopSize <= 0 || p.ChromaHopSize > p.ChromaFrameSize:
		return &aerrors.ParamError{Field: "chroma_hop_size", Reason: "must be in (0, chroma_frame_size]"}
	case p.MinBPM <= 0 || p.MaxBPM <= p.MinBPM:
		return &aerrors.ParamError{Field: "min_bpm", Reason: "need 0 < min_bpm < max_bpm"}
	case p.MusicalMinBPM <= 0 || p.MusicalMaxBPM <= p.MusicalMinBPM:
		return &aerrors.ParamError{Field: "musical_min_bpm", Reason: "need 0 < musical_min_bpm < musical_max_bpm"}
	case p.ReferenceBPM <= 0:
		return &aerrors.ParamError{Field: "reference_bpm", Reason: "must be positive"}
	case p.OctaveTolerance < 0 || p.OctaveTolerance >= 1:
		return &aerrors.ParamError{Field: "octave_tolerance", Reason: "must be in [0, 1)"}
	case p.VoicingThreshold < 0:
		return &aerrors.ParamError{Field: "voicing_threshold", Reason: "must not be negative"}
	case p.MinFreq <= 0 || p.MaxFreq <= p.MinFreq:
		return &aerrors.ParamError{Field: "min_freq", Reason: "need 0 < min_freq < max_freq"}
	case p.MaxFreq > float64(p.SampleRate)/2:
		return &aerrors.ParamError{Field: "max_freq", Reason: "above Nyquist"}
	case p.TuningFreq <= 0:
		return &aerrors.ParamError{Field: "tuning_freq", Reason: "must be positive"}
	}

	if _, err := temporal.ParseOnsetMethod(p.OnsetMethod); err != nil {
		return &aerrors.ParamError{Field: "onset_method", Reason: err.Error()}
	}
	if _, err := tonal.ParseKeyProfile(p.KeyProfile); err != nil {
		return &aerrors.ParamError{Field: "key_profile", Reason: err.Error()}
	}

	return nil
}

func (p Params) tempoParams() temporal.TempoParams {
	return temporal.TempoParams{
		MinBPM:          p.MinBPM,
		MaxBPM:          p.MaxBPM,
		MusicalMinBPM:   p.MusicalMinBPM,
		MusicalMaxBPM:   p.MusicalMaxBPM,
		ReferenceBPM:    p.ReferenceBPM,
		OctaveTolerance: p.OctaveTolerance,
	}
}

func (p Params) chromaParams() chroma.ChromaParams {
	return chroma.ChromaParams{
		FrameSize:        p.ChromaFrameSize,
		HopSize:          p.ChromaHopSize,
		MinFreq:          p.MinFreq,
		MaxFreq:          p.MaxFreq,
		TuningFreq:       p.TuningFreq,
		VoicingThreshold: p.VoicingThreshold,
	}
}
