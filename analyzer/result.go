package analyzer

import (
	"time"

	"github.com/RyanBlaney/sonido-analyzer/algorithms/temporal"
	"github.com/RyanBlaney/sonido-analyzer/algorithms/tonal"
)

// Result is the outcome of one analysis
type Result struct {
	BPM             int           `json:"bpm"`
	Key             string        `json:"key"`      // Tonic, sharps only, e.g. "F#"
	Scale           string        `json:"scale"`    // "major" or "minor"
	KeyScale        string        `json:"keyscale"` // e.g. "F# minor"
	Confidence      float64       `json:"confidence"`
	TempoConfidence float64       `json:"tempo_confidence"`
	Duration        time.Duration `json:"duration"`

	// Audio is the caller's buffer, passed through for downstream stages
	Audio *AudioBuffer `json:"-"`
}

// assemble combines the two feature paths into a Result
func assemble(tempo *temporal.TempoEstimate, key *tonal.KeyMatch, buf *AudioBuffer) *Result {
	return &Result{
		BPM:             tempo.BPM,
		Key:             key.Best.Key(),
		Scale:           key.Best.Scale.String(),
		KeyScale:        key.Best.KeyScale(),
		Confidence:      key.Confidence,
		TempoConfidence: tempo.Confidence,
		Duration:        buf.Duration(),
		Audio:           buf,
	}
}
