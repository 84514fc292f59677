package tonal

import (
	"fmt"

	"github.com/RyanBlaney/sonido-analyzer/algorithms/chroma"
	"github.com/RyanBlaney/sonido-analyzer/algorithms/common"
	"github.com/RyanBlaney/sonido-analyzer/logging"
)

// tieTolerance is the correlation difference below which two keys count as
// equally good
const tieTolerance = 1e-9

// KeyProfile selects the reference template pair
type KeyProfile int

const (
	KeyProfileKrumhansl KeyProfile = iota
	KeyProfileTemperley
)

func (p KeyProfile) String() string {
	switch p {
	case KeyProfileKrumhansl:
		return "krumhansl"
	case KeyProfileTemperley:
		return "temperley"
	default:
		return "unknown"
	}
}

// ParseKeyProfile converts a profile name to a KeyProfile
func ParseKeyProfile(s string) (KeyProfile, error) {
	switch s {
	case "", "krumhansl", "ks":
		return KeyProfileKrumhansl, nil
	case "temperley":
		return KeyProfileTemperley, nil
	default:
		return KeyProfileKrumhansl, fmt.Errorf("unknown key profile %q", s)
	}
}

// Scale is major or minor
type Scale int

const (
	ScaleMajor Scale = iota
	ScaleMinor
)

func (s Scale) String() string {
	if s == ScaleMinor {
		return "minor"
	}
	return "major"
}

// keyProfileTemplate holds the canonical templates with C as tonic
type keyProfileTemplate struct {
	major [chroma.NumPitchClasses]float64
	minor [chroma.NumPitchClasses]float64
}

var keyProfiles = map[KeyProfile]keyProfileTemplate{
	// Krumhansl-Kessler probe-tone ratings
	KeyProfileKrumhansl: {
		major: [12]float64{6.35, 2.23, 3.48, 2.33, 4.38, 4.09, 2.52, 5.19, 2.39, 3.66, 2.29, 2.88},
		minor: [12]float64{6.33, 2.68, 3.52, 5.38, 2.60, 3.53, 2.54, 4.75, 3.98, 2.69, 3.34, 3.17},
	},
	// Temperley corpus-based profiles
	KeyProfileTemperley: {
		major: [12]float64{5.0, 2.0, 3.5, 2.0, 4.5, 4.0, 2.0, 4.5, 2.0, 3.5, 1.5, 4.0},
		minor: [12]float64{5.0, 2.0, 3.5, 4.5, 2.0, 4.0, 2.0, 4.5, 3.5, 2.0, 1.5, 4.0},
	},
}

// KeyCandidate is one of the 24 tonic/scale hypotheses
type KeyCandidate struct {
	Tonic int     `json:"tonic"` // Pitch class (0=C, 1=C#, ..., 11=B)
	Scale Scale   `json:"scale"`
	Score float64 `json:"score"` // Pearson correlation with the rotated template
}

// Key returns the tonic name, e.g. "F#"
func (kc KeyCandidate) Key() string {
	return chroma.PitchClassName(kc.Tonic)
}

// KeyScale returns e.g. "A minor"
func (kc KeyCandidate) KeyScale() string {
	return kc.Key() + " " + kc.Scale.String()
}

// KeyMatch is the outcome of matching a chromagram against every key
type KeyMatch struct {
	Best       KeyCandidate `json:"best"`
	Second     KeyCandidate `json:"second"`
	Scores     [24]float64  `json:"scores"`     // Index scale*12 + tonic
	Confidence float64      `json:"confidence"` // best - second, clamped to [0, 1]
}

// Score returns the correlation computed for tonic and scale
func (km *KeyMatch) Score(tonic int, scale Scale) float64 {
	return km.Scores[int(scale)*chroma.NumPitchClasses+chroma.Wrap(tonic)]
}

// KeyProfileMatcher implements Krumhansl-Schmuckler key finding
type KeyProfileMatcher struct {
	profile  KeyProfile
	template keyProfileTemplate
	logger   logging.Logger
}

// NewKeyProfileMatcher creates a matcher for the given template pair
func NewKeyProfileMatcher(profile KeyProfile, logger logging.Logger) (*KeyProfileMatcher, error) {
	template, ok := keyProfiles[profile]
	if !ok {
		return nil, fmt.Errorf("unknown key profile %d", profile)
	}

	if logger == nil {
		logger = &logging.NoOpLogger{}
	}

	return &KeyProfileMatcher{
		profile:  profile,
		template: template,
		logger: logger.WithFields(logging.Fields{
			"component": "key_matcher",
			"profile":   profile.String(),
		}),
	}, nil
}

// Match correlates the chromagram with all 24 rotated templates. Ties prefer
// major, then the lower tonic.
func (km *KeyProfileMatcher) Match(chromagram *chroma.Chromagram) *KeyMatch {
	match := &KeyMatch{}
	candidates := make([]KeyCandidate, 0, 24)

	for _, scale := range []Scale{ScaleMajor, ScaleMinor} {
		template := km.template.major
		if scale == ScaleMinor {
			template = km.template.minor
		}

		for tonic := range chroma.NumPitchClasses {
			rotated := chroma.Rotate(template, tonic)
			score := common.Correlation(chromagram.Vector[:], rotated[:])

			match.Scores[int(scale)*chroma.NumPitchClasses+tonic] = score
			candidates = append(candidates, KeyCandidate{Tonic: tonic, Scale: scale, Score: score})
		}
	}

	bestIdx := 0
	for i, c := range candidates {
		if c.Score > candidates[bestIdx].Score+tieTolerance {
			bestIdx = i
		}
	}

	secondIdx := -1
	for i, c := range candidates {
		if i == bestIdx {
			continue
		}
		if secondIdx < 0 || c.Score > candidates[secondIdx].Score+tieTolerance {
			secondIdx = i
		}
	}

	match.Best = candidates[bestIdx]
	match.Second = candidates[secondIdx]
	match.Confidence = common.Clamp(match.Best.Score-match.Second.Score, 0, 1)

	relTonic, relScale := RelativeKey(match.Best.Tonic, match.Best.Scale)
	relative := KeyCandidate{Tonic: relTonic, Scale: relScale, Score: match.Score(relTonic, relScale)}

	km.logger.Debug("Key matched", logging.Fields{
		"best":           match.Best.KeyScale(),
		"best_score":     match.Best.Score,
		"second":         match.Second.KeyScale(),
		"relative":       relative.KeyScale(),
		"relative_score": relative.Score,
		"confidence":     match.Confidence,
	})

	return match
}

// RelativeKey returns the relative major/minor of a key
func RelativeKey(tonic int, scale Scale) (int, Scale) {
	if scale == ScaleMajor {
		return chroma.Wrap(tonic - 3), ScaleMinor
	}
	return chroma.Wrap(tonic + 3), ScaleMajor
}
