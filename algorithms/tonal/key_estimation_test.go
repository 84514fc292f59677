package tonal

import (
	"bytes"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/RyanBlaney/sonido-analyzer/algorithms/chroma"
	"github.com/RyanBlaney/sonido-analyzer/logging"
)

func chromaOf(pcs ...int) *chroma.Chromagram {
	c := &chroma.Chromagram{}
	for _, pc := range pcs {
		c.Vector[pc] = 1
	}
	return c
}

func newMatcher(t *testing.T, profile KeyProfile) *KeyProfileMatcher {
	t.Helper()
	km, err := NewKeyProfileMatcher(profile, nil)
	if err != nil {
		t.Fatalf("NewKeyProfileMatcher: %v", err)
	}
	return km
}

func TestMatchCMajorTriad(t *testing.T) {
	match := newMatcher(t, KeyProfileKrumhansl).Match(chromaOf(0, 4, 7))

	if match.Best.Tonic != 0 || match.Best.Scale != ScaleMajor {
		t.Errorf("Best = %s, want C major", match.Best.KeyScale())
	}
	if match.Confidence <= 0 {
		t.Errorf("Confidence = %f, want > 0", match.Confidence)
	}
}

func TestMatchAMinorTriad(t *testing.T) {
	match := newMatcher(t, KeyProfileKrumhansl).Match(chromaOf(9, 0, 4))

	if match.Score(9, ScaleMinor) <= match.Score(0, ScaleMajor) {
		t.Errorf("A minor %f <= C major %f", match.Score(9, ScaleMinor), match.Score(0, ScaleMajor))
	}
	if match.Best.KeyScale() != "A minor" {
		t.Errorf("Best = %s, want A minor", match.Best.KeyScale())
	}
}

func TestMatchRotation(t *testing.T) {
	for _, profile := range []KeyProfile{KeyProfileKrumhansl, KeyProfileTemperley} {
		km := newMatcher(t, profile)
		template := keyProfiles[profile]

		for _, scale := range []Scale{ScaleMajor, ScaleMinor} {
			base := template.major
			if scale == ScaleMinor {
				base = template.minor
			}

			for tonic := range chroma.NumPitchClasses {
				c := &chroma.Chromagram{Vector: chroma.Rotate(base, tonic)}
				match := km.Match(c)

				if match.Best.Tonic != tonic || match.Best.Scale != scale {
					t.Errorf("%s: rotated %s %s matched %s", profile, chroma.PitchClassName(tonic), scale, match.Best.KeyScale())
				}
				if math.Abs(match.Best.Score-1) > 1e-9 {
					t.Errorf("%s: self-correlation %f, want 1", profile, match.Best.Score)
				}
			}
		}
	}
}

func TestMatchFlatChroma(t *testing.T) {
	c := &chroma.Chromagram{}
	for i := range c.Vector {
		c.Vector[i] = 1 / math.Sqrt(12)
	}

	match := newMatcher(t, KeyProfileKrumhansl).Match(c)
	for i, s := range match.Scores {
		if s != 0 {
			t.Errorf("Scores[%d] = %f, want 0", i, s)
		}
	}
	// Ties resolve to the first major key
	if match.Best.Tonic != 0 || match.Best.Scale != ScaleMajor {
		t.Errorf("Best = %s, want C major", match.Best.KeyScale())
	}
	if match.Confidence != 0 {
		t.Errorf("Confidence = %f, want 0", match.Confidence)
	}
}

func TestMatchDeterministic(t *testing.T) {
	km := newMatcher(t, KeyProfileKrumhansl)
	c := chromaOf(2, 6, 9, 1)

	first, second := km.Match(c), km.Match(c)
	if *first != *second {
		t.Errorf("matches differ: %+v vs %+v", first, second)
	}
}

func TestParseKeyProfile(t *testing.T) {
	if p, err := ParseKeyProfile("temperley"); err != nil || p != KeyProfileTemperley {
		t.Errorf("ParseKeyProfile(temperley) = %v, %v", p, err)
	}
	if p, err := ParseKeyProfile(""); err != nil || p != KeyProfileKrumhansl {
		t.Errorf("ParseKeyProfile(\"\") = %v, %v", p, err)
	}
	if _, err := ParseKeyProfile("shaath"); err == nil {
		t.Error("expected error for unknown profile")
	}
	if _, err := NewKeyProfileMatcher(KeyProfile(42), nil); err == nil {
		t.Error("expected error for unknown profile value")
	}
}

func TestRelativeKey(t *testing.T) {
	tonic, scale := RelativeKey(0, ScaleMajor)
	if tonic != 9 || scale != ScaleMinor {
		t.Errorf("relative of C major = %s %s, want A minor", chroma.PitchClassName(tonic), scale)
	}
	tonic, scale = RelativeKey(9, ScaleMinor)
	if tonic != 0 || scale != ScaleMajor {
		t.Errorf("relative of A minor = %s %s, want C major", chroma.PitchClassName(tonic), scale)
	}
}

func TestMatchLogsRelativeKey(t *testing.T) {
	var buf bytes.Buffer
	km, err := NewKeyProfileMatcher(KeyProfileKrumhansl, logging.NewWriterLogger(&buf, logging.DebugLevel))
	if err != nil {
		t.Fatalf("NewKeyProfileMatcher: %v", err)
	}

	match := km.Match(chromaOf(0, 4, 7))

	out := buf.String()
	if !strings.Contains(out, "relative=A minor") {
		t.Errorf("expected relative key in debug line, got %q", out)
	}
	want := fmt.Sprintf("relative_score=%v", match.Score(9, ScaleMinor))
	if !strings.Contains(out, want) {
		t.Errorf("expected %q in debug line, got %q", want, out)
	}
}
