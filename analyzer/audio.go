package analyzer

import (
	"time"
)

// AudioBuffer holds decoded PCM samples normalized to [-1, 1]. Multi-channel
// audio is interleaved.
type AudioBuffer struct {
	Samples    []float64 `json:"-"`
	SampleRate int       `json:"sample_rate"`
	Channels   int       `json:"channels"`
}

// Frames returns the number of samples per channel
func (b *AudioBuffer) Frames() int {
	channels := max(b.Channels, 1)
	return len(b.Samples) / channels
}

// Duration returns the playback length of the buffer
func (b *AudioBuffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(b.Frames()) / float64(b.SampleRate) * float64(time.Second))
}

// mono returns a new slice with the channel average of each frame. The
// receiver is never written.
func (b *AudioBuffer) mono() []float64 {
	channels := max(b.Channels, 1)
	frames := b.Frames()
	out := make([]float64, frames)

	if channels == 1 {
		copy(out, b.Samples[:frames])
		return out
	}

	scale := 1.0 / float64(channels)
	for i := range frames {
		sum := 0.0
		for _, s := range b.Samples[i*channels : (i+1)*channels] {
			sum += s
		}
		out[i] = sum * scale
	}
	return out
}
