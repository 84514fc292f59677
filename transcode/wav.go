package transcode

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/RyanBlaney/sonido-analyzer/analyzer"
	aerrors "github.com/RyanBlaney/sonido-analyzer/errors"
)

// wavFormatPCM is the WAVE_FORMAT_PCM tag; float and extensible WAVs are
// left to ffmpeg
const wavFormatPCM = 1

var errNeedsFFmpeg = errors.New("wav layout not supported natively")

// decodeWAVFile reads an integer PCM WAV file. Files go-audio cannot read
// return errNeedsFFmpeg so the caller can fall back.
func (d *Decoder) decodeWAVFile(filename string) (*analyzer.AudioBuffer, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, aerrors.NewDecodeError(filename, "open", "", err)
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("invalid wav header: %w", errNeedsFFmpeg)
	}
	if decoder.WavAudioFormat != wavFormatPCM {
		return nil, fmt.Errorf("wav format tag %d: %w", decoder.WavAudioFormat, errNeedsFFmpeg)
	}

	pcm, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, aerrors.NewDecodeError(filename, "decode", "", err)
	}

	samples, err := intBufferToFloat64(pcm, int(decoder.BitDepth))
	if err != nil {
		return nil, aerrors.NewDecodeError(filename, "convert", "", err)
	}
	if len(samples) == 0 {
		return nil, aerrors.NewDecodeError(filename, "convert", "", aerrors.ErrEmptyAudio)
	}

	return &analyzer.AudioBuffer{
		Samples:    samples,
		SampleRate: int(decoder.SampleRate),
		Channels:   int(decoder.NumChans),
	}, nil
}

// intBufferToFloat64 scales integer PCM to [-1, 1). 8-bit WAV is unsigned.
func intBufferToFloat64(buf *audio.IntBuffer, bitDepth int) ([]float64, error) {
	if bitDepth <= 0 || bitDepth > 32 {
		return nil, fmt.Errorf("unsupported bit depth %d: %w", bitDepth, aerrors.ErrUnsupportedFormat)
	}

	scale := 1.0 / float64(int64(1)<<(bitDepth-1))
	offset := 0
	if bitDepth == 8 {
		offset = 128
	}

	samples := make([]float64, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float64(v-offset) * scale
	}
	return samples, nil
}

// WriteWAVFile encodes buf as integer PCM at the given bit depth. Samples
// are clipped to [-1, 1].
func WriteWAVFile(filename string, buf *analyzer.AudioBuffer, bitDepth int) error {
	if bitDepth != 16 && bitDepth != 24 && bitDepth != 32 {
		return fmt.Errorf("unsupported bit depth %d", bitDepth)
	}

	file, err := os.Create(filename)
	if err != nil {
		return err
	}

	channels := max(buf.Channels, 1)
	encoder := wav.NewEncoder(file, buf.SampleRate, bitDepth, channels, wavFormatPCM)

	maxValue := float64(int64(1)<<(bitDepth-1) - 1)
	pcm := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: channels,
			SampleRate:  buf.SampleRate,
		},
		Data:           make([]int, len(buf.Samples)),
		SourceBitDepth: bitDepth,
	}
	for i, s := range buf.Samples {
		pcm.Data[i] = int(max(-1, min(1, s)) * maxValue)
	}

	if err := encoder.Write(pcm); err != nil {
		file.Close()
		return fmt.Errorf("write wav data: %w", err)
	}
	if err := encoder.Close(); err != nil {
		file.Close()
		return fmt.Errorf("finalize wav: %w", err)
	}
	return file.Close()
}
