package transcode

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/RyanBlaney/sonido-analyzer/analyzer"
	aerrors "github.com/RyanBlaney/sonido-analyzer/errors"
	"github.com/RyanBlaney/sonido-analyzer/logging"
)

// DecoderConfig holds decoder configuration
type DecoderConfig struct {
	FFmpegPath       string        `json:"ffmpeg_path" yaml:"ffmpeg_path"`               // Path to ffmpeg binary
	FFprobePath      string        `json:"ffprobe_path" yaml:"ffprobe_path"`             // Path to ffprobe binary
	Timeout          time.Duration `json:"timeout" yaml:"timeout"`                       // Timeout for ffmpeg operations
	TargetSampleRate int           `json:"target_sample_rate" yaml:"target_sample_rate"` // 0 keeps the native rate
	MaxDuration      time.Duration `json:"max_duration" yaml:"max_duration"`             // 0 decodes everything
	NativeWAV        bool          `json:"native_wav" yaml:"native_wav"`                 // Read PCM WAV without ffmpeg
}

// DefaultDecoderConfig returns default decoder configuration
func DefaultDecoderConfig() *DecoderConfig {
	return &DecoderConfig{
		FFmpegPath:       "ffmpeg",  // Assume in PATH
		FFprobePath:      "ffprobe", // Assume in PATH
		Timeout:          60 * time.Second,
		TargetSampleRate: 0,
		MaxDuration:      0, // No limit
		NativeWAV:        true,
	}
}

// Validate checks the decoder configuration
func (c *DecoderConfig) Validate() error {
	if c.FFmpegPath == "" || c.FFprobePath == "" {
		return fmt.Errorf("ffmpeg and ffprobe paths must be set")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative: %v", c.Timeout)
	}
	if c.TargetSampleRate < 0 {
		return fmt.Errorf("target sample rate must not be negative: %d", c.TargetSampleRate)
	}
	if c.MaxDuration < 0 {
		return fmt.Errorf("max duration must not be negative: %v", c.MaxDuration)
	}
	return nil
}

// AudioMetadata holds detected audio properties from FFprobe
type AudioMetadata struct {
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
	Codec      string  `json:"codec"`
	Duration   float64 `json:"duration"`
	Bitrate    int     `json:"bitrate"`
	Format     string  `json:"format"`
}

// Decoder turns audio files into analyzer buffers. PCM WAV files are read
// in-process, everything else goes through ffmpeg.
type Decoder struct {
	config *DecoderConfig
	logger logging.Logger
}

// NewDecoder creates a new audio decoder
func NewDecoder(config *DecoderConfig, logger logging.Logger) *Decoder {
	if config == nil {
		config = DefaultDecoderConfig()
	}
	if logger == nil {
		logger = &logging.NoOpLogger{}
	}
	return &Decoder{
		config: config,
		logger: logger.WithFields(logging.Fields{
			"component": "audio_decoder",
		}),
	}
}

// DecodeFile decodes an audio file into interleaved float samples
func (d *Decoder) DecodeFile(ctx context.Context, filename string) (*analyzer.AudioBuffer, error) {
	logger := d.logger.WithContext(ctx).WithFields(logging.Fields{
		"function": "DecodeFile",
		"filename": filename,
	})

	info, err := os.Stat(filename)
	if err != nil {
		return nil, aerrors.NewDecodeError(filename, "open", "", err)
	}
	if info.IsDir() {
		return nil, aerrors.NewDecodeError(filename, "open", "", fmt.Errorf("is a directory: %w", aerrors.ErrUnsupportedFormat))
	}

	if d.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.Timeout)
		defer cancel()
	}

	if d.config.NativeWAV && strings.EqualFold(filepath.Ext(filename), ".wav") {
		buf, err := d.decodeWAVFile(filename)
		if err == nil {
			logger.Debug("Decoded WAV natively", logging.Fields{
				"sample_rate": buf.SampleRate,
				"channels":    buf.Channels,
				"frames":      buf.Frames(),
			})
			return buf, nil
		}
		if !errors.Is(err, errNeedsFFmpeg) {
			return nil, err
		}
		logger.Debug("WAV needs ffmpeg", logging.Fields{"reason": err.Error()})
	}

	metadata, err := d.probeAudioFile(ctx, filename)
	if err != nil {
		logger.Error(err, "Failed to probe audio file")
		return nil, err
	}

	logger.Debug("Audio metadata detected", logging.Fields{
		"input_sample_rate": metadata.SampleRate,
		"input_channels":    metadata.Channels,
		"input_codec":       metadata.Codec,
		"input_duration":    metadata.Duration,
		"input_bitrate":     metadata.Bitrate,
	})

	return d.decodeFileWithFFmpeg(ctx, filename, metadata, logger)
}

// probeAudioFile uses ffprobe to get audio information from a file
func (d *Decoder) probeAudioFile(ctx context.Context, filename string) (*AudioMetadata, error) {
	args := []string{
		"-v", "error",
		"-print_format", "json",
		"-show_streams",
		"-select_streams", "a:0", // First audio stream only
		filename,
	}

	output, err := exec.CommandContext(ctx, d.config.FFprobePath, args...).Output()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, aerrors.NewDecodeError(filename, "probe", "", ctxErr)
		}
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			// ffprobe could not open the container
			return nil, aerrors.NewDecodeError(filename, "probe", strings.TrimSpace(string(exitError.Stderr)),
				fmt.Errorf("%w: %v", aerrors.ErrUnsupportedFormat, err))
		}
		return nil, aerrors.NewDecodeError(filename, "probe", "", err)
	}

	metadata, err := d.parseFFprobeOutput(output)
	if err != nil {
		return nil, aerrors.NewDecodeError(filename, "probe", "", err)
	}
	return metadata, nil
}

// parseFFprobeOutput parses ffprobe JSON to extract audio metadata
func (d *Decoder) parseFFprobeOutput(jsonData []byte) (*AudioMetadata, error) {
	var probe struct {
		Streams []struct {
			CodecType     string `json:"codec_type"`
			CodecName     string `json:"codec_name"`
			SampleRate    string `json:"sample_rate"`
			Channels      int    `json:"channels"`
			Duration      string `json:"duration"`
			BitRate       string `json:"bit_rate"`
			CodecLongName string `json:"codec_long_name"`
		} `json:"streams"`
	}

	if err := json.Unmarshal(jsonData, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	if len(probe.Streams) == 0 {
		return nil, fmt.Errorf("no audio streams found: %w", aerrors.ErrUnsupportedFormat)
	}

	stream := probe.Streams[0]

	if stream.CodecType != "audio" {
		return nil, fmt.Errorf("stream is not audio type %q: %w", stream.CodecType, aerrors.ErrUnsupportedFormat)
	}

	sampleRate, err := strconv.Atoi(stream.SampleRate)
	if err != nil || sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %q", stream.SampleRate)
	}

	duration, err := strconv.ParseFloat(stream.Duration, 64)
	if err != nil {
		duration = 0
	}

	bitrate, err := strconv.Atoi(stream.BitRate)
	if err != nil {
		bitrate = 0
	}

	if stream.Channels <= 0 || stream.Channels > 8 {
		return nil, fmt.Errorf("invalid channel count: %d", stream.Channels)
	}

	return &AudioMetadata{
		SampleRate: sampleRate,
		Channels:   stream.Channels,
		Codec:      stream.CodecName,
		Duration:   duration,
		Bitrate:    bitrate,
		Format:     stream.CodecLongName,
	}, nil
}

// decodeFileWithFFmpeg performs the actual audio decoding from a file
func (d *Decoder) decodeFileWithFFmpeg(ctx context.Context, filename string, metadata *AudioMetadata, logger logging.Logger) (*analyzer.AudioBuffer, error) {
	sampleRate := metadata.SampleRate
	if d.config.TargetSampleRate > 0 {
		sampleRate = d.config.TargetSampleRate
	}

	args := append([]string{"-i", filename}, d.buildFFmpegArgs(metadata.Channels, sampleRate)...)
	args = append(args, "pipe:1")

	logger.Debug("Running ffmpeg command", logging.Fields{
		"args": strings.Join(args, " "),
	})

	startTime := time.Now()
	output, err := exec.CommandContext(ctx, d.config.FFmpegPath, args...).Output()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, aerrors.NewDecodeError(filename, "decode", "", ctxErr)
		}
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			stderr := strings.TrimSpace(string(exitError.Stderr))
			logger.Error(err, "FFmpeg decode failed", logging.Fields{
				"stderr": stderr,
			})
			return nil, aerrors.NewDecodeError(filename, "decode", stderr, err)
		}
		return nil, aerrors.NewDecodeError(filename, "decode", "", err)
	}

	samples := bytesToFloat64(output)
	if len(samples) == 0 {
		return nil, aerrors.NewDecodeError(filename, "convert", "", aerrors.ErrEmptyAudio)
	}

	buf := &analyzer.AudioBuffer{
		Samples:    samples,
		SampleRate: sampleRate,
		Channels:   metadata.Channels,
	}

	logger.Debug("FFmpeg decode completed", logging.Fields{
		"output_samples":     len(samples),
		"output_sample_rate": sampleRate,
		"output_channels":    metadata.Channels,
		"output_duration":    buf.Duration().Seconds(),
		"decode_time":        time.Since(startTime).Seconds(),
	})

	return buf, nil
}

// buildFFmpegArgs builds the output arguments: raw float64 little-endian
// at the requested layout, ffmpeg's own output silenced
func (d *Decoder) buildFFmpegArgs(channels, sampleRate int) []string {
	args := []string{
		"-vn",
		"-f", "f64le",
		"-ac", strconv.Itoa(channels),
		"-ar", strconv.Itoa(sampleRate),
	}

	if d.config.MaxDuration > 0 {
		args = append(args, "-t", fmt.Sprintf("%.2f", d.config.MaxDuration.Seconds()))
	}

	return append(args, "-v", "error")
}

// bytesToFloat64 converts raw float64 bytes to []float64
func bytesToFloat64(data []byte) []float64 {
	if len(data)%8 != 0 {
		// Trim to multiple of 8 bytes
		data = data[:len(data)-(len(data)%8)]
	}

	if len(data) == 0 {
		return nil
	}

	sampleCount := len(data) / 8
	samples := make([]float64, sampleCount)

	for i := range sampleCount {
		bits := binary.LittleEndian.Uint64(data[i*8 : i*8+8])
		samples[i] = math.Float64frombits(bits)
	}

	return samples
}

// CheckAvailability verifies that ffmpeg and ffprobe can be executed
func (d *Decoder) CheckAvailability(ctx context.Context) error {
	if err := exec.CommandContext(ctx, d.config.FFmpegPath, "-version").Run(); err != nil {
		return fmt.Errorf("ffmpeg not found at %s: %w", d.config.FFmpegPath, err)
	}
	if err := exec.CommandContext(ctx, d.config.FFprobePath, "-version").Run(); err != nil {
		return fmt.Errorf("ffprobe not found at %s: %w", d.config.FFprobePath, err)
	}
	return nil
}
