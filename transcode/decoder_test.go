package transcode

import (
	"context"
	"errors"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/RyanBlaney/sonido-analyzer/analyzer"
	aerrors "github.com/RyanBlaney/sonido-analyzer/errors"
)

func TestDecodeWAVRoundTrip(t *testing.T) {
	t.Parallel()

	const frames = 4410
	samples := make([]float64, frames*2)
	for i := range frames {
		samples[2*i] = 0.5 * math.Sin(2*math.Pi*440*float64(i)/44100)
		samples[2*i+1] = -0.25
	}

	for _, bitDepth := range []int{16, 24} {
		path := filepath.Join(t.TempDir(), "tone.wav")
		if err := WriteWAVFile(path, &analyzer.AudioBuffer{Samples: samples, SampleRate: 44100, Channels: 2}, bitDepth); err != nil {
			t.Fatalf("WriteWAVFile(%d): %v", bitDepth, err)
		}

		buf, err := NewDecoder(nil, nil).DecodeFile(context.Background(), path)
		if err != nil {
			t.Fatalf("DecodeFile(%d): %v", bitDepth, err)
		}

		if buf.SampleRate != 44100 || buf.Channels != 2 {
			t.Errorf("%d-bit: got %d Hz, %d channels", bitDepth, buf.SampleRate, buf.Channels)
		}
		if len(buf.Samples) != len(samples) {
			t.Fatalf("%d-bit: %d samples, want %d", bitDepth, len(buf.Samples), len(samples))
		}

		tolerance := 2.0 / float64(int64(1)<<(bitDepth-1))
		for i := range samples {
			if math.Abs(buf.Samples[i]-samples[i]) > tolerance {
				t.Fatalf("%d-bit: sample %d = %f, want %f", bitDepth, i, buf.Samples[i], samples[i])
			}
		}
	}
}

func TestDecodeMissingFile(t *testing.T) {
	t.Parallel()

	_, err := NewDecoder(nil, nil).DecodeFile(context.Background(), filepath.Join(t.TempDir(), "nope.mp3"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist, got %v", err)
	}

	var de *aerrors.DecodeError
	if !errors.As(err, &de) || de.Stage != "open" {
		t.Errorf("expected open-stage *DecodeError, got %v", err)
	}
}

func TestDecodeDirectory(t *testing.T) {
	t.Parallel()

	_, err := NewDecoder(nil, nil).DecodeFile(context.Background(), t.TempDir())
	if !errors.Is(err, aerrors.ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestDecodeInvalidWAVFallsBackToFFmpeg(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "broken.wav")
	if err := os.WriteFile(path, []byte("definitely not RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}

	config := DefaultDecoderConfig()
	config.FFprobePath = filepath.Join(t.TempDir(), "missing-ffprobe")

	_, err := NewDecoder(config, nil).DecodeFile(context.Background(), path)
	var de *aerrors.DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DecodeError, got %v", err)
	}
	if de.Stage != "probe" {
		t.Errorf("Stage = %q, want probe", de.Stage)
	}
}

func TestParseFFprobeOutput(t *testing.T) {
	t.Parallel()

	d := NewDecoder(nil, nil)

	tests := []struct {
		name        string
		json        string
		wantErr     bool
		unsupported bool
		want        AudioMetadata
	}{
		{
			name: "mp3 stream",
			json: `{"streams":[{"codec_type":"audio","codec_name":"mp3","sample_rate":"44100","channels":2,"duration":"12.5","bit_rate":"320000","codec_long_name":"MP3 (MPEG audio layer 3)"}]}`,
			want: AudioMetadata{SampleRate: 44100, Channels: 2, Codec: "mp3", Duration: 12.5, Bitrate: 320000, Format: "MP3 (MPEG audio layer 3)"},
		},
		{
			name:        "no streams",
			json:        `{"streams":[]}`,
			wantErr:     true,
			unsupported: true,
		},
		{
			name:        "video stream",
			json:        `{"streams":[{"codec_type":"video","sample_rate":"0","channels":0}]}`,
			wantErr:     true,
			unsupported: true,
		},
		{
			name:    "bad channels",
			json:    `{"streams":[{"codec_type":"audio","sample_rate":"48000","channels":0}]}`,
			wantErr: true,
		},
		{
			name:    "garbage",
			json:    `not json`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := d.parseFFprobeOutput([]byte(tt.json))
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.unsupported && !errors.Is(err, aerrors.ErrUnsupportedFormat) {
				t.Errorf("expected ErrUnsupportedFormat, got %v", err)
			}
			if !tt.wantErr && *got != tt.want {
				t.Errorf("got %+v, want %+v", *got, tt.want)
			}
		})
	}
}

func TestBytesToFloat64(t *testing.T) {
	t.Parallel()

	data := make([]byte, 0, 20)
	for _, v := range []float64{0.5, -1} {
		bits := math.Float64bits(v)
		for i := range 8 {
			data = append(data, byte(bits>>(8*i)))
		}
	}
	data = append(data, 1, 2, 3) // trailing partial sample

	got := bytesToFloat64(data)
	if len(got) != 2 || got[0] != 0.5 || got[1] != -1 {
		t.Errorf("bytesToFloat64 = %v", got)
	}
	if bytesToFloat64(nil) != nil {
		t.Error("expected nil for empty input")
	}
}

func TestDecoderConfigValidate(t *testing.T) {
	t.Parallel()

	if err := DefaultDecoderConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	config := DefaultDecoderConfig()
	config.FFmpegPath = ""
	if err := config.Validate(); err == nil {
		t.Error("expected error for empty ffmpeg path")
	}

	config = DefaultDecoderConfig()
	config.Timeout = -1
	if err := config.Validate(); err == nil {
		t.Error("expected error for negative timeout")
	}
}

func TestBuildFFmpegArgs(t *testing.T) {
	t.Parallel()

	config := DefaultDecoderConfig()
	config.MaxDuration = 90e9
	args := NewDecoder(config, nil).buildFFmpegArgs(2, 22050)

	want := []string{"-vn", "-f", "f64le", "-ac", "2", "-ar", "22050", "-t", "90.00", "-v", "error"}
	if len(args) != len(want) {
		t.Fatalf("args = %v, want %v", args, want)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Errorf("args[%d] = %q, want %q", i, args[i], want[i])
		}
	}
}
