package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/RyanBlaney/sonido-analyzer/analyzer"
	"github.com/RyanBlaney/sonido-analyzer/config"
	aerrors "github.com/RyanBlaney/sonido-analyzer/errors"
	"github.com/RyanBlaney/sonido-analyzer/transcode"
)

type response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Result  json.RawMessage `json:"result"`
}

// writeFixture renders a C major triad with a click every half second
func writeFixture(t *testing.T, name string, silent bool) string {
	t.Helper()

	const rate = 22050
	samples := make([]float64, rate*6)
	if !silent {
		for i := range samples {
			gain := math.Min(1, float64(i)/(0.05*rate))
			for _, f := range []float64{261.63, 329.63, 392.00} {
				samples[i] += 0.2 * gain * math.Sin(2*math.Pi*f*float64(i)/rate)
			}
		}
		for pos := rate / 8; pos+4 < len(samples); pos += rate / 2 {
			for j := range 4 {
				samples[pos+j] += 0.6
			}
		}
	}

	path := filepath.Join(t.TempDir(), name)
	if err := transcode.WriteWAVFile(path, &analyzer.AudioBuffer{Samples: samples, SampleRate: rate, Channels: 1}, 16); err != nil {
		t.Fatalf("WriteWAVFile: %v", err)
	}
	return path
}

func newTestServer(t *testing.T, decoder analyzer.Decoder) http.Handler {
	t.Helper()

	engine, err := analyzer.New(analyzer.DefaultParams(), nil)
	if err != nil {
		t.Fatalf("analyzer.New: %v", err)
	}
	if decoder == nil {
		decoder = transcode.NewDecoder(nil, nil)
	}

	cfg := config.Default().Server
	cfg.RequestTimeout = 30 * time.Second
	return New(cfg, engine, decoder, nil).Handler()
}

func post(t *testing.T, h http.Handler, body string) (int, response) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/audio_analyzer/analyze", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON response %q: %v", rec.Body.String(), err)
	}
	return rec.Code, resp
}

func body(path string) string {
	b, _ := json.Marshal(map[string]string{"file_path": path})
	return string(b)
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(t, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestAnalyzeSuccess(t *testing.T) {
	path := writeFixture(t, "triad.wav", false)

	// Quotes around the path are stripped
	code, resp := post(t, newTestServer(t, nil), body(`"`+path+`"`))
	if code != http.StatusOK || !resp.Success {
		t.Fatalf("status %d, response %+v", code, resp)
	}

	var result struct {
		BPM      int    `json:"bpm"`
		Key      string `json:"key"`
		Scale    string `json:"scale"`
		KeyScale string `json:"keyscale"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("result: %v", err)
	}

	if result.BPM < 118 || result.BPM > 122 {
		t.Errorf("bpm = %d, want 120±2", result.BPM)
	}
	if result.Key != "C" || result.Scale != "major" || result.KeyScale != "C major" {
		t.Errorf("key = %+v, want C major", result)
	}
}

func TestAnalyzeStatusCodes(t *testing.T) {
	silent := writeFixture(t, "silent.wav", true)
	h := newTestServer(t, nil)

	tests := []struct {
		name    string
		body    string
		want    int
		wantErr string
	}{
		{"empty path", body(""), http.StatusBadRequest, "No file path provided."},
		{"only forbidden characters", body(`"<>|"`), http.StatusBadRequest, "No file path provided."},
		{"malformed body", `{"file_path": `, http.StatusBadRequest, "Invalid request body"},
		{"missing file", body(filepath.Join(t.TempDir(), "missing.wav")), http.StatusNotFound, "File not found"},
		{"directory", body(t.TempDir()), http.StatusNotFound, "File not found"},
		{"silent audio", body(silent), http.StatusUnprocessableEntity, "no usable energy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := post(t, h, tt.body)
			if code != tt.want {
				t.Errorf("status = %d, want %d (%s)", code, tt.want, resp.Error)
			}
			if resp.Success {
				t.Error("success = true")
			}
			if !strings.Contains(resp.Error, tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", resp.Error, tt.wantErr)
			}
		})
	}
}

type failingDecoder struct{ err error }

func (d failingDecoder) DecodeFile(context.Context, string) (*analyzer.AudioBuffer, error) {
	return nil, d.err
}

func TestAnalyzeDecoderFailures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.ogg")
	if err := os.WriteFile(path, []byte("OggS"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unsupported", aerrors.NewDecodeError(path, "probe", "", fmt.Errorf("%w: no audio", aerrors.ErrUnsupportedFormat)), http.StatusUnsupportedMediaType},
		{"ffmpeg crashed", aerrors.NewDecodeError(path, "decode", "segfault", fmt.Errorf("exit status 139")), http.StatusInternalServerError},
		{"timeout", aerrors.NewDecodeError(path, "decode", "", context.DeadlineExceeded), http.StatusGatewayTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := post(t, newTestServer(t, failingDecoder{tt.err}), body(path))
			if code != tt.want {
				t.Errorf("status = %d, want %d", code, tt.want)
			}
			if resp.Error == "" {
				t.Error("missing error message")
			}
		})
	}
}

func TestRunShutsDown(t *testing.T) {
	engine, err := analyzer.New(analyzer.DefaultParams(), nil)
	if err != nil {
		t.Fatal(err)
	}

	cfg := config.Default().Server
	cfg.Addr = "127.0.0.1:0"
	cfg.ShutdownTimeout = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(cfg, engine, transcode.NewDecoder(nil, nil), nil).Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestWriteJSONContentType(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusTeapot, map[string]int{"n": 1})

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"n":1`)) {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"empty audio", aerrors.Wrap("input", fmt.Errorf("no samples: %w", aerrors.ErrEmptyAudio)), http.StatusUnprocessableEntity},
		{"degenerate", aerrors.Wrap("chroma", aerrors.ErrDegenerateSignal), http.StatusUnprocessableEntity},
		{"unsupported", fmt.Errorf("probe: %w", aerrors.ErrUnsupportedFormat), http.StatusUnsupportedMediaType},
		{"not found", aerrors.NewDecodeError("x.wav", "open", "", os.ErrNotExist), http.StatusNotFound},
		{"deadline", aerrors.Wrap("tempo", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"other", fmt.Errorf("exit status 1"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
