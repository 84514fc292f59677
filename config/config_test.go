package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	aerrors "github.com/RyanBlaney/sonido-analyzer/errors"
	"github.com/RyanBlaney/sonido-analyzer/logging"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sonido.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if cfg.Analysis.SampleRate != 22050 || cfg.Analysis.KeyProfile != "krumhansl" {
		t.Errorf("unexpected defaults: %+v", cfg.Analysis)
	}
	if cfg.Server.Addr != ":5000" {
		t.Errorf("Server.Addr = %q, want :5000", cfg.Server.Addr)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	cfg, err := LoadConfig("nonexistent.yaml")
	if err == nil || !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("expected read error, got %v", err)
	}
	if cfg != nil {
		t.Errorf("expected nil config on error, got %+v", cfg)
	}
}

func TestLoadConfig_UnmarshalError(t *testing.T) {
	path := writeTempConfig(t, ":\n:bad")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "failed to parse config file") {
		t.Errorf("expected unmarshal error, got %v", err)
	}
}

func TestLoadConfig_File(t *testing.T) {
	path := writeTempConfig(t, `
log_level: debug
analysis:
  key_profile: temperley
  max_bpm: 180
decoder:
  timeout: 5s
server:
  addr: "127.0.0.1:8080"
  request_timeout: 45s
batch:
  workers: 3
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Level() != logging.DebugLevel {
		t.Errorf("Level = %v, want debug", cfg.Level())
	}
	if cfg.Analysis.KeyProfile != "temperley" || cfg.Analysis.MaxBPM != 180 {
		t.Errorf("Analysis = %+v", cfg.Analysis)
	}
	// Unset fields keep their defaults
	if cfg.Analysis.MinBPM != 40 || cfg.Analysis.OnsetHopSize != 256 {
		t.Errorf("defaults lost: %+v", cfg.Analysis)
	}
	if cfg.Decoder.Timeout != 5*time.Second || cfg.Decoder.FFmpegPath != "ffmpeg" {
		t.Errorf("Decoder = %+v", cfg.Decoder)
	}
	if cfg.Server.Addr != "127.0.0.1:8080" || cfg.Server.RequestTimeout != 45*time.Second {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Batch.Workers != 3 {
		t.Errorf("Workers = %d, want 3", cfg.Batch.Workers)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	path := writeTempConfig(t, "batch:\n  workers: 3\n")

	t.Setenv("SONIDO_WORKERS", "7")
	t.Setenv("SONIDO_LOG_LEVEL", "warn")
	t.Setenv("SONIDO_REQUEST_TIMEOUT", "10s")
	t.Setenv("SONIDO_FFMPEG_PATH", "/opt/ffmpeg/bin/ffmpeg")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Batch.Workers != 7 {
		t.Errorf("Workers = %d, want 7", cfg.Batch.Workers)
	}
	if cfg.Level() != logging.WarnLevel {
		t.Errorf("Level = %v, want warn", cfg.Level())
	}
	if cfg.Server.RequestTimeout != 10*time.Second {
		t.Errorf("RequestTimeout = %v, want 10s", cfg.Server.RequestTimeout)
	}
	if cfg.Decoder.FFmpegPath != "/opt/ffmpeg/bin/ffmpeg" {
		t.Errorf("FFmpegPath = %q", cfg.Decoder.FFmpegPath)
	}
}

func TestLoadConfig_BadEnv(t *testing.T) {
	t.Setenv("SONIDO_WORKERS", "many")

	if _, err := LoadConfig(""); err == nil || !strings.Contains(err.Error(), "SONIDO_WORKERS") {
		t.Errorf("expected SONIDO_WORKERS error, got %v", err)
	}
}

func TestLoadConfig_InvalidAnalysis(t *testing.T) {
	path := writeTempConfig(t, "analysis:\n  min_bpm: 250\n")

	_, err := LoadConfig(path)
	var pe *aerrors.ParamError
	if !errors.As(err, &pe) || pe.Field != "min_bpm" {
		t.Errorf("expected min_bpm ParamError, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"empty addr", func(c *Config) { c.Server.Addr = "" }},
		{"negative workers", func(c *Config) { c.Batch.Workers = -1 }},
		{"empty ffprobe", func(c *Config) { c.Decoder.FFprobePath = "" }},
	}

	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected error")
			}
		})
	}
}
