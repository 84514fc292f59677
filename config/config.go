package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/RyanBlaney/sonido-analyzer/analyzer"
	"github.com/RyanBlaney/sonido-analyzer/logging"
	"github.com/RyanBlaney/sonido-analyzer/transcode"
)

// Config is the application configuration, loaded from YAML
type Config struct {
	LogLevel string                  `yaml:"log_level"` // "debug", "info", "warn", "error"
	Analysis analyzer.Params         `yaml:"analysis"`  // Engine parameters
	Decoder  transcode.DecoderConfig `yaml:"decoder"`   // ffmpeg settings
	Server   ServerConfig            `yaml:"server"`    // HTTP endpoint
	Batch    BatchConfig             `yaml:"batch"`     // CLI file analysis
}

// ServerConfig holds the HTTP endpoint settings
type ServerConfig struct {
	Addr            string        `yaml:"addr"`             // Listen address, e.g. ":5000"
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // http.Server ReadTimeout
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // http.Server WriteTimeout
	RequestTimeout  time.Duration `yaml:"request_timeout"`  // Deadline for one decode + analysis
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // Grace period on SIGINT/SIGTERM
}

// BatchConfig holds settings for analyzing many files at once
type BatchConfig struct {
	Workers int `yaml:"workers"` // Files in flight, 0 = one per CPU
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Analysis: analyzer.DefaultParams(),
		Decoder:  *transcode.DefaultDecoderConfig(),
		Server: ServerConfig{
			Addr:            ":5000",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    5 * time.Minute,
			RequestTimeout:  2 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
		},
		Batch: BatchConfig{
			Workers: 0,
		},
	}
}

// LoadConfig loads configuration from the YAML file at path. An empty path
// searches the default locations and falls back to built-in defaults.
// Environment overrides (SONIDO_*) are applied after the file, then the
// result is validated.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		for _, candidate := range []string{"sonido.yaml", "config.yaml"} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks every section
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if err := c.Analysis.Validate(); err != nil {
		return err
	}
	if err := c.Decoder.Validate(); err != nil {
		return fmt.Errorf("decoder: %w", err)
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must be set")
	}
	if c.Server.RequestTimeout < 0 || c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("server timeouts must not be negative")
	}
	if c.Batch.Workers < 0 {
		return fmt.Errorf("batch.workers must not be negative")
	}
	return nil
}

// Level returns the parsed log level
func (c *Config) Level() logging.Level {
	level, _ := logging.ParseLevel(c.LogLevel)
	return level
}

func (c *Config) applyEnvOverrides() error {
	logger := logging.WithFields(logging.Fields{
		"component": "config",
	})

	str := func(name string, dst *string) {
		if val, ok := os.LookupEnv(name); ok {
			*dst = val
			logger.Debug("Overriding from env", logging.Fields{"var": name, "value": val})
		}
	}

	integer := func(name string, dst *int) error {
		val, ok := os.LookupEnv(name)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = n
		logger.Debug("Overriding from env", logging.Fields{"var": name, "value": n})
		return nil
	}

	duration := func(name string, dst *time.Duration) error {
		val, ok := os.LookupEnv(name)
		if !ok {
			return nil
		}
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = d
		logger.Debug("Overriding from env", logging.Fields{"var": name, "value": d.String()})
		return nil
	}

	str("SONIDO_LOG_LEVEL", &c.LogLevel)
	str("SONIDO_SERVER_ADDR", &c.Server.Addr)
	str("SONIDO_FFMPEG_PATH", &c.Decoder.FFmpegPath)
	str("SONIDO_FFPROBE_PATH", &c.Decoder.FFprobePath)
	str("SONIDO_KEY_PROFILE", &c.Analysis.KeyProfile)
	str("SONIDO_ONSET_METHOD", &c.Analysis.OnsetMethod)

	for name, dst := range map[string]*int{
		"SONIDO_WORKERS":     &c.Batch.Workers,
		"SONIDO_SAMPLE_RATE": &c.Analysis.SampleRate,
	} {
		if err := integer(name, dst); err != nil {
			return err
		}
	}

	for name, dst := range map[string]*time.Duration{
		"SONIDO_REQUEST_TIMEOUT": &c.Server.RequestTimeout,
		"SONIDO_DECODE_TIMEOUT":  &c.Decoder.Timeout,
	} {
		if err := duration(name, dst); err != nil {
			return err
		}
	}

	return nil
}
