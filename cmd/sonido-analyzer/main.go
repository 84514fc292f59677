package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-analyzer/analyzer"
	"github.com/RyanBlaney/sonido-analyzer/config"
	"github.com/RyanBlaney/sonido-analyzer/logging"
	"github.com/RyanBlaney/sonido-analyzer/server"
	"github.com/RyanBlaney/sonido-analyzer/transcode"
)

var version = "0.1.0"

var (
	configPath string
	logLevel   string

	workers     int
	minBPM      float64
	maxBPM      float64
	sampleRate  int
	keyProfile  string
	onsetMethod string
	pretty      bool

	addr string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sonido-analyzer",
	Short: "Estimate tempo (BPM) and musical key of audio files",
	Long: `sonido-analyzer estimates the global tempo and key of a recording.

Tempo comes from the autocorrelation of a spectral-flux onset envelope,
key from Krumhansl-Schmuckler profile matching of an aggregate chromagram.`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [files...]",
	Short: "Analyze audio files and print one JSON result per file",
	Long: `Analyze audio files and print one JSON result per line.

Examples:
  sonido-analyzer analyze track.wav
  sonido-analyzer analyze --workers 4 --key-profile temperley *.mp3`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the analyzer over HTTP",
	Long: `Start the HTTP endpoint.

  POST /audio_analyzer/analyze  {"file_path": "/music/track.wav"}
  GET  /health`,
	RunE: runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config (default: ./sonido.yaml or ./config.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().IntVar(&sampleRate, "sample-rate", 0, "Internal analysis sample rate in Hz")
	rootCmd.PersistentFlags().Float64Var(&minBPM, "bpm-min", 0, "Slowest tempo searched")
	rootCmd.PersistentFlags().Float64Var(&maxBPM, "bpm-max", 0, "Fastest tempo searched")
	rootCmd.PersistentFlags().StringVar(&keyProfile, "key-profile", "", "Key profile: krumhansl or temperley")
	rootCmd.PersistentFlags().StringVar(&onsetMethod, "onset-method", "", "Onset envelope: flux or energy")

	analyzeCmd.Flags().IntVarP(&workers, "workers", "w", 0, "Files analyzed in parallel (0 = one per CPU)")
	analyzeCmd.Flags().BoolVar(&pretty, "pretty", false, "Indent JSON output across multiple lines instead of one result per line")

	serveCmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address, e.g. :5000")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(serveCmd)
}

// loadConfig reads the config file and applies explicitly set flags on top
func loadConfig(cmd *cobra.Command) (*config.Config, logging.Logger, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("sample-rate") {
		cfg.Analysis.SampleRate = sampleRate
	}
	if flags.Changed("bpm-min") {
		cfg.Analysis.MinBPM = minBPM
	}
	if flags.Changed("bpm-max") {
		cfg.Analysis.MaxBPM = maxBPM
	}
	if flags.Changed("key-profile") {
		cfg.Analysis.KeyProfile = keyProfile
	}
	if flags.Changed("onset-method") {
		cfg.Analysis.OnsetMethod = onsetMethod
	}
	if flags.Changed("workers") {
		cfg.Batch.Workers = workers
	}
	if flags.Changed("addr") {
		cfg.Server.Addr = addr
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// stdout carries results, logs go to stderr
	logger := logging.NewWriterLogger(os.Stderr, cfg.Level())
	logging.SetGlobalLogger(logger)

	return cfg, logger, nil
}

type fileOutput struct {
	Path    string           `json:"path"`
	Success bool             `json:"success"`
	Result  *analyzer.Result `json:"result,omitempty"`
	Error   string           `json:"error,omitempty"`
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := analyzer.New(cfg.Analysis, logger)
	if err != nil {
		return err
	}
	decoder := transcode.NewDecoder(&cfg.Decoder, logger)

	results, err := engine.AnalyzeFiles(ctx, decoder, args, cfg.Batch.Workers)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	if pretty {
		enc.SetIndent("", "  ")
	}

	failed := 0
	for _, r := range results {
		out := fileOutput{Path: r.Path, Success: r.Err == nil, Result: r.Result}
		if r.Err != nil {
			out.Error = r.Err.Error()
			failed++
		}
		if err := enc.Encode(out); err != nil {
			return err
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(results))
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := analyzer.New(cfg.Analysis, logger)
	if err != nil {
		return err
	}

	params := engine.Params()
	logger.Info("Analyzer configured", logging.Fields{
		"sample_rate":  params.SampleRate,
		"bpm_range":    fmt.Sprintf("%.0f-%.0f", params.MinBPM, params.MaxBPM),
		"onset_method": params.OnsetMethod,
		"key_profile":  params.KeyProfile,
	})

	decoder := transcode.NewDecoder(&cfg.Decoder, logger)
	if err := decoder.CheckAvailability(ctx); err != nil {
		logger.Warn("ffmpeg unavailable, only PCM WAV files can be decoded", logging.Fields{
			"error": err.Error(),
		})
	}

	return server.New(cfg.Server, engine, decoder, logger).Run(ctx)
}
