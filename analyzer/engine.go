package analyzer

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/RyanBlaney/sonido-analyzer/algorithms/chroma"
	"github.com/RyanBlaney/sonido-analyzer/algorithms/common"
	"github.com/RyanBlaney/sonido-analyzer/algorithms/temporal"
	"github.com/RyanBlaney/sonido-analyzer/algorithms/tonal"
	aerrors "github.com/RyanBlaney/sonido-analyzer/errors"
	"github.com/RyanBlaney/sonido-analyzer/logging"
)

// Engine estimates tempo and key of decoded audio. It holds no per-call
// state and is safe for concurrent use.
type Engine struct {
	params    Params
	resampler *common.Resampler
	onset     *temporal.OnsetEnvelopeExtractor
	tempo     *temporal.TempoEstimator
	chroma    *chroma.ChromaExtractor
	matcher   *tonal.KeyProfileMatcher
	logger    logging.Logger
}

// New creates an engine. A nil logger discards output.
func New(params Params, logger logging.Logger) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	if logger == nil {
		logger = &logging.NoOpLogger{}
	}

	// Validate already parsed both names
	method, _ := temporal.ParseOnsetMethod(params.OnsetMethod)
	profile, _ := tonal.ParseKeyProfile(params.KeyProfile)

	matcher, err := tonal.NewKeyProfileMatcher(profile, logger)
	if err != nil {
		return nil, err
	}

	return &Engine{
		params:    params,
		resampler: common.NewResampler(),
		onset:     temporal.NewOnsetEnvelopeExtractor(params.OnsetFrameSize, params.OnsetHopSize, method, logger),
		tempo:     temporal.NewTempoEstimator(params.tempoParams(), logger),
		chroma:    chroma.NewChromaExtractor(params.chromaParams(), logger),
		matcher:   matcher,
		logger: logger.WithFields(logging.Fields{
			"component": "analyzer",
		}),
	}, nil
}

// Params returns the engine configuration
func (e *Engine) Params() Params {
	return e.params
}

// Analyze runs the tempo and key paths concurrently over buf and joins them.
// buf is only read; the returned Result points back at it. Failures are
// *errors.AnalysisError values naming the failing stage.
func (e *Engine) Analyze(ctx context.Context, buf *AudioBuffer) (*Result, error) {
	logger := e.logger.WithContext(ctx).WithFields(logging.Fields{
		"function": "Analyze",
	})

	if buf == nil || len(buf.Samples) == 0 {
		return nil, aerrors.Wrap("input", fmt.Errorf("no samples: %w", aerrors.ErrEmptyAudio))
	}
	if buf.SampleRate <= 0 {
		return nil, aerrors.Wrap("input", &aerrors.ParamError{Field: "sample_rate", Reason: "buffer sample rate must be positive"})
	}

	start := time.Now()

	signal := buf.mono()
	if buf.SampleRate != e.params.SampleRate {
		signal = e.resampler.Resample(signal, buf.SampleRate, e.params.SampleRate)
	}

	if len(signal) < e.params.OnsetFrameSize {
		return nil, aerrors.Wrap("input", fmt.Errorf("%d samples at %d Hz, need at least %d: %w",
			len(signal), e.params.SampleRate, e.params.OnsetFrameSize, aerrors.ErrEmptyAudio))
	}

	var (
		tempo *temporal.TempoEstimate
		key   *tonal.KeyMatch
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		envelope, err := e.onset.Extract(gctx, signal, e.params.SampleRate)
		if err != nil {
			return aerrors.Wrap("onset", err)
		}
		tempo, err = e.tempo.Estimate(gctx, envelope)
		return aerrors.Wrap("tempo", err)
	})

	g.Go(func() error {
		chromagram, err := e.chroma.Extract(gctx, signal, e.params.SampleRate)
		if err != nil {
			return aerrors.Wrap("chroma", err)
		}
		key = e.matcher.Match(chromagram)
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Debug("Analysis failed", logging.Fields{
			"error":   err.Error(),
			"samples": len(signal),
		})
		return nil, err
	}

	result := assemble(tempo, key, buf)

	logger.Debug("Analysis complete", logging.Fields{
		"bpm":         result.BPM,
		"keyscale":    result.KeyScale,
		"confidence":  result.Confidence,
		"duration_s":  result.Duration.Seconds(),
		"elapsed_ms":  time.Since(start).Milliseconds(),
		"sample_rate": buf.SampleRate,
		"channels":    buf.Channels,
	})

	return result, nil
}
