package spectral

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/RyanBlaney/sonido-analyzer/algorithms/common"
)

// STFT provides Short-Time Fourier Transform functionality
type STFT struct {
	fft *FFT
}

// STFTResult holds the magnitude spectrogram of a signal
type STFTResult struct {
	Magnitude      [][]float64 `json:"magnitude"`       // Time x Frequency magnitude matrix
	FrameRMS       []float64   `json:"frame_rms"`       // Time-domain RMS of each frame before windowing
	TimeFrames     int         `json:"time_frames"`     // Number of time frames
	FreqBins       int         `json:"freq_bins"`       // Number of frequency bins
	SampleRate     int         `json:"sample_rate"`     // Sample rate
	WindowSize     int         `json:"window_size"`     // FFT window size
	HopSize        int         `json:"hop_size"`        // Hop size between frames
	FreqResolution float64     `json:"freq_resolution"` // Frequency resolution (Hz/bin)
	TimeResolution float64     `json:"time_resolution"` // Time resolution (seconds/frame)
}

// Window interface for windowing functions
type Window interface {
	ApplyInPlace(frame []float64) error
}

// NewSTFT creates a new STFT calculator
func NewSTFT() *STFT {
	return &STFT{
		fft: NewFFT(),
	}
}

// FrameCount returns floor((n-windowSize)/hopSize)+1, or 0 when the signal is
// shorter than one window
func FrameCount(n, windowSize, hopSize int) int {
	if windowSize <= 0 || hopSize <= 0 || n < windowSize {
		return 0
	}
	return (n-windowSize)/hopSize + 1
}

// ComputeMagnitude computes the magnitude STFT with a pool of workers. The
// signal is only read. Cancelling ctx stops the workers and returns ctx.Err().
func (s *STFT) ComputeMagnitude(ctx context.Context, signal []float64, windowSize int, hopSize int, sampleRate int, window Window) (*STFTResult, error) {
	if len(signal) == 0 {
		return nil, fmt.Errorf("empty signal")
	}

	if windowSize <= 0 {
		return nil, fmt.Errorf("window size must be positive")
	}

	if hopSize <= 0 {
		return nil, fmt.Errorf("hop size must be positive")
	}

	numFrames := FrameCount(len(signal), windowSize, hopSize)
	if numFrames <= 0 {
		return nil, fmt.Errorf("signal too short for given window size and hop size")
	}

	// Positive frequencies only
	freqBins := windowSize/2 + 1

	magnitude := make([][]float64, numFrames)
	frameRMS := make([]float64, numFrames)
	for i := range numFrames {
		magnitude[i] = make([]float64, freqBins)
	}

	numWorkers := s.getOptimalWorkerCount(numFrames)
	jobs := make(chan int, numWorkers)

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		frameErr error
	)

	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			// Reuse frame buffer for this worker
			frameBuffer := make([]float64, windowSize)

			for frameIdx := range jobs {
				if ctx.Err() != nil {
					continue
				}

				start := frameIdx * hopSize
				copy(frameBuffer, signal[start:start+windowSize])
				frameRMS[frameIdx] = common.RMS(frameBuffer)

				if window != nil {
					if err := window.ApplyInPlace(frameBuffer); err != nil {
						errOnce.Do(func() { frameErr = err })
						continue
					}
				}

				s.fft.MagnitudeInto(frameBuffer, magnitude[frameIdx])
			}
		}()
	}

	go func() {
		defer close(jobs)
		for frameIdx := range numFrames {
			select {
			case <-ctx.Done():
				return
			case jobs <- frameIdx:
			}
		}
	}()

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if frameErr != nil {
		return nil, fmt.Errorf("apply window: %w", frameErr)
	}

	return &STFTResult{
		Magnitude:      magnitude,
		FrameRMS:       frameRMS,
		TimeFrames:     numFrames,
		FreqBins:       freqBins,
		SampleRate:     sampleRate,
		WindowSize:     windowSize,
		HopSize:        hopSize,
		FreqResolution: float64(sampleRate) / float64(windowSize),
		TimeResolution: float64(hopSize) / float64(sampleRate),
	}, nil
}

// getOptimalWorkerCount determines the number of workers based on workload
func (s *STFT) getOptimalWorkerCount(numFrames int) int {
	numCPU := runtime.NumCPU()

	// For small workloads, don't over-parallelize
	if numFrames < 100 {
		return max(1, min(numCPU/2, numFrames))
	}

	if numFrames < 1000 {
		return min(numCPU, 8)
	}

	return numCPU
}
