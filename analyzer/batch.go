package analyzer

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/RyanBlaney/sonido-analyzer/logging"
)

// Decoder turns a file into an AudioBuffer
type Decoder interface {
	DecodeFile(ctx context.Context, path string) (*AudioBuffer, error)
}

// FileResult pairs a path with its analysis outcome
type FileResult struct {
	Path   string  `json:"path"`
	Result *Result `json:"result,omitempty"`
	Err    error   `json:"-"`
}

// AnalyzeFiles decodes and analyzes paths with at most workers files in
// flight. A failing file does not stop the others; results keep the order
// of paths. The returned error is only set when ctx ends early.
func (e *Engine) AnalyzeFiles(ctx context.Context, decoder Decoder, paths []string, workers int) ([]FileResult, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make([]FileResult, len(paths))

	var g errgroup.Group
	g.SetLimit(workers)

	for i, path := range paths {
		results[i].Path = path

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}

			fileCtx := logging.ContextWithFields(ctx, logging.Fields{"file": path})

			buf, err := decoder.DecodeFile(fileCtx, path)
			if err != nil {
				results[i].Err = err
				e.logger.WithContext(fileCtx).Warn("Decode failed", logging.Fields{"error": err.Error()})
				return nil
			}

			results[i].Result, results[i].Err = e.Analyze(fileCtx, buf)
			return nil
		})
	}

	// Failures are recorded per file; the closures always return nil
	g.Wait()

	return results, ctx.Err()
}
