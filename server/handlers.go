package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/RyanBlaney/sonido-analyzer/analyzer"
	aerrors "github.com/RyanBlaney/sonido-analyzer/errors"
	"github.com/RyanBlaney/sonido-analyzer/logging"
)

// maxRequestBody bounds the JSON body of an analyze request
const maxRequestBody = 64 << 10

type analyzeRequest struct {
	FilePath string `json:"file_path"`
}

type analyzeResponse struct {
	Success bool             `json:"success"`
	Result  *analyzer.Result `json:"result,omitempty"`
	Error   string           `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	ctx := logging.ContextWithFields(r.Context(), logging.Fields{
		"request_id": middleware.GetReqID(r.Context()),
	})
	logger := s.logger.WithContext(ctx)

	var req analyzeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	path := SanitizePath(req.FilePath)
	if path == "" {
		writeError(w, http.StatusBadRequest, "No file path provided.")
		return
	}

	if info, err := os.Stat(path); err != nil || info.IsDir() {
		writeError(w, http.StatusNotFound, "File not found: "+path)
		return
	}

	if s.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.RequestTimeout)
		defer cancel()
	}
	ctx = logging.ContextWithFields(ctx, logging.Fields{"file": path})

	result, err := s.analyzeFile(ctx, path)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			logger.Error(err, "Analysis failed", logging.Fields{"file": path})
		} else {
			logger.Warn("Analysis rejected input", logging.Fields{"file": path, "error": err.Error()})
		}
		writeError(w, status, err.Error())
		return
	}

	logger.Info("Analysis complete", logging.Fields{
		"file":     path,
		"bpm":      result.BPM,
		"keyscale": result.KeyScale,
	})

	writeJSON(w, http.StatusOK, analyzeResponse{Success: true, Result: result})
}

func (s *Server) analyzeFile(ctx context.Context, path string) (*analyzer.Result, error) {
	buf, err := s.decoder.DecodeFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return s.engine.Analyze(ctx, buf)
}

// statusFor maps analysis failures to HTTP status codes
func statusFor(err error) int {
	switch {
	case aerrors.IsInputFailure(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, aerrors.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, analyzeResponse{Success: false, Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
