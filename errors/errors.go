package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for the deterministic failure modes of an analysis
var (
	ErrEmptyAudio        = errors.New("audio shorter than one analysis frame")
	ErrDegenerateSignal  = errors.New("signal has no usable energy")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// DecodeError is returned when input could not be turned into samples
type DecodeError struct {
	Path   string // Source file, empty for in-memory input
	Stage  string // "probe", "decode", "convert"
	Stderr string // Tool stderr when an external decoder was used
	Cause  error
}

func (e *DecodeError) Error() string {
	target := e.Path
	if target == "" {
		target = "<memory>"
	}
	if e.Stderr != "" {
		return fmt.Sprintf("decode %s failed at %s: %v: %s", target, e.Stage, e.Cause, e.Stderr)
	}
	return fmt.Sprintf("decode %s failed at %s: %v", target, e.Stage, e.Cause)
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}

// NewDecodeError creates a DecodeError
func NewDecodeError(path, stage, stderr string, cause error) *DecodeError {
	return &DecodeError{
		Path:   path,
		Stage:  stage,
		Stderr: stderr,
		Cause:  cause,
	}
}

// AnalysisError records which stage of the engine failed
type AnalysisError struct {
	Stage string // "input", "onset", "tempo", "chroma", "key"
	Cause error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Cause)
}

func (e *AnalysisError) Unwrap() error {
	return e.Cause
}

// Wrap tags err with stage. nil stays nil.
func Wrap(stage string, err error) error {
	if err == nil {
		return nil
	}
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return err
	}
	return &AnalysisError{Stage: stage, Cause: err}
}

// ParamError reports an invalid analysis parameter
type ParamError struct {
	Field  string
	Reason string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("invalid parameter %s: %s", e.Field, e.Reason)
}

// IsInputFailure reports whether err comes from the input itself rather
// than the environment (decoder binaries, cancellation, I/O)
func IsInputFailure(err error) bool {
	return errors.Is(err, ErrEmptyAudio) || errors.Is(err, ErrDegenerateSignal)
}
