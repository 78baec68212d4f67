package classify

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrArtifactNotFound is returned when a model reference resolves to nothing.
	ErrArtifactNotFound = errors.New("classify: model artifact not found")

	// ErrUnsupportedFormat is returned for artifacts the engines cannot read.
	ErrUnsupportedFormat = errors.New("classify: unsupported model format")

	// ErrBadMetadata is returned when the sidecar metadata is unusable.
	ErrBadMetadata = errors.New("classify: invalid model metadata")

	// ErrEmptyPredictions is returned when a model produced no scores.
	ErrEmptyPredictions = errors.New("classify: empty prediction set")

	// ErrMalformedFrame is returned when a frame cannot be fed to the model.
	ErrMalformedFrame = errors.New("classify: malformed frame")

	// ErrModelClosed is returned when evaluating a closed model.
	ErrModelClosed = errors.New("classify: model closed")

	// ErrUnknownEngine is returned by NewEngine for unregistered engines.
	ErrUnknownEngine = errors.New("classify: unknown engine")
)

// ModelLoadError is a failure to load a model artifact.
// It is not retried automatically.
type ModelLoadError struct {
	Artifact string
	Err      error
}

// Error implements the error interface.
func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Artifact, e.Err)
}

// Unwrap returns the underlying error.
func (e *ModelLoadError) Unwrap() error {
	return e.Err
}

// InferenceError is a failure to evaluate one frame.
type InferenceError struct {
	Model string
	Err   error
}

// Error implements the error interface.
func (e *InferenceError) Error() string {
	if e.Model == "" {
		return fmt.Sprintf("inference: %v", e.Err)
	}
	return fmt.Sprintf("inference [%s]: %v", e.Model, e.Err)
}

// Unwrap returns the underlying error.
func (e *InferenceError) Unwrap() error {
	return e.Err
}

// LoadError wraps err as a *ModelLoadError unless it already is one.
func LoadError(artifact string, err error) error {
	if err == nil {
		return nil
	}
	var le *ModelLoadError
	if errors.As(err, &le) {
		return err
	}
	return &ModelLoadError{Artifact: artifact, Err: err}
}

// EvalError wraps err as an *InferenceError unless it already is one.
func EvalError(model string, err error) error {
	if err == nil {
		return nil
	}
	var ie *InferenceError
	if errors.As(err, &ie) {
		return err
	}
	return &InferenceError{Model: model, Err: err}
}
