package unet

import (
	"errors"
	"fmt"

	"github.com/vq-sce/vqsce/internal/vq"
)

// Sentinel errors. Quantizer errors wrap the same values, so errors.Is works
// across package boundaries.
var (
	// ErrInvalidConfig reports a configuration no network can be built from.
	ErrInvalidConfig = vq.ErrInvalidConfig

	// ErrShapeMismatch reports incompatible tensor or stage shapes.
	ErrShapeMismatch = vq.ErrShapeMismatch

	// ErrStateDict reports a state dict whose keys do not match the network.
	ErrStateDict = errors.New("state dict mismatch")
)

// StageError names the stage in which a forward pass failed.
type StageError struct {
	Stage string
	Err   error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *StageError) Unwrap() error {
	return e.Err
}

func stageError(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}
