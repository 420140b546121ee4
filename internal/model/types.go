package model

import (
	"context"
	"errors"

	"github.com/Brownie44l1/resnet-classifier/internal/imaging"
)

// Sentinel errors for checkpoint loading and classification.
var (
	// ErrCheckpointLoad indicates a missing, malformed or incompatible checkpoint.
	ErrCheckpointLoad = errors.New("model: cannot load checkpoint")

	// ErrLabelTable indicates a missing, empty or mismatched label table.
	ErrLabelTable = errors.New("model: invalid label table")

	// ErrIndexOutOfRange indicates the model predicted a class the label table does not have.
	ErrIndexOutOfRange = errors.New("model: predicted index out of label table range")

	// ErrInvalidDevice indicates an unsupported device target.
	ErrInvalidDevice = errors.New("model: unsupported device target")

	// ErrInputShape indicates an input tensor that does not match the model input.
	ErrInputShape = errors.New("model: input shape mismatch")
)

// Model is a loaded classification network in inference mode.
type Model interface {
	// Infer runs one forward pass and returns the score vector of the first
	// (and only) batch element.
	Infer(ctx context.Context, input imaging.Tensor) ([]float32, error)

	// NumClasses returns the width of the score vector.
	NumClasses() int

	Close() error
}

// CheckpointLoader turns a checkpoint artifact into a Model.
type CheckpointLoader interface {
	LoadCheckpoint(path string) (Model, error)
}

// Metadata is the sidecar file shipped next to a checkpoint.
type Metadata struct {
	InputShape  []int64  `json:"input_shape,omitempty"`
	OutputShape []int64  `json:"output_shape,omitempty"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size,omitempty"`
}

// Prediction is the outcome of classifying one image.
type Prediction struct {
	Index         int
	Label         string
	Confidence    float32
	Scores        []float32
	Probabilities []float32
}
