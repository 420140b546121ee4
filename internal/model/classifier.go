package model

import (
	"context"
	"fmt"
	"math"
	"os"

	"k8s.io/klog/v2"

	"github.com/Brownie44l1/resnet-classifier/internal/imaging"
)

// Classifier pairs a model with its label table.
type Classifier struct {
	model  Model
	labels LabelTable
}

// NewClassifier checks that labels has one entry per model output.
func NewClassifier(m Model, labels LabelTable) (*Classifier, error) {
	if err := labels.Validate(m.NumClasses()); err != nil {
		return nil, err
	}
	return &Classifier{model: m, labels: labels}, nil
}

// Open loads the checkpoint at path with loader and the label table found by
// MetadataPath, and returns a classifier ready for inference. The checkpoint
// is loaded first, so a missing or broken checkpoint reports
// ErrCheckpointLoad even when no metadata file sits next to it.
func Open(path string, loader CheckpointLoader) (*Classifier, error) {
	return open(path, loader, func() (string, error) { return MetadataPath(path) })
}

// OpenWithMetadata is Open with an explicit metadata file.
func OpenWithMetadata(path, metadataPath string, loader CheckpointLoader) (*Classifier, error) {
	return open(path, loader, func() (string, error) { return metadataPath, nil })
}

func open(path string, loader CheckpointLoader, metadata func() (string, error)) (*Classifier, error) {
	if err := checkCheckpointFile(path); err != nil {
		return nil, err
	}
	m, err := loader.LoadCheckpoint(path)
	if err != nil {
		return nil, err
	}

	metaPath, err := metadata()
	if err != nil {
		m.Close()
		return nil, err
	}
	labels, err := LoadLabelTable(metaPath)
	if err != nil {
		m.Close()
		return nil, err
	}
	c, err := NewClassifier(m, labels)
	if err != nil {
		m.Close()
		return nil, err
	}
	klog.V(1).InfoS("Label table loaded", "path", metaPath, "classes", len(labels))
	return c, nil
}

func checkCheckpointFile(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCheckpointLoad, err)
	}
	if fi.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrCheckpointLoad, path)
	}
	return nil
}

// Labels returns the label table.
func (c *Classifier) Labels() LabelTable {
	return c.labels
}

// Classify runs a single [3, H, W] image through the model and returns the
// highest-scoring label. Ties go to the lowest index.
func (c *Classifier) Classify(ctx context.Context, img imaging.Tensor) (*Prediction, error) {
	scores, err := c.model.Infer(ctx, img.Unsqueeze())
	if err != nil {
		return nil, err
	}
	idx := Argmax(scores)
	if idx < 0 {
		return nil, fmt.Errorf("model returned no scores")
	}
	label, err := c.labels.Lookup(idx)
	if err != nil {
		return nil, err
	}
	probs := Softmax(scores)
	return &Prediction{
		Index:         idx,
		Label:         label,
		Confidence:    probs[idx],
		Scores:        scores,
		Probabilities: probs,
	}, nil
}

// Close releases the model.
func (c *Classifier) Close() error {
	return c.model.Close()
}

// Argmax returns the index of the first maximum, or -1 for an empty slice.
func Argmax(v []float32) int {
	if len(v) == 0 {
		return -1
	}
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

// Softmax converts raw scores into probabilities.
func Softmax(v []float32) []float32 {
	out := make([]float32, len(v))
	if len(v) == 0 {
		return out
	}
	maxV := v[Argmax(v)]
	var sum float64
	for i, x := range v {
		e := math.Exp(float64(x - maxV))
		out[i] = float32(e)
		sum += e
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}
