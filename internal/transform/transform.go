// Package transform composes the imaging primitives into the three
// preprocessing chains used by the project: the training and evaluation
// chains of the dataset pipeline and the single-image predictor chain.
//
// All chains normalize with Mean and Std. A model trained on tensors from
// Train or Eval only makes sense on tensors from Preprocess if the constants
// agree, so they are defined once here.
package transform

import (
	"fmt"
	"math/rand"

	"github.com/Brownie44l1/resnet-classifier/internal/imaging"
)

const (
	// ImageSize is the spatial size of every model input.
	ImageSize = 224

	// EvalResize is the shorter-side size before the evaluation centre crop.
	EvalResize = 256

	// PredictResize is the fixed square size before the predictor centre crop.
	PredictResize = 256

	// FlipProbability is the chance of a horizontal flip during training.
	FlipProbability = 0.5
)

var (
	// Mean is the ImageNet per-channel mean in RGB order, on the 0..255 scale.
	Mean = [3]float32{0.485 * 255, 0.456 * 255, 0.406 * 255}

	// Std is the ImageNet per-channel standard deviation in RGB order, on the 0..255 scale.
	Std = [3]float32{0.229 * 255, 0.224 * 255, 0.225 * 255}

	// TrainCrop bounds the random resized crop of the training chain.
	TrainCrop = imaging.CropParams{
		Scale:    [2]float64{0.08, 1.0},
		Ratio:    [2]float64{0.75, 1.333},
		Attempts: 10,
	}
)

// Func turns encoded image bytes into a normalized [3, 224, 224] tensor.
// rng is only consulted by randomized chains.
type Func func(data []byte, rng *rand.Rand) (imaging.Tensor, error)

// For returns the dataset chain for the given mode.
func For(training bool) Func {
	if training {
		return Train
	}
	return Eval
}

// Train decodes, random-resized-crops to 224, flips with probability 0.5,
// normalizes and transposes to CHW.
func Train(data []byte, rng *rand.Rand) (imaging.Tensor, error) {
	img, _, err := imaging.Decode(data)
	if err != nil {
		return imaging.Tensor{}, err
	}
	cropped, err := imaging.RandomResizedCrop(rng, img, ImageSize, TrainCrop)
	if err != nil {
		return imaging.Tensor{}, fmt.Errorf("random crop: %w", err)
	}
	px := imaging.FromImage(cropped)
	if rng.Float64() < FlipProbability {
		px.FlipHorizontal()
	}
	return finish(px)
}

// Eval decodes, resizes the shorter side to 256, centre-crops 224,
// normalizes and transposes to CHW.
func Eval(data []byte, _ *rand.Rand) (imaging.Tensor, error) {
	img, _, err := imaging.Decode(data)
	if err != nil {
		return imaging.Tensor{}, err
	}
	resized, err := imaging.ResizeShorter(img, EvalResize)
	if err != nil {
		return imaging.Tensor{}, fmt.Errorf("resize: %w", err)
	}
	cropped, err := imaging.CenterCrop(resized, ImageSize, ImageSize)
	if err != nil {
		return imaging.Tensor{}, fmt.Errorf("center crop: %w", err)
	}
	return finish(imaging.FromImage(cropped))
}

// Preprocess prepares one image for prediction: decode, resize to 256x256
// regardless of aspect ratio, centre-crop 224, convert to RGB, normalize and
// transpose to CHW. The result is deterministic for identical input bytes.
func Preprocess(data []byte) (imaging.Tensor, error) {
	img, _, err := imaging.Decode(data)
	if err != nil {
		return imaging.Tensor{}, err
	}
	resized, err := imaging.Resize(img, PredictResize, PredictResize)
	if err != nil {
		return imaging.Tensor{}, fmt.Errorf("resize: %w", err)
	}
	cropped, err := imaging.CenterCrop(resized, ImageSize, ImageSize)
	if err != nil {
		return imaging.Tensor{}, fmt.Errorf("center crop: %w", err)
	}
	return finish(imaging.FromImage(cropped))
}

func finish(px *imaging.Pixels) (imaging.Tensor, error) {
	px.ToRGB()
	if err := px.Normalize(Mean, Std); err != nil {
		return imaging.Tensor{}, err
	}
	return px.CHW(), nil
}
