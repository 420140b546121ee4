// Package imaging holds the pixel-level building blocks shared by the dataset
// pipeline and the predictor: decoding, crop and resize geometry, flips,
// colour-order conversion, per-channel normalization and the HWC to CHW
// layout change.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

var (
	// ErrDecode indicates the input bytes are not a decodable 3-channel image.
	ErrDecode = errors.New("imaging: cannot decode image")

	// ErrGeometry indicates a crop or resize request that does not fit the image.
	ErrGeometry = errors.New("imaging: invalid geometry")
)

// Decode decodes JPEG, PNG, BMP or WebP bytes. Grayscale and paletted images
// are accepted and expanded to three channels when converted to Pixels; alpha
// is dropped.
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty input", ErrDecode)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if img.Bounds().Empty() {
		return nil, format, fmt.Errorf("%w: %s image has no pixels", ErrDecode, format)
	}
	return img, format, nil
}
