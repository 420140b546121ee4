package imaging

import (
	"fmt"
	"image"
	"image/draw"
	"math"
	"math/rand"

	"github.com/nfnt/resize"
)

// Resize scales img to exactly width x height with bilinear interpolation.
// The aspect ratio is not preserved.
func Resize(img image.Image, width, height int) (image.Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: resize to %dx%d", ErrGeometry, width, height)
	}
	return resize.Resize(uint(width), uint(height), img, resize.Bilinear), nil
}

// ResizeShorter scales img so that its shorter side equals size, keeping the
// aspect ratio. The longer side is truncated to an integer.
func ResizeShorter(img image.Image, size int) (image.Image, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if size <= 0 || w == 0 || h == 0 {
		return nil, fmt.Errorf("%w: resize %dx%d to shorter side %d", ErrGeometry, w, h, size)
	}
	if w <= h {
		return Resize(img, size, int(float64(h)*float64(size)/float64(w)))
	}
	return Resize(img, int(float64(w)*float64(size)/float64(h)), size)
}

// CenterOrigin returns the start offset of a centred window of length crop
// inside a span of length size: size/2 - crop/2 with integer division.
func CenterOrigin(size, crop int) int {
	return size/2 - crop/2
}

// CenterCrop cuts a width x height window from the middle of img.
func CenterCrop(img image.Image, width, height int) (image.Image, error) {
	b := img.Bounds()
	x := CenterOrigin(b.Dx(), width)
	y := CenterOrigin(b.Dy(), height)
	return Crop(img, image.Rect(x, y, x+width, y+height))
}

// Crop copies the region r, given relative to the image origin, into a new
// image whose bounds start at (0, 0).
func Crop(img image.Image, r image.Rectangle) (image.Image, error) {
	b := img.Bounds()
	abs := r.Add(b.Min)
	if r.Empty() || !abs.In(b) {
		return nil, fmt.Errorf("%w: crop %v outside %dx%d image", ErrGeometry, r, b.Dx(), b.Dy())
	}
	dst := image.NewNRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, abs.Min, draw.Src)
	return dst, nil
}

// CropParams bounds the random-resized-crop window. Scale is the fraction of
// the source area, Ratio the width/height aspect ratio.
type CropParams struct {
	Scale    [2]float64
	Ratio    [2]float64
	Attempts int
}

// RandomCropRect picks a crop window inside a width x height image. It tries
// Attempts random windows with area and aspect drawn from p, and falls back to
// the largest centred window whose aspect ratio lies within p.Ratio.
func RandomCropRect(rng *rand.Rand, width, height int, p CropParams) image.Rectangle {
	area := float64(width * height)
	logLo, logHi := math.Log(p.Ratio[0]), math.Log(p.Ratio[1])

	for i := 0; i < p.Attempts; i++ {
		target := area * (p.Scale[0] + rng.Float64()*(p.Scale[1]-p.Scale[0]))
		aspect := math.Exp(logLo + rng.Float64()*(logHi-logLo))

		w := int(math.Round(math.Sqrt(target * aspect)))
		h := int(math.Round(math.Sqrt(target / aspect)))
		if w > 0 && h > 0 && w <= width && h <= height {
			x := rng.Intn(width - w + 1)
			y := rng.Intn(height - h + 1)
			return image.Rect(x, y, x+w, y+h)
		}
	}

	w, h := width, height
	in := float64(width) / float64(height)
	switch {
	case in < p.Ratio[0]:
		h = int(math.Round(float64(width) / p.Ratio[0]))
	case in > p.Ratio[1]:
		w = int(math.Round(float64(height) * p.Ratio[1]))
	}
	x := (width - w) / 2
	y := (height - h) / 2
	return image.Rect(x, y, x+w, y+h)
}

// RandomResizedCrop crops a random window chosen by RandomCropRect and
// resizes it to size x size.
func RandomResizedCrop(rng *rand.Rand, img image.Image, size int, p CropParams) (image.Image, error) {
	b := img.Bounds()
	r := RandomCropRect(rng, b.Dx(), b.Dy(), p)
	cropped, err := Crop(img, r)
	if err != nil {
		return nil, err
	}
	return Resize(cropped, size, size)
}
