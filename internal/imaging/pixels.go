package imaging

import (
	"fmt"
	"image"
	"image/color"
)

// ChannelOrder is the order of the three colour channels in an interleaved
// pixel buffer.
type ChannelOrder int

const (
	RGB ChannelOrder = iota
	BGR
)

func (o ChannelOrder) String() string {
	switch o {
	case RGB:
		return "RGB"
	case BGR:
		return "BGR"
	default:
		return fmt.Sprintf("ChannelOrder(%d)", int(o))
	}
}

// Pixels is an interleaved (HWC) three-channel float32 image.
type Pixels struct {
	Width  int
	Height int
	Order  ChannelOrder
	Data   []float32
}

// NewPixels allocates a zeroed width x height buffer in the given order.
func NewPixels(width, height int, order ChannelOrder) *Pixels {
	return &Pixels{
		Width:  width,
		Height: height,
		Order:  order,
		Data:   make([]float32, width*height*3),
	}
}

// FromImage converts img to RGB Pixels holding the 8-bit channel values as
// floats in [0, 255]. Alpha is ignored.
func FromImage(img image.Image) *Pixels {
	b := img.Bounds()
	p := NewPixels(b.Dx(), b.Dy(), RGB)

	if src, ok := img.(*image.NRGBA); ok {
		for y := 0; y < p.Height; y++ {
			row := src.Pix[(y+b.Min.Y-src.Rect.Min.Y)*src.Stride:]
			for x := 0; x < p.Width; x++ {
				s := (x + b.Min.X - src.Rect.Min.X) * 4
				d := (y*p.Width + x) * 3
				p.Data[d] = float32(row[s])
				p.Data[d+1] = float32(row[s+1])
				p.Data[d+2] = float32(row[s+2])
			}
		}
		return p
	}

	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			d := (y*p.Width + x) * 3
			p.Data[d] = float32(c.R)
			p.Data[d+1] = float32(c.G)
			p.Data[d+2] = float32(c.B)
		}
	}
	return p
}

// At returns the three channel values of pixel (x, y) in buffer order.
func (p *Pixels) At(x, y int) [3]float32 {
	i := (y*p.Width + x) * 3
	return [3]float32{p.Data[i], p.Data[i+1], p.Data[i+2]}
}

// ToRGB reorders the channels in place so that Order becomes RGB.
func (p *Pixels) ToRGB() {
	if p.Order == RGB {
		return
	}
	for i := 0; i+2 < len(p.Data); i += 3 {
		p.Data[i], p.Data[i+2] = p.Data[i+2], p.Data[i]
	}
	p.Order = RGB
}

// FlipHorizontal mirrors the image around its vertical axis in place.
func (p *Pixels) FlipHorizontal() {
	for y := 0; y < p.Height; y++ {
		row := p.Data[y*p.Width*3 : (y+1)*p.Width*3]
		for l, r := 0, p.Width-1; l < r; l, r = l+1, r-1 {
			li, ri := l*3, r*3
			row[li], row[ri] = row[ri], row[li]
			row[li+1], row[ri+1] = row[ri+1], row[li+1]
			row[li+2], row[ri+2] = row[ri+2], row[li+2]
		}
	}
}

// Normalize applies (v - mean[c]) * (1/std[c]) to every value in place.
// mean and std are given in RGB order whatever the buffer order is.
func (p *Pixels) Normalize(mean, std [3]float32) error {
	var m, inv [3]float32
	for c := 0; c < 3; c++ {
		rgb := c
		if p.Order == BGR {
			rgb = 2 - c
		}
		if std[rgb] == 0 {
			return fmt.Errorf("normalize: zero std for channel %d", rgb)
		}
		m[c] = mean[rgb]
		inv[c] = float32(1 / float64(std[rgb]))
	}
	for i := 0; i < len(p.Data); i += 3 {
		p.Data[i] = (p.Data[i] - m[0]) * inv[0]
		p.Data[i+1] = (p.Data[i+1] - m[1]) * inv[1]
		p.Data[i+2] = (p.Data[i+2] - m[2]) * inv[2]
	}
	return nil
}

// CHW transposes the interleaved buffer into a planar [3, H, W] tensor.
// Planes keep the buffer's channel order.
func (p *Pixels) CHW() Tensor {
	plane := p.Width * p.Height
	out := make([]float32, 3*plane)
	for i := 0; i < plane; i++ {
		out[i] = p.Data[i*3]
		out[plane+i] = p.Data[i*3+1]
		out[2*plane+i] = p.Data[i*3+2]
	}
	return Tensor{Shape: []int{3, p.Height, p.Width}, Data: out}
}
