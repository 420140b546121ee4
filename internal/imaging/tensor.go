package imaging

import "fmt"

// Tensor is a dense row-major float32 tensor.
type Tensor struct {
	Shape []int
	Data  []float32
}

// NewTensor wraps data with the given shape. The element count must match.
func NewTensor(shape []int, data []float32) (Tensor, error) {
	n := numElements(shape)
	if n != len(data) {
		return Tensor{}, fmt.Errorf("shape %v needs %d values, got %d", shape, n, len(data))
	}
	return Tensor{Shape: append([]int(nil), shape...), Data: data}, nil
}

// Len returns the number of elements described by the shape.
func (t Tensor) Len() int {
	return numElements(t.Shape)
}

// Unsqueeze returns a view of t with a leading dimension of size 1.
// The data is shared.
func (t Tensor) Unsqueeze() Tensor {
	shape := make([]int, 0, len(t.Shape)+1)
	shape = append(shape, 1)
	shape = append(shape, t.Shape...)
	return Tensor{Shape: shape, Data: t.Data}
}

// Shape64 returns the shape as int64 values, the form ONNX runtimes expect.
func (t Tensor) Shape64() []int64 {
	out := make([]int64, len(t.Shape))
	for i, d := range t.Shape {
		out[i] = int64(d)
	}
	return out
}

func numElements(shape []int) int {
	if len(shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}
