package model

import (
	"fmt"
	"os"

	"google.golang.org/protobuf/encoding/protowire"
)

// ONNX protobuf field numbers used by the inspector.
const (
	modelIRVersion    protowire.Number = 1
	modelProducerName protowire.Number = 2
	modelGraph        protowire.Number = 7

	graphName        protowire.Number = 2
	graphInitializer protowire.Number = 5
	graphInput       protowire.Number = 11
	graphOutput      protowire.Number = 12

	tensorProtoName protowire.Number = 8

	valueInfoName protowire.Number = 1
	valueInfoType protowire.Number = 2

	typeTensorType protowire.Number = 1

	tensorTypeElemType protowire.Number = 1
	tensorTypeShape    protowire.Number = 2

	shapeDim protowire.Number = 1

	dimValue protowire.Number = 1
)

// ElemTypeFloat is the ONNX element type of float32 tensors.
const ElemTypeFloat = 1

// TensorInfo describes one graph input or output. Symbolic or unknown
// dimensions are reported as -1.
type TensorInfo struct {
	Name     string
	ElemType int32
	Dims     []int64
}

// CheckpointInfo is what the inspector learns from an ONNX checkpoint
// without loading it into a runtime.
type CheckpointInfo struct {
	IRVersion int64
	Producer  string
	GraphName string
	Inputs    []TensorInfo
	Outputs   []TensorInfo
}

// NumClasses returns the static class dimension of the first output, or -1
// when it is symbolic.
func (c *CheckpointInfo) NumClasses() int {
	if len(c.Outputs) == 0 {
		return -1
	}
	dims := c.Outputs[0].Dims
	if len(dims) == 0 {
		return -1
	}
	return int(dims[len(dims)-1])
}

// Input returns the first graph input.
func (c *CheckpointInfo) Input() TensorInfo {
	return c.Inputs[0]
}

// Output returns the first graph output.
func (c *CheckpointInfo) Output() TensorInfo {
	return c.Outputs[0]
}

// ValidateImageInput checks the first input is a float [N, 3, size, size]
// tensor and the first output is [N, classes], where N is symbolic or 1.
func (c *CheckpointInfo) ValidateImageInput(size int) error {
	in := c.Input()
	if in.ElemType != ElemTypeFloat {
		return fmt.Errorf("%w: input %q has element type %d, want float", ErrCheckpointLoad, in.Name, in.ElemType)
	}
	want := []int64{-1, 3, int64(size), int64(size)}
	if len(in.Dims) != len(want) {
		return fmt.Errorf("%w: input %q has shape %v, want [N 3 %d %d]", ErrCheckpointLoad, in.Name, in.Dims, size, size)
	}
	for i := 1; i < len(want); i++ {
		if in.Dims[i] != want[i] {
			return fmt.Errorf("%w: input %q has shape %v, want [N 3 %d %d]", ErrCheckpointLoad, in.Name, in.Dims, size, size)
		}
	}
	if !singleBatch(in.Dims[0]) {
		return fmt.Errorf("%w: input %q has fixed batch size %d, want 1 or symbolic", ErrCheckpointLoad, in.Name, in.Dims[0])
	}
	if out := c.Output(); len(out.Dims) > 1 && !singleBatch(out.Dims[0]) {
		return fmt.Errorf("%w: output %q has fixed batch size %d, want 1 or symbolic", ErrCheckpointLoad, out.Name, out.Dims[0])
	}
	if n := c.NumClasses(); n <= 0 {
		return fmt.Errorf("%w: output %q has no static class dimension: %v", ErrCheckpointLoad, c.Output().Name, c.Output().Dims)
	}
	return nil
}

func singleBatch(dim int64) bool {
	return dim == -1 || dim == 1
}

// InspectCheckpoint reads an ONNX file and returns its graph signature.
func InspectCheckpoint(path string) (*CheckpointInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCheckpointLoad, err)
	}
	info, err := ParseCheckpoint(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return info, nil
}

// ParseCheckpoint decodes the parts of an ONNX ModelProto needed to wire a
// session: IR version, producer, and the graph's real inputs and outputs.
// Inputs that are initializers are left out.
func ParseCheckpoint(data []byte) (*CheckpointInfo, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrCheckpointLoad)
	}

	info := &CheckpointInfo{}
	var graph []byte
	err := walkFields(data, func(num protowire.Number, v []byte, x uint64) error {
		switch num {
		case modelIRVersion:
			info.IRVersion = int64(x)
		case modelProducerName:
			info.Producer = string(v)
		case modelGraph:
			graph = v
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: malformed model: %v", ErrCheckpointLoad, err)
	}
	if info.IRVersion <= 0 || graph == nil {
		return nil, fmt.Errorf("%w: not an ONNX model (ir_version %d, graph present %t)",
			ErrCheckpointLoad, info.IRVersion, graph != nil)
	}

	var inputs []TensorInfo
	initializers := make(map[string]bool)
	err = walkFields(graph, func(num protowire.Number, v []byte, _ uint64) error {
		switch num {
		case graphName:
			info.GraphName = string(v)
		case graphInitializer:
			name, err := parseInitializerName(v)
			if err != nil {
				return err
			}
			initializers[name] = true
		case graphInput:
			t, err := parseValueInfo(v)
			if err != nil {
				return err
			}
			inputs = append(inputs, t)
		case graphOutput:
			t, err := parseValueInfo(v)
			if err != nil {
				return err
			}
			info.Outputs = append(info.Outputs, t)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: malformed graph: %v", ErrCheckpointLoad, err)
	}

	for _, in := range inputs {
		if !initializers[in.Name] {
			info.Inputs = append(info.Inputs, in)
		}
	}
	if len(info.Inputs) == 0 || len(info.Outputs) == 0 {
		return nil, fmt.Errorf("%w: graph has %d inputs and %d outputs", ErrCheckpointLoad, len(info.Inputs), len(info.Outputs))
	}
	return info, nil
}

func parseInitializerName(b []byte) (string, error) {
	var name string
	err := walkFields(b, func(num protowire.Number, v []byte, _ uint64) error {
		if num == tensorProtoName {
			name = string(v)
		}
		return nil
	})
	return name, err
}

func parseValueInfo(b []byte) (TensorInfo, error) {
	var t TensorInfo
	var typ []byte
	err := walkFields(b, func(num protowire.Number, v []byte, _ uint64) error {
		switch num {
		case valueInfoName:
			t.Name = string(v)
		case valueInfoType:
			typ = v
		}
		return nil
	})
	if err != nil || typ == nil {
		return t, err
	}

	var tensorType []byte
	if err := walkFields(typ, func(num protowire.Number, v []byte, _ uint64) error {
		if num == typeTensorType {
			tensorType = v
		}
		return nil
	}); err != nil {
		return t, err
	}

	var shape []byte
	err = walkFields(tensorType, func(num protowire.Number, v []byte, x uint64) error {
		switch num {
		case tensorTypeElemType:
			t.ElemType = int32(x)
		case tensorTypeShape:
			shape = v
		}
		return nil
	})
	if err != nil {
		return t, err
	}

	err = walkFields(shape, func(num protowire.Number, v []byte, _ uint64) error {
		if num != shapeDim {
			return nil
		}
		dim := int64(-1)
		if err := walkFields(v, func(num protowire.Number, _ []byte, x uint64) error {
			if num == dimValue {
				dim = int64(x)
			}
			return nil
		}); err != nil {
			return err
		}
		if dim < 0 {
			dim = -1
		}
		t.Dims = append(t.Dims, dim)
		return nil
	})
	return t, err
}

// walkFields calls fn for every varint and length-delimited field in b.
// Other wire types are skipped.
func walkFields(b []byte, fn func(num protowire.Number, v []byte, x uint64) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		switch typ {
		case protowire.VarintType:
			x, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			if err := fn(num, nil, x); err != nil {
				return err
			}
			b = b[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			if err := fn(num, v, 0); err != nil {
				return err
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}
