package model

import (
	"context"
	"fmt"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"k8s.io/klog/v2"

	"github.com/Brownie44l1/resnet-classifier/internal/imaging"
	"github.com/Brownie44l1/resnet-classifier/internal/transform"
)

// Device is a compute target for the ONNX runtime.
type Device string

const (
	DeviceGPU Device = "GPU"
	DeviceCPU Device = "CPU"
)

// ParseDevice normalizes a device target name. Matching is case-insensitive.
func ParseDevice(s string) (Device, error) {
	switch Device(strings.ToUpper(strings.TrimSpace(s))) {
	case DeviceGPU:
		return DeviceGPU, nil
	case DeviceCPU:
		return DeviceCPU, nil
	default:
		return "", fmt.Errorf("%w: %q (supported: GPU, CPU)", ErrInvalidDevice, s)
	}
}

// ONNXLoader loads ONNX checkpoints into onnxruntime sessions.
type ONNXLoader struct {
	// Device selects the execution provider. Empty means GPU.
	Device Device
	// LibraryPath points at the onnxruntime shared library. Empty uses the
	// runtime's default lookup.
	LibraryPath string
}

var (
	envMu   sync.Mutex
	envRefs int
)

func acquireEnvironment(libraryPath string) error {
	envMu.Lock()
	defer envMu.Unlock()
	if envRefs == 0 {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}
	envRefs++
	return nil
}

func releaseEnvironment() {
	envMu.Lock()
	defer envMu.Unlock()
	envRefs--
	if envRefs == 0 {
		if err := ort.DestroyEnvironment(); err != nil {
			klog.ErrorS(err, "Failed to destroy ONNX environment")
		}
	}
}

// LoadCheckpoint inspects the checkpoint, then opens an inference session
// with pre-allocated [1, 3, 224, 224] input and [1, classes] output tensors.
func (l ONNXLoader) LoadCheckpoint(path string) (Model, error) {
	device := l.Device
	if device == "" {
		device = DeviceGPU
	}

	info, err := InspectCheckpoint(path)
	if err != nil {
		return nil, err
	}
	if err := info.ValidateImageInput(transform.ImageSize); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	classes := info.NumClasses()

	if err := acquireEnvironment(l.LibraryPath); err != nil {
		return nil, err
	}
	m := &onnxModel{classes: classes, device: device, ownsEnv: true}
	ok := false
	defer func() {
		if !ok {
			m.Close()
		}
	}()

	inputShape := ort.NewShape(1, 3, transform.ImageSize, transform.ImageSize)
	outputShape := ort.NewShape(1, int64(classes))

	m.input, err = ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	m.output, err = ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	options, err := sessionOptions(device)
	if err != nil {
		return nil, err
	}
	if options != nil {
		defer options.Destroy()
	}

	m.session, err = ort.NewAdvancedSession(path,
		[]string{info.Input().Name}, []string{info.Output().Name},
		[]ort.ArbitraryTensor{m.input}, []ort.ArbitraryTensor{m.output},
		options)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create ONNX session: %v", ErrCheckpointLoad, err)
	}

	klog.InfoS("Checkpoint loaded", "path", path, "producer", info.Producer, "irVersion", info.IRVersion,
		"input", info.Input().Name, "output", info.Output().Name, "classes", classes, "device", device)
	ok = true
	return m, nil
}

// sessionOptions returns nil for the CPU default. For GPU it appends the CUDA
// provider, falling back to CPU with a warning when CUDA is unavailable.
func sessionOptions(device Device) (*ort.SessionOptions, error) {
	if device != DeviceGPU {
		return nil, nil
	}
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	cuda, err := ort.NewCUDAProviderOptions()
	if err != nil {
		klog.InfoS("CUDA provider unavailable, falling back to CPU", "err", err)
		return options, nil
	}
	defer cuda.Destroy()
	if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
		klog.InfoS("CUDA provider unavailable, falling back to CPU", "err", err)
	}
	return options, nil
}

type onnxModel struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	classes int
	device  Device
	ownsEnv bool
}

func (m *onnxModel) NumClasses() int {
	return m.classes
}

func (m *onnxModel) Infer(ctx context.Context, input imaging.Tensor) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	dst := m.input.GetData()
	if len(input.Data) != len(dst) {
		return nil, fmt.Errorf("%w: got %v (%d values), want [1 3 %d %d]", ErrInputShape,
			input.Shape, len(input.Data), transform.ImageSize, transform.ImageSize)
	}
	copy(dst, input.Data)

	if err := m.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	out := m.output.GetData()
	scores := make([]float32, len(out))
	copy(scores, out)
	return scores, nil
}

func (m *onnxModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	if m.session != nil {
		firstErr = m.session.Destroy()
		m.session = nil
	}
	if m.input != nil {
		if err := m.input.Destroy(); err != nil && firstErr == nil {
			firstErr = err
		}
		m.input = nil
	}
	if m.output != nil {
		if err := m.output.Destroy(); err != nil && firstErr == nil {
			firstErr = err
		}
		m.output = nil
	}
	if m.ownsEnv {
		m.ownsEnv = false
		releaseEnvironment()
	}
	return firstErr
}
