// Command resnet-predict classifies a single image with a ResNet-50 ONNX
// checkpoint and prints the predicted label.
//
// The label table is read from METADATA_PATH when set, otherwise from the
// checkpoint's metadata file, see model.MetadataPath. The onnxruntime shared library location can be set
// with ONNXRUNTIME_LIB.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/Brownie44l1/resnet-classifier/internal/config"
	"github.com/Brownie44l1/resnet-classifier/internal/imaging"
	"github.com/Brownie44l1/resnet-classifier/internal/model"
	"github.com/Brownie44l1/resnet-classifier/internal/transform"
)

// CLI exit codes.
const (
	ExitSuccess         = 0
	ExitGeneralError    = 1
	ExitInvalidArgs     = 2
	ExitDecodeError     = 3
	ExitCheckpointError = 4
	ExitLabelError      = 5
)

type predictOptions struct {
	checkpointPath string
	imagePath      string
	deviceTarget   string
}

// loaderFunc builds the checkpoint loader for a device.
type loaderFunc func(device model.Device, cfg *config.Config) model.CheckpointLoader

func onnxLoader(device model.Device, cfg *config.Config) model.CheckpointLoader {
	return model.ONNXLoader{Device: device, LibraryPath: cfg.ORTLibraryPath}
}

func main() {
	defer klog.Flush()

	cmd := newCommand(onnxLoader)
	if err := cmd.Execute(); err != nil {
		os.Exit(exitCodeFromError(err))
	}
}

// errInvalidArgs marks command-line usage errors.
var errInvalidArgs = errors.New("invalid arguments")

func usageError(err error) error {
	return fmt.Errorf("%w: %v", errInvalidArgs, err)
}

func newCommand(newLoader loaderFunc) *cobra.Command {
	var opts predictOptions

	cmd := &cobra.Command{
		Use:   "resnet-predict",
		Short: "Classify one image with a ResNet-50 checkpoint",
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.NoArgs(cmd, args); err != nil {
				return usageError(err)
			}
			return nil
		},
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.validate(); err != nil {
				return err
			}
			cfg, err := config.LoadInference()
			if err != nil {
				return err
			}
			return runPredict(cmd.Context(), cmd.OutOrStdout(), opts, newLoader, cfg)
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})

	cmd.Flags().StringVar(&opts.checkpointPath, "checkpoint_path", "", "Checkpoint file path (required)")
	cmd.Flags().StringVar(&opts.imagePath, "image_path", "", "Image path (required)")
	cmd.Flags().StringVar(&opts.deviceTarget, "device_target", string(model.DeviceGPU), "Device target. Default: GPU")
	return cmd
}

func (o predictOptions) validate() error {
	var missing []string
	if o.checkpointPath == "" {
		missing = append(missing, "--checkpoint_path")
	}
	if o.imagePath == "" {
		missing = append(missing, "--image_path")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: required flag(s) %s not set", errInvalidArgs, strings.Join(missing, ", "))
	}
	return nil
}

func runPredict(ctx context.Context, out io.Writer, opts predictOptions, newLoader loaderFunc, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	device, err := model.ParseDevice(opts.deviceTarget)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(opts.imagePath)
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}
	tensor, err := transform.Preprocess(data)
	if err != nil {
		return fmt.Errorf("%s: %w", opts.imagePath, err)
	}

	loader := newLoader(device, cfg)
	var classifier *model.Classifier
	if cfg.MetadataPath != "" {
		classifier, err = model.OpenWithMetadata(opts.checkpointPath, cfg.MetadataPath, loader)
	} else {
		classifier, err = model.Open(opts.checkpointPath, loader)
	}
	if err != nil {
		return err
	}
	defer classifier.Close()

	pred, err := classifier.Classify(ctx, tensor)
	if err != nil {
		return err
	}
	klog.V(1).InfoS("Prediction", "index", pred.Index, "confidence", pred.Confidence)

	_, err = fmt.Fprintf(out, "predicted label: %s\n", pred.Label)
	return err
}

// exitCodeFromError maps error types to exit codes.
func exitCodeFromError(err error) int {
	if err == nil {
		return ExitSuccess
	}

	switch {
	case errors.Is(err, errInvalidArgs), errors.Is(err, model.ErrInvalidDevice):
		return ExitInvalidArgs
	case errors.Is(err, imaging.ErrDecode):
		return ExitDecodeError
	case errors.Is(err, model.ErrCheckpointLoad):
		return ExitCheckpointError
	case errors.Is(err, model.ErrLabelTable), errors.Is(err, model.ErrIndexOutOfRange):
		return ExitLabelError
	default:
		return ExitGeneralError
	}
}
