package main

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/resnet-classifier/internal/config"
	"github.com/Brownie44l1/resnet-classifier/internal/imaging"
	"github.com/Brownie44l1/resnet-classifier/internal/model"
)

type scriptedModel struct {
	scores []float32
}

func (m *scriptedModel) Infer(context.Context, imaging.Tensor) ([]float32, error) {
	return m.scores, nil
}
func (m *scriptedModel) NumClasses() int { return len(m.scores) }
func (m *scriptedModel) Close() error    { return nil }

type scriptedLoader struct {
	model *scriptedModel
	err   error
}

func (l scriptedLoader) LoadCheckpoint(string) (model.Model, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.model, nil
}

func loaderReturning(l scriptedLoader) loaderFunc {
	return func(model.Device, *config.Config) model.CheckpointLoader { return l }
}

func fixture(t *testing.T) (ckpt, img string) {
	t.Helper()
	dir := t.TempDir()
	ckpt = filepath.Join(dir, "resnet50.onnx")
	require.NoError(t, os.WriteFile(ckpt, []byte("weights"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "resnet50_metadata.yaml"),
		[]byte("classes:\n  - Agaricus\n  - Amanita\n  - Boletus\n"), 0o644))

	pic := image.NewRGBA(image.Rect(0, 0, 300, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 300; x++ {
			pic.Set(x, y, color.RGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, pic, nil))
	img = filepath.Join(dir, "mushroom.jpg")
	require.NoError(t, os.WriteFile(img, buf.Bytes(), 0o644))
	return ckpt, img
}

func TestRunPredict(t *testing.T) {
	ckpt, img := fixture(t)
	var out bytes.Buffer

	err := runPredict(context.Background(), &out, predictOptions{checkpointPath: ckpt, imagePath: img, deviceTarget: "GPU"},
		loaderReturning(scriptedLoader{model: &scriptedModel{scores: []float32{0.1, 0.7, 0.2}}}), &config.Config{})
	require.NoError(t, err)
	assert.Equal(t, "predicted label: Amanita\n", out.String())
}

func TestRunPredictFailures(t *testing.T) {
	ckpt, img := fixture(t)
	good := loaderReturning(scriptedLoader{model: &scriptedModel{scores: []float32{0.1, 0.7, 0.2}}})

	garbage := filepath.Join(t.TempDir(), "garbage.jpg")
	require.NoError(t, os.WriteFile(garbage, []byte("nope"), 0o644))
	broken := filepath.Join(t.TempDir(), "broken.onnx")
	require.NoError(t, os.WriteFile(broken, []byte("junk"), 0o644))

	tests := []struct {
		name   string
		opts   predictOptions
		loader loaderFunc
		code   int
	}{
		{"BadDevice", predictOptions{ckpt, img, "TPU"}, good, ExitInvalidArgs},
		{"Undecodable", predictOptions{ckpt, garbage, "CPU"}, good, ExitDecodeError},
		{"BadCheckpoint", predictOptions{ckpt, img, "CPU"},
			loaderReturning(scriptedLoader{err: model.ErrCheckpointLoad}), ExitCheckpointError},
		{"LabelMismatch", predictOptions{ckpt, img, "CPU"},
			loaderReturning(scriptedLoader{model: &scriptedModel{scores: []float32{1, 2}}}), ExitLabelError},
		{"MissingImage", predictOptions{ckpt, filepath.Join(t.TempDir(), "none.jpg"), "CPU"}, good, ExitGeneralError},
		{"MissingCheckpoint", predictOptions{filepath.Join(t.TempDir(), "nope.onnx"), img, "CPU"}, good, ExitCheckpointError},
		{"BrokenCheckpointWithoutMetadata", predictOptions{broken, img, "CPU"}, onnxLoader, ExitCheckpointError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := runPredict(context.Background(), &out, tt.opts, tt.loader, &config.Config{})
			require.Error(t, err)
			assert.Equal(t, tt.code, exitCodeFromError(err))
			assert.Empty(t, out.String())
		})
	}
}

func TestRunPredictMetadataFromConfig(t *testing.T) {
	_, img := fixture(t)
	dir := t.TempDir()
	ckpt := filepath.Join(dir, "exported.onnx")
	require.NoError(t, os.WriteFile(ckpt, []byte("weights"), 0o644))
	labels := filepath.Join(t.TempDir(), "labels.yaml")
	require.NoError(t, os.WriteFile(labels, []byte("classes:\n  - Lactarius\n  - Russula\n  - Suillus\n"), 0o644))

	var out bytes.Buffer
	err := runPredict(context.Background(), &out, predictOptions{checkpointPath: ckpt, imagePath: img, deviceTarget: "CPU"},
		loaderReturning(scriptedLoader{model: &scriptedModel{scores: []float32{0.1, 0.2, 0.7}}}),
		&config.Config{MetadataPath: labels})
	require.NoError(t, err)
	assert.Equal(t, "predicted label: Suillus\n", out.String())
}

func TestCommandUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"MissingCheckpointFlag", []string{"--image_path", "x.jpg"}},
		{"MissingImageFlag", []string{"--checkpoint_path", "m.onnx"}},
		{"UnknownFlag", []string{"--checkpoint_path", "m.onnx", "--image_path", "x.jpg", "--batch", "2"}},
		{"PositionalArgs", []string{"--checkpoint_path", "m.onnx", "--image_path", "x.jpg", "extra"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newCommand(loaderReturning(scriptedLoader{}))
			cmd.SetArgs(tt.args)
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			err := cmd.Execute()
			require.Error(t, err)
			assert.Equal(t, ExitInvalidArgs, exitCodeFromError(err))
		})
	}
}

func TestCommandIgnoresDatasetSettings(t *testing.T) {
	ckpt, img := fixture(t)
	t.Setenv(config.EnvRankSize, "0")
	t.Setenv(config.EnvMetadataPath, "")

	var out bytes.Buffer
	cmd := newCommand(loaderReturning(scriptedLoader{model: &scriptedModel{scores: []float32{0.9, 0.05, 0.05}}}))
	cmd.SetArgs([]string{"--checkpoint_path", ckpt, "--image_path", img, "--device_target", "CPU"})
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "predicted label: Agaricus\n", out.String())
}

func TestDeviceTargetDefault(t *testing.T) {
	flag := newCommand(loaderReturning(scriptedLoader{})).Flags().Lookup("device_target")
	require.NotNil(t, flag)
	assert.Equal(t, "GPU", flag.DefValue)
}

func TestExitCodeFromError(t *testing.T) {
	assert.Equal(t, ExitSuccess, exitCodeFromError(nil))
	assert.Equal(t, ExitGeneralError, exitCodeFromError(errors.New("other")))
	assert.Equal(t, ExitLabelError, exitCodeFromError(model.ErrIndexOutOfRange))
}
