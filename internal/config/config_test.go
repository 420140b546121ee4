package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvRankSize, EnvWorkers, EnvORTLibrary, EnvPort, EnvModelPath,
		EnvMetadataPath, EnvDeviceTarget, EnvDatasetSeed} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.RankSize)
	assert.Equal(t, 0, cfg.RankID)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "GPU", cfg.DeviceTarget)
	assert.Nil(t, cfg.Seed)
}

func TestLoadFromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvRankSize, "4")
	t.Setenv(EnvWorkers, "2")
	t.Setenv(EnvDatasetSeed, "17")
	t.Setenv(EnvPort, "9000")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.RankSize)
	assert.Equal(t, 2, cfg.Workers)
	require.NotNil(t, cfg.Seed)
	assert.Equal(t, int64(17), *cfg.Seed)
	assert.Equal(t, "9000", cfg.Port)
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	// godotenv does not override variables that are set, even to "".
	require.NoError(t, os.Unsetenv(EnvRankSize))
	require.NoError(t, os.Unsetenv(EnvModelPath))

	path := filepath.Join(t.TempDir(), "train.env")
	require.NoError(t, os.WriteFile(path, []byte("RANK_SIZE=2\nMODEL_PATH=/ckpt/resnet.onnx\n"), 0o644))
	t.Cleanup(func() {
		os.Unsetenv(EnvRankSize)
		os.Unsetenv(EnvModelPath)
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.RankSize)
	assert.Equal(t, "/ckpt/resnet.onnx", cfg.ModelPath)
}

func TestLoadRejectsBadValues(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.env")

	for _, tt := range []struct{ key, value string }{
		{EnvRankSize, "two"},
		{EnvRankSize, "0"},
		{EnvWorkers, "many"},
		{EnvDatasetSeed, "1.5"},
	} {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			_, err := Load(missing)
			require.Error(t, err)
		})
	}
}

func TestLoadInferenceIgnoresDatasetSettings(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvRankSize, "0")
	t.Setenv(EnvWorkers, "many")
	t.Setenv(EnvMetadataPath, "/ckpt/labels.yaml")

	cfg, err := LoadInference(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "/ckpt/labels.yaml", cfg.MetadataPath)
	assert.Equal(t, "GPU", cfg.DeviceTarget)
	assert.Zero(t, cfg.RankSize)
	assert.Zero(t, cfg.Workers)

	_, err = Load(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
}
