// Package config reads the process environment once at start-up. Entry
// points pass the resulting values into the packages that need them.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"k8s.io/klog/v2"
)

// Environment variable names.
const (
	EnvRankSize     = "RANK_SIZE"
	EnvWorkers      = "NUM_PARALLEL_WORKERS"
	EnvORTLibrary   = "ONNXRUNTIME_LIB"
	EnvPort         = "PORT"
	EnvModelPath    = "MODEL_PATH"
	EnvMetadataPath = "METADATA_PATH"
	EnvDeviceTarget = "DEVICE_TARGET"
	EnvDatasetSeed  = "DATASET_SEED"
)

// DefaultEnvFile is loaded when present. Variables already set in the
// environment take precedence over it.
const DefaultEnvFile = ".env"

// Config holds the environment-derived settings.
type Config struct {
	// RankSize is the number of workers sharing a dataset.
	RankSize int
	// RankID is this process's worker index. Always 0 for now.
	RankID int
	// Workers is the decode/transform parallelism of the dataset pipeline.
	Workers int
	// Seed fixes dataset randomness when non-nil.
	Seed *int64

	ORTLibraryPath string
	DeviceTarget   string
	Port           string
	ModelPath      string
	MetadataPath   string
}

// Load reads envFiles (DefaultEnvFile when none are given; missing files are
// skipped) and then the process environment, including the dataset settings.
func Load(envFiles ...string) (*Config, error) {
	cfg, err := LoadInference(envFiles...)
	if err != nil {
		return nil, err
	}
	if err := cfg.loadDataset(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadInference is Load without the dataset settings, which are left at
// their zero values. RANK_SIZE, NUM_PARALLEL_WORKERS and DATASET_SEED are
// not read, so bad values there do not affect prediction.
func LoadInference(envFiles ...string) (*Config, error) {
	if err := loadEnvFiles(envFiles); err != nil {
		return nil, err
	}
	return &Config{
		ORTLibraryPath: os.Getenv(EnvORTLibrary),
		DeviceTarget:   getenv(EnvDeviceTarget, "GPU"),
		Port:           getenv(EnvPort, "8080"),
		ModelPath:      getenv(EnvModelPath, "models/resnet50.onnx"),
		MetadataPath:   os.Getenv(EnvMetadataPath),
	}, nil
}

func loadEnvFiles(envFiles []string) error {
	if len(envFiles) == 0 {
		envFiles = []string{DefaultEnvFile}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
		klog.V(1).InfoS("Loaded env file", "path", f)
	}
	return nil
}

func (c *Config) loadDataset() error {
	var err error
	if c.RankSize, err = intEnv(EnvRankSize, 1); err != nil {
		return err
	}
	if c.RankSize < 1 {
		return fmt.Errorf("%s must be at least 1, got %d", EnvRankSize, c.RankSize)
	}
	if c.Workers, err = intEnv(EnvWorkers, 8); err != nil {
		return err
	}
	if v := os.Getenv(EnvDatasetSeed); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvDatasetSeed, v, err)
		}
		c.Seed = &seed
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}
