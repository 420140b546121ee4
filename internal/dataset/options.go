package dataset

import "github.com/Brownie44l1/resnet-classifier/internal/transform"

const (
	// DefaultBatchSize is the number of samples per batch.
	DefaultBatchSize = 32

	// DefaultRepeat is the number of passes over the records.
	DefaultRepeat = 1

	// DefaultWorkers is the default number of concurrent decode/transform workers.
	DefaultWorkers = 8

	// MaxWorkers is the maximum allowed number of decode/transform workers.
	MaxWorkers = 64
)

// Option configures Build.
type Option func(*buildConfig)

type buildConfig struct {
	batchSize  int
	repeat     int
	workers    int
	plan       ShardingPlan
	shuffle    bool
	seed       *int64
	source     RecordSource
	extensions []string
	transform  transform.Func
}

func newBuildConfig() *buildConfig {
	return &buildConfig{
		batchSize: DefaultBatchSize,
		repeat:    DefaultRepeat,
		workers:   DefaultWorkers,
		plan:      SingleWorker,
		shuffle:   true,
	}
}

// WithBatchSize sets the number of samples per batch. Must be positive.
func WithBatchSize(n int) Option {
	return func(c *buildConfig) {
		c.batchSize = n
	}
}

// WithRepeat sets how many times the records are passed over. Must be at least 1.
func WithRepeat(n int) Option {
	return func(c *buildConfig) {
		c.repeat = n
	}
}

// WithWorkers sets the number of concurrent decode/transform workers.
// Values are clamped to the range [1, MaxWorkers].
func WithWorkers(n int) Option {
	return func(c *buildConfig) {
		if n < 1 {
			n = 1
		}
		if n > MaxWorkers {
			n = MaxWorkers
		}
		c.workers = n
	}
}

// WithSharding restricts the stream to one worker's shard of the records.
func WithSharding(plan ShardingPlan) Option {
	return func(c *buildConfig) {
		c.plan = plan
	}
}

// WithShuffle enables or disables per-epoch shuffling. Shuffling is on by default.
func WithShuffle(shuffle bool) Option {
	return func(c *buildConfig) {
		c.shuffle = shuffle
	}
}

// WithSeed fixes the random seed, making record order and random augmentation
// reproducible. Without it the stream is seeded from the clock.
func WithSeed(seed int64) Option {
	return func(c *buildConfig) {
		c.seed = &seed
	}
}

// WithExtensions overrides the file extensions recognised in class folders.
func WithExtensions(exts ...string) Option {
	return func(c *buildConfig) {
		c.extensions = exts
	}
}

// WithSource replaces the on-disk ImageFolder with src. The path given to
// Build is then ignored.
func WithSource(src RecordSource) Option {
	return func(c *buildConfig) {
		c.source = src
	}
}

// WithTransform replaces the mode's transform chain.
func WithTransform(fn transform.Func) Option {
	return func(c *buildConfig) {
		c.transform = fn
	}
}
