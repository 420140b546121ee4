// Package dataset builds the training and evaluation input pipeline: a class
// folder record source, optional sharding across workers, the transform
// chains from package transform, batching with the partial trailing batch
// dropped, and repetition over several epochs.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/Brownie44l1/resnet-classifier/internal/imaging"
	"github.com/Brownie44l1/resnet-classifier/internal/transform"
)

// Sample is one transformed image and its label.
type Sample struct {
	Image imaging.Tensor
	Label int32
}

// Batch is a fixed-size group of samples.
type Batch struct {
	Samples []Sample
}

// Len returns the number of samples in the batch.
func (b Batch) Len() int {
	return len(b.Samples)
}

// Images stacks the sample tensors into one [N, C, H, W] tensor.
func (b Batch) Images() imaging.Tensor {
	if len(b.Samples) == 0 {
		return imaging.Tensor{}
	}
	per := len(b.Samples[0].Image.Data)
	data := make([]float32, 0, per*len(b.Samples))
	for _, s := range b.Samples {
		data = append(data, s.Image.Data...)
	}
	shape := append([]int{len(b.Samples)}, b.Samples[0].Image.Shape...)
	return imaging.Tensor{Shape: shape, Data: data}
}

// Labels returns the sample labels in batch order.
func (b Batch) Labels() []int32 {
	labels := make([]int32, len(b.Samples))
	for i, s := range b.Samples {
		labels[i] = s.Label
	}
	return labels
}

// Build creates a batch stream over the class folders under path.
//
// training selects the augmenting chain (random resized crop and flip)
// instead of the evaluation chain (shorter-side resize and centre crop).
// Without options the stream yields one epoch of batches of 32 from all
// records, shuffled.
func Build(path string, training bool, opts ...Option) (*BatchStream, error) {
	cfg := newBuildConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.batchSize <= 0 {
		return nil, fmt.Errorf("%w: batch size %d must be positive", ErrInvalidParameter, cfg.batchSize)
	}
	if cfg.repeat < 1 {
		return nil, fmt.Errorf("%w: repeat count %d must be at least 1", ErrInvalidParameter, cfg.repeat)
	}
	if err := cfg.plan.Validate(); err != nil {
		return nil, err
	}

	src := cfg.source
	if src == nil {
		folder, err := NewImageFolder(path, cfg.extensions)
		if err != nil {
			return nil, err
		}
		src = folder
	}

	fn := cfg.transform
	if fn == nil {
		fn = transform.For(training)
	}

	seed := time.Now().UnixNano()
	if cfg.seed != nil {
		seed = *cfg.seed
	}

	s := &BatchStream{
		src:       src,
		transform: fn,
		plan:      cfg.plan,
		batchSize: cfg.batchSize,
		repeat:    cfg.repeat,
		workers:   cfg.workers,
		shuffle:   cfg.shuffle,
		rng:       rand.New(rand.NewSource(seed)),
		indices:   cfg.plan.Select(src.Len()),
	}
	s.startEpoch()

	klog.InfoS("Dataset built", "path", path, "training", training, "records", src.Len(),
		"shardRecords", len(s.indices), "shard", cfg.plan.String(), "batchSize", cfg.batchSize,
		"repeat", cfg.repeat, "batchesPerEpoch", s.BatchesPerEpoch())
	return s, nil
}

// BatchStream is a lazy, sequential stream of batches. Next blocks while the
// batch is decoded and transformed by the worker pool.
type BatchStream struct {
	src       RecordSource
	transform transform.Func
	plan      ShardingPlan
	batchSize int
	repeat    int
	workers   int
	shuffle   bool

	mu      sync.Mutex
	rng     *rand.Rand
	indices []int
	order   []int
	epoch   int
	pos     int
	done    bool
}

// startEpoch prepares the record order of the current epoch. Callers hold mu
// or own the stream exclusively.
func (s *BatchStream) startEpoch() {
	s.order = append(s.order[:0], s.indices...)
	if s.shuffle {
		s.rng.Shuffle(len(s.order), func(i, j int) {
			s.order[i], s.order[j] = s.order[j], s.order[i]
		})
	}
	s.pos = 0
	klog.V(2).InfoS("Starting epoch", "epoch", s.epoch, "records", len(s.order), "shard", s.plan.String())
}

// BatchesPerEpoch returns the number of full batches one pass yields.
func (s *BatchStream) BatchesPerEpoch() int {
	return len(s.indices) / s.batchSize
}

// Len returns the total number of batches over all repetitions.
func (s *BatchStream) Len() int {
	return s.BatchesPerEpoch() * s.repeat
}

// NumClasses returns the number of classes of the underlying source.
func (s *BatchStream) NumClasses() int {
	return s.src.NumClasses()
}

// Epoch returns the zero-based index of the epoch currently being consumed.
func (s *BatchStream) Epoch() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// Next returns the next batch, or io.EOF once every repetition is consumed.
func (s *BatchStream) Next(ctx context.Context) (Batch, error) {
	if err := ctx.Err(); err != nil {
		return Batch{}, err
	}

	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return Batch{}, io.EOF
	}
	for s.pos+s.batchSize > len(s.order) {
		if s.epoch+1 >= s.repeat {
			s.done = true
			s.mu.Unlock()
			return Batch{}, io.EOF
		}
		s.epoch++
		s.startEpoch()
	}
	picked := append([]int(nil), s.order[s.pos:s.pos+s.batchSize]...)
	s.pos += s.batchSize
	seeds := make([]int64, len(picked))
	for i := range seeds {
		seeds[i] = s.rng.Int63()
	}
	s.mu.Unlock()

	samples := make([]Sample, len(picked))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, idx := range picked {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := s.src.Record(idx)
			if err != nil {
				return err
			}
			img, err := s.transform(rec.Data, rand.New(rand.NewSource(seeds[i])))
			if err != nil {
				return fmt.Errorf("failed to transform %s: %w", rec.Path, err)
			}
			samples[i] = Sample{Image: img, Label: int32(rec.Label)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Batch{}, err
	}
	return Batch{Samples: samples}, nil
}

// All returns an iterator over the remaining batches. It stops after the
// first error, which is yielded.
func (s *BatchStream) All(ctx context.Context) iter.Seq2[Batch, error] {
	return func(yield func(Batch, error) bool) {
		for {
			b, err := s.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(b, err) || err != nil {
				return
			}
		}
	}
}
