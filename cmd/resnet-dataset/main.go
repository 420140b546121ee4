// Command resnet-dataset builds the training or evaluation input pipeline
// for a class-folder dataset and reports what it yields: batches per epoch,
// tensor shapes and the label histogram.
//
// The worker count for sharding comes from RANK_SIZE; this process always
// reads shard 0.
package main

import (
	"context"
	goflag "flag"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/Brownie44l1/resnet-classifier/internal/config"
	"github.com/Brownie44l1/resnet-classifier/internal/dataset"
)

type datasetOptions struct {
	path       string
	training   bool
	repeat     int
	batchSize  int
	maxBatches int
}

func main() {
	defer klog.Flush()

	if err := newCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	opts := datasetOptions{repeat: dataset.DefaultRepeat, batchSize: dataset.DefaultBatchSize}

	cmd := &cobra.Command{
		Use:          "resnet-dataset",
		Short:        "Build the ResNet-50 input pipeline and report its batches",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return runDataset(cmd.Context(), cmd.OutOrStdout(), opts, cfg)
		},
	}

	klogFlags := goflag.NewFlagSet("klog", goflag.ContinueOnError)
	klog.InitFlags(klogFlags)
	cmd.PersistentFlags().AddGoFlagSet(klogFlags)

	cmd.Flags().StringVar(&opts.path, "dataset_path", "", "Root directory with one subdirectory per class")
	cmd.Flags().BoolVar(&opts.training, "do_train", false, "Use the training transforms (random crop and flip)")
	cmd.Flags().IntVar(&opts.repeat, "repeat_num", opts.repeat, "Number of passes over the dataset")
	cmd.Flags().IntVar(&opts.batchSize, "batch_size", opts.batchSize, "Samples per batch")
	cmd.Flags().IntVar(&opts.maxBatches, "max_batches", 0, "Stop after this many batches (0 reads everything)")
	_ = cmd.MarkFlagRequired("dataset_path")
	return cmd
}

func runDataset(ctx context.Context, out io.Writer, opts datasetOptions, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}

	folder, err := dataset.NewImageFolder(opts.path, nil)
	if err != nil {
		return err
	}
	fmt.Fprint(out, folder.String())

	plan := dataset.ShardingPlan{Count: cfg.RankSize, Index: cfg.RankID}
	buildOpts := []dataset.Option{
		dataset.WithSource(folder),
		dataset.WithBatchSize(opts.batchSize),
		dataset.WithRepeat(opts.repeat),
		dataset.WithSharding(plan),
		dataset.WithWorkers(cfg.Workers),
	}
	if cfg.Seed != nil {
		buildOpts = append(buildOpts, dataset.WithSeed(*cfg.Seed))
	}

	stream, err := dataset.Build(opts.path, opts.training, buildOpts...)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "shard %s: %d batches per epoch, %d in total\n", plan, stream.BatchesPerEpoch(), stream.Len())

	start := time.Now()
	histogram := map[int32]int{}
	batches := 0
	for batch, err := range stream.All(ctx) {
		if err != nil {
			return err
		}
		if batches == 0 {
			fmt.Fprintf(out, "batch shape %v\n", batch.Images().Shape)
		}
		for _, l := range batch.Labels() {
			histogram[l]++
		}
		batches++
		klog.V(2).InfoS("Batch ready", "batch", batches, "epoch", stream.Epoch())
		if opts.maxBatches > 0 && batches >= opts.maxBatches {
			break
		}
	}

	elapsed := time.Since(start)
	fmt.Fprintf(out, "read %d batches (%d samples) in %s\n", batches, batches*opts.batchSize, elapsed.Round(time.Millisecond))

	labels := lo.Keys(histogram)
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })
	names := folder.ClassNames()
	for _, l := range labels {
		fmt.Fprintf(out, "  [%d] %s: %d samples\n", l, names[l], histogram[l])
	}
	return nil
}
