package main

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/parcabul/broker/internal/config"
	"github.com/parcabul/broker/internal/pipeline"
)

var (
	batchFile  string
	batchLimit int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Submit customer requests from a YAML file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		inputs, err := readBatchFile(batchFile)
		if err != nil {
			return err
		}

		env, err := initBroker(ctx, cfg, config.ModeSearch)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := processBatch(ctx, inputs, batchLimit, cfg.Batch.MaxConcurrent, env.Pipeline.Submit)
		if err != nil {
			return err
		}
		if res.Failed > 0 {
			return eris.Errorf("batch: %d of %d submissions failed", res.Failed, res.Failed+res.Succeeded)
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchFile, "file", "", "YAML file of submissions (required)")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 100, "max number of submissions to process")
	_ = batchCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(batchCmd)
}

// readBatchFile accepts either a YAML list of submissions or a document with
// a top-level requests key.
func readBatchFile(path string) ([]pipeline.SubmitInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "batch: read %s", path)
	}

	var list []pipeline.SubmitInput
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var doc struct {
		Requests []pipeline.SubmitInput `yaml:"requests"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrapf(err, "batch: parse %s", path)
	}
	return doc.Requests, nil
}

// submitFunc is the callback signature for recording one submission.
type submitFunc func(ctx context.Context, in pipeline.SubmitInput) (*pipeline.Submission, error)

type batchResult struct {
	Succeeded int64
	Failed    int64
}

// processBatch applies limit, then submits concurrently. Individual failures
// are logged and counted without aborting the batch.
func processBatch(ctx context.Context, inputs []pipeline.SubmitInput, limit, concurrency int, submit submitFunc) (batchResult, error) {
	if len(inputs) == 0 {
		zap.L().Info("no submissions found")
		return batchResult{}, nil
	}

	if limit > 0 && len(inputs) > limit {
		inputs = inputs[:limit]
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	zap.L().Info("processing batch",
		zap.Int("submissions", len(inputs)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64

	for i, in := range inputs {
		g.Go(func() error {
			log := zap.L().With(
				zap.Int("index", i),
				zap.String("customer", in.CustomerName),
				zap.String("part_code", in.PartCode),
			)

			sub, err := submit(gctx, in)
			if err != nil {
				failed.Add(1)
				log.Error("submission failed", zap.Error(err))
				return nil
			}

			succeeded.Add(1)
			log.Info("submission recorded",
				zap.String("request_id", sub.Request.RequestID),
				zap.Int("recipients", len(sub.Recipients)),
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return batchResult{}, eris.Wrap(err, "batch processing")
	}

	res := batchResult{Succeeded: succeeded.Load(), Failed: failed.Load()}
	zap.L().Info("batch complete",
		zap.Int64("succeeded", res.Succeeded),
		zap.Int64("failed", res.Failed),
	)
	return res, nil
}
