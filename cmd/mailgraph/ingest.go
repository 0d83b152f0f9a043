package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mikey/mailgraph/internal/adapters/store"
	"github.com/mikey/mailgraph/internal/config"
	"github.com/mikey/mailgraph/internal/core"
	"github.com/mikey/mailgraph/internal/di"
	"github.com/mikey/mailgraph/internal/engine"
	"github.com/mikey/mailgraph/internal/factory"
)

func ingestCmd() *cobra.Command {
	var (
		format      string
		mailingList string
		batchSize   int
		storeType   string
	)

	cmd := &cobra.Command{
		Use:   "ingest PATH...",
		Short: "Ingest mbox or JSON archives and save the resulting graph",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			setOverride(cmd, "format", "ingest.format", format)
			setOverride(cmd, "list", "ingest.mailing_list", mailingList)
			setOverride(cmd, "batch-size", "ingest.batch_size", batchSize)
			setOverride(cmd, "store", "store.type", storeType)

			container, err := di.BuildContainer(opts)
			if err != nil {
				return fmt.Errorf("failed to build dependency container: %w", err)
			}
			return container.Invoke(func(
				logger *zap.Logger,
				sources *factory.SourceFactory,
				e *engine.Engine,
				repo store.Repository,
				ic config.IngestConfig,
				sc config.StoreConfig,
			) error {
				defer logger.Sync()
				defer repo.Close()
				return runIngest(cmd.Context(), cmd.OutOrStdout(), args, sources, e, repo, ic, sc.Timeout, logger)
			})
		},
	}

	cmd.Flags().StringVar(&format, "format", "mbox", "archive format (mbox, json)")
	cmd.Flags().StringVar(&mailingList, "list", "", "mailing list name for every message")
	cmd.Flags().IntVar(&batchSize, "batch-size", 500, "messages per ingestion batch")
	cmd.Flags().StringVar(&storeType, "store", "", "snapshot store (memory, sqlite, mysql); defaults to store.type")
	return cmd
}

func runIngest(
	ctx context.Context,
	out io.Writer,
	paths []string,
	sources *factory.SourceFactory,
	e *engine.Engine,
	repo store.Repository,
	ic config.IngestConfig,
	saveTimeout time.Duration,
	logger *zap.Logger,
) error {
	start := time.Now()
	src, err := sources.CreateSource(paths)
	if err != nil {
		return err
	}
	msgs, err := src.Read(ctx)
	if err != nil {
		return fmt.Errorf("read archives: %w", err)
	}
	logger.Info("Read archives",
		zap.Strings("paths", paths),
		zap.Int("messages", len(msgs)))

	for _, batch := range chunk(msgs, ic.BatchSize) {
		report, err := e.IngestBatch(ctx, batch)
		if err != nil {
			return err
		}
		for _, s := range report.Skipped {
			logger.Debug("Skipped record",
				zap.String("batch_id", report.BatchID),
				zap.String("message_id", s.MessageID),
				zap.Error(s.Reason))
		}
	}

	snap := e.Snapshot()
	saveCtx, cancel := withTimeout(ctx, saveTimeout)
	defer cancel()
	if err := repo.Save(saveCtx, snap); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	printSummary(out, snap, len(e.Threads()), time.Since(start))
	return nil
}

// chunk splits messages into batches of at most size records
func chunk(msgs []core.RawMessage, size int) [][]core.RawMessage {
	if size <= 0 {
		size = len(msgs)
	}
	var out [][]core.RawMessage
	for len(msgs) > 0 {
		n := size
		if n > len(msgs) {
			n = len(msgs)
		}
		out = append(out, msgs[:n])
		msgs = msgs[n:]
	}
	return out
}

// withTimeout bounds store calls; a zero timeout leaves ctx unbounded
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
