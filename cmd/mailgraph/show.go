package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mikey/mailgraph/internal/adapters/store"
	"github.com/mikey/mailgraph/internal/config"
	"github.com/mikey/mailgraph/internal/di"
)

func showCmd() *cobra.Command {
	var (
		top       int
		storeType string
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the most active persons and strongest reply links of the saved graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			setOverride(cmd, "store", "store.type", storeType)

			container, err := di.BuildContainer(opts)
			if err != nil {
				return fmt.Errorf("failed to build dependency container: %w", err)
			}
			return container.Invoke(func(logger *zap.Logger, repo store.Repository, sc config.StoreConfig) error {
				defer logger.Sync()
				defer repo.Close()

				ctx, cancel := withTimeout(cmd.Context(), sc.Timeout)
				defer cancel()
				snap, err := repo.Load(ctx)
				if errors.Is(err, store.ErrSnapshotNotFound) {
					return fmt.Errorf("no saved graph, run ingest with a persistent store first")
				}
				if err != nil {
					return err
				}
				printTopPersons(cmd.OutOrStdout(), snap, top)
				printTopReplies(cmd.OutOrStdout(), snap, top)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&top, "top", 10, "number of rows per table")
	cmd.Flags().StringVar(&storeType, "store", "", "snapshot store (sqlite, mysql); defaults to store.type")
	return cmd
}
