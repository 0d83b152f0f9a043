package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mikey/mailgraph/internal/di"
)

var opts di.Options

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes the command line and returns the process exit code
func run(args []string) int {
	rootCmd := newRootCmd()
	rootCmd.SetArgs(args)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	opts = di.Options{}
	rootCmd := &cobra.Command{
		Use:           "mailgraph",
		Short:         "Resolve mailing-list identities and build their interaction graph",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "path to config file")
	rootCmd.PersistentFlags().BoolVar(&opts.Verbose, "verbose", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&opts.JSONLog, "json-log", false, "output logs in JSON format")

	rootCmd.AddCommand(ingestCmd())
	rootCmd.AddCommand(showCmd())
	return rootCmd
}

// setOverride records a flag value only when the user set it
func setOverride(cmd *cobra.Command, flag, key string, value interface{}) {
	if !cmd.Flags().Changed(flag) {
		return
	}
	if opts.Overrides == nil {
		opts.Overrides = make(map[string]interface{})
	}
	opts.Overrides[key] = value
}
