package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "buzzradar",
		Short:         "Score how much buzz YouTube videos are generating",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(collectCmd())
	root.AddCommand(scoreCmd())
	root.AddCommand(batchCmd())
	root.AddCommand(rankCmd())
	root.AddCommand(invalidateCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(runCmd())

	return root
}

func collectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "collect",
		Short: "Discover candidate videos and record a statistics snapshot for each",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollect(cmd.Context())
		},
	}
}

func scoreCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "score <video-id>",
		Short: "Show the buzz score of one video, computing it when not cached",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScore(cmd.Context(), args[0], jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func batchCmd() *cobra.Command {
	var (
		trending   bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "batch [video-id...]",
		Short: "Score a set of videos concurrently",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !trending {
				return fmt.Errorf("pass video ids or --trending")
			}
			return runBatch(cmd.Context(), args, trending, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&trending, "trending", false, "add discovered candidate videos")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func rankCmd() *cobra.Command {
	var (
		jsonOutput bool
		minScore   float64
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "rank",
		Short: "List stored scores, highest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRank(cmd.Context(), jsonOutput, minScore, limit)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "minimum total score")
	cmd.Flags().IntVar(&limit, "limit", 20, "max videos to show")
	return cmd
}

func invalidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate <video-id>...",
		Short: "Drop cached scores so the next request recomputes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInvalidate(cmd.Context(), args)
		},
	}
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func runCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start daemon with scheduler and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}
